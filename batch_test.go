package faktory

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingClient returns a client whose connections are in-memory stubs,
// plus hooks to inspect traffic and count dials.
func recordingClient(t *testing.T, reply []byte) (*Client, *stubConn, *int32) {
	t.Helper()
	conn := &stubConn{reply: reply}
	var dials int32
	client, err := NewClient("", WithDialer(func(ctx context.Context) (Conn, error) {
		atomic.AddInt32(&dials, 1)
		return conn, nil
	}))
	require.NoError(t, err)
	return client, conn, &dials
}

func (c *stubConn) sent() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.calls))
	copy(out, c.calls)
	return out
}

func TestCreateBatchSuccessCallbackOnly(t *testing.T) {
	client, conn, _ := recordingClient(t, []byte("b-123"))

	bid, err := client.CreateBatch(context.Background(), "Nightly report",
		WithSuccess(NewJob("report.deliver", []any{})),
	)
	require.NoError(t, err)
	assert.Equal(t, "b-123", bid, "bid must be whatever the server returned")

	sent := conn.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, verbBatchNew, sent[0].Verb)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(sent[0].Body, &payload))
	assert.Contains(t, payload, "description")
	assert.Contains(t, payload, "success")
	assert.NotContains(t, payload, "complete", "absent callback must not appear, not even as null")
	assert.NotContains(t, payload, "parent_bid")
}

func TestCreateBatchWithParentAndComplete(t *testing.T) {
	client, conn, _ := recordingClient(t, []byte("b-456"))

	cleanup := NewJob("cleanup.run", []any{})
	bid, err := client.CreateBatch(context.Background(), "Child work",
		WithComplete(cleanup),
		WithParent("b-123"),
	)
	require.NoError(t, err)
	assert.Equal(t, "b-456", bid)

	sent := conn.sent()
	require.Len(t, sent, 1)

	var payload struct {
		Description string `json:"description"`
		ParentBid   string `json:"parent_bid"`
		Success     *Job   `json:"success"`
		Complete    *Job   `json:"complete"`
	}
	require.NoError(t, json.Unmarshal(sent[0].Body, &payload))
	assert.Equal(t, "Child work", payload.Description)
	assert.Equal(t, "b-123", payload.ParentBid)
	assert.Nil(t, payload.Success)
	require.NotNil(t, payload.Complete)
	assert.Equal(t, cleanup.JID, payload.Complete.JID, "callback job must be embedded verbatim")
	assert.Equal(t, "cleanup.run", payload.Complete.Type)
}

func TestCreateBatchBothCallbacks(t *testing.T) {
	client, conn, _ := recordingClient(t, []byte("b-789"))

	_, err := client.CreateBatch(context.Background(), "Everything",
		WithSuccess(NewJob("notify.success", []any{})),
		WithComplete(NewJob("notify.done", []any{})),
	)
	require.NoError(t, err)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(conn.sent()[0].Body, &payload))
	assert.Contains(t, payload, "success")
	assert.Contains(t, payload, "complete")
}

func TestCreateBatchWithoutCallbacksFailsBeforeNetwork(t *testing.T) {
	client, conn, dials := recordingClient(t, []byte("b-123"))

	_, err := client.CreateBatch(context.Background(), "No callback")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDeclaration)

	var de *DeclarationError
	require.ErrorAs(t, err, &de)

	assert.Empty(t, conn.sent(), "a declaration error must never reach the wire")
	assert.Zero(t, atomic.LoadInt32(dials), "a declaration error must not even dial")
}

func TestCreateBatchEmptyDescription(t *testing.T) {
	client, _, dials := recordingClient(t, nil)

	_, err := client.CreateBatch(context.Background(), "",
		WithSuccess(NewJob("report.deliver", []any{})),
	)
	require.ErrorIs(t, err, ErrDeclaration)
	assert.Zero(t, atomic.LoadInt32(dials))
}

func TestCreateBatchReservedCustomKey(t *testing.T) {
	client, _, dials := recordingClient(t, nil)

	bad := NewJob("report.deliver", []any{}, WithCustom(map[string]any{"faktory": "other"}))
	_, err := client.CreateBatch(context.Background(), "Nightly report", WithSuccess(bad))
	require.ErrorIs(t, err, ErrDeclaration)
	assert.Zero(t, atomic.LoadInt32(dials))
}

func TestCommitBatchForwardsBid(t *testing.T) {
	client, conn, _ := recordingClient(t, nil)

	require.NoError(t, client.CommitBatch(context.Background(), "b-123"))

	sent := conn.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, verbBatchCommit, sent[0].Verb)
	assert.Equal(t, "b-123", string(sent[0].Body))
}

func TestOpenBatchForwardsBid(t *testing.T) {
	client, conn, _ := recordingClient(t, nil)

	require.NoError(t, client.OpenBatch(context.Background(), "b-123"))

	sent := conn.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, verbBatchOpen, sent[0].Verb)
	assert.Equal(t, "b-123", string(sent[0].Body))
}

func TestBatchStatusForwardsBidAndReturnsRecordVerbatim(t *testing.T) {
	record := map[string]any{
		"bid":         "b-123",
		"description": "Nightly report",
		"total":       float64(3),
		"pending":     float64(1),
		"failed":      float64(0),
		"success_st":  "",
		"custom_srv":  "opaque",
	}
	raw, err := json.Marshal(record)
	require.NoError(t, err)

	client, conn, _ := recordingClient(t, raw)

	status, err := client.BatchStatus(context.Background(), "b-123")
	require.NoError(t, err)
	assert.Equal(t, verbBatchStatus, conn.sent()[0].Verb)
	assert.Equal(t, "b-123", string(conn.sent()[0].Body))
	assert.Equal(t, StatusRecord(record), status, "record must come back exactly as the server sent it")
}

func TestStatusRecordDecode(t *testing.T) {
	record := StatusRecord{
		"bid":         "b-123",
		"parent_bid":  "b-100",
		"description": "Nightly report",
		"total":       float64(3),
		"pending":     float64(1),
		"failed":      float64(2),
		"success_st":  "pending",
	}

	var status BatchStatus
	require.NoError(t, record.Decode(&status))
	assert.Equal(t, "b-123", status.Bid)
	assert.Equal(t, "b-100", status.ParentBid)
	assert.Equal(t, int64(3), status.Total)
	assert.Equal(t, int64(1), status.Pending)
	assert.Equal(t, int64(2), status.Failed)
	assert.Equal(t, "pending", status.SuccessState)
}

func TestBatchOperationsRequireBid(t *testing.T) {
	client, conn, dials := recordingClient(t, nil)

	require.Error(t, client.CommitBatch(context.Background(), ""))
	require.Error(t, client.OpenBatch(context.Background(), ""))
	_, err := client.BatchStatus(context.Background(), "")
	require.Error(t, err)

	assert.Empty(t, conn.sent())
	assert.Zero(t, atomic.LoadInt32(dials))
}

func TestBatchServerErrorPropagatesVerbatim(t *testing.T) {
	conn := &stubConn{err: &ProtocolError{Verb: verbBatchCommit, Message: "No such batch"}}
	client, err := NewClient("", WithDialer(func(ctx context.Context) (Conn, error) {
		return conn, nil
	}))
	require.NoError(t, err)

	err = client.CommitBatch(context.Background(), "b-404")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "No such batch", pe.Message)
}
