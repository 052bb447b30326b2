package faktory

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJobGeneratesUniqueJIDs(t *testing.T) {
	a := NewJob("email.send", []any{})
	b := NewJob("email.send", []any{})
	assert.NotEmpty(t, a.JID)
	assert.NotEqual(t, a.JID, b.JID)
}

func TestJobWireShape(t *testing.T) {
	job := NewJob("email.send", []any{"user@example.com"})
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Contains(t, wire, "jid")
	assert.Contains(t, wire, "jobtype")
	assert.Contains(t, wire, "args")
	assert.NotContains(t, wire, "queue", "unset fields must stay off the wire")
	assert.NotContains(t, wire, "retry")
	assert.NotContains(t, wire, "custom")
}

func TestCommandConstructors(t *testing.T) {
	assert.Equal(t, Command{Verb: "BATCH NEW", Body: []byte(`{}`)}, newBatchCmd([]byte(`{}`)))
	assert.Equal(t, Command{Verb: "BATCH COMMIT", Body: []byte("b-1")}, commitBatchCmd("b-1"))
	assert.Equal(t, Command{Verb: "BATCH OPEN", Body: []byte("b-1")}, openBatchCmd("b-1"))
	assert.Equal(t, Command{Verb: "BATCH STATUS", Body: []byte("b-1")}, statusBatchCmd("b-1"))
	assert.Equal(t, Command{Verb: "PUSH", Body: []byte(`{"jid":"x"}`)}, pushCmd([]byte(`{"jid":"x"}`)))
	assert.Equal(t, Command{Verb: "INFO"}, infoCmd())

	pause := pauseQueueCmd([]string{"email"})
	assert.Equal(t, "QUEUE PAUSE", pause.Verb)
	assert.JSONEq(t, `["email"]`, string(pause.Body))
}
