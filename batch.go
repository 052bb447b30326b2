package faktory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// batchWire is the BATCH NEW payload. Optional fields are attached only when
// supplied: an absent callback or parent must not appear on the wire, not
// even as a null placeholder.
type batchWire struct {
	Description string `json:"description"`
	ParentBid   string `json:"parent_bid,omitempty"`
	Success     *Job   `json:"success,omitempty"`
	Complete    *Job   `json:"complete,omitempty"`
}

// CreateBatch declares a new batch and returns the server-assigned batch id.
// The declaration must carry at least one of a success or complete callback
// (see WithSuccess, WithComplete); otherwise CreateBatch fails with a
// *DeclarationError before any connection is touched.
//
// CreateBatch is the one non-idempotent operation in the client: retrying it
// after a timeout or transport failure creates a new batch rather than
// resuming the old one.
//
// Example:
//
//	bid, err := client.CreateBatch(ctx, "Nightly report",
//	    faktory.WithSuccess(faktory.NewJob("report.deliver", []any{})),
//	)
func (c *Client) CreateBatch(ctx context.Context, description string, opts ...BatchOption) (string, error) {
	cfg := resolveBatchConfig(opts)
	if err := validateBatchDeclaration(description, cfg); err != nil {
		return "", err
	}

	payload, err := json.Marshal(batchWire{
		Description: description,
		ParentBid:   cfg.parent,
		Success:     cfg.success,
		Complete:    cfg.complete,
	})
	if err != nil {
		return "", fmt.Errorf("faktory: marshal batch declaration: %w", err)
	}

	var bid string
	err = c.pool.with(ctx, func(conn Conn) error {
		resp, err := conn.Call(ctx, newBatchCmd(payload))
		if err != nil {
			return err
		}
		if len(resp) == 0 {
			return fmt.Errorf("faktory: %s: server returned no batch id", verbBatchNew)
		}
		bid = string(resp)
		return nil
	})
	if err != nil {
		return "", err
	}
	return bid, nil
}

// CommitBatch finalizes the batch: once every job registered under it
// completes, the server fires its callbacks.
//
// Jobs joining the batch must be pushed synchronously before CommitBatch is
// called. The client does not detect jobs still in flight: committing while
// an asynchronous push is outstanding lets the server finalize the batch
// early, and the late job will not be part of it.
func (c *Client) CommitBatch(ctx context.Context, bid string) error {
	if err := validateBid(verbBatchCommit, bid); err != nil {
		return err
	}
	return c.pool.with(ctx, func(conn Conn) error {
		_, err := conn.Call(ctx, commitBatchCmd(bid))
		return err
	})
}

// OpenBatch re-opens a previously committed batch so more jobs or a child
// batch can be attached before a subsequent CommitBatch. Only the server
// decides whether the batch can still be opened; the client forwards the id
// verbatim.
func (c *Client) OpenBatch(ctx context.Context, bid string) error {
	if err := validateBid(verbBatchOpen, bid); err != nil {
		return err
	}
	return c.pool.with(ctx, func(conn Conn) error {
		_, err := conn.Call(ctx, openBatchCmd(bid))
		return err
	})
}

// BatchStatus fetches the server's status record for the batch. The record is
// returned verbatim; use StatusRecord.Decode for a typed view.
func (c *Client) BatchStatus(ctx context.Context, bid string) (StatusRecord, error) {
	if err := validateBid(verbBatchStatus, bid); err != nil {
		return nil, err
	}
	var record StatusRecord
	err := c.pool.with(ctx, func(conn Conn) error {
		resp, err := conn.Call(ctx, statusBatchCmd(bid))
		if err != nil {
			return err
		}
		if resp == nil {
			return nil
		}
		return json.Unmarshal(resp, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// StatusRecord is a batch status object exactly as the server reported it.
// Its fields are server-defined; the client never interprets them.
type StatusRecord map[string]any

// Decode unpacks the record into out, a pointer to a struct with
// mapstructure tags. BatchStatus covers the commonly reported fields.
func (r StatusRecord) Decode(out any) error {
	return mapstructure.Decode(map[string]any(r), out)
}

// BatchStatus is a typed view of the status fields most servers report.
type BatchStatus struct {
	Bid           string `mapstructure:"bid"`
	ParentBid     string `mapstructure:"parent_bid"`
	Description   string `mapstructure:"description"`
	CreatedAt     string `mapstructure:"created_at"`
	Total         int64  `mapstructure:"total"`
	Pending       int64  `mapstructure:"pending"`
	Failed        int64  `mapstructure:"failed"`
	SuccessState  string `mapstructure:"success_st"`
	CompleteState string `mapstructure:"complete_st"`
}
