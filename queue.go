package faktory

import (
	"context"
	"encoding/json"
	"fmt"
)

// PauseQueue stops the server from handing out jobs from the named queues.
// Already-running jobs are unaffected.
func (c *Client) PauseQueue(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("faktory: %s: at least one queue name is required", verbQueuePause)
	}
	return c.pool.with(ctx, func(conn Conn) error {
		_, err := conn.Call(ctx, pauseQueueCmd(names))
		return err
	})
}

// ResumeQueue resumes previously paused queues.
func (c *Client) ResumeQueue(ctx context.Context, names ...string) error {
	if len(names) == 0 {
		return fmt.Errorf("faktory: %s: at least one queue name is required", verbQueueResume)
	}
	return c.pool.with(ctx, func(conn Conn) error {
		_, err := conn.Call(ctx, resumeQueueCmd(names))
		return err
	})
}

// Info returns the server's stats object verbatim.
func (c *Client) Info(ctx context.Context) (map[string]any, error) {
	var info map[string]any
	err := c.pool.with(ctx, func(conn Conn) error {
		resp, err := conn.Call(ctx, infoCmd())
		if err != nil {
			return err
		}
		if resp == nil {
			return nil
		}
		return json.Unmarshal(resp, &info)
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}
