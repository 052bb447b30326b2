package faktory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Client drives jobs and the batch lifecycle against one job server. Every
// operation performs exactly one blocking round-trip through the client's
// connection pool; the pool bounds concurrency to its fixed size, so with the
// default pool size of 1 all operations on an instance execute strictly
// one at a time.
//
// A Client is safe for concurrent use. It holds no batch state between calls:
// batch ids are opaque server tokens the caller carries across operations.
type Client struct {
	name string
	pool *pool
}

// NewClient creates a client for the server at addr.
//
// Example:
//
//	client, err := faktory.NewClient("localhost:7419",
//	    faktory.WithPoolSize(2),
//	    faktory.WithPoolTimeout(2*time.Second),
//	)
func NewClient(addr string, opts ...ClientOption) (*Client, error) {
	cfg := resolveClientConfig(opts)
	if addr == "" && cfg.dialer == nil {
		return nil, fmt.Errorf("faktory: server address is required")
	}
	dial := cfg.dialer
	if dial == nil {
		dial = netDialer(dialConfig{
			addr:     addr,
			password: cfg.password,
			timeout:  cfg.dialTimeout,
			labels:   cfg.labels,
		})
	}
	return &Client{
		name: cfg.name,
		pool: newPool(PoolName(cfg.name), cfg.poolSize, cfg.poolTimeout, dial, cfg.logger),
	}, nil
}

// Name returns the instance name. The connection pool's derived name is
// PoolName(Name()).
func (c *Client) Name() string {
	return c.name
}

// Push enqueues one job. The call is synchronous: when Push returns nil the
// server has accepted the job, which makes Push the required path for jobs
// joining a batch before CommitBatch.
func (c *Client) Push(ctx context.Context, job *Job) error {
	if err := validateJob(job); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("faktory: marshal job: %w", err)
	}
	return c.pool.with(ctx, func(conn Conn) error {
		_, err := conn.Call(ctx, pushCmd(payload))
		return err
	})
}

// Close waits for in-flight operations to finish and closes every pooled
// connection. Close is idempotent; operations issued after it fail with
// *TimeoutError.
func (c *Client) Close() error {
	return c.pool.close()
}

// --- Instance registry ---

var (
	registryMu sync.RWMutex
	registry   = make(map[string]*Client)
)

// Register makes c available for lookup under its instance name. Exactly one
// client may be registered per name: a second registration under the same
// name is an error, since each named instance owns exactly one pool.
func Register(c *Client) error {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, ok := registry[c.name]; ok {
		return fmt.Errorf("faktory: instance %q is already registered", c.name)
	}
	registry[c.name] = c
	return nil
}

// Instance returns the registered client with the given name.
func Instance(name string) (*Client, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Default returns the client registered under DefaultInstanceName.
func Default() (*Client, bool) {
	return Instance(DefaultInstanceName)
}

// Deregister removes the named client from the registry. It does not close
// the client.
func Deregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, name)
}
