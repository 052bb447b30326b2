package faktory

import (
	"log/slog"
	"time"
)

// --- Client Options ---

// DefaultInstanceName is the instance name used when none is configured.
const DefaultInstanceName = "faktory"

// clientConfig holds the resolved configuration for a Client.
type clientConfig struct {
	name        string
	poolSize    int
	poolTimeout time.Duration
	dialTimeout time.Duration
	password    string
	labels      []string
	logger      *slog.Logger
	dialer      Dialer
}

// ClientOption configures a Client.
type ClientOption func(*clientConfig)

// WithInstanceName names the client instance. The instance name determines
// the derived pool name (see PoolName) and the key under which the client can
// be registered for lookup. Default: "faktory".
func WithInstanceName(name string) ClientOption {
	return func(c *clientConfig) {
		c.name = name
	}
}

// WithPoolSize fixes the number of connections in the pool. The pool never
// grows past this size. Default: 1.
func WithPoolSize(n int) ClientOption {
	return func(c *clientConfig) {
		c.poolSize = n
	}
}

// WithPoolTimeout bounds how long an operation waits for a free connection
// before failing with *TimeoutError. Default: 5 seconds.
func WithPoolTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.poolTimeout = d
	}
}

// WithDialTimeout bounds connect and handshake time for each new connection.
// Default: 5 seconds.
func WithDialTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) {
		c.dialTimeout = d
	}
}

// WithPassword sets the password used to answer the server's connect
// challenge. Ignored by servers that do not require one.
func WithPassword(password string) ClientOption {
	return func(c *clientConfig) {
		c.password = password
	}
}

// WithLabels sets the labels reported in the connect handshake.
func WithLabels(labels ...string) ClientOption {
	return func(c *clientConfig) {
		c.labels = labels
	}
}

// WithLogger sets a structured logger for operational events (connection
// establishment and teardown). Errors are never logged: every failure
// propagates to the caller. Pass nil to disable logging (the default).
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithDialer replaces the TCP dialer with a custom connection factory. Used
// by tests and by applications that tunnel the protocol over their own
// transport.
func WithDialer(dial Dialer) ClientOption {
	return func(c *clientConfig) {
		c.dialer = dial
	}
}

func resolveClientConfig(opts []ClientOption) clientConfig {
	cfg := clientConfig{
		name:        DefaultInstanceName,
		poolSize:    1,
		poolTimeout: DefaultPoolTimeout,
		dialTimeout: 5 * time.Second,
		labels:      []string{"golang"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// --- Batch Options ---

// batchConfig holds the resolved declaration for one CreateBatch call.
type batchConfig struct {
	parent   string
	success  *Job
	complete *Job
}

// BatchOption configures a batch declaration.
type BatchOption func(*batchConfig)

// WithSuccess sets the callback job enqueued when every job in the batch
// succeeded.
func WithSuccess(job *Job) BatchOption {
	return func(c *batchConfig) {
		c.success = job
	}
}

// WithComplete sets the callback job enqueued when every job in the batch has
// finished, regardless of outcome.
func WithComplete(job *Job) BatchOption {
	return func(c *batchConfig) {
		c.complete = job
	}
}

// WithParent declares the new batch as a child of an existing batch.
func WithParent(bid string) BatchOption {
	return func(c *batchConfig) {
		c.parent = bid
	}
}

func resolveBatchConfig(opts []BatchOption) batchConfig {
	var cfg batchConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// --- Job Options ---

// JobOption configures a job record built by NewJob.
type JobOption func(*Job)

// WithQueue sets the target queue for the job. Default: the server default
// queue.
func WithQueue(queue string) JobOption {
	return func(j *Job) {
		j.Queue = queue
	}
}

// WithRetry sets how many times the server retries the job. Zero disables
// retries; -1 disables retries and the dead set.
func WithRetry(n int) JobOption {
	return func(j *Job) {
		j.Retry = &n
	}
}

// WithPriority sets the job priority, 1 (lowest) to 9 (highest).
func WithPriority(p uint8) JobOption {
	return func(j *Job) {
		j.Priority = p
	}
}

// WithAt schedules the job to run at a specific time.
func WithAt(t time.Time) JobOption {
	return func(j *Job) {
		j.At = ScheduledAt(t)
	}
}

// WithReserveFor sets the reservation period before the server reclaims the
// job from a stalled worker.
func WithReserveFor(d time.Duration) JobOption {
	return func(j *Job) {
		j.ReserveFor = int(d.Seconds())
	}
}

// WithCustom merges key-value pairs into the job's custom payload.
func WithCustom(custom map[string]any) JobOption {
	return func(j *Job) {
		if j.Custom == nil {
			j.Custom = make(map[string]any, len(custom))
		}
		for k, v := range custom {
			j.Custom[k] = v
		}
	}
}
