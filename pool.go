package faktory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// poolNameSuffix is appended to an instance name to derive its pool name.
const poolNameSuffix = "_pool"

// DefaultPoolTimeout bounds how long a caller waits for a connection before
// the checkout fails with *TimeoutError.
const DefaultPoolTimeout = 5 * time.Second

// PoolName derives the connection pool name for a client instance. It is pure
// and deterministic: the same instance name always yields the same pool name,
// and distinct instance names yield distinct pool names, so independently
// pooled instances coexist without collision.
func PoolName(instance string) string {
	return instance + poolNameSuffix
}

// pool owns a fixed set of connection slots and grants exclusive, temporary
// ownership of one connection per command round-trip. Capacity never grows:
// under contention the n+1th caller blocks until a slot frees or the wait
// bound elapses. There is no fairness guarantee among waiters; starvation is
// bounded only by the timeout.
type pool struct {
	name      string
	dial      Dialer
	timeout   time.Duration
	slots     chan *slot
	logger    *slog.Logger
	closeOnce sync.Once
}

// slot is one connection holder. conn is nil until first use; the pool dials
// lazily on checkout and empties the slot again when a round-trip breaks the
// connection.
type slot struct {
	conn Conn
}

func newPool(name string, capacity int, timeout time.Duration, dial Dialer, logger *slog.Logger) *pool {
	if capacity < 1 {
		capacity = 1
	}
	if timeout <= 0 {
		timeout = DefaultPoolTimeout
	}
	p := &pool{
		name:    name,
		dial:    dial,
		timeout: timeout,
		slots:   make(chan *slot, capacity),
		logger:  logger,
	}
	for i := 0; i < capacity; i++ {
		p.slots <- &slot{}
	}
	return p
}

// with checks out one connection, runs work with exclusive access to it, and
// returns the slot to the pool on every exit path, including a panic inside
// work. A transport failure closes the connection and empties the slot so the
// next checkout redials; a server error reply leaves the connection alone. A
// panic also costs the connection: the round-trip may have stopped between
// write and read, leaving unread bytes on the wire that would corrupt the
// next command.
func (p *pool) with(ctx context.Context, work func(Conn) error) error {
	s, err := p.checkout(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			p.discard(s, errors.Errorf("panic during round-trip: %v", r))
			p.checkin(s)
			panic(r)
		}
		p.checkin(s)
	}()

	if s.conn == nil {
		conn, err := p.dial(ctx)
		if err != nil {
			return errors.Wrapf(err, "faktory: connect pool %s", p.name)
		}
		if p.logger != nil {
			p.logger.Debug("connection established", "pool", p.name)
		}
		s.conn = conn
	}

	if err := work(s.conn); err != nil {
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			p.discard(s, err)
		}
		return err
	}
	return nil
}

// checkout blocks until a slot is free, the pool timeout fires, or ctx is
// done. A caller that times out never touches a slot; whichever connection it
// was waiting on is unaffected.
func (p *pool) checkout(ctx context.Context) (*slot, error) {
	select {
	case s := <-p.slots:
		return s, nil
	default:
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case s := <-p.slots:
		return s, nil
	case <-timer.C:
		return nil, &TimeoutError{Pool: p.name, Wait: p.timeout}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pool) checkin(s *slot) {
	p.slots <- s
}

func (p *pool) discard(s *slot, cause error) {
	if s.conn == nil {
		return
	}
	_ = s.conn.Close()
	s.conn = nil
	if p.logger != nil {
		p.logger.Debug("connection discarded", "pool", p.name, "cause", cause)
	}
}

// close waits for every slot to come back and closes its connection. The pool
// is unusable afterwards: later checkouts fail with *TimeoutError. Closing an
// already-closed pool is a no-op; the slots are gone for good, so only the
// first call may drain them.
func (p *pool) close() error {
	var first error
	p.closeOnce.Do(func() {
		for i := 0; i < cap(p.slots); i++ {
			s := <-p.slots
			if s.conn == nil {
				continue
			}
			if err := s.conn.Close(); err != nil && first == nil {
				first = err
			}
			s.conn = nil
		}
	})
	return first
}
