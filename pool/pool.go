// Package pool implements a self-managing set of qs connections: a single
// worker goroutine owns every mutable field (idle connections, in-flight
// connect/health-check attempts, blocked waiters) and every other goroutine
// talks to it exclusively by sending messages over a channel, mirroring the
// single-consumer actor loop a cooperatively scheduled client would build
// around its own event loop.
package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/qspg/qs"
	"github.com/qspg/qs/errors"
)

// Config configures the pool's sizing and health-check behavior.
type Config struct {
	// Conn is the connection configuration used for every connection the
	// pool establishes.
	Conn qs.Config

	// MaxConns caps the number of simultaneously live connections,
	// counting both idle and checked-out ones.
	MaxConns int
	// MaxRetry is the number of additional connection attempts made after
	// an initial failure before giving up and failing the waiter at the
	// head of the queue.
	MaxRetry int
	// RetryDelay is the wait between connection attempts.
	RetryDelay time.Duration
	// ConnectTimeout bounds a single connection attempt's handshake.
	ConnectTimeout time.Duration
	// HealthCheckInterval is the ceiling on the worker's wake-up period
	// for proactive health checks; the actual cadence is the soonest
	// required check, never longer than this.
	HealthCheckInterval time.Duration
	// HealthCheckThreshold is how long an idle connection may go unchecked
	// before it is considered stale and due for a PollReady.
	HealthCheckThreshold time.Duration
	// HealthCheckTimeout bounds a single health-check round trip.
	HealthCheckTimeout time.Duration

	Logger *slog.Logger
}

const (
	defaultMaxConns             = 10
	defaultMaxRetry             = 3
	defaultRetryDelay           = 5 * time.Second
	defaultConnectTimeout       = 10 * time.Second
	defaultHealthCheckInterval  = 60 * time.Second
	defaultHealthCheckThreshold = 3 * time.Second
	defaultHealthCheckTimeout   = 3 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxConns <= 0 {
		c.MaxConns = defaultMaxConns
	}
	if c.MaxRetry <= 0 {
		c.MaxRetry = defaultMaxRetry
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.HealthCheckInterval <= 0 {
		c.HealthCheckInterval = defaultHealthCheckInterval
	}
	if c.HealthCheckThreshold <= 0 {
		c.HealthCheckThreshold = defaultHealthCheckThreshold
	}
	if c.HealthCheckTimeout <= 0 {
		c.HealthCheckTimeout = defaultHealthCheckTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Pool is a handle to a running worker goroutine. It is safe for concurrent
// use: every exported method sends a message to the worker and waits for
// its reply rather than touching shared state directly.
type Pool struct {
	cfg     Config
	msgs    chan workerMsg
	done    chan struct{}
	Metrics *Metrics
}

// New starts the pool's worker goroutine and returns a handle to it. The
// worker establishes connections lazily, on the first Acquire.
func New(cfg Config) *Pool {
	cfg = cfg.withDefaults()

	p := &Pool{
		cfg:     cfg,
		msgs:    make(chan workerMsg),
		done:    make(chan struct{}),
		Metrics: NewMetrics(),
	}

	go p.run()

	return p
}

// Acquire blocks until a connection is available or ctx is done. The
// returned connection must be passed to Release exactly once.
func (p *Pool) Acquire(ctx context.Context) (*qs.Conn, error) {
	start := time.Now()
	defer p.Metrics.acquireObserved(start)

	resp := make(chan acquireResult, 1)

	select {
	case p.msgs <- acquireMsg{resp: resp}:
	case <-ctx.Done():
		return nil, errors.Wrap(errors.Io, ctx.Err())
	case <-p.done:
		return nil, errors.New(errors.Io, "pool is closed")
	}

	select {
	case result := <-resp:
		return result.conn, result.err
	case <-ctx.Done():
		// The worker still holds this request; pass any connection it
		// delivers later back to the pool instead of losing it.
		go func() {
			select {
			case result := <-resp:
				p.Release(result.conn)
			case <-p.done:
			}
		}()
		return nil, errors.Wrap(errors.Io, ctx.Err())
	}
}

// Release returns a connection to the pool. When no other health check is
// in flight, the connection is health-checked before it is handed to the
// next waiter or parked idle, and a failed check closes it; otherwise it is
// parked idle (or handed to a waiter) without a check.
func (p *Pool) Release(conn *qs.Conn) {
	if conn == nil {
		return
	}

	select {
	case p.msgs <- releaseMsg{conn: conn}:
	case <-p.done:
		_ = conn.Close()
	}
}

// Close stops accepting new work and closes every idle connection. In-flight
// Acquire calls already holding a connection are unaffected; callers must
// still Release them, which will close them once the pool is drained.
//
// Close sends a request rather than closing msgs directly: closing a
// channel that Acquire and Release concurrently send on would panic the
// next sender racing the close.
func (p *Pool) Close() {
	select {
	case p.msgs <- closeMsg{}:
	case <-p.done:
		return
	}
	<-p.done
}
