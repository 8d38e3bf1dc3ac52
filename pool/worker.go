package pool

import (
	"context"
	"log/slog"
	"time"

	"github.com/qspg/qs"
)

// workerMsg is the closed set of requests the worker loop accepts, the Go
// counterpart of an mpsc enum: Acquire asks for a connection, Release
// returns one, closeMsg asks the worker to drain and exit.
type workerMsg interface{ isWorkerMsg() }

type acquireMsg struct {
	resp chan acquireResult
}

type releaseMsg struct {
	conn *qs.Conn
}

type closeMsg struct{}

func (acquireMsg) isWorkerMsg() {}
func (releaseMsg) isWorkerMsg() {}
func (closeMsg) isWorkerMsg()   {}

type acquireResult struct {
	conn *qs.Conn
	err  error
}

// pooledConn pairs a live connection with the last instant it was known
// good, the basis for deciding when it is next due for a health check.
type pooledConn struct {
	conn        *qs.Conn
	lastChecked time.Time
}

type connectOutcome struct {
	conn *qs.Conn
	err  error
}

type healthcheckOutcome struct {
	pc  *pooledConn
	err error
}

// run is the worker's single event loop. Every field it closes over —
// idle, waiters, active, connecting, healthchecking — is touched from no
// other goroutine; connectAsync and healthcheckAsync only ever report
// results back over a channel, never mutate state directly. This is the
// same shape as the original single future polling an mpsc receiver
// alongside its in-flight sub-futures, translated to goroutines and
// channels.
func (p *Pool) run() {
	logger := p.cfg.Logger

	var idle []*pooledConn
	var waiters []chan acquireResult
	active := 0
	connecting := false

	var healthchecking *pooledConn

	connResultCh := make(chan connectOutcome, 1)
	hcResultCh := make(chan healthcheckOutcome, 1)

	ticker := time.NewTicker(p.cfg.HealthCheckInterval)
	defer ticker.Stop()

	report := func() {
		p.Metrics.connsActive.Set(float64(active))
		p.Metrics.connsIdle.Set(float64(len(idle)))
		p.Metrics.waiters.Set(float64(len(waiters)))
	}

	maybeConnect := func() {
		if !connecting && active < p.cfg.MaxConns && len(waiters) > 0 {
			connecting = true
			go p.connectAsync(connResultCh)
		}
	}

	// satisfy pulls waiters off the front of the queue as long as idle
	// connections are available, then tops off the connecting slot if
	// waiters remain unsatisfied.
	satisfy := func() {
		for len(waiters) > 0 && len(idle) > 0 {
			w := waiters[0]
			waiters = waiters[1:]
			pc := idle[0]
			idle = idle[1:]
			w <- acquireResult{conn: pc.conn}
		}
		maybeConnect()
	}

	for {
		select {
		case msg, ok := <-p.msgs:
			if !ok {
				// Only reachable if something outside this package closes
				// p.msgs; Close() sends closeMsg instead.
				for _, pc := range idle {
					_ = pc.conn.Close()
				}
				close(p.done)
				return
			}

			switch m := msg.(type) {
			case acquireMsg:
				if len(idle) > 0 {
					pc := idle[0]
					idle = idle[1:]
					m.resp <- acquireResult{conn: pc.conn}
				} else {
					waiters = append(waiters, m.resp)
					maybeConnect()
				}

			case releaseMsg:
				if healthchecking == nil {
					healthchecking = &pooledConn{conn: m.conn}
					go p.healthcheckAsync(healthchecking, hcResultCh)
				} else {
					idle = append(idle, &pooledConn{conn: m.conn, lastChecked: time.Now()})
					satisfy()
				}

			case closeMsg:
				for _, pc := range idle {
					_ = pc.conn.Close()
				}
				close(p.done)
				return
			}

		case outcome := <-connResultCh:
			connecting = false
			p.Metrics.connectTotal.Inc()

			if outcome.err != nil {
				p.Metrics.connectErrors.Inc()
				logger.Error("pool: connect failed", slog.Any("error", outcome.err))

				// Only the waiter at the head of the queue observes the
				// error once retries are exhausted; remaining waiters
				// restart the retry cycle on the next loop iteration via
				// maybeConnect below.
				if len(waiters) > 0 {
					w := waiters[0]
					waiters = waiters[1:]
					w <- acquireResult{err: outcome.err}
				}
			} else {
				active++
				if len(waiters) > 0 {
					w := waiters[0]
					waiters = waiters[1:]
					w <- acquireResult{conn: outcome.conn}
				} else {
					idle = append(idle, &pooledConn{conn: outcome.conn, lastChecked: time.Now()})
				}
			}

		case outcome := <-hcResultCh:
			pc := healthchecking
			healthchecking = nil

			if outcome.err != nil {
				p.Metrics.healthCheckResult(false)
				logger.Warn("pool: health check failed, discarding connection", slog.Any("error", outcome.err))
				_ = pc.conn.Close()
				active--
			} else {
				p.Metrics.healthCheckResult(true)
				pc.lastChecked = time.Now()
				if len(waiters) > 0 {
					w := waiters[0]
					waiters = waiters[1:]
					w <- acquireResult{conn: pc.conn}
				} else {
					idle = append([]*pooledConn{pc}, idle...)
				}
			}

		case <-ticker.C:
			if healthchecking == nil {
				if i, stale := staleIdle(idle, p.cfg.HealthCheckThreshold); stale {
					pc := idle[i]
					idle = append(idle[:i], idle[i+1:]...)
					healthchecking = pc
					go p.healthcheckAsync(healthchecking, hcResultCh)
				}
			}
		}

		satisfy()
		report()

		// Wake for the soonest due health check, never later than
		// HealthCheckInterval.
		next := p.cfg.HealthCheckInterval
		if healthchecking == nil {
			for _, pc := range idle {
				if due := p.cfg.HealthCheckThreshold - time.Since(pc.lastChecked); due < next {
					next = due
				}
			}
		}
		if next <= 0 {
			next = time.Millisecond
		}
		ticker.Reset(next)
	}
}

// staleIdle returns the index of the idle connection most overdue for a
// health check, if any has gone unchecked longer than interval.
func staleIdle(idle []*pooledConn, interval time.Duration) (int, bool) {
	oldest := -1
	var oldestAge time.Duration

	for i, pc := range idle {
		age := time.Since(pc.lastChecked)
		if age > interval && age > oldestAge {
			oldest = i
			oldestAge = age
		}
	}

	return oldest, oldest >= 0
}

// connectAsync attempts to establish a new connection, retrying up to
// Config.MaxRetry additional times with RetryDelay between attempts, and
// reports the final outcome on resultCh.
func (p *Pool) connectAsync(resultCh chan<- connectOutcome) {
	var lastErr error

	for attempt := 0; attempt <= p.cfg.MaxRetry; attempt++ {
		if attempt > 0 {
			time.Sleep(p.cfg.RetryDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.ConnectTimeout)
		conn, err := qs.Connect(ctx, p.cfg.Conn)
		cancel()

		if err == nil {
			resultCh <- connectOutcome{conn: conn}
			return
		}

		lastErr = err
		p.cfg.Logger.Warn("pool: connect attempt failed", slog.Int("attempt", attempt), slog.Any("error", err))
	}

	resultCh <- connectOutcome{err: lastErr}
}

// healthcheckAsync runs PollReady against a connection outside the worker
// goroutine and reports the outcome on resultCh.
func (p *Pool) healthcheckAsync(pc *pooledConn, resultCh chan<- healthcheckOutcome) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.HealthCheckTimeout)
	defer cancel()

	err := pc.conn.PollReady(ctx)
	resultCh <- healthcheckOutcome{pc: pc, err: err}
}
