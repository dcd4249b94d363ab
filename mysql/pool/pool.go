// Package pool implements the production-grade connection pool of §4.8:
// bounded acquire/release with a FIFO waiter queue, idle/lifetime
// expiry, bounded-batch keepalive validation, and a background
// maintenance loop. It is parameterized over a Conn interface so it has
// no dependency on the wire protocol itself.
package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPoolClosed is returned by Acquire once the pool has been closed.
var ErrPoolClosed = errors.New("mysql: pool is closed")

// AcquireTimeoutError is returned when Acquire's connectionTimeout (or an
// earlier context deadline) elapses before an entry becomes available.
type AcquireTimeoutError struct {
	Waited time.Duration
	Status Status
}

func (e *AcquireTimeoutError) Error() string {
	return fmt.Sprintf("mysql: pool: acquire timed out after %s (active=%d idle=%d waiting=%d)",
		e.Waited, e.Status.Active, e.Status.Idle, e.Status.Waiting)
}

// Status is a point-in-time snapshot of pool occupancy, returned by
// Pool.Status and used to populate metrics and AcquireTimeoutError.
type Status struct {
	Active    int
	Idle      int
	Total     int
	Waiting   int
	Exhausted int64
}

// Dialer creates one new backing connection. The pool calls it outside
// any lock; a Dialer failure during initial fill is fatal, and a failure
// during Acquire propagates to the caller.
type Dialer func(ctx context.Context) (Conn, error)

type waiter struct {
	ready chan *Entry
}

// Pool manages a bounded set of Conn entries behind a single DSN.
type Pool struct {
	label  string
	dial   Dialer
	cfg    Config

	mu      sync.Mutex
	idle    []*Entry
	active  map[*Entry]struct{}
	waiters []*waiter
	total   int

	exhausted int64
	closed    bool
	stopCh    chan struct{}
	wg        sync.WaitGroup

	metrics *Metrics
}

// New creates a Pool for label (used in logs/metrics, typically the DSN's
// host:port/schema), validates cfg, pre-warms MinConnections connections,
// and starts the maintenance housekeeper. A Dialer failure while
// pre-warming is fatal and returned immediately.
func New(label string, dial Dialer, cfg Config, metrics *Metrics) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p := &Pool{
		label:   label,
		dial:    dial,
		cfg:     cfg,
		active:  make(map[*Entry]struct{}),
		stopCh:  make(chan struct{}),
		metrics: metrics,
	}

	for i := 0; i < cfg.MinConnections; i++ {
		conn, err := dial(context.Background())
		if err != nil {
			return nil, fmt.Errorf("mysql: pool %q: fatal error pre-warming connection %d/%d: %w", label, i+1, cfg.MinConnections, err)
		}
		p.idle = append(p.idle, newEntry(conn, time.Now()))
		p.total++
	}

	p.wg.Add(1)
	go p.maintenanceLoop()
	return p, nil
}

// Status returns a snapshot of current pool occupancy.
func (p *Pool) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusLocked()
}

func (p *Pool) statusLocked() Status {
	return Status{
		Active:    len(p.active),
		Idle:      len(p.idle),
		Total:     p.total,
		Waiting:   len(p.waiters),
		Exhausted: p.exhausted,
	}
}

// Acquire returns a live, validated Entry, creating one if under
// MaxConnections or waiting in FIFO order otherwise. ctx's deadline (if
// earlier than ConnectionTimeout) bounds the wait; cancellation releases
// the caller's queue slot promptly.
func (p *Pool) Acquire(ctx context.Context) (*Entry, error) {
	deadline := time.Now().Add(p.cfg.ConnectionTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	started := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !time.Now().Before(deadline) {
			return nil, &AcquireTimeoutError{Waited: time.Since(started), Status: p.Status()}
		}

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrPoolClosed
		}

		if e := p.popUsableIdleLocked(); e != nil {
			p.mu.Unlock()
			if err := p.validateOnAcquire(ctx, e); err != nil {
				p.discardFailedEntry(e)
				continue
			}
			p.admitLocked(e, started)
			return e, nil
		}

		if p.total < p.cfg.MaxConnections {
			p.total++
			p.mu.Unlock()
			conn, err := p.dial(ctx)
			if err != nil {
				p.mu.Lock()
				p.total--
				p.mu.Unlock()
				return nil, fmt.Errorf("mysql: pool %q: dialing new connection: %w", p.label, err)
			}
			e := newEntry(conn, time.Now())
			p.admitLocked(e, started)
			return e, nil
		}

		p.exhausted++
		if p.metrics != nil {
			p.metrics.ObservePoolExhausted(p.label)
		}
		w := &waiter{ready: make(chan *Entry, 1)}
		p.waiters = append(p.waiters, w)
		p.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			p.removeWaiter(w)
			return nil, &AcquireTimeoutError{Waited: time.Since(started), Status: p.Status()}
		}

		timer := time.NewTimer(remaining)
		select {
		case e, ok := <-w.ready:
			timer.Stop()
			if !ok {
				// Close drained the waiter queue without handing out an
				// entry: there is nothing to admit.
				return nil, ErrPoolClosed
			}
			p.admitLocked(e, started)
			return e, nil
		case <-timer.C:
			if !p.removeWaiter(w) {
				// Either Release already handed us an entry racing the
				// timeout, or Close drained the queue; either way w.ready
				// now has a value or is closed.
				if e, ok := <-w.ready; ok {
					p.admitLocked(e, started)
					return e, nil
				}
				return nil, ErrPoolClosed
			}
			return nil, &AcquireTimeoutError{Waited: time.Since(started), Status: p.Status()}
		case <-ctx.Done():
			timer.Stop()
			if !p.removeWaiter(w) {
				if e, ok := <-w.ready; ok {
					p.admitLocked(e, started)
					return e, nil
				}
				return nil, ErrPoolClosed
			}
			return nil, ctx.Err()
		}
	}
}

// admitLocked marks e active and records its borrow time. Despite the
// name it takes its own lock — named to mirror the "this entry is now
// owned by the caller" step in Acquire.
func (p *Pool) admitLocked(e *Entry, acquireStarted time.Time) {
	p.mu.Lock()
	p.active[e] = struct{}{}
	p.mu.Unlock()
	e.markBorrowed(time.Now(), p.cfg.LeakDetectionThreshold, p.label)
	if p.metrics != nil {
		p.metrics.ObserveAcquireDuration(p.label, time.Since(acquireStarted))
		p.metrics.SetGauges(p.label, p.Status())
	}
}

// popUsableIdleLocked pops the most-recently-released idle entry (LIFO
// within the idle set keeps a warm connection cache), skipping and
// discarding any that are already lifetime-expired. Caller holds p.mu.
func (p *Pool) popUsableIdleLocked() *Entry {
	now := time.Now()
	for len(p.idle) > 0 {
		e := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]
		if e.isLifetimeExpired(p.cfg.MaxLifetime, now) {
			p.total--
			go e.conn.Close()
			continue
		}
		return e
	}
	return nil
}

// validateOnAcquire skips validation if the entry is within the alive
// bypass window, otherwise runs a bounded COM_PING probe.
func (p *Pool) validateOnAcquire(ctx context.Context, e *Entry) error {
	now := time.Now()
	if e.withinAliveBypassWindow(p.cfg.AliveBypassWindow, now) {
		return nil
	}
	return e.validate(ctx, p.cfg.ValidationTimeout, now)
}

// discardFailedEntry is called when a popped idle entry fails validation:
// per §4.8 this retires the entry silently and the caller retries from
// the top of Acquire's loop.
func (p *Pool) discardFailedEntry(e *Entry) {
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
	e.conn.Close()
}

func (p *Pool) removeWaiter(w *waiter) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, ww := range p.waiters {
		if ww == w {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Release returns e to the pool. A poisoned or lifetime-expired
// connection is destroyed and the pool is topped back up to
// MinConnections before Release returns (the replacement dials run on the
// caller's goroutine); otherwise it is handed directly to the head waiter
// (FIFO) or marked idle.
func (p *Pool) Release(e *Entry) {
	e.markReleased(time.Now())

	p.mu.Lock()
	delete(p.active, e)

	if p.closed || e.conn.Poisoned() || e.isLifetimeExpired(p.cfg.MaxLifetime, time.Now()) {
		p.total--
		p.mu.Unlock()
		e.conn.Close()
		if p.metrics != nil {
			p.metrics.SetGauges(p.label, p.Status())
		}
		p.topUpAsync()
		return
	}

	if len(p.waiters) > 0 {
		w := p.waiters[0]
		p.waiters = p.waiters[1:]
		p.mu.Unlock()
		w.ready <- e
		if p.metrics != nil {
			p.metrics.SetGauges(p.label, p.Status())
		}
		return
	}

	p.idle = append(p.idle, e)
	p.mu.Unlock()
	if p.metrics != nil {
		p.metrics.SetGauges(p.label, p.Status())
	}
}

// topUpAsync creates replacement connections up to MinConnections after a
// destroy, without holding p.mu across the dial.
func (p *Pool) topUpAsync() {
	p.mu.Lock()
	need := p.cfg.MinConnections - p.total
	if need > 0 {
		p.total += need
	}
	p.mu.Unlock()
	if need <= 0 {
		return
	}
	for i := 0; i < need; i++ {
		conn, err := p.dial(context.Background())
		if err != nil {
			p.mu.Lock()
			p.total--
			p.mu.Unlock()
			slog.Warn("mysql: pool: failed to replace destroyed connection", "pool", p.label, "err", err)
			continue
		}
		p.mu.Lock()
		p.idle = append(p.idle, newEntry(conn, time.Now()))
		p.mu.Unlock()
	}
}

// Close stops the housekeeper and closes every idle and active
// connection, waking any waiters by closing their ready channels; a woken
// waiter's Acquire returns ErrPoolClosed. Calls after the first are
// no-ops.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	idle := p.idle
	p.idle = nil
	active := make([]*Entry, 0, len(p.active))
	for e := range p.active {
		active = append(active, e)
	}
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	close(p.stopCh)
	p.wg.Wait()

	for _, e := range idle {
		e.conn.Close()
	}
	for _, e := range active {
		e.conn.Close()
	}
	for _, w := range waiters {
		close(w.ready)
	}
}

// Use acquires a connection, runs fn, and guarantees release — including
// on panic or early return — the scoped-acquire pattern callers are
// expected to use instead of manual Acquire/Release pairs.
func (p *Pool) Use(ctx context.Context, fn func(Conn) error) error {
	e, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer p.Release(e)
	return fn(e.Conn())
}
