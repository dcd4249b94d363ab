package pool

import (
	"context"
	"log/slog"
	"time"
)

// Conn is the subset of mysql.Conn the pool depends on. Keeping this
// narrow lets the pool be tested without a real server and keeps
// mysql/pool free of a dependency on the top-level mysql package.
type Conn interface {
	// Ping issues a cheap validation probe (COM_PING), honoring ctx's
	// deadline.
	Ping(ctx context.Context) error
	// Poisoned reports whether the connection has observed a protocol
	// error or a cancelled in-flight command and must not be reused.
	Poisoned() bool
	// Close tears down the underlying network connection.
	Close() error
}

// Entry wraps one pooled Conn with the bookkeeping Pool needs: creation
// and last-validated timestamps for lifetime/idle expiry, and an optional
// borrow record for leak detection.
type Entry struct {
	conn        Conn
	createdAt   time.Time
	lastUsedAt  time.Time
	lastValidAt time.Time

	borrowedAt time.Time
	leakTimer  *time.Timer
}

func newEntry(conn Conn, now time.Time) *Entry {
	return &Entry{
		conn:        conn,
		createdAt:   now,
		lastUsedAt:  now,
		lastValidAt: now,
	}
}

// Conn returns the wrapped connection.
func (e *Entry) Conn() Conn { return e.conn }

// isLifetimeExpired reports whether the entry has exceeded maxLifetime.
func (e *Entry) isLifetimeExpired(maxLifetime time.Duration, now time.Time) bool {
	return maxLifetime > 0 && now.Sub(e.createdAt) > maxLifetime
}

// isIdleExpired reports whether the entry has been idle longer than
// idleTimeout.
func (e *Entry) isIdleExpired(idleTimeout time.Duration, now time.Time) bool {
	return idleTimeout > 0 && now.Sub(e.lastUsedAt) > idleTimeout
}

// withinAliveBypassWindow reports whether the entry was validated
// recently enough that Acquire can skip another validation probe.
func (e *Entry) withinAliveBypassWindow(window time.Duration, now time.Time) bool {
	return window > 0 && now.Sub(e.lastValidAt) <= window
}

// validate runs a bounded COM_PING probe and records success.
func (e *Entry) validate(ctx context.Context, timeout time.Duration, now time.Time) error {
	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := e.conn.Ping(vctx); err != nil {
		return err
	}
	e.lastValidAt = now
	return nil
}

// markBorrowed records the acquire time and, if threshold is non-zero,
// arms a timer that logs if the entry isn't released before it fires
// (leak detection, grounded on the borrow/leak-handler pattern many
// connection pools use to catch callers that forget to release).
func (e *Entry) markBorrowed(now time.Time, threshold time.Duration, label string) {
	e.borrowedAt = now
	e.lastUsedAt = now
	if threshold <= 0 {
		return
	}
	e.leakTimer = time.AfterFunc(threshold, func() {
		slog.Warn("mysql: pool entry held longer than leak detection threshold",
			"pool", label, "held_for", threshold)
	})
}

// markReleased stops any pending leak-detection timer and updates
// last-used.
func (e *Entry) markReleased(now time.Time) {
	if e.leakTimer != nil {
		e.leakTimer.Stop()
		e.leakTimer = nil
	}
	e.lastUsedAt = now
}
