package mysql

import (
	"context"
	"fmt"

	"github.com/takapi327/ldbc/mysql/pool"
)

// NewPool builds a §4.8 connection pool whose entries are *Conn dialed
// against cfg. label identifies the pool in logs and metrics (typically
// cfg.Addr() plus the schema).
func NewPool(label string, cfg Config, observer Observer, poolCfg pool.Config, metrics *pool.Metrics) (*pool.Pool, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dial := func(ctx context.Context) (pool.Conn, error) {
		conn, err := Dial(ctx, cfg, observer)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	p, err := pool.New(label, dial, poolCfg, metrics)
	if err != nil {
		return nil, fmt.Errorf("ldbc: pool %s: %w", label, err)
	}
	return p, nil
}

// Borrow acquires an entry from p and returns it as a *Conn, ready for
// use through the Connection Handle methods (§4.7). Callers must call
// Release exactly once when done, typically via a deferred call.
func Borrow(ctx context.Context, p *pool.Pool) (*Conn, *pool.Entry, error) {
	entry, err := p.Acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	conn, ok := entry.Conn().(*Conn)
	if !ok {
		return nil, nil, fmt.Errorf("ldbc: pool: entry holds a %T, not *mysql.Conn", entry.Conn())
	}
	return conn, entry, nil
}

// Use acquires an entry from p, runs fn with its *Conn, and releases the
// entry afterward regardless of fn's outcome — the §4.7 contract expects
// Release to run even when fn returns an error or poisons the connection.
func Use(ctx context.Context, p *pool.Pool, fn func(*Conn) error) error {
	return p.Use(ctx, func(c pool.Conn) error {
		conn, ok := c.(*Conn)
		if !ok {
			return fmt.Errorf("ldbc: pool: entry holds a %T, not *mysql.Conn", c)
		}
		return fn(conn)
	})
}
