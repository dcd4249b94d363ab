package mysql

import "context"

// Tx is a thin convenience wrapper scoping a transaction to a Conn: it
// issues START TRANSACTION on creation and expects the caller to call Commit or
// Rollback exactly once. Conn itself already exposes Commit/Rollback
// directly for callers managing transaction boundaries without this
// wrapper.
type Tx struct {
	conn *Conn
	done bool
}

// Begin issues START TRANSACTION and returns a Tx scoped to c.
func (c *Conn) Begin(ctx context.Context) (*Tx, error) {
	if _, err := c.ExecuteUpdate(ctx, "START TRANSACTION"); err != nil {
		return nil, err
	}
	return &Tx{conn: c}, nil
}

// Commit issues COMMIT, ending the transaction.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.conn.Commit(ctx)
}

// Rollback issues ROLLBACK, ending the transaction.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	return t.conn.Rollback(ctx)
}

// Savepoint creates a named savepoint within the transaction.
func (t *Tx) Savepoint(ctx context.Context, name string) error {
	_, err := t.conn.ExecuteUpdate(ctx, "SAVEPOINT "+quoteIdent(name))
	return err
}

// RollbackTo rolls the transaction back to a previously created
// savepoint without ending it.
func (t *Tx) RollbackTo(ctx context.Context, name string) error {
	_, err := t.conn.ExecuteUpdate(ctx, "ROLLBACK TO SAVEPOINT "+quoteIdent(name))
	return err
}

// ReleaseSavepoint discards a savepoint without rolling back to it.
func (t *Tx) ReleaseSavepoint(ctx context.Context, name string) error {
	_, err := t.conn.ExecuteUpdate(ctx, "RELEASE SAVEPOINT "+quoteIdent(name))
	return err
}

// quoteIdent backtick-quotes a savepoint identifier, doubling any
// embedded backtick per MySQL's identifier-quoting rule.
func quoteIdent(name string) string {
	out := make([]byte, 0, len(name)+2)
	out = append(out, '`')
	for i := 0; i < len(name); i++ {
		if name[i] == '`' {
			out = append(out, '`', '`')
			continue
		}
		out = append(out, name[i])
	}
	out = append(out, '`')
	return string(out)
}
