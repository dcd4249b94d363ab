package mysql

import (
	"context"
	"errors"
	"time"

	"github.com/takapi327/ldbc/mysql/command"
)

// Stmt is a server-side prepared statement owned by exactly one Conn. After
// Stmt.Close every method returns ErrStatementClosed; once the owning Conn
// is closed, ExecuteQuery, ExecuteUpdate and ExecuteBatch return
// ErrConnectionClosed.
type Stmt struct {
	conn   *Conn
	ps     *command.PreparedStatement
	closed bool
}

// NumParams reports how many placeholders the statement expects.
func (s *Stmt) NumParams() int { return int(s.ps.NumParams) }

// ExecuteQuery binds params and runs COM_STMT_EXECUTE, returning the
// decoded binary result set.
func (s *Stmt) ExecuteQuery(ctx context.Context, params ...any) (*command.ExecuteResult, error) {
	if s.closed {
		return nil, ErrStatementClosed
	}
	if err := s.conn.guardOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	if err := s.conn.session.SendCommand(); err != nil {
		s.conn.poison()
		return nil, s.conn.trace("stmt_execute", "", start, &ProtocolError{Detail: "sending execute", Err: err})
	}
	res, err := command.Execute(s.conn.wc, s.conn.caps, s.ps, params, true, s.conn.cfg.ZeroDateBehavior)
	if cerr := s.conn.afterCommand(err); cerr != nil {
		return nil, s.conn.trace("stmt_execute", "", start, cerr)
	}
	return res, s.conn.trace("stmt_execute", "", start, err)
}

// ExecuteUpdate is ExecuteQuery for statements expected to return an OK,
// returning the affected row count.
func (s *Stmt) ExecuteUpdate(ctx context.Context, params ...any) (uint64, error) {
	res, err := s.ExecuteQuery(ctx, params...)
	if err != nil {
		return 0, err
	}
	if res.OK == nil {
		return 0, &ProtocolError{Detail: "executeUpdate: statement returned a result set"}
	}
	return res.OK.AffectedRows, nil
}

// ExecuteBatch runs the statement once per entry of paramSets, reusing
// the new-params-bound optimization across the batch (§4.5).
func (s *Stmt) ExecuteBatch(ctx context.Context, paramSets [][]any) (*command.BatchResult, error) {
	if s.closed {
		return nil, ErrStatementClosed
	}
	if err := s.conn.guardOpen(); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := command.ExecuteBatch(s.conn.wc, s.conn.caps, s.ps, paramSets, s.conn.cfg.ZeroDateBehavior)
	if err != nil {
		var se *command.ServerError
		if !errors.As(err, &se) {
			s.conn.poison()
		}
	}
	return res, s.conn.trace("stmt_execute_batch", "", start, err)
}

// SendLongData streams a chunk of a parameter's value ahead of Execute,
// for parameters too large to bind inline.
func (s *Stmt) SendLongData(paramIndex int, chunk []byte) error {
	if s.closed {
		return ErrStatementClosed
	}
	return command.SendLongData(s.conn.wc, s.ps, uint16(paramIndex), chunk)
}

// Reset clears any buffered long data and cursor state while keeping the
// statement handle valid (COM_STMT_RESET).
func (s *Stmt) Reset(ctx context.Context) error {
	if s.closed {
		return ErrStatementClosed
	}
	return command.ResetStatement(s.conn.wc, s.conn.caps, s.ps)
}

// Close sends COM_STMT_CLOSE, deallocating the server-side handle. Safe
// to call more than once.
func (s *Stmt) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return command.CloseStatement(s.conn.wc, s.ps)
}

// SimpleStatement is the unprepared counterpart to Stmt: it runs
// text-protocol queries through its owning Conn without ever issuing
// COM_STMT_PREPARE, for callers that never want server-side preparation
// (createStatement in §4.7's terms).
type SimpleStatement struct {
	conn *Conn
}

// ExecuteQuery runs sql as a text-protocol COM_QUERY.
func (s *SimpleStatement) ExecuteQuery(ctx context.Context, sql string) (*command.QueryResult, error) {
	return s.conn.ExecuteQuery(ctx, sql)
}

// ExecuteUpdate runs sql expecting an OK reply, returning affected rows.
func (s *SimpleStatement) ExecuteUpdate(ctx context.Context, sql string) (uint64, error) {
	return s.conn.ExecuteUpdate(ctx, sql)
}
