package mysql

import (
	"errors"
	"fmt"
	"time"

	"github.com/takapi327/ldbc/mysql/command"
	"github.com/takapi327/ldbc/mysql/pool"
	"github.com/takapi327/ldbc/mysql/resultset"
)

// ConfigError reports an invalid Config at construction time (bad DSN,
// out-of-range timeout, unknown ssl mode).
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("ldbc: config: %s: %s", e.Field, e.Reason)
}

// ConnectError wraps a TCP dial failure.
type ConnectError struct {
	Addr string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ldbc: connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// TlsError wraps a failure to establish the TLS upgrade during the
// SSLRequest dance.
type TlsError struct {
	Err error
}

func (e *TlsError) Error() string {
	return fmt.Sprintf("ldbc: tls: %v", e.Err)
}

func (e *TlsError) Unwrap() error { return e.Err }

// ProtocolError reports a malformed or out-of-order packet. During a
// command it poisons the connection — see Conn.poisoned — except the one
// ExecuteUpdate returns when the statement produced a result set, whose
// reply was read in full.
type ProtocolError struct {
	Detail string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ldbc: protocol: %s: %v", e.Detail, e.Err)
	}
	return fmt.Sprintf("ldbc: protocol: %s", e.Detail)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// AuthenticationError reports wrong credentials, an unsupported plugin,
// or a public key unavailable without TLS.
type AuthenticationError struct {
	Reason string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ldbc: authentication: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("ldbc: authentication: %s", e.Reason)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// ServerError re-exports command.ServerError: a MySQL ERR packet
// (code, sqlstate, message).
type ServerError = command.ServerError

// TypeMismatchError re-exports resultset.ErrTypeMismatch: a decoder was
// asked to produce a Go type incompatible with the column's wire type.
type TypeMismatchError = resultset.ErrTypeMismatch

var (
	// ErrStatementClosed is returned by Stmt methods after Close.
	ErrStatementClosed = errors.New("ldbc: statement is closed")
	// ErrConnectionClosed is returned by Conn methods after Close.
	ErrConnectionClosed = errors.New("ldbc: connection is closed")
	// ErrValidationFailed names a failed COM_PING validation probe. Conn.Ping
	// returns the probe's own error and the pool retires the entry, so no
	// function in this module returns this value.
	ErrValidationFailed = errors.New("ldbc: connection validation failed")
	// ErrCancelled names a command abandoned because the caller's context
	// was cancelled. Conn methods do not watch their context for
	// cancellation (Ping only bounds its socket timeouts by the context's
	// deadline), so no function in this module returns this value.
	ErrCancelled = errors.New("ldbc: operation cancelled")

	// ErrPoolClosed re-exports pool.ErrPoolClosed for callers that only
	// import the top-level package.
	ErrPoolClosed = pool.ErrPoolClosed
)

// AcquireTimeoutError re-exports pool.AcquireTimeoutError.
type AcquireTimeoutError = pool.AcquireTimeoutError

// TimeoutError reports a deadline exceeded during a named phase of the
// connection lifecycle (dial, tls, handshake, auth, read, write).
type TimeoutError struct {
	Phase   string
	Elapsed time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("ldbc: timeout during %s after %s", e.Phase, e.Elapsed)
}
