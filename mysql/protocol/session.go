package protocol

import "fmt"

// State is one node of the session state machine in §4.4.
type State int

const (
	StateInit State = iota
	StateHandshake
	StateAuth
	StateCommandReady
	StateAwaitingResult
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateHandshake:
		return "HANDSHAKE"
	case StateAuth:
		return "AUTH"
	case StateCommandReady:
		return "COMMAND_READY"
	case StateAwaitingResult:
		return "AWAITING_RESULT"
	case StateTerminated:
		return "TERMINATED"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidTransition signals a programmer error: the caller attempted
// to drive the session machine in an order §4.4 does not allow. Per
// spec.md §4.4 ("Any transition violation is a programmer error for the
// caller and must abort the connection"), the connection must be
// considered poisoned once this occurs.
type ErrInvalidTransition struct {
	From  State
	Event string
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("mysql: invalid state transition: %s on event %q", e.From, e.Event)
}

// Session tracks the current state and validates transitions. It holds no
// I/O itself; mysql.Conn drives it alongside the actual packet exchange.
type Session struct {
	state      State
	terminated error
}

// NewSession returns a Session in StateInit.
func NewSession() *Session { return &Session{state: StateInit} }

// State returns the current state.
func (s *Session) State() State { return s.state }

// Err returns the error that caused termination, if any.
func (s *Session) Err() error { return s.terminated }

func (s *Session) transition(want State, from ...State) error {
	for _, f := range from {
		if s.state == f {
			s.state = want
			return nil
		}
	}
	return &ErrInvalidTransition{From: s.state, Event: want.String()}
}

// ReceiveHandshake moves INIT -> HANDSHAKE on receipt of HandshakeV10.
func (s *Session) ReceiveHandshake() error {
	return s.requireOrAbort(s.transition(StateHandshake, StateInit))
}

// BeginAuth moves HANDSHAKE -> AUTH after the (optional SSL upgrade and)
// HandshakeResponse41 has been sent.
func (s *Session) BeginAuth() error {
	return s.requireOrAbort(s.transition(StateAuth, StateHandshake))
}

// ContinueAuth keeps the machine in AUTH across plugin-switch round trips.
func (s *Session) ContinueAuth() error {
	return s.requireOrAbort(s.transition(StateAuth, StateAuth))
}

// CompleteAuth moves AUTH -> COMMAND_READY on a successful OK packet.
func (s *Session) CompleteAuth() error {
	return s.requireOrAbort(s.transition(StateCommandReady, StateAuth))
}

// SendCommand moves COMMAND_READY -> AWAITING_RESULT.
func (s *Session) SendCommand() error {
	return s.requireOrAbort(s.transition(StateAwaitingResult, StateCommandReady))
}

// ResultConsumed moves AWAITING_RESULT -> COMMAND_READY once the full
// reply (OK/ERR or result set through its terminating packet) has been
// read.
func (s *Session) ResultConsumed() error {
	return s.requireOrAbort(s.transition(StateCommandReady, StateAwaitingResult))
}

// Quit moves COMMAND_READY (or INIT, HANDSHAKE, AUTH) -> TERMINATED on
// COM_QUIT / socket close.
func (s *Session) Quit() error {
	err := s.transition(StateTerminated, StateCommandReady, StateInit, StateHandshake, StateAuth)
	if err != nil {
		return s.requireOrAbort(err)
	}
	return nil
}

// Abort forces TERMINATED from any state, recording cause as the reason
// (protocol/io error, cancellation, or an invalid-transition programmer
// error).
func (s *Session) Abort(cause error) {
	s.state = StateTerminated
	s.terminated = cause
}

func (s *Session) requireOrAbort(err error) error {
	if err != nil {
		s.Abort(err)
	}
	return err
}
