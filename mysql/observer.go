package mysql

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
)

// Observer is notified of command outcomes. Implementations must return
// quickly; Conn calls Observer methods synchronously on the calling
// goroutine after each command completes.
type Observer interface {
	// OnSuccess is called after a command completes without error.
	OnSuccess(op, table string, dur time.Duration)
	// OnExecFailure is called when the server returned an ERR packet.
	OnExecFailure(op, table string, dur time.Duration, err error)
	// OnProcessingFailure is called when a local error (protocol
	// violation, type mismatch, context cancellation) prevented the
	// command from completing.
	OnProcessingFailure(op, table string, dur time.Duration, err error)
}

// AttributesFor builds the OpenTelemetry span/event attributes the
// observability surface enumerates for a command: the operation name and
// the table it targeted, when known.
func AttributesFor(op, table string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String("db.operation", op)}
	if table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", table))
	}
	return attrs
}

// slogObserver is the default Observer: structured logging via log/slog,
// matching the teacher's "log everything that touches the wire" habit
// without any dashboard or dependency beyond the standard library.
type slogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver returns an Observer that logs through logger. A nil
// logger uses slog.Default().
func NewSlogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &slogObserver{logger: logger}
}

func (o *slogObserver) OnSuccess(op, table string, dur time.Duration) {
	o.logger.Debug("ldbc: command succeeded", "op", op, "table", table, "duration", dur)
}

func (o *slogObserver) OnExecFailure(op, table string, dur time.Duration, err error) {
	o.logger.Warn("ldbc: command failed on server", "op", op, "table", table, "duration", dur, "err", err)
}

func (o *slogObserver) OnProcessingFailure(op, table string, dur time.Duration, err error) {
	o.logger.Error("ldbc: command failed locally", "op", op, "table", table, "duration", dur, "err", err)
}

// noopObserver discards every event; used when a Conn is constructed
// without an explicit Observer.
type noopObserver struct{}

func (noopObserver) OnSuccess(string, string, time.Duration)                {}
func (noopObserver) OnExecFailure(string, string, time.Duration, error)     {}
func (noopObserver) OnProcessingFailure(string, string, time.Duration, error) {}
