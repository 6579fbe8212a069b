package security

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// Event is one audit record for a security-relevant decision.
type Event struct {
	Time       time.Time
	Severity   string
	Operation  string
	ElementRef string
	Code       string
	Detail     string
}

// EventSink persists audit events. internal/db provides the SQLite-backed
// implementation.
type EventSink interface {
	InsertEvent(ev Event) error
}

// Auditor emits one structured audit event per security-relevant decision:
// to the logger always, and to the sink when one is configured. Recording is
// a side effect with no return value; a failing sink increments a counter
// instead of blocking or failing the primary operation.
type Auditor struct {
	logger  *slog.Logger
	sink    EventSink
	dropped atomic.Uint64
}

// NewAuditor creates an Auditor. A nil logger falls back to slog.Default();
// a nil sink disables persistence but keeps structured logging.
func NewAuditor(logger *slog.Logger, sink EventSink) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Auditor{logger: logger, sink: sink}
}

// Record emits the event. Never silent: every call produces at least the log
// line, and sink failures are observable via DroppedEvents.
func (a *Auditor) Record(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	a.logger.Info("security audit",
		slog.String("severity", ev.Severity),
		slog.String("operation", ev.Operation),
		slog.String("element", ev.ElementRef),
		slog.String("code", ev.Code),
		slog.String("detail", ev.Detail),
	)

	if a.sink == nil {
		return
	}
	if err := a.sink.InsertEvent(ev); err != nil {
		a.dropped.Add(1)
		a.logger.Warn("audit sink write failed", slog.String("error", err.Error()))
	}
}

// DroppedEvents returns how many events failed to persist to the sink.
func (a *Auditor) DroppedEvents() uint64 {
	return a.dropped.Load()
}
