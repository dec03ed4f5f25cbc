// Package eventlog holds the append-only, ordered record of everything that
// happened in an interview room. Every subsystem writes here; the submission
// payload and the violation tracker read from here.
package eventlog

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/model"
)

// Log is safe for concurrent use. Appends are linearized by a single mutex, so
// the resulting order is the order in which Append calls acquired it.
type Log struct {
	mu     sync.Mutex
	events []model.ProctoringEvent
	now    func() time.Time
	log    zerolog.Logger
}

// Option customises a Log.
type Option func(*Log)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) { l.now = now }
}

// New creates an empty Log.
func New(log zerolog.Logger, opts ...Option) *Log {
	l := &Log{
		now: time.Now,
		log: log.With().Str("component", "event_log").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an event with its type's default severity.
func (l *Log) Append(t model.EventType, details map[string]any) model.ProctoringEvent {
	return l.AppendWithSeverity(t, t.DefaultSeverity(), details)
}

// AppendWithSeverity records an event with an explicit severity.
func (l *Log) AppendWithSeverity(t model.EventType, sev model.Severity, details map[string]any) model.ProctoringEvent {
	l.mu.Lock()
	evt := model.ProctoringEvent{
		Type:      t,
		Timestamp: l.now(),
		Severity:  sev,
		Details:   details,
	}
	l.events = append(l.events, evt)
	n := len(l.events)
	l.mu.Unlock()

	l.log.Debug().
		Str("type", string(t)).
		Str("severity", string(sev)).
		Int("seq", n).
		Msg("Event appended")
	return evt
}

// Events returns a copy of the log in append order.
func (l *Log) Events() []model.ProctoringEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]model.ProctoringEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Len returns the number of recorded events.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// Reset drops every event. Only a brand-new session may call it.
func (l *Log) Reset() {
	l.mu.Lock()
	l.events = nil
	l.mu.Unlock()
}
