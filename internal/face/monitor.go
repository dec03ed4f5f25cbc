// Package face polls video frames through a presence classifier and turns the
// detections into debounced presence changes and proctoring events.
package face

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/model"
)

// ErrNoClassifier is returned by a Backend that produced no classifier.
var ErrNoClassifier = errors.New("face classifier not loaded")

// Frame describes the video element at poll time. Only the metadata is needed to
// decide whether a poll is meaningful; pixel access belongs to the classifier.
type Frame struct {
	Attached       bool
	MetadataLoaded bool
	Width          int
	Height         int
	Paused         bool
}

// FrameSource exposes the live preview element.
type FrameSource interface {
	CurrentFrame(ctx context.Context) (Frame, error)
	Resume(ctx context.Context) error
}

// Classifier counts faces in the current frame.
type Classifier interface {
	EstimateFaces(ctx context.Context, f Frame) (int, error)
}

// Backend owns the inference runtime the classifier runs on.
type Backend interface {
	Init(ctx context.Context) error
	Load(ctx context.Context) (Classifier, error)
}

// EventRecorder is the slice of the event log the monitor writes to.
type EventRecorder interface {
	Append(t model.EventType, details map[string]any) model.ProctoringEvent
}

// Hooks are invoked from the monitor goroutine. They must not block.
type Hooks struct {
	OnChange   func(model.FacePresence)
	OnDegraded func(error)
}

// Monitor is started once per session and stopped on every exit path.
type Monitor struct {
	source  FrameSource
	backend Backend
	events  EventRecorder
	policy  RecoveryPolicy
	hooks   Hooks
	log     zerolog.Logger
	now     func() time.Time

	mu                sync.Mutex
	classifier        Classifier
	last              model.FacePresence
	noFaceCount       int
	multipleFaceCount int
	consecutiveErrors int
	lastSuccess       time.Time
	recoveries        int
	degraded          bool
	started           bool
	cancel            context.CancelFunc
	done              chan struct{}
}

// NewMonitor wires a monitor. Nothing runs until Start.
func NewMonitor(source FrameSource, backend Backend, events EventRecorder, policy RecoveryPolicy, hooks Hooks, log zerolog.Logger) *Monitor {
	return &Monitor{
		source:  source,
		backend: backend,
		events:  events,
		policy:  policy,
		hooks:   hooks,
		log:     log.With().Str("component", "face_monitor").Logger(),
		now:     time.Now,
	}
}

// Start loads the classifier and begins polling in its own goroutine. A second
// call is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(runCtx)
}

// Stop halts polling and waits for the goroutine to exit. Safe to call repeatedly,
// and before Start.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.discard()
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	if err := m.reloadWithRetry(ctx); err != nil {
		if ctx.Err() == nil {
			m.degrade(err)
		}
		return
	}

	ticker := time.NewTicker(m.policy.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !m.poll(ctx) {
				continue
			}
			// Polling is paused for the whole recovery; ticks that fire meanwhile are dropped.
			if !m.recover(ctx) {
				return
			}
		}
	}
}

// poll runs one validated inference. It returns true when recovery is due.
func (m *Monitor) poll(ctx context.Context) bool {
	frame, err := m.source.CurrentFrame(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Frame unreadable, skipping poll")
		return false
	}
	if !frame.Attached || !frame.MetadataLoaded || frame.Width == 0 || frame.Height == 0 {
		return false
	}
	if frame.Paused {
		if err := m.source.Resume(ctx); err != nil {
			m.log.Debug().Err(err).Msg("Video resume failed")
		}
		return false
	}

	m.mu.Lock()
	c := m.classifier
	m.mu.Unlock()
	if c == nil {
		return true
	}

	count, err := c.EstimateFaces(ctx, frame)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		m.mu.Lock()
		m.consecutiveErrors++
		n, since := m.consecutiveErrors, m.now().Sub(m.lastSuccess)
		m.mu.Unlock()

		m.log.Debug().Err(err).Int("consecutive", n).Msg("Inference failed")
		return m.policy.ShouldRecover(n, since)
	}

	m.mu.Lock()
	m.consecutiveErrors = 0
	m.lastSuccess = m.now()
	m.mu.Unlock()

	m.observe(model.PresenceFromCount(count), count)
	return false
}

// observe records a presence change. Repeats of the current state are dropped,
// so counters move only on transitions.
func (m *Monitor) observe(state model.FacePresence, count int) {
	m.mu.Lock()
	if state == m.last {
		m.mu.Unlock()
		return
	}
	prev := m.last
	m.last = state
	switch state {
	case model.FacePresenceNone:
		m.noFaceCount++
	case model.FacePresenceMultiple:
		m.multipleFaceCount++
	}
	m.mu.Unlock()

	switch state {
	case model.FacePresenceNone:
		m.events.Append(model.EventNoFace, map[string]any{"previous": string(prev)})
	case model.FacePresenceMultiple:
		m.events.Append(model.EventMultipleFaces, map[string]any{"count": count, "previous": string(prev)})
	}

	m.log.Debug().Str("from", string(prev)).Str("to", string(state)).Msg("Presence changed")
	if m.hooks.OnChange != nil {
		m.hooks.OnChange(state)
	}
}

// recover discards the classifier, reinitialises the backend and reloads. One
// retry is made after the longer delay before the monitor degrades.
func (m *Monitor) recover(ctx context.Context) bool {
	m.mu.Lock()
	m.recoveries++
	attempt := m.recoveries
	m.mu.Unlock()

	m.log.Warn().Int("recovery", attempt).Msg("Classifier stalled, reinitialising")
	m.discard()

	if err := m.reloadWithRetry(ctx); err != nil {
		if ctx.Err() == nil {
			m.degrade(err)
		}
		return false
	}
	m.events.Append(model.EventFaceMonitorRecovered, map[string]any{"recovery": attempt})
	return true
}

func (m *Monitor) reloadWithRetry(ctx context.Context) error {
	if err := sleep(ctx, m.policy.RecoveryDelay); err != nil {
		return err
	}
	err := m.reload(ctx)
	if err == nil {
		return nil
	}
	m.log.Warn().Err(err).Dur("retry_in", m.policy.RetryDelay).Msg("Classifier load failed")

	if err := sleep(ctx, m.policy.RetryDelay); err != nil {
		return err
	}
	return m.reload(ctx)
}

func (m *Monitor) reload(ctx context.Context) error {
	if err := m.backend.Init(ctx); err != nil {
		return err
	}
	c, err := m.backend.Load(ctx)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrNoClassifier
	}

	m.mu.Lock()
	m.classifier = c
	m.consecutiveErrors = 0
	m.lastSuccess = m.now()
	m.mu.Unlock()
	return nil
}

func (m *Monitor) discard() {
	m.mu.Lock()
	c := m.classifier
	m.classifier = nil
	m.mu.Unlock()

	if closer, ok := c.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			m.log.Debug().Err(err).Msg("Classifier close failed")
		}
	}
}

func (m *Monitor) degrade(err error) {
	m.mu.Lock()
	m.degraded = true
	m.mu.Unlock()

	m.log.Error().Err(err).Msg("Face monitoring disabled for the rest of the session")
	m.events.Append(model.EventFaceMonitorDegraded, map[string]any{"error": err.Error()})
	if m.hooks.OnDegraded != nil {
		m.hooks.OnDegraded(err)
	}
}

// State returns the last observed presence.
func (m *Monitor) State() model.FacePresence {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Counts returns the transition counters (no face, multiple faces).
func (m *Monitor) Counts() (noFace, multiple int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.noFaceCount, m.multipleFaceCount
}

// Recoveries returns how many times the recovery routine ran.
func (m *Monitor) Recoveries() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recoveries
}

// Degraded reports whether monitoring gave up.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
