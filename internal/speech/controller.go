// Package speech keeps continuous speech capture alive across engine hiccups and
// accumulates the final transcript of one answer.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrPermissionDenied is terminal for the session.
	ErrPermissionDenied = errors.New("speech recognition permission denied")
	// ErrAlreadyStarted is returned by engines asked to start while running.
	ErrAlreadyStarted = errors.New("speech recognition already started")
	// ErrUnavailable means the platform has no recognition engine.
	ErrUnavailable = errors.New("speech recognition unavailable")
)

// DefaultRestartDelay is the pause before restarting an engine that ended on its own.
const DefaultRestartDelay = 250 * time.Millisecond

// Handler receives engine callbacks.
type Handler interface {
	OnTranscript(text string, final bool)
	OnEnd()
	OnError(err error)
}

// Engine is a continuous recognizer that may end spontaneously after silence.
type Engine interface {
	Start(ctx context.Context, h Handler) error
	Stop() error
}

// Hooks surface progress to the caller. They are called without locks held.
type Hooks struct {
	// OnUpdate receives the accumulated final transcript and the pending interim text.
	OnUpdate func(transcript, interim string)
	// OnFatal fires once when capture cannot continue for the rest of the session.
	OnFatal func(error)
}

// Controller drives one Engine. The intent flag decides whether an engine end is a
// hiccup to paper over or the result of a deliberate Stop.
type Controller struct {
	engine       Engine
	restartDelay time.Duration
	hooks        Hooks
	log          zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	wanted bool
	fatal  error
	gen    int
	// restarting is closed when the in-flight automatic restart returns.
	restarting chan struct{}
	finals     []string
	interim    string
	restarts   int
	timer      *time.Timer
}

// NewController wraps engine. A non-positive delay selects DefaultRestartDelay.
func NewController(engine Engine, restartDelay time.Duration, hooks Hooks, log zerolog.Logger) *Controller {
	if restartDelay <= 0 {
		restartDelay = DefaultRestartDelay
	}
	return &Controller{
		engine:       engine,
		restartDelay: restartDelay,
		hooks:        hooks,
		log:          log.With().Str("component", "speech").Logger(),
	}
}

// Start begins capturing a new answer, discarding any previous transcript.
func (c *Controller) Start(ctx context.Context) error {
	c.awaitRestart()

	c.mu.Lock()
	if c.fatal != nil {
		err := c.fatal
		c.mu.Unlock()
		return err
	}
	c.gen++
	c.ctx = ctx
	c.wanted = true
	c.finals = nil
	c.interim = ""
	h := &handler{c: c, gen: c.gen}
	c.mu.Unlock()

	err := c.startEngine(ctx, h)
	if err != nil {
		c.mu.Lock()
		if h.gen == c.gen {
			c.wanted = false
		}
		c.mu.Unlock()
	}
	return err
}

func (c *Controller) startEngine(ctx context.Context, h *handler) error {
	err := c.engine.Start(ctx, h)
	switch {
	case err == nil, errors.Is(err, ErrAlreadyStarted):
		return nil
	case errors.Is(err, ErrPermissionDenied):
		c.fail(err)
		return err
	default:
		return err
	}
}

// Stop ends capture and hands over the accumulated final transcript, leaving the
// buffer empty. Interim text that never became final is dropped. An automatic
// restart already talking to the engine is waited for, so the engine is stopped
// after it and never left running.
func (c *Controller) Stop() string {
	c.mu.Lock()
	c.wanted = false
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.awaitRestart()
	if err := c.engine.Stop(); err != nil {
		c.log.Debug().Err(err).Msg("Engine stop failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	transcript := c.transcriptLocked()
	c.finals = nil
	c.interim = ""
	return transcript
}

// Transcript returns the final text accumulated so far.
func (c *Controller) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcriptLocked()
}

// Interim returns the pending, not yet final, text.
func (c *Controller) Interim() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.interim
}

// Restarts counts automatic restarts after spontaneous engine ends.
func (c *Controller) Restarts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.restarts
}

// Capturing reports whether the controller intends to be listening.
func (c *Controller) Capturing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wanted
}

func (c *Controller) awaitRestart() {
	c.mu.Lock()
	pending := c.restarting
	c.mu.Unlock()
	if pending != nil {
		<-pending
	}
}

func (c *Controller) transcriptLocked() string {
	return strings.TrimSpace(strings.Join(c.finals, " "))
}

func (c *Controller) fail(err error) {
	c.mu.Lock()
	if c.fatal != nil {
		c.mu.Unlock()
		return
	}
	c.fatal = err
	c.wanted = false
	c.mu.Unlock()

	c.log.Error().Err(err).Msg("Speech capture disabled")
	if c.hooks.OnFatal != nil {
		c.hooks.OnFatal(err)
	}
}

// handler binds engine callbacks to the capture generation that started them, so
// a late callback from a previous answer cannot leak into the current one.
type handler struct {
	c   *Controller
	gen int
}

func (h *handler) OnTranscript(text string, final bool) {
	c := h.c
	c.mu.Lock()
	if h.gen != c.gen {
		c.mu.Unlock()
		return
	}
	if final {
		if t := strings.TrimSpace(text); t != "" {
			c.finals = append(c.finals, t)
		}
		c.interim = ""
	} else {
		c.interim = text
	}
	transcript, interim := c.transcriptLocked(), c.interim
	c.mu.Unlock()

	if c.hooks.OnUpdate != nil {
		c.hooks.OnUpdate(transcript, interim)
	}
}

func (h *handler) OnEnd() {
	c := h.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.gen != c.gen || !c.wanted || c.fatal != nil {
		return
	}
	c.restarts++
	ctx := c.ctx
	c.timer = time.AfterFunc(c.restartDelay, func() { h.restart(ctx) })
}

// restart makes the single restart attempt for a spontaneous end. An engine that
// cannot be restarted disables capture for the rest of the session.
func (h *handler) restart(ctx context.Context) {
	c := h.c
	c.mu.Lock()
	if h.gen != c.gen || !c.wanted || c.fatal != nil || c.restarting != nil {
		c.mu.Unlock()
		return
	}
	done := make(chan struct{})
	c.restarting = done
	c.mu.Unlock()

	err := c.startEngine(ctx, h)

	c.mu.Lock()
	current := h.gen == c.gen && c.wanted
	c.restarting = nil
	close(done)
	c.mu.Unlock()

	if err == nil || errors.Is(err, ErrPermissionDenied) || !current {
		return
	}
	c.log.Warn().Err(err).Msg("Speech restart failed")
	c.fail(fmt.Errorf("%w: restart failed: %v", ErrUnavailable, err))
}

func (h *handler) OnError(err error) {
	if errors.Is(err, ErrPermissionDenied) {
		h.c.fail(err)
		return
	}
	// Transient errors are followed by an end event, which drives the restart.
	h.c.log.Debug().Err(err).Msg("Engine error")
}
