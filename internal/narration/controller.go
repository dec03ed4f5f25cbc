// Package narration sequences synthesized-speech prompts and reports when each one
// has finished playing.
package narration

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Options configures one utterance. OnStart and OnEnd may be called from any goroutine.
type Options struct {
	Rate    float64
	Pitch   float64
	Volume  float64
	OnStart func()
	OnEnd   func()
}

// Engine is a single-flight speech synthesizer: Speak implicitly cancels whatever
// is playing.
type Engine interface {
	Speak(text string, opts Options)
	Cancel()
}

// Voice holds the playback parameters applied to every utterance.
type Voice struct {
	Rate   float64
	Pitch  float64
	Volume float64
}

// DefaultVoice is slightly slower than normal speech.
func DefaultVoice() Voice {
	return Voice{Rate: 0.95, Pitch: 1, Volume: 1}
}

// Intro renders the fixed introduction read before the first question.
func Intro(candidate, topic string, questions int) string {
	greeting := "Hello"
	if candidate != "" {
		greeting = "Hello " + candidate
	}
	return fmt.Sprintf(
		"%s, and welcome to your %s interview. I will ask you %d questions. "+
			"After each question, answer out loud, and press stop when you are done. "+
			"Please keep your face visible to the camera and stay on this screen until the interview ends. "+
			"Let's begin.",
		greeting, topic, questions)
}

// Controller tags every utterance with a sequence number. Only the end of the
// current utterance is reported; ends of superseded or cancelled ones are dropped.
type Controller struct {
	engine Engine
	voice  Voice
	log    zerolog.Logger

	mu     sync.Mutex
	seq    uint64
	active uint64
}

func NewController(engine Engine, voice Voice, log zerolog.Logger) *Controller {
	return &Controller{
		engine: engine,
		voice:  voice,
		log:    log.With().Str("component", "narration").Logger(),
	}
}

// Say starts narrating text and returns its sequence number. onEnd runs once when
// this utterance, and not a later one, completes.
func (c *Controller) Say(text string, onEnd func(seq uint64)) uint64 {
	c.mu.Lock()
	c.seq++
	id := c.seq
	c.active = id
	c.mu.Unlock()

	c.log.Debug().Uint64("seq", id).Int("chars", len(text)).Msg("Narrating")
	c.engine.Speak(text, Options{
		Rate:   c.voice.Rate,
		Pitch:  c.voice.Pitch,
		Volume: c.voice.Volume,
		OnEnd: func() {
			c.mu.Lock()
			current := c.active == id
			if current {
				c.active = 0
			}
			c.mu.Unlock()

			if !current {
				c.log.Debug().Uint64("seq", id).Msg("Dropping end of superseded narration")
				return
			}
			if onEnd != nil {
				onEnd(id)
			}
		},
	})
	return id
}

// Cancel stops playback, best-effort. It reports whether an utterance was in flight.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	inFlight := c.active != 0
	c.active = 0
	c.mu.Unlock()

	c.engine.Cancel()
	return inFlight
}

// Speaking reports whether an utterance is in flight.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != 0
}
