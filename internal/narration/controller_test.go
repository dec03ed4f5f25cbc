package narration

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type utterance struct {
	text string
	opts Options
}

type fakeEngine struct {
	spoken  []utterance
	cancels int
}

func (e *fakeEngine) Speak(text string, opts Options) {
	e.spoken = append(e.spoken, utterance{text: text, opts: opts})
}

func (e *fakeEngine) Cancel() { e.cancels++ }

func (e *fakeEngine) finish(i int) { e.spoken[i].opts.OnEnd() }

func TestController_SayReportsEnd(t *testing.T) {
	e := &fakeEngine{}
	c := NewController(e, DefaultVoice(), zerolog.Nop())

	var ended []uint64
	seq := c.Say("What is a goroutine?", func(s uint64) { ended = append(ended, s) })

	require.Len(t, e.spoken, 1)
	assert.Equal(t, 0.95, e.spoken[0].opts.Rate)
	assert.True(t, c.Speaking())

	e.finish(0)
	assert.Equal(t, []uint64{seq}, ended)
	assert.False(t, c.Speaking())

	// A repeated end callback is not reported twice.
	e.finish(0)
	assert.Len(t, ended, 1)
}

func TestController_SupersededEndIsDropped(t *testing.T) {
	e := &fakeEngine{}
	c := NewController(e, DefaultVoice(), zerolog.Nop())

	var ended []uint64
	record := func(s uint64) { ended = append(ended, s) }
	c.Say("first", record)
	second := c.Say("second", record)

	e.finish(0)
	assert.Empty(t, ended)
	e.finish(1)
	assert.Equal(t, []uint64{second}, ended)
}

func TestController_CancelDropsPendingEnd(t *testing.T) {
	e := &fakeEngine{}
	c := NewController(e, DefaultVoice(), zerolog.Nop())

	called := false
	c.Say("intro", func(uint64) { called = true })

	assert.True(t, c.Cancel())
	assert.Equal(t, 1, e.cancels)
	e.finish(0)
	assert.False(t, called)

	assert.False(t, c.Cancel())
	assert.Equal(t, 2, e.cancels)
}

func TestIntro(t *testing.T) {
	assert.Contains(t, Intro("Ada", "Go", 5), "Hello Ada, and welcome to your Go interview. I will ask you 5 questions.")
	assert.Contains(t, Intro("", "SQL", 3), "Hello, and welcome to your SQL interview.")
}
