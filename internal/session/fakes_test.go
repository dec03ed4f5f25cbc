package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/media"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/speech"
	"github.com/stretchr/testify/require"
)

// trace records the relative order of calls across fakes.
type trace struct {
	mu    sync.Mutex
	steps []string
}

func (t *trace) add(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, fmt.Sprintf(format, args...))
}

func (t *trace) Steps() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.steps...)
}

type fakeQuestions struct {
	questions []string
	err       error
}

func (q *fakeQuestions) GetQuestions(_ context.Context, _, _ string, count int) ([]string, error) {
	if q.err != nil {
		return nil, q.err
	}
	return q.questions[:min(count, len(q.questions))], nil
}

type fakeBackend struct {
	trace     *trace
	saveDelay time.Duration
	startErr  error
	saveErr   error
	submitErr error

	mu          sync.Mutex
	saved       []model.AnswerRecord
	submissions []model.SubmissionPayload
	chunks      int
}

func (b *fakeBackend) StartInterview(context.Context, string, string, string) (string, error) {
	if b.startErr != nil {
		return "", b.startErr
	}
	return "11111111-1111-1111-1111-111111111111", nil
}

func (b *fakeBackend) SaveQuestionAnswer(_ context.Context, _ string, a model.AnswerRecord) error {
	time.Sleep(b.saveDelay)
	b.trace.add("save:%d", a.QuestionIndex)
	if b.saveErr != nil {
		return b.saveErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, a)
	return nil
}

func (b *fakeBackend) UploadMediaChunk(context.Context, string, []byte, int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks++
	return nil
}

func (b *fakeBackend) SubmitInterview(_ context.Context, p model.SubmissionPayload) (model.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, p)
	if b.submitErr != nil {
		return model.SubmitResult{}, b.submitErr
	}
	return model.SubmitResult{Success: true, ReportID: "report-1"}, nil
}

func (b *fakeBackend) Submissions() []model.SubmissionPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.SubmissionPayload(nil), b.submissions...)
}

type fakeFallback struct {
	mu      sync.Mutex
	answers []model.AnswerRecord
	events  []model.ProctoringEvent
}

func (f *fakeFallback) SaveAnswer(_ context.Context, _ string, a model.AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, a)
	return nil
}

func (f *fakeFallback) SaveEvents(_ context.Context, _ string, events []model.ProctoringEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = events
	return nil
}

// fakeNarrator finishes every utterance right away unless manual is set.
type fakeNarrator struct {
	trace  *trace
	manual bool

	mu      sync.Mutex
	pending []narration.Options
	cancels int
}

func (n *fakeNarrator) Speak(text string, opts narration.Options) {
	n.trace.add("speak:%s", text)
	if n.manual {
		n.mu.Lock()
		n.pending = append(n.pending, opts)
		n.mu.Unlock()
		return
	}
	go opts.OnEnd()
}

func (n *fakeNarrator) Cancel() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancels++
}

// fakeRecognizer emits the next scripted answer as a final result on every Start.
type fakeRecognizer struct {
	mu       sync.Mutex
	script   []string
	handler  speech.Handler
	startErr error
	// firstErr fails only the first start.
	firstErr error
	starts   int
	// gate, when set, holds every start until it is closed.
	gate      chan struct{}
	entered   chan struct{}
	enterOnce sync.Once
}

func (r *fakeRecognizer) Start(_ context.Context, h speech.Handler) error {
	if r.gate != nil {
		r.enterOnce.Do(func() { close(r.entered) })
		<-r.gate
	}
	r.mu.Lock()
	r.starts++
	r.handler = h
	if r.startErr != nil {
		r.mu.Unlock()
		return r.startErr
	}
	if r.starts == 1 && r.firstErr != nil {
		r.mu.Unlock()
		return r.firstErr
	}
	var next string
	if len(r.script) > 0 {
		next, r.script = r.script[0], r.script[1:]
	}
	r.mu.Unlock()

	if next != "" {
		h.OnTranscript(next, true)
	}
	return nil
}

func (r *fakeRecognizer) Stop() error { return nil }

type fakeTrack struct {
	mu    sync.Mutex
	kind  media.TrackKind
	stops int
}

func (t *fakeTrack) Kind() media.TrackKind { return t.kind }

func (t *fakeTrack) Live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops == 0
}

func (t *fakeTrack) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
}

type fakeStream struct {
	id     string
	tracks []*fakeTrack
}

func (s *fakeStream) ID() string { return s.id }

func (s *fakeStream) Tracks() []media.Track {
	out := make([]media.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

type fakeDevice struct {
	err error

	mu      sync.Mutex
	streams []*fakeStream
}

func (d *fakeDevice) Acquire(context.Context) (media.Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &fakeStream{
		id:     fmt.Sprintf("stream-%d", len(d.streams)),
		tracks: []*fakeTrack{{kind: media.TrackAudio}, {kind: media.TrackVideo}},
	}
	d.streams = append(d.streams, s)
	return s, nil
}

type fakeRecorder struct {
	mu      sync.Mutex
	onChunk func([]byte)
	stops   int
}

func (r *fakeRecorder) Start(_ context.Context, _ media.View, _ time.Duration, onChunk func([]byte)) error {
	r.mu.Lock()
	r.onChunk = onChunk
	r.mu.Unlock()
	onChunk([]byte("webm"))
	return nil
}

func (r *fakeRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

type fakeLock struct {
	mu      sync.Mutex
	enters  int
	exits   int
	keyLock int
}

func (l *fakeLock) Enter(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enters++
	return nil
}

func (l *fakeLock) Exit(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.exits++
	return nil
}

func (l *fakeLock) LockKeyboard(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keyLock++
	return nil
}

func (l *fakeLock) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enters, l.exits
}

var errBackendDown = errors.New("backend unreachable")

type room struct {
	o          *Orchestrator
	trace      *trace
	backend    *fakeBackend
	fallback   *fakeFallback
	narrator   *fakeNarrator
	recognizer *fakeRecognizer
	device     *fakeDevice
	recorder   *fakeRecorder
	lock       *fakeLock

	statesMu sync.Mutex
	states   []model.SessionState
}

func (r *room) States() []model.SessionState {
	r.statesMu.Lock()
	defer r.statesMu.Unlock()
	return append([]model.SessionState(nil), r.states...)
}

type roomOption func(*room, *Options, *Deps)

func newRoom(t *testing.T, opts ...roomOption) *room {
	t.Helper()

	tr := &trace{}
	r := &room{
		trace:      tr,
		backend:    &fakeBackend{trace: tr},
		fallback:   &fakeFallback{},
		narrator:   &fakeNarrator{trace: tr},
		recognizer: &fakeRecognizer{script: []string{"first answer", "second answer", "third answer"}},
		device:     &fakeDevice{},
		recorder:   &fakeRecorder{},
		lock:       &fakeLock{},
	}

	o := Options{
		SessionID:     "session-1",
		CandidateName: "Ada",
		Topic:         "Go",
		Difficulty:    "medium",
		QuestionCount: 3,
		Reported:      model.Capabilities{HasSpeechRecognition: true, HasFaceDetection: true, HasKeyboardLock: true},
		Timing: Timing{
			Tick:               time.Hour,
			SaveTimeout:        time.Second,
			SubmitTimeout:      time.Second,
			ReleaseTimeout:     time.Second,
			SpeechRestartDelay: time.Millisecond,
			ChunkInterval:      time.Millisecond,
			UploadTimeout:      time.Second,
		},
	}
	d := Deps{
		Questions:   &fakeQuestions{questions: []string{"Q1?", "Q2?", "Q3?"}},
		Backend:     r.backend,
		Fallback:    r.fallback,
		Narrator:    r.narrator,
		Recognizer:  r.recognizer,
		MediaDevice: r.device,
		Recorder:    r.recorder,
		Lock:        r.lock,
		Log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r, &o, &d)
	}
	d.Hooks.OnState = func(s model.SessionState) {
		r.statesMu.Lock()
		r.states = append(r.states, s)
		r.statesMu.Unlock()
	}

	r.o = New(o, d)
	t.Cleanup(func() { _ = r.o.Close() })
	return r
}

// start prepares the room and runs its loop in the background.
func (r *room) start(t *testing.T) {
	t.Helper()
	require.NoError(t, r.o.Prepare(context.Background()))
	go func() { _ = r.o.Run(context.Background()) }()
}

func (r *room) waitFor(t *testing.T, phase model.Phase, index int) {
	t.Helper()
	require.Eventually(t, func() bool {
		s := r.o.Snapshot()
		return s.Phase == phase && s.QuestionIndex == index
	}, 2*time.Second, time.Millisecond, "waiting for %s(%d), have %+v", phase, index, r.o.Snapshot())
}

func (r *room) waitDone(t *testing.T) {
	t.Helper()
	select {
	case <-r.o.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("room did not finish, state %+v", r.o.Snapshot())
	}
}

// answerAll walks the question loop, stopping each answer as soon as it is awaited.
func (r *room) answerAll(t *testing.T, n int) {
	t.Helper()
	for i := range n {
		r.waitFor(t, model.PhaseAwaitingAnswer, i)
		r.o.Dispatch(StopAnswerRequested{})
	}
	r.waitFor(t, model.PhaseExiting, n-1)
}

func countType(events []model.ProctoringEvent, t model.EventType) int {
	n := 0
	for _, e := range events {
		if e.Type == t {
			n++
		}
	}
	return n
}
