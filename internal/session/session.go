// Package session implements the interview room state machine. One Orchestrator
// drives one candidate from setup through the question loop to submission.
//
// All state transitions happen on the goroutine running Run. Subsystems, timers
// and transport callbacks never touch the state directly: they Dispatch an Event
// and the loop applies it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/eventlog"
	"github.com/stemsi/interview-room/internal/face"
	"github.com/stemsi/interview-room/internal/media"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/speech"
)

var (
	ErrNoQuestions        = errors.New("question source returned no questions")
	ErrSubmissionRejected = errors.New("submission rejected by backend")
	ErrAlreadyPrepared    = errors.New("session already prepared")
	ErrClosed             = errors.New("session closed")
)

// QuestionSource returns an ordered, possibly random, sample of questions.
type QuestionSource interface {
	GetQuestions(ctx context.Context, topic, difficulty string, count int) ([]string, error)
}

// Backend is the remote session API. Every call is treated as fallible.
type Backend interface {
	StartInterview(ctx context.Context, candidate, topic, difficulty string) (string, error)
	SaveQuestionAnswer(ctx context.Context, attemptID string, answer model.AnswerRecord) error
	UploadMediaChunk(ctx context.Context, attemptID string, chunk []byte, index int) error
	SubmitInterview(ctx context.Context, payload model.SubmissionPayload) (model.SubmitResult, error)
}

// FallbackStore keeps best-effort local mirrors when the backend is unreachable.
type FallbackStore interface {
	SaveAnswer(ctx context.Context, attemptID string, answer model.AnswerRecord) error
	SaveEvents(ctx context.Context, sessionID string, events []model.ProctoringEvent) error
}

// InteractionLock enters fullscreen and blocks input for the active session.
type InteractionLock interface {
	Enter(ctx context.Context) error
	Exit(ctx context.Context) error
}

// KeyboardLocker is implemented by locks that can also capture system keys.
type KeyboardLocker interface {
	LockKeyboard(ctx context.Context) error
}

// Timing holds every interval and timeout the orchestrator uses.
type Timing struct {
	Tick               time.Duration
	SaveTimeout        time.Duration
	SubmitTimeout      time.Duration
	ReleaseTimeout     time.Duration
	SpeechRestartDelay time.Duration
	ChunkInterval      time.Duration
	UploadTimeout      time.Duration
}

// DefaultTiming returns production timing.
func DefaultTiming() Timing {
	return Timing{
		Tick:               time.Second,
		SaveTimeout:        10 * time.Second,
		SubmitTimeout:      30 * time.Second,
		ReleaseTimeout:     5 * time.Second,
		SpeechRestartDelay: speech.DefaultRestartDelay,
		ChunkInterval:      5 * time.Second,
		UploadTimeout:      30 * time.Second,
	}
}

// Options describe one interview.
type Options struct {
	SessionID     string
	CandidateName string
	Topic         string
	Difficulty    string
	QuestionCount int
	Device        model.DeviceInfo
	// Reported is what the client says it supports; it is intersected with the
	// collaborators actually wired in Deps.
	Reported   model.Capabilities
	Timing     Timing
	FacePolicy face.RecoveryPolicy
	Voice      narration.Voice
}

// Hooks let the transport observe the room. They run on the loop goroutine and
// must not block.
type Hooks struct {
	OnState     func(model.SessionState)
	OnSubmitted func(model.SubmissionPayload, model.SubmitResult, error)
}

// Deps are the collaborators of one room. Recognizer, FaceBackend and Lock are
// optional; a missing one disables the matching capability.
type Deps struct {
	Questions   QuestionSource
	Backend     Backend
	Fallback    FallbackStore
	Narrator    narration.Engine
	Recognizer  speech.Engine
	FaceBackend face.Backend
	Frames      face.FrameSource
	MediaDevice media.Device
	Recorder    media.Recorder
	Sinks       []media.Sink
	Lock        InteractionLock
	Hooks       Hooks
	Log         zerolog.Logger
	Now         func() time.Time
}

// Orchestrator is the room state machine.
type Orchestrator struct {
	opts Options
	deps Deps
	log  zerolog.Logger
	now  func() time.Time

	events  *eventlog.Log
	res     *media.Resources
	media   *media.Manager
	narr    *narration.Controller
	speech  *speech.Controller
	face    *face.Monitor
	persist *persister

	mu         sync.RWMutex
	state      model.SessionState
	questions  []string
	answers    []model.AnswerRecord
	submission *model.SubmissionPayload
	result     model.SubmitResult
	prepared   bool

	// Loop-only state.
	loopCtx     context.Context
	expectSeq   uint64
	hidden      map[model.VisibilityKind]bool
	answerStart time.Time
	submitting  bool
	aborted     bool
	recording   []byte
	// unsaved counts captured answers whose save has not settled yet.
	unsaved       int
	submitPending bool
	submitTimer   *time.Timer

	ctlMu      sync.Mutex
	lockHeld   bool
	tickerStop chan struct{}

	mbMu    sync.Mutex
	mailbox []Event
	signal  chan struct{}

	quit         chan struct{}
	quitOnce     sync.Once
	loopDone     chan struct{}
	running      bool
	closed       bool
	teardownOnce sync.Once
	bg           sync.WaitGroup
	done         chan struct{}
	doneOnce     sync.Once
}

// New wires a room. Nothing is acquired until Prepare.
func New(opts Options, deps Deps) *Orchestrator {
	if opts.Timing == (Timing{}) {
		opts.Timing = DefaultTiming()
	}
	if opts.FacePolicy == (face.RecoveryPolicy{}) {
		opts.FacePolicy = face.DefaultRecoveryPolicy()
	}
	if opts.Voice == (narration.Voice{}) {
		opts.Voice = narration.DefaultVoice()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	log := deps.Log.With().Str("component", "session").Str("session_id", opts.SessionID).Logger()
	o := &Orchestrator{
		opts:     opts,
		deps:     deps,
		log:      log,
		now:      deps.Now,
		events:   eventlog.New(log, eventlog.WithClock(deps.Now)),
		res:      media.NewResources(),
		hidden:   make(map[model.VisibilityKind]bool),
		signal:   make(chan struct{}, 1),
		quit:     make(chan struct{}),
		loopDone: make(chan struct{}),
		done:     make(chan struct{}),
		loopCtx:  context.Background(),
		state:    model.SessionState{Phase: model.PhaseSetup, TotalQuestions: opts.QuestionCount},
	}

	o.media = media.NewManager(deps.MediaDevice, deps.Recorder, deps.Backend, o.res, media.Config{
		ChunkInterval: opts.Timing.ChunkInterval,
		UploadTimeout: opts.Timing.UploadTimeout,
	}, log)
	o.narr = narration.NewController(deps.Narrator, opts.Voice, log)
	if deps.Recognizer != nil {
		o.speech = speech.NewController(deps.Recognizer, opts.Timing.SpeechRestartDelay, speech.Hooks{
			OnFatal: func(err error) { o.Dispatch(SpeechUnavailable{Err: err}) },
		}, log)
	}
	if deps.FaceBackend != nil && deps.Frames != nil {
		o.face = face.NewMonitor(deps.Frames, deps.FaceBackend, o.events, opts.FacePolicy, face.Hooks{
			OnChange:   func(p model.FacePresence) { o.Dispatch(FaceChanged{Presence: p}) },
			OnDegraded: func(err error) { o.Dispatch(FaceDegraded{Err: err}) },
		}, log)
	}
	o.persist = newPersister(deps.Backend, deps.Fallback, o.events, opts.Timing.SaveTimeout, o.Dispatch, log)
	return o
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() model.SessionState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Answers returns the answers recorded so far, in question order.
func (o *Orchestrator) Answers() []model.AnswerRecord {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]model.AnswerRecord(nil), o.answers...)
}

// Questions returns the questions sampled for this room.
func (o *Orchestrator) Questions() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]string(nil), o.questions...)
}

// Events returns a copy of the proctoring event log.
func (o *Orchestrator) Events() []model.ProctoringEvent {
	return o.events.Events()
}

// Submission returns the payload once it has been assembled.
func (o *Orchestrator) Submission() (model.SubmissionPayload, model.SubmitResult, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.submission == nil {
		return model.SubmissionPayload{}, model.SubmitResult{}, false
	}
	return *o.submission, o.result, true
}

// Done is closed once the room reaches a terminal phase or is closed.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}
