package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/interview-room/internal/media"
	"github.com/stemsi/interview-room/internal/model"
)

// Prepare negotiates capabilities, acquires the media stream, samples the
// questions and opens the attempt. A media permission denial is returned as
// media.ErrPermissionDenied and leaves the room in setup with a notice.
func (o *Orchestrator) Prepare(ctx context.Context) error {
	o.mu.Lock()
	if o.prepared {
		o.mu.Unlock()
		return ErrAlreadyPrepared
	}
	o.mu.Unlock()

	caps := o.negotiate()
	o.setState(func(s *model.SessionState) { s.Capabilities = caps })

	view, err := o.media.Acquire(ctx)
	if err != nil {
		if errors.Is(err, media.ErrPermissionDenied) {
			o.events.Append(model.EventMediaPermission, map[string]any{"error": err.Error()})
			o.setState(func(s *model.SessionState) {
				s.Notice = "Camera and microphone access is required. Allow access in your browser settings and reload the page."
			})
			o.publish()
		}
		return err
	}
	for _, sink := range o.deps.Sinks {
		if err := o.media.Attach(sink); err != nil {
			o.log.Warn().Err(err).Msg("Media sink attach failed")
		}
	}
	o.events.Append(model.EventCameraReady, map[string]any{"stream_id": view.ID()})

	questions, err := o.deps.Questions.GetQuestions(ctx, o.opts.Topic, o.opts.Difficulty, o.opts.QuestionCount)
	if err != nil {
		return fmt.Errorf("get questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	attemptID, err := o.deps.Backend.StartInterview(ctx, o.opts.CandidateName, o.opts.Topic, o.opts.Difficulty)
	if err != nil {
		attemptID = model.NewLocalAttemptID()
		o.log.Warn().Err(err).Str("attempt_id", attemptID).Msg("Start interview failed, continuing with local attempt id")
		o.events.Append(model.EventInterviewStartFailed, map[string]any{"error": err.Error(), "attempt_id": attemptID})
	}

	o.mu.Lock()
	o.questions = questions
	o.prepared = true
	o.state.AttemptID = attemptID
	o.state.TotalQuestions = len(questions)
	o.state.Notice = ""
	o.mu.Unlock()

	o.log.Info().
		Str("attempt_id", attemptID).
		Int("questions", len(questions)).
		Bool("speech", caps.HasSpeechRecognition).
		Bool("face", caps.HasFaceDetection).
		Msg("Room prepared")
	o.publish()
	return nil
}

// Dispatch queues ev for the loop. It never blocks and never drops.
func (o *Orchestrator) Dispatch(ev Event) {
	if ev == nil {
		return
	}
	o.mbMu.Lock()
	o.mailbox = append(o.mailbox, ev)
	o.mbMu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

// Run applies events until the room reaches a terminal phase, Close is called,
// or ctx ends. A cancelled ctx tears the room down without submitting.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if o.running {
		o.mu.Unlock()
		return errors.New("session already running")
	}
	o.running = true
	o.loopCtx = ctx
	o.mu.Unlock()
	defer close(o.loopDone)

	for {
		select {
		case <-ctx.Done():
			o.interrupted("context cancelled")
			return ctx.Err()
		case <-o.quit:
			o.interrupted("closed")
			return nil
		case <-o.signal:
		}

		for _, ev := range o.drain() {
			o.apply(ev)
			if o.Snapshot().Phase.Terminal() {
				return nil
			}
		}
	}
}

func (o *Orchestrator) drain() []Event {
	o.mbMu.Lock()
	defer o.mbMu.Unlock()
	evs := o.mailbox
	o.mailbox = nil
	return evs
}

func (o *Orchestrator) apply(ev Event) {
	before := o.Snapshot()

	switch ev := ev.(type) {
	case StartRequested:
		o.onStart()
	case NarrationFinished:
		o.onNarrationFinished(ev.Seq)
	case StopAnswerRequested:
		o.onStopAnswer()
	case AnswerPersisted:
		o.onAnswerPersisted(ev)
	case ExitRequested:
		o.onExit(ev.Discard)
	case AbortRequested:
		o.onAbort(ev.Reason)
	case Tick:
		o.setState(func(s *model.SessionState) {
			if s.Phase.Active() {
				s.ElapsedSeconds++
			}
		})
	case VisibilityChanged:
		o.onVisibility(ev.Kind, ev.Hidden)
	case FaceChanged:
		o.setState(func(s *model.SessionState) { s.Face = ev.Presence })
	case FaceDegraded:
		o.setState(func(s *model.SessionState) { s.FaceDegraded = true })
	case SpeechUnavailable:
		o.degradeSpeech(ev.Err)
	case SubmitDue:
		if o.submitPending && !o.Snapshot().Phase.Terminal() {
			o.log.Warn().Int("unsaved", o.unsaved).Msg("Submitting before pending answer saves settled")
			o.submit()
		}
	case SubmissionSettled:
		o.onSubmissionSettled(ev)
	default:
		o.log.Warn().Str("event", fmt.Sprintf("%T", ev)).Msg("Unknown session event")
	}

	// finish publishes terminal states itself.
	if after := o.Snapshot(); after != before && !after.Phase.Terminal() {
		o.publish()
	}
}

func (o *Orchestrator) publish() {
	if o.deps.Hooks.OnState != nil {
		o.deps.Hooks.OnState(o.Snapshot())
	}
}

func (o *Orchestrator) setState(f func(*model.SessionState)) {
	o.mu.Lock()
	f(&o.state)
	o.mu.Unlock()
}

func (o *Orchestrator) setPhase(p model.Phase) {
	var prev model.Phase
	o.setState(func(s *model.SessionState) {
		prev = s.Phase
		s.Phase = p
	})
	o.log.Debug().Str("from", string(prev)).Str("to", string(p)).Msg("Phase transition")
}

func (o *Orchestrator) startTicker() {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	if o.tickerStop != nil {
		return
	}
	stop := make(chan struct{})
	o.tickerStop = stop

	interval := o.opts.Timing.Tick
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-stop:
				return
			case <-t.C:
				o.Dispatch(Tick{})
			}
		}
	}()
}

// stopTicker is idempotent; a ticker that never started stays stopped.
func (o *Orchestrator) stopTicker() {
	o.ctlMu.Lock()
	defer o.ctlMu.Unlock()
	if o.tickerStop == nil {
		o.tickerStop = make(chan struct{})
		close(o.tickerStop)
		return
	}
	select {
	case <-o.tickerStop:
	default:
		close(o.tickerStop)
	}
}

func (o *Orchestrator) enterLock(ctx context.Context, caps model.Capabilities) {
	if o.deps.Lock == nil {
		return
	}
	if err := o.deps.Lock.Enter(ctx); err != nil {
		o.log.Warn().Err(err).Msg("Interaction lock failed")
		o.events.Append(model.EventLockFailed, map[string]any{"error": err.Error()})
		return
	}
	o.ctlMu.Lock()
	o.lockHeld = true
	o.ctlMu.Unlock()

	if kl, ok := o.deps.Lock.(KeyboardLocker); ok && caps.HasKeyboardLock {
		if err := kl.LockKeyboard(ctx); err != nil {
			o.log.Debug().Err(err).Msg("Keyboard lock failed")
		}
	}
}

// releaseLock asks the lock to exit once, however many exit paths call it.
func (o *Orchestrator) releaseLock() {
	o.ctlMu.Lock()
	held := o.lockHeld
	o.lockHeld = false
	o.ctlMu.Unlock()
	if !held {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.Timing.ReleaseTimeout)
	defer cancel()
	if err := o.deps.Lock.Exit(ctx); err != nil {
		o.log.Warn().Err(err).Msg("Interaction lock release failed")
	}
}
