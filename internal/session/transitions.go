package session

import (
	"errors"

	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/speech"
)

func (o *Orchestrator) onStart() {
	o.mu.RLock()
	phase, prepared, caps := o.state.Phase, o.prepared, o.state.Capabilities
	o.mu.RUnlock()

	if phase != model.PhaseSetup {
		o.events.Append(model.EventStartRejected, map[string]any{"reason": "already started", "phase": string(phase)})
		return
	}
	if !prepared || !o.media.Live() {
		o.events.Append(model.EventStartRejected, map[string]any{"reason": "media stream not live"})
		return
	}

	ctx := o.loopCtx
	o.enterLock(ctx, caps)
	o.setPhase(model.PhaseIntroduction)
	o.startTicker()

	attemptID := o.Snapshot().AttemptID
	if caps.HasFaceDetection && o.face != nil {
		o.face.Start(ctx)
	}
	if err := o.media.StartRecording(ctx, attemptID); err != nil {
		o.log.Warn().Err(err).Msg("Recording did not start")
	}
	o.events.Append(model.EventSessionStart, map[string]any{
		"attempt_id": attemptID,
		"questions":  o.Snapshot().TotalQuestions,
	})

	o.say(narration.Intro(o.opts.CandidateName, o.opts.Topic, o.Snapshot().TotalQuestions))
}

func (o *Orchestrator) say(text string) {
	o.expectSeq = o.narr.Say(text, func(seq uint64) {
		o.Dispatch(NarrationFinished{Seq: seq})
	})
}

func (o *Orchestrator) onNarrationFinished(seq uint64) {
	if seq != o.expectSeq {
		return
	}
	switch o.Snapshot().Phase {
	case model.PhaseIntroduction:
		o.askQuestion(0)
	case model.PhaseAskingQuestion:
		o.awaitAnswer()
	}
}

func (o *Orchestrator) askQuestion(i int) {
	o.mu.Lock()
	text := o.questions[i]
	o.state.Phase = model.PhaseAskingQuestion
	o.state.QuestionIndex = i
	o.state.Question = text
	o.mu.Unlock()

	o.events.Append(model.EventQuestionChange, map[string]any{"question_index": i, "question": text})
	o.say(text)
}

func (o *Orchestrator) awaitAnswer() {
	o.setPhase(model.PhaseAwaitingAnswer)
	o.answerStart = o.now()

	s := o.Snapshot()
	o.events.Append(model.EventRecordingStart, map[string]any{"question_index": s.QuestionIndex})

	if o.speech == nil || !s.Capabilities.HasSpeechRecognition || s.SpeechDegraded {
		return
	}
	err := o.speech.Start(o.loopCtx)
	switch {
	case err == nil:
	case errors.Is(err, speech.ErrPermissionDenied), errors.Is(err, speech.ErrUnavailable):
		o.degradeSpeech(err)
	default:
		// Capture is retried with the next question.
		o.log.Warn().Err(err).Int("question_index", s.QuestionIndex).Msg("Speech capture failed to start")
		o.events.Append(model.EventSpeechStartFailed, map[string]any{
			"question_index": s.QuestionIndex,
			"error":          err.Error(),
		})
	}
}

// captureAnswer stops speech capture and turns the transcript into a record for
// the current question. An empty transcript becomes the placeholder.
func (o *Orchestrator) captureAnswer() model.AnswerRecord {
	transcript := ""
	if o.speech != nil {
		transcript = o.speech.Stop()
	}
	if transcript == "" {
		transcript = model.NoAnswerPlaceholder
	}

	now := o.now()
	s := o.Snapshot()
	a := model.AnswerRecord{
		QuestionIndex:   s.QuestionIndex,
		QuestionText:    s.Question,
		AnswerText:      transcript,
		CapturedAt:      now,
		DurationSeconds: int(now.Sub(o.answerStart).Seconds()),
	}

	o.mu.Lock()
	o.answers = append(o.answers, a)
	o.mu.Unlock()

	o.unsaved++
	o.persist.enqueue(s.AttemptID, a)
	return a
}

func (o *Orchestrator) onStopAnswer() {
	if o.Snapshot().Phase != model.PhaseAwaitingAnswer {
		return
	}
	o.captureAnswer()
	o.setPhase(model.PhaseAdvancing)
}

// onAnswerPersisted moves on only once the answer of the current question has
// been saved, so the next question is never narrated ahead of it.
func (o *Orchestrator) onAnswerPersisted(ev AnswerPersisted) {
	if ev.Remote {
		o.setState(func(s *model.SessionState) { s.AnswersSaved++ })
	}
	if o.unsaved > 0 {
		o.unsaved--
	}
	if o.submitPending {
		if o.unsaved == 0 {
			o.submit()
		}
		return
	}

	s := o.Snapshot()
	if s.Phase != model.PhaseAdvancing || ev.Index != s.QuestionIndex {
		return
	}
	if next := s.QuestionIndex + 1; next < s.TotalQuestions {
		o.askQuestion(next)
		return
	}
	o.enterExiting()
}

// enterExiting is the shared entry to the exit phase. It stops narration, keeps a
// partial answer if one was being captured, and stops the capture subsystems.
func (o *Orchestrator) enterExiting() {
	prev := o.Snapshot().Phase
	if prev == model.PhaseExiting || prev.Terminal() {
		return
	}
	o.setPhase(model.PhaseExiting)

	if o.narr.Cancel() {
		o.events.Append(model.EventNarrationCancelled, map[string]any{"phase": string(prev)})
	}
	if prev == model.PhaseAwaitingAnswer {
		o.captureAnswer()
	} else if o.speech != nil {
		o.speech.Stop()
	}
	if o.face != nil {
		o.bg.Add(1)
		go func() {
			defer o.bg.Done()
			o.face.Stop()
		}()
	}
	o.recording = o.media.StopRecording()
}

func (o *Orchestrator) onExit(discard bool) {
	phase := o.Snapshot().Phase
	if phase.Terminal() || o.submitting || o.submitPending {
		return
	}
	if phase == model.PhaseSetup {
		o.events.Append(model.EventSessionAbort, map[string]any{"reason": "left before start", "phase": string(phase)})
		o.finish(model.PhaseAborted)
		return
	}

	o.enterExiting()
	if discard {
		o.events.Append(model.EventSessionAbort, map[string]any{"reason": "discarded"})
		o.finish(model.PhaseAborted)
		return
	}
	o.submitWhenSaved()
}

func (o *Orchestrator) onAbort(reason string) {
	s := o.Snapshot()
	if s.Phase.Terminal() || o.submitting || o.submitPending {
		return
	}
	o.events.Append(model.EventSessionAbort, map[string]any{
		"reason":         reason,
		"phase":          string(s.Phase),
		"question_index": s.QuestionIndex,
	})
	if s.Phase == model.PhaseSetup {
		o.finish(model.PhaseAborted)
		return
	}

	o.aborted = true
	o.stopTicker()
	o.releaseLock()
	o.enterExiting()
	o.submitWhenSaved()
}

// onVisibility records a blur only while the room is active and a focus only
// after a recorded blur of the same kind, so the log always holds proper pairs.
func (o *Orchestrator) onVisibility(kind model.VisibilityKind, hidden bool) {
	if !kind.Valid() {
		return
	}
	if hidden {
		if o.hidden[kind] || !o.Snapshot().Phase.Active() {
			return
		}
		o.hidden[kind] = true
		o.events.Append(kind.BlurType(), nil)
		return
	}
	if !o.hidden[kind] {
		return
	}
	o.hidden[kind] = false
	o.events.Append(kind.FocusType(), nil)
}

func (o *Orchestrator) degradeSpeech(err error) {
	if o.Snapshot().SpeechDegraded {
		return
	}
	notice := "Speech recognition is unavailable. Keep answering out loud; your recording is still captured."
	if errors.Is(err, speech.ErrPermissionDenied) {
		notice = "Microphone access for speech recognition was denied. Allow it in your browser settings to get transcripts."
	}
	o.log.Warn().Err(err).Msg("Speech capture degraded")
	o.events.Append(model.EventSpeechUnavailable, map[string]any{"error": errString(err)})
	o.setState(func(s *model.SessionState) {
		s.SpeechDegraded = true
		s.Notice = notice
	})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
