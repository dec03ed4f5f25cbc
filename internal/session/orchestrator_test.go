package session

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stemsi/interview-room/internal/media"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/speech"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrchestrator_HappyPathSubmitsEveryAnswer(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)
	r.o.Dispatch(ExitRequested{})
	r.waitDone(t)

	s := r.o.Snapshot()
	assert.Equal(t, model.PhaseSubmitted, s.Phase)

	subs := r.backend.Submissions()
	require.Len(t, subs, 1)
	p := subs[0]
	require.Len(t, p.Answers, 3)
	assert.Equal(t, "first answer", p.Answers[0].AnswerText)
	assert.Equal(t, "Q3?", p.Answers[2].QuestionText)
	assert.Equal(t, model.ViolationCounts{}, p.Violations)
	assert.False(t, p.Aborted)
	assert.Equal(t, []string{"Q1?", "Q2?", "Q3?"}, p.Questions)
	assert.Equal(t, "webm", string(p.Recording))
	assert.Equal(t, 4, p.RecordingBytes)

	payload, result, ok := r.o.Submission()
	require.True(t, ok)
	assert.Equal(t, "report-1", result.ReportID)
	assert.Equal(t, p.AttemptID, payload.AttemptID)

	events := r.o.Events()
	assert.Equal(t, 1, countType(events, model.EventCameraReady))
	assert.Equal(t, 1, countType(events, model.EventSessionStart))
	assert.Equal(t, 3, countType(events, model.EventQuestionChange))
	assert.Equal(t, 3, countType(events, model.EventRecordingStart))
	assert.Equal(t, 3, countType(events, model.EventAnswerSaved))
	assert.Equal(t, 1, countType(events, model.EventSubmissionSucceeded))

	require.NoError(t, r.o.Close())
	enters, exits := r.lock.counts()
	assert.Equal(t, 1, enters)
	assert.Equal(t, 1, exits)
	assert.Equal(t, 1, r.lock.keyLock)
}

func TestOrchestrator_NextQuestionWaitsForPersistence(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.backend.saveDelay = 20 * time.Millisecond })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)

	intro := narration.Intro("Ada", "Go", 3)
	assert.Equal(t, []string{
		"speak:" + intro,
		"speak:Q1?", "save:0",
		"speak:Q2?", "save:1",
		"speak:Q3?", "save:2",
	}, r.trace.Steps())
}

func TestOrchestrator_QuestionIndexNeverDecreases(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	// Stops outside the answer window are ignored.
	r.o.Dispatch(StopAnswerRequested{})
	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)
	r.o.Dispatch(StopAnswerRequested{})
	r.o.Dispatch(ExitRequested{})
	r.waitDone(t)

	last := 0
	for _, s := range r.States() {
		require.GreaterOrEqual(t, s.QuestionIndex, last)
		last = s.QuestionIndex
	}
	assert.Equal(t, model.PhaseSubmitted, r.States()[len(r.States())-1].Phase)
	assert.Len(t, r.o.Answers(), 3)
}

func TestOrchestrator_StartFailureUsesLocalAttemptID(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.backend.startErr = errBackendDown })
	r.start(t)

	s := r.o.Snapshot()
	assert.True(t, strings.HasPrefix(s.AttemptID, model.LocalAttemptPrefix), s.AttemptID)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventInterviewStartFailed))

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)
	assert.Equal(t, s.AttemptID, r.o.Snapshot().AttemptID)
}

func TestOrchestrator_EmptyTranscriptBecomesPlaceholder(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.recognizer.script = []string{"", "spoken"} })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)

	answers := r.o.Answers()
	require.Len(t, answers, 3)
	assert.Equal(t, model.NoAnswerPlaceholder, answers[0].AnswerText)
	assert.Equal(t, "spoken", answers[1].AnswerText)
	assert.Equal(t, model.NoAnswerPlaceholder, answers[2].AnswerText)
}

func TestOrchestrator_SaveFailureFallsBackAndContinues(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.backend.saveErr = errBackendDown })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)

	events := r.o.Events()
	assert.Equal(t, 3, countType(events, model.EventAnswerSaveFailed))
	assert.Zero(t, countType(events, model.EventAnswerSaved))
	assert.Zero(t, r.o.Snapshot().AnswersSaved)

	r.fallback.mu.Lock()
	defer r.fallback.mu.Unlock()
	assert.Len(t, r.fallback.answers, 3)
}

func TestOrchestrator_AbortDuringAnswerKeepsPartialAnswer(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.recognizer.script = []string{"first", "half an answ"} })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)
	r.o.Dispatch(StopAnswerRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 1)

	r.o.Dispatch(AbortRequested{Reason: "candidate left"})
	r.waitDone(t)

	assert.Equal(t, model.PhaseSubmitted, r.o.Snapshot().Phase)
	subs := r.backend.Submissions()
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Aborted)
	require.Len(t, subs[0].Answers, 2)
	assert.Equal(t, "half an answ", subs[0].Answers[1].AnswerText)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventSessionAbort))

	_, exits := r.lock.counts()
	assert.Equal(t, 1, exits)
}

func TestOrchestrator_AbortWaitsForPartialAnswerSave(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) {
		r.recognizer.script = []string{"first", "half an answ"}
		r.backend.saveDelay = 30 * time.Millisecond
	})
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)
	r.o.Dispatch(StopAnswerRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 1)

	r.o.Dispatch(AbortRequested{Reason: "candidate left"})
	r.waitDone(t)

	subs := r.backend.Submissions()
	require.Len(t, subs, 1)
	require.Len(t, subs[0].Answers, 2)
	assert.Equal(t, 2, countType(subs[0].Events, model.EventAnswerSaved))
	assert.Equal(t, 2, r.o.Snapshot().AnswersSaved)
}

func TestOrchestrator_AbortDuringNarrationCancelsIt(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.narrator.manual = true })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseIntroduction, 0)
	r.o.Dispatch(AbortRequested{Reason: "closed tab"})
	r.waitDone(t)

	assert.Equal(t, 1, countType(r.o.Events(), model.EventNarrationCancelled))
	assert.Empty(t, r.o.Answers())
	assert.Equal(t, model.PhaseSubmitted, r.o.Snapshot().Phase)
}

func TestOrchestrator_StaleNarrationEndIsIgnored(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.narrator.manual = true })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseIntroduction, 0)
	r.o.Dispatch(NarrationFinished{Seq: 42})
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, model.PhaseIntroduction, r.o.Snapshot().Phase)

	r.narrator.mu.Lock()
	intro := r.narrator.pending[0]
	r.narrator.mu.Unlock()
	intro.OnEnd()
	r.waitFor(t, model.PhaseAskingQuestion, 0)
}

func TestOrchestrator_DiscardEndsWithoutSubmission(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)
	r.o.Dispatch(ExitRequested{Discard: true})
	r.waitDone(t)

	assert.Equal(t, model.PhaseAborted, r.o.Snapshot().Phase)
	assert.Empty(t, r.backend.Submissions())
	_, _, ok := r.o.Submission()
	assert.False(t, ok)
}

func TestOrchestrator_SubmitFailureStillEnds(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.backend.submitErr = errBackendDown })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)
	r.o.Dispatch(ExitRequested{})
	r.waitDone(t)

	assert.Equal(t, model.PhaseSubmitted, r.o.Snapshot().Phase)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventSubmissionFailed))

	r.fallback.mu.Lock()
	defer r.fallback.mu.Unlock()
	assert.NotEmpty(t, r.fallback.events)
}

func TestOrchestrator_TeardownTwiceIsSafe(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)
	r.o.Dispatch(ExitRequested{})
	r.o.Dispatch(ExitRequested{})
	r.waitDone(t)

	require.NoError(t, r.o.Close())
	state := r.o.Snapshot()
	events := len(r.o.Events())
	require.NoError(t, r.o.Close())

	assert.Equal(t, state, r.o.Snapshot())
	assert.Len(t, r.o.Events(), events)
	assert.Len(t, r.backend.Submissions(), 1)

	_, exits := r.lock.counts()
	assert.Equal(t, 1, exits)
	r.device.mu.Lock()
	defer r.device.mu.Unlock()
	for _, s := range r.device.streams {
		for _, tr := range s.tracks {
			assert.Equal(t, 1, tr.stops)
		}
	}
	assert.Equal(t, 1, r.recorder.stops)
}

func TestOrchestrator_VisibilityPairsFeedViolations(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	// Ignored before the session starts.
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: true})
	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)

	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: false})
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: true})
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: true})
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: false})
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: true})
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityTab, Hidden: false})
	r.o.Dispatch(VisibilityChanged{Kind: model.VisibilityKind("screen"), Hidden: true})

	r.o.Dispatch(AbortRequested{Reason: "test"})
	r.waitDone(t)

	subs := r.backend.Submissions()
	require.Len(t, subs, 1)
	assert.Equal(t, 2, subs[0].Violations.TabSwitches)
	events := r.o.Events()
	assert.Equal(t, 2, countType(events, model.EventTabBlur))
	assert.Equal(t, 2, countType(events, model.EventTabFocus))
}

func TestOrchestrator_StartRejected(t *testing.T) {
	r := newRoom(t)
	go func() { _ = r.o.Run(context.Background()) }()

	r.o.Dispatch(StartRequested{})
	require.Eventually(t, func() bool {
		return countType(r.o.Events(), model.EventStartRejected) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, model.PhaseSetup, r.o.Snapshot().Phase)
}

func TestOrchestrator_MediaPermissionDenied(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.device.err = media.ErrPermissionDenied })

	err := r.o.Prepare(context.Background())
	require.ErrorIs(t, err, media.ErrPermissionDenied)

	s := r.o.Snapshot()
	assert.Equal(t, model.PhaseSetup, s.Phase)
	assert.NotEmpty(t, s.Notice)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventMediaPermission))
}

func TestOrchestrator_QuestionSourceFailure(t *testing.T) {
	r := newRoom(t, func(_ *room, _ *Options, d *Deps) {
		d.Questions = &fakeQuestions{err: errors.New("bank offline")}
	})
	assert.Error(t, r.o.Prepare(context.Background()))

	r2 := newRoom(t, func(_ *room, _ *Options, d *Deps) { d.Questions = &fakeQuestions{} })
	assert.ErrorIs(t, r2.o.Prepare(context.Background()), ErrNoQuestions)
}

func TestOrchestrator_SpeechDeniedDegrades(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) { r.recognizer.startErr = speech.ErrPermissionDenied })
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)

	s := r.o.Snapshot()
	assert.True(t, s.SpeechDegraded)
	assert.NotEmpty(t, s.Notice)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventSpeechUnavailable))
	for _, a := range r.o.Answers() {
		assert.Equal(t, model.NoAnswerPlaceholder, a.AnswerText)
	}
	r.recognizer.mu.Lock()
	defer r.recognizer.mu.Unlock()
	assert.Equal(t, 1, r.recognizer.starts)
}

func TestOrchestrator_SpeechStartFailureRetriesNextQuestion(t *testing.T) {
	r := newRoom(t, func(r *room, _ *Options, _ *Deps) {
		r.recognizer.script = []string{"second answer", "third answer"}
		r.recognizer.firstErr = errors.New("request timed out")
	})
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.answerAll(t, 3)

	s := r.o.Snapshot()
	assert.False(t, s.SpeechDegraded)
	assert.Empty(t, s.Notice)
	events := r.o.Events()
	assert.Equal(t, 1, countType(events, model.EventSpeechStartFailed))
	assert.Zero(t, countType(events, model.EventSpeechUnavailable))

	answers := r.o.Answers()
	require.Len(t, answers, 3)
	assert.Equal(t, model.NoAnswerPlaceholder, answers[0].AnswerText)
	assert.Equal(t, "second answer", answers[1].AnswerText)
	assert.Equal(t, "third answer", answers[2].AnswerText)
	r.recognizer.mu.Lock()
	defer r.recognizer.mu.Unlock()
	assert.Equal(t, 3, r.recognizer.starts)
}

func TestOrchestrator_SpeechRestartFailureDegrades(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)

	r.recognizer.mu.Lock()
	r.recognizer.startErr = errors.New("network")
	h := r.recognizer.handler
	r.recognizer.mu.Unlock()
	h.OnEnd()

	require.Eventually(t, func() bool { return r.o.Snapshot().SpeechDegraded }, time.Second, time.Millisecond)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventSpeechUnavailable))
	assert.NotEmpty(t, r.o.Snapshot().Notice)
}

func TestOrchestrator_CapabilitiesAreIntersected(t *testing.T) {
	r := newRoom(t, func(_ *room, o *Options, d *Deps) {
		o.Reported = model.Capabilities{HasSpeechRecognition: false, HasFaceDetection: true, HasKeyboardLock: true}
		d.Recognizer = nil
	})
	r.start(t)

	caps := r.o.Snapshot().Capabilities
	assert.False(t, caps.HasSpeechRecognition)
	assert.False(t, caps.HasFaceDetection, "no classifier wired")
	assert.True(t, caps.HasKeyboardLock)
}

func TestOrchestrator_TickerCountsWhileActive(t *testing.T) {
	r := newRoom(t, func(_ *room, o *Options, _ *Deps) { o.Timing.Tick = 2 * time.Millisecond })
	r.start(t)

	time.Sleep(10 * time.Millisecond)
	assert.Zero(t, r.o.Snapshot().ElapsedSeconds)

	r.o.Dispatch(StartRequested{})
	require.Eventually(t, func() bool { return r.o.Snapshot().ElapsedSeconds >= 3 }, time.Second, time.Millisecond)

	r.o.Dispatch(AbortRequested{Reason: "test"})
	r.waitDone(t)
	frozen := r.o.Snapshot().ElapsedSeconds
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, frozen, r.o.Snapshot().ElapsedSeconds)
}

func TestOrchestrator_CloseMidSessionMirrorsEvents(t *testing.T) {
	r := newRoom(t)
	r.start(t)

	r.o.Dispatch(StartRequested{})
	r.waitFor(t, model.PhaseAwaitingAnswer, 0)
	require.NoError(t, r.o.Close())

	assert.Equal(t, model.PhaseAborted, r.o.Snapshot().Phase)
	assert.Empty(t, r.backend.Submissions())
	r.fallback.mu.Lock()
	defer r.fallback.mu.Unlock()
	assert.NotEmpty(t, r.fallback.events)
}

func TestOrchestrator_CloseLeavesBusyLoopToFinishRoom(t *testing.T) {
	gate := make(chan struct{})
	r := newRoom(t, func(r *room, o *Options, _ *Deps) {
		r.recognizer.gate = gate
		r.recognizer.entered = make(chan struct{})
		o.Timing.ReleaseTimeout = 20 * time.Millisecond
	})
	r.start(t)

	r.o.Dispatch(StartRequested{})
	select {
	case <-r.recognizer.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("speech capture never started")
	}

	require.NoError(t, r.o.Close())
	assert.Equal(t, model.PhaseAwaitingAnswer, r.o.Snapshot().Phase)
	assert.Zero(t, countType(r.o.Events(), model.EventSessionAbort))

	close(gate)
	r.waitDone(t)
	assert.Equal(t, model.PhaseAborted, r.o.Snapshot().Phase)
	assert.Equal(t, 1, countType(r.o.Events(), model.EventSessionAbort))
	assert.Empty(t, r.backend.Submissions())

	r.fallback.mu.Lock()
	defer r.fallback.mu.Unlock()
	assert.NotEmpty(t, r.fallback.events)
}
