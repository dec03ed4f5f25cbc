package session

import (
	"context"
	"time"

	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/violation"
)

// assemble builds the payload from the room as it stands.
func (o *Orchestrator) assemble() model.SubmissionPayload {
	now := o.now()
	events := o.events.Events()

	counts := violation.Compute(events, now).Counts()
	if o.face != nil {
		counts.NoFace, counts.MultipleFaces = o.face.Counts()
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	return model.SubmissionPayload{
		AttemptID:      o.state.AttemptID,
		SessionID:      o.opts.SessionID,
		CandidateName:  o.opts.CandidateName,
		Topic:          o.opts.Topic,
		Difficulty:     o.opts.Difficulty,
		Questions:      append([]string(nil), o.questions...),
		Answers:        append([]model.AnswerRecord(nil), o.answers...),
		Events:         events,
		Violations:     counts,
		ElapsedSeconds: o.state.ElapsedSeconds,
		Aborted:        o.aborted,
		Device:         o.opts.Device,
		Capabilities:   o.state.Capabilities,
		SubmittedAt:    now,
		Recording:      o.recording,
		RecordingBytes: len(o.recording),
	}
}

// submitWhenSaved submits once every captured answer has settled, so the event log
// carries each save outcome. The wait covers one remote save and its fallback.
func (o *Orchestrator) submitWhenSaved() {
	if o.unsaved == 0 {
		o.submit()
		return
	}
	o.submitPending = true
	o.submitTimer = time.AfterFunc(2*o.opts.Timing.SaveTimeout, func() { o.Dispatch(SubmitDue{}) })
}

// submit assembles the payload once and sends it off the loop goroutine.
func (o *Orchestrator) submit() {
	if o.submitting {
		return
	}
	o.submitting = true
	o.submitPending = false
	if o.submitTimer != nil {
		o.submitTimer.Stop()
	}

	p := o.assemble()
	o.mu.Lock()
	o.submission = &p
	o.mu.Unlock()

	timeout := o.opts.Timing.SubmitTimeout
	o.bg.Add(1)
	go func() {
		defer o.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		res, err := o.deps.Backend.SubmitInterview(ctx, p)
		if err == nil && !res.Success {
			err = ErrSubmissionRejected
		}
		o.Dispatch(SubmissionSettled{Result: res, Err: err})
	}()
}

// onSubmissionSettled ends the room whatever the outcome; a failed submission
// leaves the event log in the fallback store.
func (o *Orchestrator) onSubmissionSettled(ev SubmissionSettled) {
	if o.Snapshot().Phase != model.PhaseExiting {
		return
	}

	if ev.Err != nil {
		o.log.Error().Err(ev.Err).Msg("Submission failed")
		o.events.Append(model.EventSubmissionFailed, map[string]any{"error": ev.Err.Error()})
		o.mirrorEvents()
	} else {
		o.log.Info().Str("report_id", ev.Result.ReportID).Msg("Submission succeeded")
		o.events.Append(model.EventSubmissionSucceeded, map[string]any{"report_id": ev.Result.ReportID})
	}

	o.mu.Lock()
	o.result = ev.Result
	p := *o.submission
	o.mu.Unlock()

	o.finish(model.PhaseSubmitted)
	if o.deps.Hooks.OnSubmitted != nil {
		o.deps.Hooks.OnSubmitted(p, ev.Result, ev.Err)
	}
}

func (o *Orchestrator) mirrorEvents() {
	if o.deps.Fallback == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.opts.Timing.SaveTimeout)
	defer cancel()
	if err := o.deps.Fallback.SaveEvents(ctx, o.opts.SessionID, o.events.Events()); err != nil {
		o.log.Error().Err(err).Msg("Fallback event save failed")
	}
}

// finish moves to a terminal phase and releases everything.
func (o *Orchestrator) finish(p model.Phase) {
	o.setPhase(p)
	o.teardown()
	o.publish()
	o.doneOnce.Do(func() { close(o.done) })
}

// teardown releases every resource the room may hold. Each step is idempotent and
// the whole routine runs once; the ticker and the lock are released before it
// returns, the rest in the background.
func (o *Orchestrator) teardown() {
	o.teardownOnce.Do(func() {
		o.stopTicker()
		o.releaseLock()
		o.narr.Cancel()
		if o.speech != nil {
			o.speech.Stop()
		}

		o.bg.Add(1)
		go func() {
			defer o.bg.Done()
			if o.face != nil {
				o.face.Stop()
			}

			ctx, cancel := context.WithTimeout(context.Background(), o.opts.Timing.ReleaseTimeout)
			defer cancel()
			o.media.Release(ctx)

			sctx, scancel := context.WithTimeout(context.Background(), o.opts.Timing.SaveTimeout)
			defer scancel()
			o.persist.close(sctx)
		}()
		o.log.Info().Str("phase", string(o.Snapshot().Phase)).Msg("Room torn down")
	})
}

// interrupted ends a room whose loop can no longer run. Captured data goes to the
// fallback store since no submission can be awaited.
func (o *Orchestrator) interrupted(reason string) {
	s := o.Snapshot()
	if s.Phase.Terminal() {
		return
	}
	o.events.Append(model.EventSessionAbort, map[string]any{"reason": reason, "phase": string(s.Phase)})
	if s.Phase != model.PhaseSetup {
		o.enterExiting()
		o.mirrorEvents()
	}
	o.finish(model.PhaseAborted)
}

// Close stops the loop and tears the room down. It is safe to call any number of
// times, from any goroutine, and waits for background cleanup to finish. A running
// loop ends the room itself; if it is still busy after ReleaseTimeout, Close
// returns and leaves the rest to it.
func (o *Orchestrator) Close() error {
	o.quitOnce.Do(func() { close(o.quit) })

	o.mu.Lock()
	running := o.running
	o.closed = true
	o.mu.Unlock()

	if running {
		select {
		case <-o.loopDone:
		case <-time.After(o.opts.Timing.ReleaseTimeout):
			o.log.Warn().Msg("Session loop did not stop in time")
			return nil
		}
	} else {
		o.interrupted("closed")
	}

	o.teardown()
	o.bg.Wait()
	o.doneOnce.Do(func() { close(o.done) })
	return nil
}
