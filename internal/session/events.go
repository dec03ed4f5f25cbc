package session

import "github.com/stemsi/interview-room/internal/model"

// Event is anything the loop can apply to the room.
type Event interface {
	isEvent()
}

// StartRequested asks to leave setup and begin the interview.
type StartRequested struct{}

// NarrationFinished reports the end of the utterance tagged Seq.
type NarrationFinished struct{ Seq uint64 }

// StopAnswerRequested ends the current answer capture window.
type StopAnswerRequested struct{}

// ExitRequested confirms leaving the room. Discard ends it without submitting.
type ExitRequested struct{ Discard bool }

// AbortRequested abandons the session from any phase; whatever was captured is submitted.
type AbortRequested struct{ Reason string }

// Tick advances the elapsed-time counter.
type Tick struct{}

// VisibilityChanged reports the candidate leaving (Hidden) or returning to the room.
type VisibilityChanged struct {
	Kind   model.VisibilityKind
	Hidden bool
}

// FaceChanged carries a debounced presence transition.
type FaceChanged struct{ Presence model.FacePresence }

// FaceDegraded means face monitoring stopped for good.
type FaceDegraded struct{ Err error }

// SpeechUnavailable means speech capture stopped for good.
type SpeechUnavailable struct{ Err error }

// AnswerPersisted reports that the save for question Index finished, remotely or
// in the fallback store.
type AnswerPersisted struct {
	Index  int
	Remote bool
}

// SubmitDue ends the wait for pending answer saves before submitting.
type SubmitDue struct{}

// SubmissionSettled carries the outcome of the submission call.
type SubmissionSettled struct {
	Result model.SubmitResult
	Err    error
}

func (StartRequested) isEvent()      {}
func (NarrationFinished) isEvent()   {}
func (StopAnswerRequested) isEvent() {}
func (ExitRequested) isEvent()       {}
func (AbortRequested) isEvent()      {}
func (Tick) isEvent()                {}
func (VisibilityChanged) isEvent()   {}
func (FaceChanged) isEvent()         {}
func (FaceDegraded) isEvent()        {}
func (SpeechUnavailable) isEvent()   {}
func (AnswerPersisted) isEvent()     {}
func (SubmitDue) isEvent()           {}
func (SubmissionSettled) isEvent()   {}
