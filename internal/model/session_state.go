package model

// Phase enumerates the orchestrator's lifecycle states.
type Phase string

const (
	PhaseSetup          Phase = "SETUP"
	PhaseIntroduction   Phase = "INTRODUCTION"
	PhaseAskingQuestion Phase = "ASKING_QUESTION"
	PhaseAwaitingAnswer Phase = "AWAITING_ANSWER"
	PhaseAdvancing      Phase = "ADVANCING"
	PhaseExiting        Phase = "EXITING"
	PhaseSubmitted      Phase = "SUBMITTED"
	// PhaseAborted is reached when the candidate discards the session on exit.
	PhaseAborted Phase = "ABORTED"
)

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseSubmitted || p == PhaseAborted
}

// Active reports whether the elapsed-time ticker counts in p.
func (p Phase) Active() bool {
	return p != PhaseSetup && !p.Terminal()
}

// SessionState is a read-only snapshot of a room, safe to hand to other goroutines.
type SessionState struct {
	Phase          Phase        `json:"phase"`
	QuestionIndex  int          `json:"question_index"`
	TotalQuestions int          `json:"total_questions"`
	Question       string       `json:"question,omitempty"`
	ElapsedSeconds int          `json:"elapsed_seconds"`
	AttemptID      string       `json:"attempt_id"`
	Face           FacePresence `json:"face,omitempty"`
	Capabilities   Capabilities `json:"capabilities"`
	SpeechDegraded bool         `json:"speech_degraded"`
	FaceDegraded   bool         `json:"face_degraded"`
	AnswersSaved   int          `json:"answers_saved"`
	// Notice carries actionable guidance for the candidate, e.g. after a permission denial.
	Notice string `json:"notice,omitempty"`
}
