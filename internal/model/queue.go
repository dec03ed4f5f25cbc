package model

import (
	"encoding/json"
	"time"
)

// AnswerJob is queued for the answer persistence worker.
type AnswerJob struct {
	AttemptID string       `json:"attempt_id"`
	Answer    AnswerRecord `json:"answer"`
}

// EventJob is one proctoring event queued for bulk insert.
type EventJob struct {
	AttemptID  string          `json:"attempt_id"`
	Type       EventType       `json:"type"`
	Severity   Severity        `json:"severity"`
	Details    json.RawMessage `json:"details,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// FinalizeJob closes an attempt once its submission is stored.
type FinalizeJob struct {
	AttemptID      string          `json:"attempt_id"`
	LocalRef       string          `json:"local_ref,omitempty"`
	SessionID      string          `json:"session_id"`
	ElapsedSeconds int             `json:"elapsed_seconds"`
	Violations     ViolationCounts `json:"violations"`
	SubmittedAt    time.Time       `json:"submitted_at"`
}
