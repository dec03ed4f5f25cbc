package model

import "time"

// SubmissionPayload is assembled exactly once when a room leaves EXITING.
type SubmissionPayload struct {
	AttemptID      string            `json:"attempt_id"`
	SessionID      string            `json:"session_id"`
	CandidateName  string            `json:"candidate_name,omitempty"`
	Topic          string            `json:"topic"`
	Difficulty     string            `json:"difficulty"`
	Questions      []string          `json:"questions"`
	Answers        []AnswerRecord    `json:"answers"`
	Events         []ProctoringEvent `json:"events"`
	Violations     ViolationCounts   `json:"violations"`
	ElapsedSeconds int               `json:"elapsed_seconds"`
	Aborted        bool              `json:"aborted"`
	Device         DeviceInfo        `json:"device"`
	Capabilities   Capabilities      `json:"capabilities"`
	SubmittedAt    time.Time         `json:"submitted_at"`
	// Recording is the full media blob retained in memory as an upload fallback.
	Recording      []byte `json:"-"`
	RecordingBytes int    `json:"recording_bytes"`
}

// SubmitResult is the backend's answer to a submission.
type SubmitResult struct {
	Success  bool   `json:"success"`
	ReportID string `json:"report_id"`
}
