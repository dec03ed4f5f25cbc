package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// LocalAttemptPrefix marks attempt ids generated by a room when the backend could
// not create the attempt.
const LocalAttemptPrefix = "local-"

// NewLocalAttemptID returns a fresh id in the local form.
func NewLocalAttemptID() string {
	return LocalAttemptPrefix + uuid.NewString()
}

// IsLocalAttemptID reports whether id was generated locally.
func IsLocalAttemptID(id string) bool {
	return strings.HasPrefix(id, LocalAttemptPrefix)
}

// AttemptStatus enumerates interview attempt states in storage.
type AttemptStatus string

const (
	AttemptStatusInProgress AttemptStatus = "IN_PROGRESS"
	AttemptStatusSubmitted  AttemptStatus = "SUBMITTED"
)

// InterviewAttempt represents a candidate's interview attempt.
type InterviewAttempt struct {
	ID            uuid.UUID     `json:"id"`
	LocalRef      *string       `json:"local_ref,omitempty"`
	CandidateName string        `json:"candidate_name"`
	Topic         string        `json:"topic"`
	Difficulty    string        `json:"difficulty"`
	Status        AttemptStatus `json:"status"`
	StartedAt     time.Time     `json:"started_at"`
	SubmittedAt   *time.Time    `json:"submitted_at,omitempty"`
}

// InterviewSubmission is the stored form of a SubmissionPayload.
type InterviewSubmission struct {
	ID            uuid.UUID `json:"id"`
	AttemptID     uuid.UUID `json:"attempt_id"`
	Payload       []byte    `json:"-"`
	RecordingPath string    `json:"recording_path"`
	CreatedAt     time.Time `json:"created_at"`
}

// InterviewReport is returned to reviewers.
type InterviewReport struct {
	Attempt        InterviewAttempt `json:"attempt"`
	ElapsedSeconds int              `json:"elapsed_seconds"`
	Violations     ViolationCounts  `json:"violations"`
	Answers        []AnswerRecord   `json:"answers"`
	ReportID       *uuid.UUID       `json:"report_id,omitempty"`
}

// CreateRoomRequest is the payload for requesting a room ticket.
type CreateRoomRequest struct {
	CandidateName string `json:"candidate_name" binding:"required,min=1,max=120,nocontrol"`
	Topic         string `json:"topic" binding:"required,min=1,max=60,topic"`
	Difficulty    string `json:"difficulty" binding:"required,oneof=easy medium hard"`
	QuestionCount int    `json:"question_count" binding:"omitempty,min=1,max=20"`
}
