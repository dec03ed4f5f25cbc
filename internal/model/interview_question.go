package model

import "github.com/google/uuid"

// InterviewQuestion is one entry of the question bank.
type InterviewQuestion struct {
	ID           uuid.UUID `json:"id"`
	Topic        string    `json:"topic"`
	Difficulty   string    `json:"difficulty"`
	QuestionText string    `json:"question_text"`
}
