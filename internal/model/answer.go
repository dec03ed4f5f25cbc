package model

import "time"

// NoAnswerPlaceholder is stored when the candidate stops answering without speaking.
// It keeps a missing answer distinguishable from a failed submission.
const NoAnswerPlaceholder = "[no answer provided]"

// AnswerRecord is produced once per question when answer capture stops.
type AnswerRecord struct {
	QuestionIndex   int       `json:"question_index"`
	QuestionText    string    `json:"question_text"`
	AnswerText      string    `json:"answer_text"`
	CapturedAt      time.Time `json:"captured_at"`
	DurationSeconds int       `json:"duration_seconds"`
}
