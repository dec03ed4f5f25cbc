package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/interview-room/internal/model"
)

// ErrAttemptNotFound is returned when no attempt matches.
var ErrAttemptNotFound = errors.New("interview attempt not found")

// InterviewRepository handles attempts, answers and submissions.
type InterviewRepository struct {
	pool *pgxpool.Pool
}

// NewInterviewRepository creates a new InterviewRepository.
func NewInterviewRepository(pool *pgxpool.Pool) *InterviewRepository {
	return &InterviewRepository{pool: pool}
}

// CreateAttempt inserts a new in-progress attempt.
func (r *InterviewRepository) CreateAttempt(ctx context.Context, a *model.InterviewAttempt) error {
	a.Status = model.AttemptStatusInProgress
	return r.pool.QueryRow(ctx,
		`INSERT INTO interview_attempts (local_ref, candidate_name, topic, difficulty, status)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (local_ref) WHERE local_ref IS NOT NULL DO UPDATE SET local_ref = EXCLUDED.local_ref
		 RETURNING id, started_at`,
		a.LocalRef, a.CandidateName, a.Topic, a.Difficulty, a.Status,
	).Scan(&a.ID, &a.StartedAt)
}

// GetAttempt retrieves an attempt by id.
func (r *InterviewRepository) GetAttempt(ctx context.Context, id uuid.UUID) (*model.InterviewAttempt, error) {
	a := &model.InterviewAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, local_ref, candidate_name, topic, difficulty, status, started_at, submitted_at
		 FROM interview_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.LocalRef, &a.CandidateName, &a.Topic, &a.Difficulty, &a.Status, &a.StartedAt, &a.SubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ResolveLocalRef maps a locally generated attempt id to its stored attempt.
func (r *InterviewRepository) ResolveLocalRef(ctx context.Context, ref string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx,
		`SELECT id FROM interview_attempts WHERE local_ref = $1`, ref,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAttemptNotFound
	}
	return id, err
}

// UpsertAnswer stores the answer for one question, replacing an earlier save.
func (r *InterviewRepository) UpsertAnswer(ctx context.Context, attemptID uuid.UUID, a model.AnswerRecord) error {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO interview_answers (attempt_id, question_index, question_text, answer_text, captured_at, duration_seconds)
		 SELECT $1, $2, $3, $4, $5, $6
		 WHERE EXISTS (SELECT 1 FROM interview_attempts WHERE id = $1)
		 ON CONFLICT (attempt_id, question_index) DO UPDATE
		 SET question_text = EXCLUDED.question_text,
		     answer_text = EXCLUDED.answer_text,
		     captured_at = EXCLUDED.captured_at,
		     duration_seconds = EXCLUDED.duration_seconds`,
		attemptID, a.QuestionIndex, a.QuestionText, a.AnswerText, a.CapturedAt, a.DurationSeconds,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

// ListAnswers retrieves the answers of an attempt in question order.
func (r *InterviewRepository) ListAnswers(ctx context.Context, attemptID uuid.UUID) ([]model.AnswerRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_index, question_text, answer_text, captured_at, duration_seconds
		 FROM interview_answers WHERE attempt_id = $1
		 ORDER BY question_index`, attemptID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	answers := make([]model.AnswerRecord, 0)
	for rows.Next() {
		var a model.AnswerRecord
		if err := rows.Scan(&a.QuestionIndex, &a.QuestionText, &a.AnswerText, &a.CapturedAt, &a.DurationSeconds); err != nil {
			return nil, err
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// InsertSubmission stores a submission and fills in its id.
func (r *InterviewRepository) InsertSubmission(ctx context.Context, s *model.InterviewSubmission) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO interview_submissions (attempt_id, payload, recording_path)
		 VALUES ($1, $2::jsonb, $3)
		 RETURNING id, created_at`,
		s.AttemptID, s.Payload, s.RecordingPath,
	).Scan(&s.ID, &s.CreatedAt)
}

// GetReport assembles the reviewer view of an attempt.
func (r *InterviewRepository) GetReport(ctx context.Context, attemptID uuid.UUID) (*model.InterviewReport, error) {
	a, err := r.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}

	rep := &model.InterviewReport{Attempt: *a}
	err = r.pool.QueryRow(ctx,
		`SELECT elapsed_seconds, tab_switches, window_switches, no_face_count, multiple_face_count, total_away_seconds
		 FROM interview_attempts WHERE id = $1`, attemptID,
	).Scan(&rep.ElapsedSeconds, &rep.Violations.TabSwitches, &rep.Violations.WindowSwitches,
		&rep.Violations.NoFace, &rep.Violations.MultipleFaces, &rep.Violations.TotalAwaySeconds)
	if err != nil {
		return nil, err
	}

	var reportID uuid.UUID
	err = r.pool.QueryRow(ctx,
		`SELECT id FROM interview_submissions WHERE attempt_id = $1
		 ORDER BY created_at DESC LIMIT 1`, attemptID,
	).Scan(&reportID)
	switch {
	case err == nil:
		rep.ReportID = &reportID
	case !errors.Is(err, pgx.ErrNoRows):
		return nil, err
	}

	rep.Answers, err = r.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	return rep, nil
}
