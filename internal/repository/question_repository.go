package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/interview-room/internal/model"
)

// QuestionRepository handles interview question bank access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// Sample returns up to limit random question texts for a topic and difficulty.
func (r *QuestionRepository) Sample(ctx context.Context, topic, difficulty string, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_text FROM interview_questions
		 WHERE lower(topic) = lower($1) AND difficulty = $2
		 ORDER BY random()
		 LIMIT $3`, topic, difficulty, limit,
	)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListByTopic retrieves every question of a topic, ordered by difficulty.
func (r *QuestionRepository) ListByTopic(ctx context.Context, topic string) ([]model.InterviewQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, topic, difficulty, question_text
		 FROM interview_questions WHERE lower(topic) = lower($1)
		 ORDER BY difficulty, question_text`, topic,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.InterviewQuestion
	for rows.Next() {
		var q model.InterviewQuestion
		if err := rows.Scan(&q.ID, &q.Topic, &q.Difficulty, &q.QuestionText); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// Create inserts a question unless the same text already exists for its topic
// and difficulty. It reports whether a row was added.
func (r *QuestionRepository) Create(ctx context.Context, q *model.InterviewQuestion) (bool, error) {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO interview_questions (topic, difficulty, question_text)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (topic, difficulty, question_text) DO NOTHING
		 RETURNING id`,
		q.Topic, q.Difficulty, q.QuestionText,
	).Scan(&q.ID)
	if err == pgx.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}
