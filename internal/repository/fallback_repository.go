package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
)

// FallbackRepository keeps room data in Redis when the primary save path fails.
// Answers are also queued so the answer worker retries them into PostgreSQL.
type FallbackRepository struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFallbackRepository creates a new FallbackRepository.
func NewFallbackRepository(rdb *redis.Client, ttl time.Duration) *FallbackRepository {
	return &FallbackRepository{rdb: rdb, ttl: ttl}
}

// SaveAnswer stores the answer under its question index and queues it.
func (r *FallbackRepository) SaveAnswer(ctx context.Context, attemptID string, a model.AnswerRecord) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	job, err := json.Marshal(model.AnswerJob{AttemptID: attemptID, Answer: a})
	if err != nil {
		return fmt.Errorf("marshal answer job: %w", err)
	}

	key := config.CacheKey.FallbackAnswersKey(attemptID)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, strconv.Itoa(a.QuestionIndex), raw)
	pipe.Expire(ctx, key, r.ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job)
	_, err = pipe.Exec(ctx)
	return err
}

// SaveEvents replaces the mirrored event log of a room.
func (r *FallbackRepository) SaveEvents(ctx context.Context, sessionID string, events []model.ProctoringEvent) error {
	key := config.CacheKey.FallbackEventsKey(sessionID)
	values := make([]any, 0, len(events))
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event %s: %w", e.Type, err)
		}
		values = append(values, raw)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, key)
	if len(values) > 0 {
		pipe.RPush(ctx, key, values...)
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Answers returns the fallback answers of an attempt keyed by question index.
func (r *FallbackRepository) Answers(ctx context.Context, attemptID string) (map[int]model.AnswerRecord, error) {
	fields, err := r.rdb.HGetAll(ctx, config.CacheKey.FallbackAnswersKey(attemptID)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[int]model.AnswerRecord, len(fields))
	for field, raw := range fields {
		idx, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		var a model.AnswerRecord
		if err := json.Unmarshal([]byte(raw), &a); err != nil {
			continue
		}
		out[idx] = a
	}
	return out, nil
}

// Events returns the mirrored event log of a room.
func (r *FallbackRepository) Events(ctx context.Context, sessionID string) ([]model.ProctoringEvent, error) {
	raws, err := r.rdb.LRange(ctx, config.CacheKey.FallbackEventsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	events := make([]model.ProctoringEvent, 0, len(raws))
	for _, raw := range raws {
		var e model.ProctoringEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("decode fallback event: %w", err)
		}
		events = append(events, e)
	}
	return events, nil
}
