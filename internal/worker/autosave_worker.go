package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/repository"
)

type answerStore interface {
	UpsertAnswer(ctx context.Context, attemptID uuid.UUID, a model.AnswerRecord) error
	ResolveLocalRef(ctx context.Context, ref string) (uuid.UUID, error)
}

// AutosaveWorker consumes the answer queue and UPSERTs answers to PostgreSQL.
type AutosaveWorker struct {
	store answerStore
	rdb   *redis.Client
	log   zerolog.Logger
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(store answerStore, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		store: store,
		rdb:   rdb,
		log:   log.With().Str("component", "autosave_worker").Logger(),
	}
}

// Start begins the infinite worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			// Drain remaining items before exit.
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	// BLPop blocks until an item is available or timeout (1 second).
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error")
			time.Sleep(time.Second)
		}
		return
	}

	if len(result) < 2 {
		return
	}

	var job model.AnswerJob
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed answer job")
		return
	}

	if err := w.persist(ctx, &job); err != nil {
		if errors.Is(err, repository.ErrAttemptNotFound) {
			// The submission carries every answer and queues them again once
			// the attempt exists.
			w.log.Warn().Str("attempt_id", job.AttemptID).Int("question_index", job.Answer.QuestionIndex).
				Msg("Attempt not stored yet, dropping answer job")
			return
		}
		w.log.Error().Err(err).
			Str("attempt_id", job.AttemptID).
			Int("question_index", job.Answer.QuestionIndex).
			Msg("Persist error, retrying in 5s")
		// Push back to queue for retry.
		w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result[1])
		time.Sleep(5 * time.Second)
	}
}

func (w *AutosaveWorker) persist(ctx context.Context, job *model.AnswerJob) error {
	id, err := resolveAttempt(ctx, w.store, job.AttemptID)
	if err != nil {
		return err
	}
	return w.store.UpsertAnswer(ctx, id, job.Answer)
}

// drain processes all remaining items in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		result, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var job model.AnswerJob
		if err := json.Unmarshal([]byte(result), &job); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.persist(ctx, &job); err != nil {
			if errors.Is(err, repository.ErrAttemptNotFound) {
				continue
			}
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, result)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}

type localRefResolver interface {
	ResolveLocalRef(ctx context.Context, ref string) (uuid.UUID, error)
}

// resolveAttempt maps a queued attempt id, stored or local, to its row id.
func resolveAttempt(ctx context.Context, r localRefResolver, attemptID string) (uuid.UUID, error) {
	if model.IsLocalAttemptID(attemptID) {
		return r.ResolveLocalRef(ctx, attemptID)
	}
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return uuid.Nil, repository.ErrAttemptNotFound
	}
	return id, nil
}
