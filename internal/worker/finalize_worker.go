package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
)

const (
	FinalizeBatchSize    = 50
	FinalizeBatchTimeout = 2 * time.Second
)

// FinalizeWorker marks submitted attempts and clears their fallback keys.
type FinalizeWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewFinalizeWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *FinalizeWorker {
	return &FinalizeWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "finalize_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *FinalizeWorker) Start(ctx context.Context) {
	w.log.Info().Msg("FinalizeWorker started")

	batch := make([]*model.FinalizeJob, 0, FinalizeBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= FinalizeBatchSize || time.Since(lastFlush) >= FinalizeBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.FinalizeAttemptsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(time.Second)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			var job model.FinalizeJob
			if err := json.Unmarshal([]byte(item[1]), &job); err != nil {
				w.log.Error().Err(err).Msg("Invalid JSON payload")
				continue
			}

			batch = append(batch, &job)
		}
	}
}

// ----------------------------------------------------------------
// Batch update wrapper
// ----------------------------------------------------------------

func (w *FinalizeWorker) flushSafe(ctx context.Context, batch []*model.FinalizeJob) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkFinalize(ctx, batch); err != nil {
		w.log.Warn().Err(err).Msg("bulk finalize failed, using fallback")

		done := make([]*model.FinalizeJob, 0, len(batch))
		for _, j := range batch {
			if err := w.finalizeSingle(ctx, j); err != nil {
				w.log.Error().Err(err).Str("attempt_id", j.AttemptID).Msg("finalizeSingle failed, requeueing")
				raw, _ := json.Marshal(j)
				w.rdb.RPush(ctx, config.WorkerKey.FinalizeAttemptsQueue, raw)
				continue
			}
			done = append(done, j)
		}
		w.clearFallbacks(ctx, done)
		return
	}

	w.clearFallbacks(ctx, batch)
}

// ----------------------------------------------------------------
// Bulk PostgreSQL UPDATE using UNNEST
// ----------------------------------------------------------------

func (w *FinalizeWorker) bulkFinalize(ctx context.Context, batch []*model.FinalizeJob) error {
	n := len(batch)
	ids := make([]uuid.UUID, 0, n)
	elapsed := make([]int, 0, n)
	tabs := make([]int, 0, n)
	windows := make([]int, 0, n)
	noFace := make([]int, 0, n)
	multiple := make([]int, 0, n)
	away := make([]float64, 0, n)
	submittedAts := make([]time.Time, 0, n)

	for _, j := range batch {
		id, err := uuid.Parse(j.AttemptID)
		if err != nil {
			return err
		}
		ids = append(ids, id)
		elapsed = append(elapsed, j.ElapsedSeconds)
		tabs = append(tabs, j.Violations.TabSwitches)
		windows = append(windows, j.Violations.WindowSwitches)
		noFace = append(noFace, j.Violations.NoFace)
		multiple = append(multiple, j.Violations.MultipleFaces)
		away = append(away, j.Violations.TotalAwaySeconds)
		submittedAts = append(submittedAts, submittedAt(j))
	}

	query := `
		UPDATE interview_attempts AS a
		SET status = 'SUBMITTED',
		    elapsed_seconds = t.elapsed,
		    tab_switches = t.tabs,
		    window_switches = t.windows,
		    no_face_count = t.no_face,
		    multiple_face_count = t.multiple,
		    total_away_seconds = t.away,
		    submitted_at = t.submitted_at
		FROM (
			SELECT *
			FROM UNNEST(
				$1::uuid[],
				$2::int[],
				$3::int[],
				$4::int[],
				$5::int[],
				$6::int[],
				$7::float8[],
				$8::timestamptz[]
			) AS u (id, elapsed, tabs, windows, no_face, multiple, away, submitted_at)
		) AS t
		WHERE a.id = t.id
	`

	_, err := w.pool.Exec(ctx, query, ids, elapsed, tabs, windows, noFace, multiple, away, submittedAts)
	return err
}

// ----------------------------------------------------------------
// Fallback single update
// ----------------------------------------------------------------

func (w *FinalizeWorker) finalizeSingle(ctx context.Context, j *model.FinalizeJob) error {
	id, err := uuid.Parse(j.AttemptID)
	if err != nil {
		w.log.Error().Str("attempt_id", j.AttemptID).Msg("Dropping finalize job with invalid UUID")
		return nil
	}

	_, err = w.pool.Exec(ctx,
		`UPDATE interview_attempts
		 SET status = 'SUBMITTED',
		     elapsed_seconds = $1,
		     tab_switches = $2,
		     window_switches = $3,
		     no_face_count = $4,
		     multiple_face_count = $5,
		     total_away_seconds = $6,
		     submitted_at = $7
		 WHERE id = $8`,
		j.ElapsedSeconds, j.Violations.TabSwitches, j.Violations.WindowSwitches,
		j.Violations.NoFace, j.Violations.MultipleFaces, j.Violations.TotalAwaySeconds,
		submittedAt(j), id,
	)
	return err
}

// ----------------------------------------------------------------
// Bulk Redis DEL of fallback mirrors
// ----------------------------------------------------------------

func (w *FinalizeWorker) clearFallbacks(ctx context.Context, batch []*model.FinalizeJob) {
	if len(batch) == 0 {
		return
	}
	pipe := w.rdb.Pipeline()
	for _, key := range fallbackKeys(batch) {
		pipe.Del(ctx, key)
	}
	_, _ = pipe.Exec(ctx)
}

// fallbackKeys lists every Redis key a finished attempt may have left behind.
func fallbackKeys(batch []*model.FinalizeJob) []string {
	keys := make([]string, 0, len(batch)*3)
	for _, j := range batch {
		keys = append(keys, config.CacheKey.FallbackAnswersKey(j.AttemptID))
		if j.LocalRef != "" {
			keys = append(keys, config.CacheKey.FallbackAnswersKey(j.LocalRef))
		}
		if j.SessionID != "" {
			keys = append(keys, config.CacheKey.FallbackEventsKey(j.SessionID))
		}
	}
	return keys
}

func submittedAt(j *model.FinalizeJob) time.Time {
	if j.SubmittedAt.IsZero() {
		return time.Now()
	}
	return j.SubmittedAt
}
