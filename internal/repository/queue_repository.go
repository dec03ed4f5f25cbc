package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// QueueRepository pushes jobs onto the Redis lists drained by the workers.
type QueueRepository struct {
	rdb *redis.Client
}

// NewQueueRepository creates a new QueueRepository.
func NewQueueRepository(rdb *redis.Client) *QueueRepository {
	return &QueueRepository{rdb: rdb}
}

// Push appends jobs to queue in one round trip.
func (r *QueueRepository) Push(ctx context.Context, queue string, jobs ...any) error {
	if len(jobs) == 0 {
		return nil
	}
	pipe := r.rdb.Pipeline()
	for _, j := range jobs {
		raw, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("marshal %s job: %w", queue, err)
		}
		pipe.RPush(ctx, queue, raw)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Len reports how many jobs are waiting on queue.
func (r *QueueRepository) Len(ctx context.Context, queue string) (int64, error) {
	return r.rdb.LLen(ctx, queue).Result()
}
