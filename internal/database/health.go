package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Status is the dependency report served by the health endpoint.
type Status struct {
	Postgres string `json:"postgres"`
	Redis    string `json:"redis"`
}

// Healthy reports whether every dependency answered.
func (s Status) Healthy() bool {
	return s.Postgres == "ok" && s.Redis == "ok"
}

// Check pings PostgreSQL and Redis.
func Check(ctx context.Context, pool *pgxpool.Pool, rdb *redis.Client) Status {
	st := Status{Postgres: "ok", Redis: "ok"}
	if err := pool.Ping(ctx); err != nil {
		st.Postgres = err.Error()
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		st.Redis = err.Error()
	}
	return st
}

// waitReady calls ping up to attempts times, doubling the pause between tries
// from 500ms up to 8s.
func waitReady(ctx context.Context, attempts int, log zerolog.Logger, ping func(context.Context) error) error {
	attempts = max(attempts, 1)
	delay := 500 * time.Millisecond

	var err error
	for i := 1; ; i++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if i >= attempts {
			return err
		}
		log.Warn().Err(err).Int("attempt", i).Dur("retry_in", delay).Msg("Dependency not ready")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, 8*time.Second)
	}
}
