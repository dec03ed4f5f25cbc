package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/database"
	"github.com/stemsi/interview-room/internal/response"
)

const healthTimeout = 2 * time.Second

type queueLengths interface {
	Len(ctx context.Context, queue string) (int64, error)
}

type roomCounter interface {
	Active() int64
}

// SystemHandler reports dependency health, queue backlog and open rooms.
type SystemHandler struct {
	check     func(ctx context.Context) database.Status
	queues    queueLengths
	rooms     roomCounter
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(check func(ctx context.Context) database.Status, queues queueLengths, rooms roomCounter, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		check:     check,
		queues:    queues,
		rooms:     rooms,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type healthReport struct {
	Status      string           `json:"status"`
	Uptime      string           `json:"uptime"`
	Deps        database.Status  `json:"dependencies"`
	Queues      map[string]int64 `json:"queues"`
	ActiveRooms int64            `json:"active_rooms"`
	Goroutines  int              `json:"goroutines"`
}

// Health godoc
// GET /health
// 200 when PostgreSQL and Redis answer, 503 otherwise.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	rep := healthReport{
		Status:     "ok",
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Deps:       h.check(ctx),
		Queues:     make(map[string]int64),
		Goroutines: runtime.NumGoroutine(),
	}
	if h.rooms != nil {
		rep.ActiveRooms = h.rooms.Active()
	}

	for _, q := range []string{
		config.WorkerKey.PersistAnswersQueue,
		config.WorkerKey.PersistEventsQueue,
		config.WorkerKey.FinalizeAttemptsQueue,
	} {
		n, err := h.queues.Len(ctx, q)
		if err != nil {
			rep.Queues[q] = -1
			continue
		}
		rep.Queues[q] = n
	}

	if !rep.Deps.Healthy() {
		rep.Status = "degraded"
		h.log.Warn().Str("postgres", rep.Deps.Postgres).Str("redis", rep.Deps.Redis).Msg("Health check failed")
		response.Success(c, http.StatusServiceUnavailable, rep)
		return
	}
	response.Success(c, http.StatusOK, rep)
}
