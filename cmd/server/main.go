package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/bridge"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/database"
	"github.com/stemsi/interview-room/internal/face"
	"github.com/stemsi/interview-room/internal/handler"
	"github.com/stemsi/interview-room/internal/logger"
	"github.com/stemsi/interview-room/internal/middleware"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/repository"
	"github.com/stemsi/interview-room/internal/router"
	"github.com/stemsi/interview-room/internal/service"
	"github.com/stemsi/interview-room/internal/session"
	"github.com/stemsi/interview-room/internal/validator"
	"github.com/stemsi/interview-room/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting interview room server")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	interviewRepo := repository.NewInterviewRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	fallbackRepo := repository.NewFallbackRepository(rdb, cfg.FallbackTTL)
	queueRepo := repository.NewQueueRepository(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	ticketService := service.NewTicketService(cfg, rdb)
	mediaService := service.NewMediaService(cfg)
	questionService := service.NewQuestionService(questionRepo, log)
	interviewService := service.NewInterviewService(interviewRepo, mediaService, queueRepo, log)

	// ─── Room Settings ────────────────────────────────────────────────
	settings := bridge.Settings{
		RequestTimeout: cfg.Room.BridgeTimeout,
		Timing: session.Timing{
			Tick:               cfg.Room.TickInterval,
			SaveTimeout:        cfg.Room.SaveTimeout,
			SubmitTimeout:      cfg.Room.SubmitTimeout,
			ReleaseTimeout:     cfg.Room.ReleaseTimeout,
			SpeechRestartDelay: cfg.Room.SpeechRestartDelay,
			ChunkInterval:      cfg.Room.ChunkInterval,
			UploadTimeout:      cfg.Room.SaveTimeout,
		},
		FacePolicy: face.RecoveryPolicy{
			PollInterval:         cfg.Room.FacePollInterval,
			MaxConsecutiveErrors: cfg.Room.FaceMaxErrors,
			MaxStaleness:         cfg.Room.FaceMaxStaleness,
			RecoveryDelay:        cfg.Room.FaceRecoveryDelay,
			RetryDelay:           cfg.Room.FaceRetryDelay,
		},
		Voice: narration.Voice{
			Rate:   cfg.Room.NarrationRate,
			Pitch:  cfg.Room.NarrationPitch,
			Volume: cfg.Room.NarrationVolume,
		},
	}

	// Rooms outlive individual HTTP requests; cancelling roomCtx interrupts
	// every open room so it mirrors its state to the fallback store.
	roomCtx, roomCancel := context.WithCancel(context.Background())
	defer roomCancel()

	// ─── Initialize Handlers ──────────────────────────────────────────
	roomHandler := handler.NewRoomHandler(
		roomCtx,
		ticketService,
		bridge.Services{
			Questions: questionService,
			Backend:   interviewService,
			Fallback:  fallbackRepo,
		},
		settings,
		cfg.MaxChunkBytes,
		cfg.AllowedOrigins,
		log,
	)
	healthCheck := func(ctx context.Context) database.Status {
		return database.Check(ctx, pool, rdb)
	}
	handlers := &router.Handlers{
		Interview: handler.NewInterviewHandler(ticketService, interviewService, log),
		Room:      roomHandler,
		System:    handler.NewSystemHandler(healthCheck, queueRepo, roomHandler, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	autosaveWorker := worker.NewAutosaveWorker(interviewRepo, rdb, log)
	proctoringWorker := worker.NewProctoringWorker(pool, rdb, log)
	finalizeWorker := worker.NewFinalizeWorker(pool, rdb, log)

	var workers sync.WaitGroup
	for _, start := range []func(context.Context){
		autosaveWorker.Start,
		proctoringWorker.Start,
		finalizeWorker.Start,
	} {
		workers.Add(1)
		go func() {
			defer workers.Done()
			start(workerCtx)
		}()
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	ticketLimiter := middleware.NewRateLimiter(ctx, 10, time.Minute)
	r := router.SetupRouter(ticketService, ticketLimiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked room
	// sockets are not tracked by the server.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Interrupt open rooms and wait for their fallback mirrors.
	roomCancel()
	roomWait := cfg.Room.SaveTimeout + cfg.Room.ReleaseTimeout
	roomCtxWait, roomWaitCancel := context.WithTimeout(context.Background(), roomWait)
	defer roomWaitCancel()
	if err := roomHandler.Wait(roomCtxWait); err != nil {
		log.Warn().Int64("active_rooms", roomHandler.Active()).Msg("Rooms still open at shutdown")
	}

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
