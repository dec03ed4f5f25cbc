package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/handler"
	"github.com/stemsi/interview-room/internal/middleware"
	"github.com/stemsi/interview-room/internal/response"
	"github.com/stemsi/interview-room/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Interview *handler.InterviewHandler
	Room      *handler.RoomHandler
	System    *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	tickets *service.TicketService,
	ticketLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID", "X-Review-Key"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Health check.
	router.GET("/health", middleware.NoStore(), handlers.System.Health)

	// ─── 1. Room tickets (public, rate limited) ────────────────────────
	interviews := router.Group("/api/v1/interviews")
	interviews.Use(middleware.NoStore())
	{
		interviews.POST("/rooms", ticketLimiter.Middleware(), handlers.Interview.CreateRoom)
	}

	// ─── 2. Reviewer reports (X-Review-Key) ────────────────────────────
	reports := interviews.Group("")
	reports.Use(middleware.RequireReviewKey(cfg.ReviewAPIKey), middleware.Brotli())
	{
		reports.GET("/:attempt_id/report", handlers.Interview.GetReport)
	}

	// ─── 3. WebSocket Group (room ticket) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireRoomTicket(tickets))
	{
		ws.GET("/interviews/room", handlers.Room.RoomStream)
	}

	return router
}
