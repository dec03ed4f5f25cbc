package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/bridge"
	"github.com/stemsi/interview-room/internal/logger"
	"github.com/stemsi/interview-room/internal/middleware"
	"github.com/stemsi/interview-room/internal/response"
	"github.com/stemsi/interview-room/internal/service"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

type roomTickets interface {
	Attach(ctx context.Context, c *service.TicketClaims) error
	Detach(ctx context.Context, ticketID string) error
}

// RoomHandler hosts interview rooms over WebSocket.
type RoomHandler struct {
	base      context.Context
	tickets   roomTickets
	services  bridge.Services
	settings  bridge.Settings
	readLimit int64
	log       zerolog.Logger
	upgrader  websocket.Upgrader

	rooms  sync.WaitGroup
	active atomic.Int64
}

// NewRoomHandler creates a new RoomHandler. Rooms end when base is cancelled.
func NewRoomHandler(
	base context.Context,
	tickets roomTickets,
	services bridge.Services,
	settings bridge.Settings,
	maxChunkBytes int64,
	allowedOrigins []string,
	log zerolog.Logger,
) *RoomHandler {
	return &RoomHandler{
		base:      base,
		tickets:   tickets,
		services:  services,
		settings:  settings,
		readLimit: maxChunkBytes + 64*1024,
		log:       log.With().Str("component", "room_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// RoomStream godoc
// WS /ws/v1/interviews/room?token=...
// Runs one interview for the ticket holder.
func (h *RoomHandler) RoomStream(c *gin.Context) {
	claims := middleware.GetTicket(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTicketRequired)
		return
	}

	if err := h.tickets.Attach(c.Request.Context(), claims); err != nil {
		if errors.Is(err, service.ErrRoomAlreadyActive) {
			response.Fail(c, http.StatusConflict, response.ErrRoomActive)
			return
		}
		h.log.Error().Err(err).Msg("Failed to attach room")
		response.Fail(c, http.StatusServiceUnavailable, response.ErrUnavailable)
		return
	}
	defer func() {
		if err := h.tickets.Detach(context.Background(), claims.ID); err != nil {
			h.log.Warn().Err(err).Str("session_id", claims.ID).Msg("Failed to detach room")
		}
	}()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(h.readLimit)

	h.rooms.Add(1)
	h.active.Add(1)
	defer func() {
		h.active.Add(-1)
		h.rooms.Done()
	}()

	reqLog := h.log.With().Str("request_id", response.RequestID(c)).Logger()
	roomLog := logger.ForRoom(reqLog, claims.ID, claims.Topic, claims.Difficulty)
	roomLog.Info().Msg("Candidate connected")

	err = bridge.Serve(h.base, conn, bridge.Interview{
		SessionID:     claims.ID,
		CandidateName: claims.CandidateName,
		Topic:         claims.Topic,
		Difficulty:    claims.Difficulty,
		QuestionCount: claims.QuestionCount,
	}, h.services, h.settings, roomLog)
	if err != nil && !errors.Is(err, context.Canceled) {
		roomLog.Warn().Err(err).Msg("Room ended with error")
		return
	}
	roomLog.Info().Msg("Candidate disconnected")
}

// Active reports how many rooms are open.
func (h *RoomHandler) Active() int64 {
	return h.active.Load()
}

// Wait blocks until every open room has finished or ctx ends.
func (h *RoomHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.rooms.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
