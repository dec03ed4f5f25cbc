package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/repository"
	"github.com/stemsi/interview-room/internal/response"
	"github.com/stemsi/interview-room/internal/service"
	"github.com/stemsi/interview-room/internal/validator"
)

type ticketIssuer interface {
	Issue(req model.CreateRoomRequest) (*service.Ticket, error)
}

type reportReader interface {
	GetReport(ctx context.Context, attemptID string) (*model.InterviewReport, error)
}

// InterviewHandler handles room tickets and reviewer reports.
type InterviewHandler struct {
	tickets ticketIssuer
	reports reportReader
	log     zerolog.Logger
}

// NewInterviewHandler creates a new InterviewHandler.
func NewInterviewHandler(tickets ticketIssuer, reports reportReader, log zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		tickets: tickets,
		reports: reports,
		log:     log.With().Str("component", "interview_handler").Logger(),
	}
}

// CreateRoom godoc
// POST /api/v1/interviews/rooms
// Issues a ticket for one interview room.
func (h *InterviewHandler) CreateRoom(c *gin.Context) {
	var req model.CreateRoomRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ticket, err := h.tickets.Issue(req)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to issue ticket")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	h.log.Info().Str("session_id", ticket.SessionID).Str("topic", req.Topic).Msg("Room ticket issued")
	response.Created(c, ticket)
}

// GetReport godoc
// GET /api/v1/interviews/:attempt_id/report
// Returns answers and violation counts for reviewers.
func (h *InterviewHandler) GetReport(c *gin.Context) {
	attemptID := c.Param("attempt_id")
	if _, err := uuid.Parse(attemptID); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	report, err := h.reports.GetReport(c.Request.Context(), attemptID)
	if err != nil {
		if errors.Is(err, repository.ErrAttemptNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
			return
		}
		h.log.Error().Err(err).Str("attempt_id", attemptID).Msg("Failed to load report")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, report)
}
