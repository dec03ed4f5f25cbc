package service

import (
	"testing"
	"time"

	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicketService() *TicketService {
	return NewTicketService(&config.Config{
		JWTSecret:            "test-secret",
		TicketExpiry:         time.Hour,
		DefaultQuestionCount: 5,
	}, nil)
}

func TestTicketRoundTrip(t *testing.T) {
	svc := newTicketService()

	ticket, err := svc.Issue(model.CreateRoomRequest{CandidateName: "Ada", Topic: "go", Difficulty: "easy"})
	require.NoError(t, err)
	assert.NotEmpty(t, ticket.SessionID)

	claims, err := svc.Validate(ticket.Token)
	require.NoError(t, err)
	assert.Equal(t, ticket.SessionID, claims.ID)
	assert.Equal(t, "Ada", claims.CandidateName)
	assert.Equal(t, 5, claims.QuestionCount)
}

func TestTicketRejectsForeignSignature(t *testing.T) {
	ticket, err := newTicketService().Issue(model.CreateRoomRequest{CandidateName: "Ada", Topic: "go", Difficulty: "easy", QuestionCount: 2})
	require.NoError(t, err)

	other := NewTicketService(&config.Config{JWTSecret: "another-secret", TicketExpiry: time.Hour}, nil)
	_, err = other.Validate(ticket.Token)
	require.ErrorIs(t, err, ErrInvalidTicket)
}

func TestTicketExpires(t *testing.T) {
	svc := newTicketService()
	ticket, err := svc.Issue(model.CreateRoomRequest{CandidateName: "Ada", Topic: "go", Difficulty: "easy"})
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Validate(ticket.Token)
	require.ErrorIs(t, err, ErrInvalidTicket)
}
