package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
)

// Common ticket errors.
var (
	ErrInvalidTicket     = errors.New("invalid room ticket")
	ErrRoomAlreadyActive = errors.New("ticket is already attached to a live room")
)

// TicketClaims carries what a room needs to know about its interview.
type TicketClaims struct {
	jwt.RegisteredClaims
	CandidateName string `json:"candidate_name"`
	Topic         string `json:"topic"`
	Difficulty    string `json:"difficulty"`
	QuestionCount int    `json:"question_count"`
}

// Ticket is returned to the client that asked for a room.
type Ticket struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TicketService issues room tickets and guards the one-live-room-per-ticket rule.
type TicketService struct {
	cfg *config.Config
	rdb *redis.Client
	now func() time.Time
}

// NewTicketService creates a new TicketService.
func NewTicketService(cfg *config.Config, rdb *redis.Client) *TicketService {
	return &TicketService{cfg: cfg, rdb: rdb, now: time.Now}
}

// Issue signs a ticket for req. The ticket id doubles as the room session id.
func (s *TicketService) Issue(req model.CreateRoomRequest) (*Ticket, error) {
	count := req.QuestionCount
	if count <= 0 {
		count = s.cfg.DefaultQuestionCount
	}

	jti := uuid.New().String()
	now := s.now()
	exp := now.Add(s.cfg.TicketExpiry)

	claims := TicketClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   req.CandidateName,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		CandidateName: req.CandidateName,
		Topic:         req.Topic,
		Difficulty:    req.Difficulty,
		QuestionCount: count,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("sign ticket: %w", err)
	}
	return &Ticket{Token: signed, SessionID: jti, ExpiresAt: exp}, nil
}

// Validate parses and validates a ticket, returning its claims.
func (s *TicketService) Validate(tokenStr string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &TicketClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTicket, err)
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid || claims.ID == "" {
		return nil, ErrInvalidTicket
	}
	return claims, nil
}

// Attach marks the ticket as live until Detach or the ticket expires.
func (s *TicketService) Attach(ctx context.Context, c *TicketClaims) error {
	ttl := s.cfg.TicketExpiry
	if c.ExpiresAt != nil {
		ttl = c.ExpiresAt.Sub(s.now())
	}
	if ttl <= 0 {
		return ErrInvalidTicket
	}

	ok, err := s.rdb.SetNX(ctx, config.CacheKey.ActiveRoomKey(c.ID), s.now().Unix(), ttl).Result()
	if err != nil {
		return fmt.Errorf("attach room: %w", err)
	}
	if !ok {
		return ErrRoomAlreadyActive
	}
	return nil
}

// Detach releases the ticket so it can be used to reconnect.
func (s *TicketService) Detach(ctx context.Context, ticketID string) error {
	return s.rdb.Del(ctx, config.CacheKey.ActiveRoomKey(ticketID)).Err()
}
