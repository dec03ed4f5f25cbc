package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/question"
)

// ErrNotEnoughQuestions is returned when neither bank can fill a room.
var ErrNotEnoughQuestions = errors.New("not enough questions for topic and difficulty")

type questionSampler interface {
	Sample(ctx context.Context, topic, difficulty string, limit int) ([]string, error)
}

// QuestionService picks the questions for a room. Stored questions come first,
// topped up from the built-in bank.
type QuestionService struct {
	repo questionSampler
	log  zerolog.Logger

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(repo questionSampler, log zerolog.Logger) *QuestionService {
	return &QuestionService{
		repo: repo,
		log:  log.With().Str("component", "question_service").Logger(),
		rnd:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
}

// GetQuestions returns exactly count distinct questions in random order.
func (s *QuestionService) GetQuestions(ctx context.Context, topic, difficulty string, count int) ([]string, error) {
	stored, err := s.repo.Sample(ctx, topic, difficulty, count)
	if err != nil {
		s.log.Warn().Err(err).Str("topic", topic).Msg("Question bank unavailable, using built-in questions")
		stored = nil
	}
	own, general := question.Pools(topic, difficulty)

	s.mu.Lock()
	picked, err := question.Sample(s.rnd, count, stored, own, general)
	s.mu.Unlock()
	if errors.Is(err, question.ErrNotEnough) {
		return nil, fmt.Errorf("%w: %v", ErrNotEnoughQuestions, err)
	}
	return picked, err
}
