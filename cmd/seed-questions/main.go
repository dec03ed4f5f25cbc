package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/database"
	"github.com/stemsi/interview-room/internal/logger"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/question"
	"github.com/stemsi/interview-room/internal/repository"
)

func main() {
	var topic string
	flag.StringVar(&topic, "topic", "", "Seed only this topic (default: all)")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	questionRepo := repository.NewQuestionRepository(pool)

	fmt.Println("=== Seeding Interview Questions ===")

	created, skipped := 0, 0
	for _, e := range question.All() {
		if topic != "" && !strings.EqualFold(e.Topic, topic) {
			continue
		}
		ok, err := questionRepo.Create(ctx, &model.InterviewQuestion{
			Topic:        e.Topic,
			Difficulty:   e.Difficulty,
			QuestionText: e.Text,
		})
		if err != nil {
			log.Error().Err(err).Str("topic", e.Topic).Str("difficulty", e.Difficulty).Msg("Failed to seed question")
			continue
		}
		if ok {
			created++
		} else {
			skipped++
		}
	}

	fmt.Printf("\nSeed completed! Added %d questions, %d already present.\n", created, skipped)
}
