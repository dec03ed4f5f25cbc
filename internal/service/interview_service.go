package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/repository"
)

// ErrLocalAttempt is returned for calls that need a stored attempt when the room
// only has a locally generated id. Rooms treat it like any other save failure.
var ErrLocalAttempt = errors.New("attempt exists only locally")

type attemptStore interface {
	CreateAttempt(ctx context.Context, a *model.InterviewAttempt) error
	UpsertAnswer(ctx context.Context, attemptID uuid.UUID, a model.AnswerRecord) error
	InsertSubmission(ctx context.Context, s *model.InterviewSubmission) error
	GetReport(ctx context.Context, attemptID uuid.UUID) (*model.InterviewReport, error)
}

type mediaStore interface {
	SaveChunk(attemptID uuid.UUID, chunk []byte, index int) (string, error)
	SaveRecording(attemptID uuid.UUID, blob []byte) (string, error)
}

type jobQueue interface {
	Push(ctx context.Context, queue string, jobs ...any) error
}

// InterviewService is the session API rooms talk to: it creates attempts, saves
// answers and recorder chunks, and accepts the final submission.
type InterviewService struct {
	repo  attemptStore
	media mediaStore
	queue jobQueue
	log   zerolog.Logger
}

// NewInterviewService creates a new InterviewService.
func NewInterviewService(repo attemptStore, media mediaStore, queue jobQueue, log zerolog.Logger) *InterviewService {
	return &InterviewService{
		repo:  repo,
		media: media,
		queue: queue,
		log:   log.With().Str("component", "interview_service").Logger(),
	}
}

// StartInterview creates an in-progress attempt and returns its id.
func (s *InterviewService) StartInterview(ctx context.Context, candidate, topic, difficulty string) (string, error) {
	a := &model.InterviewAttempt{CandidateName: candidate, Topic: topic, Difficulty: difficulty}
	if err := s.repo.CreateAttempt(ctx, a); err != nil {
		return "", fmt.Errorf("create attempt: %w", err)
	}
	s.log.Info().Str("attempt_id", a.ID.String()).Str("topic", topic).Msg("Interview started")
	return a.ID.String(), nil
}

// SaveQuestionAnswer stores one answer.
func (s *InterviewService) SaveQuestionAnswer(ctx context.Context, attemptID string, a model.AnswerRecord) error {
	id, err := storedAttempt(attemptID)
	if err != nil {
		return err
	}
	if err := s.repo.UpsertAnswer(ctx, id, a); err != nil {
		return fmt.Errorf("save answer %d: %w", a.QuestionIndex, err)
	}
	return nil
}

// UploadMediaChunk stores one recorder chunk.
func (s *InterviewService) UploadMediaChunk(_ context.Context, attemptID string, chunk []byte, index int) error {
	id, err := storedAttempt(attemptID)
	if err != nil {
		return err
	}
	_, err = s.media.SaveChunk(id, chunk, index)
	return err
}

// SubmitInterview stores the submission and queues its answers, events and the
// attempt finalisation. A room with a local attempt id gets its attempt created here.
func (s *InterviewService) SubmitInterview(ctx context.Context, p model.SubmissionPayload) (model.SubmitResult, error) {
	id, err := s.resolveForSubmit(ctx, p)
	if err != nil {
		return model.SubmitResult{}, err
	}
	log := s.log.With().Str("attempt_id", id.String()).Str("session_id", p.SessionID).Logger()

	var recordingPath string
	if len(p.Recording) > 0 {
		recordingPath, err = s.media.SaveRecording(id, p.Recording)
		if err != nil {
			log.Warn().Err(err).Int("bytes", len(p.Recording)).Msg("Recording not stored")
		}
	}

	raw, err := json.Marshal(p)
	if err != nil {
		return model.SubmitResult{}, fmt.Errorf("marshal submission: %w", err)
	}
	sub := &model.InterviewSubmission{AttemptID: id, Payload: raw, RecordingPath: recordingPath}
	if err := s.repo.InsertSubmission(ctx, sub); err != nil {
		return model.SubmitResult{}, fmt.Errorf("insert submission: %w", err)
	}

	s.enqueue(ctx, log, id, p)

	log.Info().
		Int("answers", len(p.Answers)).
		Int("events", len(p.Events)).
		Bool("aborted", p.Aborted).
		Str("report_id", sub.ID.String()).
		Msg("Interview submitted")
	return model.SubmitResult{Success: true, ReportID: sub.ID.String()}, nil
}

// GetReport returns the reviewer view of an attempt.
func (s *InterviewService) GetReport(ctx context.Context, attemptID string) (*model.InterviewReport, error) {
	id, err := storedAttempt(attemptID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetReport(ctx, id)
}

func (s *InterviewService) resolveForSubmit(ctx context.Context, p model.SubmissionPayload) (uuid.UUID, error) {
	if !model.IsLocalAttemptID(p.AttemptID) {
		return storedAttempt(p.AttemptID)
	}

	ref := p.AttemptID
	a := &model.InterviewAttempt{
		LocalRef:      &ref,
		CandidateName: p.CandidateName,
		Topic:         p.Topic,
		Difficulty:    p.Difficulty,
	}
	if err := s.repo.CreateAttempt(ctx, a); err != nil {
		return uuid.Nil, fmt.Errorf("create attempt for %s: %w", ref, err)
	}
	s.log.Info().Str("local_ref", ref).Str("attempt_id", a.ID.String()).Msg("Stored locally started attempt")
	return a.ID, nil
}

// enqueue hands the follow-up writes to the workers. The submission row already
// holds the full payload, so a queue failure is logged and not returned.
func (s *InterviewService) enqueue(ctx context.Context, log zerolog.Logger, id uuid.UUID, p model.SubmissionPayload) {
	attemptID := id.String()

	answers := make([]any, 0, len(p.Answers))
	for _, a := range p.Answers {
		answers = append(answers, model.AnswerJob{AttemptID: attemptID, Answer: a})
	}
	if err := s.queue.Push(ctx, config.WorkerKey.PersistAnswersQueue, answers...); err != nil {
		log.Error().Err(err).Msg("Failed to queue answers")
	}

	events := make([]any, 0, len(p.Events))
	for _, e := range p.Events {
		details, err := json.Marshal(e.Details)
		if err != nil {
			details = nil
		}
		events = append(events, model.EventJob{
			AttemptID:  attemptID,
			Type:       e.Type,
			Severity:   e.Severity,
			Details:    details,
			RecordedAt: e.Timestamp,
		})
	}
	if err := s.queue.Push(ctx, config.WorkerKey.PersistEventsQueue, events...); err != nil {
		log.Error().Err(err).Msg("Failed to queue proctoring events")
	}

	job := model.FinalizeJob{
		AttemptID:      attemptID,
		SessionID:      p.SessionID,
		ElapsedSeconds: p.ElapsedSeconds,
		Violations:     p.Violations,
		SubmittedAt:    p.SubmittedAt,
	}
	if model.IsLocalAttemptID(p.AttemptID) {
		job.LocalRef = p.AttemptID
	}
	if err := s.queue.Push(ctx, config.WorkerKey.FinalizeAttemptsQueue, job); err != nil {
		log.Error().Err(err).Msg("Failed to queue attempt finalisation")
	}
}

func storedAttempt(attemptID string) (uuid.UUID, error) {
	if model.IsLocalAttemptID(attemptID) {
		return uuid.Nil, ErrLocalAttempt
	}
	id, err := uuid.Parse(attemptID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", ErrInvalidAttempt, attemptID)
	}
	return id, nil
}

var (
	_ attemptStore = (*repository.InterviewRepository)(nil)
	_ jobQueue     = (*repository.QueueRepository)(nil)
	_ mediaStore   = (*MediaService)(nil)
)
