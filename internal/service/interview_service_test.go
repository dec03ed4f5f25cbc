package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/config"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAttempts struct {
	mu          sync.Mutex
	created     []model.InterviewAttempt
	answers     map[uuid.UUID][]model.AnswerRecord
	submissions []model.InterviewSubmission
	insertErr   error
}

func (f *fakeAttempts) CreateAttempt(_ context.Context, a *model.InterviewAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a.ID = uuid.New()
	a.StartedAt = time.Now()
	f.created = append(f.created, *a)
	return nil
}

func (f *fakeAttempts) UpsertAnswer(_ context.Context, id uuid.UUID, a model.AnswerRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.answers == nil {
		f.answers = make(map[uuid.UUID][]model.AnswerRecord)
	}
	f.answers[id] = append(f.answers[id], a)
	return nil
}

func (f *fakeAttempts) InsertSubmission(_ context.Context, s *model.InterviewSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	s.ID = uuid.New()
	f.submissions = append(f.submissions, *s)
	return nil
}

func (f *fakeAttempts) GetReport(_ context.Context, id uuid.UUID) (*model.InterviewReport, error) {
	return &model.InterviewReport{Attempt: model.InterviewAttempt{ID: id}}, nil
}

type fakeMedia struct {
	chunks     map[int][]byte
	recordings int
}

func (f *fakeMedia) SaveChunk(_ uuid.UUID, chunk []byte, index int) (string, error) {
	if f.chunks == nil {
		f.chunks = make(map[int][]byte)
	}
	f.chunks[index] = chunk
	return "chunk", nil
}

func (f *fakeMedia) SaveRecording(id uuid.UUID, _ []byte) (string, error) {
	f.recordings++
	return "/uploads/" + id.String() + "/recording.webm", nil
}

type fakeQueue struct {
	jobs map[string][]any
	err  error
}

func (f *fakeQueue) Push(_ context.Context, queue string, jobs ...any) error {
	if f.err != nil {
		return f.err
	}
	if f.jobs == nil {
		f.jobs = make(map[string][]any)
	}
	f.jobs[queue] = append(f.jobs[queue], jobs...)
	return nil
}

func newInterviewService() (*InterviewService, *fakeAttempts, *fakeMedia, *fakeQueue) {
	repo, media, queue := &fakeAttempts{}, &fakeMedia{}, &fakeQueue{}
	return NewInterviewService(repo, media, queue, zerolog.Nop()), repo, media, queue
}

func samplePayload(attemptID string) model.SubmissionPayload {
	return model.SubmissionPayload{
		AttemptID:     attemptID,
		SessionID:     "session-1",
		CandidateName: "Ada",
		Topic:         "go",
		Difficulty:    "easy",
		Questions:     []string{"Q1?", "Q2?"},
		Answers: []model.AnswerRecord{
			{QuestionIndex: 0, QuestionText: "Q1?", AnswerText: "one"},
			{QuestionIndex: 1, QuestionText: "Q2?", AnswerText: model.NoAnswerPlaceholder},
		},
		Events: []model.ProctoringEvent{
			{Type: model.EventSessionStart, Severity: model.SeverityInfo, Timestamp: time.Now()},
			{Type: model.EventTabBlur, Severity: model.SeverityWarning, Timestamp: time.Now(), Details: map[string]any{"kind": "tab"}},
		},
		Violations:     model.ViolationCounts{TabSwitches: 1},
		ElapsedSeconds: 42,
		Recording:      []byte("webm"),
		RecordingBytes: 4,
		SubmittedAt:    time.Now(),
	}
}

func TestStartInterviewReturnsStoredID(t *testing.T) {
	svc, repo, _, _ := newInterviewService()

	id, err := svc.StartInterview(context.Background(), "Ada", "go", "easy")
	require.NoError(t, err)
	require.Len(t, repo.created, 1)
	assert.Equal(t, repo.created[0].ID.String(), id)
	assert.Nil(t, repo.created[0].LocalRef)
}

func TestSaveAnswerRejectsLocalAttempt(t *testing.T) {
	svc, repo, _, _ := newInterviewService()

	err := svc.SaveQuestionAnswer(context.Background(), model.NewLocalAttemptID(), model.AnswerRecord{})
	require.ErrorIs(t, err, ErrLocalAttempt)

	err = svc.SaveQuestionAnswer(context.Background(), "not-a-uuid", model.AnswerRecord{})
	require.ErrorIs(t, err, ErrInvalidAttempt)
	assert.Empty(t, repo.answers)
}

func TestSaveAnswerStoresUnderAttempt(t *testing.T) {
	svc, repo, _, _ := newInterviewService()
	id := uuid.New()

	require.NoError(t, svc.SaveQuestionAnswer(context.Background(), id.String(), model.AnswerRecord{QuestionIndex: 3}))
	require.Len(t, repo.answers[id], 1)
	assert.Equal(t, 3, repo.answers[id][0].QuestionIndex)
}

func TestUploadChunkRejectsLocalAttempt(t *testing.T) {
	svc, _, media, _ := newInterviewService()

	require.ErrorIs(t, svc.UploadMediaChunk(context.Background(), model.NewLocalAttemptID(), []byte("x"), 0), ErrLocalAttempt)
	require.NoError(t, svc.UploadMediaChunk(context.Background(), uuid.NewString(), []byte("x"), 2))
	assert.Equal(t, []byte("x"), media.chunks[2])
}

func TestSubmitQueuesFollowUpWork(t *testing.T) {
	svc, repo, media, queue := newInterviewService()
	id := uuid.New()

	res, err := svc.SubmitInterview(context.Background(), samplePayload(id.String()))
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, repo.submissions, 1)
	sub := repo.submissions[0]
	assert.Equal(t, sub.ID.String(), res.ReportID)
	assert.Equal(t, id, sub.AttemptID)
	assert.Contains(t, sub.RecordingPath, id.String())
	assert.Equal(t, 1, media.recordings)

	var stored map[string]any
	require.NoError(t, json.Unmarshal(sub.Payload, &stored))
	assert.NotContains(t, stored, "recording")
	assert.EqualValues(t, 4, stored["recording_bytes"])

	assert.Len(t, queue.jobs[config.WorkerKey.PersistAnswersQueue], 2)
	events := queue.jobs[config.WorkerKey.PersistEventsQueue]
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"kind":"tab"}`, string(events[1].(model.EventJob).Details))

	fin := queue.jobs[config.WorkerKey.FinalizeAttemptsQueue]
	require.Len(t, fin, 1)
	job := fin[0].(model.FinalizeJob)
	assert.Equal(t, id.String(), job.AttemptID)
	assert.Equal(t, 42, job.ElapsedSeconds)
	assert.Empty(t, job.LocalRef)
}

func TestSubmitCreatesAttemptForLocalID(t *testing.T) {
	svc, repo, _, queue := newInterviewService()
	local := model.NewLocalAttemptID()

	res, err := svc.SubmitInterview(context.Background(), samplePayload(local))
	require.NoError(t, err)
	assert.True(t, res.Success)

	require.Len(t, repo.created, 1)
	require.NotNil(t, repo.created[0].LocalRef)
	assert.Equal(t, local, *repo.created[0].LocalRef)
	assert.Equal(t, repo.created[0].ID, repo.submissions[0].AttemptID)

	job := queue.jobs[config.WorkerKey.FinalizeAttemptsQueue][0].(model.FinalizeJob)
	assert.Equal(t, local, job.LocalRef)
	assert.Equal(t, repo.created[0].ID.String(), job.AttemptID)
}

func TestSubmitSurvivesQueueFailure(t *testing.T) {
	svc, _, _, queue := newInterviewService()
	queue.err = errors.New("redis down")

	res, err := svc.SubmitInterview(context.Background(), samplePayload(uuid.NewString()))
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestSubmitFailsWhenSubmissionNotStored(t *testing.T) {
	svc, repo, _, queue := newInterviewService()
	repo.insertErr = errors.New("db down")

	_, err := svc.SubmitInterview(context.Background(), samplePayload(uuid.NewString()))
	require.Error(t, err)
	assert.Empty(t, queue.jobs)
}
