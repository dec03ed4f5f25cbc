package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/face"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/session"
	ws "github.com/stemsi/interview-room/internal/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticQuestions []string

func (q staticQuestions) GetQuestions(_ context.Context, _, _ string, count int) ([]string, error) {
	return q[:min(count, len(q))], nil
}

type memoryBackend struct {
	mu          sync.Mutex
	answers     []model.AnswerRecord
	chunks      [][]byte
	submissions []model.SubmissionPayload
}

func (b *memoryBackend) StartInterview(context.Context, string, string, string) (string, error) {
	return "attempt-1", nil
}

func (b *memoryBackend) SaveQuestionAnswer(_ context.Context, _ string, a model.AnswerRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.answers = append(b.answers, a)
	return nil
}

func (b *memoryBackend) UploadMediaChunk(_ context.Context, _ string, chunk []byte, _ int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chunks = append(b.chunks, chunk)
	return nil
}

func (b *memoryBackend) SubmitInterview(_ context.Context, p model.SubmissionPayload) (model.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, p)
	return model.SubmitResult{Success: true, ReportID: "report-1"}, nil
}

func (b *memoryBackend) Submissions() []model.SubmissionPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.SubmissionPayload(nil), b.submissions...)
}

type nopFallback struct{}

func (nopFallback) SaveAnswer(context.Context, string, model.AnswerRecord) error      { return nil }
func (nopFallback) SaveEvents(context.Context, string, []model.ProctoringEvent) error { return nil }

// serverMessage is the union of the server events a scripted browser looks at.
type serverMessage struct {
	Event    ws.Event           `json:"event"`
	ReqID    string             `json:"req_id"`
	Op       ws.Op              `json:"op"`
	Seq      uint64             `json:"seq"`
	State    model.SessionState `json:"state"`
	Success  bool               `json:"success"`
	ReportID string             `json:"report_id"`
	Aborted  bool               `json:"aborted"`
	Error    string             `json:"error"`
}

type roomServer struct {
	url     string
	backend *memoryBackend
	served  chan error
}

func startRoomServer(t *testing.T, questions ...string) *roomServer {
	t.Helper()
	rs := &roomServer{backend: &memoryBackend{}, served: make(chan error, 1)}

	timing := session.DefaultTiming()
	timing.Tick = time.Hour
	timing.SaveTimeout = time.Second
	timing.SubmitTimeout = time.Second
	timing.ReleaseTimeout = time.Second

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rs.served <- err
			return
		}
		defer conn.Close()
		rs.served <- Serve(r.Context(), conn, Interview{
			SessionID:     "session-1",
			CandidateName: "Ada",
			Topic:         "Go",
			Difficulty:    "medium",
			QuestionCount: len(questions),
		}, Services{
			Questions: staticQuestions(questions),
			Backend:   rs.backend,
			Fallback:  nopFallback{},
		}, Settings{
			RequestTimeout: time.Second,
			Timing:         timing,
			FacePolicy:     face.DefaultRecoveryPolicy(),
			Voice:          narration.DefaultVoice(),
		}, zerolog.Nop())
	}))
	t.Cleanup(srv.Close)
	rs.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return rs
}

// browser answers server requests the way a cooperative page would.
type browser struct {
	t    *testing.T
	conn *websocket.Conn
}

func dialRoom(t *testing.T, rs *roomServer) *browser {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(rs.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(ws.ClientMessage{
		Action: ws.ActionHello,
		Device: model.DeviceInfo{UserAgent: "test", Platform: "linux"},
	}))
	return &browser{t: t, conn: conn}
}

func (b *browser) send(msg ws.ClientMessage) {
	require.NoError(b.t, b.conn.WriteJSON(msg))
}

func (b *browser) reply(m serverMessage) {
	r := &ws.Reply{ReqID: m.ReqID, OK: true}
	switch m.Op {
	case ws.OpAcquireMedia:
		r.StreamID = "stream-1"
		r.Tracks = []ws.TrackState{{Kind: "audio", Live: true}, {Kind: "video", Live: true}}
	case ws.OpRecorderStop:
		require.NoError(b.t, b.conn.WriteMessage(websocket.BinaryMessage, []byte("tail")))
	}
	b.send(ws.ClientMessage{Action: ws.ActionReply, Reply: r})
	if m.Op == ws.OpRecorderStart {
		require.NoError(b.t, b.conn.WriteMessage(websocket.BinaryMessage, []byte("head")))
	}
}

func (b *browser) next() (serverMessage, error) {
	b.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := b.conn.ReadMessage()
	if err != nil {
		return serverMessage{}, err
	}
	var m serverMessage
	require.NoError(b.t, json.Unmarshal(data, &m))
	return m, nil
}

func TestRoomRunsInterviewToSubmission(t *testing.T) {
	rs := startRoomServer(t, "Q1?", "Q2?")
	b := dialRoom(t, rs)

	started := false
	stopped := map[int]bool{}
	exited := false
	var submitted serverMessage
	var phases []model.Phase

	for submitted.Event == "" {
		m, err := b.next()
		require.NoError(t, err)

		switch m.Event {
		case ws.EventRequest:
			b.reply(m)
		case ws.EventSpeak:
			b.send(ws.ClientMessage{Action: ws.ActionNarrationStart, Seq: m.Seq})
			b.send(ws.ClientMessage{Action: ws.ActionNarrationEnd, Seq: m.Seq})
		case ws.EventState:
			s := m.State
			if len(phases) == 0 || phases[len(phases)-1] != s.Phase {
				phases = append(phases, s.Phase)
			}
			switch {
			case s.Phase == model.PhaseSetup && s.AttemptID != "" && !started:
				started = true
				b.send(ws.ClientMessage{Action: ws.ActionStart})
			case s.Phase == model.PhaseAwaitingAnswer && !stopped[s.QuestionIndex]:
				stopped[s.QuestionIndex] = true
				b.send(ws.ClientMessage{Action: ws.ActionStopAnswer})
			case s.Phase == model.PhaseExiting && !exited:
				exited = true
				b.send(ws.ClientMessage{Action: ws.ActionExit})
			}
		case ws.EventSubmitted:
			submitted = m
		case ws.EventError:
			t.Fatalf("server error: %s", m.Error)
		}
	}

	assert.True(t, submitted.Success)
	assert.Equal(t, "report-1", submitted.ReportID)
	assert.False(t, submitted.Aborted)
	assert.Contains(t, phases, model.PhaseIntroduction)
	assert.Contains(t, phases, model.PhaseExiting)

	select {
	case err := <-rs.served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	subs := rs.backend.Submissions()
	require.Len(t, subs, 1)
	p := subs[0]
	assert.Equal(t, "attempt-1", p.AttemptID)
	assert.Equal(t, []string{"Q1?", "Q2?"}, p.Questions)
	require.Len(t, p.Answers, 2)
	assert.Equal(t, 0, p.Answers[0].QuestionIndex)
	assert.Equal(t, 1, p.Answers[1].QuestionIndex)
	assert.Equal(t, "headtail", string(p.Recording))
	assert.Equal(t, "test", p.Device.UserAgent)
}

func TestRoomDisconnectAbortsAndSubmits(t *testing.T) {
	rs := startRoomServer(t, "Q1?", "Q2?")
	b := dialRoom(t, rs)

	started := false
	for {
		m, err := b.next()
		require.NoError(t, err)
		if m.Event == ws.EventRequest {
			b.reply(m)
		}
		if m.Event == ws.EventState && m.State.Phase == model.PhaseSetup && m.State.AttemptID != "" && !started {
			started = true
			b.send(ws.ClientMessage{Action: ws.ActionStart})
		}
		if m.Event == ws.EventSpeak {
			break
		}
	}
	require.NoError(t, b.conn.Close())

	select {
	case err := <-rs.served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after disconnect")
	}

	subs := rs.backend.Submissions()
	require.Len(t, subs, 1)
	assert.True(t, subs[0].Aborted)
	assert.Empty(t, subs[0].Answers)
}

func TestRoomRejectsMissingHello(t *testing.T) {
	rs := startRoomServer(t, "Q1?")
	conn, _, err := websocket.DefaultDialer.Dial(rs.url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(ws.ClientMessage{Action: ws.ActionStart}))

	select {
	case err := <-rs.served:
		require.True(t, errors.Is(err, ErrHelloRequired))
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}
}
