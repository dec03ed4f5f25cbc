package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/face"
	"github.com/stemsi/interview-room/internal/media"
	"github.com/stemsi/interview-room/internal/model"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/session"
	ws "github.com/stemsi/interview-room/internal/websocket"
)

// ErrHelloRequired is returned when the first client message is not a hello.
var ErrHelloRequired = errors.New("first room message must be hello")

// Interview is what the room ticket authorises.
type Interview struct {
	SessionID     string
	CandidateName string
	Topic         string
	Difficulty    string
	QuestionCount int
}

// Services are the server-side collaborators shared by every room.
type Services struct {
	Questions session.QuestionSource
	Backend   session.Backend
	Fallback  session.FallbackStore
}

// Settings tune the bridge and the room it hosts.
type Settings struct {
	RequestTimeout time.Duration
	Timing         session.Timing
	FacePolicy     face.RecoveryPolicy
	Voice          narration.Voice
}

// Room binds one socket to one orchestrator.
type Room struct {
	conn        *websocket.Conn
	peer        *Peer
	narrator    *Narrator
	recognizer  *Recognizer
	frames      *Frames
	classifiers *Classifiers
	camera      *Camera
	recorder    *Recorder
	lock        *Lock
	orch        *session.Orchestrator
	log         zerolog.Logger
}

// Serve runs an interview over conn until the room ends or the client leaves. A
// client that disconnects mid-interview aborts it; what was captured is submitted.
func Serve(ctx context.Context, conn *websocket.Conn, iv Interview, svc Services, st Settings, log zerolog.Logger) error {
	log = log.With().Str("session_id", iv.SessionID).Logger()

	var hello ws.ClientMessage
	if err := ws.ReadJSON(conn, &hello); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if hello.Action != ws.ActionHello {
		_ = ws.WriteError(conn, ErrHelloRequired.Error())
		return ErrHelloRequired
	}

	peer := NewPeer(conn, st.RequestTimeout, log)
	r := &Room{
		conn:        conn,
		peer:        peer,
		narrator:    NewNarrator(peer),
		recognizer:  NewRecognizer(peer),
		frames:      NewFrames(peer),
		classifiers: NewClassifiers(peer),
		camera:      NewCamera(peer),
		recorder:    NewRecorder(peer, st.RequestTimeout),
		lock:        NewLock(peer),
		log:         log.With().Str("component", "room").Logger(),
	}

	r.orch = session.New(session.Options{
		SessionID:     iv.SessionID,
		CandidateName: iv.CandidateName,
		Topic:         iv.Topic,
		Difficulty:    iv.Difficulty,
		QuestionCount: iv.QuestionCount,
		Device:        hello.Device,
		Reported:      hello.Capabilities,
		Timing:        st.Timing,
		FacePolicy:    st.FacePolicy,
		Voice:         st.Voice,
	}, session.Deps{
		Questions:   svc.Questions,
		Backend:     svc.Backend,
		Fallback:    svc.Fallback,
		Narrator:    r.narrator,
		Recognizer:  r.recognizer,
		FaceBackend: r.classifiers,
		Frames:      r.frames,
		MediaDevice: r.camera,
		Recorder:    r.recorder,
		Sinks:       []media.Sink{NewSink(peer, "preview"), NewSink(peer, "visualizer")},
		Lock:        r.lock,
		Hooks: session.Hooks{
			OnState:     r.pushState,
			OnSubmitted: r.pushSubmitted,
		},
		Log: log,
	})
	defer r.orch.Close()
	defer peer.Close()

	readErr := make(chan error, 1)
	go func() { readErr <- r.readLoop() }()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := r.orch.Prepare(runCtx); err != nil {
		r.log.Warn().Err(err).Msg("Room setup failed")
		_ = peer.Send(ws.ErrorResponse{Event: ws.EventError, Error: err.Error()})
		return err
	}
	go func() { _ = r.orch.Run(runCtx) }()

	select {
	case <-r.orch.Done():
		r.log.Info().Str("phase", string(r.orch.Snapshot().Phase)).Msg("Room finished")
		return nil
	case err := <-readErr:
		peer.Close()
		r.log.Info().Err(err).Msg("Client left, aborting room")
		r.orch.Dispatch(session.AbortRequested{Reason: "disconnected"})

		grace := st.Timing.SubmitTimeout + 2*st.Timing.SaveTimeout
		select {
		case <-r.orch.Done():
		case <-time.After(grace):
			r.log.Warn().Msg("Room did not settle after disconnect")
		case <-ctx.Done():
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Room) readLoop() error {
	for {
		mt, data, err := ws.ReadMessage(r.conn)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.log.Warn().Err(err).Msg("Unexpected close")
			}
			return err
		}
		if mt == websocket.BinaryMessage {
			r.recorder.chunk(data)
			continue
		}

		var msg ws.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			r.log.Debug().Err(err).Msg("Malformed room message")
			_ = r.peer.Send(ws.ErrorResponse{Event: ws.EventError, Error: "malformed message"})
			continue
		}
		r.route(msg)
	}
}

func (r *Room) route(msg ws.ClientMessage) {
	switch msg.Action {
	case ws.ActionStart:
		r.orch.Dispatch(session.StartRequested{})
	case ws.ActionStopAnswer:
		r.orch.Dispatch(session.StopAnswerRequested{})
	case ws.ActionExit:
		r.orch.Dispatch(session.ExitRequested{Discard: msg.Discard})
	case ws.ActionAbort:
		reason := msg.Reason
		if reason == "" {
			reason = "candidate aborted"
		}
		r.orch.Dispatch(session.AbortRequested{Reason: reason})
	case ws.ActionVisibility:
		r.orch.Dispatch(session.VisibilityChanged{Kind: msg.Kind, Hidden: msg.State == ws.VisibilityBlur})
	case ws.ActionNarrationStart:
		r.narrator.started(msg.Seq)
	case ws.ActionNarrationEnd:
		r.narrator.ended(msg.Seq)
	case ws.ActionTranscript:
		r.recognizer.transcript(msg.Text, msg.Final)
	case ws.ActionRecognitionEnd:
		r.recognizer.ended()
	case ws.ActionRecognitionError:
		r.recognizer.failed(msg.Code, msg.Text)
	case ws.ActionFrameState:
		if msg.Frame != nil {
			r.frames.update(*msg.Frame)
		}
	case ws.ActionReply:
		if msg.Reply != nil {
			r.peer.Deliver(*msg.Reply)
		}
	case ws.ActionPing:
		_ = r.peer.Send(ws.SignalEvent{Event: ws.EventPong})
	case ws.ActionHello:
		r.log.Debug().Msg("Ignoring repeated hello")
	default:
		r.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = r.peer.Send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(msg.Action)})
	}
}

func (r *Room) pushState(s model.SessionState) {
	if err := r.peer.Send(ws.StateEvent{Event: ws.EventState, State: s}); err != nil {
		r.log.Debug().Err(err).Msg("State not delivered")
	}
}

func (r *Room) pushSubmitted(p model.SubmissionPayload, res model.SubmitResult, err error) {
	_ = r.peer.Send(ws.SubmittedEvent{
		Event:    ws.EventSubmitted,
		Success:  err == nil,
		ReportID: res.ReportID,
		Aborted:  p.Aborted,
	})
}
