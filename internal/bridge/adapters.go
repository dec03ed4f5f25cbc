package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stemsi/interview-room/internal/face"
	"github.com/stemsi/interview-room/internal/media"
	"github.com/stemsi/interview-room/internal/narration"
	"github.com/stemsi/interview-room/internal/speech"
	ws "github.com/stemsi/interview-room/internal/websocket"
)

// ErrNoFrame is returned until the browser has reported the preview element once.
var ErrNoFrame = errors.New("no frame state reported yet")

// ─── Narration ──────────────────────────────────────────────────────

// Narrator plays utterances with the browser's speech synthesis. Only the
// latest utterance is tracked, matching the browser's single-flight queue.
type Narrator struct {
	peer *Peer

	mu   sync.Mutex
	seq  uint64
	cur  uint64
	opts narration.Options
}

func NewNarrator(peer *Peer) *Narrator {
	return &Narrator{peer: peer}
}

func (n *Narrator) Speak(text string, opts narration.Options) {
	n.mu.Lock()
	n.seq++
	seq := n.seq
	n.cur = seq
	n.opts = opts
	n.mu.Unlock()

	if err := n.peer.Send(ws.SpeakEvent{
		Event:  ws.EventSpeak,
		Seq:    seq,
		Text:   text,
		Rate:   opts.Rate,
		Pitch:  opts.Pitch,
		Volume: opts.Volume,
	}); err != nil {
		n.peer.log.Debug().Err(err).Uint64("seq", seq).Msg("Speak not delivered")
	}
}

func (n *Narrator) Cancel() {
	n.mu.Lock()
	n.cur = 0
	n.mu.Unlock()
	_ = n.peer.Send(ws.SignalEvent{Event: ws.EventCancelSpeech})
}

func (n *Narrator) started(seq uint64) {
	n.mu.Lock()
	f := n.opts.OnStart
	current := seq == n.cur
	n.mu.Unlock()
	if current && f != nil {
		f()
	}
}

func (n *Narrator) ended(seq uint64) {
	n.mu.Lock()
	if seq == 0 || seq != n.cur {
		n.mu.Unlock()
		return
	}
	n.cur = 0
	f := n.opts.OnEnd
	n.mu.Unlock()
	if f != nil {
		f()
	}
}

// ─── Speech recognition ─────────────────────────────────────────────

// Recognizer drives the browser's continuous speech recognition.
type Recognizer struct {
	peer *Peer

	mu sync.Mutex
	h  speech.Handler
}

func NewRecognizer(peer *Peer) *Recognizer {
	return &Recognizer{peer: peer}
}

func (r *Recognizer) Start(ctx context.Context, h speech.Handler) error {
	r.mu.Lock()
	r.h = h
	r.mu.Unlock()

	_, err := r.peer.Request(ctx, ws.RequestEvent{Op: ws.OpRecognitionStart})
	if err == nil {
		return nil
	}
	return recognitionError(remoteCode(err), err)
}

func (r *Recognizer) Stop() error {
	return r.peer.Send(ws.SignalEvent{Event: ws.EventRecognitionStop})
}

func (r *Recognizer) handler() speech.Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.h
}

func (r *Recognizer) transcript(text string, final bool) {
	if h := r.handler(); h != nil {
		h.OnTranscript(text, final)
	}
}

func (r *Recognizer) ended() {
	if h := r.handler(); h != nil {
		h.OnEnd()
	}
}

func (r *Recognizer) failed(code ws.ErrorCode, msg string) {
	if h := r.handler(); h != nil {
		h.OnError(recognitionError(code, &RemoteError{Op: ws.OpRecognitionStart, Code: code, Message: msg}))
	}
}

func recognitionError(code ws.ErrorCode, err error) error {
	switch code {
	case ws.CodeNotAllowed:
		return fmt.Errorf("%w: %v", speech.ErrPermissionDenied, err)
	case ws.CodeAlreadyStarted:
		return speech.ErrAlreadyStarted
	case ws.CodeUnavailable:
		return fmt.Errorf("%w: %v", speech.ErrUnavailable, err)
	default:
		return err
	}
}

// ─── Face presence ──────────────────────────────────────────────────

// Frames keeps the last preview element state the browser reported.
type Frames struct {
	peer *Peer

	mu    sync.Mutex
	frame face.Frame
	seen  bool
}

func NewFrames(peer *Peer) *Frames {
	return &Frames{peer: peer}
}

func (f *Frames) CurrentFrame(context.Context) (face.Frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.seen {
		return face.Frame{}, ErrNoFrame
	}
	return f.frame, nil
}

func (f *Frames) Resume(ctx context.Context) error {
	_, err := f.peer.Request(ctx, ws.RequestEvent{Op: ws.OpResumeVideo})
	return err
}

func (f *Frames) update(s ws.FrameState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = true
	f.frame = face.Frame{
		Attached:       s.Attached,
		MetadataLoaded: s.MetadataLoaded,
		Width:          s.Width,
		Height:         s.Height,
		Paused:         s.Paused,
	}
}

// Classifiers loads the in-browser face classifier.
type Classifiers struct {
	peer *Peer
}

func NewClassifiers(peer *Peer) *Classifiers {
	return &Classifiers{peer: peer}
}

func (c *Classifiers) Init(ctx context.Context) error {
	_, err := c.peer.Request(ctx, ws.RequestEvent{Op: ws.OpInitClassifier})
	return err
}

func (c *Classifiers) Load(ctx context.Context) (face.Classifier, error) {
	if _, err := c.peer.Request(ctx, ws.RequestEvent{Op: ws.OpLoadClassifier}); err != nil {
		return nil, err
	}
	return &classifier{peer: c.peer}, nil
}

type classifier struct {
	peer *Peer
}

func (c *classifier) EstimateFaces(ctx context.Context, _ face.Frame) (int, error) {
	r, err := c.peer.Request(ctx, ws.RequestEvent{Op: ws.OpEstimateFaces})
	if err != nil {
		return 0, err
	}
	return r.Count, nil
}

func (c *classifier) Close() error {
	err := c.peer.Send(ws.SignalEvent{Event: ws.EventDisposeClassifier})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// ─── Media ──────────────────────────────────────────────────────────

// Camera opens audio/video streams in the browser.
type Camera struct {
	peer *Peer
}

func NewCamera(peer *Peer) *Camera {
	return &Camera{peer: peer}
}

func (c *Camera) Acquire(ctx context.Context) (media.Stream, error) {
	r, err := c.peer.Request(ctx, ws.RequestEvent{Op: ws.OpAcquireMedia})
	if err != nil {
		if remoteCode(err) == ws.CodeNotAllowed {
			return nil, fmt.Errorf("%w: %v", media.ErrPermissionDenied, err)
		}
		return nil, err
	}

	s := &remoteStream{id: r.StreamID}
	for _, t := range r.Tracks {
		rt := &remoteTrack{peer: c.peer, streamID: r.StreamID, kind: media.TrackKind(t.Kind)}
		rt.live.Store(t.Live)
		s.tracks = append(s.tracks, rt)
	}
	return s, nil
}

type remoteStream struct {
	id     string
	tracks []*remoteTrack
}

func (s *remoteStream) ID() string { return s.id }

func (s *remoteStream) Tracks() []media.Track {
	out := make([]media.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

type remoteTrack struct {
	peer     *Peer
	streamID string
	kind     media.TrackKind
	live     atomic.Bool
}

func (t *remoteTrack) Kind() media.TrackKind { return t.kind }
func (t *remoteTrack) Live() bool            { return t.live.Load() }

func (t *remoteTrack) Stop() {
	if !t.live.Swap(false) {
		return
	}
	_ = t.peer.Send(ws.MediaEvent{Event: ws.EventStopTrack, StreamID: t.streamID, Kind: string(t.kind)})
}

// Recorder runs the browser's chunked media recorder. Chunks arrive as binary frames.
type Recorder struct {
	peer        *Peer
	stopTimeout time.Duration

	mu      sync.Mutex
	onChunk func([]byte)
}

func NewRecorder(peer *Peer, stopTimeout time.Duration) *Recorder {
	return &Recorder{peer: peer, stopTimeout: stopTimeout}
}

func (r *Recorder) Start(ctx context.Context, v media.View, interval time.Duration, onChunk func([]byte)) error {
	r.mu.Lock()
	r.onChunk = onChunk
	r.mu.Unlock()

	_, err := r.peer.Request(ctx, ws.RequestEvent{
		Op:         ws.OpRecorderStart,
		StreamID:   v.ID(),
		IntervalMS: interval.Milliseconds(),
	})
	return err
}

// Stop returns after the browser confirms; its final chunk precedes the reply on
// the socket, so it has already been delivered.
func (r *Recorder) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), r.stopTimeout)
	defer cancel()
	_, err := r.peer.Request(ctx, ws.RequestEvent{Op: ws.OpRecorderStop})

	r.mu.Lock()
	r.onChunk = nil
	r.mu.Unlock()
	return err
}

func (r *Recorder) chunk(b []byte) {
	r.mu.Lock()
	f := r.onChunk
	r.mu.Unlock()
	if f != nil {
		f(b)
	}
}

// Sink is a named media element in the page (preview, level meter).
type Sink struct {
	peer *Peer
	name string
}

func NewSink(peer *Peer, name string) *Sink {
	return &Sink{peer: peer, name: name}
}

func (s *Sink) Attach(v media.View) {
	_ = s.peer.Send(ws.MediaEvent{Event: ws.EventAttachMedia, Sink: s.name, StreamID: v.ID()})
}

func (s *Sink) Clear() {
	_ = s.peer.Send(ws.MediaEvent{Event: ws.EventClearMedia, Sink: s.name})
}

// ─── Interaction lock ───────────────────────────────────────────────

// Lock toggles fullscreen and input blocking in the page.
type Lock struct {
	peer *Peer
}

func NewLock(peer *Peer) *Lock {
	return &Lock{peer: peer}
}

func (l *Lock) Enter(ctx context.Context) error {
	_, err := l.peer.Request(ctx, ws.RequestEvent{Op: ws.OpLock})
	return err
}

func (l *Lock) Exit(ctx context.Context) error {
	_, err := l.peer.Request(ctx, ws.RequestEvent{Op: ws.OpUnlock})
	return err
}

func (l *Lock) LockKeyboard(ctx context.Context) error {
	_, err := l.peer.Request(ctx, ws.RequestEvent{Op: ws.OpLockKeyboard})
	return err
}
