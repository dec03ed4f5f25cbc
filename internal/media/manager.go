// Package media acquires the session's single audio/video stream, hands read-only
// views of it to its consumers, records it in chunks, and tears it all down.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrPermissionDenied means camera or microphone access was refused.
	ErrPermissionDenied = errors.New("media permission denied")
	// ErrNoStream is returned when recording is requested before acquisition.
	ErrNoStream = errors.New("media stream not acquired")
	// ErrReleased is returned once the manager has been torn down.
	ErrReleased = errors.New("media resources released")
)

// TrackKind is audio or video.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// Track is one device track. Only the manager stops tracks.
type Track interface {
	Kind() TrackKind
	Live() bool
	Stop()
}

// Stream groups the tracks of one acquisition.
type Stream interface {
	ID() string
	Tracks() []Track
}

// Device prompts for and opens a combined audio/video stream.
type Device interface {
	Acquire(ctx context.Context) (Stream, error)
}

// View is the read-only face of a stream given to consumers.
type View struct {
	stream Stream
}

func (v View) ID() string { return v.stream.ID() }

// Live reports whether every track of the stream is still live.
func (v View) Live() bool {
	tracks := v.stream.Tracks()
	if len(tracks) == 0 {
		return false
	}
	for _, t := range tracks {
		if !t.Live() {
			return false
		}
	}
	return true
}

// Kinds lists the kinds of the stream's tracks.
func (v View) Kinds() []TrackKind {
	tracks := v.stream.Tracks()
	kinds := make([]TrackKind, 0, len(tracks))
	for _, t := range tracks {
		kinds = append(kinds, t.Kind())
	}
	return kinds
}

// Sink is a consumer that renders the stream (preview, level meter).
type Sink interface {
	Attach(v View)
	Clear()
}

// Recorder encodes the stream and emits a chunk at every interval. Stop returns
// once the last chunk has been delivered.
type Recorder interface {
	Start(ctx context.Context, v View, interval time.Duration, onChunk func([]byte)) error
	Stop() error
}

// Uploader receives recording chunks as they are produced.
type Uploader interface {
	UploadMediaChunk(ctx context.Context, attemptID string, chunk []byte, index int) error
}

type chunkUpload struct {
	data  []byte
	index int
}

// Manager is the only component allowed to stop the stream's tracks.
type Manager struct {
	device        Device
	recorder      Recorder
	uploader      Uploader
	res           *Resources
	interval      time.Duration
	uploadTimeout time.Duration
	log           zerolog.Logger

	mu        sync.Mutex
	stream    Stream
	recording bool
	attemptID string
	blob      bytes.Buffer
	next      int
	failed    int
	uploads   chan chunkUpload
	uploading sync.WaitGroup
	released  bool
}

// Config tunes recording.
type Config struct {
	ChunkInterval time.Duration
	UploadTimeout time.Duration
}

func NewManager(device Device, recorder Recorder, uploader Uploader, res *Resources, cfg Config, log zerolog.Logger) *Manager {
	if cfg.ChunkInterval <= 0 {
		cfg.ChunkInterval = 5 * time.Second
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 30 * time.Second
	}
	return &Manager{
		device:        device,
		recorder:      recorder,
		uploader:      uploader,
		res:           res,
		interval:      cfg.ChunkInterval,
		uploadTimeout: cfg.UploadTimeout,
		log:           log.With().Str("component", "media").Logger(),
	}
}

// Acquire opens the session stream once; later calls return the same view.
func (m *Manager) Acquire(ctx context.Context) (View, error) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return View{}, ErrReleased
	}
	if m.stream != nil {
		v := View{stream: m.stream}
		m.mu.Unlock()
		return v, nil
	}
	m.mu.Unlock()

	s, err := m.device.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			return View{}, err
		}
		return View{}, fmt.Errorf("acquire media: %w", err)
	}
	m.res.AddStream(s)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.released {
		return View{}, ErrReleased
	}
	m.stream = s
	m.log.Info().Str("stream_id", s.ID()).Msg("Media stream acquired")
	return View{stream: s}, nil
}

// Live reports whether an acquired stream is still live.
func (m *Manager) Live() bool {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	return s != nil && (View{stream: s}).Live()
}

// Attach connects a consumer to the stream and registers it for teardown.
func (m *Manager) Attach(sink Sink) error {
	m.mu.Lock()
	s := m.stream
	m.mu.Unlock()
	if s == nil {
		return ErrNoStream
	}
	m.res.AddSink(sink)
	sink.Attach(View{stream: s})
	return nil
}

// StartRecording begins chunked recording for attemptID. Each chunk is appended to
// the in-memory blob and uploaded in order; upload failures are logged and dropped.
func (m *Manager) StartRecording(ctx context.Context, attemptID string) error {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return ErrReleased
	}
	if m.stream == nil {
		m.mu.Unlock()
		return ErrNoStream
	}
	if m.recording {
		m.mu.Unlock()
		return nil
	}
	m.recording = true
	m.attemptID = attemptID
	m.uploads = make(chan chunkUpload, 256)
	uploads := m.uploads
	v := View{stream: m.stream}
	m.mu.Unlock()

	m.uploading.Add(1)
	go m.uploadLoop(context.WithoutCancel(ctx), attemptID, uploads)

	if err := m.recorder.Start(ctx, v, m.interval, m.onChunk); err != nil {
		m.mu.Lock()
		m.recording = false
		close(m.uploads)
		m.uploads = nil
		m.mu.Unlock()
		return fmt.Errorf("start recorder: %w", err)
	}
	m.log.Info().Str("attempt_id", attemptID).Dur("chunk_interval", m.interval).Msg("Recording started")
	return nil
}

func (m *Manager) onChunk(b []byte) {
	if len(b) == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blob.Write(b)
	if m.uploads == nil {
		return
	}
	u := chunkUpload{data: append([]byte(nil), b...), index: m.next}
	m.next++
	select {
	case m.uploads <- u:
	default:
		m.failed++
		m.log.Warn().Int("index", u.index).Msg("Upload queue full, chunk kept only in memory")
	}
}

func (m *Manager) uploadLoop(ctx context.Context, attemptID string, uploads <-chan chunkUpload) {
	defer m.uploading.Done()
	for u := range uploads {
		uctx, cancel := context.WithTimeout(ctx, m.uploadTimeout)
		err := m.uploader.UploadMediaChunk(uctx, attemptID, u.data, u.index)
		cancel()
		if err != nil {
			m.mu.Lock()
			m.failed++
			m.mu.Unlock()
			m.log.Warn().Err(err).Int("index", u.index).Msg("Chunk upload failed")
		}
	}
}

// StopRecording stops the recorder and returns a copy of the full recording.
// It is safe to call when not recording.
func (m *Manager) StopRecording() []byte {
	m.mu.Lock()
	recording := m.recording
	m.recording = false
	m.mu.Unlock()

	if recording {
		if err := m.recorder.Stop(); err != nil {
			m.log.Warn().Err(err).Msg("Recorder stop failed")
		}
		m.mu.Lock()
		if m.uploads != nil {
			close(m.uploads)
			m.uploads = nil
		}
		m.mu.Unlock()
	}
	return m.Recording()
}

// Recording returns a copy of the bytes recorded so far.
func (m *Manager) Recording() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return bytes.Clone(m.blob.Bytes())
}

// FailedUploads counts chunks that never reached the uploader successfully.
func (m *Manager) FailedUploads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed
}

// WaitUploads blocks until queued chunk uploads have drained or ctx ends.
func (m *Manager) WaitUploads(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.uploading.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release stops recording, every track and every sink, then runs a permission
// release nudge by opening and immediately stopping a fresh stream. Only the first
// call does anything.
func (m *Manager) Release(ctx context.Context) {
	m.mu.Lock()
	if m.released {
		m.mu.Unlock()
		return
	}
	m.released = true
	m.stream = nil
	m.mu.Unlock()

	m.StopRecording()

	stopped := m.res.Release()
	m.log.Info().Int("tracks_stopped", stopped).Msg("Media released")

	s, err := m.device.Acquire(ctx)
	if err != nil {
		m.log.Debug().Err(err).Msg("Permission release nudge skipped")
		return
	}
	stopTracks(s)
}
