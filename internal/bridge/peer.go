// Package bridge connects a server-side room to the candidate's browser. Each
// browser capability the room consumes (speech synthesis, recognition, the face
// classifier, camera, recorder, fullscreen lock) is represented by an adapter that
// forwards calls over the room socket and turns browser messages back into calls.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	ws "github.com/stemsi/interview-room/internal/websocket"
)

// ErrClosed is returned by every pending and future request once the socket is gone.
var ErrClosed = errors.New("room socket closed")

// RemoteError is a failure reported by the browser for a request.
type RemoteError struct {
	Op      ws.Op
	Code    ws.ErrorCode
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s failed: %s (%s)", e.Op, e.Message, e.Code)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// remoteCode extracts the browser error code from err, if any.
func remoteCode(err error) ws.ErrorCode {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

// Peer owns the write side of the room socket and correlates requests with the
// browser's replies by req_id.
type Peer struct {
	conn    *websocket.Conn
	timeout time.Duration
	log     zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	pending map[string]chan ws.Reply
	closed  bool
	done    chan struct{}
}

// NewPeer wraps an upgraded connection. timeout bounds every request.
func NewPeer(conn *websocket.Conn, timeout time.Duration, log zerolog.Logger) *Peer {
	return &Peer{
		conn:    conn,
		timeout: timeout,
		log:     log.With().Str("component", "room_peer").Logger(),
		pending: make(map[string]chan ws.Reply),
		done:    make(chan struct{}),
	}
}

// Send writes one event. Writes are serialised.
func (p *Peer) Send(v any) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}

	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return ws.WriteTyped(p.conn, v)
}

// Request sends req and waits for the matching reply. A reply with ok=false is
// returned as a *RemoteError.
func (p *Peer) Request(ctx context.Context, req ws.RequestEvent) (ws.Reply, error) {
	req.Event = ws.EventRequest
	req.ReqID = uuid.NewString()

	ch := make(chan ws.Reply, 1)
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ws.Reply{}, ErrClosed
	}
	p.pending[req.ReqID] = ch
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.pending, req.ReqID)
		p.mu.Unlock()
	}()

	if err := p.Send(req); err != nil {
		return ws.Reply{}, fmt.Errorf("send %s: %w", req.Op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	select {
	case r := <-ch:
		if !r.OK {
			return r, &RemoteError{Op: req.Op, Code: r.Code, Message: r.Error}
		}
		return r, nil
	case <-p.done:
		return ws.Reply{}, ErrClosed
	case <-ctx.Done():
		return ws.Reply{}, fmt.Errorf("%s: %w", req.Op, ctx.Err())
	}
}

// Deliver routes a reply to its waiting request. Late or unknown replies are dropped.
func (p *Peer) Deliver(r ws.Reply) bool {
	p.mu.Lock()
	ch, ok := p.pending[r.ReqID]
	p.mu.Unlock()
	if !ok {
		p.log.Debug().Str("req_id", r.ReqID).Msg("Dropping unmatched reply")
		return false
	}
	select {
	case ch <- r:
		return true
	default:
		return false
	}
}

// Close fails every pending request. The connection itself belongs to the caller.
func (p *Peer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.done)
}

// Done is closed by Close.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}
