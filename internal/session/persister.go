package session

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/interview-room/internal/model"
)

type saveJob struct {
	attemptID string
	answer    model.AnswerRecord
}

type eventAppender interface {
	Append(t model.EventType, details map[string]any) model.ProctoringEvent
}

// persister saves answers one at a time, in the order they were enqueued. A
// remote failure falls back to the local store; neither outcome stops the room.
type persister struct {
	backend  Backend
	fallback FallbackStore
	events   eventAppender
	timeout  time.Duration
	notify   func(Event)
	log      zerolog.Logger

	mu      sync.Mutex
	queue   []saveJob
	closed  bool
	started bool
	wake    chan struct{}
	done    chan struct{}
}

func newPersister(backend Backend, fallback FallbackStore, events eventAppender, timeout time.Duration, notify func(Event), log zerolog.Logger) *persister {
	return &persister{
		backend:  backend,
		fallback: fallback,
		events:   events,
		timeout:  timeout,
		notify:   notify,
		log:      log,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

func (p *persister) enqueue(attemptID string, a model.AnswerRecord) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.log.Warn().Int("question_index", a.QuestionIndex).Msg("Answer arrived after persister closed")
		return
	}
	p.queue = append(p.queue, saveJob{attemptID: attemptID, answer: a})
	if !p.started {
		p.started = true
		go p.run()
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) run() {
	defer close(p.done)
	for {
		p.mu.Lock()
		if len(p.queue) == 0 {
			closed := p.closed
			p.mu.Unlock()
			if closed {
				return
			}
			<-p.wake
			continue
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		p.save(job)
	}
}

func (p *persister) save(job saveJob) {
	idx := job.answer.QuestionIndex

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	err := p.backend.SaveQuestionAnswer(ctx, job.attemptID, job.answer)
	cancel()
	if err == nil {
		p.events.Append(model.EventAnswerSaved, map[string]any{"question_index": idx})
		p.notify(AnswerPersisted{Index: idx, Remote: true})
		return
	}

	details := map[string]any{"question_index": idx, "error": err.Error(), "fallback": true}
	if p.fallback != nil {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		if ferr := p.fallback.SaveAnswer(ctx, job.attemptID, job.answer); ferr != nil {
			details["fallback"] = false
			p.log.Error().Err(ferr).Int("question_index", idx).Msg("Fallback answer save failed")
		}
		cancel()
	} else {
		details["fallback"] = false
	}
	p.log.Warn().Err(err).Int("question_index", idx).Msg("Remote answer save failed")
	p.events.Append(model.EventAnswerSaveFailed, details)
	p.notify(AnswerPersisted{Index: idx})
}

// close stops accepting answers and waits up to ctx for the queue to drain.
func (p *persister) close(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	started := p.started
	p.mu.Unlock()

	if !started {
		return
	}
	select {
	case p.wake <- struct{}{}:
	default:
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		p.log.Warn().Msg("Pending answer saves abandoned")
	}
}
