package media

import "sync"

// Resources owns every stream and media sink of one session, so teardown can
// reach them from any exit path without scanning ambient state.
type Resources struct {
	mu       sync.Mutex
	streams  []Stream
	sinks    []Sink
	released bool
}

func NewResources() *Resources {
	return &Resources{}
}

// AddStream registers s for teardown. A stream registered after Release is
// stopped immediately, which covers an acquisition that raced teardown.
func (r *Resources) AddStream(s Stream) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		stopTracks(s)
		return
	}
	r.streams = append(r.streams, s)
	r.mu.Unlock()
}

// AddSink registers a consumer whose source must be cleared on teardown.
func (r *Resources) AddSink(s Sink) {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		s.Clear()
		return
	}
	r.sinks = append(r.sinks, s)
	r.mu.Unlock()
}

// Release stops every live track and clears every sink. It returns the number of
// tracks it stopped; later calls stop nothing and return 0.
func (r *Resources) Release() int {
	r.mu.Lock()
	if r.released {
		r.mu.Unlock()
		return 0
	}
	r.released = true
	streams, sinks := r.streams, r.sinks
	r.streams, r.sinks = nil, nil
	r.mu.Unlock()

	for _, s := range sinks {
		s.Clear()
	}
	stopped := 0
	for _, s := range streams {
		stopped += stopTracks(s)
	}
	return stopped
}

// Released reports whether Release has run.
func (r *Resources) Released() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.released
}

func stopTracks(s Stream) int {
	n := 0
	for _, t := range s.Tracks() {
		if t.Live() {
			t.Stop()
			n++
		}
	}
	return n
}
