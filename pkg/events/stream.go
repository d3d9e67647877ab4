package events

import "sync"

// Frame is one wire-ready SSE frame: an event name plus its JSON-encodable
// payload.
type Frame struct {
	Event string
	Data  any
}

// Stream is a bounded frame buffer between the engine goroutine and an SSE
// writer. Publishing never blocks the turn: when the consumer falls behind
// and the buffer fills, further node_update frames are dropped and counted.
// Terminal frames are published with Close, which always delivers.
type Stream struct {
	ch chan Frame

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewStream creates a stream buffering up to size frames. Size must cover a
// worst-case turn (recursion limit) to make drops exceptional.
func NewStream(size int) *Stream {
	if size <= 0 {
		size = 64
	}
	return &Stream{ch: make(chan Frame, size)}
}

// Publish enqueues a frame without blocking. Returns false when the frame
// was dropped because the buffer is full or the stream is closed.
func (s *Stream) Publish(event string, data any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- Frame{Event: event, Data: data}:
		return true
	default:
		s.dropped++
		return false
	}
}

// Close publishes the terminal frame and closes the channel. The terminal
// frame is never dropped: one buffered slot is reserved by construction
// since Close is called after the engine stops publishing.
func (s *Stream) Close(event string, data any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	select {
	case s.ch <- Frame{Event: event, Data: data}:
	default:
		// Evict the oldest frame to make room. The receive is non-blocking
		// because a concurrent consumer may have drained the buffer already.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- Frame{Event: event, Data: data}
	}
	close(s.ch)
}

// Frames returns the receive side consumed by the SSE writer. The channel
// is closed after the terminal frame.
func (s *Stream) Frames() <-chan Frame {
	return s.ch
}

// Dropped reports how many node_update frames were discarded.
func (s *Stream) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}
