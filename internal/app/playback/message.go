package playback

import (
	"sync"
	"time"
)

// StreamID identifies one stream opened on a backend. Zero never names a stream.
type StreamID uint64

// MsgType represents a backend message type.
type MsgType int

const (
	MsgEOS                 MsgType = iota // Stream reached its end or was skipped
	MsgAboutToFinish                      // Stream ends within the backend lead time
	MsgCurrentTrackUpdated                // Backend switched what it renders
	MsgProgress                           // Periodic position tick
)

// String returns the string representation of the message type.
func (m MsgType) String() string {
	switch m {
	case MsgEOS:
		return "eos"
	case MsgAboutToFinish:
		return "about_to_finish"
	case MsgCurrentTrackUpdated:
		return "current_track_updated"
	case MsgProgress:
		return "progress"
	default:
		return "unknown"
	}
}

// Msg is sent by a backend to the engine.
type Msg struct {
	Type     MsgType
	Stream   StreamID
	Position time.Duration // MsgProgress only
	Total    time.Duration // MsgProgress only
}

// Emitter is the producer side of the engine message channel. It is safe for
// use from any number of backend goroutines. Closing it tells the engine the
// backend is gone.
type Emitter struct {
	mu     sync.RWMutex
	ch     chan<- Msg
	done   <-chan struct{}
	closed bool
}

// NewEmitter returns an emitter sending on ch. Emit gives up once done is closed.
func NewEmitter(ch chan<- Msg, done <-chan struct{}) *Emitter {
	return &Emitter{ch: ch, done: done}
}

// Emit delivers msg to the engine. Returns false when the emitter is closed or
// the engine has stopped consuming.
func (e *Emitter) Emit(msg Msg) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.closed {
		return false
	}
	select {
	case e.ch <- msg:
		return true
	case <-e.done:
		return false
	}
}

// Close closes the channel. Further Emit calls return false.
func (e *Emitter) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.closed = true
	close(e.ch)
}
