package audio

import (
	"context"
	"sync"
	"time"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// tickInterval is how often backends look at their clocks.
const tickInterval = 100 * time.Millisecond

// mailbox queues messages so that code holding a backend lock (or the
// speaker lock) never blocks on the engine. pump delivers them in order.
type mailbox struct {
	mu      sync.Mutex
	pending []playback.Msg
	wake    chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) post(msgs ...playback.Msg) {
	m.mu.Lock()
	m.pending = append(m.pending, msgs...)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []playback.Msg {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.pending
	m.pending = nil
	return msgs
}

// pump delivers posted messages and calls tick every tickInterval until ctx
// is done or the engine stops listening.
func (m *mailbox) pump(ctx context.Context, emitter *playback.Emitter, tick func(now time.Time)) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
		case now := <-ticker.C:
			tick(now)
		}
		for _, msg := range m.take() {
			if !emitter.Emit(msg) {
				return
			}
		}
	}
}

// progressGate rate-limits MsgProgress.
type progressGate struct {
	interval time.Duration
	last     time.Time
}

func (g *progressGate) due(now time.Time) bool {
	if now.Sub(g.last) < g.interval {
		return false
	}
	g.last = now
	return true
}
