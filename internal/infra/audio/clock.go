package audio

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// Clock simulates playback against the wall clock using probed durations.
// Nothing is rendered; it serves hosts without an audio device and players
// that render elsewhere.
type Clock struct {
	mu sync.Mutex

	prober   Prober
	mailbox  *mailbox
	lead     time.Duration
	progress progressGate
	now      func() time.Time

	current *clockStream
	next    *clockStream
	paused  bool
	volume  int
	speed   int

	cancel context.CancelFunc
	done   chan struct{}
}

type clockStream struct {
	id        playback.StreamID
	path      string
	duration  time.Duration
	tl        timeline
	aboutSent bool
}

// NewClock creates a clock backend and starts its ticker.
func NewClock(emitter *playback.Emitter, prober Prober, cfg Config) *Clock {
	c := newClock(prober, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go func() {
		defer close(c.done)
		c.mailbox.pump(ctx, emitter, c.tick)
	}()
	return c
}

func newClock(prober Prober, cfg Config) *Clock {
	cfg = withDefaults(cfg)
	return &Clock{
		prober:   prober,
		mailbox:  newMailbox(),
		lead:     cfg.AboutToFinish,
		progress: progressGate{interval: cfg.ProgressInterval},
		now:      time.Now,
		volume:   maxVolume,
		speed:    10,
		cancel:   func() {},
		done:     make(chan struct{}),
	}
}

func (c *Clock) Name() string { return TypeClock }

func (c *Clock) probe(path string, id playback.StreamID) (*clockStream, error) {
	d, err := c.prober.Duration(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to probe %s", path)
	}
	if d <= 0 {
		return nil, errors.Wrapf(playback.ErrUnplayableTrack, "unknown duration for %s", path)
	}
	return &clockStream{id: id, path: path, duration: d}, nil
}

// AddAndPlay starts a simulated stream for path.
func (c *Clock) AddAndPlay(path string, stream playback.StreamID) error {
	s, err := c.probe(path, stream)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	s.tl = newTimeline(s.duration, speedRatio(c.speed), c.now())
	c.current = s
	c.next = nil
	c.paused = false
	zlog.Debug().Msgf("audio: clock started: stream=%d duration=%v", stream, s.duration)
	return nil
}

// EnqueueNext buffers path behind the current stream. It fails once the
// current stream has ended, since nothing would ever promote the buffer.
func (c *Clock) EnqueueNext(path string, stream playback.StreamID) (time.Duration, error) {
	s, err := c.probe(path, stream)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return 0, playback.ErrNoActiveStream
	}
	c.next = s
	return s.duration, nil
}

func (c *Clock) SkipOne() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.mailbox.post(playback.Msg{Type: playback.MsgEOS, Stream: c.current.id})
	}
	c.current, c.next = nil, nil
}

func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current, c.next = nil, nil
	c.paused = false
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
	if c.current != nil {
		c.current.tl.pause(c.now())
	}
}

func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	if c.current != nil {
		c.current.tl.resume(c.now())
	}
}

// Seek moves by secs. Positions before the start clamp to zero.
func (c *Clock) Seek(secs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return playback.ErrNoActiveStream
	}
	now := c.now()
	return c.seekLocked(now, c.current.tl.position(now)+time.Duration(secs)*time.Second)
}

// SeekTo jumps to pos.
func (c *Clock) SeekTo(pos time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return playback.ErrNoActiveStream
	}
	return c.seekLocked(c.now(), pos)
}

func (c *Clock) seekLocked(now time.Time, target time.Duration) error {
	target = max(target, 0)
	if target >= c.current.duration {
		return errors.Wrapf(playback.ErrSeekOutOfRange, "seek to %v of %v", target, c.current.duration)
	}
	c.current.tl.seek(now, target)
	if c.current.duration-target > c.lead {
		c.current.aboutSent = false
	}
	return nil
}

func (c *Clock) Volume() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

// SetVolume clamps to 0-100.
func (c *Clock) SetVolume(volume int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = clampVolume(volume)
}

func (c *Clock) Speed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// SetSpeed clamps to 1-30 tenths.
func (c *Clock) SetSpeed(speed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = clampSpeed(speed)
	if c.current != nil {
		c.current.tl.setSpeed(c.now(), speedRatio(c.speed))
	}
}

func (c *Clock) Close() error {
	c.cancel()
	<-c.done
	return nil
}

// tick ends streams whose time ran out and reports progress.
func (c *Clock) tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cur := c.current
	if cur == nil || c.paused {
		return
	}

	remaining, _ := cur.tl.remaining(now)
	if !cur.aboutSent && remaining <= c.lead {
		cur.aboutSent = true
		c.mailbox.post(playback.Msg{Type: playback.MsgAboutToFinish, Stream: cur.id})
	}
	if remaining <= 0 {
		c.mailbox.post(playback.Msg{Type: playback.MsgEOS, Stream: cur.id})
		c.current, c.next = c.next, nil
		if c.current != nil {
			c.current.tl = newTimeline(c.current.duration, speedRatio(c.speed), now)
		}
		return
	}
	if c.progress.due(now) {
		c.mailbox.post(playback.Msg{
			Type:     playback.MsgProgress,
			Stream:   cur.id,
			Position: cur.tl.position(now),
			Total:    cur.duration,
		})
	}
}
