// Package playback provides the playback engine: it drives a playlist through
// an audio backend, preloads the next track for gapless transitions and
// republishes backend messages as engine events.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

const (
	msgBufferSize   = 64
	eventBufferSize = 32
)

// Config holds engine configuration.
type Config struct {
	Gapless    bool // Preload the next track on MsgAboutToFinish
	Volume     int  // Initial backend volume
	Speed      int  // Initial backend speed in tenths
	VolumeStep int
	SpeedStep  int
}

// Snapshot is a point-in-time view of the engine.
type Snapshot struct {
	Status         playlist.Status
	Tracks         []track.Track
	Index          int // -1 when no track is selected
	Current        *track.Track
	Next           *track.Track
	LoopMode       playlist.LoopMode
	Gapless        bool
	Position       time.Duration
	Total          time.Duration
	Volume         int
	Speed          int
	PlaylistLength time.Duration // sum of the known track durations
}

type command struct {
	fn     func() error
	result chan error
}

// Engine owns a playlist and an audio backend. All state is confined to the
// goroutine running Run; exported methods hand closures to it and wait.
type Engine struct {
	playlist *playlist.Playlist
	backend  Backend
	config   Config

	msgCh   chan Msg
	cmdCh   chan command
	eventCh chan Event

	// Stream bookkeeping for the stale-event guard.
	active StreamID // stream currently rendered, 0 when none
	queued StreamID // stream buffered behind active, 0 when none
	lastID StreamID

	position time.Duration
	total    time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// NewEngine creates an engine around pl and builds its backend with factory.
// A nil playlist starts empty in queue mode.
func NewEngine(config Config, pl *playlist.Playlist, factory BackendFactory) (*Engine, error) {
	if pl == nil {
		pl = playlist.New(nil, playlist.LoopQueue)
	}
	e := &Engine{
		playlist: pl,
		config:   config,
		msgCh:    make(chan Msg, msgBufferSize),
		cmdCh:    make(chan command),
		eventCh:  make(chan Event, eventBufferSize),
		done:     make(chan struct{}),
	}

	backend, err := factory(NewEmitter(e.msgCh, e.done))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create audio backend")
	}
	e.backend = backend
	e.backend.SetVolume(config.Volume)
	e.backend.SetSpeed(config.Speed)

	// A restored session may come back paused or running; nothing is open yet.
	pl.SetStatus(playlist.StatusStopped)
	return e, nil
}

// Events returns the event channel. It is closed when Run returns.
func (e *Engine) Events() <-chan Event {
	return e.eventCh
}

// Done is closed once the engine stops accepting commands.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// BackendName returns the name of the audio backend in use.
func (e *Engine) BackendName() string {
	return e.backend.Name()
}

// Run processes commands and backend messages until ctx is cancelled or the
// backend disconnects. The backend is closed when Run returns.
func (e *Engine) Run(ctx context.Context) error {
	defer close(e.eventCh)

	zlog.Info().Msgf("playback: engine started: backend=%s tracks=%d", e.backend.Name(), e.playlist.Len())
	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return nil
		case cmd := <-e.cmdCh:
			cmd.result <- cmd.fn()
		case msg, ok := <-e.msgCh:
			if !ok {
				e.disconnected()
				return ErrBackendDisconnected
			}
			e.handleMessage(msg)
		}
	}
}

func (e *Engine) finish() {
	e.closeOnce.Do(func() { close(e.done) })
}

func (e *Engine) shutdown() {
	zlog.Info().Msg("playback: engine shutting down")
	e.finish()
	e.backend.Stop()
	if err := e.backend.Close(); err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to close backend")
	}
}

func (e *Engine) disconnected() {
	zlog.Error().Msgf("playback: backend %s disconnected", e.backend.Name())
	e.finish()
	e.active, e.queued = 0, 0
	e.playlist.SetNextTrack(nil)
	e.playlist.SetStatus(playlist.StatusStopped)
	e.sendEvent(Event{Type: EventError, Status: e.playlist.Status(), Index: -1, Err: ErrBackendDisconnected})
	e.publish(EventStateChanged)
	if err := e.backend.Close(); err != nil {
		zlog.Debug().Err(err).Msg("playback: close after disconnect")
	}
}

// do runs fn on the control goroutine and returns its error.
func (e *Engine) do(fn func() error) error {
	cmd := command{fn: fn, result: make(chan error, 1)}
	select {
	case e.cmdCh <- cmd:
	case <-e.done:
		return ErrEngineClosed
	}
	select {
	case err := <-cmd.result:
		return err
	case <-e.done:
		select {
		case err := <-cmd.result:
			return err
		default:
			return ErrEngineClosed
		}
	}
}

// handleMessage reacts to one backend message.
func (e *Engine) handleMessage(msg Msg) {
	if msg.Stream != e.active {
		zlog.Debug().Msgf("playback: ignoring stale %s: stream=%d active=%d", msg.Type, msg.Stream, e.active)
		return
	}

	switch msg.Type {
	case MsgEOS:
		e.onEOS()
	case MsgAboutToFinish:
		e.enqueueNext()
	case MsgCurrentTrackUpdated:
		e.publish(EventTrackChanged)
	case MsgProgress:
		e.position = msg.Position
		if msg.Total > 0 {
			e.total = msg.Total
		}
		e.publish(EventProgress)
	}
}

// onEOS advances after the active stream ended.
func (e *Engine) onEOS() {
	e.active = 0
	e.position = 0

	if e.playlist.HasNextTrack() {
		e.startPlay()
		return
	}
	if next := e.playlist.AdvanceCursor(); next != nil {
		e.startPlay()
		return
	}

	zlog.Info().Msg("playback: reached end of playlist")
	e.queued = 0
	e.total = 0
	e.playlist.SetStatus(playlist.StatusStopped)
	e.publish(EventQueueEnded)
}

// startPlay starts or continues playback of the current track.
func (e *Engine) startPlay() {
	if e.playlist.IsEmpty() {
		zlog.Debug().Msg("playback: playlist is empty")
		return
	}
	if e.playlist.IsStopped() {
		if e.playlist.CurrentTrack() == nil {
			e.playlist.HandleCurrentTrack()
		}
		if e.playlist.CurrentTrack() == nil {
			zlog.Debug().Msg("playback: nothing to play")
			return
		}
		e.playlist.SetStatus(playlist.StatusRunning)
	}

	if e.playlist.HasNextTrack() && e.queued == 0 {
		// Nothing buffered on the backend; open the lookahead directly.
		e.playlist.PromoteNextTrack()
		e.playCurrent()
		return
	}

	if e.playlist.HasNextTrack() {
		total := e.playlist.NextTrackDuration()
		t := e.playlist.PromoteNextTrack()
		e.active, e.queued = e.queued, 0
		e.position = 0
		e.total = total
		if e.total <= 0 {
			e.total = t.Duration
		}
		zlog.Info().Msgf("playback: gapless transition: track=%s", t.Name())
		e.publish(EventTrackChanged)
		return
	}

	e.playCurrent()
}

// playCurrent opens the current track on the backend. Unplayable tracks are
// skipped, at most once around the playlist, before giving up.
func (e *Engine) playCurrent() {
	e.playlist.SetNextTrack(nil)
	e.queued = 0

	for attempts := e.playlist.Len(); attempts > 0; attempts-- {
		cur := e.playlist.CurrentTrack()
		if cur == nil {
			break
		}
		err := e.addAndPlay(cur)
		if err == nil {
			e.playlist.SetStatus(playlist.StatusRunning)
			zlog.Info().Msgf("playback: playing: track=%s duration=%s", cur.Name(), cur.DurationFormatted())
			e.publish(EventTrackChanged)
			return
		}
		zlog.Warn().Err(err).Msgf("playback: skipping unplayable track: track=%s", cur.Name())
		if e.playlist.AdvanceCursor() == nil {
			break
		}
	}

	e.active = 0
	e.playlist.SetStatus(playlist.StatusStopped)
	e.publish(EventStateChanged)
}

func (e *Engine) addAndPlay(t *track.Track) error {
	e.active = 0
	if !t.IsPlayable() {
		return errors.Wrapf(ErrUnplayableTrack, "track %q", t.Name())
	}
	id := e.nextStream()
	if err := e.backend.AddAndPlay(t.Locator(), id); err != nil {
		return errors.Wrapf(err, "failed to play %s", t.Locator())
	}
	e.active = id
	e.position = 0
	e.total = t.Duration
	return nil
}

// enqueueNext resolves the lookahead and buffers it in the backend.
func (e *Engine) enqueueNext() {
	if !e.config.Gapless || e.playlist.HasNextTrack() {
		return
	}
	next := e.playlist.FetchNextTrack()
	if next == nil {
		return
	}
	if !next.IsPlayable() {
		zlog.Debug().Msgf("playback: not preloading unplayable track: track=%s", next.Name())
		return
	}

	e.playlist.SetNextTrack(next)
	id := e.nextStream()
	d, err := e.backend.EnqueueNext(next.Locator(), id)
	if err != nil {
		zlog.Warn().Err(err).Msgf("playback: failed to preload: track=%s", next.Name())
		e.playlist.SetNextTrack(nil)
		return
	}
	if d <= 0 {
		d = next.Duration
	}
	e.queued = id
	e.playlist.SetNextTrackDuration(d)
	zlog.Debug().Msgf("playback: preloaded next track: track=%s duration=%v", next.Name(), d)
	e.publish(EventNextEnqueued)
}

func (e *Engine) skip() {
	if e.active == 0 {
		// Nothing is rendering, so no MsgEOS will come back.
		e.playlist.SetNextTrack(nil)
		e.queued = 0
		e.onEOS()
		return
	}
	e.playlist.SetNextTrack(nil)
	e.queued = 0
	e.backend.SkipOne()
}

func (e *Engine) stop() {
	e.playlist.SetStatus(playlist.StatusStopped)
	e.playlist.SetNextTrack(nil)
	e.playlist.SetCurrentTrack(nil)
	e.active, e.queued = 0, 0
	e.position, e.total = 0, 0
	e.backend.Stop()
	e.publish(EventStateChanged)
}

func (e *Engine) pause() {
	if e.playlist.IsStopped() {
		return
	}
	changed := !e.playlist.IsPaused()
	e.playlist.SetStatus(playlist.StatusPaused)
	e.backend.Pause()
	if changed {
		e.publish(EventStateChanged)
	}
}

func (e *Engine) resume() {
	if e.playlist.IsStopped() {
		return
	}
	changed := !e.playlist.IsRunning()
	e.playlist.SetStatus(playlist.StatusRunning)
	e.backend.Resume()
	if changed {
		e.publish(EventStateChanged)
	}
}

// dropStaleLookahead forgets the buffered stream once the playlist no longer
// holds a lookahead. The backend may still auto-advance into it; the next
// MsgEOS then replaces it through AddAndPlay.
func (e *Engine) dropStaleLookahead() {
	if !e.playlist.HasNextTrack() {
		e.queued = 0
	}
}

func (e *Engine) nextStream() StreamID {
	e.lastID++
	return e.lastID
}

func (e *Engine) publish(t EventType) {
	idx, ok := e.playlist.CurrentIndex()
	if !ok {
		idx = -1
	}
	e.sendEvent(Event{
		Type:     t,
		Track:    e.playlist.CurrentTrack(),
		Index:    idx,
		Status:   e.playlist.Status(),
		Position: e.position,
		Total:    e.total,
	})
}

// sendEvent sends an event without blocking.
func (e *Engine) sendEvent(ev Event) {
	if ev.Track != nil {
		c := *ev.Track
		ev.Track = &c
	}
	select {
	case e.eventCh <- ev:
	default:
		zlog.Debug().Msgf("playback: event channel full, dropping %s", ev.Type)
	}
}

func (e *Engine) snapshot() Snapshot {
	idx, ok := e.playlist.CurrentIndex()
	if !ok {
		idx = -1
	}
	s := Snapshot{
		Status:   e.playlist.Status(),
		Tracks:   e.playlist.Tracks(),
		Index:    idx,
		LoopMode: e.playlist.LoopMode(),
		Gapless:  e.config.Gapless,
		Position: e.position,
		Total:    e.total,
		Volume:   e.backend.Volume(),
		Speed:    e.backend.Speed(),

		PlaylistLength: e.playlist.TotalDuration(),
	}
	if cur := e.playlist.CurrentTrack(); cur != nil {
		c := *cur
		s.Current = &c
	}
	if next := e.playlist.NextTrack(); next != nil {
		n := *next
		s.Next = &n
	}
	return s
}
