package playback

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

type backendCall struct {
	op     string
	path   string
	stream StreamID
}

// fakeBackend records calls and never renders anything.
type fakeBackend struct {
	mu              sync.Mutex
	emitter         *Emitter
	calls           []backendCall
	volume          int
	speed           int
	enqueueDuration time.Duration
	failPaths       map[string]bool
	enqueueErr      error
	seekErr         error
	closed          bool
}

func (f *fakeBackend) record(op, path string, stream StreamID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, backendCall{op: op, path: path, stream: stream})
}

func (f *fakeBackend) callsFor(op string) []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []backendCall
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) AddAndPlay(path string, stream StreamID) error {
	f.record("add_and_play", path, stream)
	if f.failPaths[path] {
		return errors.New("decode failed")
	}
	return nil
}

func (f *fakeBackend) EnqueueNext(path string, stream StreamID) (time.Duration, error) {
	f.record("enqueue_next", path, stream)
	if f.failPaths[path] {
		return 0, errors.New("decode failed")
	}
	if f.enqueueErr != nil {
		return 0, f.enqueueErr
	}
	return f.enqueueDuration, nil
}

func (f *fakeBackend) SkipOne() { f.record("skip_one", "", 0) }
func (f *fakeBackend) Pause()   { f.record("pause", "", 0) }
func (f *fakeBackend) Resume()  { f.record("resume", "", 0) }
func (f *fakeBackend) Stop()    { f.record("stop", "", 0) }

func (f *fakeBackend) Seek(secs int64) error {
	f.record("seek", "", 0)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seekErr
}

func (f *fakeBackend) SeekTo(pos time.Duration) error {
	f.record("seek_to", "", 0)
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seekErr
}

func (f *fakeBackend) Volume() int { return f.volume }

func (f *fakeBackend) SetVolume(v int) {
	f.volume = min(max(v, 0), 100)
}

func (f *fakeBackend) Speed() int { return f.speed }

func (f *fakeBackend) SetSpeed(s int) {
	f.speed = min(max(s, 1), 30)
}

func (f *fakeBackend) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.emitter.Close()
	return nil
}

func newTestEngine(t *testing.T, mode playlist.LoopMode, names ...string) (*Engine, *fakeBackend) {
	t.Helper()
	tracks := make([]track.Track, len(names))
	for i, n := range names {
		tracks[i] = track.Track{Title: n, FilePath: "/music/" + n + ".mp3", Duration: time.Minute}
	}
	fb := &fakeBackend{enqueueDuration: 42 * time.Second}
	e, err := NewEngine(Config{Gapless: true, Volume: 70, Speed: 10, VolumeStep: 5, SpeedStep: 1},
		playlist.New(tracks, mode),
		func(em *Emitter) (Backend, error) {
			fb.emitter = em
			return fb, nil
		})
	require.NoError(t, err)
	return e, fb
}

func drainEvents(e *Engine) []Event {
	var events []Event
	for {
		select {
		case ev, ok := <-e.eventCh:
			if !ok {
				return events
			}
			events = append(events, ev)
		default:
			return events
		}
	}
}

func eventTypes(events []Event) []EventType {
	types := make([]EventType, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func currentTitle(e *Engine) string {
	if cur := e.playlist.CurrentTrack(); cur != nil {
		return cur.Title
	}
	return ""
}

func TestNewEngine_FactoryError(t *testing.T) {
	_, err := NewEngine(Config{}, nil, func(*Emitter) (Backend, error) {
		return nil, errors.New("no audio device")
	})
	assert.Error(t, err)
}

func TestNewEngine_AppliesInitialSettings(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A")
	assert.Equal(t, 70, fb.volume)
	assert.Equal(t, 10, fb.speed)
	assert.True(t, e.playlist.IsStopped())
}

func TestEngine_StartPlay_EmptyPlaylist(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue)

	e.startPlay()

	assert.Empty(t, fb.callsFor("add_and_play"))
	assert.True(t, e.playlist.IsStopped())
	assert.Empty(t, drainEvents(e))
}

func TestEngine_StartPlay_BootstrapsFirstTrack(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")

	e.startPlay()

	calls := fb.callsFor("add_and_play")
	require.Len(t, calls, 1)
	assert.Equal(t, "/music/A.mp3", calls[0].path)
	assert.Equal(t, calls[0].stream, e.active)
	assert.True(t, e.playlist.IsRunning())
	assert.Equal(t, "A", currentTitle(e))

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, EventTrackChanged, events[0].Type)
	assert.Equal(t, "A", events[0].Track.Title)
	assert.Equal(t, 0, events[0].Index)
}

func TestEngine_StartPlay_Lookahead(t *testing.T) {
	tests := []struct {
		name      string
		buffered  bool
		wantPlays int
	}{
		{name: "buffered stream is reused", buffered: true, wantPlays: 1},
		{name: "unbuffered lookahead is opened", buffered: false, wantPlays: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
			e.startPlay()
			if tt.buffered {
				e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
				require.NotZero(t, e.queued)
			} else {
				e.playlist.SetNextTrack(e.playlist.FetchNextTrack())
			}
			queued := e.queued
			drainEvents(e)

			e.startPlay()

			plays := fb.callsFor("add_and_play")
			require.Len(t, plays, tt.wantPlays)
			assert.Equal(t, "B", currentTitle(e))
			assert.NotZero(t, e.active)
			if tt.buffered {
				assert.Equal(t, queued, e.active)
			} else {
				assert.Equal(t, "/music/B.mp3", plays[1].path)
				assert.Equal(t, plays[1].stream, e.active)
			}
			assert.Zero(t, e.queued)
			assert.False(t, e.playlist.HasNextTrack())
			assert.True(t, e.playlist.IsRunning())
			assert.Equal(t, []EventType{EventTrackChanged}, eventTypes(drainEvents(e)))
		})
	}
}

func TestEngine_AboutToFinish_EnqueuesNext(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	e.startPlay()

	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})

	calls := fb.callsFor("enqueue_next")
	require.Len(t, calls, 1)
	assert.Equal(t, "/music/B.mp3", calls[0].path)
	assert.Equal(t, calls[0].stream, e.queued)
	require.True(t, e.playlist.HasNextTrack())
	assert.Equal(t, "B", e.playlist.NextTrack().Title)
	assert.Equal(t, 42*time.Second, e.playlist.NextTrackDuration())
	assert.Equal(t, "A", currentTitle(e))

	// a second notice does not enqueue again
	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
	assert.Len(t, fb.callsFor("enqueue_next"), 1)
}

func TestEngine_AboutToFinish_UnknownDurationFallsBack(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	fb.enqueueDuration = 0
	e.startPlay()

	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
	assert.Equal(t, time.Minute, e.playlist.NextTrackDuration())
}

func TestEngine_AboutToFinish_Disabled(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	e.config.Gapless = false
	e.startPlay()

	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
	assert.Empty(t, fb.callsFor("enqueue_next"))
	assert.False(t, e.playlist.HasNextTrack())
}

func TestEngine_AboutToFinish_EnqueueFailure(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	fb.failPaths = map[string]bool{"/music/B.mp3": true}
	e.startPlay()

	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
	assert.False(t, e.playlist.HasNextTrack())
	assert.Zero(t, e.queued)
}

func TestEngine_AboutToFinish_AfterStreamEnded(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	fb.enqueueErr = ErrNoActiveStream
	e.startPlay()
	first := e.active

	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: first})
	assert.False(t, e.playlist.HasNextTrack())
	drainEvents(e)

	e.handleMessage(Msg{Type: MsgEOS, Stream: first})

	plays := fb.callsFor("add_and_play")
	require.Len(t, plays, 2)
	assert.Equal(t, "/music/B.mp3", plays[1].path)
	assert.Equal(t, plays[1].stream, e.active)
	assert.Equal(t, "B", currentTitle(e))
	assert.True(t, e.playlist.IsRunning())
}

func TestEngine_EOS_PromotesLookahead(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	e.startPlay()
	first := e.active
	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: first})
	queued := e.queued
	drainEvents(e)

	e.handleMessage(Msg{Type: MsgEOS, Stream: first})

	assert.Len(t, fb.callsFor("add_and_play"), 1)
	assert.Equal(t, "B", currentTitle(e))
	assert.Equal(t, queued, e.active)
	assert.Zero(t, e.queued)
	assert.Equal(t, 42*time.Second, e.total)
	assert.False(t, e.playlist.HasNextTrack())
	assert.Equal(t, []EventType{EventTrackChanged}, eventTypes(drainEvents(e)))
}

func TestEngine_EOS_AdvancesWithoutLookahead(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	e.startPlay()

	e.handleMessage(Msg{Type: MsgEOS, Stream: e.active})

	calls := fb.callsFor("add_and_play")
	require.Len(t, calls, 2)
	assert.Equal(t, "/music/B.mp3", calls[1].path)
	assert.Equal(t, "B", currentTitle(e))
	assert.True(t, e.playlist.IsRunning())
}

func TestEngine_EOS_LoopModes(t *testing.T) {
	tests := []struct {
		name        string
		mode        playlist.LoopMode
		wantTitle   string
		wantStatus  playlist.Status
		wantPlays   int
		wantEndedEv bool
	}{
		{name: "queue stops at end", mode: playlist.LoopQueue, wantTitle: "B", wantStatus: playlist.StatusStopped, wantPlays: 1, wantEndedEv: true},
		{name: "playlist wraps", mode: playlist.LoopPlaylist, wantTitle: "A", wantStatus: playlist.StatusRunning, wantPlays: 2},
		{name: "single repeats", mode: playlist.LoopSingle, wantTitle: "B", wantStatus: playlist.StatusRunning, wantPlays: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fb := newTestEngine(t, tt.mode, "A", "B")
			require.NoError(t, e.playlist.SetCurrentIndex(1))
			e.startPlay()
			drainEvents(e)

			e.handleMessage(Msg{Type: MsgEOS, Stream: e.active})

			assert.Equal(t, tt.wantTitle, currentTitle(e))
			assert.Equal(t, tt.wantStatus, e.playlist.Status())
			assert.Len(t, fb.callsFor("add_and_play"), tt.wantPlays)
			assert.Equal(t, tt.wantEndedEv, containsType(drainEvents(e), EventQueueEnded))
		})
	}
}

func containsType(events []Event, t EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func TestEngine_Skip_AdvancesOnEOS(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B", "C")
	e.startPlay()
	first := e.active
	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: first})
	require.True(t, e.playlist.HasNextTrack())

	e.skip()

	assert.Len(t, fb.callsFor("skip_one"), 1)
	assert.False(t, e.playlist.HasNextTrack(), "skip clears the lookahead at once")
	assert.Equal(t, "A", currentTitle(e), "cursor moves only when the stream ends")

	e.handleMessage(Msg{Type: MsgEOS, Stream: first})

	assert.Equal(t, "B", currentTitle(e))
	assert.False(t, e.playlist.HasNextTrack())
	calls := fb.callsFor("add_and_play")
	require.Len(t, calls, 2)
	assert.Equal(t, "/music/B.mp3", calls[1].path)
}

func TestEngine_Skip_NoActiveStream(t *testing.T) {
	t.Run("empty playlist", func(t *testing.T) {
		e, fb := newTestEngine(t, playlist.LoopQueue)
		e.skip()
		assert.Empty(t, fb.calls)
		assert.True(t, e.playlist.IsStopped())
	})

	t.Run("stopped at end of queue", func(t *testing.T) {
		e, fb := newTestEngine(t, playlist.LoopQueue, "A")
		e.startPlay()
		e.handleMessage(Msg{Type: MsgEOS, Stream: e.active})
		require.True(t, e.playlist.IsStopped())

		e.skip()
		assert.Empty(t, fb.callsFor("skip_one"))
		assert.Len(t, fb.callsFor("add_and_play"), 1)
		assert.True(t, e.playlist.IsStopped())
	})
}

func TestEngine_LateEOS_AfterSkip(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B", "C")
	e.startPlay()
	first := e.active

	e.skip()
	e.handleMessage(Msg{Type: MsgEOS, Stream: first})
	require.Equal(t, "B", currentTitle(e))
	second := e.active

	// duplicate end notice from the skipped stream
	e.handleMessage(Msg{Type: MsgEOS, Stream: first})
	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: first})

	assert.Equal(t, "B", currentTitle(e))
	assert.Equal(t, second, e.active)
	assert.False(t, e.playlist.HasNextTrack())
	assert.Len(t, fb.callsFor("add_and_play"), 2)
	assert.Empty(t, fb.callsFor("enqueue_next"))
}

func TestEngine_LateEOS_AfterStop(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	e.startPlay()
	first := e.active
	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: first})

	e.stop()
	e.handleMessage(Msg{Type: MsgEOS, Stream: first})

	assert.Nil(t, e.playlist.CurrentTrack())
	assert.False(t, e.playlist.HasNextTrack())
	assert.True(t, e.playlist.IsStopped())
	assert.Len(t, fb.callsFor("add_and_play"), 1)
}

func TestEngine_Stop_ClearsEverything(t *testing.T) {
	tests := []struct {
		name  string
		setup func(e *Engine)
	}{
		{name: "from stopped", setup: func(e *Engine) {}},
		{name: "from running", setup: func(e *Engine) { e.startPlay() }},
		{name: "from paused", setup: func(e *Engine) { e.startPlay(); e.pause() }},
		{name: "with lookahead", setup: func(e *Engine) {
			e.startPlay()
			e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
			tt.setup(e)

			e.stop()

			assert.True(t, e.playlist.IsStopped())
			assert.Nil(t, e.playlist.CurrentTrack())
			assert.Nil(t, e.playlist.NextTrack())
			assert.Zero(t, e.active)
			assert.Zero(t, e.queued)
			assert.Len(t, fb.callsFor("stop"), 1)
		})
	}
}

func TestEngine_PauseResume(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A")

	e.pause()
	assert.True(t, e.playlist.IsStopped(), "pause without a track is a no-op")
	assert.Empty(t, fb.callsFor("pause"))

	e.startPlay()
	drainEvents(e)

	e.pause()
	e.pause()
	assert.True(t, e.playlist.IsPaused())
	assert.Len(t, fb.callsFor("pause"), 2)
	assert.Equal(t, []EventType{EventStateChanged}, eventTypes(drainEvents(e)))

	e.resume()
	e.resume()
	assert.True(t, e.playlist.IsRunning())
	assert.Len(t, fb.callsFor("resume"), 2)
	assert.Equal(t, []EventType{EventStateChanged}, eventTypes(drainEvents(e)))
}

func TestEngine_UnplayableTracks(t *testing.T) {
	t.Run("missing path is skipped", func(t *testing.T) {
		e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
		require.NoError(t, e.playlist.SetCurrentIndex(0))
		e.playlist.Track(0).FilePath = ""

		e.startPlay()

		calls := fb.callsFor("add_and_play")
		require.Len(t, calls, 1)
		assert.Equal(t, "/music/B.mp3", calls[0].path)
		assert.Equal(t, "B", currentTitle(e))
		assert.True(t, e.playlist.IsRunning())
	})

	t.Run("backend refusal is skipped", func(t *testing.T) {
		e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
		fb.failPaths = map[string]bool{"/music/A.mp3": true}

		e.startPlay()

		assert.Len(t, fb.callsFor("add_and_play"), 2)
		assert.Equal(t, "B", currentTitle(e))
	})

	t.Run("nothing playable stops", func(t *testing.T) {
		e, fb := newTestEngine(t, playlist.LoopPlaylist, "A", "B")
		fb.failPaths = map[string]bool{"/music/A.mp3": true, "/music/B.mp3": true}

		e.startPlay()

		assert.Len(t, fb.callsFor("add_and_play"), 2, "one attempt per track")
		assert.True(t, e.playlist.IsStopped())
		assert.Zero(t, e.active)
	})
}

func TestEngine_Progress(t *testing.T) {
	e, _ := newTestEngine(t, playlist.LoopQueue, "A")
	e.startPlay()
	drainEvents(e)

	e.handleMessage(Msg{Type: MsgProgress, Stream: e.active, Position: 5 * time.Second, Total: 59 * time.Second})
	e.handleMessage(Msg{Type: MsgProgress, Stream: e.active + 100, Position: time.Hour})

	events := drainEvents(e)
	require.Len(t, events, 1)
	assert.Equal(t, EventProgress, events[0].Type)
	assert.Equal(t, 5*time.Second, events[0].Position)
	assert.Equal(t, 59*time.Second, events[0].Total)
	assert.Equal(t, 5*time.Second, e.position)
}

func TestEngine_SetLoopMode_DropsMismatchedLookahead(t *testing.T) {
	e, _ := newTestEngine(t, playlist.LoopQueue, "A", "B")
	e.startPlay()
	e.handleMessage(Msg{Type: MsgAboutToFinish, Stream: e.active})
	require.True(t, e.playlist.HasNextTrack())

	e.setLoopMode(playlist.LoopPlaylist)
	assert.True(t, e.playlist.HasNextTrack(), "B still follows A")

	e.setLoopMode(playlist.LoopSingle)
	assert.False(t, e.playlist.HasNextTrack())
	assert.Zero(t, e.queued)
}

func startEngine(t *testing.T, e *Engine) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, errCh
}

func TestEngine_Run_Commands(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	cancel, errCh := startEngine(t, e)

	assert.True(t, errors.Is(e.Seek(5), ErrNoActiveStream))

	require.NoError(t, e.Play())
	require.NoError(t, e.Play(), "play while playing is a no-op")
	assert.Len(t, fb.callsFor("add_and_play"), 1)

	require.NoError(t, e.VolumeUp())
	v, err := e.Volume()
	require.NoError(t, err)
	assert.Equal(t, 75, v)

	require.NoError(t, e.SetVolume(300))
	v, _ = e.Volume()
	assert.Equal(t, 100, v, "fake backend clamps")

	require.NoError(t, e.SpeedDown())
	s, err := e.Speed()
	require.NoError(t, err)
	assert.Equal(t, 9, s)

	require.NoError(t, e.TogglePause())
	paused, err := e.IsPaused()
	require.NoError(t, err)
	assert.True(t, paused)
	require.NoError(t, e.Play())
	paused, _ = e.IsPaused()
	assert.False(t, paused)

	require.NoError(t, e.Seek(-10))
	require.NoError(t, e.SeekTo(30*time.Second))

	mode, err := e.CycleLoopMode()
	require.NoError(t, err)
	assert.Equal(t, playlist.LoopPlaylist, mode)

	gapless, err := e.ToggleGapless()
	require.NoError(t, err)
	assert.False(t, gapless)

	require.NoError(t, e.Select(1))
	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, "B", snap.Current.Title)
	assert.Equal(t, playlist.StatusRunning, snap.Status)
	assert.Len(t, snap.Tracks, 2)
	assert.Equal(t, 2*time.Minute, snap.PlaylistLength)
	assert.Equal(t, 100, snap.Volume)

	assert.True(t, errors.Is(e.Select(7), playlist.ErrIndexOutOfRange))

	cancel()
	require.NoError(t, <-errCh)
	assert.True(t, fb.closed)

	assert.True(t, errors.Is(e.Play(), ErrEngineClosed))
	_, err = e.Snapshot()
	assert.True(t, errors.Is(err, ErrEngineClosed))
}

func TestEngine_Run_SeekErrors(t *testing.T) {
	tests := []struct {
		name string
		seek func(e *Engine) error
	}{
		{name: "relative", seek: func(e *Engine) error { return e.Seek(90) }},
		{name: "absolute", seek: func(e *Engine) error { return e.SeekTo(90 * time.Second) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, fb := newTestEngine(t, playlist.LoopQueue, "A")
			startEngine(t, e)
			require.NoError(t, e.Play())
			require.NoError(t, e.SeekTo(5*time.Second))
			fb.mu.Lock()
			fb.seekErr = ErrSeekOutOfRange
			fb.mu.Unlock()

			err := tt.seek(e)
			assert.True(t, errors.Is(err, ErrSeekOutOfRange))

			snap, err := e.Snapshot()
			require.NoError(t, err)
			assert.Equal(t, 5*time.Second, snap.Position, "failed seek keeps the position")
			assert.Equal(t, playlist.StatusRunning, snap.Status)
		})
	}
}

func TestEngine_Run_BackendMessages(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B")
	startEngine(t, e)

	require.NoError(t, e.Play())
	first := fb.callsFor("add_and_play")[0].stream

	require.True(t, fb.emitter.Emit(Msg{Type: MsgEOS, Stream: first}))

	require.Eventually(t, func() bool {
		return len(fb.callsFor("add_and_play")) == 2
	}, time.Second, 5*time.Millisecond)

	snap, err := e.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, "B", snap.Current.Title)
}

func TestEngine_Run_BackendDisconnect(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A")
	_, errCh := startEngine(t, e)
	require.NoError(t, e.Play())

	fb.emitter.Close()

	err := <-errCh
	assert.True(t, errors.Is(err, ErrBackendDisconnected))

	var sawError bool
	for ev := range e.Events() {
		if ev.Type == EventError {
			sawError = true
			assert.True(t, errors.Is(ev.Err, ErrBackendDisconnected))
			assert.Equal(t, playlist.StatusStopped, ev.Status)
		}
	}
	assert.True(t, sawError)
	assert.True(t, errors.Is(e.Pause(), ErrEngineClosed))
}

func TestEngine_Run_PlaylistEditing(t *testing.T) {
	e, fb := newTestEngine(t, playlist.LoopQueue, "A", "B", "C")
	startEngine(t, e)

	require.NoError(t, e.Play())
	assert.True(t, errors.Is(e.Remove(0), playlist.ErrCurrentTrack))
	require.NoError(t, e.Remove(2))
	require.NoError(t, e.Add(track.Track{Title: "D", FilePath: "/music/D.mp3"}))

	snap, err := e.Snapshot()
	require.NoError(t, err)
	require.Len(t, snap.Tracks, 3)
	assert.Equal(t, "D", snap.Tracks[2].Title)

	// reload keeping the current track
	require.NoError(t, e.Reload([]track.Track{
		{Title: "Z", FilePath: "/music/Z.mp3"},
		{Title: "A", FilePath: "/music/A.mp3"},
	}))
	snap, _ = e.Snapshot()
	assert.Equal(t, 1, snap.Index)
	assert.Equal(t, playlist.StatusRunning, snap.Status)

	require.NoError(t, e.Update(func(live []track.Track) []track.Track {
		require.Len(t, live, 2)
		return []track.Track{live[1], live[0]}
	}))
	snap, _ = e.Snapshot()
	assert.Equal(t, 0, snap.Index, "the current track follows its file")
	assert.Equal(t, "A", snap.Current.Title)

	// reload dropping it
	require.NoError(t, e.Reload([]track.Track{{Title: "Z", FilePath: "/music/Z.mp3"}}))
	snap, _ = e.Snapshot()
	assert.Equal(t, -1, snap.Index)
	assert.Equal(t, playlist.StatusStopped, snap.Status)
	assert.Len(t, fb.callsFor("stop"), 1)

	require.NoError(t, e.AddAndPlay(track.Track{Title: "X", FilePath: "/elsewhere/X.flac", Duration: 2 * time.Minute}))
	snap, _ = e.Snapshot()
	assert.Equal(t, "X", snap.Current.Title)
	assert.Equal(t, 2*time.Minute, snap.Total)
	assert.Len(t, snap.Tracks, 2)

	require.NoError(t, e.Clear())
	snap, _ = e.Snapshot()
	assert.Empty(t, snap.Tracks)
	assert.Nil(t, snap.Current)
}
