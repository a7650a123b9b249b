// Package session wires the library, the session store, the playback engine
// and notifications into one running player.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/app/library"
	"github.com/osa030/ubiquity/internal/app/notification"
	"github.com/osa030/ubiquity/internal/app/playback"
	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
	"github.com/osa030/ubiquity/internal/infra/config"
	"github.com/osa030/ubiquity/internal/infra/store"
)

var (
	ErrNotStarted     = errors.New("session is not started")
	ErrAlreadyStarted = errors.New("session is already started")
)

// longTrack is the length from which "auto" restores the last position.
const longTrack = 10 * time.Minute

const saveTimeout = 5 * time.Second

// SessionStore persists the session between runs.
type SessionStore interface {
	SaveSession(ctx context.Context, sess store.Session) error
	LoadSession(ctx context.Context) (*store.Session, error)
}

// Deps are the collaborators built by the caller.
type Deps struct {
	Backend playback.BackendFactory
	Reader  library.MetadataReader
	Store   SessionStore // optional
}

// restorePoint is a position to seek to once its track starts.
type restorePoint struct {
	path     string
	position time.Duration
}

// Manager manages the player session.
type Manager struct {
	mu sync.RWMutex

	config *config.Config
	deps   Deps

	// Components
	scanner      *library.Scanner
	engine       *playback.Engine
	notification *notification.Manager

	phase   Phase
	restore *restorePoint

	knownMu sync.Mutex
	known   map[string]bool // library files seen by the last scan

	ctx       context.Context
	cancel    context.CancelFunc
	runDone   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager creates a session manager. The scan filter chain is built from
// the library configuration.
func NewManager(cfg *config.Config, deps Deps) (*Manager, error) {
	if deps.Backend == nil || deps.Reader == nil {
		return nil, errors.New("backend factory and metadata reader are required")
	}

	scanner, err := NewScanner(cfg, deps.Reader)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:       cfg,
		deps:         deps,
		scanner:      scanner,
		notification: notification.NewManager(),
		ctx:          ctx,
		cancel:       cancel,
		runDone:      make(chan struct{}),
		done:         make(chan struct{}),
	}, nil
}

// NewScanner builds the library scanner and its filter chain from cfg.
func NewScanner(cfg *config.Config, reader library.MetadataReader) (*library.Scanner, error) {
	filters := make(map[string]library.FilterConfig, len(cfg.Library.Filters))
	for name, f := range cfg.Library.Filters {
		filters[name] = library.FilterConfig{Enabled: cfg.IsFilterEnabled(name), Settings: f.Settings}
	}
	chain, err := library.BuildChain(filters)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build scan filters")
	}
	return library.NewScanner(cfg.Library.MusicDirs, reader, chain), nil
}

// Start scans the library, restores the saved session and starts the engine.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase != PhaseIdle {
		return ErrAlreadyStarted
	}

	saved := m.loadSession(ctx)

	result, err := m.scanner.Scan(ctx)
	if err != nil {
		return errors.Wrap(err, "library scan failed")
	}

	engineCfg := playback.Config{
		Gapless:    m.config.Gapless(),
		Volume:     m.config.Playback.Volume,
		Speed:      m.config.Playback.Speed,
		VolumeStep: m.config.Playback.VolumeStep,
		SpeedStep:  m.config.Playback.SpeedStep,
	}
	tracks, index := result.Tracks, -1
	loopMode := m.config.LoopMode()
	if saved != nil {
		tracks, index = mergeSession(saved, result.Tracks)
		loopMode = saved.LoopMode
		engineCfg.Gapless = saved.Gapless
		engineCfg.Volume = saved.Volume
		engineCfg.Speed = saved.Speed
		if index >= 0 && shouldRestorePosition(m.config.Playback.RememberLastPosition, tracks[index], saved.Position) {
			m.restore = &restorePoint{path: tracks[index].FilePath, position: saved.Position}
		}
	}

	pl := playlist.New(tracks, loopMode)
	if index >= 0 {
		if err := pl.SetCurrentIndex(index); err != nil {
			return errors.Wrap(err, "failed to restore current track")
		}
	}

	engine, err := playback.NewEngine(engineCfg, pl, m.deps.Backend)
	if err != nil {
		return err
	}
	m.engine = engine
	m.knownMu.Lock()
	m.known = pathSet(result.Tracks)
	m.knownMu.Unlock()
	m.phase = PhaseActive

	go m.run()
	go m.playbackLoop()
	if m.config.WatchEnabled() {
		w := library.NewWatcher(m.scanner.Dirs(), m.config.Debounce(), m.deps.Reader.IsSupported, m.rescanOnChange)
		go func() {
			if err := w.Run(m.ctx); err != nil {
				zlog.Error().Err(err).Msg("session: library watcher stopped")
			}
		}()
	}

	zlog.Info().Msgf("session: started: backend=%s tracks=%d restored=%t", engine.BackendName(), len(tracks), saved != nil)

	if m.config.Playback.Autoplay && len(tracks) > 0 {
		if err := engine.Play(); err != nil {
			zlog.Warn().Err(err).Msg("session: autoplay failed")
		}
	}
	return nil
}

func (m *Manager) run() {
	defer close(m.runDone)
	if err := m.engine.Run(m.ctx); err != nil {
		zlog.Error().Err(err).Msg("session: engine stopped")
	}
	m.mu.Lock()
	m.phase = PhaseTerminated
	m.mu.Unlock()
	m.closeOnce.Do(func() { close(m.done) })
}

func (m *Manager) loadSession(ctx context.Context) *store.Session {
	if m.deps.Store == nil {
		return nil
	}
	saved, err := m.deps.Store.LoadSession(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNoSession) {
			zlog.Warn().Err(err).Msg("session: ignoring saved session")
		}
		return nil
	}
	return saved
}

// mergeSession keeps the saved order for tracks still in the library and
// appends the rest of the library. It returns the new index of the saved
// current track, or -1.
func mergeSession(saved *store.Session, scanned []track.Track) ([]track.Track, int) {
	byPath := make(map[string]int, len(scanned))
	for i, t := range scanned {
		byPath[t.FilePath] = i
	}

	merged := make([]track.Track, 0, len(scanned))
	used := make(map[string]bool, len(scanned))
	index := -1
	for i, t := range saved.Tracks {
		j, ok := byPath[t.FilePath]
		if !ok || used[t.FilePath] {
			continue
		}
		if i == saved.Index {
			index = len(merged)
		}
		merged = append(merged, scanned[j])
		used[t.FilePath] = true
	}
	for _, t := range scanned {
		if !used[t.FilePath] {
			merged = append(merged, t)
		}
	}
	return merged, index
}

// mergeLibrary folds a fresh scan into the live playlist. Live entries keep
// their order and take the scanned metadata. Library files that are gone are
// dropped, files added from outside the library stay, and files missing from
// the known set of the previous scan go last.
func mergeLibrary(live, scanned []track.Track, known map[string]bool, inLibrary func(path string) bool) []track.Track {
	byPath := make(map[string]int, len(scanned))
	for i, t := range scanned {
		byPath[t.FilePath] = i
	}

	merged := make([]track.Track, 0, len(live)+len(scanned))
	used := make(map[string]bool, len(live))
	for _, t := range live {
		if used[t.FilePath] {
			continue
		}
		if j, ok := byPath[t.FilePath]; ok {
			merged = append(merged, scanned[j])
		} else if !inLibrary(t.FilePath) {
			merged = append(merged, t)
		} else {
			continue
		}
		used[t.FilePath] = true
	}
	for _, t := range scanned {
		if !used[t.FilePath] && !known[t.FilePath] {
			merged = append(merged, t)
		}
	}
	return merged
}

func pathSet(tracks []track.Track) map[string]bool {
	set := make(map[string]bool, len(tracks))
	for _, t := range tracks {
		set[t.FilePath] = true
	}
	return set
}

// shouldRestorePosition applies the remember_last_position rule.
func shouldRestorePosition(mode string, t track.Track, pos time.Duration) bool {
	if pos <= 0 || (t.Duration > 0 && pos >= t.Duration) {
		return false
	}
	switch mode {
	case config.RememberYes:
		return true
	case config.RememberAuto:
		return t.Duration >= longTrack
	default:
		return false
	}
}

// Engine returns the playback engine, nil before Start.
func (m *Manager) Engine() *playback.Engine {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.engine
}

// Notifications returns the notification manager.
func (m *Manager) Notifications() *notification.Manager {
	return m.notification
}

// Phase returns the lifecycle phase.
func (m *Manager) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// Done is closed when the session ends.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Rescan scans the library again and merges the result into the playlist.
func (m *Manager) Rescan(ctx context.Context) (*library.ScanResult, error) {
	engine := m.Engine()
	if engine == nil {
		return nil, ErrNotStarted
	}
	result, err := m.scanner.Scan(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "library scan failed")
	}
	err = engine.Update(func(live []track.Track) []track.Track {
		m.knownMu.Lock()
		defer m.knownMu.Unlock()
		merged := mergeLibrary(live, result.Tracks, m.known, m.scanner.Covers)
		m.known = pathSet(result.Tracks)
		return merged
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddFiles reads the metadata of paths and appends them to the playlist.
func (m *Manager) AddFiles(paths []string) ([]track.Track, error) {
	engine := m.Engine()
	if engine == nil {
		return nil, ErrNotStarted
	}
	tracks := make([]track.Track, 0, len(paths))
	for _, path := range paths {
		t, err := m.readFile(path)
		if err != nil {
			return nil, err
		}
		tracks = append(tracks, t)
	}
	if err := engine.Add(tracks...); err != nil {
		return nil, err
	}
	return tracks, nil
}

// PlayFile reads the metadata of path and plays it, appending it to the
// playlist when it is not there yet.
func (m *Manager) PlayFile(path string) (track.Track, error) {
	engine := m.Engine()
	if engine == nil {
		return track.Track{}, ErrNotStarted
	}
	t, err := m.readFile(path)
	if err != nil {
		return track.Track{}, err
	}
	if err := engine.AddAndPlay(t); err != nil {
		return track.Track{}, err
	}
	return t, nil
}

func (m *Manager) readFile(path string) (track.Track, error) {
	if !m.deps.Reader.IsSupported(path) {
		return track.Track{}, errors.Wrapf(playback.ErrUnsupportedFormat, "%s", path)
	}
	t, err := m.deps.Reader.Read(path)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to read %s", path)
	}
	return t, nil
}

func (m *Manager) rescanOnChange(ctx context.Context) {
	if _, err := m.Rescan(ctx); err != nil {
		zlog.Warn().Err(err).Msg("session: rescan after change failed")
	}
}

// playbackLoop forwards engine events until the engine stops.
func (m *Manager) playbackLoop() {
	for event := range m.engine.Events() {
		m.handlePlaybackEvent(event)
	}
}

func (m *Manager) handlePlaybackEvent(event playback.Event) {
	m.notification.Broadcast(notification.FromEvent(event))

	switch event.Type {
	case playback.EventTrackChanged:
		m.onTrackChanged(event)
		m.saveSession()
	case playback.EventStateChanged:
		if event.Status == playlist.StatusStopped {
			m.saveSession()
		}
	case playback.EventQueueEnded, playback.EventPlaylistChanged:
		m.saveSession()
	case playback.EventError:
		zlog.Error().Err(event.Err).Msg("session: playback error")
	}
}

// onTrackChanged seeks to the remembered position when the restored track
// is the first one to start.
func (m *Manager) onTrackChanged(event playback.Event) {
	m.mu.Lock()
	rp := m.restore
	if rp == nil || event.Track == nil || event.Track.FilePath != rp.path {
		m.mu.Unlock()
		return
	}
	m.restore = nil
	m.mu.Unlock()

	zlog.Info().Msgf("session: resuming at %s: track=%s", track.FormatDuration(rp.position), event.Track.Name())
	if err := m.engine.SeekTo(rp.position); err != nil {
		zlog.Warn().Err(err).Msg("session: failed to restore position")
	}
}

func (m *Manager) saveSession() {
	if m.deps.Store == nil {
		return
	}
	snap, err := m.engine.Snapshot()
	if err != nil {
		zlog.Debug().Err(err).Msg("session: not saved")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := m.deps.Store.SaveSession(ctx, fromSnapshot(snap)); err != nil {
		zlog.Warn().Err(err).Msg("session: failed to save")
	}
}

func fromSnapshot(snap playback.Snapshot) store.Session {
	return store.Session{
		Tracks:   snap.Tracks,
		Index:    snap.Index,
		LoopMode: snap.LoopMode,
		Gapless:  snap.Gapless,
		Volume:   snap.Volume,
		Speed:    snap.Speed,
		Position: snap.Position,
		SavedAt:  time.Now(),
	}
}

// Close saves the session, stops the engine and drops all subscribers.
func (m *Manager) Close() {
	m.mu.RLock()
	started := m.engine != nil
	m.mu.RUnlock()

	if started {
		m.saveSession()
	}
	m.cancel()
	if started {
		<-m.runDone
	}

	m.mu.Lock()
	m.phase = PhaseTerminated
	m.mu.Unlock()
	m.notification.Close()
	m.closeOnce.Do(func() { close(m.done) })
	zlog.Info().Msg("session: closed")
}
