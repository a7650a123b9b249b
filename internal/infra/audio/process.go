//go:build unix

package audio

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// ProcessSettings configures the external player.
type ProcessSettings struct {
	Command string   `mapstructure:"command" default:"ffplay" validate:"required"`
	Args    []string `mapstructure:"args"` // Extra arguments placed before the file
}

const (
	minProcessSpeed = 5
	maxProcessSpeed = 20
)

// Process plays every stream in its own external player process (ffplay by
// default). The buffered stream is started as soon as the current process
// exits. Pause and resume stop and continue the process; volume, speed and
// seek restart it at the current position.
type Process struct {
	mu sync.Mutex

	settings ProcessSettings
	prober   Prober
	mailbox  *mailbox
	lead     time.Duration
	progress progressGate
	now      func() time.Time
	start    func(s *procStream, args []string) error

	current *procStream
	next    *procStream
	paused  bool
	volume  int
	speed   int

	cancel context.CancelFunc
	done   chan struct{}
}

type procStream struct {
	id        playback.StreamID
	path      string
	duration  time.Duration
	tl        timeline
	cmd       *exec.Cmd
	aboutSent bool
	released  bool // ended by the backend, its exit is not an end of stream
}

// NewProcess creates a process backend. The command must be on PATH.
func NewProcess(emitter *playback.Emitter, prober Prober, settings ProcessSettings, cfg Config) (*Process, error) {
	if _, err := exec.LookPath(settings.Command); err != nil {
		return nil, errors.Wrapf(err, "player command %q not found", settings.Command)
	}
	p := newProcess(prober, settings, cfg)
	p.start = p.startCommand

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go func() {
		defer close(p.done)
		p.mailbox.pump(ctx, emitter, p.tick)
	}()
	return p, nil
}

func newProcess(prober Prober, settings ProcessSettings, cfg Config) *Process {
	cfg = withDefaults(cfg)
	return &Process{
		settings: settings,
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

func (p *Process) Name() string { return TypeProcess }

// args builds the player command line for path starting at offset.
func (p *Process) args(path string, offset time.Duration) []string {
	args := []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error"}
	if offset > 0 {
		args = append(args, "-ss", strconv.FormatFloat(offset.Seconds(), 'f', 3, 64))
	}
	args = append(args, "-volume", strconv.Itoa(p.volume))
	if p.speed != 10 {
		args = append(args, "-af", fmt.Sprintf("atempo=%.1f", speedRatio(p.speed)))
	}
	args = append(args, p.settings.Args...)
	return append(args, path)
}

func (p *Process) startCommand(s *procStream, args []string) error {
	cmd := exec.Command(p.settings.Command, args...)
	if err := cmd.Start(); err != nil {
		return errors.Wrapf(err, "failed to start %s", p.settings.Command)
	}
	s.cmd = cmd
	go func() {
		err := cmd.Wait()
		p.exited(s, cmd, err)
	}()
	return nil
}

// launchLocked (re)starts s at offset.
func (p *Process) launchLocked(s *procStream, offset time.Duration) error {
	p.killLocked(s)
	if err := p.start(s, p.args(s.path, offset)); err != nil {
		return err
	}
	now := p.now()
	s.tl = newTimeline(s.duration, speedRatio(p.speed), now)
	s.tl.seek(now, offset)
	if p.paused {
		p.signalLocked(s, syscall.SIGSTOP)
		s.tl.pause(now)
	}
	zlog.Debug().Msgf("audio: process started: stream=%d offset=%v", s.id, offset)
	return nil
}

func (p *Process) killLocked(s *procStream) {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Kill(); err != nil {
		zlog.Debug().Err(err).Msgf("audio: failed to kill player: stream=%d", s.id)
	}
	s.cmd = nil
}

func (p *Process) signalLocked(s *procStream, sig syscall.Signal) {
	if s == nil || s.cmd == nil || s.cmd.Process == nil {
		return
	}
	if err := s.cmd.Process.Signal(sig); err != nil {
		zlog.Debug().Err(err).Msgf("audio: failed to signal player: stream=%d signal=%v", s.id, sig)
	}
}

// exited runs when a player process ends.
func (p *Process) exited(s *procStream, cmd *exec.Cmd, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s.released || s.cmd != cmd || p.current != s {
		return
	}
	if err != nil {
		zlog.Warn().Err(err).Msgf("audio: player exited with error: stream=%d path=%s", s.id, s.path)
	}
	p.endLocked(s)
}

// endLocked reports the end of s and moves on to the buffered stream.
func (p *Process) endLocked(s *procStream) {
	s.released = true
	p.mailbox.post(playback.Msg{Type: playback.MsgEOS, Stream: s.id})

	p.current, p.next = p.next, nil
	if p.current == nil {
		return
	}
	if err := p.launchLocked(p.current, 0); err != nil {
		zlog.Warn().Err(err).Msgf("audio: failed to start buffered stream: stream=%d", p.current.id)
		p.endLocked(p.current)
	}
}

func (p *Process) newStream(path string, id playback.StreamID) *procStream {
	d, err := p.prober.Duration(path)
	if err != nil {
		zlog.Debug().Err(err).Msgf("audio: duration unknown: path=%s", path)
	}
	return &procStream{id: id, path: path, duration: d}
}

// AddAndPlay replaces everything with path.
func (p *Process) AddAndPlay(path string, stream playback.StreamID) error {
	s := p.newStream(path, stream)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.paused = false
	if err := p.launchLocked(s, 0); err != nil {
		return err
	}
	p.current = s
	return nil
}

// EnqueueNext remembers path; its process starts when the current one exits.
func (p *Process) EnqueueNext(path string, stream playback.StreamID) (time.Duration, error) {
	s := p.newStream(path, stream)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return 0, playback.ErrNoActiveStream
	}
	p.next = s
	return s.duration, nil
}

func (p *Process) releaseLocked() {
	for _, s := range []*procStream{p.current, p.next} {
		if s == nil {
			continue
		}
		s.released = true
		p.killLocked(s)
	}
	p.current, p.next = nil, nil
}

func (p *Process) SkipOne() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.mailbox.post(playback.Msg{Type: playback.MsgEOS, Stream: p.current.id})
	}
	p.releaseLocked()
}

func (p *Process) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.releaseLocked()
	p.paused = false
}

func (p *Process) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	if p.current != nil {
		p.signalLocked(p.current, syscall.SIGSTOP)
		p.current.tl.pause(p.now())
	}
}

func (p *Process) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	if p.current != nil {
		p.signalLocked(p.current, syscall.SIGCONT)
		p.current.tl.resume(p.now())
	}
}

// Seek moves by secs. Positions before the start clamp to zero.
func (p *Process) Seek(secs int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return playback.ErrNoActiveStream
	}
	return p.seekLocked(p.current.tl.position(p.now()) + time.Duration(secs)*time.Second)
}

// SeekTo jumps to pos.
func (p *Process) SeekTo(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return playback.ErrNoActiveStream
	}
	return p.seekLocked(pos)
}

func (p *Process) seekLocked(target time.Duration) error {
	target = max(target, 0)
	if d := p.current.duration; d > 0 && target >= d {
		return errors.Wrapf(playback.ErrSeekOutOfRange, "seek to %v of %v", target, d)
	}
	if d := p.current.duration; d-target > p.lead {
		p.current.aboutSent = false
	}
	return p.launchLocked(p.current, target)
}

func (p *Process) restartLocked() {
	if p.current == nil {
		return
	}
	pos := p.current.tl.position(p.now())
	if err := p.launchLocked(p.current, pos); err != nil {
		zlog.Warn().Err(err).Msgf("audio: failed to restart player: stream=%d", p.current.id)
	}
}

func (p *Process) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// SetVolume clamps to 0-100 and restarts the player at the same position.
func (p *Process) SetVolume(volume int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	volume = clampVolume(volume)
	if volume == p.volume {
		return
	}
	p.volume = volume
	p.restartLocked()
}

func (p *Process) Speed() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// SetSpeed clamps to 5-20 tenths, the range atempo accepts in one stage.
func (p *Process) SetSpeed(speed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	speed = min(max(speed, minProcessSpeed), maxProcessSpeed)
	if speed == p.speed {
		return
	}
	p.speed = speed
	p.restartLocked()
}

func (p *Process) Close() error {
	p.Stop()
	p.cancel()
	<-p.done
	return nil
}

func (p *Process) tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.current
	if cur == nil || p.paused {
		return
	}
	if remaining, ok := cur.tl.remaining(now); ok && !cur.aboutSent && remaining <= p.lead {
		cur.aboutSent = true
		p.mailbox.post(playback.Msg{Type: playback.MsgAboutToFinish, Stream: cur.id})
	}
	if p.progress.due(now) {
		p.mailbox.post(playback.Msg{
			Type:     playback.MsgProgress,
			Stream:   cur.id,
			Position: cur.tl.position(now),
			Total:    cur.duration,
		})
	}
}
