package audio

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"
	"github.com/faiface/beep/effects"
	"github.com/faiface/beep/flac"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/vorbis"
	"github.com/faiface/beep/wav"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// BeepSettings configures the speaker.
type BeepSettings struct {
	SampleRate      int `mapstructure:"sample_rate" default:"44100" validate:"gte=8000,lte=192000"`
	BufferMs        int `mapstructure:"buffer_ms" default:"100" validate:"gte=10,lte=2000"`
	ResampleQuality int `mapstructure:"resample_quality" default:"4" validate:"gte=1,lte=64"`
}

// output is the part of the speaker the backend drives.
type output interface {
	Play(s beep.Streamer)
	Lock()
	Unlock()
	Clear()
}

type speakerOutput struct{}

func (speakerOutput) Play(s beep.Streamer) { speaker.Play(s) }
func (speakerOutput) Lock()                { speaker.Lock() }
func (speakerOutput) Unlock()              { speaker.Unlock() }
func (speakerOutput) Clear()               { speaker.Clear() }

var speakerOnce sync.Once

// Beep decodes in-process and renders through the speaker. The current and
// the buffered stream share one queue streamer, so the switch happens inside
// a single speaker buffer.
type Beep struct {
	out      output
	settings BeepSettings
	rate     beep.SampleRate

	// Guarded by out.Lock.
	queue  *beepQueue
	ctrl   *beep.Ctrl
	gain   *effects.Volume
	volume int
	speed  int

	mailbox  *mailbox
	lead     time.Duration
	progress progressGate

	cancel context.CancelFunc
	done   chan struct{}
}

// NewBeep initialises the speaker and starts rendering silence.
func NewBeep(emitter *playback.Emitter, settings BeepSettings, cfg Config) (*Beep, error) {
	rate := beep.SampleRate(settings.SampleRate)
	var initErr error
	speakerOnce.Do(func() {
		initErr = speaker.Init(rate, rate.N(time.Duration(settings.BufferMs)*time.Millisecond))
	})
	if initErr != nil {
		return nil, errors.Wrap(initErr, "failed to initialise speaker")
	}

	b := newBeep(speakerOutput{}, settings, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go func() {
		defer close(b.done)
		b.mailbox.pump(ctx, emitter, b.tick)
	}()
	zlog.Info().Msgf("audio: speaker ready: sample_rate=%d buffer=%dms", settings.SampleRate, settings.BufferMs)
	return b, nil
}

func newBeep(out output, settings BeepSettings, cfg Config) *Beep {
	cfg = withDefaults(cfg)
	b := &Beep{
		out:      out,
		settings: settings,
		rate:     beep.SampleRate(settings.SampleRate),
		volume:   maxVolume,
		speed:    10,
		mailbox:  newMailbox(),
		lead:     cfg.AboutToFinish,
		progress: progressGate{interval: cfg.ProgressInterval},
		cancel:   func() {},
		done:     make(chan struct{}),
	}
	b.queue = &beepQueue{onEnd: b.streamEnded}
	b.gain = &effects.Volume{Streamer: b.queue, Base: 2}
	b.ctrl = &beep.Ctrl{Streamer: b.gain}
	out.Play(b.ctrl)
	return b
}

func (b *Beep) Name() string { return TypeBeep }

// streamEnded runs on the speaker goroutine with the lock held.
func (b *Beep) streamEnded(s *beepStream) {
	b.mailbox.post(playback.Msg{Type: playback.MsgEOS, Stream: s.id})
	s.close()
}

// open decodes path into a stream resampled to the speaker rate.
func (b *Beep) open(path string, id playback.StreamID) (*beepStream, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}

	var (
		decoder beep.StreamSeekCloser
		format  beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp3":
		decoder, format, err = mp3.Decode(f)
	case ".flac":
		decoder, format, err = flac.Decode(f)
	case ".wav":
		decoder, format, err = wav.Decode(f)
	case ".ogg":
		decoder, format, err = vorbis.Decode(f)
	default:
		_ = f.Close()
		return nil, errors.Wrapf(playback.ErrUnsupportedFormat, "%s", path)
	}
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "failed to decode %s", path)
	}

	s := &beepStream{id: id, decoder: decoder, format: format}
	s.resampler = beep.ResampleRatio(b.settings.ResampleQuality, b.ratio(format, b.speed), decoder)
	s.streamer = s.resampler
	return s, nil
}

func (b *Beep) ratio(format beep.Format, speed int) float64 {
	return float64(format.SampleRate) / float64(b.rate) * speedRatio(speed)
}

// AddAndPlay replaces both streams with path.
func (b *Beep) AddAndPlay(path string, stream playback.StreamID) error {
	s, err := b.open(path, stream)
	if err != nil {
		return err
	}

	b.out.Lock()
	old, oldNext := b.queue.current, b.queue.next
	b.queue.current, b.queue.next = s, nil
	b.ctrl.Paused = false
	b.out.Unlock()

	old.close()
	oldNext.close()
	zlog.Debug().Msgf("audio: beep playing: stream=%d length=%v", stream, s.length())
	return nil
}

// EnqueueNext decodes path and places it behind the current stream.
func (b *Beep) EnqueueNext(path string, stream playback.StreamID) (time.Duration, error) {
	s, err := b.open(path, stream)
	if err != nil {
		return 0, err
	}

	b.out.Lock()
	if b.queue.current == nil {
		b.out.Unlock()
		s.close()
		return 0, playback.ErrNoActiveStream
	}
	old := b.queue.next
	b.queue.next = s
	b.out.Unlock()

	old.close()
	return s.length(), nil
}

func (b *Beep) SkipOne() {
	b.out.Lock()
	cur, next := b.queue.current, b.queue.next
	b.queue.current, b.queue.next = nil, nil
	b.out.Unlock()

	if cur != nil {
		b.mailbox.post(playback.Msg{Type: playback.MsgEOS, Stream: cur.id})
	}
	cur.close()
	next.close()
}

func (b *Beep) Stop() {
	b.out.Lock()
	cur, next := b.queue.current, b.queue.next
	b.queue.current, b.queue.next = nil, nil
	b.ctrl.Paused = false
	b.out.Unlock()

	cur.close()
	next.close()
}

func (b *Beep) Pause() {
	b.out.Lock()
	b.ctrl.Paused = true
	b.out.Unlock()
}

func (b *Beep) Resume() {
	b.out.Lock()
	b.ctrl.Paused = false
	b.out.Unlock()
}

// Seek moves by secs. Positions before the start clamp to zero.
func (b *Beep) Seek(secs int64) error {
	b.out.Lock()
	defer b.out.Unlock()
	cur := b.queue.current
	if cur == nil {
		return playback.ErrNoActiveStream
	}
	return cur.seek(cur.position()+time.Duration(secs)*time.Second, b.lead)
}

// SeekTo jumps to pos.
func (b *Beep) SeekTo(pos time.Duration) error {
	b.out.Lock()
	defer b.out.Unlock()
	cur := b.queue.current
	if cur == nil {
		return playback.ErrNoActiveStream
	}
	return cur.seek(pos, b.lead)
}

func (b *Beep) Volume() int {
	b.out.Lock()
	defer b.out.Unlock()
	return b.volume
}

// SetVolume clamps to 0-100. The scale is logarithmic, 100 is unity gain.
func (b *Beep) SetVolume(volume int) {
	volume = clampVolume(volume)
	b.out.Lock()
	defer b.out.Unlock()
	b.volume = volume
	b.gain.Silent = volume == 0
	if volume > 0 {
		b.gain.Volume = math.Log2(float64(volume) / maxVolume)
	}
}

func (b *Beep) Speed() int {
	b.out.Lock()
	defer b.out.Unlock()
	return b.speed
}

// SetSpeed clamps to 1-30 tenths. Pitch follows speed.
func (b *Beep) SetSpeed(speed int) {
	speed = clampSpeed(speed)
	b.out.Lock()
	defer b.out.Unlock()
	b.speed = speed
	for _, s := range []*beepStream{b.queue.current, b.queue.next} {
		if s != nil && s.resampler != nil {
			s.resampler.SetRatio(b.ratio(s.format, speed))
		}
	}
}

func (b *Beep) Close() error {
	b.Stop()
	b.cancel()
	<-b.done
	b.out.Clear()
	return nil
}

func (b *Beep) tick(now time.Time) {
	b.out.Lock()
	cur := b.queue.current
	if cur == nil || b.ctrl.Paused {
		b.out.Unlock()
		return
	}
	pos, total := cur.position(), cur.length()
	about := !cur.aboutSent && total-pos <= b.lead
	if about {
		cur.aboutSent = true
	}
	b.out.Unlock()

	if about {
		b.mailbox.post(playback.Msg{Type: playback.MsgAboutToFinish, Stream: cur.id})
	}
	if b.progress.due(now) {
		b.mailbox.post(playback.Msg{Type: playback.MsgProgress, Stream: cur.id, Position: pos, Total: total})
	}
}
