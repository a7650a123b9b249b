package audio

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/faiface/beep"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// beepStream is one decoded file.
type beepStream struct {
	id        playback.StreamID
	decoder   beep.StreamSeekCloser
	format    beep.Format
	resampler *beep.Resampler
	streamer  beep.Streamer // resampler, or the decoder itself in tests
	aboutSent bool
}

func (s *beepStream) position() time.Duration {
	return s.format.SampleRate.D(s.decoder.Position())
}

func (s *beepStream) length() time.Duration {
	return s.format.SampleRate.D(s.decoder.Len())
}

// seek re-arms MsgAboutToFinish when pos lies more than lead before the end.
func (s *beepStream) seek(pos, lead time.Duration) error {
	pos = max(pos, 0)
	n := s.format.SampleRate.N(pos)
	if n >= s.decoder.Len() {
		return errors.Wrapf(playback.ErrSeekOutOfRange, "seek to %v of %v", pos, s.length())
	}
	if err := s.decoder.Seek(n); err != nil {
		return errors.Wrap(err, "decoder seek failed")
	}
	if s.length()-pos > lead {
		s.aboutSent = false
	}
	return nil
}

func (s *beepStream) close() {
	if s == nil {
		return
	}
	_ = s.decoder.Close()
}

// beepQueue streams the current stream and continues with the buffered one
// in the same call once it drains. It never stops; idle time is silence.
type beepQueue struct {
	current *beepStream
	next    *beepStream
	onEnd   func(ended *beepStream)
}

func (q *beepQueue) Stream(samples [][2]float64) (int, bool) {
	filled := 0
	for filled < len(samples) {
		if q.current == nil {
			clear(samples[filled:])
			break
		}
		n, ok := q.current.streamer.Stream(samples[filled:])
		filled += n
		if !ok || n == 0 {
			ended := q.current
			q.current, q.next = q.next, nil
			q.onEnd(ended)
		}
	}
	return len(samples), true
}

func (q *beepQueue) Err() error {
	return nil
}
