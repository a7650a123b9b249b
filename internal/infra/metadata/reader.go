// Package metadata reads tags and durations from local audio files.
package metadata

import (
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dhowden/tag"
	"github.com/faiface/beep/vorbis"
	"github.com/go-audio/wav"
	"github.com/mewkiz/flac"
	zlog "github.com/rs/zerolog/log"
	"github.com/tcolgate/mp3"

	"github.com/osa030/ubiquity/internal/domain/track"
)

// ErrUnsupported is returned for files whose extension is not an audio format.
var ErrUnsupported = errors.New("unsupported audio format")

var extensions = []string{"mp3", "flac", "m4a", "aac", "ogg", "wav"}

// Reader builds tracks from audio files.
type Reader struct{}

// NewReader creates a Reader.
func NewReader() *Reader {
	return &Reader{}
}

// Extensions returns the supported extensions without the dot.
func (r *Reader) Extensions() []string {
	return slices.Clone(extensions)
}

// IsSupported reports whether path has a supported extension.
func (r *Reader) IsSupported(path string) bool {
	return slices.Contains(extensions, extension(path))
}

// Read returns the track for path. Missing tags fall back to the file name
// and an unknown duration is left at zero.
func (r *Reader) Read(path string) (track.Track, error) {
	if !r.IsSupported(path) {
		return track.Track{}, errors.Wrapf(ErrUnsupported, "%s", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return track.Track{}, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	t := track.New(path)
	if m, err := tag.ReadFrom(f); err != nil {
		zlog.Debug().Err(err).Msgf("metadata: no tags, using file name: path=%s", path)
	} else {
		if m.Title() != "" {
			t.SetTitle(m.Title())
		}
		t.SetArtist(m.Artist())
		t.SetAlbum(m.Album())
		t.SetGenre(m.Genre())
	}

	d, err := r.Duration(path)
	if err != nil {
		zlog.Warn().Err(err).Msgf("metadata: duration unknown: path=%s", path)
	}
	t.Duration = d
	return t, nil
}

// Duration probes the length of path. Formats without a probe return zero.
func (r *Reader) Duration(path string) (time.Duration, error) {
	switch extension(path) {
	case "mp3":
		return durationMP3(path)
	case "flac":
		return durationFLAC(path)
	case "wav":
		return durationWAV(path)
	case "ogg":
		return durationOgg(path)
	case "m4a", "aac":
		return 0, nil
	default:
		return 0, errors.Wrapf(ErrUnsupported, "%s", path)
	}
}

func extension(path string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
}

// durationMP3 sums the frame durations.
func durationMP3(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	dec := mp3.NewDecoder(f)
	var (
		total   time.Duration
		frame   mp3.Frame
		skipped int
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if frames == 0 {
				return 0, errors.Wrapf(err, "no mp3 frames in %s", path)
			}
			if !errors.Is(err, io.EOF) {
				zlog.Debug().Err(err).Msgf("metadata: partial mp3 decode: path=%s frames=%d", path, frames)
			}
			break
		}
		total += frame.Duration()
		frames++
	}
	return total, nil
}

// durationFLAC reads STREAMINFO.
func durationFLAC(path string) (time.Duration, error) {
	stream, err := flac.ParseFile(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to parse %s", path)
	}
	defer stream.Close()

	info := stream.Info
	if info.NSamples == 0 || info.SampleRate == 0 {
		return 0, errors.Newf("flac stream info incomplete: %s", path)
	}
	return time.Duration(float64(info.NSamples) / float64(info.SampleRate) * float64(time.Second)), nil
}

func durationWAV(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, errors.Newf("invalid wav file: %s", path)
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, errors.Wrapf(err, "failed to read wav duration of %s", path)
	}
	return d, nil
}

func durationOgg(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to open %s", path)
	}
	streamer, format, err := vorbis.Decode(f)
	if err != nil {
		_ = f.Close()
		return 0, errors.Wrapf(err, "failed to decode %s", path)
	}
	defer streamer.Close()
	return format.SampleRate.D(streamer.Len()), nil
}
