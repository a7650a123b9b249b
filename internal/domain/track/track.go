// Package track provides the Track domain entity.
package track

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrNegativeDuration is returned by Validate when a track reports a negative duration.
var ErrNegativeDuration = errors.New("track duration must not be negative")

// Track represents one local audio item.
// Empty string fields are treated as absent.
type Track struct {
	Title       string        // Title tag, or file stem when untagged
	Artist      string        // Artist tag
	Album       string        // Album tag
	Genre       string        // Genre tag
	FilePath    string        // Absolute path on disk
	PlayableURI string        // Backend-resolved locator, overrides FilePath when set
	Extension   string        // Lowercase extension without the dot
	Directory   string        // Containing directory
	Duration    time.Duration // Track duration
}

// New creates a minimal track derived from the file name only.
func New(path string) Track {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return Track{
		Title:     strings.TrimSuffix(base, ext),
		FilePath:  path,
		Extension: strings.ToLower(strings.TrimPrefix(ext, ".")),
		Directory: filepath.Dir(path),
	}
}

// IsPlayable reports whether the track can be handed to a backend.
func (t *Track) IsPlayable() bool {
	return t.FilePath != "" && t.Duration >= 0
}

// Validate checks the track invariants.
func (t *Track) Validate() error {
	if t.Duration < 0 {
		return errors.Wrapf(ErrNegativeDuration, "track %q", t.Name())
	}
	return nil
}

// Locator returns the path a backend should open.
func (t *Track) Locator() string {
	if t.PlayableURI != "" {
		return t.PlayableURI
	}
	return t.FilePath
}

// Name returns a display name for the track.
func (t *Track) Name() string {
	if t.Title != "" {
		return t.Title
	}
	if t.FilePath != "" {
		return filepath.Base(t.FilePath)
	}
	return "unknown"
}

// SameFile reports whether both tracks point at the same file.
// Tracks without a file path only match on identical title and artist.
func (t *Track) SameFile(other *Track) bool {
	if other == nil {
		return false
	}
	if t.FilePath != "" || other.FilePath != "" {
		return t.FilePath == other.FilePath
	}
	return t.Title == other.Title && t.Artist == other.Artist
}

// SetTitle corrects the title.
func (t *Track) SetTitle(title string) { t.Title = strings.TrimSpace(title) }

// SetArtist corrects the artist.
func (t *Track) SetArtist(artist string) { t.Artist = strings.TrimSpace(artist) }

// SetAlbum corrects the album.
func (t *Track) SetAlbum(album string) { t.Album = strings.TrimSpace(album) }

// SetGenre corrects the genre.
func (t *Track) SetGenre(genre string) { t.Genre = strings.TrimSpace(genre) }

// DurationFormatted returns the duration as mm:ss, or h:mm:ss from one hour upwards.
func (t *Track) DurationFormatted() string {
	return FormatDuration(t.Duration)
}

// FormatDuration formats d the same way as DurationFormatted.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	h, m, s := secs/3600, (secs%3600)/60, secs%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
