// Package playlist provides the Playlist domain entity: an ordered queue of
// tracks with a cursor, a resolved lookahead, a loop mode and a run status.
//
// A Playlist is not safe for concurrent use. The playback engine owns it and
// mutates it from a single goroutine.
package playlist

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ubiquity/internal/domain/track"
)

// Errors
var (
	ErrIndexOutOfRange = errors.New("playlist index out of range")
	ErrCurrentTrack    = errors.New("cannot remove the current track")
)

const noIndex = -1

// Playlist represents the play queue.
type Playlist struct {
	tracks  []track.Track
	current int // index of the current track, noIndex when unset

	// Lookahead resolved ahead of the cursor.
	next         *track.Track
	nextIndex    int // sequence index the lookahead commits to, noIndex to append
	nextDuration time.Duration

	loopMode LoopMode
	status   Status
}

// New creates a stopped playlist with no cursor.
func New(tracks []track.Track, mode LoopMode) *Playlist {
	p := &Playlist{
		tracks:    make([]track.Track, 0, len(tracks)),
		current:   noIndex,
		nextIndex: noIndex,
		loopMode:  mode,
		status:    StatusStopped,
	}
	p.tracks = append(p.tracks, tracks...)
	return p
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	return len(p.tracks)
}

// IsEmpty returns true if the playlist has no tracks.
func (p *Playlist) IsEmpty() bool {
	return len(p.tracks) == 0
}

// Tracks returns a copy of the sequence.
func (p *Playlist) Tracks() []track.Track {
	result := make([]track.Track, len(p.tracks))
	copy(result, p.tracks)
	return result
}

// Track returns the track at index i, or nil when out of range.
func (p *Playlist) Track(i int) *track.Track {
	if i < 0 || i >= len(p.tracks) {
		return nil
	}
	return &p.tracks[i]
}

// TotalDuration returns the total duration of all tracks.
func (p *Playlist) TotalDuration() time.Duration {
	var total time.Duration
	for _, t := range p.tracks {
		total += t.Duration
	}
	return total
}

// Add appends tracks to the end of the sequence.
func (p *Playlist) Add(tracks ...track.Track) {
	p.tracks = append(p.tracks, tracks...)
}

// Remove deletes the track at index i.
// The current track cannot be removed; removing the lookahead target clears it.
func (p *Playlist) Remove(i int) error {
	if i < 0 || i >= len(p.tracks) {
		return errors.Wrapf(ErrIndexOutOfRange, "remove %d (len %d)", i, len(p.tracks))
	}
	if i == p.current {
		return ErrCurrentTrack
	}

	p.tracks = append(p.tracks[:i], p.tracks[i+1:]...)

	if p.current > i {
		p.current--
	}
	switch {
	case p.nextIndex == i:
		p.clearNext()
	case p.nextIndex > i:
		p.nextIndex--
	}
	return nil
}

// Clear removes every track and resets the cursor and lookahead.
func (p *Playlist) Clear() {
	p.tracks = p.tracks[:0]
	p.current = noIndex
	p.clearNext()
}

// Replace swaps the whole sequence. The cursor and the lookahead follow their
// files into the new sequence and are cleared when the file is gone.
func (p *Playlist) Replace(tracks []track.Track) {
	cur := p.CurrentTrack()
	var curCopy *track.Track
	if cur != nil {
		c := *cur
		curCopy = &c
	}

	p.tracks = make([]track.Track, 0, len(tracks))
	p.tracks = append(p.tracks, tracks...)

	p.current = p.indexOf(curCopy)
	if p.next != nil {
		p.nextIndex = p.indexOf(p.next)
		if p.nextIndex == noIndex {
			p.clearNext()
		}
	}
}

// SetCurrentTrack selects t. A track missing from the sequence is appended
// first; nil clears the cursor.
func (p *Playlist) SetCurrentTrack(t *track.Track) {
	if t == nil {
		p.current = noIndex
		return
	}
	if i := p.indexOf(t); i != noIndex {
		p.current = i
		return
	}
	p.tracks = append(p.tracks, *t)
	p.current = len(p.tracks) - 1
}

// SetCurrentIndex moves the cursor to index i.
func (p *Playlist) SetCurrentIndex(i int) error {
	if i < 0 || i >= len(p.tracks) {
		return errors.Wrapf(ErrIndexOutOfRange, "select %d (len %d)", i, len(p.tracks))
	}
	p.current = i
	return nil
}

// CurrentTrack returns the track under the cursor, or nil.
func (p *Playlist) CurrentTrack() *track.Track {
	if p.current == noIndex {
		return nil
	}
	return &p.tracks[p.current]
}

// CurrentIndex returns the cursor position.
func (p *Playlist) CurrentIndex() (int, bool) {
	return p.current, p.current != noIndex
}

// HandleCurrentTrack selects the first playable track when no cursor is set.
func (p *Playlist) HandleCurrentTrack() {
	if p.current != noIndex {
		return
	}
	for i := range p.tracks {
		if p.tracks[i].IsPlayable() {
			p.current = i
			return
		}
	}
}

// FetchNextTrack returns the track that follows the cursor under the current
// loop mode. The cursor is not moved.
func (p *Playlist) FetchNextTrack() *track.Track {
	i := p.fetchNextIndex()
	if i == noIndex {
		return nil
	}
	t := p.tracks[i]
	return &t
}

func (p *Playlist) fetchNextIndex() int {
	if len(p.tracks) == 0 || p.current == noIndex {
		return noIndex
	}
	switch p.loopMode {
	case LoopSingle:
		return p.current
	case LoopPlaylist:
		return (p.current + 1) % len(p.tracks)
	default:
		if p.current+1 >= len(p.tracks) {
			return noIndex
		}
		return p.current + 1
	}
}

// AdvanceCursor commits FetchNextTrack by moving the cursor onto it.
// Returns nil and leaves the cursor alone when nothing follows.
func (p *Playlist) AdvanceCursor() *track.Track {
	i := p.fetchNextIndex()
	if i == noIndex {
		return nil
	}
	p.current = i
	p.clearNext()
	return &p.tracks[i]
}

// HasNextTrack returns true if a lookahead has been resolved.
func (p *Playlist) HasNextTrack() bool {
	return p.next != nil
}

// NextTrack returns the lookahead, or nil.
func (p *Playlist) NextTrack() *track.Track {
	return p.next
}

// SetNextTrack stores the lookahead without moving the cursor. nil clears it.
func (p *Playlist) SetNextTrack(t *track.Track) {
	if t == nil {
		p.clearNext()
		return
	}
	c := *t
	p.next = &c
	p.nextDuration = 0

	if i := p.fetchNextIndex(); i != noIndex && p.tracks[i].SameFile(&c) {
		p.nextIndex = i
		return
	}
	p.nextIndex = p.indexOf(&c)
}

// SetNextTrackDuration caches the lookahead duration.
func (p *Playlist) SetNextTrackDuration(d time.Duration) {
	p.nextDuration = d
}

// NextTrackDuration returns the cached lookahead duration.
func (p *Playlist) NextTrackDuration() time.Duration {
	return p.nextDuration
}

// PromoteNextTrack moves the cursor onto the lookahead and clears it.
// A lookahead that is not part of the sequence is appended.
func (p *Playlist) PromoteNextTrack() *track.Track {
	if p.next == nil {
		return nil
	}
	if p.nextIndex == noIndex {
		p.tracks = append(p.tracks, *p.next)
		p.nextIndex = len(p.tracks) - 1
	}
	p.current = p.nextIndex
	p.clearNext()
	return &p.tracks[p.current]
}

func (p *Playlist) clearNext() {
	p.next = nil
	p.nextIndex = noIndex
	p.nextDuration = 0
}

// LoopMode returns the loop mode.
func (p *Playlist) LoopMode() LoopMode {
	return p.loopMode
}

// SetLoopMode sets the loop mode.
func (p *Playlist) SetLoopMode(m LoopMode) {
	p.loopMode = m
}

// CycleLoopMode switches to the next loop mode and returns it.
func (p *Playlist) CycleLoopMode() LoopMode {
	p.loopMode = p.loopMode.Next()
	return p.loopMode
}

// Status returns the run status.
func (p *Playlist) Status() Status {
	return p.status
}

// SetStatus sets the run status. Any transition is allowed.
func (p *Playlist) SetStatus(s Status) {
	p.status = s
}

// IsStopped returns true if the playlist is stopped.
func (p *Playlist) IsStopped() bool {
	return p.status == StatusStopped
}

// IsPaused returns true if the playlist is paused.
func (p *Playlist) IsPaused() bool {
	return p.status == StatusPaused
}

// IsRunning returns true if the playlist is running.
func (p *Playlist) IsRunning() bool {
	return p.status == StatusRunning
}

func (p *Playlist) indexOf(t *track.Track) int {
	if t == nil {
		return noIndex
	}
	for i := range p.tracks {
		if p.tracks[i].SameFile(t) {
			return i
		}
	}
	return noIndex
}
