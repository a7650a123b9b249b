package playback

import (
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

var _ Player = (*Engine)(nil)

// Play starts playback. A paused engine resumes; a running one is left alone.
func (e *Engine) Play() error {
	return e.do(func() error {
		switch {
		case e.playlist.IsPaused():
			e.resume()
		case e.playlist.IsRunning() && e.active != 0:
			// already playing
		default:
			e.startPlay()
		}
		return nil
	})
}

// Select plays the track at index.
func (e *Engine) Select(index int) error {
	return e.do(func() error {
		if err := e.playlist.SetCurrentIndex(index); err != nil {
			return err
		}
		e.playCurrent()
		return nil
	})
}

// AddAndPlay plays t, appending it to the playlist when it is not there yet.
func (e *Engine) AddAndPlay(t track.Track) error {
	return e.do(func() error {
		e.playlist.SetCurrentTrack(&t)
		e.playCurrent()
		return nil
	})
}

// Skip ends the current track early.
func (e *Engine) Skip() error {
	return e.do(func() error {
		e.skip()
		return nil
	})
}

// Stop stops playback and clears the current and next track.
func (e *Engine) Stop() error {
	return e.do(func() error {
		e.stop()
		return nil
	})
}

// Pause pauses playback. Pausing twice is a no-op.
func (e *Engine) Pause() error {
	return e.do(func() error {
		e.pause()
		return nil
	})
}

// Resume resumes paused playback. Resuming twice is a no-op.
func (e *Engine) Resume() error {
	return e.do(func() error {
		e.resume()
		return nil
	})
}

// TogglePause pauses a running engine and resumes a paused one.
func (e *Engine) TogglePause() error {
	return e.do(func() error {
		if e.playlist.IsPaused() {
			e.resume()
		} else {
			e.pause()
		}
		return nil
	})
}

// IsPaused reports whether playback is paused.
func (e *Engine) IsPaused() (bool, error) {
	var paused bool
	err := e.do(func() error {
		paused = e.playlist.IsPaused()
		return nil
	})
	return paused, err
}

// Seek moves the position by secs, negative values rewind.
func (e *Engine) Seek(secs int64) error {
	return e.do(func() error {
		if e.active == 0 {
			return ErrNoActiveStream
		}
		return e.backend.Seek(secs)
	})
}

// SeekTo jumps to an absolute position in the current track.
func (e *Engine) SeekTo(pos time.Duration) error {
	return e.do(func() error {
		if e.active == 0 {
			return ErrNoActiveStream
		}
		if err := e.backend.SeekTo(pos); err != nil {
			return err
		}
		e.position = pos
		return nil
	})
}

// Volume returns the backend volume.
func (e *Engine) Volume() (int, error) {
	var v int
	err := e.do(func() error {
		v = e.backend.Volume()
		return nil
	})
	return v, err
}

// SetVolume sets the backend volume.
func (e *Engine) SetVolume(volume int) error {
	return e.do(func() error {
		e.backend.SetVolume(volume)
		return nil
	})
}

// VolumeUp raises the volume by the configured step.
func (e *Engine) VolumeUp() error {
	return e.do(func() error {
		e.backend.SetVolume(e.backend.Volume() + e.config.VolumeStep)
		return nil
	})
}

// VolumeDown lowers the volume by the configured step.
func (e *Engine) VolumeDown() error {
	return e.do(func() error {
		e.backend.SetVolume(e.backend.Volume() - e.config.VolumeStep)
		return nil
	})
}

// Speed returns the backend speed in tenths.
func (e *Engine) Speed() (int, error) {
	var s int
	err := e.do(func() error {
		s = e.backend.Speed()
		return nil
	})
	return s, err
}

// SetSpeed sets the backend speed in tenths.
func (e *Engine) SetSpeed(speed int) error {
	return e.do(func() error {
		e.backend.SetSpeed(speed)
		return nil
	})
}

// SpeedUp raises the speed by the configured step.
func (e *Engine) SpeedUp() error {
	return e.do(func() error {
		e.backend.SetSpeed(e.backend.Speed() + e.config.SpeedStep)
		return nil
	})
}

// SpeedDown lowers the speed by the configured step.
func (e *Engine) SpeedDown() error {
	return e.do(func() error {
		e.backend.SetSpeed(e.backend.Speed() - e.config.SpeedStep)
		return nil
	})
}

// SetLoopMode changes the loop mode. A lookahead that the new mode would not
// pick is dropped.
func (e *Engine) SetLoopMode(mode playlist.LoopMode) error {
	return e.do(func() error {
		e.setLoopMode(mode)
		return nil
	})
}

// CycleLoopMode switches to the next loop mode and returns it.
func (e *Engine) CycleLoopMode() (playlist.LoopMode, error) {
	var mode playlist.LoopMode
	err := e.do(func() error {
		mode = e.playlist.LoopMode().Next()
		e.setLoopMode(mode)
		return nil
	})
	return mode, err
}

func (e *Engine) setLoopMode(mode playlist.LoopMode) {
	e.playlist.SetLoopMode(mode)
	if next := e.playlist.NextTrack(); next != nil && !next.SameFile(e.playlist.FetchNextTrack()) {
		e.playlist.SetNextTrack(nil)
		e.dropStaleLookahead()
	}
	zlog.Info().Msgf("playback: loop mode set to %s", mode)
}

// ToggleGapless flips gapless preloading and returns the new setting.
func (e *Engine) ToggleGapless() (bool, error) {
	var gapless bool
	err := e.do(func() error {
		e.config.Gapless = !e.config.Gapless
		gapless = e.config.Gapless
		return nil
	})
	return gapless, err
}

// Add appends tracks to the playlist.
func (e *Engine) Add(tracks ...track.Track) error {
	return e.do(func() error {
		e.playlist.Add(tracks...)
		e.publish(EventPlaylistChanged)
		return nil
	})
}

// Remove deletes the track at index. The current track cannot be removed.
func (e *Engine) Remove(index int) error {
	return e.do(func() error {
		if err := e.playlist.Remove(index); err != nil {
			return err
		}
		e.dropStaleLookahead()
		e.publish(EventPlaylistChanged)
		return nil
	})
}

// Clear stops playback and empties the playlist.
func (e *Engine) Clear() error {
	return e.do(func() error {
		e.stop()
		e.playlist.Clear()
		e.publish(EventPlaylistChanged)
		return nil
	})
}

// Reload replaces the playlist contents. Playback continues when the current
// track is still part of tracks and stops otherwise.
func (e *Engine) Reload(tracks []track.Track) error {
	return e.do(func() error {
		e.reload(tracks)
		return nil
	})
}

// Update reloads the playlist with the result of fn applied to its current
// contents, without other commands running in between.
func (e *Engine) Update(fn func(live []track.Track) []track.Track) error {
	return e.do(func() error {
		e.reload(fn(e.playlist.Tracks()))
		return nil
	})
}

func (e *Engine) reload(tracks []track.Track) {
	if cur := e.playlist.CurrentTrack(); cur != nil && !containsFile(tracks, cur) {
		zlog.Info().Msgf("playback: current track removed by reload: track=%s", cur.Name())
		e.stop()
	}
	e.playlist.Replace(tracks)
	e.dropStaleLookahead()
	e.publish(EventPlaylistChanged)
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() (Snapshot, error) {
	var s Snapshot
	err := e.do(func() error {
		s = e.snapshot()
		return nil
	})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "failed to take snapshot")
	}
	return s, nil
}

func containsFile(tracks []track.Track, t *track.Track) bool {
	for i := range tracks {
		if tracks[i].SameFile(t) {
			return true
		}
	}
	return false
}
