package playlist

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Status represents the run state of a playlist.
type Status int

const (
	StatusStopped Status = iota // Nothing playing
	StatusRunning               // Current track is playing
	StatusPaused                // Current track is paused
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// LoopMode decides which track follows the current one.
type LoopMode int

const (
	LoopSingle   LoopMode = iota // Repeat the current track
	LoopQueue                    // Play to the end of the sequence and stop
	LoopPlaylist                 // Wrap around to the first track
)

// String returns the string representation of the loop mode.
func (m LoopMode) String() string {
	switch m {
	case LoopSingle:
		return "single"
	case LoopQueue:
		return "queue"
	case LoopPlaylist:
		return "playlist"
	default:
		return "unknown"
	}
}

// Next returns the loop mode that follows m when cycling.
func (m LoopMode) Next() LoopMode {
	switch m {
	case LoopSingle:
		return LoopQueue
	case LoopQueue:
		return LoopPlaylist
	default:
		return LoopSingle
	}
}

// ParseLoopMode parses a loop mode name as produced by String.
func ParseLoopMode(s string) (LoopMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "single":
		return LoopSingle, nil
	case "queue", "":
		return LoopQueue, nil
	case "playlist":
		return LoopPlaylist, nil
	default:
		return LoopQueue, errors.Newf("unknown loop mode %q", s)
	}
}
