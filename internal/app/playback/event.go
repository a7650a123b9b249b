package playback

import (
	"time"

	"github.com/osa030/ubiquity/internal/domain/playlist"
	"github.com/osa030/ubiquity/internal/domain/track"
)

// EventType represents a playback event type.
type EventType int

const (
	EventTrackChanged EventType = iota // A new track became current
	EventProgress                      // Position tick
	EventStateChanged                  // Status changed (play/pause/stop)
	EventNextEnqueued                  // Lookahead buffered in the backend
	EventQueueEnded                    // Sequence exhausted
	EventPlaylistChanged               // Tracks added, removed or replaced
	EventError                         // Failure that needs user awareness
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventTrackChanged:
		return "track_changed"
	case EventProgress:
		return "progress"
	case EventStateChanged:
		return "state_changed"
	case EventNextEnqueued:
		return "next_enqueued"
	case EventQueueEnded:
		return "queue_ended"
	case EventPlaylistChanged:
		return "playlist_changed"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	Track    *track.Track    // Current track (nil for some events)
	Index    int             // Cursor position, -1 when unset
	Status   playlist.Status // Status after the event
	Position time.Duration
	Total    time.Duration
	Err      error // EventError only
}
