package notification

import (
	"time"

	"github.com/osa030/ubiquity/internal/app/playback"
	"github.com/osa030/ubiquity/internal/domain/track"
)

// Notification is one event as delivered to subscribers.
type Notification struct {
	SequenceNo uint64
	Type       string // playback.EventType name
	Time       time.Time
	Status     string
	Index      int
	Position   time.Duration
	Total      time.Duration
	Track      *track.Track
	Error      string
}

// FromEvent converts a playback event.
func FromEvent(ev playback.Event) *Notification {
	n := &Notification{
		Type:     ev.Type.String(),
		Time:     time.Now(),
		Status:   ev.Status.String(),
		Index:    ev.Index,
		Position: ev.Position,
		Total:    ev.Total,
	}
	if ev.Track != nil {
		t := *ev.Track
		n.Track = &t
	}
	if ev.Err != nil {
		n.Error = ev.Err.Error()
	}
	return n
}

// Fields returns n as a generic map for wire encoding.
func (n *Notification) Fields() map[string]any {
	fields := map[string]any{
		"sequence_no": float64(n.SequenceNo),
		"type":        n.Type,
		"time":        n.Time.Format(time.RFC3339Nano),
		"status":      n.Status,
		"index":       n.Index,
		"position_ms": n.Position.Milliseconds(),
		"total_ms":    n.Total.Milliseconds(),
	}
	if n.Track != nil {
		fields["track"] = TrackFields(n.Track)
	}
	if n.Error != "" {
		fields["error"] = n.Error
	}
	return fields
}

// TrackFields returns t as a generic map for wire encoding.
func TrackFields(t *track.Track) map[string]any {
	return map[string]any{
		"title":       t.Title,
		"artist":      t.Artist,
		"album":       t.Album,
		"genre":       t.Genre,
		"path":        t.FilePath,
		"duration_ms": t.Duration.Milliseconds(),
		"duration":    t.DurationFormatted(),
	}
}
