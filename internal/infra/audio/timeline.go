package audio

import "time"

// timeline follows the position of a stream that is not decoded in-process.
// Positions are derived from the wall clock with the monotonic reading
// stripped, scaled by the playback speed.
type timeline struct {
	duration time.Duration // 0 when unknown
	offset   time.Duration // position at base
	base     time.Time
	pausedAt time.Time // zero while running
	speed    float64
}

func newTimeline(duration time.Duration, speed float64, now time.Time) timeline {
	return timeline{duration: duration, base: toWallTime(now), speed: speed}
}

func (t *timeline) paused() bool {
	return !t.pausedAt.IsZero()
}

func (t *timeline) position(now time.Time) time.Duration {
	ref := toWallTime(now)
	if t.paused() {
		ref = t.pausedAt
	}
	pos := t.offset + time.Duration(float64(ref.Sub(t.base))*t.speed)
	if pos < 0 {
		return 0
	}
	if t.duration > 0 && pos > t.duration {
		return t.duration
	}
	return pos
}

// remaining returns the time left, and false when the duration is unknown.
func (t *timeline) remaining(now time.Time) (time.Duration, bool) {
	if t.duration <= 0 {
		return 0, false
	}
	return t.duration - t.position(now), true
}

func (t *timeline) pause(now time.Time) {
	if t.paused() {
		return
	}
	t.pausedAt = toWallTime(now)
}

func (t *timeline) resume(now time.Time) {
	if !t.paused() {
		return
	}
	t.rebase(now, t.position(now))
	t.pausedAt = time.Time{}
}

func (t *timeline) seek(now time.Time, pos time.Duration) {
	t.rebase(now, pos)
}

func (t *timeline) setSpeed(now time.Time, speed float64) {
	t.rebase(now, t.position(now))
	t.speed = speed
}

func (t *timeline) rebase(now time.Time, pos time.Duration) {
	t.offset = pos
	t.base = toWallTime(now)
	if t.paused() {
		t.pausedAt = t.base
	}
}

// toWallTime returns the time with monotonic clock stripped.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
