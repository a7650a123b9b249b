package playback

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/ubiquity/internal/domain/track"
)

// Errors
var (
	ErrSeekOutOfRange      = errors.New("seek target beyond end of stream")
	ErrNoActiveStream      = errors.New("no active stream")
	ErrUnplayableTrack     = errors.New("track is not playable")
	ErrUnsupportedFormat   = errors.New("unsupported audio format")
	ErrBackendDisconnected = errors.New("audio backend disconnected")
	ErrEngineClosed        = errors.New("playback engine closed")
)

// Backend renders audio for the engine. Only the engine calls these methods,
// always from its control goroutine.
//
// A backend reports what happens to its streams through the Emitter it was
// built with. Every message carries the StreamID the engine assigned to the
// stream. Contract:
//   - AddAndPlay discards the current and the queued stream without emitting
//     MsgEOS for them, then starts path unpaused.
//   - EnqueueNext buffers path behind the current stream. When the current
//     stream ends the backend emits MsgEOS for it and continues with the
//     buffered stream without a gap. The returned duration is zero when unknown.
//   - SkipOne ends the current stream early, drops the buffered one and emits
//     MsgEOS for the skipped stream.
//   - Stop releases both streams and emits nothing.
//   - MsgAboutToFinish is emitted at most once per stream, before its MsgEOS.
type Backend interface {
	Name() string
	AddAndPlay(path string, stream StreamID) error
	EnqueueNext(path string, stream StreamID) (time.Duration, error)
	SkipOne()
	Pause()
	Resume()
	Stop()
	Seek(secs int64) error
	SeekTo(pos time.Duration) error
	Volume() int
	SetVolume(volume int)
	Speed() int
	SetSpeed(speed int)
	Close() error
}

// BackendFactory builds a backend that reports through emitter.
type BackendFactory func(emitter *Emitter) (Backend, error)

// Player is the transport surface handed to user-facing layers.
type Player interface {
	AddAndPlay(t track.Track) error
	Volume() (int, error)
	VolumeUp() error
	VolumeDown() error
	SetVolume(volume int) error
	Pause() error
	Resume() error
	IsPaused() (bool, error)
	Seek(secs int64) error
	SeekTo(pos time.Duration) error
	SetSpeed(speed int) error
	SpeedUp() error
	SpeedDown() error
	Speed() (int, error)
	Stop() error
}
