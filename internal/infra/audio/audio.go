// Package audio provides the playback backends: beep renders through the
// sound card, process hands each track to an external player and clock only
// simulates playback against the wall clock.
package audio

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// Backend type names accepted by New.
const (
	TypeBeep    = "beep"
	TypeProcess = "process"
	TypeClock   = "clock"
)

const (
	minVolume = 0
	maxVolume = 100
	minSpeed  = 1
	maxSpeed  = 30
)

// Prober reports the duration of an audio file.
type Prober interface {
	Duration(path string) (time.Duration, error)
}

// Config selects and tunes a backend.
type Config struct {
	Type             string
	AboutToFinish    time.Duration  // Lead time for MsgAboutToFinish
	ProgressInterval time.Duration  // Period of MsgProgress
	Settings         map[string]any // Backend specific, see BeepSettings and ProcessSettings
}

// Types returns the backend type names.
func Types() []string {
	return []string{TypeBeep, TypeProcess, TypeClock}
}

// New returns a factory building the backend named by cfg.Type.
func New(cfg Config, prober Prober) playback.BackendFactory {
	return func(emitter *playback.Emitter) (playback.Backend, error) {
		zlog.Debug().Msgf("audio: creating backend: type=%s", cfg.Type)
		switch cfg.Type {
		case TypeBeep:
			var s BeepSettings
			if err := decodeSettings(cfg.Settings, &s); err != nil {
				return nil, errors.Wrap(err, "invalid beep settings")
			}
			b, err := NewBeep(emitter, s, cfg)
			if err != nil {
				return nil, err
			}
			return b, nil
		case TypeProcess:
			var s ProcessSettings
			if err := decodeSettings(cfg.Settings, &s); err != nil {
				return nil, errors.Wrap(err, "invalid process settings")
			}
			p, err := NewProcess(emitter, prober, s, cfg)
			if err != nil {
				return nil, err
			}
			return p, nil
		case TypeClock:
			return NewClock(emitter, prober, cfg), nil
		default:
			return nil, errors.Newf("unknown audio backend %q", cfg.Type)
		}
	}
}

// decodeSettings fills out from a settings map, applies defaults and validates.
func decodeSettings(settings map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

func clampVolume(v int) int {
	return min(max(v, minVolume), maxVolume)
}

func clampSpeed(s int) int {
	return min(max(s, minSpeed), maxSpeed)
}

func speedRatio(speed int) float64 {
	return float64(speed) / 10
}

func withDefaults(cfg Config) Config {
	if cfg.AboutToFinish <= 0 {
		cfg.AboutToFinish = 2 * time.Second
	}
	if cfg.ProgressInterval <= 0 {
		cfg.ProgressInterval = time.Second
	}
	return cfg
}
