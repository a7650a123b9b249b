//go:build !unix

package audio

import (
	"github.com/cockroachdb/errors"

	"github.com/osa030/ubiquity/internal/app/playback"
)

// ProcessSettings configures the external player.
type ProcessSettings struct {
	Command string   `mapstructure:"command" default:"ffplay" validate:"required"`
	Args    []string `mapstructure:"args"`
}

// Process is only available on unix systems.
type Process struct {
	playback.Backend
}

// NewProcess always fails: pausing relies on job-control signals.
func NewProcess(_ *playback.Emitter, _ Prober, _ ProcessSettings, _ Config) (*Process, error) {
	return nil, errors.New("process backend requires a unix system")
}
