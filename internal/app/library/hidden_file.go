package library

import (
	"context"
	"path/filepath"
	"slices"
	"strings"

	"github.com/osa030/ubiquity/internal/domain/track"
)

// HiddenFileConfig represents the configuration for HiddenFileFilter.
type HiddenFileConfig struct {
	IgnoreDirs []string `mapstructure:"ignore_dirs" default:"[\"@eaDir\",\"$RECYCLE.BIN\"]"`
}

// HiddenFileFilter skips dot files, files in dot folders and files in
// folders named in ignore_dirs.
type HiddenFileFilter struct {
	ignoreDirs []string
}

// NewHiddenFileFilter creates a new hidden file filter.
func NewHiddenFileFilter() *HiddenFileFilter {
	return &HiddenFileFilter{}
}

func (f *HiddenFileFilter) Name() string {
	return "hidden_file_filter"
}

func (f *HiddenFileFilter) Description() string {
	return "Skips hidden files and folders"
}

func (f *HiddenFileFilter) ReturnCodes() []string {
	return []string{"hidden_file"}
}

func (f *HiddenFileFilter) ValidateConfig(settings map[string]any) error {
	var config HiddenFileConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.ignoreDirs = config.IgnoreDirs
	return nil
}

func (f *HiddenFileFilter) Check(_ context.Context, t track.Track, _ []track.Track) Result {
	dir := filepath.Base(t.Directory)
	if strings.HasPrefix(filepath.Base(t.FilePath), ".") || strings.HasPrefix(dir, ".") {
		return Reject("hidden_file")
	}
	if slices.Contains(f.ignoreDirs, dir) {
		return Reject("hidden_file")
	}
	return Accept()
}

func init() {
	Register("hidden_file_filter", func() Filter {
		return NewHiddenFileFilter()
	})
}
