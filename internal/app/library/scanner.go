package library

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/ubiquity/internal/domain/track"
)

// MetadataReader builds a track from an audio file.
type MetadataReader interface {
	IsSupported(path string) bool
	Read(path string) (track.Track, error)
}

// Rejection records a file the filter chain skipped.
type Rejection struct {
	Path string
	Code string
}

// ScanResult is the outcome of one scan.
type ScanResult struct {
	Tracks   []track.Track
	Rejected []Rejection
	Failed   int // supported files that could not be read
}

// Scanner walks the music folders.
type Scanner struct {
	dirs   []string
	reader MetadataReader
	chain  *Chain
}

// NewScanner creates a scanner. A nil chain accepts every track.
func NewScanner(dirs []string, reader MetadataReader, chain *Chain) *Scanner {
	if chain == nil {
		chain = NewChain()
	}
	return &Scanner{dirs: dirs, reader: reader, chain: chain}
}

// Dirs returns the music folders.
func (s *Scanner) Dirs() []string {
	return s.dirs
}

// Covers reports whether path lies below one of the music folders.
func (s *Scanner) Covers(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	for _, dir := range s.dirs {
		root, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		rel, err := filepath.Rel(root, abs)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Scan reads every supported file below the music folders, folders in
// configured order and files in lexical order. A folder that cannot be read
// is skipped; the scan fails only when none can be.
func (s *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	result := &ScanResult{}
	readable := 0
	for _, dir := range s.dirs {
		if err := s.walk(ctx, dir, result); err != nil {
			if ctx.Err() != nil {
				return nil, errors.Wrap(ctx.Err(), "scan cancelled")
			}
			zlog.Warn().Err(err).Msgf("library: skipping music folder: dir=%s", dir)
			continue
		}
		readable++
	}
	if readable == 0 && len(s.dirs) > 0 {
		return nil, errors.Newf("no readable music folder in %v", s.dirs)
	}

	zlog.Info().Msgf("library: scan finished: tracks=%d rejected=%d failed=%d",
		len(result.Tracks), len(result.Rejected), result.Failed)
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, dir string, result *ScanResult) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return errors.Wrapf(err, "failed to resolve %s", dir)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			zlog.Debug().Err(err).Msgf("library: unreadable entry: path=%s", path)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !s.reader.IsSupported(path) {
			return nil
		}

		t, err := s.reader.Read(path)
		if err != nil {
			zlog.Warn().Err(err).Msgf("library: failed to read track: path=%s", path)
			result.Failed++
			return nil
		}
		if res := s.chain.Execute(ctx, t, result.Tracks); !res.Accepted {
			zlog.Debug().Msgf("library: track skipped: path=%s code=%s", path, res.Code)
			result.Rejected = append(result.Rejected, Rejection{Path: path, Code: res.Code})
			return nil
		}
		result.Tracks = append(result.Tracks, t)
		return nil
	})
}
