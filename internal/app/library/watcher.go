package library

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"
	zlog "github.com/rs/zerolog/log"
)

// Watcher calls onChange once the music folders have been quiet for the
// debounce period after a change to an audio file or a folder.
type Watcher struct {
	dirs       []string
	debounce   time.Duration
	isRelevant func(path string) bool
	onChange   func(ctx context.Context)
}

// NewWatcher creates a watcher. isRelevant selects the files worth a rescan.
func NewWatcher(dirs []string, debounce time.Duration, isRelevant func(path string) bool, onChange func(ctx context.Context)) *Watcher {
	return &Watcher{
		dirs:       dirs,
		debounce:   debounce,
		isRelevant: isRelevant,
		onChange:   onChange,
	}
}

// Run watches until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer fw.Close()

	for _, dir := range w.dirs {
		if err := addRecursive(fw, dir); err != nil {
			zlog.Warn().Err(err).Msgf("library: cannot watch music folder: dir=%s", dir)
		}
	}
	zlog.Info().Msgf("library: watching %d music folder(s)", len(w.dirs))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !w.handle(fw, event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			zlog.Error().Err(err).Msg("library: file watcher error")

		case <-fire:
			fire = nil
			zlog.Info().Msg("library: music folders changed")
			w.onChange(ctx)
		}
	}
}

// handle reports whether event warrants a rescan. New folders are watched too.
func (w *Watcher) handle(fw *fsnotify.Watcher, event fsnotify.Event) bool {
	if event.Has(fsnotify.Chmod) && !event.Has(fsnotify.Write) {
		return false
	}
	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := addRecursive(fw, event.Name); err != nil {
				zlog.Warn().Err(err).Msgf("library: cannot watch folder: dir=%s", event.Name)
			}
			return true
		}
	}
	if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
		// a vanished folder has no extension to look at
		if filepath.Ext(event.Name) == "" {
			return true
		}
	}
	return w.isRelevant(event.Name)
}

func addRecursive(fw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
