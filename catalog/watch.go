package catalog

import (
	"context"
	"errors"
	"io/fs"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch marks idx stale whenever something under dirs is created, removed or
// renamed. It returns when ctx is cancelled. Directories that do not exist
// are ignored.
func Watch(ctx context.Context, idx *Index, dirs []string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	defer watcher.Close()

	watched := 0

	for _, dir := range dirs {
		if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := watcher.Add(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("cannot watch directory")

			continue
		}

		watched++
	}

	log.Debug().Str("index", idx.Name()).Int("dirs", watched).Msg("watching index directories")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				log.Debug().Str("index", idx.Name()).Str("path", event.Name).Msg("index marked stale")
				idx.MarkStale()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			log.Warn().Err(err).Str("index", idx.Name()).Msg("index watcher error")
		}
	}
}
