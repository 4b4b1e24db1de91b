package devserver

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch monitors the rules file and calls reload on every change until ctx
// is cancelled. The parent directory is watched rather than the file itself,
// because editors typically replace the file on save.
func Watch(ctx context.Context, log zerolog.Logger, path string, reload func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := reload(); err != nil {
				// Bad intermediate saves are expected; keep the last good
				// snapshot and wait for the next change.
				log.Warn().Err(err).Str("path", path).Msg("rules reload failed")
				continue
			}
			log.Info().Str("path", path).Msg("rules reloaded")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("rules watcher error")
		}
	}
}
