package pricing

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// Watch reloads the table whenever the pricing file changes on disk.
// The parent directory is watched so editors that replace the file atomically
// (write to temp, rename) are still observed. Events are debounced because a
// single save typically produces several notifications.
func (t *Table) Watch(ctx context.Context, path string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()

		const debounce = 200 * time.Millisecond
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, func() {
					if err := t.LoadFile(path); err != nil {
						log.Warn().Err(err).Str("path", path).Msg("Pricing reload failed, keeping previous rates")
					}
				})
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				log.Warn().Err(err).Msg("Pricing watcher error")
			}
		}
	}()

	log.Info().Str("path", path).Msg("Pricing file watcher started")
	return nil
}
