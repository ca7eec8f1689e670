package daemon

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"tattle/internal/logging"
)

// watchStore nudges the tail loop whenever the store's database files
// change, so deliveries show up without waiting out a poll interval.
// SQLite writes land in the main file or its -wal sidecar depending on
// journal mode, so the whole store directory is watched and events are
// filtered by base name.
func (d *Daemon) watchStore(ctx context.Context) error {
	dir := filepath.Dir(d.cfg.Store.Path)
	base := filepath.Base(d.cfg.Store.Path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasPrefix(filepath.Base(event.Name), base) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				select {
				case d.wake <- struct{}{}:
				default:
					// A nudge is already pending.
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				d.logger.Warn("store watch error", logging.Error(err))
			}
		}
	}()
	return nil
}
