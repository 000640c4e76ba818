package config

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces editor write bursts into one reload
const reloadDebounce = 200 * time.Millisecond

// Watch reloads the config whenever siren.yaml in home changes and passes
// every successfully validated config to onChange. Invalid edits are logged
// and skipped. The directory is watched so atomic-rename saves are seen.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, home string, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(home); err != nil {
		return err
	}

	target := filepath.Clean(Path(home))
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				pending = time.After(reloadDebounce)
			}

		case <-pending:
			pending = nil
			cfg, err := LoadConfig(home)
			if err != nil {
				log.Printf("WARN: config reload rejected: %v", err)
				continue
			}
			onChange(cfg)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watcher errors are non-fatal; continue watching.
			log.Printf("WARN: config watcher: %v", err)
		}
	}
}
