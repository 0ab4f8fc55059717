package main

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/saworbit/logkeeper/pkg/config"
)

// configDebounce collapses editor write bursts into one reload.
const configDebounce = 500 * time.Millisecond

// watchConfig watches the config file and calls reload once a changed file
// parses and validates. The parent directory is watched too: editors that
// rename-replace the file would otherwise drop the watch.
func watchConfig(ctx context.Context, path string, reload func()) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("[watch] disabled: %v", err)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		log.Printf("[watch] disabled: %v", err)
		return
	}
	// Watching the file itself catches in-place writes before the
	// directory event arrives.
	_ = watcher.Add(path)

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			evtAbs, err := filepath.Abs(evt.Name)
			if err != nil || evtAbs != abs {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if evt.Op&(fsnotify.Rename|fsnotify.Remove) != 0 {
				// Re-arm for the replacement file.
				_ = watcher.Add(path)
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(configDebounce, func() {
				cfg, err := config.Load(path)
				if err == nil {
					err = cfg.Validate()
				}
				if err != nil {
					log.Printf("[watch] ignoring invalid config: %v", err)
					return
				}
				log.Printf("[watch] config changed, reloading")
				reload()
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[watch] error: %v", err)
		}
	}
}
