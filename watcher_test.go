package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

const watcherTestConfig = `
sentry:
  dsn: https://key@example.com/1
monitors:
  - type: dmesg
`

func TestWatchConfigReloadsOnValidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logkeeper.yaml")
	if err := os.WriteFile(path, []byte(watcherTestConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	go watchConfig(ctx, path, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	// Give the watcher a moment to establish its watches.
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte(watcherTestConfig+"metrics_port: 9100\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(3 * time.Second):
		t.Fatal("reload never fired for a valid change")
	}
}

func TestWatchConfigIgnoresInvalidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "logkeeper.yaml")
	if err := os.WriteFile(path, []byte(watcherTestConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloaded := make(chan struct{}, 1)
	go watchConfig(ctx, path, func() {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("monitors:\n  - type: nosuch\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
		t.Fatal("reload fired for an invalid config")
	case <-time.After(configDebounce + 500*time.Millisecond):
	}
}
