//go:build !windows

package ipc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/saworbit/logkeeper/pkg/config"
)

func startServer(t *testing.T, dir string, restart func()) string {
	t.Helper()

	cfg := &config.Config{
		Sentry: config.SentryConfig{DSN: "https://secret@example.com/1"},
		Monitors: []config.MonitorConfig{
			{Type: "dmesg"},
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socketPath := SocketPath(dir, os.Getpid())
	done := make(chan error, 1)
	go func() {
		done <- Serve(ctx, socketPath, cfg, "test", restart)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve returned %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Error("Serve did not stop")
		}
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(socketPath); err == nil {
			return socketPath
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("socket never appeared")
	return ""
}

func TestStatusOverSocket(t *testing.T) {
	dir := t.TempDir()
	startServer(t, dir, nil)

	instances, err := ListInstances(dir)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 1 {
		t.Fatalf("got %d instances, want 1", len(instances))
	}

	inst := instances[0]
	if inst.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", inst.PID, os.Getpid())
	}
	if inst.Version != "test" {
		t.Errorf("Version = %q, want %q", inst.Version, "test")
	}
	if inst.Config == nil {
		t.Fatal("status carries no config")
	}
	if inst.Config.Sentry.DSN != "***" {
		t.Errorf("DSN not redacted: %q", inst.Config.Sentry.DSN)
	}
	if len(inst.Config.Monitors) != 1 {
		t.Errorf("got %d monitors, want 1", len(inst.Config.Monitors))
	}
}

func TestUpdateTriggersRestart(t *testing.T) {
	dir := t.TempDir()

	restarted := make(chan struct{})
	socketPath := startServer(t, dir, func() { close(restarted) })

	if err := RequestUpdate(socketPath); err != nil {
		t.Fatalf("RequestUpdate: %v", err)
	}

	select {
	case <-restarted:
	case <-time.After(2 * time.Second):
		t.Fatal("restart callback never fired")
	}
}

func TestListInstancesSkipsDeadSockets(t *testing.T) {
	dir := t.TempDir()

	// A stale socket file with no listener behind it.
	stale := SocketPath(dir, 99999)
	if err := os.WriteFile(stale, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	instances, err := ListInstances(dir)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(instances) != 0 {
		t.Fatalf("got %d instances, want 0", len(instances))
	}
}

func TestEnsureSecureDirectory(t *testing.T) {
	base := t.TempDir()

	dir := filepath.Join(base, "sockets")
	if err := EnsureSecureDirectory(dir); err != nil {
		t.Fatalf("EnsureSecureDirectory: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("directory mode = %o, want 700", perm)
	}

	// Idempotent on an existing conforming directory.
	if err := EnsureSecureDirectory(dir); err != nil {
		t.Errorf("second call: %v", err)
	}

	// Group-accessible directories are tightened, not rejected.
	if err := os.Chmod(dir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := EnsureSecureDirectory(dir); err != nil {
		t.Fatalf("EnsureSecureDirectory after chmod: %v", err)
	}
	info, err = os.Stat(dir)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("directory mode after tighten = %o, want 700", perm)
	}

	// A symlink in place of the directory is refused.
	link := filepath.Join(base, "link")
	if err := os.Symlink(dir, link); err != nil {
		t.Fatal(err)
	}
	if err := EnsureSecureDirectory(link); err == nil {
		t.Error("symlinked socket directory accepted")
	}
}
