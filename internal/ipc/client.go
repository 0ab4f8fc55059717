package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const socketPattern = "logkeeper.*.sock"

// SocketDir returns the per-user control socket directory.
func SocketDir() string {
	return filepath.Join(os.TempDir(), fmt.Sprintf("logkeeper-%d", os.Getuid()))
}

// SocketPath returns the control socket path for one daemon process.
func SocketPath(dir string, pid int) string {
	return filepath.Join(dir, fmt.Sprintf("logkeeper.%d.sock", pid))
}

func newUnixClient(socketPath string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, "unix", socketPath)
			},
		},
		Timeout: 5 * time.Second,
	}
}

// ListInstances queries every live control socket in the directory. Dead or
// unreadable sockets are skipped silently; they usually belong to crashed
// instances.
func ListInstances(socketDir string) ([]StatusResponse, error) {
	matches, err := filepath.Glob(filepath.Join(socketDir, socketPattern))
	if err != nil {
		return nil, err
	}

	var instances []StatusResponse
	for _, socketPath := range matches {
		client := newUnixClient(socketPath)
		resp, err := client.Get("http://unix/status")
		if err != nil {
			continue
		}

		if resp.StatusCode == http.StatusOK {
			var status StatusResponse
			if err := json.NewDecoder(resp.Body).Decode(&status); err == nil {
				instances = append(instances, status)
			}
		}
		resp.Body.Close()
	}

	return instances, nil
}

// RequestUpdate asks the daemon behind one socket to re-exec itself.
func RequestUpdate(socketPath string) error {
	client := newUnixClient(socketPath)
	resp, err := client.Post("http://unix/update", "application/json", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %s", resp.Status)
	}
	return nil
}
