//go:build windows

package ipc

import (
	"fmt"
	"net"
	"os"
)

// EnsureSecureDirectory creates the socket directory. Windows has no POSIX
// permission bits to enforce here.
func EnsureSecureDirectory(dir string) error {
	if err := os.Mkdir(dir, 0o700); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create socket directory: %w", err)
	}
	return nil
}

func listenSecure(socketPath string) (net.Listener, error) {
	return net.Listen("unix", socketPath)
}
