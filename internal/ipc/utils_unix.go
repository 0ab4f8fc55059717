//go:build !windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"syscall"
)

// EnsureSecureDirectory creates the socket directory with mode 0700 and
// refuses to use a directory that another user could tamper with.
func EnsureSecureDirectory(dir string) error {
	if err := os.Mkdir(dir, 0o700); err != nil && !os.IsExist(err) {
		return fmt.Errorf("create socket directory: %w", err)
	}

	info, err := os.Lstat(dir)
	if err != nil {
		return fmt.Errorf("stat socket directory: %w", err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return fmt.Errorf("socket directory %s is a symlink", dir)
	}
	if !info.IsDir() {
		return fmt.Errorf("socket path %s is not a directory", dir)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("cannot inspect ownership of %s", dir)
	}
	if int(stat.Uid) != os.Getuid() {
		return fmt.Errorf("socket directory %s is owned by uid %d", dir, stat.Uid)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		if err := os.Chmod(dir, 0o700); err != nil {
			return fmt.Errorf("tighten socket directory permissions: %w", err)
		}
	}
	return nil
}

// listenSecure binds a unix socket that only the current user can reach.
func listenSecure(socketPath string) (net.Listener, error) {
	old := syscall.Umask(0o077)
	defer syscall.Umask(old)

	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}
	if err := os.Chmod(socketPath, 0o600); err != nil {
		ln.Close()
		return nil, fmt.Errorf("restrict socket permissions: %w", err)
	}
	return ln, nil
}
