//go:build !windows

package main

import (
	"fmt"
	"os"
	"syscall"
)

// reexec replaces the current process image with a fresh copy of the
// binary, keeping arguments and environment. The PID is preserved, so the
// control socket path stays valid across the restart.
func reexec() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	if err := syscall.Exec(self, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("re-exec %s: %w", self, err)
	}
	return nil
}
