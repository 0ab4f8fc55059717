//go:build windows

package main

import (
	"fmt"
	"os"
	"os/exec"
)

// reexec spawns a replacement process and exits. Windows has no exec, so
// the PID changes and the new instance binds a new control socket.
func reexec() error {
	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}

	cmd := exec.Command(self, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("respawn %s: %w", self, err)
	}
	os.Exit(0)
	return nil
}
