package sources

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"sync"
)

// CommandSource streams the stdout of a spawned child process. Every call to
// Stream spawns a fresh child, which is what the monitor's restart loop
// relies on after the previous child's stdout closed.
type CommandSource struct {
	name    string
	command string
	args    []string

	mu  sync.Mutex
	cmd *exec.Cmd
}

func NewCommandSource(name, command string, args ...string) *CommandSource {
	return &CommandSource{name: name, command: command, args: args}
}

func (s *CommandSource) Name() string {
	return s.name
}

func (s *CommandSource) Stream() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.Command(s.command, s.args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe for %s: %w", s.command, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", s.command, err)
	}
	s.cmd = cmd

	// Reap the child when it exits so it never lingers as a zombie. A
	// nonzero exit also explains why the monitor is about to restart.
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Printf("[source] %s: %s exited: %v", s.name, s.command, err)
		}
	}()

	return stdout, nil
}

// Close kills the current child if one is running. The kill signal is
// delivered asynchronously; the reap goroutine collects the exit status.
func (s *CommandSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	err := s.cmd.Process.Kill()
	s.cmd = nil
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
