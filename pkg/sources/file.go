package sources

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileSource reads a log file from the beginning to its current end. It does
// not follow rotation itself: when the read drains, the monitor's restart
// loop calls Stream again, which reopens by path and so naturally picks up a
// rotated replacement.
type FileSource struct {
	name string
	path string

	mu   sync.Mutex
	file *os.File
}

func NewFileSource(name, path string) *FileSource {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &FileSource{name: name, path: longPathname(path)}
}

func (s *FileSource) Name() string {
	return s.name
}

func (s *FileSource) Stream() (io.Reader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		s.file.Close()
		s.file = nil
	}

	if info, err := os.Stat(s.path); err == nil {
		if err := ensureReadable(s.path, info); err != nil {
			return nil, err
		}
	}

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.path, err)
	}
	s.file = f
	return f, nil
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
