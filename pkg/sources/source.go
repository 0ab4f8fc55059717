package sources

import "io"

// LogSource turns one configured input into an ordered stream of bytes.
type LogSource interface {
	// Name returns a stable identifier used to tag everything the
	// source produces.
	Name() string

	// Stream (re)establishes the underlying feed and returns a reader
	// over it. It may be called repeatedly; each call reopens the file,
	// respawns the child process, or rebinds the listener.
	Stream() (io.Reader, error)

	// Close releases OS resources. It is idempotent.
	Close() error
}
