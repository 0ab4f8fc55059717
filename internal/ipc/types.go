package ipc

import (
	"time"

	"github.com/saworbit/logkeeper/pkg/config"
)

// StatusResponse is what a running daemon reports about itself over the
// control socket. Config is always the redacted copy.
type StatusResponse struct {
	PID         int            `json:"pid"`
	StartTime   time.Time      `json:"start_time"`
	Version     string         `json:"version"`
	MemoryAlloc uint64         `json:"memory_alloc,omitempty"`
	Config      *config.Config `json:"config"`
}

// UpdateRequest asks a running daemon to re-exec itself.
type UpdateRequest struct {
	Action string `json:"action"` // "restart"
}
