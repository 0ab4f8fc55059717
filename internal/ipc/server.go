package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/saworbit/logkeeper/pkg/config"
)

// Serve answers status and update requests on a per-process unix socket
// until the context is cancelled. The restart callback is invoked after the
// update response has been flushed to the client.
func Serve(ctx context.Context, socketPath string, cfg *config.Config, version string, restart func()) error {
	// A stale socket from a crashed instance would block the bind.
	os.Remove(socketPath)

	ln, err := listenSecure(socketPath)
	if err != nil {
		return err
	}
	defer os.Remove(socketPath)

	started := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var ms runtime.MemStats
		runtime.ReadMemStats(&ms)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusResponse{
			PID:         os.Getpid(),
			StartTime:   started,
			Version:     version,
			MemoryAlloc: ms.Alloc,
			Config:      cfg.Redacted(),
		})
	})
	mux.HandleFunc("/update", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("restarting\n"))

		go func() {
			// Let the response reach the client before re-exec
			// tears the socket down.
			time.Sleep(100 * time.Millisecond)
			if restart != nil {
				restart()
			}
		}()
	})

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	log.Printf("[ipc] control socket listening on %s", socketPath)
	err = srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}
	return err
}
