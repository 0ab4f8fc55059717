package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "logkeeper"

var (
	// Registry is a dedicated Prometheus registry for all logkeeper metrics.
	Registry = prometheus.NewRegistry()

	// LinesProcessed counts every line pulled from a source.
	LinesProcessed = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "processed_lines_total",
			Help:      "Total number of log lines read from each source",
		},
		[]string{"source"},
	)

	// IssuesDetected counts lines the detector accepted (after exclusion).
	IssuesDetected = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_detected_total",
			Help:      "Total number of issue lines accepted into the buffer",
		},
		[]string{"source"},
	)

	// SinkEvents counts flush attempts by outcome.
	SinkEvents = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_events_total",
			Help:      "Total number of flushed events by delivery status",
		},
		[]string{"source", "status"}, // delivered | rate_limited
	)

	// LastActivity tracks when each source last produced an accepted line.
	LastActivity = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_activity_timestamp_seconds",
			Help:      "Unix timestamp of the last accepted line per source",
		},
		[]string{"source"},
	)

	// AgentInfo exposes static information about the running daemon.
	AgentInfo = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_info",
			Help:      "Static information about the agent",
		},
		[]string{"os", "arch", "version"},
	)

	// Up is a liveness gauge for the daemon.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the daemon is running",
		},
	)
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// ObserveLine records one line read from the named source.
func ObserveLine(source string) {
	LinesProcessed.WithLabelValues(source).Inc()
}

// ObserveIssue records one accepted issue line and bumps last activity.
func ObserveIssue(source string) {
	IssuesDetected.WithLabelValues(source).Inc()
	LastActivity.WithLabelValues(source).SetToCurrentTime()
}

// ObserveEvent records one flush attempt with its delivery status.
func ObserveEvent(source, status string) {
	SinkEvents.WithLabelValues(source, status).Inc()
}

// SetAgentInfo publishes a single info metric for the running daemon.
func SetAgentInfo(osName, arch, version string) {
	if osName == "" {
		osName = runtime.GOOS
	}
	if arch == "" {
		arch = runtime.GOARCH
	}
	if version == "" {
		version = "dev"
	}
	AgentInfo.WithLabelValues(osName, arch, version).Set(1)
}

// Serve starts the /metrics HTTP endpoint on the provided address and shuts
// it down when the context is cancelled.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}
	return err
}
