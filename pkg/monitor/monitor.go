package monitor

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/saworbit/logkeeper/internal/metrics"
	"github.com/saworbit/logkeeper/pkg/detectors"
	"github.com/saworbit/logkeeper/pkg/sources"
	"github.com/saworbit/logkeeper/pkg/sysstat"
)

const (
	// MaxBufferSize caps the number of buffered lines per monitor; hitting
	// it forces an immediate flush.
	MaxBufferSize = 1000

	// MaxScanTokenSize lets the scanner survive very long log lines (1 MiB).
	MaxScanTokenSize = 1024 * 1024

	// FlushInterval is the idle-flush cadence: buffered lines are flushed
	// once no new line has been accepted for this long.
	FlushInterval = 5 * time.Second

	// flushSlack absorbs ticker jitter in the idle check.
	flushSlack = 100 * time.Millisecond

	// restartBackoff bounds how tightly a failed or drained source is
	// reopened. There is no retry cap: sources are expected to recover.
	restartBackoff = 1 * time.Second
)

// stampPattern extracts the leading bracketed numeric timestamp of a kernel
// style message, attached to events as the log_timestamp tag.
var stampPattern = regexp.MustCompile(`^\[\s*([0-9.]+)\]`)

// Options configures one Monitor.
type Options struct {
	Source   sources.LogSource
	Detector detectors.Detector

	// ExcludePattern drops otherwise-matched lines; empty means no
	// exclusion.
	ExcludePattern string

	Reporter  Reporter
	Collector *sysstat.Collector

	RateLimitBurst  int
	RateLimitWindow time.Duration

	Verbose bool

	// StopOnExhaustion makes the monitor stop permanently once the stream
	// drains, for one-shot or finite inputs, instead of reconnecting.
	StopOnExhaustion bool
}

// Monitor owns one source, one detector, and one rate limiter, and runs the
// read-detect-buffer-flush-restart loop around them. Within one monitor
// lines are handled strictly in source order; monitors never share state.
type Monitor struct {
	source           sources.LogSource
	detector         detectors.Detector
	exclude          detectors.Detector
	reporter         Reporter
	collector        *sysstat.Collector
	limiter          *RateLimiter
	verbose          bool
	stopOnExhaustion bool
	flushInterval    time.Duration

	mu           sync.Mutex
	buffer       []string
	lastActivity time.Time
}

func New(opts Options) (*Monitor, error) {
	if opts.Source == nil {
		return nil, fmt.Errorf("monitor needs a source")
	}
	if opts.Detector == nil {
		return nil, fmt.Errorf("monitor needs a detector")
	}
	if opts.Reporter == nil {
		return nil, fmt.Errorf("monitor needs a reporter")
	}

	m := &Monitor{
		source:           opts.Source,
		detector:         opts.Detector,
		reporter:         opts.Reporter,
		collector:        opts.Collector,
		limiter:          NewRateLimiter(opts.RateLimitBurst, opts.RateLimitWindow),
		verbose:          opts.Verbose,
		stopOnExhaustion: opts.StopOnExhaustion,
		flushInterval:    FlushInterval,
	}

	if opts.ExcludePattern != "" {
		ed, err := detectors.NewGenericDetector(opts.ExcludePattern)
		if err != nil {
			return nil, fmt.Errorf("compile exclude pattern: %w", err)
		}
		m.exclude = ed
	}

	return m, nil
}

// Run drives the monitor until the context is cancelled or, with
// StopOnExhaustion set, until the stream drains. Source-open failures are
// retried forever with a fixed backoff; they must never take down the rest
// of the process.
func (m *Monitor) Run(ctx context.Context) {
	name := m.source.Name()
	if m.verbose {
		log.Printf("[monitor] %s: starting", name)
	}

	// The flush loop lives exactly as long as this monitor: a drained
	// stop-on-exhaustion monitor must not leave its ticker running.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.flushLoop(ctx)

	for {
		reader, err := m.source.Stream()
		if err != nil {
			log.Printf("[monitor] %s: open source: %v", name, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(restartBackoff):
			}
			continue
		}

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 0, MaxScanTokenSize), MaxScanTokenSize)

		for scanner.Scan() {
			m.handleLine(name, scanner.Bytes())
		}

		// The stream is over, cleanly or not; ship whatever is pending
		// before deciding what to do next.
		m.Flush()

		if err := scanner.Err(); err != nil {
			log.Printf("[monitor] %s: read: %v", name, err)
		}

		if m.stopOnExhaustion {
			if m.verbose {
				log.Printf("[monitor] %s: stream exhausted, stopping", name)
			}
			return
		}

		if m.verbose {
			log.Printf("[monitor] %s: stream ended, reconnecting in %s", name, restartBackoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}

func (m *Monitor) handleLine(name string, line []byte) {
	metrics.ObserveLine(name)

	if !m.detector.Detect(line) {
		return
	}
	if m.exclude != nil && m.exclude.Detect(line) {
		if m.verbose {
			log.Printf("[monitor] %s: excluded: %s", name, line)
		}
		return
	}

	metrics.ObserveIssue(name)
	if m.verbose {
		log.Printf("[monitor] %s: matched: %s", name, line)
	}

	var full string
	m.mu.Lock()
	m.lastActivity = time.Now()
	m.buffer = append(m.buffer, string(line))
	if len(m.buffer) >= MaxBufferSize {
		full = strings.Join(m.buffer, "\n")
		m.buffer = nil
	}
	m.mu.Unlock()

	if full != "" {
		m.deliver(full)
	}
}

// flushLoop wakes on a fixed interval and flushes the buffer only when the
// source has gone quiet, so low-volume matches see bounded latency without
// flushing on every tick while data is actively arriving.
func (m *Monitor) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(m.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if len(m.buffer) == 0 || time.Since(m.lastActivity) < m.flushInterval-flushSlack {
			m.mu.Unlock()
			continue
		}
		msg := strings.Join(m.buffer, "\n")
		m.buffer = nil
		m.mu.Unlock()

		m.deliver(msg)
	}
}

// Flush delivers any pending buffer immediately.
func (m *Monitor) Flush() {
	m.mu.Lock()
	if len(m.buffer) == 0 {
		m.mu.Unlock()
		return
	}
	msg := strings.Join(m.buffer, "\n")
	m.buffer = nil
	m.mu.Unlock()

	m.deliver(msg)
}

// deliver pushes one joined message through the rate limiter to the sink.
// A denied attempt drops the message without retry: not flooding the sink
// wins over not losing events.
func (m *Monitor) deliver(message string) {
	name := m.source.Name()

	if !m.limiter.Allow() {
		if m.verbose {
			log.Printf("[monitor] %s: rate limited, dropping event", name)
		}
		metrics.ObserveEvent(name, "rate_limited")
		return
	}

	tags := map[string]string{"source": name}
	if match := stampPattern.FindStringSubmatch(message); len(match) > 1 {
		tags["log_timestamp"] = match[1]
	}

	extras := map[string]interface{}{"raw_line": message}
	if m.collector != nil {
		if state := m.collector.Snapshot(); state != nil {
			extras[ServerStateExtra] = state.ToMap()
		}
	}

	m.reporter.Report(message, tags, extras)
	metrics.ObserveEvent(name, "delivered")
}

// Close releases the source's OS resources.
func (m *Monitor) Close() error {
	return m.source.Close()
}
