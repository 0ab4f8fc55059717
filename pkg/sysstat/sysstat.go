package sysstat

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/procfs"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
)

const (
	collectInterval = 1 * time.Minute
	// When the 1-minute load average exceeds the CPU count the box is
	// already struggling; back off rather than add sampling pressure.
	collectBackoff = 10 * time.Minute

	topProcesses = 5
)

// ProcessSample is one row of the top-CPU / top-memory tables attached to
// sink events.
type ProcessSample struct {
	PID     string `json:"pid"`
	RSS     string `json:"rss"`
	CPU     string `json:"cpu"`
	Mem     string `json:"mem"`
	Command string `json:"command"`

	cpuPct float64
	memPct float64
}

// Pressure mirrors one "some" line of a /proc/pressure file.
type Pressure struct {
	Avg10  float64 `json:"avg10"`
	Avg60  float64 `json:"avg60"`
	Avg300 float64 `json:"avg300"`
	Total  float64 `json:"total"`
}

// State is a point-in-time snapshot of host resource usage.
type State struct {
	Timestamp  time.Time              `json:"timestamp"`
	Uptime     uint64                 `json:"uptime"`
	Load       *load.AvgStat          `json:"load,omitempty"`
	Memory     *mem.VirtualMemoryStat `json:"memory,omitempty"`
	IOPressure *Pressure              `json:"io_pressure,omitempty"`
	TopCPU     []ProcessSample        `json:"top_cpu,omitempty"`
	TopMem     []ProcessSample        `json:"top_mem,omitempty"`
	Processes  int                    `json:"processes"`
}

// ToMap renders the state the way the sink context expects it.
func (s *State) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"timestamp": s.Timestamp,
		"uptime":    s.Uptime,
		"processes": s.Processes,
	}
	if s.Load != nil {
		m["load"] = s.Load
	}
	if s.Memory != nil {
		m["memory"] = s.Memory
	}
	if s.IOPressure != nil {
		m["io_pressure"] = s.IOPressure
	}
	if len(s.TopCPU) > 0 {
		m["top_cpu"] = s.TopCPU
	}
	if len(s.TopMem) > 0 {
		m["top_mem"] = s.TopMem
	}
	return m
}

// Collector periodically samples host state and caches the latest snapshot.
// Readers never wait for a collection pass; Snapshot hands out the cached
// value.
type Collector struct {
	mu    sync.RWMutex
	state *State
}

func NewCollector() *Collector {
	return &Collector{state: &State{}}
}

// Snapshot returns a deep copy of the latest collected state.
func (c *Collector) Snapshot() *State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state == nil {
		return nil
	}

	cp := *c.state
	if c.state.Load != nil {
		l := *c.state.Load
		cp.Load = &l
	}
	if c.state.Memory != nil {
		m := *c.state.Memory
		cp.Memory = &m
	}
	if c.state.IOPressure != nil {
		p := *c.state.IOPressure
		cp.IOPressure = &p
	}
	cp.TopCPU = append([]ProcessSample(nil), c.state.TopCPU...)
	cp.TopMem = append([]ProcessSample(nil), c.state.TopMem...)
	return &cp
}

// Run collects immediately and then on a fixed cadence until the context is
// cancelled, stretching the interval while the host is under load.
func (c *Collector) Run(ctx context.Context) {
	c.collect()

	timer := time.NewTimer(c.interval())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			c.collect()
			timer.Reset(c.interval())
		}
	}
}

func (c *Collector) interval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state != nil && c.state.Load != nil && c.state.Load.Load1 > float64(runtime.NumCPU()) {
		return collectBackoff
	}
	return collectInterval
}

var pressureWarnOnce sync.Once

func (c *Collector) collect() {
	state := &State{Timestamp: time.Now()}

	if up, err := host.Uptime(); err == nil {
		state.Uptime = up
	}
	if l, err := load.Avg(); err == nil {
		state.Load = l
	}
	if m, err := mem.VirtualMemory(); err == nil {
		state.Memory = m
	}

	state.IOPressure = readIOPressure()
	if state.IOPressure == nil && runtime.GOOS == "linux" {
		pressureWarnOnce.Do(func() {
			log.Printf("[sysstat] /proc/pressure/io not readable, PSI metrics unavailable")
		})
	}

	var totalMem uint64
	if state.Memory != nil {
		totalMem = state.Memory.Total
	}
	if samples, total, err := sampleProcesses(state.Uptime, totalMem); err == nil {
		state.Processes = total
		state.TopCPU = topBy(samples, func(p ProcessSample) float64 { return p.cpuPct })
		state.TopMem = topBy(samples, func(p ProcessSample) float64 { return p.memPct })
	} else if runtime.GOOS == "linux" {
		log.Printf("[sysstat] process sampling failed: %v", err)
	}

	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func readIOPressure() *Pressure {
	content, err := os.ReadFile("/proc/pressure/io")
	if err != nil {
		return nil
	}
	return parsePressure(string(content))
}

func parsePressure(content string) *Pressure {
	for _, line := range strings.Split(content, "\n") {
		if !strings.HasPrefix(line, "some") {
			continue
		}
		p := &Pressure{}
		for _, field := range strings.Fields(line)[1:] {
			k, v, ok := strings.Cut(field, "=")
			if !ok {
				continue
			}
			val, _ := strconv.ParseFloat(v, 64)
			switch k {
			case "avg10":
				p.Avg10 = val
			case "avg60":
				p.Avg60 = val
			case "avg300":
				p.Avg300 = val
			case "total":
				p.Total = val
			}
		}
		return p
	}
	return nil
}

func sampleProcesses(uptime, totalMem uint64) ([]ProcessSample, int, error) {
	fs, err := procfs.NewFS("/proc")
	if err != nil {
		return nil, 0, err
	}
	procs, err := fs.AllProcs()
	if err != nil {
		return nil, 0, err
	}

	pageSize := float64(os.Getpagesize())
	const clockTicks = 100.0 // USER_HZ; 100 on every mainstream kernel

	samples := make([]ProcessSample, 0, len(procs))
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			continue
		}

		cmdline, err := p.CmdLine()
		if err != nil || len(cmdline) == 0 {
			if comm, err := p.Comm(); err == nil {
				cmdline = []string{comm}
			} else {
				cmdline = []string{"unknown"}
			}
		}

		var cpuPct float64
		started := float64(stat.Starttime) / clockTicks
		if active := float64(uptime) - started; active > 0 {
			cpuPct = float64(stat.UTime+stat.STime) / clockTicks / active * 100.0
		}

		rss := float64(stat.RSS) * pageSize
		var memPct float64
		if totalMem > 0 {
			memPct = rss / float64(totalMem) * 100.0
		}

		samples = append(samples, ProcessSample{
			PID:     strconv.Itoa(p.PID),
			RSS:     fmt.Sprintf("%.0f", rss),
			CPU:     fmt.Sprintf("%.1f", cpuPct),
			Mem:     fmt.Sprintf("%.1f", memPct),
			Command: strings.Join(cmdline, " "),
			cpuPct:  cpuPct,
			memPct:  memPct,
		})
	}

	return samples, len(procs), nil
}

func topBy(samples []ProcessSample, key func(ProcessSample) float64) []ProcessSample {
	sorted := append([]ProcessSample(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return key(sorted[i]) > key(sorted[j]) })
	if len(sorted) > topProcesses {
		sorted = sorted[:topProcesses]
	}
	return sorted
}
