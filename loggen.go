package main

import (
	"bufio"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// loggen writes synthetic log lines to stdout until the requested volume is
// reached. It exists to load-test the pipeline:
//
//	logkeeper loggen --format nginx --size 100MB | logkeeper run --command cat ...
func newLoggenCmd() *cobra.Command {
	var size string
	var format string
	var errorRate float64

	cmd := &cobra.Command{
		Use:   "loggen",
		Short: "Generate synthetic log lines for load testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := parseByteSize(size)
			if err != nil {
				return err
			}

			gen := &lineGenerator{
				rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
				errorRate: errorRate,
			}

			var next func() string
			switch format {
			case "nginx":
				next = gen.nginxLine
			case "nginx-error":
				next = gen.nginxErrorLine
			case "dmesg":
				next = gen.dmesgLine
			default:
				return fmt.Errorf("unknown format %q (want nginx, nginx-error, or dmesg)", format)
			}

			w := bufio.NewWriter(os.Stdout)
			defer w.Flush()

			var written int64
			for written < target {
				n, err := fmt.Fprintln(w, next())
				if err != nil {
					return err
				}
				written += int64(n)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&size, "size", "100MB", "Total volume to generate, e.g. 512KB, 100MB, 1GB")
	cmd.Flags().StringVar(&format, "format", "nginx", "Line format: nginx, nginx-error, dmesg")
	cmd.Flags().Float64Var(&errorRate, "error-rate", 1.0, "Percentage of lines that carry an error (0-100)")
	return cmd
}

func parseByteSize(s string) (int64, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))

	mult := int64(1)
	for _, u := range []struct {
		suffix string
		factor int64
	}{
		{"GB", 1 << 30},
		{"MB", 1 << 20},
		{"KB", 1 << 10},
		{"B", 1},
	} {
		if v, ok := strings.CutSuffix(upper, u.suffix); ok {
			upper = strings.TrimSpace(v)
			mult = u.factor
			break
		}
	}

	val, err := strconv.ParseInt(upper, 10, 64)
	if err != nil || val <= 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return val * mult, nil
}

type lineGenerator struct {
	rng       *rand.Rand
	errorRate float64
}

var (
	genBenignLevels = []string{"info", "warn"}
	genErrorLevels  = []string{"error", "crit", "alert", "emerg"}
	genKernelWords  = []string{"error", "fail", "panic", "exception"}
	genMethods      = []string{"GET", "POST", "PUT", "DELETE", "HEAD"}
	genPaths        = []string{"/api/v1/users", "/index.html", "/login", "/static/style.css", "/images/logo.png"}
	genMessages     = []string{
		"Connection timed out",
		"File not found",
		"Permission denied",
		"Invalid argument",
		"Segmentation fault",
		"Disk quota exceeded",
		"Broken pipe",
	}
)

func (g *lineGenerator) shouldError() bool {
	return g.rng.Float64()*100 < g.errorRate
}

func (g *lineGenerator) pick(options []string) string {
	return options[g.rng.Intn(len(options))]
}

func (g *lineGenerator) clientIP() string {
	return fmt.Sprintf("%d.%d.%d.%d", g.rng.Intn(256), g.rng.Intn(256), g.rng.Intn(256), g.rng.Intn(256))
}

func (g *lineGenerator) nginxLine() string {
	level := g.pick(genBenignLevels)
	if g.shouldError() {
		level = g.pick(genErrorLevels)
	}

	return fmt.Sprintf("%s [%s] %d#0: *%d %s, client: %s, server: example.com, request: %q",
		time.Now().Format("2006/01/02 15:04:05"),
		level,
		g.rng.Intn(10000),
		g.rng.Intn(100000),
		g.pick(genMessages),
		g.clientIP(),
		g.pick(genMethods)+" "+g.pick(genPaths)+" HTTP/1.1")
}

func (g *lineGenerator) nginxErrorLine() string {
	pid := g.rng.Intn(30000)
	upstream := fmt.Sprintf("http://10.%d.%d.%d:80%s",
		g.rng.Intn(256), g.rng.Intn(256), g.rng.Intn(256), g.pick(genPaths))

	return fmt.Sprintf("%s [error] %d#%d: *%d connect() failed (113: No route to host) while connecting to upstream, client: %s, server: example.com, request: %q, upstream: %q, host: \"example.com\"",
		time.Now().Format("2006/01/02 15:04:05"),
		pid, pid,
		g.rng.Intn(100000000),
		g.clientIP(),
		g.pick(genMethods)+" "+g.pick(genPaths)+" HTTP/1.1",
		upstream)
}

func (g *lineGenerator) dmesgLine() string {
	// One line in ten is a continuation (hex dump) to exercise the
	// kernel correlator.
	if g.rng.Float64() < 0.1 {
		return fmt.Sprintf(" %08x: %08x %08x %08x %08x",
			g.rng.Uint32(), g.rng.Uint32(), g.rng.Uint32(), g.rng.Uint32(), g.rng.Uint32())
	}

	stamp := fmt.Sprintf("[%.6f]", float64(time.Now().Unix()%100000)+g.rng.Float64())
	msg := g.pick(genMessages)
	if g.shouldError() {
		msg = g.pick(genKernelWords) + ": " + msg
	}
	return fmt.Sprintf("%s dev%d: %s", stamp, g.rng.Intn(10), msg)
}
