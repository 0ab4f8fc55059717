package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/saworbit/logkeeper/internal/ipc"
	"github.com/saworbit/logkeeper/internal/metrics"
	"github.com/saworbit/logkeeper/internal/version"
	"github.com/saworbit/logkeeper/pkg/config"
	"github.com/saworbit/logkeeper/pkg/detectors"
	"github.com/saworbit/logkeeper/pkg/monitor"
	"github.com/saworbit/logkeeper/pkg/sources"
	"github.com/saworbit/logkeeper/pkg/sysstat"
	"github.com/spf13/cobra"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "logkeeper",
		Short:   "Logkeeper - log monitoring agent that reports matched lines to Sentry",
		Version: version.Version,
	}

	root.AddCommand(newRunCmd(), newStatusCmd(), newUpdateCmd(), newLoggenCmd())
	return root
}

type runFlags struct {
	configPath string
	dsn        string

	file       []string
	dmesg      bool
	journalctl string
	command    string
	syslog     string

	pattern string
	exclude string
	format  string

	environment string
	release     string

	metricsPort int
	oneshot     bool
	verbose     bool
	watchConfig bool
}

func newRunCmd() *cobra.Command {
	var flags runFlags

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the monitoring daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildConfig(&flags)
			if err != nil {
				return err
			}
			return runDaemon(cfg, &flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "YAML configuration file")
	cmd.Flags().StringVar(&flags.dsn, "dsn", "", "Sentry DSN (defaults to $SENTRY_DSN)")
	cmd.Flags().StringArrayVar(&flags.file, "file", nil, "Log file to monitor (repeatable)")
	cmd.Flags().BoolVar(&flags.dmesg, "dmesg", false, "Monitor the kernel ring buffer via dmesg -w")
	cmd.Flags().StringVar(&flags.journalctl, "journalctl", "", "Monitor journalctl with the given arguments")
	cmd.Flags().StringVar(&flags.command, "command", "", "Monitor the stdout of an arbitrary command")
	cmd.Flags().StringVar(&flags.syslog, "syslog", "", "Listen as a syslog server, e.g. udp:127.0.0.1:1514")
	cmd.Flags().StringVar(&flags.pattern, "pattern", "", "Regex that marks a line as an error")
	cmd.Flags().StringVar(&flags.exclude, "exclude", "", "Regex that drops otherwise-matched lines")
	cmd.Flags().StringVar(&flags.format, "format", "", "Log format preset: dmesg, nginx, nginx-error")
	cmd.Flags().StringVar(&flags.environment, "environment", "", "Sentry environment tag")
	cmd.Flags().StringVar(&flags.release, "release", "", "Sentry release tag")
	cmd.Flags().IntVar(&flags.metricsPort, "metrics-port", 0, "Serve Prometheus metrics on this port")
	cmd.Flags().BoolVar(&flags.oneshot, "oneshot", false, "Stop once every source is exhausted")
	cmd.Flags().BoolVar(&flags.verbose, "verbose", false, "Log every processed line")
	cmd.Flags().BoolVar(&flags.watchConfig, "watch-config", false, "Re-exec when the config file changes")
	return cmd
}

// buildConfig merges the config file, command-line flags, and the
// environment. Flags override the file.
func buildConfig(flags *runFlags) (*config.Config, error) {
	cfg := &config.Config{}

	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	for _, path := range flags.file {
		cfg.Monitors = append(cfg.Monitors, flagMonitor(flags, "file", path, ""))
	}
	if flags.dmesg {
		cfg.Monitors = append(cfg.Monitors, flagMonitor(flags, "dmesg", "", ""))
	}
	if flags.journalctl != "" {
		cfg.Monitors = append(cfg.Monitors, flagMonitor(flags, "journalctl", "", flags.journalctl))
	}
	if flags.command != "" {
		cfg.Monitors = append(cfg.Monitors, flagMonitor(flags, "command", "", flags.command))
	}
	if flags.syslog != "" {
		cfg.Monitors = append(cfg.Monitors, flagMonitor(flags, "syslog", flags.syslog, ""))
	}

	if flags.dsn != "" {
		cfg.Sentry.DSN = flags.dsn
	}
	if cfg.Sentry.DSN == "" {
		cfg.Sentry.DSN = os.Getenv("SENTRY_DSN")
	}
	if flags.environment != "" {
		cfg.Sentry.Environment = flags.environment
	}
	if flags.release != "" {
		cfg.Sentry.Release = flags.release
	}
	if flags.metricsPort != 0 {
		cfg.MetricsPort = flags.metricsPort
	}
	cfg.Verbose = flags.verbose
	cfg.OneShot = flags.oneshot

	return cfg, nil
}

func flagMonitor(flags *runFlags, typ, path, args string) config.MonitorConfig {
	return config.MonitorConfig{
		Type:           typ,
		Path:           path,
		Args:           args,
		Pattern:        flags.pattern,
		Format:         flags.format,
		ExcludePattern: flags.exclude,
	}
}

func runDaemon(cfg *config.Config, flags *runFlags) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Sentry.DSN == "" {
		return fmt.Errorf("no Sentry DSN configured; set sentry.dsn, --dsn, or $SENTRY_DSN")
	}
	if len(cfg.Monitors) == 0 {
		return fmt.Errorf("nothing to monitor; configure monitors or pass --file/--dmesg/--journalctl/--command/--syslog")
	}

	release := cfg.Sentry.Release
	if release == "" {
		release = "logkeeper@" + version.Version
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.Sentry.DSN,
		Environment: cfg.Sentry.Environment,
		Release:     release,
	}); err != nil {
		return fmt.Errorf("init sentry: %w", err)
	}
	defer sentry.Flush(2 * time.Second)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector := sysstat.NewCollector()
	go collector.Run(ctx)

	metrics.SetAgentInfo(runtime.GOOS, runtime.GOARCH, version.Version)
	if cfg.MetricsPort > 0 {
		go func() {
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			if err := metrics.Serve(ctx, addr, log.Default()); err != nil {
				log.Printf("[metrics] server stopped: %v", err)
			}
		}()
	}

	// One restart request wins; later ones are dropped.
	restartCh := make(chan struct{}, 1)
	requestRestart := func() {
		select {
		case restartCh <- struct{}{}:
		default:
		}
	}

	socketDir := ipc.SocketDir()
	if err := ipc.EnsureSecureDirectory(socketDir); err != nil {
		log.Printf("[ipc] control socket disabled: %v", err)
	} else {
		socketPath := ipc.SocketPath(socketDir, os.Getpid())
		go func() {
			if err := ipc.Serve(ctx, socketPath, cfg, version.Version, requestRestart); err != nil {
				log.Printf("[ipc] server stopped: %v", err)
			}
		}()
	}

	if flags.watchConfig && flags.configPath != "" {
		go watchConfig(ctx, flags.configPath, requestRestart)
	}

	monitors := buildMonitors(cfg, collector)
	if len(monitors) == 0 {
		return fmt.Errorf("no valid monitors to start")
	}

	var wg sync.WaitGroup
	for _, m := range monitors {
		wg.Add(1)
		go func(m *monitor.Monitor) {
			defer wg.Done()
			m.Run(ctx)
		}(m)
	}

	exhausted := make(chan struct{})
	go func() {
		wg.Wait()
		close(exhausted)
	}()

	select {
	case <-ctx.Done():
		log.Printf("[logkeeper] shutting down")
	case <-restartCh:
		log.Printf("[logkeeper] restart requested")
		stop()
		closeMonitors(monitors)
		<-exhausted
		sentry.Flush(2 * time.Second)
		return reexec()
	case <-exhausted:
		log.Printf("[logkeeper] all monitors finished")
		return nil
	}

	closeMonitors(monitors)
	<-exhausted
	return nil
}

func closeMonitors(monitors []*monitor.Monitor) {
	for _, m := range monitors {
		if err := m.Close(); err != nil {
			log.Printf("[logkeeper] close monitor: %v", err)
		}
	}
}

// buildMonitors constructs every configured monitor, skipping the ones that
// fail with a log line. Startup only aborts when none survive.
func buildMonitors(cfg *config.Config, collector *sysstat.Collector) []*monitor.Monitor {
	var monitors []*monitor.Monitor
	for _, mc := range cfg.Monitors {
		m, err := buildMonitor(cfg, mc, collector)
		if err != nil {
			log.Printf("[logkeeper] skipping monitor %q: %v", monitorName(mc), err)
			continue
		}
		monitors = append(monitors, m)
	}
	return monitors
}

func buildMonitor(cfg *config.Config, mc config.MonitorConfig, collector *sysstat.Collector) (*monitor.Monitor, error) {
	source, err := buildSource(mc)
	if err != nil {
		return nil, err
	}

	detector, err := detectors.Get(determineDetectorFormat(mc), mc.Pattern)
	if err != nil {
		return nil, err
	}

	var reporter monitor.Reporter
	if mc.Sentry.DSN != "" {
		env := mc.Sentry.Environment
		if env == "" {
			env = cfg.Sentry.Environment
		}
		rel := mc.Sentry.Release
		if rel == "" {
			rel = cfg.Sentry.Release
		}
		reporter, err = monitor.NewSentryReporterForDSN(mc.Sentry.DSN, env, rel)
		if err != nil {
			return nil, fmt.Errorf("sentry override: %w", err)
		}
	} else {
		reporter = monitor.NewSentryReporter()
	}

	return monitor.New(monitor.Options{
		Source:           source,
		Detector:         detector,
		ExcludePattern:   mc.ExcludePattern,
		Reporter:         reporter,
		Collector:        collector,
		RateLimitBurst:   mc.RateLimitBurst,
		RateLimitWindow:  config.ParseWindow(mc.RateLimitWindow),
		Verbose:          cfg.Verbose,
		StopOnExhaustion: cfg.OneShot,
	})
}

func monitorName(mc config.MonitorConfig) string {
	if mc.Name != "" {
		return mc.Name
	}
	if mc.Path != "" {
		return mc.Path
	}
	return mc.Type
}

func buildSource(mc config.MonitorConfig) (sources.LogSource, error) {
	name := monitorName(mc)

	switch mc.Type {
	case "file":
		return sources.NewFileSource(name, mc.Path), nil
	case "dmesg":
		return sources.NewDmesgSource(name), nil
	case "journalctl":
		return sources.NewJournalctlSource(name, mc.Args), nil
	case "command":
		fields := strings.Fields(mc.Args)
		if len(fields) == 0 {
			return nil, fmt.Errorf("command monitor needs args")
		}
		return sources.NewCommandSource(name, fields[0], fields[1:]...), nil
	case "syslog":
		return sources.NewSyslogSource(name, mc.Path), nil
	default:
		return nil, fmt.Errorf("unknown monitor type %q", mc.Type)
	}
}

// determineDetectorFormat picks the detector preset: an explicit format
// wins, an explicit pattern suppresses any preset, and dmesg sources
// default to the kernel correlator.
func determineDetectorFormat(mc config.MonitorConfig) string {
	if mc.Format != "" {
		return mc.Format
	}
	if mc.Pattern != "" {
		return ""
	}
	if mc.Type == "dmesg" {
		return "dmesg"
	}
	return ""
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show running logkeeper instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			instances, err := ipc.ListInstances(ipc.SocketDir())
			if err != nil {
				return err
			}

			if asJSON || !isTerminal(os.Stdout) {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(instances)
			}

			if len(instances) == 0 {
				fmt.Println("no running instances")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PID\tVERSION\tUPTIME\tMEMORY\tMONITORS")
			for _, inst := range instances {
				monitors := 0
				if inst.Config != nil {
					monitors = len(inst.Config.Monitors)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\n",
					inst.PID,
					inst.Version,
					time.Since(inst.StartTime).Round(time.Second),
					formatBytes(inst.MemoryAlloc),
					monitors)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Always emit JSON")
	return cmd
}

func newUpdateCmd() *cobra.Command {
	var pid int

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Ask running instances to re-exec themselves",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ipc.SocketDir()
			instances, err := ipc.ListInstances(dir)
			if err != nil {
				return err
			}
			if len(instances) == 0 {
				return fmt.Errorf("no running instances")
			}

			requested := 0
			for _, inst := range instances {
				if pid != 0 && inst.PID != pid {
					continue
				}
				if err := ipc.RequestUpdate(ipc.SocketPath(dir, inst.PID)); err != nil {
					log.Printf("[update] pid %d: %v", inst.PID, err)
					continue
				}
				fmt.Printf("pid %d restarting\n", inst.PID)
				requested++
			}

			if requested == 0 {
				return fmt.Errorf("no instance matched")
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&pid, "pid", 0, "Restart only this instance")
	return cmd
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
