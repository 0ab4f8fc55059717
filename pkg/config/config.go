package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/saworbit/logkeeper/pkg/sysstat"
	"gopkg.in/yaml.v3"
)

// SentryConfig carries the sink credentials, either globally or as a
// per-monitor override.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	Release     string `yaml:"release"`
}

// MonitorConfig describes one configured source and how its lines are
// detected, filtered, and rate limited. It is immutable for the life of the
// monitor built from it.
type MonitorConfig struct {
	Name            string       `yaml:"name"`
	Type            string       `yaml:"type"`            // file, dmesg, journalctl, command, syslog
	Path            string       `yaml:"path"`            // file path or syslog locator
	Args            string       `yaml:"args"`            // journalctl or command arguments
	Pattern         string       `yaml:"pattern"`         // explicit regex, overrides format
	Format          string       `yaml:"format"`          // dmesg, nginx, nginx-error
	ExcludePattern  string       `yaml:"exclude_pattern"` // matched lines are dropped
	RateLimitBurst  int          `yaml:"rate_limit_burst"`
	RateLimitWindow string       `yaml:"rate_limit_window"` // e.g. "30s", "5m"
	Sentry          SentryConfig `yaml:"sentry"`            // overrides the global sink
}

// Config is the full daemon configuration.
type Config struct {
	Sentry      SentryConfig    `yaml:"sentry"`
	Monitors    []MonitorConfig `yaml:"monitors"`
	MetricsPort int             `yaml:"metrics_port"`

	Verbose bool `yaml:"-"`
	OneShot bool `yaml:"-"`
}

var knownTypes = map[string]bool{
	"file":       true,
	"dmesg":      true,
	"journalctl": true,
	"command":    true,
	"syslog":     true,
}

// Load reads and decodes a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks every monitor entry. It does not require a DSN; that is
// enforced at startup so status tooling can still load partial configs.
func (c *Config) Validate() error {
	for i, m := range c.Monitors {
		label := m.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}

		if m.Type == "" {
			return fmt.Errorf("monitor %s: type is required", label)
		}
		if !knownTypes[m.Type] {
			return fmt.Errorf("monitor %s: unknown type %q", label, m.Type)
		}
		if m.Type == "file" && m.Path == "" {
			return fmt.Errorf("monitor %s: file monitors need a path", label)
		}
		if m.Type == "syslog" && m.Path == "" {
			return fmt.Errorf("monitor %s: syslog monitors need a listen address", label)
		}
		if m.Type == "command" && strings.TrimSpace(m.Args) == "" {
			return fmt.Errorf("monitor %s: command monitors need args", label)
		}

		if m.Pattern != "" {
			if _, err := regexp.Compile(m.Pattern); err != nil {
				return fmt.Errorf("monitor %s: invalid pattern: %w", label, err)
			}
		}
		if m.ExcludePattern != "" {
			if _, err := regexp.Compile(m.ExcludePattern); err != nil {
				return fmt.Errorf("monitor %s: invalid exclude pattern: %w", label, err)
			}
		}
		if m.RateLimitBurst < 0 {
			return fmt.Errorf("monitor %s: rate_limit_burst must be >= 0", label)
		}
	}
	return nil
}

// Redacted returns a deep copy safe to show over the status channel: DSNs
// are masked and command arguments pass through the sanitizer.
func (c *Config) Redacted() *Config {
	out := *c
	out.Monitors = append([]MonitorConfig(nil), c.Monitors...)

	if out.Sentry.DSN != "" {
		out.Sentry.DSN = "***"
	}
	for i := range out.Monitors {
		if out.Monitors[i].Sentry.DSN != "" {
			out.Monitors[i].Sentry.DSN = "***"
		}
		if out.Monitors[i].Args != "" {
			out.Monitors[i].Args = sysstat.SanitizeCommand(strings.Fields(out.Monitors[i].Args))
		}
	}
	return &out
}

// ParseWindow turns a rate-limit window like "30s" or "5m" into a duration.
// Anything unparseable, including an empty string, yields zero. Combined
// with a nonzero burst a zero window never elapses, so lifetime deliveries
// are capped at the burst; see the rate limiter.
func ParseWindow(s string) time.Duration {
	if v, ok := strings.CutSuffix(s, "s"); ok {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}
	if v, ok := strings.CutSuffix(s, "m"); ok {
		if mins, err := strconv.Atoi(v); err == nil && mins >= 0 {
			return time.Duration(mins) * time.Minute
		}
	}
	return 0
}
