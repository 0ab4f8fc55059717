package monitor

import (
	"fmt"

	"github.com/getsentry/sentry-go"
)

// ServerStateExtra is the extras key carrying the sysstat snapshot; the
// Sentry reporter promotes it to a structured context block.
const ServerStateExtra = "server_state"

// Reporter delivers one flushed message to the external error sink. Delivery
// is fire-and-forget: implementations report at error severity and do not
// surface sink failures back to the monitor.
type Reporter interface {
	Report(message string, tags map[string]string, extras map[string]interface{})
}

// SentryReporter reports through a sentry-go hub. A nil hub means the
// process-wide current hub, which the daemon initializes at startup.
type SentryReporter struct {
	hub *sentry.Hub
}

func NewSentryReporter() *SentryReporter {
	return &SentryReporter{}
}

// NewSentryReporterForDSN builds a reporter with its own client, used when a
// monitor overrides the global DSN.
func NewSentryReporterForDSN(dsn, environment, release string) (*SentryReporter, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return &SentryReporter{hub: sentry.NewHub(client, sentry.NewScope())}, nil
}

func (r *SentryReporter) Report(message string, tags map[string]string, extras map[string]interface{}) {
	hub := r.hub
	if hub == nil {
		hub = sentry.CurrentHub()
	}

	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			if k == ServerStateExtra {
				if state, ok := v.(map[string]interface{}); ok {
					scope.SetContext("Server State", sentry.Context(state))
					continue
				}
			}
			scope.SetExtra(k, v)
		}
		hub.CaptureMessage(message)
	})
}
