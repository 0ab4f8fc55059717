package sysstat

import "strings"

const redacted = "[REDACTED]"

// valueFlags always take their secret in the following argument.
var valueFlags = map[string]struct{}{
	"--password":      {},
	"--token":         {},
	"--api-key":       {},
	"--apikey":        {},
	"--secret":        {},
	"--client-secret": {},
	"--access-token":  {},
	"--auth-token":    {},
	"--session-id":    {},
}

// secretSuffixes catch flag names the explicit list misses. The separator
// variants ("_key", "-key", ".key") avoid redacting words like "keyboard".
var secretSuffixes = []string{
	"password",
	"token",
	"secret",
	"_key",
	"-key",
	".key",
	"signature",
	"credential",
	"cookie",
	"session",
}

// SanitizeCommand joins command arguments into one printable string with
// secrets replaced, so a spawned source's command line can appear in status
// output without leaking credentials. Both "--flag value" and "--flag=value"
// forms are handled.
func SanitizeCommand(args []string) string {
	if len(args) == 0 {
		return ""
	}

	out := make([]string, 0, len(args))
	redactNext := false

	for i, arg := range args {
		if redactNext {
			out = append(out, redacted)
			redactNext = false
			continue
		}

		if key, _, ok := strings.Cut(arg, "="); ok {
			if _, hit := valueFlags[strings.ToLower(key)]; hit || secretKey(strings.TrimLeft(key, "-")) {
				out = append(out, key+"="+redacted)
			} else {
				out = append(out, arg)
			}
			continue
		}

		if _, hit := valueFlags[strings.ToLower(arg)]; hit {
			out = append(out, arg)
			redactNext = i+1 < len(args)
			continue
		}

		if secretKey(strings.TrimLeft(arg, "-")) {
			out = append(out, arg)
			// A following flag is probably not the value; leaving it
			// intact avoids eating boolean flags.
			redactNext = i+1 < len(args) && !strings.HasPrefix(args[i+1], "-")
			continue
		}

		out = append(out, arg)
	}

	return strings.Join(out, " ")
}

func secretKey(key string) bool {
	key = strings.ToLower(key)

	switch key {
	case "password", "token", "secret", "key", "auth":
		return true
	}

	for _, suffix := range secretSuffixes {
		if !strings.HasSuffix(key, suffix) {
			continue
		}
		if len(key) == len(suffix) {
			return true
		}
		// The suffix either carries its own separator or must be
		// preceded by one, so "api_key" matches and "monkey" does not.
		if suffix[0] == '-' || suffix[0] == '_' || suffix[0] == '.' {
			return true
		}
		switch key[len(key)-len(suffix)-1] {
		case '-', '_', '.':
			return true
		}
	}
	return false
}
