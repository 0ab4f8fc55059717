package detectors

// NginxDetector flags lines carrying an nginx error-log severity.
// "warn" is deliberately left out; it is almost always noise.
type NginxDetector struct {
	*GenericDetector
}

func NewNginxDetector() *NginxDetector {
	// The pattern is a preset and known to compile.
	d, _ := NewGenericDetector(`(?i)(error|critical|crit|alert|emerg)`)
	return &NginxDetector{GenericDetector: d}
}
