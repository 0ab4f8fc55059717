package detectors

// Get resolves a detector from a format hint and an optional explicit
// pattern. A non-empty pattern always wins and yields a generic detector;
// otherwise the format selects a preset, falling back to a case-insensitive
// "error" match.
func Get(format, pattern string) (Detector, error) {
	if pattern != "" {
		return NewGenericDetector(pattern)
	}

	switch format {
	case "dmesg":
		return NewDmesgDetector(), nil
	case "nginx", "nginx-error":
		return NewNginxDetector(), nil
	default:
		return NewGenericDetector(`(?i)error`)
	}
}
