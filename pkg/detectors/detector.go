package detectors

// Detector decides whether a log line signals an issue worth reporting.
//
// Stateless implementations must be safe for concurrent use; a monitor may
// share them freely. Stateful implementations (see DmesgDetector) serve a
// single source and guard their own state.
type Detector interface {
	// Detect returns true if the line contains an issue.
	Detect(line []byte) bool
}
