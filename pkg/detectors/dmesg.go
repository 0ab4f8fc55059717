package detectors

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"
)

var (
	// kernelVocab is the error vocabulary for kernel logs. "exception"
	// covers libata/SCSI dumps whose first line carries no other keyword.
	kernelVocab = regexp.MustCompile(`(?i)(error|fail|panic|oops|exception)`)

	// kernelStamp marks a line as a new record: a leading bracketed
	// floating-point timestamp, e.g. "[  123.456789] ...".
	kernelStamp = regexp.MustCompile(`^\[\s*([0-9]+\.[0-9]+)\]`)

	// kernelHeader extracts the device/subsystem prefix of a new record,
	// the text between the timestamp and the first colon.
	kernelHeader = regexp.MustCompile(`^\[\s*[0-9]+\.[0-9]+\]\s*([^:]+):`)
)

// correlationWindow is how far, in source time units (seconds since boot
// for dmesg), a follow-up record may trail the last matched record and
// still be attributed to the same incident.
const correlationWindow = 5.0

// DmesgDetector is a stateful correlator for kernel-style logs. Kernel
// error dumps span many lines but only the first carries a clean keyword
// match; the correlator remembers the timestamp and header of the last
// match and attributes nearby related records and continuation lines to it.
//
// One instance serves one source sequentially, so a single lock around the
// {lastStamp, lastHeader} pair is all the synchronization it needs.
type DmesgDetector struct {
	mu         sync.Mutex
	lastStamp  float64
	lastHeader string
}

func NewDmesgDetector() *DmesgDetector {
	return &DmesgDetector{}
}

func (d *DmesgDetector) Detect(line []byte) bool {
	if !utf8.Valid(line) {
		return false
	}

	stamp, header, isRecord := parseKernelRecord(line)

	d.mu.Lock()
	defer d.mu.Unlock()

	if kernelVocab.Match(line) {
		if isRecord {
			d.lastStamp = stamp
		}
		if header != "" {
			d.lastHeader = header
		}
		return true
	}

	if d.lastHeader == "" {
		return false
	}

	if isRecord {
		// A new record is only part of the incident if it names a
		// related header within the correlation window.
		return header != "" &&
			stamp-d.lastStamp <= correlationWindow &&
			relatedHeaders(header, d.lastHeader)
	}

	// Continuation lines without a timestamp prefix always belong to the
	// record that preceded them.
	return true
}

func parseKernelRecord(line []byte) (stamp float64, header string, isRecord bool) {
	m := kernelStamp.FindSubmatch(line)
	if m == nil {
		return 0, "", false
	}
	stamp, _ = strconv.ParseFloat(string(m[1]), 64)
	if hm := kernelHeader.FindSubmatch(line); hm != nil {
		header = strings.TrimSpace(string(hm[1]))
	}
	return stamp, header, true
}

// relatedHeaders reports whether two record headers belong to the same
// device or subsystem: equal, or one a prefix of the other (e.g. "ata1"
// and "ata1.00").
func relatedHeaders(a, b string) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}
