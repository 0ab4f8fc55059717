package detectors

import "testing"

func TestDmesgDetectorCorrelatesRelatedRecords(t *testing.T) {
	d := NewDmesgDetector()

	steps := []struct {
		line string
		want bool
	}{
		{"[10.0] ata1: exception Emask", true}, // keyword match
		{"[10.2] ata1: more detail", true},     // same header, within window
		{"[20.0] eth0: link down", false},      // unrelated header, outside window
	}

	for i, s := range steps {
		if got := d.Detect([]byte(s.line)); got != s.want {
			t.Errorf("step %d: Detect(%q) = %v, want %v", i, s.line, got, s.want)
		}
	}
}

func TestDmesgDetectorUnrelatedHeaderWithinWindow(t *testing.T) {
	d := NewDmesgDetector()

	if !d.Detect([]byte("[10.0] ata1: exception Emask")) {
		t.Fatal("keyword line should match")
	}
	if d.Detect([]byte("[10.5] eth0: link up")) {
		t.Error("unrelated header should not be attributed to the match")
	}
}

func TestDmesgDetectorPrefixRelatedHeaders(t *testing.T) {
	d := NewDmesgDetector()

	if !d.Detect([]byte("[100.0] ata1.00: exception Emask 0x0 SAct 0x0")) {
		t.Fatal("keyword line should match")
	}
	if !d.Detect([]byte("[100.1] ata1: SError: { PHYRdyChg }")) {
		t.Error("prefix-related header within window should match")
	}
}

func TestDmesgDetectorContinuationLines(t *testing.T) {
	d := NewDmesgDetector()

	if !d.Detect([]byte("[55.0] sd 0:0:0:0: I/O error, dev sda")) {
		t.Fatal("keyword line should match")
	}
	// No timestamp prefix: always attributed to the previous match.
	if !d.Detect([]byte("    res 40/00:00:00:00:00/00:00:00:00:00/00")) {
		t.Error("continuation line should match")
	}
	if !d.Detect([]byte("    status: { DRDY }")) {
		t.Error("second continuation line should match")
	}
}

func TestDmesgDetectorNoPriorMatch(t *testing.T) {
	d := NewDmesgDetector()

	if d.Detect([]byte("[1.0] usb 1-1: new high-speed device")) {
		t.Error("benign record without prior match should not match")
	}
	if d.Detect([]byte("plain continuation without prior match")) {
		t.Error("continuation line without prior match should not match")
	}
}

func TestDmesgDetectorWindowExpiry(t *testing.T) {
	d := NewDmesgDetector()

	if !d.Detect([]byte("[10.0] ata1: exception Emask")) {
		t.Fatal("keyword line should match")
	}
	if d.Detect([]byte("[15.5] ata1: follow-up")) {
		t.Error("same header beyond the 5.0 window should not match")
	}
}

func TestDmesgDetectorExceptionKeyword(t *testing.T) {
	d := NewDmesgDetector()

	// "exception" is part of the vocabulary even though the plain keyword
	// presets do not include it.
	if !d.Detect([]byte("[123.456789] ata1.00: exception Emask 0x0 SAct 0x0 SErr 0x0 action 0x0")) {
		t.Error("exception keyword should match")
	}
}

func TestRelatedHeaders(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"ata1", "ata1", true},
		{"ata1.00", "ata1", true},
		{"ata1", "ata1.00", true},
		{" ata1 ", "ata1", true},
		{"ata1", "eth0", false},
		{"", "ata1", false},
	}

	for _, tt := range tests {
		if got := relatedHeaders(tt.a, tt.b); got != tt.want {
			t.Errorf("relatedHeaders(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestParseKernelRecord(t *testing.T) {
	tests := []struct {
		line       string
		wantStamp  float64
		wantHeader string
		wantRecord bool
	}{
		{"[10.0] ata1: exception", 10.0, "ata1", true},
		{"[  123.456789] ata1.00: status", 123.456789, "ata1.00", true},
		{"[99.9] no header here", 99.9, "", true},
		{"no timestamp at all", 0, "", false},
		{"[not-a-number] ata1: x", 0, "", false},
	}

	for _, tt := range tests {
		stamp, header, isRecord := parseKernelRecord([]byte(tt.line))
		if stamp != tt.wantStamp || header != tt.wantHeader || isRecord != tt.wantRecord {
			t.Errorf("parseKernelRecord(%q) = (%v, %q, %v), want (%v, %q, %v)",
				tt.line, stamp, header, isRecord, tt.wantStamp, tt.wantHeader, tt.wantRecord)
		}
	}
}
