package sources

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestSyslogLocatorParsing(t *testing.T) {
	tests := []struct {
		locator     string
		wantNetwork string
		wantAddress string
	}{
		{"tcp:127.0.0.1:5514", "tcp", "127.0.0.1:5514"},
		{"udp:127.0.0.1:5514", "udp", "127.0.0.1:5514"},
		{"127.0.0.1:5514", "udp", "127.0.0.1:5514"},
		{":5514", "udp", ":5514"},
	}

	for _, tt := range tests {
		s := NewSyslogSource("test", tt.locator)
		if s.network != tt.wantNetwork || s.address != tt.wantAddress {
			t.Errorf("NewSyslogSource(%q) = (%s, %s), want (%s, %s)",
				tt.locator, s.network, s.address, tt.wantNetwork, tt.wantAddress)
		}
	}
}

func TestSyslogUDPDeliversLines(t *testing.T) {
	s := NewSyslogSource("udp-test", "udp:127.0.0.1:0")
	reader, err := s.Stream()
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("udp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("first message")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := conn.Write([]byte("second message\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	scanner := bufio.NewScanner(reader)
	want := []string{"first message", "second message"}
	for _, w := range want {
		if !scanner.Scan() {
			t.Fatalf("expected line %q, scanner stopped: %v", w, scanner.Err())
		}
		if got := scanner.Text(); got != w {
			t.Errorf("got line %q, want %q", got, w)
		}
	}
}

func TestSyslogTCPDeliversLinesAndEOFOnClose(t *testing.T) {
	s := NewSyslogSource("tcp-test", "tcp:127.0.0.1:0")
	reader, err := s.Stream()
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if _, err := conn.Write([]byte("hello over tcp\nsecond line\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	scanner := bufio.NewScanner(reader)
	for _, w := range []string{"hello over tcp", "second line"} {
		if !scanner.Scan() {
			t.Fatalf("expected line %q, scanner stopped: %v", w, scanner.Err())
		}
		if got := scanner.Text(); got != w {
			t.Errorf("got line %q, want %q", got, w)
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// After Close the stream must terminate with EOF rather than
		// blocking forever.
		for scanner.Scan() {
		}
	}()

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not reach EOF after Close")
	}
}

func TestSyslogCloseIsIdempotent(t *testing.T) {
	s := NewSyslogSource("close-test", "udp:127.0.0.1:0")
	if _, err := s.Stream(); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

type closeRecorder struct {
	mu     sync.Mutex
	closed bool
}

func (c *closeRecorder) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *closeRecorder) wasClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestSyslogLateConnClosedAfterShutdown(t *testing.T) {
	s := NewSyslogSource("late-test", "tcp:127.0.0.1:0")
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// A connection accepted just before shutdown is tracked after Close
	// has swept the conns slice; it must be closed on the spot, never
	// registered.
	c := &closeRecorder{}
	if s.track(c, nil) {
		t.Error("track accepted a closer after shutdown")
	}
	if !c.wasClosed() {
		t.Error("late closer was left open")
	}

	if _, err := s.Stream(); err == nil {
		t.Error("Stream succeeded on a closed source")
	}
}

func TestSyslogCloseUnblocksRacingAccept(t *testing.T) {
	for i := 0; i < 50; i++ {
		s := NewSyslogSource("race-test", "tcp:127.0.0.1:0")
		if _, err := s.Stream(); err != nil {
			t.Fatalf("Stream: %v", err)
		}

		// A silent client: its reader goroutine only unblocks if Close
		// reaches the connection.
		conn, err := net.Dial("tcp", s.Addr().String())
		if err != nil {
			t.Fatalf("dial: %v", err)
		}

		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := s.Close(); err != nil {
				t.Errorf("Close: %v", err)
			}
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("Close hung with a connection in flight")
		}
		conn.Close()
	}
}

func TestSyslogTCPDeliversLargeMessage(t *testing.T) {
	s := NewSyslogSource("large-test", "tcp:127.0.0.1:0")
	reader, err := s.Stream()
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	defer s.Close()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	// Larger than the default scanner token, smaller than the cap.
	big := strings.Repeat("x", 100*1024)
	if _, err := conn.Write([]byte(big + "\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	conn.Close()

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, maxMessageSize), maxMessageSize)
	if !scanner.Scan() {
		t.Fatalf("scanner stopped: %v", scanner.Err())
	}
	if got := scanner.Text(); got != big {
		t.Errorf("got %d bytes, want %d", len(got), len(big))
	}
}

func TestChanReaderCursor(t *testing.T) {
	msgs := make(chan []byte, 4)
	msgs <- []byte("hello\n")
	msgs <- []byte("world\n")
	close(msgs)

	r := &chanReader{msgs: msgs}

	// Tiny destination buffer: the cursor must hand out the current
	// message across multiple reads before pulling the next one.
	var out []byte
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		out = append(out, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
	}

	if string(out) != "hello\nworld\n" {
		t.Errorf("got %q, want %q", out, "hello\nworld\n")
	}
}

func TestTerminated(t *testing.T) {
	if got := terminated([]byte("abc")); string(got) != "abc\n" {
		t.Errorf("terminated(abc) = %q", got)
	}
	if got := terminated([]byte("abc\n")); string(got) != "abc\n" {
		t.Errorf("terminated(abc\\n) = %q", got)
	}
}
