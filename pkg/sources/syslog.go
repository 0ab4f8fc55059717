package sources

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"sync"
)

// messageBacklog bounds the channel between the listener goroutines and the
// pull-side reader. A slow consumer makes the senders block on a full
// channel, which pushes back on network intake instead of growing memory.
const messageBacklog = 128

// maxMessageSize caps one TCP syslog message. It matches the scanner cap on
// the pull side so a message the monitor would accept never errors the
// connection reader first.
const maxMessageSize = 1024 * 1024

// SyslogSource accepts syslog-style messages over UDP datagrams or TCP
// connections and exposes them as a pull-based byte stream. The locator is
// "tcp:<host:port>" or "udp:<host:port>"; an unprefixed address means UDP.
//
// The listener goroutines push newline-terminated messages into a bounded
// channel; the reader returned by Stream drains that channel one message at
// a time. Close broadcasts shutdown, which every goroutine observes on its
// next send or I/O cycle.
type SyslogSource struct {
	name    string
	network string
	address string

	mu     sync.Mutex
	conns  []io.Closer
	bound  net.Addr
	closed chan struct{}
	wg     sync.WaitGroup
}

func NewSyslogSource(name, locator string) *SyslogSource {
	network := "udp"
	address := locator
	switch {
	case strings.HasPrefix(locator, "tcp:"):
		network = "tcp"
		address = strings.TrimPrefix(locator, "tcp:")
	case strings.HasPrefix(locator, "udp:"):
		address = strings.TrimPrefix(locator, "udp:")
	}

	return &SyslogSource{
		name:    name,
		network: network,
		address: address,
		closed:  make(chan struct{}),
	}
}

func (s *SyslogSource) Name() string {
	return s.name
}

// Addr reports the bound listen address, useful when the configured port is
// ephemeral.
func (s *SyslogSource) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bound
}

func (s *SyslogSource) Stream() (io.Reader, error) {
	msgs := make(chan []byte, messageBacklog)

	var err error
	if s.network == "tcp" {
		err = s.listenTCP(msgs)
	} else {
		err = s.listenUDP(msgs)
	}
	if err != nil {
		return nil, err
	}

	return &chanReader{msgs: msgs}, nil
}

// Close broadcasts shutdown and unblocks every listener and connection
// reader, then waits for them to finish. Idempotent.
func (s *SyslogSource) Close() error {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		return nil
	default:
		close(s.closed)
	}
	for _, c := range s.conns {
		c.Close()
	}
	s.conns = nil
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *SyslogSource) listenUDP(msgs chan<- []byte) error {
	addr, err := net.ResolveUDPAddr("udp", s.address)
	if err != nil {
		return fmt.Errorf("resolve udp %s: %w", s.address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", s.address, err)
	}
	if !s.track(conn, conn.LocalAddr()) {
		return net.ErrClosed
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(msgs)

		buf := make([]byte, 65536) // max UDP payload
		for {
			n, _, err := conn.ReadFromUDP(buf)
			if err != nil {
				s.logReadError("udp", err)
				return
			}
			if n == 0 {
				continue
			}
			if !s.push(msgs, terminated(buf[:n])) {
				return
			}
		}
	}()
	return nil
}

func (s *SyslogSource) listenTCP(msgs chan<- []byte) error {
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("listen tcp %s: %w", s.address, err)
	}
	if !s.track(ln, ln.Addr()) {
		return net.ErrClosed
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var readers sync.WaitGroup
		for {
			conn, err := ln.Accept()
			if err != nil {
				s.logReadError("tcp accept", err)
				break
			}
			if !s.track(conn, nil) {
				break
			}

			readers.Add(1)
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				defer readers.Done()
				defer c.Close()
				s.readLines(c, msgs)
			}(conn)
		}

		// The channel closes only after every connection reader is
		// done; a closed channel with no pending cursor is the
		// reader-side end-of-stream signal.
		readers.Wait()
		close(msgs)
	}()
	return nil
}

func (s *SyslogSource) readLines(conn net.Conn, msgs chan<- []byte) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	for scanner.Scan() {
		if !s.push(msgs, terminated(scanner.Bytes())) {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logReadError("tcp read", err)
	}
}

// push races the send against shutdown so a full channel can never wedge a
// closing source. It reports whether the caller should keep going.
func (s *SyslogSource) push(msgs chan<- []byte, data []byte) bool {
	select {
	case msgs <- data:
		return true
	case <-s.closed:
		return false
	}
}

// track registers a closer so Close can unblock it. A closer arriving after
// shutdown has begun is closed on the spot and rejected: Close has already
// swept the conns slice, so nothing else would ever close it.
func (s *SyslogSource) track(c io.Closer, bound net.Addr) bool {
	s.mu.Lock()
	select {
	case <-s.closed:
		s.mu.Unlock()
		c.Close()
		return false
	default:
	}
	s.conns = append(s.conns, c)
	if bound != nil {
		s.bound = bound
	}
	s.mu.Unlock()
	return true
}

func (s *SyslogSource) logReadError(op string, err error) {
	select {
	case <-s.closed:
		return
	default:
	}
	if !errors.Is(err, net.ErrClosed) {
		log.Printf("[syslog] %s: %s: %v", s.name, op, err)
	}
}

// terminated copies a message and guarantees a trailing newline so the
// scanner on the pull side sees one record per message.
func terminated(msg []byte) []byte {
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		return append([]byte(nil), msg...)
	}
	out := make([]byte, len(msg)+1)
	copy(out, msg)
	out[len(msg)] = '\n'
	return out
}

// chanReader bridges the message-oriented push side to the byte-oriented
// pull side. It keeps a cursor over the in-flight message and pulls the next
// one only once the current one is exhausted; a closed channel with nothing
// pending reads as EOF.
type chanReader struct {
	msgs    <-chan []byte
	pending []byte
}

func (r *chanReader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		msg, ok := <-r.msgs
		if !ok {
			return 0, io.EOF
		}
		r.pending = msg
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}
