package server

import (
	"bufio"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/google/uuid"
)

// outboxDepth is the per-client outbound queue depth. A client that
// cannot keep up has lines dropped rather than blocking the core
// goroutine or the writer.
const outboxDepth = 256

// maxLineLength bounds an inbound command line; a longer line without
// a terminator is treated as a protocol violation.
const maxLineLength = 131072

// outMsg is either a text line (newline appended on write) or a raw
// byte payload (written verbatim, used for depth/video blobs following
// their announcement line).
type outMsg struct {
	line string
	raw  []byte
}

// clientHandle is the core goroutine's exclusive view of one
// connection's protocol state. Only the core goroutine ever reads or
// mutates the subscription fields; the reader/writer goroutines only
// move bytes.
type clientHandle struct {
	id      uint64
	traceID uuid.UUID
	remote  string
	conn    net.Conn
	out     chan outMsg

	subGlobal bool

	depthSub    bool
	depthBudget int // -1 = unlimited, >0 = remaining frames, 0 = unsubscribed

	brightPending bool
	videoPending  bool

	shuttingDown atomic.Bool
}

func newClientHandle(id uint64, conn net.Conn) *clientHandle {
	return &clientHandle{
		id:      id,
		traceID: uuid.New(),
		remote:  conn.RemoteAddr().String(),
		conn:    conn,
		out:     make(chan outMsg, outboxDepth),
	}
}

func (c *clientHandle) sendLine(line string) {
	if c.shuttingDown.Load() {
		return
	}
	select {
	case c.out <- outMsg{line: line}:
	default:
		slog.Warn("server: dropping outbound line, client outbox full", "client_id", c.id)
	}
}

func (c *clientHandle) sendRaw(announce string, payload []byte) {
	if c.shuttingDown.Load() {
		return
	}
	select {
	case c.out <- outMsg{line: announce}:
	default:
		slog.Warn("server: dropping blob announcement, client outbox full", "client_id", c.id)
		return
	}
	select {
	case c.out <- outMsg{raw: payload}:
	default:
		slog.Warn("server: dropping blob payload, client outbox full", "client_id", c.id)
	}
}

// writerLoop drains out until it is closed, a shutdown has been
// requested and the queue empties, or conn errors; then half-closes
// the write side.
func (c *clientHandle) writerLoop() {
	for msg := range c.out {
		var err error
		if msg.raw != nil {
			_, err = c.conn.Write(msg.raw)
		} else {
			_, err = c.conn.Write([]byte(msg.line + "\n"))
		}
		if err != nil {
			slog.Debug("server: write error, closing connection", "client_id", c.id, "error", err)
			break
		}
		if c.shuttingDown.Load() && len(c.out) == 0 {
			break
		}
	}
	if tc, ok := c.conn.(*net.TCPConn); ok {
		_ = tc.CloseWrite()
	} else {
		_ = c.conn.Close()
	}
}

// requestShutdown marks the client for half-close once its outbound
// queue drains. Callers must send any final lines before calling this.
func (c *clientHandle) requestShutdown() {
	c.shuttingDown.Store(true)
	// An empty payload wakes writerLoop even if the queue already drained,
	// so it observes the flag and half-closes.
	select {
	case c.out <- outMsg{raw: []byte{}}:
	default:
	}
}

// readerLoop scans CR/LF-terminated lines off conn and forwards them
// to events as evLine, until EOF, an error, or a line exceeds
// maxLineLength without a terminator.
func (c *clientHandle) readerLoop(events chan<- coreEvent) {
	defer func() { events <- coreEvent{kind: evDisconnect, client: c} }()

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 0, maxLineLength), maxLineLength)
	scanner.Split(splitCROrLF)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		events <- coreEvent{kind: evLine, client: c, line: line}
	}
	if err := scanner.Err(); err != nil {
		c.sendLine("ERR - Buffer overflow")
		c.sendLine("ERR - line too long, closing connection")
		c.sendLine("ERR - Goodbye")
	}
}

// splitCROrLF is a bufio.SplitFunc that treats either CR or LF as a
// line terminator, matching the protocol's "terminated by CR or LF,
// either" rule. A CRLF pair yields one empty token between the two
// terminators, which readerLoop silently skips.
func splitCROrLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i, b := range data {
		if b == '\n' || b == '\r' {
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}
