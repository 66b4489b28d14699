// Package server implements the line-oriented TCP control protocol:
// a listener plus one reader/writer goroutine pair per connection, all
// funneling into a single core goroutine that owns every catalog
// mutation. This is the Go analogue of the original's single-threaded
// nonblocking-socket event loop: instead of one thread multiplexing
// sockets with an internal wakeup pipe, one goroutine multiplexes
// channels with select.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/lut"
)

// AppVersion is the protocol version reported by the ver and help
// commands.
const AppVersion = 2

// wakeupDepth bounds the buffered wakeup channel; the depth/video
// workers post into it non-blockingly and drop rather than stall.
const wakeupDepth = 64

// Motor is the subset of the sensor pipeline the server's tilt/fps/
// getvideo commands depend on. Defined here, rather than importing
// internal/sensor directly, so this package's only required
// collaborators are the catalog and LUT tables.
type Motor interface {
	Tilt() (int, error)
	SetTilt(degrees int)
	FPS() int32
	RequestVideo(on bool)
}

type eventKind int

const (
	evConnect eventKind = iota
	evLine
	evDisconnect
	evWakeup
	evStop
)

type coreEvent struct {
	kind   eventKind
	client *clientHandle
	line   string
	wake   rune
}

// Server owns the TCP listener and the core goroutine that serializes
// every command against the catalog.
type Server struct {
	listener net.Listener
	catalog  *catalog.Catalog
	tables   *lut.Tables
	motor    Motor

	events chan coreEvent
	wakeup chan rune

	clients     map[uint64]*clientHandle
	nextID      atomic.Uint64
	clientCount atomic.Int64

	depthFrame []byte
	videoFrame []byte
	frameMu    sync.RWMutex

	videoWanters int

	wg sync.WaitGroup
}

// New constructs a Server bound to addr. motor may be nil, in which
// case tilt/fps commands report an error rather than panic, and
// getvideo/getbright are accepted but cannot start the color stream
// (useful for tests that exercise only catalog commands).
func New(addr string, c *catalog.Catalog, tables *lut.Tables, motor Motor) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", addr, err)
	}
	return &Server{
		listener: ln,
		catalog:  c,
		tables:   tables,
		motor:    motor,
		events:   make(chan coreEvent, 256),
		wakeup:   make(chan rune, wakeupDepth),
		clients:  make(map[uint64]*clientHandle),
	}, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// SetMotor attaches the motor collaborator once it exists. The
// orchestrator constructs the server before the sensor pipeline (to get
// the listener bound early) and wires this in once the pipeline is
// built; until it is set, tilt/fps commands report an error and
// getvideo/getbright cannot start the color stream.
func (s *Server) SetMotor(m Motor) { s.motor = m }

// ClientCount returns the number of currently connected clients. Safe
// to call concurrently with the core goroutine.
func (s *Server) ClientCount() int64 { return s.clientCount.Load() }

// Wakeup returns the channel the sensor pipeline posts 'Z'/'V'
// notifications into. A caller-driven Stop posts 'K' on the same
// channel to unwind the core goroutine from outside.
func (s *Server) Wakeup() chan<- rune { return s.wakeup }

// StoreDepthFrame records the latest depth buffer for subscribers. It
// must be safe to call concurrently with the core goroutine's reads.
func (s *Server) StoreDepthFrame(frame []byte) {
	s.frameMu.Lock()
	s.depthFrame = append(s.depthFrame[:0], frame...)
	s.frameMu.Unlock()
}

// StoreVideoFrame mirrors StoreDepthFrame for the video buffer.
func (s *Server) StoreVideoFrame(frame []byte) {
	s.frameMu.Lock()
	s.videoFrame = append(s.videoFrame[:0], frame...)
	s.frameMu.Unlock()
}

func (s *Server) snapshotDepthFrame() []byte {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return append([]byte(nil), s.depthFrame...)
}

func (s *Server) snapshotVideoFrame() []byte {
	s.frameMu.RLock()
	defer s.frameMu.RUnlock()
	return append([]byte(nil), s.videoFrame...)
}

// Run accepts connections and drives the core goroutine until ctx is
// cancelled. It blocks until both have stopped.
func (s *Server) Run(ctx context.Context) error {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop(ctx)
	}()

	s.coreLoop(ctx)
	s.wg.Wait()
	return nil
}

// Stop unblocks Run by closing the listener and posting a shutdown
// wakeup to the core goroutine.
func (s *Server) Stop() {
	_ = s.listener.Close()
	select {
	case s.wakeup <- 'K':
	default:
	}
}

func (s *Server) acceptLoop(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				slog.Debug("server: accept error, stopping accept loop", "error", err)
				return
			}
		}
		id := s.nextID.Add(1)
		ch := newClientHandle(id, conn)

		s.events <- coreEvent{kind: evConnect, client: ch}

		s.wg.Add(2)
		go func() {
			defer s.wg.Done()
			ch.writerLoop()
		}()
		go func() {
			defer s.wg.Done()
			ch.readerLoop(s.events)
		}()
	}
}

func (s *Server) coreLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			switch ev.kind {
			case evConnect:
				s.clients[ev.client.id] = ev.client
				s.clientCount.Add(1)
				slog.Debug("server: client connected", "client_id", ev.client.id, "trace_id", ev.client.traceID, "remote", ev.client.remote)
			case evLine:
				s.handleLine(ev.client, ev.line)
			case evDisconnect:
				delete(s.clients, ev.client.id)
				close(ev.client.out)
				s.clientCount.Add(-1)
				slog.Debug("server: client disconnected", "client_id", ev.client.id, "trace_id", ev.client.traceID)
			}
		case w := <-s.wakeup:
			if !s.drainWakeup(w) {
				return
			}
		}
	}
}

// drainWakeup batches any further buffered wakeup codes with the one
// just received before acting, so a burst of frames produces one
// broadcast pass instead of one per frame. Returns false on a
// shutdown code.
func (s *Server) drainWakeup(first rune) bool {
	sawZ := first == 'Z'
	sawV := first == 'V'
	if first == 'K' {
		return false
	}
	for {
		select {
		case w := <-s.wakeup:
			if w == 'K' {
				return false
			}
			sawZ = sawZ || w == 'Z'
			sawV = sawV || w == 'V'
		default:
			if sawZ {
				s.handleDepthWakeup()
			}
			if sawV {
				s.handleVideoWakeup()
			}
			return true
		}
	}
}

func (s *Server) broadcast(line string) {
	for _, c := range s.clients {
		if c.subGlobal {
			c.sendLine(line)
		}
	}
}
