package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/lut"
)

type fakeMotor struct {
	tilt         int
	fps          int32
	videoWanted  bool
}

func (m *fakeMotor) Tilt() (int, error)   { return m.tilt, nil }
func (m *fakeMotor) SetTilt(degrees int)  { m.tilt = degrees }
func (m *fakeMotor) FPS() int32           { return m.fps }
func (m *fakeMotor) RequestVideo(on bool) { m.videoWanted = on }

func newTestServer(t *testing.T, motor Motor) (*Server, *catalog.Catalog) {
	t.Helper()
	c := catalog.New(lut.New(), catalog.DefaultStride, catalog.DefaultStride)
	s, err := New("127.0.0.1:0", c, lut.New(), motor)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		s.Stop()
		cancel()
	})
	go s.Run(ctx)
	return s, c
}

func dial(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn, bufio.NewReader(conn)
}

func sendLine(t *testing.T, conn net.Conn, line string) {
	t.Helper()
	if _, err := conn.Write([]byte(line + "\n")); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func readLineWithTimeout(t *testing.T, conn net.Conn, r *bufio.Reader) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return strings.TrimRight(line, "\r\n")
}

func TestVerReportsVersion(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "ver")
	got := readLineWithTimeout(t, conn, r)
	if got != "OK - Version 2" {
		t.Fatalf("got %q, want OK - Version 2", got)
	}
}

func TestHelpListsEveryCommand(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "help")
	header := readLineWithTimeout(t, conn, r)
	if !strings.HasPrefix(header, fmt.Sprintf("OK - %d commands", len(commandTable))) {
		t.Fatalf("unexpected help header: %q", header)
	}
	for i := 0; i < len(commandTable); i++ {
		readLineWithTimeout(t, conn, r)
	}
}

func TestAddZoneBroadcastsToSubscriber(t *testing.T) {
	s, _ := newTestServer(t, nil)

	subConn, subReader := dial(t, s)
	sendLine(t, subConn, "sub")
	if got := readLineWithTimeout(t, subConn, subReader); got != "OK - Subscribed" {
		t.Fatalf("got %q", got)
	}

	addConn, addReader := dial(t, s)
	sendLine(t, addConn, "addzone Living,100,-500,500,2000,500,4000")
	if got := readLineWithTimeout(t, addConn, addReader); got != `OK - Zone "Living" was added.` {
		t.Fatalf("got %q", got)
	}

	got := readLineWithTimeout(t, subConn, subReader)
	if !strings.HasPrefix(got, "ADD - ") || !strings.Contains(got, `name="Living"`) {
		t.Fatalf("subscriber did not receive ADD broadcast, got %q", got)
	}
}

func TestAddZoneRejectsCaseInsensitiveDuplicateName(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "addzone A,1,1,1,2,2,2")
	if got := readLineWithTimeout(t, conn, r); got != `OK - Zone "A" was added.` {
		t.Fatalf("got %q", got)
	}

	sendLine(t, conn, "addzone a,3,3,3,4,4,4")
	if got := readLineWithTimeout(t, conn, r); got != `ERR - Zone "a" already exists.` {
		t.Fatalf("got %q, want the case-insensitive conflict reply", got)
	}
}

func TestZonesReportsCountAndVersion(t *testing.T) {
	s, c := newTestServer(t, nil)
	if _, err := c.Add("Hall", catalog.WorldBox{XMin: 0, XMax: 100, YMin: -50, YMax: 50, ZMin: 500, ZMax: 4000}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	conn, r := dial(t, s)
	sendLine(t, conn, "zones")
	header := readLineWithTimeout(t, conn, r)
	if !strings.HasPrefix(header, "OK - 1 zones") {
		t.Fatalf("got %q", header)
	}
	zoneLine := readLineWithTimeout(t, conn, r)
	if !strings.Contains(zoneLine, `name="Hall"`) {
		t.Fatalf("missing zone line, got %q", zoneLine)
	}
}

func TestTiltClampsToRange(t *testing.T) {
	motor := &fakeMotor{}
	s, _ := newTestServer(t, motor)
	conn, r := dial(t, s)

	sendLine(t, conn, "tilt 90")
	got := readLineWithTimeout(t, conn, r)
	if got != "OK - Tilt 15" {
		t.Fatalf("got %q, want clamped tilt of 15", got)
	}
	if motor.tilt != 15 {
		t.Fatalf("motor.tilt = %d, want 15", motor.tilt)
	}
}

func TestByeHalfClosesConnection(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "bye")
	got := readLineWithTimeout(t, conn, r)
	if got != "OK - Goodbye" {
		t.Fatalf("got %q", got)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected EOF after bye, got n=%d err=%v", n, err)
	}
}

func TestUnknownCommandReturnsErr(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "bogus")
	got := readLineWithTimeout(t, conn, r)
	if !strings.HasPrefix(got, "ERR - ") {
		t.Fatalf("got %q, want an ERR line", got)
	}
}

func TestGetDepthDoesNotClobberUnlimitedSubscription(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "subdepth")
	if got := readLineWithTimeout(t, conn, r); got != "OK - Subscribed to depth" {
		t.Fatalf("got %q", got)
	}

	sendLine(t, conn, "getdepth")
	got := readLineWithTimeout(t, conn, r)
	if got != "ERR - Already subscribed" {
		t.Fatalf("got %q, want ERR - Already subscribed", got)
	}
}

func TestGetBrightRequestsVideoCapture(t *testing.T) {
	motor := &fakeMotor{}
	s, c := newTestServer(t, motor)
	if _, err := c.Add("Hall", catalog.WorldBox{XMin: 0, XMax: 100, YMin: -50, YMax: 50, ZMin: 500, ZMax: 4000}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	conn, r := dial(t, s)

	sendLine(t, conn, "getbright")
	if got := readLineWithTimeout(t, conn, r); got != "OK - Brightness requested" {
		t.Fatalf("got %q", got)
	}
	if !motor.videoWanted {
		t.Fatalf("expected getbright to turn on video capture")
	}

	s.Wakeup() <- 'V'

	got := readLineWithTimeout(t, conn, r)
	if !strings.HasPrefix(got, "BRIGHT - bright=") {
		t.Fatalf("got %q, want a BRIGHT line", got)
	}
	if motor.videoWanted {
		t.Fatalf("expected getbright to turn video capture back off once served")
	}
}

func TestDepthWakeupDeliversBlobToSubscriber(t *testing.T) {
	s, _ := newTestServer(t, nil)
	conn, r := dial(t, s)

	sendLine(t, conn, "subdepth 1")
	if got := readLineWithTimeout(t, conn, r); got != "OK - Subscribed to depth" {
		t.Fatalf("got %q", got)
	}

	s.StoreDepthFrame([]byte{1, 2, 3, 4})
	s.Wakeup() <- 'Z'

	announce := readLineWithTimeout(t, conn, r)
	if !strings.HasPrefix(announce, "DEPTH - 4 bytes follow") {
		t.Fatalf("got %q", announce)
	}
	payload := make([]byte, 4)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := r.Read(payload); err != nil {
		t.Fatalf("reading payload: %v", err)
	}
}
