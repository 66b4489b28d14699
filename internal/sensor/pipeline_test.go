package sensor

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeDevice struct {
	mu sync.Mutex

	depthHandler DepthHandler
	videoHandler VideoHandler

	hasMotor bool
	tilt     int
	led      LED

	videoStarted bool
}

func (f *fakeDevice) ProcessEvents() error      { return nil }
func (f *fakeDevice) ProcessMotorEvents() error { return nil }
func (f *fakeDevice) HasMotor() bool            { return f.hasMotor }
func (f *fakeDevice) Close() error              { return nil }

func (f *fakeDevice) SetLED(l LED) error {
	f.mu.Lock()
	f.led = l
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) SetTilt(degrees int) error {
	f.mu.Lock()
	f.tilt = degrees
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) Tilt() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tilt, nil
}

func (f *fakeDevice) StartVideo() error {
	f.mu.Lock()
	f.videoStarted = true
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) StopVideo() error {
	f.mu.Lock()
	f.videoStarted = false
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) OnDepthFrame(h DepthHandler) { f.depthHandler = h }
func (f *fakeDevice) OnVideoFrame(h VideoHandler) { f.videoHandler = h }

func (f *fakeDevice) pushDepth(frame []byte) { f.depthHandler(frame) }
func (f *fakeDevice) pushVideo(frame []byte) { f.videoHandler(frame) }

func TestDepthFrameRoundTripsToHandler(t *testing.T) {
	dev := &fakeDevice{}
	var got []byte
	done := make(chan struct{})
	p := New(dev, func(frame []byte) {
		got = append([]byte{}, frame...)
		close(done)
	}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunDepthWorker(ctx)

	frame := make([]byte, DepthFrameBytes)
	frame[0] = 0xAB
	dev.pushDepth(frame)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("depth handler was not invoked")
	}
	if got[0] != 0xAB {
		t.Fatalf("frame data was not copied through to handler")
	}
}

func TestDepthProducerDropsUnderBackpressure(t *testing.T) {
	dev := &fakeDevice{}
	block := make(chan struct{})
	p := New(dev, func(frame []byte) {
		<-block
	}, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunDepthWorker(ctx)

	frame := make([]byte, DepthFrameBytes)
	dev.pushDepth(frame) // consumed immediately, handler now blocked on <-block

	time.Sleep(10 * time.Millisecond)
	dev.pushDepth(frame) // buffer still held by blocked handler: should drop

	close(block)

	if p.BusyCount() == 0 {
		t.Fatalf("expected at least one dropped frame under backpressure")
	}
}

func TestRequestVideoAppliedByEventLoop(t *testing.T) {
	dev := &fakeDevice{}
	p := New(dev, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunEventLoop(ctx)

	p.RequestVideo(true)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		dev.mu.Lock()
		started := dev.videoStarted
		dev.mu.Unlock()
		if started {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("event loop did not start video stream")
}

func TestSetTiltAppliedOnlyWhenMotorPresent(t *testing.T) {
	dev := &fakeDevice{hasMotor: true}
	p := New(dev, nil, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.RunEventLoop(ctx)

	p.SetTilt(15)
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		tilt, _ := dev.Tilt()
		if tilt == 15 {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("event loop did not apply pending tilt")
}

func TestLEDEscalatesFromGreenToYellow(t *testing.T) {
	var l ledState
	if l.current() != LEDGreen {
		t.Fatalf("fresh led state should be green")
	}
	l.markDepth()
	if l.current() != LEDYellow {
		t.Fatalf("led should be yellow immediately after a depth pull")
	}
}

func TestLEDRedDominatesYellow(t *testing.T) {
	var l ledState
	l.markDepth()
	l.markVideo()
	if l.current() != LEDRed {
		t.Fatalf("led should be red when both depth and video are recent")
	}
}
