package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// depthProduceTimeout bounds how long a depth frame callback waits for
// a free buffer before giving up. The sensor's own I/O thread must
// never stall on a slow consumer.
const depthProduceTimeout = time.Millisecond

// maxConsecutiveErrors is how many handler panics a worker tolerates
// before giving up on the pipeline entirely.
const maxConsecutiveErrors = 3

// Kicker is the subset of watchdog.Watchdog the pipeline depends on.
type Kicker interface {
	Kick()
}

// Pipeline owns the depth and video mailboxes, the derived LED and FPS
// state, and the event loop that drives a Device. Construct with New,
// register it with the Device's callbacks, then run RunEventLoop on
// one goroutine and RunDepthWorker/RunVideoWorker each in their own
// goroutine.
type Pipeline struct {
	device Device

	depth *slot
	video *slot

	onDepth DepthHandler
	onVideo VideoHandler

	watchdog Kicker
	wakeup   chan<- rune

	led ledState
	fps *fpsCounter

	busyCount atomic.Uint64

	videoRequested atomic.Bool
	videoStarted   bool
	appliedLED     LED
	ledSet         bool

	pendingTilt    atomic.Int32
	hasPendingTilt atomic.Bool
}

// New builds a Pipeline around device and registers its frame
// callbacks. onDepth and onVideo run synchronously on the respective
// worker goroutine with the buffer locked; wakeup, if non-nil, receives
// a non-blocking 'Z' (depth) or 'V' (video) notification per frame for
// a server's select loop to observe.
func New(device Device, onDepth DepthHandler, onVideo VideoHandler, watchdog Kicker, wakeup chan<- rune) *Pipeline {
	p := &Pipeline{
		device:   device,
		depth:    newSlot(DepthFrameBytes),
		video:    newSlot(VideoFrameBytes),
		onDepth:  onDepth,
		onVideo:  onVideo,
		watchdog: watchdog,
		wakeup:   wakeup,
		fps:      newFPSCounter(),
	}
	device.OnDepthFrame(p.produceDepth)
	device.OnVideoFrame(p.produceVideo)
	return p
}

func (p *Pipeline) produceDepth(frame []byte) {
	if p.depth.produce(frame, depthProduceTimeout) {
		p.busyCount.Add(1)
	}
}

func (p *Pipeline) produceVideo(frame []byte) {
	p.video.produce(frame, 0)
}

// BusyCount returns how many depth frames were dropped because no
// buffer was free within the producer's timeout.
func (p *Pipeline) BusyCount() uint64 { return p.busyCount.Load() }

// FPS returns the current depth frame rate, scaled by 100.
func (p *Pipeline) FPS() int32 { return p.fps.Rate() }

// LED returns the currently applied status LED.
func (p *Pipeline) LED() LED { return p.led.current() }

// RequestVideo sets whether the color stream should be running; the
// event loop starts or stops it on its next pass.
func (p *Pipeline) RequestVideo(on bool) { p.videoRequested.Store(on) }

// SetTilt queues a motor tilt change to be applied on the event loop's
// next pass, if the device has a motor.
func (p *Pipeline) SetTilt(degrees int) {
	p.pendingTilt.Store(int32(degrees))
	p.hasPendingTilt.Store(true)
}

// Tilt returns the device's last-known motor tilt in degrees.
func (p *Pipeline) Tilt() (int, error) { return p.device.Tilt() }

// RunDepthWorker consumes depth frames until ctx is cancelled or the
// handler panics three times in a row.
func (p *Pipeline) RunDepthWorker(ctx context.Context) {
	errs := 0
	for {
		ok := p.depth.consume(ctx, func(data []byte, ts time.Time) {
			defer func() {
				if r := recover(); r != nil {
					errs++
					slog.Error("sensor: depth handler panicked", "error", r, "consecutive", errs)
				}
			}()
			if p.onDepth != nil {
				p.onDepth(data)
			}
			if p.watchdog != nil {
				p.watchdog.Kick()
			}
			p.fps.tick()
			p.led.markDepth()
			p.postWakeup('Z')
			errs = 0
		})
		if !ok {
			return
		}
		if errs >= maxConsecutiveErrors {
			slog.Error("sensor: depth worker exiting after repeated handler errors")
			return
		}
	}
}

// RunVideoWorker mirrors RunDepthWorker for the video mailbox.
func (p *Pipeline) RunVideoWorker(ctx context.Context) {
	errs := 0
	for {
		ok := p.video.consume(ctx, func(data []byte, ts time.Time) {
			defer func() {
				if r := recover(); r != nil {
					errs++
					slog.Error("sensor: video handler panicked", "error", r, "consecutive", errs)
				}
			}()
			if p.onVideo != nil {
				p.onVideo(data)
			}
			p.led.markVideo()
			p.postWakeup('V')
			errs = 0
		})
		if !ok {
			return
		}
		if errs >= maxConsecutiveErrors {
			slog.Error("sensor: video worker exiting after repeated handler errors")
			return
		}
	}
}

func (p *Pipeline) postWakeup(tag rune) {
	if p.wakeup == nil {
		return
	}
	select {
	case p.wakeup <- tag:
	default:
	}
}

// RunEventLoop repeatedly services the device's camera and motor event
// queues, applies any pending LED/tilt changes, and starts or stops the
// color stream per RequestVideo, until ctx is cancelled. It must run on
// a single goroutine: the applied LED and video-stream state are
// touched only here.
func (p *Pipeline) RunEventLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := p.device.ProcessEvents(); err != nil {
			return fmt.Errorf("sensor: process events: %w", err)
		}
		if err := p.device.ProcessMotorEvents(); err != nil {
			slog.Warn("sensor: process motor events", "error", err)
		}

		if p.device.HasMotor() {
			p.applyPendingTilt()
		}
		p.applyLED()
		p.applyVideoRequest()
	}
}

func (p *Pipeline) applyPendingTilt() {
	if !p.hasPendingTilt.CompareAndSwap(true, false) {
		return
	}
	degrees := int(p.pendingTilt.Load())
	if err := p.device.SetTilt(degrees); err != nil {
		slog.Error("sensor: set tilt", "degrees", degrees, "error", err)
	}
}

func (p *Pipeline) applyLED() {
	want := p.led.current()
	if p.ledSet && want == p.appliedLED {
		return
	}
	if err := p.device.SetLED(want); err != nil {
		slog.Error("sensor: set led", "led", want, "error", err)
		return
	}
	p.appliedLED = want
	p.ledSet = true
}

func (p *Pipeline) applyVideoRequest() {
	want := p.videoRequested.Load()
	if want == p.videoStarted {
		return
	}
	var err error
	if want {
		err = p.device.StartVideo()
	} else {
		err = p.device.StopVideo()
	}
	if err != nil {
		slog.Error("sensor: toggle video stream", "want", want, "error", err)
		return
	}
	p.videoStarted = want
}
