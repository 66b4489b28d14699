// Package sim implements sensor.Device without hardware: a GStreamer
// videotestsrc pipeline stands in for the depth camera, and every
// sampled buffer is turned into a synthetic packed-11-bit depth frame
// (a deterministic radial gradient) and a synthetic single-channel
// video frame (the sampled luma plane itself). It exists purely for
// development and tests; a real vendor binding is a second
// sensor.Device implementation an operator can supply.
package sim

import (
	"fmt"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/kndd/internal/sensor"
)

const (
	frameWidth  = 640
	frameHeight = 480

	// depthIndexMin/Max bound the synthetic radial gradient; MaxPxZ in
	// the catalog package is 1092, so frames generated here stay inside
	// a range zone screen boxes can actually see.
	depthIndexMin = 200
	depthIndexMax = 1080
)

// Device is a GStreamer-backed sensor.Device with no tilt motor.
type Device struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink

	depthHandler sensor.DepthHandler
	videoHandler sensor.VideoHandler

	frameCount atomic.Uint64

	led            atomic.Int32
	tilt           atomic.Int32
	videoRequested atomic.Bool
}

// New builds and starts a videotestsrc-backed pipeline. The pattern
// argument selects the GStreamer videotestsrc pattern (e.g. "smpte",
// "ball"); an empty string uses the element's default.
func New(pattern string) (*Device, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("sim: create pipeline: %w", err)
	}

	src, err := gst.NewElement("videotestsrc")
	if err != nil {
		return nil, fmt.Errorf("sim: create videotestsrc: %w", err)
	}
	src.SetProperty("is-live", true)
	if pattern != "" {
		src.SetProperty("pattern", pattern)
	}

	convert, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("sim: create videoconvert: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("sim: create capsfilter: %w", err)
	}
	caps := gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=GRAY8,width=%d,height=%d,framerate=30/1", frameWidth, frameHeight))
	capsfilter.SetProperty("caps", caps)

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("sim: create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	if err := pipeline.AddMany(src, convert, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("sim: add elements: %w", err)
	}
	if err := gst.ElementLinkMany(src, convert, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("sim: link elements: %w", err)
	}

	d := &Device{pipeline: pipeline, appsink: appsink}

	appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: d.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return nil, fmt.Errorf("sim: start pipeline: %w", err)
	}
	return d, nil
}

func (d *Device) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	luma := mapInfo.Bytes()
	defer buffer.Unmap()

	if len(luma) == 0 {
		slog.Warn("sim: empty buffer received")
		return gst.FlowOK
	}

	n := d.frameCount.Add(1)

	if d.videoHandler != nil && d.videoRequested.Load() {
		video := make([]byte, sensor.VideoFrameBytes)
		copy(video, luma)
		d.videoHandler(video)
	}

	if d.depthHandler != nil {
		d.depthHandler(syntheticDepthFrame(n))
	}

	return gst.FlowOK
}

// syntheticDepthFrame builds a packed-11-bit depth frame whose raw
// depth index grows radially from the frame center, breathing slowly
// with the frame counter so repeated calls are not static but remain a
// pure function of n.
func syntheticDepthFrame(n uint64) []byte {
	frame := make([]byte, sensor.DepthFrameBytes)

	cx, cy := float64(frameWidth)/2, float64(frameHeight)/2
	maxDist := math.Hypot(cx, cy)
	phase := float64(n%200) / 200 // 0..1, slow breathing cycle

	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			dist := math.Hypot(float64(x)-cx, float64(y)-cy)
			t := dist / maxDist
			breathing := 1 + 0.1*math.Sin(2*math.Pi*phase)
			index := depthIndexMin + t*breathing*(depthIndexMax-depthIndexMin)
			if index < depthIndexMin {
				index = depthIndexMin
			}
			if index > depthIndexMax {
				index = depthIndexMax
			}
			pack11(frame, y*frameWidth+x, uint16(index))
		}
	}
	return frame
}

// pack11 writes an 11-bit value into a packed-11-bit-per-pixel frame
// buffer at pixelIndex, in the same bit layout catalog.pxval11 reads
// back out: three bytes composed into a 24-bit window, the 11-bit
// field sitting at bit offset 13-bitOffset from the top.
func pack11(frame []byte, pixelIndex int, value uint16) {
	bitIndex := pixelIndex * 11
	byteIndex := bitIndex / 8
	bitOffset := bitIndex % 8
	shift := uint(13 - bitOffset)

	v := uint32(value&0x7FF) << shift
	mask := uint32(0x7FF) << shift

	if byteIndex < len(frame) {
		cleared := uint32(frame[byteIndex])<<16 &^ (mask & 0xFF0000)
		frame[byteIndex] = byte((cleared | (v & 0xFF0000)) >> 16)
	}
	if byteIndex+1 < len(frame) {
		cleared := uint32(frame[byteIndex+1])<<8 &^ (mask & 0x00FF00)
		frame[byteIndex+1] = byte((cleared | (v & 0x00FF00)) >> 8)
	}
	if byteIndex+2 < len(frame) {
		cleared := uint32(frame[byteIndex+2]) &^ (mask & 0x0000FF)
		frame[byteIndex+2] = byte(cleared | (v & 0x0000FF))
	}
}

func (d *Device) ProcessEvents() error {
	bus := d.pipeline.GetPipelineBus()
	msg := bus.TimedPop(50 * time.Millisecond)
	if msg == nil {
		return nil
	}
	switch msg.Type() {
	case gst.MessageEOS:
		return fmt.Errorf("sim: end of stream")
	case gst.MessageError:
		gerr := msg.ParseError()
		return fmt.Errorf("sim: pipeline error: %s", gerr.Error())
	default:
		return nil
	}
}

func (d *Device) ProcessMotorEvents() error { return nil }

func (d *Device) HasMotor() bool { return false }

func (d *Device) SetLED(l sensor.LED) error {
	d.led.Store(int32(l))
	return nil
}

func (d *Device) SetTilt(degrees int) error {
	d.tilt.Store(int32(degrees))
	return nil
}

func (d *Device) Tilt() (int, error) {
	return int(d.tilt.Load()), nil
}

func (d *Device) StartVideo() error {
	d.videoRequested.Store(true)
	return nil
}

func (d *Device) StopVideo() error {
	d.videoRequested.Store(false)
	return nil
}

func (d *Device) OnDepthFrame(h sensor.DepthHandler) { d.depthHandler = h }
func (d *Device) OnVideoFrame(h sensor.VideoHandler) { d.videoHandler = h }

func (d *Device) Close() error {
	return d.pipeline.SetState(gst.StateNull)
}
