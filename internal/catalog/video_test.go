package catalog

import (
	"testing"

	"github.com/e7canasta/kndd/internal/lut"
)

func TestUpdateVideoFrameAccumulatesBrightnessWithinScreenBox(t *testing.T) {
	c := New(lut.New(), DefaultStride, DefaultStride)
	z, err := c.Add("Box", WorldBox{XMin: -1_000_000, XMax: 1_000_000, YMin: -1_000_000, YMax: 1_000_000, ZMin: 1, ZMax: 10_000})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	frame := make([]byte, FrameWidth*FrameHeight)
	for i := range frame {
		frame[i] = 100
	}

	c.UpdateVideoFrame(frame)

	if z.BSum <= 0 {
		t.Fatalf("expected positive brightness accumulation, got %d", z.BSum)
	}

	bright := bsumToBright(z)
	if bright <= 0 {
		t.Fatalf("expected positive normalized brightness, got %d", bright)
	}
}

func TestUpdateVideoFrameResetsBSumEachPass(t *testing.T) {
	c := New(lut.New(), DefaultStride, DefaultStride)
	z, _ := c.Add("Box", WorldBox{XMin: -1_000_000, XMax: 1_000_000, YMin: -1_000_000, YMax: 1_000_000, ZMin: 1, ZMax: 10_000})

	bright := make([]byte, FrameWidth*FrameHeight)
	for i := range bright {
		bright[i] = 255
	}
	c.UpdateVideoFrame(bright)
	first := z.BSum

	dark := make([]byte, FrameWidth*FrameHeight)
	c.UpdateVideoFrame(dark)

	if z.BSum != 0 {
		t.Fatalf("expected bsum to reset to 0 on an all-dark pass, got %d", z.BSum)
	}
	if first <= z.BSum {
		t.Fatalf("sanity check failed: bright pass should exceed dark pass")
	}
}

func TestBsumToBrightGuardsZeroMaxPop(t *testing.T) {
	z := &Zone{BSum: 1000, MaxPop: 0}
	if got := bsumToBright(z); got != 0 {
		t.Errorf("bsumToBright with zero maxpop = %d, want 0", got)
	}
}

func TestUpdateVideoFrameIgnoresPixelsOutsideScreenBox(t *testing.T) {
	tables := lut.New()
	c := New(tables, DefaultStride, DefaultStride)
	z, err := c.Add("Narrow", WorldBox{XMin: -1, XMax: 1, YMin: -1, YMax: 1, ZMin: 1, ZMax: 2})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	frame := make([]byte, FrameWidth*FrameHeight)
	for i := range frame {
		frame[i] = 200
	}
	c.UpdateVideoFrame(frame)

	// A box this small in world space should project to a screen box far
	// smaller than the whole frame, so bsum should be well under the
	// maximum possible (maxpop * 200).
	if z.BSum >= int64(z.MaxPop)*200 {
		t.Fatalf("expected a narrow zone to sample fewer pixels than the full frame")
	}
}
