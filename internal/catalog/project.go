package catalog

import "github.com/e7canasta/kndd/internal/lut"

// yOffset centers the sensor's 480-pixel-tall frame inside the
// horizontal projection formula, which is derived for the 640-pixel-wide
// axis: (FrameWidth-FrameHeight)/2.
const yOffset = (FrameWidth - FrameHeight) / 2

// tanScaled is tan(28deg) scaled by 2048 (the reciprocal-multiply
// projection constant from the design notes); reciprocalScale /
// reciprocalShift approximate division by 10 without a float divide.
const (
	tanScaled       = 1089
	reciprocalScale = 0xCCCD
	reciprocalShift = 35
	reciprocalRound = int64(1) << 34
)

// xworld projects a pixel column and a depth in millimeters to a world
// x-coordinate in millimeters, using the sensor's fixed ~56-degree
// horizontal field of view. The formula is fixed-point arithmetic by
// design: bit-compatible results are part of the contract, not an
// optimization.
func xworld(px int32, zw int32) int32 {
	v := (int64(zw) * int64(FrameWidth/2-px) * tanScaled * reciprocalScale) + reciprocalRound
	return int32(v >> reciprocalShift)
}

// yworld is the same projection, recentered for the vertical axis.
func yworld(py int32, zw int32) int32 {
	return xworld(py+yOffset, zw)
}

// xscreen is the inverse of xworld: given a world x-coordinate and a
// depth in millimeters, it returns the pixel column that would project
// to that point.
func xscreen(xw int32, zw int32) int32 {
	if zw == 0 {
		return FrameWidth / 2
	}
	denom := tanScaled * reciprocalScale * int64(zw)
	return int32(FrameWidth/2) - int32((int64(xw)<<reciprocalShift)/denom)
}

// yscreen is the inverse of yworld.
func yscreen(yw int32, zw int32) int32 {
	return xscreen(yw, zw) - yOffset
}

// recalcWorldFromScreen recomputes a zone's world box from its screen
// box after an operator edits screen-space coordinates.
//
// The screen box fixes a depth range (via the raw-depth LUT) and a
// pixel range; a single pixel column maps to different world
// coordinates depending on which depth within that range is used. The
// zone's true world extent is therefore the bounding box over all four
// pixel/depth corner combinations, which keeps the structural invariant
// xmin < xmax (resp. y) intact regardless of which corner happens to be
// the true physical extreme.
func recalcWorldFromScreen(z *Zone, tables *lut.Tables) {
	z.World.ZMin = tables.Depth(int(z.Screen.PxZMin))
	z.World.ZMax = tables.Depth(int(z.Screen.PxZMax))

	xs := [4]int32{
		xworld(z.Screen.PxXMin, z.World.ZMin),
		xworld(z.Screen.PxXMin, z.World.ZMax),
		xworld(z.Screen.PxXMax, z.World.ZMin),
		xworld(z.Screen.PxXMax, z.World.ZMax),
	}
	ys := [4]int32{
		yworld(z.Screen.PxYMin, z.World.ZMin),
		yworld(z.Screen.PxYMin, z.World.ZMax),
		yworld(z.Screen.PxYMax, z.World.ZMin),
		yworld(z.Screen.PxYMax, z.World.ZMax),
	}
	z.World.XMin, z.World.XMax = minMax4(xs)
	z.World.YMin, z.World.YMax = minMax4(ys)
}

// recalcScreenFromWorld is the inverse of recalcWorldFromScreen, used
// after an operator edits world-space coordinates.
func recalcScreenFromWorld(z *Zone, tables *lut.Tables) {
	z.Screen.PxZMin = int32(tables.ReverseDepth(z.World.ZMin))
	z.Screen.PxZMax = int32(tables.ReverseDepth(z.World.ZMax))

	xs := [4]int32{
		xscreen(z.World.XMin, z.World.ZMin),
		xscreen(z.World.XMin, z.World.ZMax),
		xscreen(z.World.XMax, z.World.ZMin),
		xscreen(z.World.XMax, z.World.ZMax),
	}
	ys := [4]int32{
		yscreen(z.World.YMin, z.World.ZMin),
		yscreen(z.World.YMin, z.World.ZMax),
		yscreen(z.World.YMax, z.World.ZMin),
		yscreen(z.World.YMax, z.World.ZMax),
	}
	z.Screen.PxXMin, z.Screen.PxXMax = minMax4(xs)
	z.Screen.PxYMin, z.Screen.PxYMax = minMax4(ys)

	clampScreenAxis(&z.Screen.PxXMin, &z.Screen.PxXMax, 0, FrameWidth-1)
	clampScreenAxis(&z.Screen.PxYMin, &z.Screen.PxYMax, 0, FrameHeight-1)
}

func minMax4(v [4]int32) (min, max int32) {
	min, max = v[0], v[0]
	for _, x := range v[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return
}

func clampScreenAxis(lo, hi *int32, floor, ceil int32) {
	if *lo < floor {
		*lo = floor
	}
	if *hi > ceil {
		*hi = ceil
	}
	if *lo >= *hi {
		*hi = *lo + 1
		if *hi > ceil {
			*hi = ceil
			*lo = *hi - 1
		}
	}
}
