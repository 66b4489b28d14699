package catalog

import "math"

// outOfRangeIndex is the raw depth index the sensor reports when a
// pixel has no valid reading.
const outOfRangeIndex = 2047

// envelopeEmptyMin/Max mark a sampled pixel no zone covers.
const (
	envelopeEmptyMin = math.MaxUint16
	envelopeEmptyMax = 0
)

func depthMapIndex(x, y int32) int {
	return int(y*FrameWidth+x) * 2
}

// rebuildDepthMapLocked recomputes the dense per-pixel raw-depth-index
// envelope (the tightest [min px_z, max px_z] union of every zone
// covering that pixel), used as a cheap per-pixel reject test before
// the more expensive per-zone world-box containment check. Caller must
// hold c.mu.
func (c *Catalog) rebuildDepthMapLocked() {
	size := FrameWidth * FrameHeight * 2
	if len(c.depthMap) != size {
		c.depthMap = make([]uint16, size)
	}
	for y := int32(0); y < FrameHeight; y += c.yskip {
		for x := int32(0); x < FrameWidth; x += c.xskip {
			idx := depthMapIndex(x, y)
			c.depthMap[idx] = envelopeEmptyMin
			c.depthMap[idx+1] = envelopeEmptyMax
		}
	}

	for _, z := range c.zones {
		xmin, xmax := clampInt32(z.Screen.PxXMin, 0, FrameWidth-1), clampInt32(z.Screen.PxXMax, 0, FrameWidth-1)
		ymin, ymax := clampInt32(z.Screen.PxYMin, 0, FrameHeight-1), clampInt32(z.Screen.PxYMax, 0, FrameHeight-1)

		startX := xmin - (xmin % c.xskip)
		if startX < xmin {
			startX += c.xskip
		}
		startY := ymin - (ymin % c.yskip)
		if startY < ymin {
			startY += c.yskip
		}

		// Both bounds are inclusive pixel indices, matching worldContains'
		// and UpdateVideoFrame's closed-box containment.
		for y := startY; y <= ymax; y += c.yskip {
			for x := startX; x <= xmax; x += c.xskip {
				idx := depthMapIndex(x, y)
				if uint16(z.Screen.PxZMin) < c.depthMap[idx] {
					c.depthMap[idx] = uint16(z.Screen.PxZMin)
				}
				if uint16(z.Screen.PxZMax) > c.depthMap[idx+1] {
					c.depthMap[idx+1] = uint16(z.Screen.PxZMax)
				}
			}
		}
	}

	c.mapDirty = false
}

func worldContains(z *Zone, xw, yw, zw int32) bool {
	return xw >= z.World.XMin && xw <= z.World.XMax &&
		yw >= z.World.YMin && yw <= z.World.YMax &&
		zw >= z.World.ZMin && zw <= z.World.ZMax
}

// UpdateDepthFrame runs one full occupancy pass over a packed 11-bit
// depth frame: it rebuilds the depth-range map if dirty, sweeps every
// sampled pixel accumulating each covering zone's population and
// coordinate sums, then recomputes every zone's derived measures and
// debounced occupancy. onTransition, if non-nil, is called once for
// every zone whose Occupied flag flips during this pass (used by the
// optional occupancy event emitter).
//
// UpdateDepthFrame holds the catalog's lock for its entire body: the
// per-zone sums must stay consistent across the whole sweep, and zone
// mutation (SetBox/SetAttr) must not interleave with it.
func (c *Catalog) UpdateDepthFrame(frame []byte, onTransition func(*Zone)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mapDirty {
		c.rebuildDepthMapLocked()
	}

	for _, z := range c.zones {
		z.Pop, z.XSum, z.YSum, z.ZSum = 0, 0, 0, 0
	}

	c.oorTotal = 0
	stride := c.xskip * c.yskip

	for y := int32(0); y < FrameHeight; y += c.yskip {
		for x := int32(0); x < FrameWidth; x += c.xskip {
			pixelIndex := int(y*FrameWidth + x)
			rawZ := pxval11(frame, pixelIndex)
			if rawZ == outOfRangeIndex {
				c.oorTotal += int64(stride)
				continue
			}

			idx := depthMapIndex(x, y)
			envMin, envMax := c.depthMap[idx], c.depthMap[idx+1]
			if uint16(rawZ) < envMin || uint16(rawZ) > envMax {
				continue
			}

			zw := c.tables.Depth(int(rawZ))
			xw := xworld(x, zw)
			yw := yworld(y, zw)

			for _, z := range c.zones {
				if !worldContains(z, xw, yw, zw) {
					continue
				}
				z.Pop += int64(stride)
				z.XSum += int64(stride) * int64(xw)
				z.YSum += int64(stride) * int64(yw)
				z.ZSum += int64(stride) * int64(zw)
			}
		}
	}

	c.finishDepthPassLocked(onTransition)
}

func (c *Catalog) finishDepthPassLocked(onTransition func(*Zone)) {
	c.maxZone = -1
	c.occupiedCount = 0
	var bestSA int32 = -1

	for i, z := range c.zones {
		if z.Pop > 0 {
			z.XC = int32((z.XSum - z.Pop*int64(z.World.XMin)) * 1000 / (z.Pop * int64(z.World.XMax-z.World.XMin)))
			z.YC = int32((z.YSum - z.Pop*int64(z.World.YMin)) * 1000 / (z.Pop * int64(z.World.YMax-z.World.YMin)))
			z.ZC = int32((z.ZSum - z.Pop*int64(z.World.ZMin)) * 1000 / (z.Pop * int64(z.World.ZMax-z.World.ZMin)))
			avgZ := z.ZSum / z.Pop
			z.SA = int32(float32(z.Pop) * c.tables.SurfaceArea(c.tables.ReverseDepth(int32(avgZ))))
		} else {
			z.XC, z.YC, z.ZC, z.SA = -1, -1, -1, 0
		}

		value, allowOccupied := paramValue(z)
		threshold := z.OnLevel
		if z.Occupied {
			threshold = z.OffLevel
		}
		candidate := allowOccupied && value >= threshold

		wasOccupied := z.Occupied
		if candidate != z.Occupied {
			z.Count++
		} else {
			z.Count = 0
		}

		if !z.Occupied && z.Count > z.OnDelay {
			z.Occupied = true
			z.Count = 0
		} else if z.Occupied && z.Count > z.OffDelay {
			z.Occupied = false
			z.Count = 0
		}

		if z.Occupied != wasOccupied && onTransition != nil {
			onTransition(z)
		}
		if z.Occupied {
			c.occupiedCount++
		}
		if z.Occupied && z.SA > bestSA {
			bestSA = z.SA
			c.maxZone = i
		}
	}
}

// paramValue returns the zone's currently-selected derived measure and
// whether occupancy is even allowed to be evaluated this pass. Every
// depth-derived param is gated on a nonzero population: with no pixels
// landing in the box this pass, pop/sa/xc/yc/zc are all meaningless
// zero-population artifacts, not a real "unoccupied" reading, so none
// of them may drive a debounce transition. Bright is driven by the
// video pass, not the depth pass, so it is always allowed here; its
// value is derived from the bsum the most recent video pass
// accumulated, and its debounce runs in this depth pass like every
// other param's.
func paramValue(z *Zone) (value int32, allowOccupied bool) {
	switch z.Param {
	case ParamPop:
		return clampPop(z.Pop), z.Pop > 0
	case ParamSA:
		return z.SA, z.Pop > 0
	case ParamXC:
		return z.XC, z.Pop > 0
	case ParamYC:
		return z.YC, z.Pop > 0
	case ParamZC:
		return z.ZC, z.Pop > 0
	case ParamBright:
		return bsumToBright(z), true
	default:
		return 0, false
	}
}

func clampPop(pop int64) int32 {
	if pop > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(pop)
}
