package catalog

// videoStride is the fixed sampling stride for the brightness sweep.
// The video sensor delivers a Bayer-pattern frame; stride 8 starting at
// column 1 lands consistently on a green cell.
const videoStride = 8

// UpdateVideoFrame sweeps a single-channel video frame, accumulating
// brightness into every zone whose screen box covers a sampled pixel.
// Unlike UpdateDepthFrame this never touches world coordinates: zone
// containment here is pixel-space only, and nothing in this pass
// affects occupancy directly. A zone using the bright param has its
// debounce evaluated on the next depth pass, against whatever bsum this
// call last computed.
func (c *Catalog) UpdateVideoFrame(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, z := range c.zones {
		z.BSum = 0
	}

	for y := int32(0); y < FrameHeight; y += videoStride {
		for x := int32(1); x < FrameWidth; x += videoStride {
			pixelIndex := int(y*FrameWidth + x)
			if pixelIndex >= len(frame) {
				continue
			}
			value := int64(frame[pixelIndex])

			for _, z := range c.zones {
				if x >= z.Screen.PxXMin && x <= z.Screen.PxXMax &&
					y >= z.Screen.PxYMin && y <= z.Screen.PxYMax {
					z.BSum += value
				}
			}
		}
	}
}

// bsumToBright converts a zone's raw brightness accumulator into the
// normalized [0,1000]-ish scale the bright param and the BRIGHT wire
// message both use: bsum scaled by 256 and normalized by the zone's
// cached screen-space area.
func bsumToBright(z *Zone) int32 {
	if z.MaxPop <= 0 {
		return 0
	}
	return int32(z.BSum * 256 / int64(z.MaxPop))
}

// Bright returns the zone's current brightness on the same normalized
// scale bsumToBright feeds the bright param, for callers outside this
// package that need to report it (the BRIGHT wire message).
func (z *Zone) Bright() int32 {
	return bsumToBright(z)
}
