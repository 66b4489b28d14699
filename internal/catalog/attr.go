package catalog

import (
	"strconv"
	"strings"
)

// parseNumeric implements the original's permissive numeric parse:
// "true"/"false" map to 1/0, otherwise the leading run of an optional
// sign and digits is parsed and any non-numeric tail is ignored.
func parseNumeric(value string) (int64, error) {
	switch strings.ToLower(value) {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	}

	end := 0
	if end < len(value) && (value[end] == '+' || value[end] == '-') {
		end++
	}
	start := end
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	if end == start {
		return 0, fmtInvalidValue("%q is not numeric", value)
	}
	return strconv.ParseInt(value[:end], 10, 64)
}

func clampInt32(v, lo, hi int32) int32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// updateMaxPop recomputes the cached screen-box area used to normalize
// brightness; it is always at least 1 so a zero-area zone still divides
// cleanly.
func updateMaxPop(z *Zone) {
	area := (z.Screen.PxXMax - z.Screen.PxXMin) * (z.Screen.PxYMax - z.Screen.PxYMin)
	if area < 1 {
		area = 1
	}
	z.MaxPop = area
}

// applyParamDefaults resets a zone's occupancy state and loads the new
// param's default thresholds, matching the original's "switching param
// starts the debounce state machine over" behavior.
func applyParamDefaults(z *Zone, p Param) {
	z.Param = p
	z.Occupied = false
	z.Count = 0
	r := paramRanges[p]
	z.OnLevel = r.defOn
	z.OffLevel = r.defOff
}

func (c *Catalog) setBoxLocked(z *Zone, box WorldBox) error {
	if box.XMin == box.XMax {
		box.XMax++
	}
	if box.YMin == box.YMax {
		box.YMax++
	}
	if box.ZMin <= 0 {
		box.ZMin = 1
	}
	if box.ZMin == box.ZMax {
		box.ZMax++
	}
	if box.XMin >= box.XMax || box.YMin >= box.YMax || box.ZMin >= box.ZMax {
		return fmtConflict("malformed box for zone %q", z.Name)
	}

	z.World = box
	recalcScreenFromWorld(z, c.tables)
	updateMaxPop(z)
	c.dirtyDepthMap()
	return nil
}

// SetBox replaces a zone's world box and recomputes its screen box.
func (c *Catalog) SetBox(name string, box WorldBox) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.findLocked(name)
	if z == nil {
		return fmtNotFound(name)
	}
	if err := c.setBoxLocked(z, box); err != nil {
		return err
	}
	z.NewZone = true
	c.bumpVersionLocked()
	return nil
}

// readOnlyAttrs can be read via zone formatting but never set directly.
var readOnlyAttrs = map[string]bool{
	"pop": true, "maxpop": true, "xc": true, "yc": true,
	"zc": true, "sa": true, "occupied": true, "name": true,
}

// SetAttr updates a single named attribute of a zone by its string key
// and value, applying the same clamp/recompute/monotonicity rules the
// occupancy engine and the broadcast protocol depend on.
func (c *Catalog) SetAttr(name, attr, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	z := c.findLocked(name)
	if z == nil {
		return fmtNotFound(name)
	}

	if readOnlyAttrs[attr] {
		return fmtInvalidAttr(attr)
	}

	switch attr {
	case "negate":
		n, err := parseNumeric(value)
		if err != nil {
			return err
		}
		z.Negate = n != 0

	case "param":
		p, ok := parseParam(value)
		if !ok {
			return fmtInvalidValue("unknown param %q", value)
		}
		applyParamDefaults(z, p)

	case "on_level", "off_level":
		n, err := parseNumeric(value)
		if err != nil {
			return err
		}
		r := paramRanges[z.Param]
		level := clampInt32(int32(n), r.min, r.max)
		if attr == "on_level" {
			z.OnLevel = level
			if z.OffLevel > z.OnLevel {
				z.OffLevel = z.OnLevel
			}
		} else {
			z.OffLevel = level
			if z.OnLevel < z.OffLevel {
				z.OnLevel = z.OffLevel
			}
		}

	case "on_delay", "off_delay":
		n, err := parseNumeric(value)
		if err != nil {
			return err
		}
		delay := n
		if delay < 0 {
			delay = 0
		}
		if attr == "on_delay" {
			z.OnDelay = int32(delay)
		} else {
			z.OffDelay = int32(delay)
		}

	case "xmin", "xmax", "ymin", "ymax", "zmin", "zmax":
		n, err := parseNumeric(value)
		if err != nil {
			return err
		}
		if err := c.setWorldAxisLocked(z, attr, int32(n)); err != nil {
			return err
		}

	case "px_xmin", "px_xmax", "px_ymin", "px_ymax", "px_zmin", "px_zmax":
		n, err := parseNumeric(value)
		if err != nil {
			return err
		}
		if err := c.setScreenAxisLocked(z, attr, int32(n)); err != nil {
			return err
		}

	default:
		return fmtInvalidAttr(attr)
	}

	z.NewZone = true
	c.bumpVersionLocked()
	return nil
}

// setWorldAxisLocked implements the "clamp the other endpoint outward
// by 1mm if the invariant would break" rule for a single world axis,
// then triggers a world-to-screen recompute.
func (c *Catalog) setWorldAxisLocked(z *Zone, attr string, v int32) error {
	switch attr {
	case "xmin":
		z.World.XMin = v
		if z.World.XMin >= z.World.XMax {
			z.World.XMax = z.World.XMin + 1
		}
	case "xmax":
		z.World.XMax = v
		if z.World.XMax <= z.World.XMin {
			z.World.XMin = z.World.XMax - 1
		}
	case "ymin":
		z.World.YMin = v
		if z.World.YMin >= z.World.YMax {
			z.World.YMax = z.World.YMin + 1
		}
	case "ymax":
		z.World.YMax = v
		if z.World.YMax <= z.World.YMin {
			z.World.YMin = z.World.YMax - 1
		}
	case "zmin":
		if v < 1 {
			v = 1
		}
		z.World.ZMin = v
		if z.World.ZMin >= z.World.ZMax {
			z.World.ZMax = z.World.ZMin + 1
		}
	case "zmax":
		z.World.ZMax = v
		if z.World.ZMax <= z.World.ZMin {
			z.World.ZMin = z.World.ZMax - 1
		}
		if z.World.ZMin < 1 {
			z.World.ZMin = 1
			if z.World.ZMax <= z.World.ZMin {
				z.World.ZMax = z.World.ZMin + 1
			}
		}
	}
	recalcScreenFromWorld(z, c.tables)
	updateMaxPop(z)
	c.dirtyDepthMap()
	return nil
}

// setScreenAxisLocked implements the "clamp so the opposite endpoint
// differs by >=1 (px_z allows equality)" rule, then triggers a
// screen-to-world recompute.
func (c *Catalog) setScreenAxisLocked(z *Zone, attr string, v int32) error {
	switch attr {
	case "px_xmin":
		z.Screen.PxXMin = clampInt32(v, 0, FrameWidth-2)
		if z.Screen.PxXMin >= z.Screen.PxXMax {
			z.Screen.PxXMax = clampInt32(z.Screen.PxXMin+1, 0, FrameWidth-1)
		}
	case "px_xmax":
		z.Screen.PxXMax = clampInt32(v, 1, FrameWidth-1)
		if z.Screen.PxXMax <= z.Screen.PxXMin {
			z.Screen.PxXMin = clampInt32(z.Screen.PxXMax-1, 0, FrameWidth-1)
		}
	case "px_ymin":
		z.Screen.PxYMin = clampInt32(v, 0, FrameHeight-2)
		if z.Screen.PxYMin >= z.Screen.PxYMax {
			z.Screen.PxYMax = clampInt32(z.Screen.PxYMin+1, 0, FrameHeight-1)
		}
	case "px_ymax":
		z.Screen.PxYMax = clampInt32(v, 1, FrameHeight-1)
		if z.Screen.PxYMax <= z.Screen.PxYMin {
			z.Screen.PxYMin = clampInt32(z.Screen.PxYMax-1, 0, FrameHeight-1)
		}
	case "px_zmin":
		z.Screen.PxZMin = clampInt32(v, 0, MaxPxZ)
		if z.Screen.PxZMin > z.Screen.PxZMax {
			z.Screen.PxZMax = z.Screen.PxZMin
		}
	case "px_zmax":
		z.Screen.PxZMax = clampInt32(v, 0, MaxPxZ)
		if z.Screen.PxZMax < z.Screen.PxZMin {
			z.Screen.PxZMin = z.Screen.PxZMax
		}
	}
	recalcWorldFromScreen(z, c.tables)
	updateMaxPop(z)
	c.dirtyDepthMap()
	return nil
}
