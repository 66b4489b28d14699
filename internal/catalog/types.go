package catalog

import (
	"errors"
	"fmt"
)

// FrameWidth and FrameHeight are the sensor's fixed medium-resolution
// frame dimensions; screen-space zone boxes are bounded by these.
const (
	FrameWidth  = 640
	FrameHeight = 480
)

// MaxPxZ is the largest raw depth index a zone's screen box may reference.
const MaxPxZ = 1092

// MaxNameLength is the longest a zone name may be, in bytes.
const MaxNameLength = 127

// VersionSentinel is the reserved "could not inspect catalog" marker; the
// version counter skips this value on wraparound.
const VersionSentinel = ^uint32(0)

// Param selects which derived per-frame measure drives a zone's occupancy.
type Param int

const (
	ParamPop Param = iota
	ParamSA
	ParamBright
	ParamXC
	ParamYC
	ParamZC
)

func (p Param) String() string {
	switch p {
	case ParamPop:
		return "pop"
	case ParamSA:
		return "sa"
	case ParamBright:
		return "bright"
	case ParamXC:
		return "xc"
	case ParamYC:
		return "yc"
	case ParamZC:
		return "zc"
	default:
		return "unknown"
	}
}

func parseParam(s string) (Param, bool) {
	switch s {
	case "pop":
		return ParamPop, true
	case "sa":
		return ParamSA, true
	case "bright":
		return ParamBright, true
	case "xc":
		return ParamXC, true
	case "yc":
		return ParamYC, true
	case "zc":
		return ParamZC, true
	default:
		return 0, false
	}
}

// paramRange describes a param's legal threshold range and the default
// on/off thresholds a zone adopts when it switches to that param.
type paramRange struct {
	min, max       int32
	defOn, defOff  int32
}

var paramRanges = map[Param]paramRange{
	ParamPop:    {min: 0, max: FrameWidth * FrameHeight, defOn: 160, defOff: 140},
	ParamSA:     {min: 0, max: FrameWidth * FrameHeight * 150, defOn: 3000, defOff: 1000},
	ParamBright: {min: 0, max: 1000, defOn: 350, defOff: 150},
	ParamXC:     {min: 0, max: 1000, defOn: 600, defOff: 400},
	ParamYC:     {min: 0, max: 1000, defOn: 600, defOff: 400},
	ParamZC:     {min: 0, max: 1000, defOn: 600, defOff: 400},
}

// WorldBox is a zone's world-space millimeter box.
type WorldBox struct {
	XMin, XMax int32
	YMin, YMax int32
	ZMin, ZMax int32
}

// ScreenBox is a zone's screen-space pixel/raw-depth box.
type ScreenBox struct {
	PxXMin, PxXMax int32
	PxYMin, PxYMax int32
	PxZMin, PxZMax int32
}

// Zone is a named rectangular volume tracked by the catalog.
type Zone struct {
	Name    string
	NewZone bool

	World  WorldBox
	Screen ScreenBox

	Negate   bool
	Param    Param
	OnLevel  int32
	OffLevel int32
	OnDelay  int32
	OffDelay int32

	// Live per-frame counters, reset and accumulated by the occupancy engine.
	Pop  int64
	XSum int64
	YSum int64
	ZSum int64
	BSum int64

	// Derived per frame.
	XC, YC, ZC int32
	SA         int32
	MaxPop     int32

	// Debounce state.
	Occupied     bool
	LastOccupied bool
	LastPop      int64
	Count        int32
}

// ReportedOccupied is the value the broadcast server puts on the wire:
// the debounced occupancy flag XORed with the zone's negate setting.
func (z *Zone) ReportedOccupied() bool {
	return z.Occupied != z.Negate
}

// Errors returned by catalog operations. Callers should compare with
// errors.Is, not direct equality, since these are frequently wrapped
// with additional context (the offending name, attribute, or value).
var (
	ErrNotFound     = errors.New("zone not found")
	ErrConflict     = errors.New("zone conflict")
	ErrInvalidAttr  = errors.New("invalid attribute")
	ErrInvalidValue = errors.New("invalid value")
)

func fmtNotFound(name string) error {
	return fmt.Errorf("%w: %q", ErrNotFound, name)
}

func fmtConflict(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

func fmtInvalidAttr(attr string) error {
	return fmt.Errorf("%w: %q", ErrInvalidAttr, attr)
}

func fmtInvalidValue(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidValue, fmt.Sprintf(format, args...))
}
