package catalog

import (
	"strings"
	"sync"

	"github.com/e7canasta/kndd/internal/lut"
)

// DefaultStride is the default pixel-sweep stride on both axes.
const DefaultStride = 2

// Catalog is the thread-safe collection of zones the occupancy engine
// evaluates every frame and the broadcast server reports over its wire
// protocol. The zero value is not usable; construct with New.
type Catalog struct {
	mu sync.Mutex

	zones   []*Zone
	version uint32

	xskip, yskip int32

	depthMap  []uint16 // pairs of (min, max) raw depth index per sampled pixel
	mapDirty  bool

	maxZone       int
	occupiedCount int
	oorTotal      int64

	tables *lut.Tables
}

// New constructs an empty catalog using the given stride for the
// per-frame pixel sweep. A stride of 0 on either axis is corrected to
// DefaultStride.
func New(tables *lut.Tables, xskip, yskip int32) *Catalog {
	if xskip <= 0 {
		xskip = DefaultStride
	}
	if yskip <= 0 {
		yskip = DefaultStride
	}
	return &Catalog{
		tables:   tables,
		xskip:    xskip,
		yskip:    yskip,
		mapDirty: true,
		maxZone:  -1,
	}
}

func (c *Catalog) dirtyDepthMap() {
	c.mapDirty = true
}

func (c *Catalog) bumpVersionLocked() {
	c.version++
	if c.version == VersionSentinel {
		c.version = 0
	}
}

func (c *Catalog) findLocked(name string) *Zone {
	for _, z := range c.zones {
		if strings.EqualFold(z.Name, name) {
			return z
		}
	}
	return nil
}

// Add creates a new zone from a world box and inserts it into the
// catalog. The name must be unique ignoring ASCII case and must not
// contain a comma, newline, or tab.
func (c *Catalog) Add(name string, box WorldBox) (*Zone, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.findLocked(name) != nil {
		return nil, fmtConflict("zone %q already exists", name)
	}

	z := &Zone{
		Name:     name,
		NewZone:  true,
		Param:    ParamPop,
		OnDelay:  1,
		OffDelay: 1,
	}
	applyParamDefaults(z, ParamPop)
	if err := c.setBoxLocked(z, box); err != nil {
		return nil, err
	}

	c.zones = append(c.zones, z)
	c.bumpVersionLocked()
	return z, nil
}

func validateName(name string) error {
	if name == "" {
		return fmtInvalidValue("zone name must not be empty")
	}
	if len(name) > MaxNameLength {
		return fmtInvalidValue("zone name longer than %d bytes", MaxNameLength)
	}
	if strings.ContainsAny(name, ",\n\t\r") {
		return fmtInvalidValue("zone name must not contain comma, newline, or tab")
	}
	return nil
}

// Remove deletes the named zone.
func (c *Catalog) Remove(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, z := range c.zones {
		if strings.EqualFold(z.Name, name) {
			c.zones = append(c.zones[:i], c.zones[i+1:]...)
			c.dirtyDepthMap()
			c.bumpVersionLocked()
			return nil
		}
	}
	return fmtNotFound(name)
}

// Clear removes every zone from the catalog.
func (c *Catalog) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.zones = nil
	c.maxZone = -1
	c.occupiedCount = 0
	c.dirtyDepthMap()
	c.bumpVersionLocked()
}

// FindByName returns the zone with the given name (case-insensitive),
// and whether it was found. The returned Zone must not be mutated
// directly by callers outside this package; use SetBox/SetAttr.
func (c *Catalog) FindByName(name string) (*Zone, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	z := c.findLocked(name)
	return z, z != nil
}

// Iterate calls fn once per zone, in catalog order, holding the
// catalog's lock for the entire traversal. fn must not call back into
// the catalog or it will deadlock. Returning false from fn stops the
// iteration early.
func (c *Catalog) Iterate(fn func(*Zone) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, z := range c.zones {
		if !fn(z) {
			return
		}
	}
}

// Touch clears every zone's new_zone flag and snapshots lastpop and
// lastoccupied, so the next subscription pass only reports genuine
// changes.
func (c *Catalog) Touch() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, z := range c.zones {
		z.NewZone = false
		z.LastPop = z.Pop
		z.LastOccupied = z.Occupied
	}
}

// Count returns the number of zones in the catalog.
func (c *Catalog) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.zones)
}

// OccupiedCount returns how many zones are currently occupied, as of
// the last occupancy pass.
func (c *Catalog) OccupiedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.occupiedCount
}

// Peak returns the name and index of the zone with the largest surface
// area among occupied zones, or ("", -1, false) if none are occupied.
func (c *Catalog) Peak() (name string, index int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxZone < 0 || c.maxZone >= len(c.zones) {
		return "", -1, false
	}
	return c.zones[c.maxZone].Name, c.maxZone, true
}

// Version returns the current catalog version.
func (c *Catalog) Version() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// BumpVersion forces a version increment without any other mutation;
// used by the broadcast server after applying a change that does not
// itself go through SetBox/SetAttr (for example, loading a saved
// catalog).
func (c *Catalog) BumpVersion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bumpVersionLocked()
}

// Stride returns the configured pixel-sweep stride.
func (c *Catalog) Stride() (xskip, yskip int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.xskip, c.yskip
}
