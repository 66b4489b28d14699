// Package persistence saves and restores the zone catalog to a small
// text file, atomically replaced on every successful save.
package persistence

import (
	"bufio"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/e7canasta/kndd/internal/catalog"
)

// CurrentFileVersion is the format this package writes. Older versions
// are only ever read, never written.
const CurrentFileVersion = 5

// legacyMetersRescale converts the pre-v3 viewing-angle coordinate
// system to the current one. Files at version 1 or 2 were written
// before the sensor's field-of-view calibration changed; their x/y
// values must be rescaled before the meters-to-millimeters conversion.
const legacyMetersRescale = 0.7594

// Store manages the on-disk representation of a catalog in a given
// directory.
type Store struct {
	dir string
}

// Open validates that dir exists, is a directory, and is writable and
// executable by the effective user, failing loudly exactly as the
// original's startup directory check does.
func Open(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("persistence: stat save dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("persistence: %q is not a directory", dir)
	}
	probe := filepath.Join(dir, ".kndd-write-probe")
	f, err := os.Create(probe)
	if err != nil {
		return nil, fmt.Errorf("persistence: save dir %q is not writable: %w", dir, err)
	}
	f.Close()
	os.Remove(probe)

	return &Store{dir: dir}, nil
}

func (s *Store) path() string {
	return filepath.Join(s.dir, "zones.knd")
}

func (s *Store) tmpPath() string {
	return filepath.Join(s.dir, "zones.knd.tmp")
}

// Save writes the catalog's zones to a temp file beside the target and
// atomically renames it into place. tiltDegrees is the motor tilt to
// persist alongside the zone list.
func (s *Store) Save(c *catalog.Catalog, tiltDegrees int) error {
	tmp := s.tmpPath()
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("persistence: create temp file: %w", err)
	}

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "%d\n", CurrentFileVersion)
	fmt.Fprintf(w, "%d\n", tiltDegrees)
	fmt.Fprintf(w, "%d\n", c.Count())

	var writeErr error
	c.Iterate(func(z *catalog.Zone) bool {
		_, writeErr = fmt.Fprintf(w, "%s,%d,%d,%d,%d,%d,%d,%s,%d,%d,%d,%d\n",
			z.Name,
			z.World.XMin, z.World.YMin, z.World.ZMin,
			z.World.XMax, z.World.YMax, z.World.ZMax,
			z.Param, z.OnLevel, z.OffLevel, z.OnDelay, z.OffDelay,
		)
		return writeErr == nil
	})
	if writeErr != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: write zone line: %w", writeErr)
	}

	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: flush: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("persistence: sync: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: close: %w", err)
	}

	if err := os.Rename(tmp, s.path()); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("persistence: rename into place: %w", err)
	}
	return nil
}

// Load reads the saved zone file, if any, dispatching the parse by its
// declared file_version, and returns the motor tilt it carried. A
// missing file is not an error: it returns (0, nil) for an empty
// catalog.
func (s *Store) Load(c *catalog.Catalog) (tiltDegrees int, err error) {
	f, err := os.Open(s.path())
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("persistence: open: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)

	fileVersion, err := readIntLine(sc)
	if err != nil {
		return 0, fmt.Errorf("persistence: read file_version: %w", err)
	}

	if fileVersion >= 2 {
		tiltDegrees, err = readIntLine(sc)
		if err != nil {
			return 0, fmt.Errorf("persistence: read tilt: %w", err)
		}
	}

	declaredCount, err := readIntLine(sc)
	if err != nil {
		return 0, fmt.Errorf("persistence: read zone count: %w", err)
	}

	c.Clear()
	parsed := 0
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if err := loadZoneLine(c, line, fileVersion); err != nil {
			slog.Warn("persistence: skipping malformed zone line", "error", err)
			continue
		}
		parsed++
	}
	if err := sc.Err(); err != nil {
		return tiltDegrees, fmt.Errorf("persistence: scan: %w", err)
	}

	if parsed != declaredCount {
		slog.Warn("persistence: zone count mismatch, trusting parsed count",
			"declared", declaredCount, "parsed", parsed)
	}
	return tiltDegrees, nil
}

func readIntLine(sc *bufio.Scanner) (int, error) {
	if !sc.Scan() {
		return 0, fmt.Errorf("unexpected end of file")
	}
	return strconv.Atoi(strings.TrimSpace(sc.Text()))
}

// loadZoneLine parses one zone record according to the rules for its
// file_version: v1-v4 store world coordinates as meters (float),
// v1-v2 additionally predate the current viewing-angle calibration and
// need their x/y rescaled before the meters-to-millimeters conversion;
// v5 stores integer millimeters directly. v4+ carries the extended
// attribute tail (param/on_level/off_level/on_delay/off_delay); earlier
// versions fall back to the catalog's defaults for those fields.
func loadZoneLine(c *catalog.Catalog, line string, fileVersion int) error {
	fields := strings.SplitN(line, ",", 12)
	if len(fields) < 7 {
		return fmt.Errorf("expected at least 7 fields, got %d", len(fields))
	}

	name := fields[0]
	if len(name) > catalog.MaxNameLength {
		name = name[:catalog.MaxNameLength]
	}

	var box catalog.WorldBox
	var err error
	if fileVersion <= 4 {
		box, err = parseMeterBox(fields[1:7], fileVersion <= 2)
	} else {
		box, err = parseMMBox(fields[1:7])
	}
	if err != nil {
		return fmt.Errorf("zone %q: %w", name, err)
	}

	z, err := c.Add(name, box)
	if err != nil {
		return fmt.Errorf("zone %q: %w", name, err)
	}

	if fileVersion >= 4 && len(fields) >= 12 {
		if p, ok := parseParamField(fields[7]); ok {
			c.SetAttr(name, "param", p)
		}
		c.SetAttr(name, "on_level", fields[8])
		c.SetAttr(name, "off_level", fields[9])
		c.SetAttr(name, "on_delay", fields[10])
		c.SetAttr(name, "off_delay", fields[11])
	}
	_ = z
	return nil
}

func parseParamField(s string) (string, bool) {
	s = strings.TrimSpace(s)
	switch s {
	case "pop", "sa", "bright", "xc", "yc", "zc":
		return s, true
	default:
		return "", false
	}
}

func parseMeterBox(fields []string, legacyAngle bool) (catalog.WorldBox, error) {
	vals := make([]float64, 6)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return catalog.WorldBox{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	if legacyAngle {
		vals[0] *= legacyMetersRescale // xmin
		vals[1] *= legacyMetersRescale // ymin
		vals[3] *= legacyMetersRescale // xmax
		vals[4] *= legacyMetersRescale // ymax
	}
	return catalog.WorldBox{
		XMin: int32(vals[0] * 1000), YMin: int32(vals[1] * 1000), ZMin: int32(vals[2] * 1000),
		XMax: int32(vals[3] * 1000), YMax: int32(vals[4] * 1000), ZMax: int32(vals[5] * 1000),
	}, nil
}

func parseMMBox(fields []string) (catalog.WorldBox, error) {
	vals := make([]int32, 6)
	for i, f := range fields {
		v, err := strconv.ParseInt(strings.TrimSpace(f), 10, 32)
		if err != nil {
			return catalog.WorldBox{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = int32(v)
	}
	return catalog.WorldBox{
		XMin: vals[0], YMin: vals[1], ZMin: vals[2],
		XMax: vals[3], YMax: vals[4], ZMax: vals[5],
	}, nil
}

// Scheduler wakes periodically (with small jitter) and saves whenever
// the catalog's version has changed since the last successful save and
// the configured interval has elapsed.
type Scheduler struct {
	store        *Store
	catalog      *catalog.Catalog
	interval     time.Duration
	tiltDegrees  func() int
	lastSaved    time.Time
	lastVersion  uint32
	haveVersion  bool
}

// NewScheduler constructs a Scheduler. tiltDegrees is called at save
// time to fetch the current motor tilt to persist.
func NewScheduler(store *Store, c *catalog.Catalog, interval time.Duration, tiltDegrees func() int) *Scheduler {
	return &Scheduler{store: store, catalog: c, interval: interval, tiltDegrees: tiltDegrees}
}

// Run wakes every 500-600ms (randomized jitter, matching the original)
// and calls CheckSave, until stopCh is closed.
func (s *Scheduler) Run(stopCh <-chan struct{}) {
	for {
		jitter := time.Duration(rand.Intn(100)) * time.Millisecond
		select {
		case <-stopCh:
			return
		case <-time.After(500*time.Millisecond + jitter):
		}
		s.CheckSave()
	}
}

// CheckSave saves if the interval has elapsed and the catalog changed
// since the last save.
func (s *Scheduler) CheckSave() {
	if time.Since(s.lastSaved) < s.interval {
		return
	}
	version := s.catalog.Version()
	if s.haveVersion && version == s.lastVersion {
		return
	}

	tilt := 0
	if s.tiltDegrees != nil {
		tilt = s.tiltDegrees()
	}
	if err := s.store.Save(s.catalog, tilt); err != nil {
		slog.Error("persistence: save failed, will retry next interval", "error", err)
		return
	}
	s.lastSaved = time.Now()
	s.lastVersion = version
	s.haveVersion = true
}
