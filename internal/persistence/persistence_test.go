package persistence

import (
	"os"
	"testing"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/lut"
)

func TestSaveThenLoadRoundTripsV5(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := catalog.New(lut.New(), catalog.DefaultStride, catalog.DefaultStride)
	if _, err := c.Add("Living", catalog.WorldBox{XMin: 100, XMax: 2000, YMin: -500, YMax: 500, ZMin: 500, ZMax: 4000}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := c.SetAttr("Living", "param", "sa"); err != nil {
		t.Fatalf("SetAttr param failed: %v", err)
	}
	if err := c.SetAttr("Living", "on_delay", "5"); err != nil {
		t.Fatalf("SetAttr on_delay failed: %v", err)
	}

	if err := store.Save(c, 7); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := catalog.New(lut.New(), catalog.DefaultStride, catalog.DefaultStride)
	tilt, err := store.Load(loaded)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if tilt != 7 {
		t.Fatalf("tilt = %d, want 7", tilt)
	}

	z, ok := loaded.FindByName("Living")
	if !ok {
		t.Fatalf("expected zone Living to survive round trip")
	}
	if z.World.XMin != 100 || z.World.XMax != 2000 || z.World.YMin != -500 || z.World.YMax != 500 || z.World.ZMin != 500 || z.World.ZMax != 4000 {
		t.Fatalf("world box did not round trip exactly: %+v", z.World)
	}
	if z.Param != catalog.ParamSA {
		t.Fatalf("param did not round trip, got %v", z.Param)
	}
	if z.OnDelay != 5 {
		t.Fatalf("on_delay did not round trip, got %d", z.OnDelay)
	}
}

func TestLoadMissingFileReturnsEmptyCatalog(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	c := catalog.New(lut.New(), catalog.DefaultStride, catalog.DefaultStride)
	tilt, err := store.Load(c)
	if err != nil {
		t.Fatalf("Load on missing file should not error, got %v", err)
	}
	if tilt != 0 {
		t.Fatalf("tilt = %d, want 0", tilt)
	}
	if c.Count() != 0 {
		t.Fatalf("expected empty catalog, got %d zones", c.Count())
	}
}

func TestLoadTrustsParsedCountOnMismatch(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	// Declare 3 zones but only provide 1: the loader should trust the
	// parsed count (1) rather than failing outright.
	content := "5\n0\n3\nOnly,0,0,1,10,10,10,pop,160,140,1,1\n"
	if err := os.WriteFile(store.path(), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := catalog.New(lut.New(), catalog.DefaultStride, catalog.DefaultStride)
	if _, err := store.Load(c); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Count() != 1 {
		t.Fatalf("Count = %d, want 1", c.Count())
	}
}

func TestOpenRejectsNonDirectory(t *testing.T) {
	dir := t.TempDir()
	file := dir + "/not-a-dir"
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Open(file); err == nil {
		t.Fatalf("expected error opening a file as a save directory")
	}
}
