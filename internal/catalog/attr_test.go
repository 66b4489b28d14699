package catalog

import (
	"testing"
)

func TestParseNumericAcceptsBooleanWords(t *testing.T) {
	v, err := parseNumeric("true")
	if err != nil || v != 1 {
		t.Fatalf("parseNumeric(true) = (%d, %v), want (1, nil)", v, err)
	}
	v, err = parseNumeric("FALSE")
	if err != nil || v != 0 {
		t.Fatalf("parseNumeric(FALSE) = (%d, %v), want (0, nil)", v, err)
	}
}

func TestParseNumericIgnoresTrailingGarbage(t *testing.T) {
	v, err := parseNumeric("42mm")
	if err != nil || v != 42 {
		t.Fatalf("parseNumeric(42mm) = (%d, %v), want (42, nil)", v, err)
	}
	v, err = parseNumeric("-7 meters")
	if err != nil || v != -7 {
		t.Fatalf("parseNumeric(-7 meters) = (%d, %v), want (-7, nil)", v, err)
	}
}

func TestParseNumericRejectsNonNumeric(t *testing.T) {
	if _, err := parseNumeric("abc"); err == nil {
		t.Fatalf("expected error for non-numeric input")
	}
}

func TestSetAttrXminGrowsXmaxWhenCollapsed(t *testing.T) {
	c := newTestCatalog()
	c.Add("Z", WorldBox{XMin: 0, XMax: 100, YMin: 0, YMax: 100, ZMin: 1, ZMax: 100})

	if err := c.SetAttr("Z", "xmin", "100"); err != nil {
		t.Fatalf("SetAttr xmin failed: %v", err)
	}
	z, _ := c.FindByName("Z")
	if z.World.XMin != 100 || z.World.XMax != 101 {
		t.Fatalf("expected xmax pushed to 101 when xmin catches up, got xmin=%d xmax=%d", z.World.XMin, z.World.XMax)
	}
}

func TestSetAttrZminFloorsAtOne(t *testing.T) {
	c := newTestCatalog()
	c.Add("Z", WorldBox{XMin: 0, XMax: 100, YMin: 0, YMax: 100, ZMin: 1, ZMax: 100})

	if err := c.SetAttr("Z", "zmin", "-50"); err != nil {
		t.Fatalf("SetAttr zmin failed: %v", err)
	}
	z, _ := c.FindByName("Z")
	if z.World.ZMin != 1 {
		t.Fatalf("expected zmin floored to 1, got %d", z.World.ZMin)
	}
}

func TestSetAttrPxXminClampsToFrame(t *testing.T) {
	c := newTestCatalog()
	c.Add("Z", WorldBox{XMin: -1000, XMax: 1000, YMin: -1000, YMax: 1000, ZMin: 1, ZMax: 5000})

	if err := c.SetAttr("Z", "px_xmin", "-10"); err != nil {
		t.Fatalf("SetAttr px_xmin failed: %v", err)
	}
	z, _ := c.FindByName("Z")
	if z.Screen.PxXMin != 0 {
		t.Fatalf("expected px_xmin clamped to 0, got %d", z.Screen.PxXMin)
	}
}

func TestSetAttrPxZAllowsEquality(t *testing.T) {
	c := newTestCatalog()
	c.Add("Z", WorldBox{XMin: -1000, XMax: 1000, YMin: -1000, YMax: 1000, ZMin: 1, ZMax: 5000})

	if err := c.SetAttr("Z", "px_zmax", "0"); err != nil {
		t.Fatalf("SetAttr px_zmax failed: %v", err)
	}
	z, _ := c.FindByName("Z")
	if z.Screen.PxZMax != 0 {
		t.Fatalf("expected px_zmax = 0, got %d", z.Screen.PxZMax)
	}
	if z.Screen.PxZMin > z.Screen.PxZMax {
		t.Fatalf("px_zmin must not exceed px_zmax, got min=%d max=%d", z.Screen.PxZMin, z.Screen.PxZMax)
	}
}

func TestSetAttrUnknownAttrFails(t *testing.T) {
	c := newTestCatalog()
	c.Add("Z", WorldBox{XMin: -1000, XMax: 1000, YMin: -1000, YMax: 1000, ZMin: 1, ZMax: 5000})
	if err := c.SetAttr("Z", "bogus", "1"); err == nil {
		t.Fatalf("expected error for unknown attribute")
	}
}

func TestSetAttrUnknownZoneFails(t *testing.T) {
	c := newTestCatalog()
	if err := c.SetAttr("nope", "negate", "1"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
}

func TestUpdateMaxPopNeverZero(t *testing.T) {
	z := &Zone{Screen: ScreenBox{PxXMin: 5, PxXMax: 5, PxYMin: 5, PxYMax: 5}}
	updateMaxPop(z)
	if z.MaxPop < 1 {
		t.Fatalf("maxpop must never be zero, got %d", z.MaxPop)
	}
}
