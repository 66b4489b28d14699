// Package lut builds and serves the two lookup tables that keep the
// occupancy engine's hot path entirely on integer arithmetic: a
// depth-index-to-millimeters table and a depth-index-to-surface-area
// table.
//
// # Why a lookup table
//
// The sensor reports depth as an 11-bit index, not a distance. Converting
// an index to millimeters requires a tangent evaluation; doing that once
// per table entry at startup, instead of once per pixel per frame, keeps
// the per-frame sweep (§4.C of the design) branch-free arithmetic.
//
// # Usage
//
//	tables := lut.New()
//	mm := tables.Depth(512)          // millimeters at raw index 512
//	area := tables.SurfaceArea(512)   // mm^2 covered by one pixel at that index
//	idx := tables.ReverseDepth(1500)  // largest index whose depth is <= 1500mm
//
// Both tables are computed once and are safe for concurrent read access
// from every goroutine in the process; there is no mutable state after
// construction.
package lut
