// Package catalog implements the thread-safe collection of occupancy
// zones the rest of the daemon evaluates every frame against.
//
// A Catalog owns every Zone's identity, its world- and screen-space
// boxes (kept in sync via the fixed-point projection in project.go),
// its debounce state, and a monotone version counter that persistence
// and the broadcast server use as a cheap "has anything changed"
// check.
//
// Every structural operation (Add, Remove, Clear, SetBox, SetAttr,
// Touch, BumpVersion) takes the Catalog's mutex for its entire body.
// The occupancy engine (package occupancy) also takes that same mutex
// for the duration of a full frame pass, so per-zone counters stay
// consistent across the sweep. This single-lock design is intentional:
// see the design notes on shared mutable state for why a read/write
// lock was rejected.
package catalog
