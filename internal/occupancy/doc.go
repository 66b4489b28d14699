// Package occupancy is the thin per-frame entry point the sensor pipeline
// calls into: one method per frame kind, each delegating straight to the
// catalog's own depth/video sweep. The occupancy engine has no state of its
// own; the catalog already owns every per-zone accumulator, and the zone
// struct is already where the original program kept this logic (zone.c's
// update_zonelist_depth and update_zonelist_video operate directly on the
// zone list, not through a separate engine object). This package exists so
// callers depend on an occupancy-shaped interface rather than reaching into
// the catalog package directly from the sensor pipeline.
package occupancy
