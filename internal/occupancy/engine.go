package occupancy

import "github.com/e7canasta/kndd/internal/catalog"

// Transition is called once per zone whose debounced occupancy flips
// during a depth pass.
type Transition func(*catalog.Zone)

// Engine runs the two per-frame sweeps against a shared catalog. It holds
// no state of its own; every accumulator it touches lives on the catalog
// or its zones.
type Engine struct {
	catalog *catalog.Catalog
}

// New returns an Engine bound to the given catalog.
func New(c *catalog.Catalog) *Engine {
	return &Engine{catalog: c}
}

// Depth runs one occupancy pass over a packed 11-bit depth frame, invoking
// onTransition for every zone whose occupied flag flips.
func (e *Engine) Depth(frame []byte, onTransition Transition) {
	e.catalog.UpdateDepthFrame(frame, onTransition)
}

// Video runs one brightness pass over a single-channel video frame. It
// never changes occupancy by itself: a zone using the bright param has its
// debounce re-evaluated on the next Depth call, against whatever
// brightness this call last accumulated.
func (e *Engine) Video(frame []byte) {
	e.catalog.UpdateVideoFrame(frame)
}
