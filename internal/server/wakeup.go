package server

import (
	"fmt"

	"github.com/e7canasta/kndd/internal/catalog"
)

// handleDepthWakeup runs the per-depth-frame broadcast pass: emit a
// SUB line for every zone whose pop, occupancy, or newness changed
// since the last pass, deliver the depth blob to subscribed clients
// and decrement their budgets, then snapshot the catalog's change
// markers with Touch.
func (s *Server) handleDepthWakeup() {
	changed := make([]*catalog.Zone, 0)
	s.catalog.Iterate(func(z *catalog.Zone) bool {
		if z.NewZone || z.LastPop != z.Pop || z.LastOccupied != z.Occupied {
			changed = append(changed, z)
		}
		return true
	})

	if len(changed) > 0 {
		for _, c := range s.clients {
			if !c.subGlobal {
				continue
			}
			for _, z := range changed {
				if z.NewZone {
					c.sendLine("SUB - " + formatZoneFull(z))
				} else {
					c.sendLine("SUB - " + formatZoneShort(z))
				}
			}
		}
	}

	frame := s.snapshotDepthFrame()
	if len(frame) > 0 {
		for _, c := range s.clients {
			if !c.depthSub {
				continue
			}
			c.sendRaw(fmt.Sprintf("DEPTH - %d bytes follow", len(frame)), frame)
			if c.depthBudget > 0 {
				c.depthBudget--
				if c.depthBudget == 0 {
					c.depthSub = false
				}
			}
		}
	}

	s.catalog.Touch()
}

// handleVideoWakeup serves pending one-shot brightness and video
// requests with the latest video pass's results, then clears them.
func (s *Server) handleVideoWakeup() {
	anyBright := false
	for _, c := range s.clients {
		if c.brightPending {
			anyBright = true
			break
		}
	}
	if anyBright {
		lines := make([]string, 0)
		s.catalog.Iterate(func(z *catalog.Zone) bool {
			lines = append(lines, fmt.Sprintf("BRIGHT - bright=%d name=%q", z.Bright(), z.Name))
			return true
		})
		for _, c := range s.clients {
			if !c.brightPending {
				continue
			}
			for _, l := range lines {
				c.sendLine(l)
			}
			c.brightPending = false
			s.videoWanters--
			if s.videoWanters == 0 && s.motor != nil {
				s.motor.RequestVideo(false)
			}
		}
	}

	frame := s.snapshotVideoFrame()
	if len(frame) == 0 {
		return
	}
	for _, c := range s.clients {
		if !c.videoPending {
			continue
		}
		c.sendRaw(fmt.Sprintf("VIDEO - %d bytes follow", len(frame)), frame)
		c.videoPending = false
		s.videoWanters--
		if s.videoWanters == 0 && s.motor != nil {
			s.motor.RequestVideo(false)
		}
	}
}
