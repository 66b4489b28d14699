package server

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/e7canasta/kndd/internal/catalog"
	"github.com/e7canasta/kndd/internal/lut"
)

type commandFunc func(s *Server, c *clientHandle, args string)

type commandDef struct {
	name string
	desc string
	fn   commandFunc
}

var commandTable []commandDef
var commandIndex map[string]commandDef

func init() {
	commandTable = []commandDef{
		{"bye", "close the connection after the reply drains", cmdBye},
		{"ver", "report the protocol version", cmdVer},
		{"help", "list available commands", cmdHelp},
		{"addzone", "name,x1,y1,z1,x2,y2,z2 - add a zone", cmdAddZone},
		{"setzone", "name,all,x1,...,z2 or name,attr,value - update a zone", cmdSetZone},
		{"rmzone", "name - remove a zone", cmdRmZone},
		{"clear", "remove every zone", cmdClear},
		{"zones", "list every zone", cmdZones},
		{"sub", "subscribe to zone change notifications", cmdSub},
		{"unsub", "cancel zone change subscription", cmdUnsub},
		{"getdepth", "request one depth frame", cmdGetDepth},
		{"subdepth", "[count] - subscribe to depth frames", cmdSubDepth},
		{"unsubdepth", "cancel depth frame subscription", cmdUnsubDepth},
		{"getvideo", "request one video frame", cmdGetVideo},
		{"getbright", "request one brightness report", cmdGetBright},
		{"tilt", "[degrees] - read or set motor tilt", cmdTilt},
		{"fps", "report the current depth frame rate", cmdFPS},
		{"lut", "[index] - report the depth lookup table", cmdLUT},
		{"sa", "[index] - report the surface-area lookup table", cmdSA},
	}
	commandIndex = buildCommandIndex()
}

func buildCommandIndex() map[string]commandDef {
	idx := make(map[string]commandDef, len(commandTable))
	for _, d := range commandTable {
		idx[d.name] = d
	}
	return idx
}

func (s *Server) handleLine(c *clientHandle, line string) {
	name, args := splitCommand(line)
	def, ok := commandIndex[strings.ToLower(name)]
	if !ok {
		c.sendLine(fmt.Sprintf("ERR - unknown command %q", name))
		return
	}
	def.fn(s, c, args)
}

// splitCommand splits "name arg1,arg2,..." into its command token and
// the raw comma-separated argument string.
func splitCommand(line string) (name, args string) {
	line = strings.TrimSpace(line)
	sp := strings.IndexAny(line, " \t")
	if sp < 0 {
		return line, ""
	}
	return line[:sp], strings.TrimSpace(line[sp+1:])
}

func cmdBye(s *Server, c *clientHandle, args string) {
	c.sendLine("OK - Goodbye")
	c.requestShutdown()
}

func cmdVer(s *Server, c *clientHandle, args string) {
	c.sendLine(fmt.Sprintf("OK - Version %d", AppVersion))
}

func cmdHelp(s *Server, c *clientHandle, args string) {
	c.sendLine(fmt.Sprintf("OK - %d commands (app version %d)", len(commandTable), AppVersion))
	for _, d := range commandTable {
		c.sendLine(fmt.Sprintf("%s - %s", d.name, d.desc))
	}
}

func cmdAddZone(s *Server, c *clientHandle, args string) {
	fields := strings.Split(args, ",")
	if len(fields) != 7 {
		c.sendLine("ERR - addzone needs name,x1,y1,z1,x2,y2,z2")
		return
	}
	name := strings.TrimSpace(fields[0])
	box, err := parseBox(fields[1:])
	if err != nil {
		c.sendLine(fmt.Sprintf("ERR - %v", err))
		return
	}
	z, err := s.catalog.Add(name, box)
	if err != nil {
		if errors.Is(err, catalog.ErrConflict) {
			c.sendLine(fmt.Sprintf("ERR - Zone %q already exists.", name))
			return
		}
		c.sendLine(fmt.Sprintf("ERR - %v", err))
		return
	}
	c.sendLine(fmt.Sprintf("OK - Zone %q was added.", name))
	s.broadcast("ADD - " + formatZoneFull(z))
}

func cmdSetZone(s *Server, c *clientHandle, args string) {
	fields := strings.Split(args, ",")
	if len(fields) < 2 {
		c.sendLine("ERR - setzone needs name,all,x1,...,z2 or name,attr,value")
		return
	}
	name := strings.TrimSpace(fields[0])

	if strings.EqualFold(strings.TrimSpace(fields[1]), "all") {
		if len(fields) != 8 {
			c.sendLine("ERR - setzone all needs x1,y1,z1,x2,y2,z2")
			return
		}
		box, err := parseBox(fields[2:])
		if err != nil {
			c.sendLine(fmt.Sprintf("ERR - %v", err))
			return
		}
		if err := s.catalog.SetBox(name, box); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.sendLine(fmt.Sprintf("ERR - Zone %q does not exist.", name))
				return
			}
			c.sendLine(fmt.Sprintf("ERR - %v", err))
			return
		}
		c.sendLine(fmt.Sprintf("OK - Zone %q was updated.", name))
		return
	}

	if len(fields) != 3 {
		c.sendLine("ERR - setzone needs name,attr,value")
		return
	}
	attr := strings.TrimSpace(fields[1])
	if err := s.catalog.SetAttr(name, attr, strings.TrimSpace(fields[2])); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.sendLine(fmt.Sprintf("ERR - Zone %q does not exist.", name))
			return
		}
		c.sendLine(fmt.Sprintf("ERR - %v", err))
		return
	}
	c.sendLine(fmt.Sprintf("OK - Zone %q attribute %q was updated.", name, attr))
}

func parseBox(fields []string) (catalog.WorldBox, error) {
	if len(fields) != 6 {
		return catalog.WorldBox{}, fmt.Errorf("expected 6 box fields, got %d", len(fields))
	}
	vals := make([]int32, 6)
	for i, f := range fields {
		v, err := parseInt32(f)
		if err != nil {
			return catalog.WorldBox{}, fmt.Errorf("field %d: %w", i, err)
		}
		vals[i] = v
	}
	return catalog.WorldBox{
		XMin: vals[0], YMin: vals[1], ZMin: vals[2],
		XMax: vals[3], YMax: vals[4], ZMax: vals[5],
	}, nil
}

func cmdRmZone(s *Server, c *clientHandle, args string) {
	name := strings.TrimSpace(args)
	if _, ok := s.catalog.FindByName(name); !ok {
		c.sendLine(fmt.Sprintf("ERR - Zone %q not found.", name))
		return
	}
	s.broadcast("DEL - " + name)
	if err := s.catalog.Remove(name); err != nil {
		c.sendLine(fmt.Sprintf("ERR - %v", err))
		return
	}
	c.sendLine(fmt.Sprintf("OK - Zone %q was removed.", name))
}

func cmdClear(s *Server, c *clientHandle, args string) {
	s.catalog.Iterate(func(z *catalog.Zone) bool {
		s.broadcast("DEL - " + z.Name)
		return true
	})
	s.catalog.Clear()
	c.sendLine("OK - All zones were removed.")
}

func cmdZones(s *Server, c *clientHandle, args string) {
	count := s.catalog.Count()
	occupied := s.catalog.OccupiedCount()
	version := s.catalog.Version()

	peakName, peakIndex, ok := s.catalog.Peak()
	if !ok {
		peakName, peakIndex = "[none]", -1
	}

	c.sendLine(fmt.Sprintf("OK - %d zones - Version %d, %d occupied, peak zone is %d %q",
		count, version, occupied, peakIndex, peakName))
	s.catalog.Iterate(func(z *catalog.Zone) bool {
		c.sendLine(formatZoneFull(z))
		return true
	})
}

func cmdSub(s *Server, c *clientHandle, args string) {
	c.subGlobal = true
	c.sendLine("OK - Subscribed")
	s.catalog.Iterate(func(z *catalog.Zone) bool {
		c.sendLine("SUB - " + formatZoneFull(z))
		return true
	})
}

func cmdUnsub(s *Server, c *clientHandle, args string) {
	c.subGlobal = false
	c.sendLine("OK - Unsubscribed")
}

func cmdGetDepth(s *Server, c *clientHandle, args string) {
	if c.depthSub && c.depthBudget <= 0 {
		c.sendLine("ERR - Already subscribed")
		return
	}
	if c.depthSub {
		c.depthBudget++
	} else {
		c.depthSub = true
		c.depthBudget = 1
	}
	c.sendLine("OK - Depth frame requested")
}

func cmdSubDepth(s *Server, c *clientHandle, args string) {
	budget := -1
	if t := strings.TrimSpace(args); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil {
			c.sendLine(fmt.Sprintf("ERR - %v", err))
			return
		}
		if n > 0 {
			budget = n
		}
	}
	c.depthSub = true
	c.depthBudget = budget
	c.sendLine("OK - Subscribed to depth")
}

func cmdUnsubDepth(s *Server, c *clientHandle, args string) {
	c.depthSub = false
	c.depthBudget = 0
	c.sendLine("OK - Unsubscribed from depth")
}

func cmdGetVideo(s *Server, c *clientHandle, args string) {
	if !c.videoPending {
		c.videoPending = true
		s.videoWanters++
		if s.videoWanters == 1 && s.motor != nil {
			s.motor.RequestVideo(true)
		}
	}
	c.sendLine("OK - Video frame requested")
}

func cmdGetBright(s *Server, c *clientHandle, args string) {
	if !c.brightPending {
		c.brightPending = true
		s.videoWanters++
		if s.videoWanters == 1 && s.motor != nil {
			s.motor.RequestVideo(true)
		}
	}
	c.sendLine("OK - Brightness requested")
}

func cmdTilt(s *Server, c *clientHandle, args string) {
	if s.motor == nil {
		c.sendLine("ERR - no motor available")
		return
	}
	if t := strings.TrimSpace(args); t != "" {
		deg, err := strconv.Atoi(t)
		if err != nil {
			c.sendLine(fmt.Sprintf("ERR - %v", err))
			return
		}
		deg = clampTilt(deg)
		s.motor.SetTilt(deg)
		c.sendLine(fmt.Sprintf("OK - Tilt %d", deg))
		return
	}
	deg, err := s.motor.Tilt()
	if err != nil {
		c.sendLine(fmt.Sprintf("ERR - %v", err))
		return
	}
	c.sendLine(fmt.Sprintf("OK - Tilt %d", deg))
}

func clampTilt(deg int) int {
	if deg < -15 {
		return -15
	}
	if deg > 15 {
		return 15
	}
	return deg
}

func cmdFPS(s *Server, c *clientHandle, args string) {
	if s.motor == nil {
		c.sendLine("ERR - no motor available")
		return
	}
	c.sendLine(fmt.Sprintf("OK - FPS %d", s.motor.FPS()))
}

func cmdLUT(s *Server, c *clientHandle, args string) {
	lutDump(s, c, args, func(i int) string {
		return fmt.Sprintf("OK - LUT %d depth=%d", i, s.tables.Depth(i))
	})
}

func cmdSA(s *Server, c *clientHandle, args string) {
	lutDump(s, c, args, func(i int) string {
		return fmt.Sprintf("OK - SA %d sa=%f", i, s.tables.SurfaceArea(i))
	})
}

func lutDump(s *Server, c *clientHandle, args string, line func(i int) string) {
	if t := strings.TrimSpace(args); t != "" {
		i, err := strconv.Atoi(t)
		if err != nil || i < 0 || i >= lut.Size {
			c.sendLine("ERR - index out of range")
			return
		}
		c.sendLine(line(i))
		return
	}
	for i := 0; i < lut.Size; i++ {
		c.sendLine(line(i))
	}
}
