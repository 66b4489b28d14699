package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/e7canasta/kndd/internal/catalog"
)

func boolToBit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatZoneFull renders the full wire record for a zone: the box and
// attribute block followed by the live-measures block.
func formatZoneFull(z *catalog.Zone) string {
	return fmt.Sprintf(
		"xmin=%d ymin=%d zmin=%d xmax=%d ymax=%d zmax=%d "+
			"px_xmin=%d px_ymin=%d px_zmin=%d px_xmax=%d px_ymax=%d px_zmax=%d "+
			"negate=%d param=%s on_level=%d off_level=%d on_delay=%d off_delay=%d "+
			"%s",
		z.World.XMin, z.World.YMin, z.World.ZMin, z.World.XMax, z.World.YMax, z.World.ZMax,
		z.Screen.PxXMin, z.Screen.PxYMin, z.Screen.PxZMin, z.Screen.PxXMax, z.Screen.PxYMax, z.Screen.PxZMax,
		boolToBit(z.Negate), z.Param, z.OnLevel, z.OffLevel, z.OnDelay, z.OffDelay,
		formatZoneShort(z),
	)
}

// formatZoneShort renders just the live-measures block, used for
// periodic SUB updates of a zone whose structure has not changed.
func formatZoneShort(z *catalog.Zone) string {
	return fmt.Sprintf(
		"occupied=%d pop=%d maxpop=%d xc=%d yc=%d zc=%d sa=%d name=%q",
		boolToBit(z.ReportedOccupied()), z.Pop, z.MaxPop, z.XC, z.YC, z.ZC, z.SA, z.Name,
	)
}

// parseInt32 parses a decimal integer argument, trimmed of whitespace.
func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}
