package experiment

import (
	"fmt"
	"math"
	"time"
)

// ElapsedStamp formats the time since the run started as
// {days}dd{hours}hh{minutes}mm, each part two digits wide.
func ElapsedStamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Minute)
	days := total / (24 * 60)
	hours := (total / 60) % 24
	minutes := total % 60
	return fmt.Sprintf("%02ddd%02dhh%02dmm", days, hours, minutes)
}

// FrameName holds the parts of a frame filename.
type FrameName struct {
	Experiment string
	Slot       int
	Well       string
	Index      int    // position_in_well_index
	Z          int    // rounded relative focus, or the slice index in a z-stack
	Mode       string // illumination channel
	Stamp      string // ElapsedStamp of the scan start
}

// String renders {experiment}_{slot}_{well}_{index}_z{z}_{mode}_{stamp}
// (without extension).
func (n FrameName) String() string {
	return fmt.Sprintf("%s_%d_%s_%d_z%d_%s_%s", n.Experiment, n.Slot, n.Well, n.Index, n.Z, n.Mode, n.Stamp)
}

// roundZ rounds a relative focus to the integer used in filenames.
func roundZ(z float64) int {
	return int(math.Round(z))
}
