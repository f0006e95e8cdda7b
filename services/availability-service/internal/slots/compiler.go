// Package slots turns the resolved open intervals of a staff member's day
// into fixed-granularity tiles and decides which tiles are bookable starts
// for a requested service duration.
package slots

import (
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/occupancy"
)

// Unavailability reasons beyond the occupancy tags.
const (
	ReasonInsufficientTime = "insufficient_time"
	ReasonMinNotice        = "min_notice"
	ReasonSameDayCutoff    = "same_day_cutoff"
	ReasonCapacity         = "capacity"
)

// Slot is one fixed-granularity tile. Available means a booking of the
// requested total duration may START here; Reason explains why not.
type Slot struct {
	Start     time.Time
	End       time.Time
	Available bool
	Reason    string
}

// SlotsNeeded returns how many granularity tiles a service duration occupies.
func SlotsNeeded(totalDuration, granularity time.Duration) int {
	if granularity <= 0 {
		return 0
	}
	n := int(totalDuration / granularity)
	if totalDuration%granularity != 0 {
		n++
	}
	return n
}

// Compile tiles every open interval and marks each tile. A tile is a bookable
// start only when it and the following slotsNeeded-1 tiles are all free and
// contiguous in time; a run can never cross a break boundary because tiles
// are generated per open interval. A window whose remainder exactly equals
// the service duration is bookable.
func Compile(open []interval.Interval, busy []occupancy.Entry, totalDuration, granularity time.Duration) []Slot {
	needed := SlotsNeeded(totalDuration, granularity)
	if needed <= 0 {
		return nil
	}

	var out []Slot
	for _, win := range open {
		tiles := interval.Tile(win, granularity)
		marked := make([]Slot, len(tiles))
		for i, tile := range tiles {
			marked[i] = Slot{Start: tile.Start, End: tile.End, Available: true}
			for _, b := range busy {
				if tile.Overlaps(b.Interval) {
					marked[i].Available = false
					marked[i].Reason = b.Reason
					break
				}
			}
		}

		// Ascending scan: runFits looks only forward, so the tiles it reads
		// still carry their occupancy-only marks.
		for i := range marked {
			if !marked[i].Available {
				continue
			}
			if !runFits(marked, i, needed) {
				marked[i].Available = false
				marked[i].Reason = ReasonInsufficientTime
			}
		}
		out = append(out, marked...)
	}
	return out
}

// runFits reports whether tiles[i : i+needed] exist and are all free.
// Tiles of one open interval are contiguous by construction.
func runFits(tiles []Slot, i, needed int) bool {
	if i+needed > len(tiles) {
		return false
	}
	for j := i; j < i+needed; j++ {
		if !tiles[j].Available {
			return false
		}
	}
	return true
}

// AvailableStarts extracts the bookable start times in order.
func AvailableStarts(compiled []Slot) []time.Time {
	var starts []time.Time
	for _, s := range compiled {
		if s.Available {
			starts = append(starts, s.Start)
		}
	}
	return starts
}
