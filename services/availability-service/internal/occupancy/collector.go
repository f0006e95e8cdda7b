// Package occupancy collects every interval that consumes a staff member's
// time on a date: active appointments, manual calendar blocks, and one-off
// temporary breaks.
package occupancy

import (
	"context"
	"fmt"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// Reasons tagged onto occupancy entries so a blocked slot can say why.
const (
	ReasonAppointment = "appointment"
	ReasonBlock       = "block"
	ReasonTimeOff     = "time_off"
)

// Entry is one committed interval with the reason it consumes time.
type Entry struct {
	interval.Interval
	Reason string
	RefID  string
}

// Store is the slice of the persistence collaborator the collector reads.
type Store interface {
	ListActiveAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error)
	ListCalendarBlocks(ctx context.Context, staffID string, from, to time.Time) ([]model.CalendarBlock, error)
	ListTemporaryBreaks(ctx context.Context, staffID string, from, to time.Time) ([]model.TemporaryBreak, error)
}

type Collector struct {
	store Store
}

func NewCollector(store Store) *Collector {
	return &Collector{store: store}
}

// Collect returns all occupancy entries for one staff member overlapping
// [from, to), ordered by start time. The list is deliberately NOT merged:
// the slot compiler tests tiles against individual tagged entries so the
// blocking reason survives. Overlapping temporary breaks are a configuration
// conflict and are reported, never merged away.
func (c *Collector) Collect(ctx context.Context, shopID, staffID string, from, to time.Time) ([]Entry, error) {
	appts, err := c.store.ListActiveAppointments(ctx, shopID, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	blocks, err := c.store.ListCalendarBlocks(ctx, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list calendar blocks: %w", err)
	}
	breaks, err := c.store.ListTemporaryBreaks(ctx, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list temporary breaks: %w", err)
	}

	if err := checkBreakOverlap(staffID, from, breaks); err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(appts)+len(blocks)+len(breaks))
	for _, a := range appts {
		entries = append(entries, Entry{
			Interval: interval.Interval{Start: a.StartTime, End: a.EndTime},
			Reason:   ReasonAppointment,
			RefID:    a.ID,
		})
	}
	for _, b := range blocks {
		entries = append(entries, Entry{
			Interval: interval.Interval{Start: b.StartTime, End: b.EndTime},
			Reason:   ReasonBlock,
			RefID:    b.ID,
		})
	}
	for _, tb := range breaks {
		entries = append(entries, Entry{
			Interval: interval.Interval{Start: tb.Start, End: tb.End},
			Reason:   ReasonTimeOff,
			RefID:    tb.ID,
		})
	}

	sortEntries(entries)
	return entries, nil
}

// Merged collapses entries into a minimal interval set. For presentation and
// debugging only; availability math always runs on the tagged list.
func Merged(entries []Entry) []interval.Interval {
	ivs := make([]interval.Interval, 0, len(entries))
	for _, e := range entries {
		ivs = append(ivs, e.Interval)
	}
	return interval.Merge(ivs)
}

func checkBreakOverlap(staffID string, day time.Time, breaks []model.TemporaryBreak) error {
	for i := range breaks {
		for j := i + 1; j < len(breaks); j++ {
			a := interval.Interval{Start: breaks[i].Start, End: breaks[i].End}
			b := interval.Interval{Start: breaks[j].Start, End: breaks[j].End}
			if a.Overlaps(b) {
				return &model.ConfigError{
					StaffID: staffID,
					Date:    day.UTC().Format("2006-01-02"),
					Reason:  fmt.Sprintf("temporary breaks %s and %s overlap", breaks[i].ID, breaks[j].ID),
				}
			}
		}
	}
	return nil
}

func sortEntries(entries []Entry) {
	// Insertion sort; entry counts per staff/day are small.
	for i := 1; i < len(entries); i++ {
		j := i
		for j > 0 && entries[j].Start.Before(entries[j-1].Start) {
			entries[j], entries[j-1] = entries[j-1], entries[j]
			j--
		}
	}
}
