// Package interval provides the date/time arithmetic the availability engine
// is built on: half-open intervals, overlap tests, subtraction, and slot tiling.
// Everything here is pure; no I/O, no clocks.
package interval

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has positive length.
func (iv Interval) Valid() bool {
	return iv.End.After(iv.Start)
}

// Overlaps reports whether two half-open intervals intersect:
// [a.Start,a.End) overlaps [b.Start,b.End) iff a.Start < b.End && b.Start < a.End.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Contains reports whether other lies entirely within iv.
func (iv Interval) Contains(other Interval) bool {
	return !other.Start.Before(iv.Start) && !other.End.After(iv.End)
}

// Clip returns the part of iv inside bounds, or a zero-length interval when
// they do not intersect.
func (iv Interval) Clip(bounds Interval) Interval {
	s, e := iv.Start, iv.End
	if s.Before(bounds.Start) {
		s = bounds.Start
	}
	if e.After(bounds.End) {
		e = bounds.End
	}
	if !e.After(s) {
		return Interval{Start: s, End: s}
	}
	return Interval{Start: s, End: e}
}

// Sort orders intervals by start time, shorter first on ties.
func Sort(in []Interval) {
	sort.Slice(in, func(i, j int) bool {
		if in[i].Start.Equal(in[j].Start) {
			return in[i].End.Before(in[j].End)
		}
		return in[i].Start.Before(in[j].Start)
	})
}

// Merge collapses overlapping or touching intervals into a minimal sorted set.
// The input is not modified.
func Merge(in []Interval) []Interval {
	var valid []Interval
	for _, iv := range in {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}
	if len(valid) == 0 {
		return nil
	}
	Sort(valid)

	merged := make([]Interval, 0, len(valid))
	merged = append(merged, valid[0])
	for _, cur := range valid[1:] {
		last := &merged[len(merged)-1]
		if cur.Start.After(last.End) {
			merged = append(merged, cur)
			continue
		}
		if cur.End.After(last.End) {
			last.End = cur.End
		}
	}
	return merged
}

// Subtract removes the given blocks from base, returning the 0..N remaining
// open intervals in order. Blocks are clipped to base and merged first.
func Subtract(base Interval, blocks []Interval) []Interval {
	if !base.Valid() {
		return nil
	}
	var clipped []Interval
	for _, b := range blocks {
		c := b.Clip(base)
		if c.Valid() {
			clipped = append(clipped, c)
		}
	}
	if len(clipped) == 0 {
		return []Interval{base}
	}
	merged := Merge(clipped)

	var out []Interval
	cursor := base.Start
	for _, m := range merged {
		if m.Start.After(cursor) {
			out = append(out, Interval{Start: cursor, End: m.Start})
		}
		if m.End.After(cursor) {
			cursor = m.End
		}
	}
	if base.End.After(cursor) {
		out = append(out, Interval{Start: cursor, End: base.End})
	}
	return out
}

// Tile splits iv into consecutive fixed-size tiles, discarding any trailing
// remainder shorter than the tile size.
func Tile(iv Interval, size time.Duration) []Interval {
	if !iv.Valid() || size <= 0 {
		return nil
	}
	var tiles []Interval
	for t := iv.Start; !t.Add(size).After(iv.End); t = t.Add(size) {
		tiles = append(tiles, Interval{Start: t, End: t.Add(size)})
	}
	return tiles
}

// AtMinute returns the instant minutes past local midnight of day in loc.
// day is expected to be a date (any clock component is ignored).
func AtMinute(day time.Time, minute int, loc *time.Location) time.Time {
	midnight := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	return midnight.Add(time.Duration(minute) * time.Minute)
}

// MinuteOfDay returns minutes past midnight of t in loc.
func MinuteOfDay(t time.Time, loc *time.Location) int {
	local := t.In(loc)
	return local.Hour()*60 + local.Minute()
}
