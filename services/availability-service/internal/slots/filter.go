package slots

import (
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// ApplyPolicy disqualifies compiled slots that violate the shop booking
// policy. Rules apply in order and each disqualifies independently:
// minimum notice, then same-day cutoff. The advance-booking horizon is
// enforced upstream by the aggregator, which never compiles days beyond it.
// Disqualified slots stay in the list (marked, with a reason) so the
// presentation layer can still render them greyed out.
func ApplyPolicy(compiled []Slot, policy model.BookingPolicy, now time.Time, loc *time.Location) []Slot {
	if len(compiled) == 0 {
		return compiled
	}

	earliest := now.Add(time.Duration(policy.MinNoticeHours) * time.Hour)

	cutoffApplies := false
	if policy.SameDayCutoffMinute >= 0 {
		nowLocal := now.In(loc)
		slotLocal := compiled[0].Start.In(loc)
		sameDay := nowLocal.Year() == slotLocal.Year() && nowLocal.YearDay() == slotLocal.YearDay()
		cutoffApplies = sameDay && interval.MinuteOfDay(now, loc) >= policy.SameDayCutoffMinute
	}

	out := make([]Slot, len(compiled))
	copy(out, compiled)
	for i := range out {
		if !out[i].Available {
			continue
		}
		if out[i].Start.Before(earliest) {
			out[i].Available = false
			out[i].Reason = ReasonMinNotice
			continue
		}
		if cutoffApplies {
			out[i].Available = false
			out[i].Reason = ReasonSameDayCutoff
		}
	}
	return out
}

// WithinHorizon reports whether day falls no later than today +
// MaxAdvanceDays, business-local. Only the date portion of day counts: a
// clock-bearing instant on the horizon date is still within the horizon.
// Days beyond it yield no slots and are skipped before schedule resolution.
func WithinHorizon(day time.Time, policy model.BookingPolicy, now time.Time, loc *time.Location) bool {
	if policy.MaxAdvanceDays <= 0 {
		return true
	}
	nowLocal := now.In(loc)
	today := time.Date(nowLocal.Year(), nowLocal.Month(), nowLocal.Day(), 0, 0, 0, 0, loc)
	horizon := today.AddDate(0, 0, policy.MaxAdvanceDays)
	dayLocal := day.In(loc)
	date := time.Date(dayLocal.Year(), dayLocal.Month(), dayLocal.Day(), 0, 0, 0, 0, loc)
	return !date.After(horizon)
}
