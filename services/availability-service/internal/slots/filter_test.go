package slots

import (
	"testing"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

func policy() model.BookingPolicy {
	p := model.DefaultBookingPolicy("shop-1")
	return p
}

// minimum_notice_hours = 2, now 08:00: every start before 10:00 is excluded.
func TestApplyPolicy_MinimumNotice(t *testing.T) {
	open := []interval.Interval{iv(at(9, 0), at(12, 0))}
	compiled := Compile(open, nil, 30*time.Minute, 15*time.Minute)

	p := policy()
	p.MinNoticeHours = 2
	now := at(8, 0)

	filtered := ApplyPolicy(compiled, p, now, time.UTC)
	for _, s := range filtered {
		if s.Start.Before(at(10, 0)) {
			if s.Available {
				t.Fatalf("start %s violates the 2h notice", s.Start)
			}
			if s.Reason != ReasonMinNotice {
				t.Fatalf("expected min_notice reason, got %q", s.Reason)
			}
		}
		if !s.Start.Before(at(10, 0)) && !s.Available {
			t.Fatalf("start %s should survive the notice filter", s.Start)
		}
	}
}

func TestApplyPolicy_SameDayCutoff(t *testing.T) {
	open := []interval.Interval{iv(at(9, 0), at(17, 0))}
	compiled := Compile(open, nil, 15*time.Minute, 15*time.Minute)

	p := policy()
	p.SameDayCutoffMinute = 12 * 60 // no same-day bookings after noon

	// 12:30 same day: everything left today is disqualified.
	filtered := ApplyPolicy(compiled, p, at(12, 30), time.UTC)
	for _, s := range filtered {
		if s.Available && s.Start.After(at(12, 30)) {
			t.Fatalf("cutoff passed; %s must be disqualified", s.Start)
		}
	}

	// Day before: the cutoff does not apply.
	dayBefore := time.Date(2026, 3, 8, 13, 0, 0, 0, time.UTC)
	filtered = ApplyPolicy(compiled, p, dayBefore, time.UTC)
	available := 0
	for _, s := range filtered {
		if s.Available {
			available++
		}
	}
	if available == 0 {
		t.Fatalf("cutoff must only apply to same-day bookings")
	}
}

func TestWithinHorizon(t *testing.T) {
	p := policy()
	p.MaxAdvanceDays = 7
	now := at(10, 0)

	in := time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC)
	if !WithinHorizon(in, p, now, time.UTC) {
		t.Fatalf("day 7 must be within a 7-day horizon")
	}
	out := time.Date(2026, 3, 17, 0, 0, 0, 0, time.UTC)
	if WithinHorizon(out, p, now, time.UTC) {
		t.Fatalf("day 8 must be beyond a 7-day horizon")
	}
	// A clock-bearing instant on the horizon date counts as that date.
	lastSlot := time.Date(2026, 3, 16, 16, 30, 0, 0, time.UTC)
	if !WithinHorizon(lastSlot, p, now, time.UTC) {
		t.Fatalf("an instant on the horizon date must be within the horizon")
	}
}

func TestApplyPolicy_DoesNotResurrectOccupiedSlots(t *testing.T) {
	compiled := []Slot{
		{Start: at(9, 0), End: at(9, 15), Available: false, Reason: "appointment"},
	}
	filtered := ApplyPolicy(compiled, policy(), at(0, 0), time.UTC)
	if filtered[0].Available || filtered[0].Reason != "appointment" {
		t.Fatalf("occupied slot must keep its reason, got %+v", filtered[0])
	}
}
