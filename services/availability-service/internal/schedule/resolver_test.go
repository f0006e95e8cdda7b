package schedule

import (
	"testing"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

var monday = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) // a Monday

func workingRule() model.WeeklyWorkingRule {
	return model.WeeklyWorkingRule{
		StaffID:     "staff-1",
		Weekday:     1,
		IsWorking:   true,
		StartMinute: 9 * 60,
		EndMinute:   17 * 60,
	}
}

func TestResolve_WeeklyRuleOnly(t *testing.T) {
	open, err := Resolve(monday, time.UTC, workingRule(), nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open interval, got %d", len(open))
	}
	if open[0].Start.Hour() != 9 || open[0].End.Hour() != 17 {
		t.Fatalf("unexpected window %v", open[0])
	}
}

func TestResolve_NotWorkingDay(t *testing.T) {
	rule := workingRule()
	rule.IsWorking = false
	open, err := Resolve(monday, time.UTC, rule, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected no open intervals, got %v", open)
	}
}

func TestResolve_RecurringBreakSplitsDay(t *testing.T) {
	rule := workingRule()
	rule.BreakStartMinute = 13 * 60
	rule.BreakEndMinute = 14 * 60

	open, err := Resolve(monday, time.UTC, rule, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open intervals, got %d", len(open))
	}
	if open[0].End.Hour() != 13 || open[1].Start.Hour() != 14 {
		t.Fatalf("break not cut out correctly: %v", open)
	}
}

func TestResolve_ShopClosureDominates(t *testing.T) {
	shopEx := &model.DateException{ShopID: "shop-1", Date: "2026-03-09", Closed: true}
	// A staff exception with custom hours must not reopen a closed shop.
	staffEx := &model.DateException{
		StaffID:     "staff-1",
		Date:        "2026-03-09",
		StartMinute: 10 * 60,
		EndMinute:   16 * 60,
	}
	open, err := Resolve(monday, time.UTC, workingRule(), shopEx, staffEx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("shop-wide closure must dominate, got %v", open)
	}
}

func TestResolve_StaffExceptionReplacesWeeklyRule(t *testing.T) {
	staffEx := &model.DateException{
		StaffID:     "staff-1",
		Date:        "2026-03-09",
		StartMinute: 12 * 60,
		EndMinute:   15 * 60,
	}
	open, err := Resolve(monday, time.UTC, workingRule(), nil, staffEx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("expected 1 open interval, got %d", len(open))
	}
	if open[0].Start.Hour() != 12 || open[0].End.Hour() != 15 {
		t.Fatalf("staff exception must fully replace the weekly rule, got %v", open[0])
	}
}

func TestResolve_StaffExceptionClosedDay(t *testing.T) {
	staffEx := &model.DateException{StaffID: "staff-1", Date: "2026-03-09", Closed: true}
	open, err := Resolve(monday, time.UTC, workingRule(), nil, staffEx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 0 {
		t.Fatalf("expected closed day, got %v", open)
	}
}

func TestResolve_ShopCustomHoursApplyWhenNoStaffException(t *testing.T) {
	shopEx := &model.DateException{
		ShopID:      "shop-1",
		Date:        "2026-03-09",
		StartMinute: 10 * 60,
		EndMinute:   14 * 60,
	}
	open, err := Resolve(monday, time.UTC, workingRule(), shopEx, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(open) != 1 || open[0].Start.Hour() != 10 || open[0].End.Hour() != 14 {
		t.Fatalf("expected shop custom hours 10-14, got %v", open)
	}
}

func TestResolve_InvertedHoursIsConfigError(t *testing.T) {
	staffEx := &model.DateException{
		StaffID:     "staff-1",
		Date:        "2026-03-09",
		StartMinute: 15 * 60,
		EndMinute:   12 * 60,
	}
	_, err := Resolve(monday, time.UTC, workingRule(), nil, staffEx)
	if !model.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}

func TestResolve_BreakOutsideWindowIsConfigError(t *testing.T) {
	rule := workingRule()
	rule.BreakStartMinute = 8 * 60
	rule.BreakEndMinute = 10 * 60
	_, err := Resolve(monday, time.UTC, rule, nil, nil)
	if !model.IsConfigError(err) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
}
