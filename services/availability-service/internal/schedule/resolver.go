// Package schedule resolves the effective working window(s) of a staff member
// on a single date by layering the weekly rule, shop-wide closures/holidays,
// and staff-specific date exceptions.
package schedule

import (
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// dayRule is the set of hours that survives the override layering:
// either closed, or a working window with an optional break. Weekly rules and
// date exceptions both normalize into this shape before validation.
type dayRule struct {
	closed      bool
	startMinute int
	endMinute   int
	breakStart  int
	breakEnd    int
}

// Resolve computes the ordered open intervals for one staff member on one
// business-local date. Override order: weekly rule, then a shop-wide
// exception, then a staff-specific exception (which fully replaces whatever
// came before it). A shop-wide closure is dominant: no staff exception can
// reopen a closed day. The recurring break is cut out last, producing up to
// two intervals.
//
// Resolve is a pure function of its inputs; callers fetch the rule and
// exceptions from storage.
func Resolve(day time.Time, loc *time.Location, rule model.WeeklyWorkingRule, shopEx, staffEx *model.DateException) ([]interval.Interval, error) {
	dateStr := day.In(loc).Format("2006-01-02")

	if shopEx != nil && shopEx.Closed {
		return nil, nil
	}

	eff := ruleFromWeekly(rule)
	if shopEx != nil {
		eff = ruleFromException(*shopEx)
	}
	if staffEx != nil {
		eff = ruleFromException(*staffEx)
	}

	if eff.closed {
		return nil, nil
	}
	if err := validate(eff, rule.StaffID, dateStr); err != nil {
		return nil, err
	}

	working := interval.Interval{
		Start: interval.AtMinute(day, eff.startMinute, loc),
		End:   interval.AtMinute(day, eff.endMinute, loc),
	}
	if eff.breakEnd <= eff.breakStart {
		return []interval.Interval{working}, nil
	}

	brk := interval.Interval{
		Start: interval.AtMinute(day, eff.breakStart, loc),
		End:   interval.AtMinute(day, eff.breakEnd, loc),
	}
	return interval.Subtract(working, []interval.Interval{brk}), nil
}

func ruleFromWeekly(r model.WeeklyWorkingRule) dayRule {
	return dayRule{
		closed:      !r.IsWorking,
		startMinute: r.StartMinute,
		endMinute:   r.EndMinute,
		breakStart:  r.BreakStartMinute,
		breakEnd:    r.BreakEndMinute,
	}
}

func ruleFromException(e model.DateException) dayRule {
	return dayRule{
		closed:      e.Closed,
		startMinute: e.StartMinute,
		endMinute:   e.EndMinute,
		breakStart:  e.BreakStartMinute,
		breakEnd:    e.BreakEndMinute,
	}
}

func validate(r dayRule, staffID, date string) error {
	if r.endMinute <= r.startMinute {
		return &model.ConfigError{StaffID: staffID, Date: date, Reason: "working hours inverted (end <= start)"}
	}
	if r.breakEnd > r.breakStart {
		if r.breakStart < r.startMinute || r.breakEnd > r.endMinute {
			return &model.ConfigError{StaffID: staffID, Date: date, Reason: "break lies outside the working window"}
		}
	} else if r.breakEnd < r.breakStart {
		return &model.ConfigError{StaffID: staffID, Date: date, Reason: "break interval inverted (end < start)"}
	}
	return nil
}
