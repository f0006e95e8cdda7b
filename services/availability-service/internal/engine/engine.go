// Package engine is the availability core: it fans the schedule resolver,
// occupancy collector, capacity model, slot compiler, and policy filter
// across the requested staff and days, and owns the check-then-commit
// booking protocol.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/capacity"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/configcache"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/occupancy"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/schedule"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/slots"
)

// forwardScanDays bounds the "next available slot" search past the
// requested window.
const forwardScanDays = 30

const defaultQueryDays = 7

type Engine struct {
	store    Store
	cfg      *configcache.Cache
	occ      *occupancy.Collector
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, cfg *configcache.Cache, notifier Notifier, logger *slog.Logger) *Engine {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Engine{
		store:    store,
		cfg:      cfg,
		occ:      occupancy.NewCollector(store),
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Query asks for bookable slots for a set of services over a day range.
type Query struct {
	ShopID     string
	ServiceIDs []string
	StaffIDs   []string // optional filter; empty means all active staff
	StartDate  string   // business-local YYYY-MM-DD
	Days       int      // default 7
}

// StaffDay is one staff member's compiled slot list for one date.
type StaffDay struct {
	StaffID   string
	StaffName string
	Slots     []slots.Slot
}

type Day struct {
	Date  string
	Staff []StaffDay
}

// Suggestion is the earliest bookable slot found by the forward scan when the
// requested window is empty. It went through the full pipeline, so it is
// genuinely bookable at suggestion time.
type Suggestion struct {
	StaffID string
	Date    string
	Start   time.Time
	End     time.Time
}

// SkippedStaffDay records a staff/day excluded from the result because of a
// configuration or upstream error. One misconfigured staff member must not
// blank out the whole shop's availability.
type SkippedStaffDay struct {
	StaffID string
	Date    string
	Reason  string
}

type Result struct {
	Days              []Day
	TotalDurationMins int
	TotalPriceCents   int64
	NextAvailable     *Suggestion
	Skipped           []SkippedStaffDay
}

// QueryAvailability runs the full pipeline. Parameter errors (unknown service,
// staff filter resolving to nobody) abort immediately; per-staff/day errors
// are recorded in Skipped and the run continues.
func (e *Engine) QueryAvailability(ctx context.Context, q Query) (*Result, error) {
	if len(q.ServiceIDs) == 0 {
		return nil, fmt.Errorf("%w: no services requested", ErrNotFound)
	}

	policy, err := e.cfg.Policy(ctx, q.ShopID)
	if err != nil {
		return nil, fmt.Errorf("%w: booking policy: %v", ErrUpstream, err)
	}
	loc := locationFor(policy, e.logger)

	services, err := e.store.GetServices(ctx, q.ShopID, q.ServiceIDs)
	if err != nil {
		return nil, err
	}
	totalDur, totalPrice := totals(services)

	staff, err := e.eligibleStaff(ctx, q.ShopID, q.StaffIDs)
	if err != nil {
		return nil, err
	}

	capCfgs, err := e.cfg.Capacity(ctx, q.ShopID)
	if err != nil {
		return nil, fmt.Errorf("%w: capacity config: %v", ErrUpstream, err)
	}

	startDay, err := time.ParseInLocation("2006-01-02", q.StartDate, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start date %q", ErrInvalidArgument, q.StartDate)
	}
	days := q.Days
	if days <= 0 {
		days = defaultQueryDays
	}

	now := e.now()
	result := &Result{
		TotalDurationMins: int(totalDur / time.Minute),
		TotalPriceCents:   totalPrice,
	}

	for i := 0; i < days; i++ {
		day := startDay.AddDate(0, 0, i)
		if !slots.WithinHorizon(day, policy, now, loc) {
			// Beyond the advance horizon: never resolved, simply absent.
			continue
		}
		staffDays, skipped := e.compileDay(ctx, q.ShopID, staff, day, loc, policy, capCfgs, totalDur, now)
		result.Skipped = append(result.Skipped, skipped...)
		if hasAvailable(staffDays) {
			result.Days = append(result.Days, Day{Date: day.In(loc).Format("2006-01-02"), Staff: staffDays})
		}
	}

	if len(result.Days) == 0 {
		result.NextAvailable = e.forwardScan(ctx, q.ShopID, staff, startDay, days, loc, policy, capCfgs, totalDur, now)
	}
	return result, nil
}

// forwardScan re-runs the identical per-day pipeline beyond the requested
// window until the first bookable slot; a shortcut here could suggest a slot
// the commit protocol would refuse.
func (e *Engine) forwardScan(ctx context.Context, shopID string, staff []model.StaffMember, startDay time.Time, afterDays int, loc *time.Location, policy model.BookingPolicy, capCfgs []model.CapacityConfig, totalDur time.Duration, now time.Time) *Suggestion {
	for i := afterDays; i < afterDays+forwardScanDays; i++ {
		day := startDay.AddDate(0, 0, i)
		if !slots.WithinHorizon(day, policy, now, loc) {
			return nil
		}
		staffDays, _ := e.compileDay(ctx, shopID, staff, day, loc, policy, capCfgs, totalDur, now)
		for _, sd := range staffDays {
			for _, s := range sd.Slots {
				if s.Available {
					return &Suggestion{
						StaffID: sd.StaffID,
						Date:    day.In(loc).Format("2006-01-02"),
						Start:   s.Start,
						End:     s.Start.Add(totalDur),
					}
				}
			}
		}
	}
	return nil
}

// compileDay runs resolver → collector → compiler → capacity → policy filter
// for every staff member on one date. Errors are per staff/day: the failing
// staff member is skipped with a reason, the rest proceed.
func (e *Engine) compileDay(ctx context.Context, shopID string, staff []model.StaffMember, day time.Time, loc *time.Location, policy model.BookingPolicy, capCfgs []model.CapacityConfig, totalDur time.Duration, now time.Time) ([]StaffDay, []SkippedStaffDay) {
	dateStr := day.In(loc).Format("2006-01-02")
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	shopOcc, err := e.store.ListShopOccupancy(ctx, shopID, dayStart, dayEnd)
	if err != nil {
		return nil, []SkippedStaffDay{{Date: dateStr, Reason: "shop occupancy: " + err.Error()}}
	}

	granularity := time.Duration(policy.SlotGranularityMins) * time.Minute
	var out []StaffDay
	var skipped []SkippedStaffDay
	for _, member := range staff {
		compiled, err := e.compileStaffDay(ctx, shopID, member.ID, day, dayStart, dayEnd, loc, granularity, totalDur)
		if err != nil {
			skipped = append(skipped, SkippedStaffDay{StaffID: member.ID, Date: dateStr, Reason: err.Error()})
			continue
		}
		if len(compiled) == 0 {
			continue // not working that day
		}
		compiled = applyCapacity(compiled, shopOcc, capCfgs, totalDur, granularity, loc)
		compiled = slots.ApplyPolicy(compiled, policy, now, loc)
		out = append(out, StaffDay{StaffID: member.ID, StaffName: member.Name, Slots: compiled})
	}
	return out, skipped
}

func (e *Engine) compileStaffDay(ctx context.Context, shopID, staffID string, day, dayStart, dayEnd time.Time, loc *time.Location, granularity, totalDur time.Duration) ([]slots.Slot, error) {
	rules, err := e.store.GetWeeklyRules(ctx, staffID)
	if err != nil {
		return nil, fmt.Errorf("weekly rules: %w", err)
	}
	dateStr := day.In(loc).Format("2006-01-02")
	exceptions, err := e.store.ListDateExceptions(ctx, shopID, staffID, dateStr, dateStr)
	if err != nil {
		return nil, fmt.Errorf("date exceptions: %w", err)
	}
	shopEx, staffEx := splitExceptions(exceptions, dateStr)

	weekday := int(day.In(loc).Weekday())
	open, err := schedule.Resolve(day, loc, rules[weekday], shopEx, staffEx)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	entries, err := e.occ.Collect(ctx, shopID, staffID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	return slots.Compile(open, entries, totalDur, granularity), nil
}

// applyCapacity disqualifies starts whose service interval would push the
// shop-wide concurrent booking count past the overbooking ceiling at any
// instant. Capacity is evaluated granule by granule: each granule of the
// service span resolves its own band and counts only the occupancy that
// overlaps that granule, so back-to-back bookings elsewhere in the span
// never stack. Staff unavailability has already been applied; capacity
// only ever narrows.
func applyCapacity(compiled []slots.Slot, shopOcc []interval.Interval, capCfgs []model.CapacityConfig, totalDur, granularity time.Duration, loc *time.Location) []slots.Slot {
	if len(capCfgs) == 0 {
		return compiled
	}
	for i := range compiled {
		if !compiled[i].Available {
			continue
		}
		spanEnd := compiled[i].Start.Add(totalDur)
		for gs := compiled[i].Start; gs.Before(spanEnd); gs = gs.Add(granularity) {
			ge := gs.Add(granularity)
			if ge.After(spanEnd) {
				ge = spanEnd
			}
			granule := interval.Interval{Start: gs, End: ge}
			limit := capacity.Resolve(capCfgs, interval.MinuteOfDay(gs, loc))
			concurrent := 0
			for _, o := range shopOcc {
				if granule.Overlaps(o) {
					concurrent++
				}
			}
			if concurrent >= limit.Ceiling {
				compiled[i].Available = false
				compiled[i].Reason = slots.ReasonCapacity
				break
			}
		}
	}
	return compiled
}

func (e *Engine) eligibleStaff(ctx context.Context, shopID string, filter []string) ([]model.StaffMember, error) {
	all, err := e.store.ListActiveStaff(ctx, shopID)
	if err != nil {
		return nil, fmt.Errorf("%w: list staff: %v", ErrUpstream, err)
	}
	if len(filter) == 0 {
		if len(all) == 0 {
			return nil, fmt.Errorf("%w: shop has no active staff", ErrNotFound)
		}
		return all, nil
	}

	byID := make(map[string]model.StaffMember, len(all))
	for _, s := range all {
		byID[s.ID] = s
	}
	var out []model.StaffMember
	for _, id := range filter {
		member, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: staff %s", ErrNotFound, id)
		}
		out = append(out, member)
	}
	return out, nil
}

func totals(services []model.Service) (time.Duration, int64) {
	var dur time.Duration
	var price int64
	for _, s := range services {
		dur += time.Duration(s.DurationMins) * time.Minute
		price += s.PriceCents
	}
	return dur, price
}

func splitExceptions(exceptions []model.DateException, date string) (shopEx, staffEx *model.DateException) {
	for i := range exceptions {
		ex := exceptions[i]
		if ex.Date != date {
			continue
		}
		if ex.StaffID == "" {
			shopEx = &ex
		} else {
			staffEx = &ex
		}
	}
	return shopEx, staffEx
}

func hasAvailable(staffDays []StaffDay) bool {
	for _, sd := range staffDays {
		for _, s := range sd.Slots {
			if s.Available {
				return true
			}
		}
	}
	return false
}

func locationFor(policy model.BookingPolicy, logger *slog.Logger) *time.Location {
	loc, err := time.LoadLocation(policy.Timezone)
	if err != nil {
		if logger != nil {
			logger.Warn("bad shop timezone; falling back to UTC", "tz", policy.Timezone)
		}
		return time.UTC
	}
	return loc
}
