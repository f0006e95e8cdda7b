package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"testing"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/configcache"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// 2026-03-09 is a Monday.
var testNow = time.Date(2026, 3, 9, 6, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	services   []model.Service
	staff      []model.StaffMember
	rules      map[string][7]model.WeeklyWorkingRule
	exceptions []model.DateException
	appts      []model.Appointment
	blocks     []model.CalendarBlock
	breaks     []model.TemporaryBreak
	policy     model.BookingPolicy
	capacity   []model.CapacityConfig
	nextID     int
}

func weekdayRules(staffID string, days []int, startMin, endMin, brStart, brEnd int) [7]model.WeeklyWorkingRule {
	var rules [7]model.WeeklyWorkingRule
	for i := range rules {
		rules[i] = model.WeeklyWorkingRule{StaffID: staffID, Weekday: i}
	}
	for _, d := range days {
		rules[d] = model.WeeklyWorkingRule{
			StaffID:          staffID,
			Weekday:          d,
			IsWorking:        true,
			StartMinute:      startMin,
			EndMinute:        endMin,
			BreakStartMinute: brStart,
			BreakEndMinute:   brEnd,
		}
	}
	return rules
}

// newFakeStore builds the baseline shop: one barber working Mon-Fri
// 09:00-17:00 with a 13:00-14:00 break, one 30 minute service.
func newFakeStore() *fakeStore {
	return &fakeStore{
		services: []model.Service{
			{ID: "svc-cut", ShopID: "shop-1", Name: "Haircut", DurationMins: 30, PriceCents: 2500, IsActive: true},
		},
		staff: []model.StaffMember{
			{ID: "staff-anna", ShopID: "shop-1", Name: "Anna", IsActive: true},
		},
		rules: map[string][7]model.WeeklyWorkingRule{
			"staff-anna": weekdayRules("staff-anna", []int{1, 2, 3, 4, 5}, 9*60, 17*60, 13*60, 14*60),
		},
		policy: model.DefaultBookingPolicy("shop-1"),
	}
}

func (f *fakeStore) GetServices(ctx context.Context, shopID string, serviceIDs []string) ([]model.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Service
	for _, id := range serviceIDs {
		found := false
		for _, s := range f.services {
			if s.ID == id && s.ShopID == shopID && s.IsActive {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: service %s", ErrNotFound, id)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveStaff(ctx context.Context, shopID string) ([]model.StaffMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.StaffMember
	for _, s := range f.staff {
		if s.ShopID == shopID && s.IsActive {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) GetWeeklyRules(ctx context.Context, staffID string) ([7]model.WeeklyWorkingRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rules[staffID], nil
}

func (f *fakeStore) ListDateExceptions(ctx context.Context, shopID, staffID, fromDate, toDate string) ([]model.DateException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.DateException
	for _, ex := range f.exceptions {
		if ex.ShopID != shopID || ex.Date < fromDate || ex.Date > toDate {
			continue
		}
		if ex.StaffID == "" || ex.StaffID == staffID {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (f *fakeStore) ListActiveAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.ShopID != shopID || a.StaffID != staffID || !isActiveStatus(a.Status) {
			continue
		}
		if a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) ListCalendarBlocks(ctx context.Context, staffID string, from, to time.Time) ([]model.CalendarBlock, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CalendarBlock
	for _, b := range f.blocks {
		if b.StaffID == staffID && b.StartTime.Before(to) && from.Before(b.EndTime) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListTemporaryBreaks(ctx context.Context, staffID string, from, to time.Time) ([]model.TemporaryBreak, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TemporaryBreak
	for _, b := range f.breaks {
		if b.StaffID == staffID && b.Start.Before(to) && from.Before(b.End) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (f *fakeStore) ListShopOccupancy(ctx context.Context, shopID string, from, to time.Time) ([]interval.Interval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interval.Interval
	for _, a := range f.appts {
		if a.ShopID == shopID && isActiveStatus(a.Status) && a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, interval.Interval{Start: a.StartTime, End: a.EndTime})
		}
	}
	for _, b := range f.blocks {
		if b.StartTime.Before(to) && from.Before(b.EndTime) {
			out = append(out, interval.Interval{Start: b.StartTime, End: b.EndTime})
		}
	}
	return out, nil
}

func (f *fakeStore) GetBookingPolicy(ctx context.Context, shopID string) (model.BookingPolicy, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.policy, nil
}

func (f *fakeStore) ListCapacityConfigs(ctx context.Context, shopID string) ([]model.CapacityConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.capacity, nil
}

func (f *fakeStore) InsertAppointment(ctx context.Context, appt *model.Appointment) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.appts {
		if existing.StaffID != appt.StaffID || !isActiveStatus(existing.Status) {
			continue
		}
		if appt.StartTime.Before(existing.EndTime) && existing.StartTime.Before(appt.EndTime) {
			return model.Appointment{}, fmt.Errorf("%w: staff %s", ErrBookingConflict, appt.StaffID)
		}
	}
	f.nextID++
	stored := *appt
	stored.ID = fmt.Sprintf("appt-%d", f.nextID)
	stored.CreatedAt = time.Now().UTC()
	f.appts = append(f.appts, stored)
	return stored, nil
}

func (f *fakeStore) GetAppointment(ctx context.Context, shopID, apptID string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appts {
		if a.ID == apptID && a.ShopID == shopID {
			return a, nil
		}
	}
	return model.Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, apptID)
}

func (f *fakeStore) CancelAppointment(ctx context.Context, shopID, apptID, reason string) (model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.appts {
		a := &f.appts[i]
		if a.ID != apptID || a.ShopID != shopID {
			continue
		}
		if !isActiveStatus(a.Status) {
			return model.Appointment{}, fmt.Errorf("%w: appointment %s not active", ErrNotFound, apptID)
		}
		now := time.Now().UTC()
		a.Status = model.StatusCancelled
		a.CancelledAt = &now
		a.CancelReason = reason
		return *a, nil
	}
	return model.Appointment{}, fmt.Errorf("%w: appointment %s", ErrNotFound, apptID)
}

func (f *fakeStore) ListAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Appointment
	for _, a := range f.appts {
		if a.ShopID != shopID {
			continue
		}
		if staffID != "" && a.StaffID != staffID {
			continue
		}
		if a.StartTime.Before(to) && from.Before(a.EndTime) {
			out = append(out, a)
		}
	}
	return out, nil
}

func isActiveStatus(status string) bool {
	for _, s := range model.ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func newTestEngine(store *fakeStore, notifier Notifier) *Engine {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := New(store, configcache.New(store), notifier, logger)
	e.now = func() time.Time { return testNow }
	return e
}

func slotAt(sd StaffDay, hour, min int) (s slotState, ok bool) {
	want := time.Date(2026, 3, 9, hour, min, 0, 0, time.UTC)
	for _, sl := range sd.Slots {
		if sl.Start.Equal(want) {
			return slotState{sl.Available, sl.Reason}, true
		}
	}
	return slotState{}, false
}

type slotState struct {
	available bool
	reason    string
}

func TestQueryAvailabilityCompilesDay(t *testing.T) {
	store := newFakeStore()
	store.appts = append(store.appts, model.Appointment{
		ID: "appt-existing", ShopID: "shop-1", StaffID: "staff-anna",
		StartTime: time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC),
		Status:    model.StatusConfirmed,
	})
	e := newTestEngine(store, nil)

	res, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "2026-03-09",
		Days:       1,
	})
	if err != nil {
		t.Fatalf("QueryAvailability: %v", err)
	}
	if res.TotalDurationMins != 30 || res.TotalPriceCents != 2500 {
		t.Fatalf("totals = %d mins, %d cents", res.TotalDurationMins, res.TotalPriceCents)
	}
	if len(res.Days) != 1 || res.Days[0].Date != "2026-03-09" {
		t.Fatalf("days = %+v", res.Days)
	}
	if len(res.Days[0].Staff) != 1 {
		t.Fatalf("staff days = %d", len(res.Days[0].Staff))
	}
	sd := res.Days[0].Staff[0]

	for _, tc := range []struct {
		hour, min int
		available bool
	}{
		{9, 0, true},    // opening slot
		{9, 45, false},  // would run into the 10:00 appointment
		{10, 0, false},  // occupied
		{10, 30, true},  // appointment end is exclusive
		{12, 45, false}, // runs into the recurring break
		{14, 0, true},   // first slot after the break
		{16, 30, true},  // exact fit at closing
	} {
		got, ok := slotAt(sd, tc.hour, tc.min)
		if !ok {
			t.Fatalf("no slot at %02d:%02d", tc.hour, tc.min)
		}
		if got.available != tc.available {
			t.Errorf("slot %02d:%02d available = %v (reason %q), want %v", tc.hour, tc.min, got.available, got.reason, tc.available)
		}
	}
	if _, ok := slotAt(sd, 13, 0); ok {
		t.Error("slot emitted inside the recurring break")
	}
	if _, ok := slotAt(sd, 8, 45); ok {
		t.Error("slot emitted before opening")
	}
}

func TestQueryAvailabilityUnknownService(t *testing.T) {
	e := newTestEngine(newFakeStore(), nil)
	_, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-nope"},
		StartDate:  "2026-03-09",
	})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestQueryAvailabilityBadStartDate(t *testing.T) {
	e := newTestEngine(newFakeStore(), nil)
	_, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "March 9th",
	})
	if !IsInvalidArgument(err) {
		t.Fatalf("err = %v, want invalid-argument", err)
	}
}

func TestQueryAvailabilityUnknownStaffFilter(t *testing.T) {
	e := newTestEngine(newFakeStore(), nil)
	_, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StaffIDs:   []string{"staff-ghost"},
		StartDate:  "2026-03-09",
	})
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want not-found", err)
	}
}

func TestQueryAvailabilityMisconfiguredStaffSkipped(t *testing.T) {
	store := newFakeStore()
	store.staff = append(store.staff, model.StaffMember{ID: "staff-bob", ShopID: "shop-1", Name: "Bob", IsActive: true})
	// Inverted working hours: configuration error for Bob only.
	store.rules["staff-bob"] = weekdayRules("staff-bob", []int{1}, 17*60, 9*60, 0, 0)
	e := newTestEngine(store, nil)

	res, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "2026-03-09",
		Days:       1,
	})
	if err != nil {
		t.Fatalf("QueryAvailability: %v", err)
	}
	if len(res.Days) != 1 || len(res.Days[0].Staff) != 1 || res.Days[0].Staff[0].StaffID != "staff-anna" {
		t.Fatalf("days = %+v", res.Days)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].StaffID != "staff-bob" {
		t.Fatalf("skipped = %+v", res.Skipped)
	}
}

func TestQueryAvailabilityShopClosureWinsOverStaffException(t *testing.T) {
	store := newFakeStore()
	store.exceptions = []model.DateException{
		{ID: "ex-shop", ShopID: "shop-1", Date: "2026-03-09", Closed: true, Reason: "holiday"},
		{ID: "ex-anna", ShopID: "shop-1", StaffID: "staff-anna", Date: "2026-03-09", StartMinute: 10 * 60, EndMinute: 12 * 60},
	}
	e := newTestEngine(store, nil)

	res, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "2026-03-09",
		Days:       1,
	})
	if err != nil {
		t.Fatalf("QueryAvailability: %v", err)
	}
	if len(res.Days) != 0 {
		t.Fatalf("days = %+v, want none on a shop holiday", res.Days)
	}
}

func TestQueryAvailabilityForwardScan(t *testing.T) {
	store := newFakeStore()
	// Works Tuesdays only: the Monday query window is empty.
	store.rules["staff-anna"] = weekdayRules("staff-anna", []int{2}, 9*60, 17*60, 0, 0)
	e := newTestEngine(store, nil)

	res, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "2026-03-09",
		Days:       1,
	})
	if err != nil {
		t.Fatalf("QueryAvailability: %v", err)
	}
	if len(res.Days) != 0 {
		t.Fatalf("days = %+v, want empty window", res.Days)
	}
	if res.NextAvailable == nil {
		t.Fatal("no forward-scan suggestion")
	}
	if res.NextAvailable.Date != "2026-03-10" {
		t.Errorf("suggestion date = %s, want 2026-03-10", res.NextAvailable.Date)
	}
	wantStart := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	if !res.NextAvailable.Start.Equal(wantStart) {
		t.Errorf("suggestion start = %v, want %v", res.NextAvailable.Start, wantStart)
	}
	if got := res.NextAvailable.End.Sub(res.NextAvailable.Start); got != 30*time.Minute {
		t.Errorf("suggestion span = %v", got)
	}
}

func TestQueryAvailabilityHorizonBoundsForwardScan(t *testing.T) {
	store := newFakeStore()
	store.policy.MaxAdvanceDays = 3
	// Never working: nothing inside the horizon either.
	store.rules["staff-anna"] = weekdayRules("staff-anna", nil, 0, 0, 0, 0)
	e := newTestEngine(store, nil)

	res, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "2026-03-09",
		Days:       1,
	})
	if err != nil {
		t.Fatalf("QueryAvailability: %v", err)
	}
	if res.NextAvailable != nil {
		t.Fatalf("suggestion = %+v, want none past the advance horizon", res.NextAvailable)
	}
}

func TestQueryAvailabilityRepeatIsStable(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)
	q := Query{ShopID: "shop-1", ServiceIDs: []string{"svc-cut"}, StartDate: "2026-03-09", Days: 2}

	first, err := e.QueryAvailability(context.Background(), q)
	if err != nil {
		t.Fatalf("first query: %v", err)
	}
	second, err := e.QueryAvailability(context.Background(), q)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if len(first.Days) != len(second.Days) {
		t.Fatalf("day counts differ: %d vs %d", len(first.Days), len(second.Days))
	}
	for i := range first.Days {
		a, b := first.Days[i].Staff[0].Slots, second.Days[i].Staff[0].Slots
		if len(a) != len(b) {
			t.Fatalf("slot counts differ on %s", first.Days[i].Date)
		}
		for j := range a {
			if a[j] != b[j] {
				t.Fatalf("slot %d on %s differs: %+v vs %+v", j, first.Days[i].Date, a[j], b[j])
			}
		}
	}
}

func TestQueryAvailabilityUpstreamPolicyError(t *testing.T) {
	store := newFakeStore()
	e := newTestEngine(store, nil)
	// Poison the cache store after construction: swap in a failing policy.
	failing := &failingPolicyStore{fakeStore: store}
	e.cfg = configcache.New(failing)

	_, err := e.QueryAvailability(context.Background(), Query{
		ShopID:     "shop-1",
		ServiceIDs: []string{"svc-cut"},
		StartDate:  "2026-03-09",
	})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("err = %v, want upstream", err)
	}
}

type failingPolicyStore struct {
	*fakeStore
}

func (f *failingPolicyStore) GetBookingPolicy(ctx context.Context, shopID string) (model.BookingPolicy, error) {
	return model.BookingPolicy{}, errors.New("connection refused")
}
