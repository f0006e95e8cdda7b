package model

import "time"

// Appointment lifecycle statuses. Only the active set consumes capacity
// when computing future availability.
const (
	StatusPending    = "pending"
	StatusConfirmed  = "confirmed"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
	StatusNoShow     = "no_show"
)

// ActiveStatuses are the appointment statuses that block a staff member's time.
var ActiveStatuses = []string{StatusPending, StatusConfirmed, StatusInProgress}

type Service struct {
	ID           string
	ShopID       string
	Name         string
	DurationMins int
	PriceCents   int64
	IsActive     bool
}

type StaffMember struct {
	ID        string
	ShopID    string
	Name      string
	AvatarURL string
	IsActive  bool
}

// WeeklyWorkingRule is the base schedule for one staff member on one weekday
// (0 = Sunday). Times are minutes from local midnight. The recurring break is
// optional; BreakStartMinute == BreakEndMinute means no break.
type WeeklyWorkingRule struct {
	StaffID          string
	Weekday          int
	IsWorking        bool
	StartMinute      int
	EndMinute        int
	BreakStartMinute int
	BreakEndMinute   int
}

// HasBreak reports whether the rule carries a recurring break.
func (r WeeklyWorkingRule) HasBreak() bool {
	return r.BreakEndMinute > r.BreakStartMinute
}

// DateException overrides the weekly rule for a single calendar date.
// StaffID == "" means shop-wide (a holiday/closure applying to all staff).
// Closed takes precedence over the custom hours fields.
type DateException struct {
	ID               string
	ShopID           string
	StaffID          string
	Date             string // business-local YYYY-MM-DD
	Closed           bool
	StartMinute      int
	EndMinute        int
	BreakStartMinute int
	BreakEndMinute   int
	Reason           string
}

func (e DateException) HasBreak() bool {
	return e.BreakEndMinute > e.BreakStartMinute
}

// TemporaryBreak is a one-off ad hoc unavailable interval for one staff member,
// distinct from the weekly rule's recurring break. Stored as UTC instants.
type TemporaryBreak struct {
	ID      string
	StaffID string
	Start   time.Time
	End     time.Time
	Reason  string
}

type Appointment struct {
	ID            string
	ShopID        string
	StaffID       string
	ServiceIDs    []string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	StartTime     time.Time
	EndTime       time.Time
	Status        string
	CancelledAt   *time.Time
	CancelReason  string
	CreatedAt     time.Time
}

// CalendarBlock consumes staff time exactly like an appointment but carries
// no customer (manual hold, personal errand, maintenance, ...).
type CalendarBlock struct {
	ID        string
	StaffID   string
	StartTime time.Time
	EndTime   time.Time
	BlockType string
	Note      string
}

// CapacityConfig bounds concurrent shop-wide bookings for a time-of-day band
// [StartMinute, EndMinute). PeakMultiplier scales MaxConcurrent (rounded down,
// never below 1); OverbookAllowance adds headroom on top of the effective max.
type CapacityConfig struct {
	ShopID            string
	StartMinute       int
	EndMinute         int
	MaxConcurrent     int
	PeakMultiplier    float64
	OverbookAllowance int
}

// BookingPolicy is the shop-level rule set applied after slot compilation.
// SameDayCutoffMinute < 0 disables the cutoff.
type BookingPolicy struct {
	ShopID              string
	SlotGranularityMins int
	MinNoticeHours      int
	SameDayCutoffMinute int
	MaxAdvanceDays      int
	Timezone            string
}

// Defaults applied when a shop has no stored policy row.
func DefaultBookingPolicy(shopID string) BookingPolicy {
	return BookingPolicy{
		ShopID:              shopID,
		SlotGranularityMins: 15,
		MinNoticeHours:      0,
		SameDayCutoffMinute: -1,
		MaxAdvanceDays:      30,
		Timezone:            "UTC",
	}
}
