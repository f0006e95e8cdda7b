package engine

import (
	"context"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/configcache"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/occupancy"
)

// Store is the persistence collaborator contract the engine runs against.
// The pgx implementation lives in internal/storage; tests use in-memory fakes.
type Store interface {
	occupancy.Store
	configcache.Store

	// GetServices resolves the requested service set. Any unknown or
	// inactive id fails the whole lookup with ErrNotFound.
	GetServices(ctx context.Context, shopID string, serviceIDs []string) ([]model.Service, error)

	// ListActiveStaff returns the shop's active staff, ordered by name.
	ListActiveStaff(ctx context.Context, shopID string) ([]model.StaffMember, error)

	// GetWeeklyRules returns the 7 per-weekday rules for a staff member,
	// indexed by weekday (0 = Sunday).
	GetWeeklyRules(ctx context.Context, staffID string) ([7]model.WeeklyWorkingRule, error)

	// ListDateExceptions returns shop-wide (StaffID == "") and staff-specific
	// exceptions for business-local dates in [fromDate, toDate].
	ListDateExceptions(ctx context.Context, shopID, staffID, fromDate, toDate string) ([]model.DateException, error)

	// ListShopOccupancy returns every active appointment and block interval
	// across all staff of the shop overlapping [from, to). Used for the
	// shop-wide capacity check, so reasons are not needed.
	ListShopOccupancy(ctx context.Context, shopID string, from, to time.Time) ([]interval.Interval, error)

	// InsertAppointment performs the atomic reservation. The storage layer's
	// overlap constraint on (staff, interval) is the final conflict
	// authority; a lost race surfaces as ErrBookingConflict.
	InsertAppointment(ctx context.Context, appt *model.Appointment) (model.Appointment, error)

	// GetAppointment returns an appointment by id, scoped to the shop.
	// ErrNotFound when absent.
	GetAppointment(ctx context.Context, shopID, apptID string) (model.Appointment, error)

	// CancelAppointment moves an active appointment to cancelled and records
	// the reason. ErrNotFound when absent or already terminal.
	CancelAppointment(ctx context.Context, shopID, apptID, reason string) (model.Appointment, error)

	// ListAppointments returns appointments overlapping [from, to), newest
	// first. staffID == "" means all staff.
	ListAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error)
}

// Notifier receives availability-changed events after a successful commit or
// cancellation. Best effort: implementations report errors, callers log and
// move on; a failed notification never fails a booking.
type Notifier interface {
	AvailabilityChanged(ctx context.Context, shopID, staffID, date string, availableCount int) error
}

// NopNotifier discards events.
type NopNotifier struct{}

func (NopNotifier) AvailabilityChanged(context.Context, string, string, string, int) error {
	return nil
}
