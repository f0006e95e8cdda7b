package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/slots"
)

// CommitRequest is a slot the client chose from a prior availability query.
// The engine never trusts that read: everything is re-validated against
// fresh state before the write.
type CommitRequest struct {
	ShopID        string
	StaffID       string
	ServiceIDs    []string
	Start         time.Time
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
}

// CommitBooking is the second phase of the two-phase booking protocol:
// re-resolve schedule and occupancy for the requested interval, re-check
// shop capacity, then insert atomically. The storage layer's overlap
// constraint is the final authority on races; the re-check here only
// narrows the window. A conflict is reported, never retried.
func (e *Engine) CommitBooking(ctx context.Context, req CommitRequest) (model.Appointment, error) {
	if len(req.ServiceIDs) == 0 {
		return model.Appointment{}, fmt.Errorf("%w: no services requested", ErrInvalidArgument)
	}

	services, err := e.store.GetServices(ctx, req.ShopID, req.ServiceIDs)
	if err != nil {
		return model.Appointment{}, err
	}
	totalDur, _ := totals(services)

	if _, err := e.eligibleStaff(ctx, req.ShopID, []string{req.StaffID}); err != nil {
		return model.Appointment{}, err
	}

	policy, err := e.cfg.Policy(ctx, req.ShopID)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: booking policy: %v", ErrUpstream, err)
	}
	loc := locationFor(policy, e.logger)
	capCfgs, err := e.cfg.Capacity(ctx, req.ShopID)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("%w: capacity config: %v", ErrUpstream, err)
	}

	now := e.now()
	start := req.Start
	end := start.Add(totalDur)
	day := start.In(loc)

	compiled, err := e.revalidate(ctx, req.ShopID, req.StaffID, day, loc, policy, capCfgs, totalDur, now)
	if err != nil {
		return model.Appointment{}, err
	}
	if !startBookable(compiled, start) {
		return model.Appointment{}, ErrOutsideAvailability
	}

	appt := &model.Appointment{
		ShopID:        req.ShopID,
		StaffID:       req.StaffID,
		ServiceIDs:    req.ServiceIDs,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		StartTime:     start.UTC(),
		EndTime:       end.UTC(),
		Status:        model.StatusConfirmed,
	}
	created, err := e.store.InsertAppointment(ctx, appt)
	if err != nil {
		if IsConflict(err) {
			return model.Appointment{}, err
		}
		return model.Appointment{}, fmt.Errorf("insert appointment: %w", err)
	}

	e.notifyAvailabilityChanged(ctx, req.ShopID, req.StaffID, day, loc, policy, capCfgs, totalDur)
	return created, nil
}

// CancelBooking releases a committed appointment's time. The freed interval
// becomes bookable as soon as the cancellation commits; the availability
// event follows best effort.
func (e *Engine) CancelBooking(ctx context.Context, shopID, apptID, reason string) (model.Appointment, error) {
	appt, err := e.store.CancelAppointment(ctx, shopID, apptID, reason)
	if err != nil {
		return model.Appointment{}, err
	}
	e.NotifyAvailabilityChanged(ctx, shopID, appt.StaffID, appt.StartTime)
	return appt, nil
}

// ListAppointments returns the shop's appointments overlapping [from, to).
func (e *Engine) ListAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	return e.store.ListAppointments(ctx, shopID, staffID, from, to)
}

// NotifyAvailabilityChanged recomputes the staff member's available-slot
// count for a date and emits the change event. Used after commits here and
// after cancellations by the booking lifecycle handler. Best effort.
func (e *Engine) NotifyAvailabilityChanged(ctx context.Context, shopID, staffID string, day time.Time) {
	policy, err := e.cfg.Policy(ctx, shopID)
	if err != nil {
		e.logger.Warn("availability-changed notification skipped", "err", err)
		return
	}
	loc := locationFor(policy, e.logger)
	capCfgs, err := e.cfg.Capacity(ctx, shopID)
	if err != nil {
		e.logger.Warn("availability-changed notification skipped", "err", err)
		return
	}
	// Duration of one granule: the count is a coarse "how open is this day"
	// signal, not a per-service figure.
	granule := time.Duration(policy.SlotGranularityMins) * time.Minute
	e.notifyAvailabilityChanged(ctx, shopID, staffID, day.In(loc), loc, policy, capCfgs, granule)
}

func (e *Engine) notifyAvailabilityChanged(ctx context.Context, shopID, staffID string, day time.Time, loc *time.Location, policy model.BookingPolicy, capCfgs []model.CapacityConfig, totalDur time.Duration) {
	count := 0
	compiled, err := e.revalidate(ctx, shopID, staffID, day, loc, policy, capCfgs, totalDur, e.now())
	if err == nil {
		for _, s := range compiled {
			if s.Available {
				count++
			}
		}
	} else {
		e.logger.Warn("availability recount failed; notifying count 0", "err", err, "staff_id", staffID)
	}

	date := day.In(loc).Format("2006-01-02")
	if err := e.notifier.AvailabilityChanged(ctx, shopID, staffID, date, count); err != nil {
		// Fire and forget: a failed notification never fails the booking.
		e.logger.Warn("availability-changed notification failed", "err", err, "staff_id", staffID, "date", date)
	}
}

// revalidate runs the same per-staff pipeline the aggregator uses, so
// display and commit compute bookable time identically.
func (e *Engine) revalidate(ctx context.Context, shopID, staffID string, day time.Time, loc *time.Location, policy model.BookingPolicy, capCfgs []model.CapacityConfig, totalDur time.Duration, now time.Time) ([]slots.Slot, error) {
	if !slots.WithinHorizon(day, policy, now, loc) {
		return nil, ErrOutsideAvailability
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	granularity := time.Duration(policy.SlotGranularityMins) * time.Minute
	compiled, err := e.compileStaffDay(ctx, shopID, staffID, day, dayStart, dayEnd, loc, granularity, totalDur)
	if err != nil {
		return nil, err
	}
	if len(compiled) == 0 {
		return nil, nil
	}

	shopOcc, err := e.store.ListShopOccupancy(ctx, shopID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("%w: shop occupancy: %v", ErrUpstream, err)
	}
	compiled = applyCapacity(compiled, shopOcc, capCfgs, totalDur, granularity, loc)
	return slots.ApplyPolicy(compiled, policy, now, loc), nil
}

func startBookable(compiled []slots.Slot, start time.Time) bool {
	for _, s := range compiled {
		if s.Start.Equal(start) {
			return s.Available
		}
	}
	return false
}
