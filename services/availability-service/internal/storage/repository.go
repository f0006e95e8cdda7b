package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dkozlov-dev/barberdesk/libs/db"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/engine"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/interval"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// Repository is the pgx-backed implementation of engine.Store. The
// appointments table carries an exclusion constraint on
// (staff_id, tstzrange(start_time, end_time)) for active rows; Postgres
// raises 23P01 when two inserts race for overlapping staff time, and that is
// the engine's final conflict arbiter.
type Repository struct {
	pool *db.Pool
}

func NewRepository(pool *db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *Repository) GetServices(ctx context.Context, shopID string, serviceIDs []string) ([]model.Service, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name, duration_minutes, price_cents, is_active
		FROM services
		WHERE shop_id = $1 AND id = ANY($2) AND is_active
	`, shopID, serviceIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[string]model.Service, len(serviceIDs))
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.ShopID, &s.Name, &s.DurationMins, &s.PriceCents, &s.IsActive); err != nil {
			return nil, err
		}
		byID[s.ID] = s
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	// Preserve request order and fail fast on any unknown id.
	out := make([]model.Service, 0, len(serviceIDs))
	for _, id := range serviceIDs {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: service %s", engine.ErrNotFound, id)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Repository) ListActiveStaff(ctx context.Context, shopID string) ([]model.StaffMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, name, COALESCE(avatar_url, ''), is_active
		FROM staff
		WHERE shop_id = $1 AND is_active
		ORDER BY name ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StaffMember
	for rows.Next() {
		var m model.StaffMember
		if err := rows.Scan(&m.ID, &m.ShopID, &m.Name, &m.AvatarURL, &m.IsActive); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) GetWeeklyRules(ctx context.Context, staffID string) ([7]model.WeeklyWorkingRule, error) {
	var rules [7]model.WeeklyWorkingRule
	rows, err := r.pool.Query(ctx, `
		SELECT staff_id::text, weekday, is_working, start_minute, end_minute,
			COALESCE(break_start_minute, 0), COALESCE(break_end_minute, 0)
		FROM staff_working_hours
		WHERE staff_id = $1
	`, staffID)
	if err != nil {
		return rules, err
	}
	defer rows.Close()

	for rows.Next() {
		var rule model.WeeklyWorkingRule
		if err := rows.Scan(&rule.StaffID, &rule.Weekday, &rule.IsWorking,
			&rule.StartMinute, &rule.EndMinute, &rule.BreakStartMinute, &rule.BreakEndMinute); err != nil {
			return rules, err
		}
		if rule.Weekday >= 0 && rule.Weekday < 7 {
			rules[rule.Weekday] = rule
		}
	}
	return rules, rows.Err()
}

func (r *Repository) ListDateExceptions(ctx context.Context, shopID, staffID, fromDate, toDate string) ([]model.DateException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, shop_id::text, COALESCE(staff_id::text, ''), date::text, closed,
			COALESCE(start_minute, 0), COALESCE(end_minute, 0),
			COALESCE(break_start_minute, 0), COALESCE(break_end_minute, 0),
			COALESCE(reason, '')
		FROM schedule_exceptions
		WHERE shop_id = $1
			AND (staff_id IS NULL OR staff_id = $2)
			AND date BETWEEN $3 AND $4
		ORDER BY date ASC
	`, shopID, staffID, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DateException
	for rows.Next() {
		var ex model.DateException
		if err := rows.Scan(&ex.ID, &ex.ShopID, &ex.StaffID, &ex.Date, &ex.Closed,
			&ex.StartMinute, &ex.EndMinute, &ex.BreakStartMinute, &ex.BreakEndMinute, &ex.Reason); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, rows.Err()
}

func (r *Repository) ListActiveAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shop_id = $1
			AND staff_id = $2
			AND status = ANY($3)
			AND start_time < $5
			AND end_time > $4
		ORDER BY start_time ASC
	`, shopID, staffID, model.ActiveStatuses, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *Repository) ListCalendarBlocks(ctx context.Context, staffID string, from, to time.Time) ([]model.CalendarBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, staff_id::text, start_time, end_time, block_type, COALESCE(note, '')
		FROM calendar_blocks
		WHERE staff_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CalendarBlock
	for rows.Next() {
		var b model.CalendarBlock
		if err := rows.Scan(&b.ID, &b.StaffID, &b.StartTime, &b.EndTime, &b.BlockType, &b.Note); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) ListTemporaryBreaks(ctx context.Context, staffID string, from, to time.Time) ([]model.TemporaryBreak, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, staff_id::text, start_time, end_time, COALESCE(reason, '')
		FROM staff_time_off
		WHERE staff_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time ASC
	`, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.TemporaryBreak
	for rows.Next() {
		var b model.TemporaryBreak
		if err := rows.Scan(&b.ID, &b.StaffID, &b.Start, &b.End, &b.Reason); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) ListShopOccupancy(ctx context.Context, shopID string, from, to time.Time) ([]interval.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_time, end_time
		FROM appointments
		WHERE shop_id = $1 AND status = ANY($2) AND start_time < $4 AND end_time > $3
		UNION ALL
		SELECT b.start_time, b.end_time
		FROM calendar_blocks b
		JOIN staff s ON s.id = b.staff_id
		WHERE s.shop_id = $1 AND b.start_time < $4 AND b.end_time > $3
	`, shopID, model.ActiveStatuses, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interval.Interval
	for rows.Next() {
		var iv interval.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

func (r *Repository) GetBookingPolicy(ctx context.Context, shopID string) (model.BookingPolicy, error) {
	var p model.BookingPolicy
	err := r.pool.QueryRow(ctx, `
		SELECT shop_id::text, slot_granularity_minutes, min_notice_hours,
			same_day_cutoff_minute, max_advance_days, timezone
		FROM booking_policies
		WHERE shop_id = $1
	`, shopID).Scan(&p.ShopID, &p.SlotGranularityMins, &p.MinNoticeHours,
		&p.SameDayCutoffMinute, &p.MaxAdvanceDays, &p.Timezone)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DefaultBookingPolicy(shopID), nil
	}
	return p, err
}

func (r *Repository) ListCapacityConfigs(ctx context.Context, shopID string) ([]model.CapacityConfig, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT shop_id::text, start_minute, end_minute, max_concurrent,
			peak_multiplier, overbook_allowance
		FROM capacity_configs
		WHERE shop_id = $1
		ORDER BY start_minute ASC
	`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CapacityConfig
	for rows.Next() {
		var c model.CapacityConfig
		if err := rows.Scan(&c.ShopID, &c.StartMinute, &c.EndMinute,
			&c.MaxConcurrent, &c.PeakMultiplier, &c.OverbookAllowance); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) InsertAppointment(ctx context.Context, appt *model.Appointment) (model.Appointment, error) {
	id := uuid.NewString()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO appointments
			(id, shop_id, staff_id, service_ids, customer_name, customer_email, customer_phone,
			 start_time, end_time, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, id, appt.ShopID, appt.StaffID, appt.ServiceIDs, appt.CustomerName, appt.CustomerEmail,
		appt.CustomerPhone, appt.StartTime, appt.EndTime, appt.Status).Scan(&appt.CreatedAt)
	if err != nil {
		if isExclusionViolation(err) {
			return model.Appointment{}, fmt.Errorf("%w: staff %s at %s",
				engine.ErrBookingConflict, appt.StaffID, appt.StartTime.Format(time.RFC3339))
		}
		return model.Appointment{}, err
	}
	stored := *appt
	stored.ID = id
	return stored, nil
}

func (r *Repository) GetAppointment(ctx context.Context, shopID, apptID string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $2 AND shop_id = $1
	`, shopID, apptID)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s", engine.ErrNotFound, apptID)
	}
	return appt, err
}

func (r *Repository) CancelAppointment(ctx context.Context, shopID, apptID, reason string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $3
		WHERE id = $2 AND shop_id = $1 AND status = ANY($4)
		RETURNING `+appointmentColumns+`
	`, shopID, apptID, reason, model.ActiveStatuses)
	appt, err := scanAppointment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Appointment{}, fmt.Errorf("%w: appointment %s not active", engine.ErrNotFound, apptID)
	}
	return appt, err
}

func (r *Repository) ListAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE shop_id = $1
			AND ($2 = '' OR staff_id::text = $2)
			AND start_time < $4
			AND end_time > $3
		ORDER BY start_time DESC
	`, shopID, staffID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

const appointmentColumns = `id::text, shop_id::text, staff_id::text, service_ids::text[],
	customer_name, COALESCE(customer_email, ''), COALESCE(customer_phone, ''),
	start_time, end_time, status, cancelled_at, COALESCE(cancellation_reason, ''), created_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.ShopID,
		&appt.StaffID,
		&appt.ServiceIDs,
		&appt.CustomerName,
		&appt.CustomerEmail,
		&appt.CustomerPhone,
		&appt.StartTime,
		&appt.EndTime,
		&appt.Status,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var out []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, appt)
	}
	return out, rows.Err()
}

func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}
