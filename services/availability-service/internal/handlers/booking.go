package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/engine"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/outbox"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/storage"
)

// IdempotencyStore serializes commit retries carrying the same
// Idempotency-Key and replays the first outcome. nil disables the feature.
type IdempotencyStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	LockIdempotencyKey(ctx context.Context, tx pgx.Tx, shopID, key string) (storage.IdempotencyRecord, bool, error)
	FinalizeIdempotency(ctx context.Context, tx pgx.Tx, shopID, key, appointmentID string, statusCode int, response []byte) error
}

// EventSink records booking lifecycle events for asynchronous delivery.
type EventSink interface {
	InsertStandalone(ctx context.Context, evt outbox.Event) error
}

func (h *AvailabilityHandler) WithIdempotency(store IdempotencyStore) *AvailabilityHandler {
	h.idempotency = store
	return h
}

func (h *AvailabilityHandler) WithEvents(sink EventSink) *AvailabilityHandler {
	h.events = sink
	return h
}

type createBookingRequest struct {
	ShopID        string   `json:"shop_id"`
	StaffID       string   `json:"staff_id"`
	ServiceIDs    []string `json:"service_ids"`
	StartTime     string   `json:"start_time"`
	CustomerName  string   `json:"customer_name"`
	CustomerEmail string   `json:"customer_email"`
	CustomerPhone string   `json:"customer_phone"`
}

type createBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	StartTime     string `json:"start_time"`
	EndTime       string `json:"end_time"`
	Status        string `json:"status"`
}

type cancelBookingRequest struct {
	ShopID        string `json:"shop_id"`
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type cancelBookingResponse struct {
	AppointmentID string `json:"appointment_id"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at"`
}

func (h *AvailabilityHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.StaffID = strings.TrimSpace(req.StaffID)
	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.ShopID == "" || req.StaffID == "" || len(req.ServiceIDs) == 0 || req.CustomerName == "" {
		http.Error(w, "missing required fields", http.StatusBadRequest)
		return
	}
	start, err := time.Parse(time.RFC3339, req.StartTime)
	if err != nil {
		http.Error(w, "invalid start_time", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if key != "" && h.idempotency != nil {
		h.createWithIdempotency(ctx, w, req, start, key)
		return
	}

	status, body := h.commit(ctx, req, start)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// createWithIdempotency holds the keyed row locked while the commit runs, so
// a concurrent retry with the same key waits and then replays the outcome.
func (h *AvailabilityHandler) createWithIdempotency(ctx context.Context, w http.ResponseWriter, req createBookingRequest, start time.Time, key string) {
	tx, err := h.idempotency.Begin(ctx)
	if err != nil {
		http.Error(w, "db error", http.StatusInternalServerError)
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rec, exists, err := h.idempotency.LockIdempotencyKey(ctx, tx, req.ShopID, key)
	if err != nil {
		http.Error(w, "failed to lock idempotency key", http.StatusInternalServerError)
		return
	}
	if exists && rec.StatusCode > 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.ResponsePayload)
		return
	}

	status, body := h.commit(ctx, req, start)
	if status >= http.StatusInternalServerError {
		// Dependency failure: leave the key open so the client can retry.
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(body)
		return
	}

	apptID := ""
	if status == http.StatusCreated {
		var resp createBookingResponse
		if err := json.Unmarshal(body, &resp); err == nil {
			apptID = resp.AppointmentID
		}
	}
	if err := h.idempotency.FinalizeIdempotency(ctx, tx, req.ShopID, key, apptID, status, body); err != nil {
		http.Error(w, "failed to finalize idempotency key", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(ctx); err != nil {
		http.Error(w, "failed to commit", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// commit runs the engine's booking protocol and renders the outcome as a
// status code plus JSON body, so idempotent and plain paths share it.
func (h *AvailabilityHandler) commit(ctx context.Context, req createBookingRequest, start time.Time) (int, []byte) {
	appt, err := h.engine.CommitBooking(ctx, engine.CommitRequest{
		ShopID:        req.ShopID,
		StaffID:       req.StaffID,
		ServiceIDs:    req.ServiceIDs,
		Start:         start,
		CustomerName:  req.CustomerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
	})
	if err != nil {
		switch {
		case engine.IsConflict(err):
			return http.StatusConflict, errorBody("time slot already booked")
		case engine.IsOutsideAvailability(err):
			return http.StatusUnprocessableEntity, errorBody("requested time is not bookable")
		case engine.IsNotFound(err):
			return http.StatusNotFound, errorBody(err.Error())
		case engine.IsInvalidArgument(err):
			return http.StatusBadRequest, errorBody(err.Error())
		default:
			h.logger.Error("booking commit failed", "err", err)
			return http.StatusInternalServerError, errorBody("internal error")
		}
	}

	h.emitBookingCommitted(ctx, appt.ID, req, appt.StartTime, appt.EndTime)

	body, _ := json.Marshal(createBookingResponse{
		AppointmentID: appt.ID,
		StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
		EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
		Status:        appt.Status,
	})
	return http.StatusCreated, body
}

func (h *AvailabilityHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelBookingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.ShopID = strings.TrimSpace(req.ShopID)
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.ShopID == "" || req.AppointmentID == "" {
		http.Error(w, "shop_id and appointment_id required", http.StatusBadRequest)
		return
	}

	appt, err := h.engine.CancelBooking(r.Context(), req.ShopID, req.AppointmentID, strings.TrimSpace(req.Reason))
	if err != nil {
		h.writeEngineError(w, err, "booking cancel failed")
		return
	}

	if h.events != nil {
		evt, err := outbox.NewEvent("appointment", appt.ID, outbox.EventBookingCancelled, outbox.BookingCancelledPayload{
			AppointmentID: appt.ID,
			ShopID:        appt.ShopID,
			StaffID:       appt.StaffID,
			Reason:        appt.CancelReason,
		})
		if err == nil {
			err = h.events.InsertStandalone(r.Context(), evt)
		}
		if err != nil {
			h.logger.Warn("cancel event not recorded", "err", err, "appointment_id", appt.ID)
		}
	}

	resp := cancelBookingResponse{AppointmentID: appt.ID, Status: appt.Status}
	if appt.CancelledAt != nil {
		resp.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

type listAppointmentItem struct {
	AppointmentID string   `json:"appointment_id"`
	StaffID       string   `json:"staff_id"`
	ServiceIDs    []string `json:"service_ids"`
	CustomerName  string   `json:"customer_name"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
	Status        string   `json:"status"`
	CancelledAt   string   `json:"cancelled_at,omitempty"`
	CreatedAt     string   `json:"created_at"`
}

func (h *AvailabilityHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	shopID := strings.TrimSpace(q.Get("shop_id"))
	if shopID == "" {
		http.Error(w, "shop_id required", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	from, to := now, now.AddDate(0, 0, 30)
	if raw := strings.TrimSpace(q.Get("from")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid from", http.StatusBadRequest)
			return
		}
		from = t
	}
	if raw := strings.TrimSpace(q.Get("to")); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "invalid to", http.StatusBadRequest)
			return
		}
		to = t
	}
	if !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}

	appts, err := h.engine.ListAppointments(r.Context(), shopID, strings.TrimSpace(q.Get("staff_id")), from, to)
	if err != nil {
		h.writeEngineError(w, err, "appointment list failed")
		return
	}

	items := make([]listAppointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := listAppointmentItem{
			AppointmentID: appt.ID,
			StaffID:       appt.StaffID,
			ServiceIDs:    appt.ServiceIDs,
			CustomerName:  appt.CustomerName,
			StartTime:     appt.StartTime.UTC().Format(time.RFC3339),
			EndTime:       appt.EndTime.UTC().Format(time.RFC3339),
			Status:        appt.Status,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *AvailabilityHandler) emitBookingCommitted(ctx context.Context, apptID string, req createBookingRequest, start, end time.Time) {
	if h.events == nil {
		return
	}
	evt, err := outbox.NewEvent("appointment", apptID, outbox.EventBookingCommitted, outbox.BookingCommittedPayload{
		AppointmentID: apptID,
		ShopID:        req.ShopID,
		StaffID:       req.StaffID,
		ServiceIDs:    req.ServiceIDs,
		StartTime:     start.UTC().Format(time.RFC3339),
		EndTime:       end.UTC().Format(time.RFC3339),
	})
	if err == nil {
		err = h.events.InsertStandalone(ctx, evt)
	}
	if err != nil {
		h.logger.Warn("commit event not recorded", "err", err, "appointment_id", apptID)
	}
}

func errorBody(msg string) []byte {
	body, _ := json.Marshal(map[string]string{"error": msg})
	return body
}
