package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/engine"
	"github.com/dkozlov-dev/barberdesk/services/availability-service/internal/model"
)

// Availability is the engine surface the HTTP layer needs. Satisfied by
// *engine.Engine; tests substitute a fake.
type Availability interface {
	QueryAvailability(ctx context.Context, q engine.Query) (*engine.Result, error)
	CommitBooking(ctx context.Context, req engine.CommitRequest) (model.Appointment, error)
	CancelBooking(ctx context.Context, shopID, apptID, reason string) (model.Appointment, error)
	ListAppointments(ctx context.Context, shopID, staffID string, from, to time.Time) ([]model.Appointment, error)
}

type AvailabilityHandler struct {
	engine      Availability
	logger      *slog.Logger
	idempotency IdempotencyStore
	events      EventSink
}

func NewAvailabilityHandler(eng Availability, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: eng, logger: logger}
}

type slotItem struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

type staffDayItem struct {
	StaffID   string     `json:"staff_id"`
	StaffName string     `json:"staff_name"`
	Slots     []slotItem `json:"slots"`
}

type dayItem struct {
	Date  string         `json:"date"`
	Staff []staffDayItem `json:"staff"`
}

type suggestionItem struct {
	StaffID   string `json:"staff_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type skippedItem struct {
	StaffID string `json:"staff_id,omitempty"`
	Date    string `json:"date"`
	Reason  string `json:"reason"`
}

type availabilityResponse struct {
	Days              []dayItem       `json:"days"`
	TotalDurationMins int             `json:"total_duration_minutes"`
	TotalPriceCents   int64           `json:"total_price_cents"`
	NextAvailable     *suggestionItem `json:"next_available,omitempty"`
	Skipped           []skippedItem   `json:"skipped,omitempty"`
}

func (h *AvailabilityHandler) Query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	shopID := strings.TrimSpace(q.Get("shop_id"))
	serviceIDs := splitList(q.Get("service_ids"))
	startDate := strings.TrimSpace(q.Get("start_date"))
	if shopID == "" || len(serviceIDs) == 0 || startDate == "" {
		http.Error(w, "shop_id, service_ids, and start_date are required", http.StatusBadRequest)
		return
	}
	if _, err := time.Parse("2006-01-02", startDate); err != nil {
		http.Error(w, "start_date must be YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	days := 0
	if raw := strings.TrimSpace(q.Get("days")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 31 {
			http.Error(w, "days must be 1-31", http.StatusBadRequest)
			return
		}
		days = n
	}

	res, err := h.engine.QueryAvailability(r.Context(), engine.Query{
		ShopID:     shopID,
		ServiceIDs: serviceIDs,
		StaffIDs:   splitList(q.Get("staff_ids")),
		StartDate:  startDate,
		Days:       days,
	})
	if err != nil {
		h.writeEngineError(w, err, "availability query failed")
		return
	}

	resp := availabilityResponse{
		Days:              make([]dayItem, 0, len(res.Days)),
		TotalDurationMins: res.TotalDurationMins,
		TotalPriceCents:   res.TotalPriceCents,
	}
	for _, d := range res.Days {
		item := dayItem{Date: d.Date, Staff: make([]staffDayItem, 0, len(d.Staff))}
		for _, sd := range d.Staff {
			sdi := staffDayItem{StaffID: sd.StaffID, StaffName: sd.StaffName, Slots: make([]slotItem, 0, len(sd.Slots))}
			for _, s := range sd.Slots {
				sdi.Slots = append(sdi.Slots, slotItem{
					StartTime: s.Start.UTC().Format(time.RFC3339),
					EndTime:   s.End.UTC().Format(time.RFC3339),
					Available: s.Available,
					Reason:    s.Reason,
				})
			}
			item.Staff = append(item.Staff, sdi)
		}
		resp.Days = append(resp.Days, item)
	}
	if res.NextAvailable != nil {
		resp.NextAvailable = &suggestionItem{
			StaffID:   res.NextAvailable.StaffID,
			Date:      res.NextAvailable.Date,
			StartTime: res.NextAvailable.Start.UTC().Format(time.RFC3339),
			EndTime:   res.NextAvailable.End.UTC().Format(time.RFC3339),
		}
	}
	for _, s := range res.Skipped {
		resp.Skipped = append(resp.Skipped, skippedItem{StaffID: s.StaffID, Date: s.Date, Reason: s.Reason})
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *AvailabilityHandler) writeEngineError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case engine.IsInvalidArgument(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case engine.IsNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case engine.IsConflict(err):
		http.Error(w, "time slot already booked", http.StatusConflict)
	case engine.IsOutsideAvailability(err):
		http.Error(w, "requested time is not bookable", http.StatusUnprocessableEntity)
	default:
		h.logger.Error(logMsg, "err", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
