package outbox

import "encoding/json"

// Event type names double as Kafka topic names (event per topic).
const (
	EventBookingCommitted    = "booking.committed.v1"
	EventBookingCancelled    = "booking.cancelled.v1"
	EventAvailabilityChanged = "availability.changed.v1"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// BookingCommittedPayload is published after a commit wins the slot.
type BookingCommittedPayload struct {
	AppointmentID string   `json:"appointment_id"`
	ShopID        string   `json:"shop_id"`
	StaffID       string   `json:"staff_id"`
	ServiceIDs    []string `json:"service_ids"`
	StartTime     string   `json:"start_time"`
	EndTime       string   `json:"end_time"`
}

type BookingCancelledPayload struct {
	AppointmentID string `json:"appointment_id"`
	ShopID        string `json:"shop_id"`
	StaffID       string `json:"staff_id"`
	Reason        string `json:"reason"`
}

// AvailabilityChangedPayload carries the recomputed open-slot count for one
// staff member on one business-local date.
type AvailabilityChangedPayload struct {
	ShopID         string `json:"shop_id"`
	StaffID        string `json:"staff_id"`
	Date           string `json:"date"`
	AvailableCount int    `json:"available_count"`
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       data,
	}, nil
}
