package outbox

import "context"

// Notifier turns availability-changed callbacks into outbox events.
// Satisfies the engine's Notifier contract; the engine treats failures as
// best effort, so errors are reported, never retried here.
type Notifier struct {
	repo *Repository
}

func NewNotifier(repo *Repository) *Notifier {
	return &Notifier{repo: repo}
}

func (n *Notifier) AvailabilityChanged(ctx context.Context, shopID, staffID, date string, availableCount int) error {
	evt, err := NewEvent("staff_day", shopID+":"+staffID+":"+date, EventAvailabilityChanged, AvailabilityChangedPayload{
		ShopID:         shopID,
		StaffID:        staffID,
		Date:           date,
		AvailableCount: availableCount,
	})
	if err != nil {
		return err
	}
	return n.repo.InsertStandalone(ctx, evt)
}
