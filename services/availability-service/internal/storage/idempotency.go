package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRecord is one remembered commit attempt. A finalized record
// (StatusCode != 0) replays the stored response; an unfinalized one means a
// previous attempt died mid-flight and the caller may retry the commit.
type IdempotencyRecord struct {
	ShopID          string
	IdempotencyKey  string
	AppointmentID   string
	StatusCode      int
	ResponsePayload []byte
}

// LockIdempotencyKey claims (shop, key) inside tx. The returned bool reports
// whether the key already existed. The row stays locked FOR UPDATE until the
// transaction ends, so concurrent retries with the same key serialize here.
func (r *Repository) LockIdempotencyKey(ctx context.Context, tx pgx.Tx, shopID, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectIdempotencyForUpdate(ctx, tx, shopID, key)
	if err == nil {
		return rec, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (shop_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT (shop_id, idempotency_key) DO NOTHING
	`, shopID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectIdempotencyForUpdate(ctx, tx, shopID, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, false, nil
}

func (r *Repository) FinalizeIdempotency(ctx context.Context, tx pgx.Tx, shopID, key, appointmentID string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET appointment_id = $3,
			status_code = $4,
			response_payload = $5,
			updated_at = now()
		WHERE shop_id = $1 AND idempotency_key = $2
	`, shopID, key, appointmentID, statusCode, response)
	return err
}

func (r *Repository) selectIdempotencyForUpdate(ctx context.Context, tx pgx.Tx, shopID, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT shop_id::text,
			idempotency_key,
			COALESCE(appointment_id::text, ''),
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE shop_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, shopID, key).Scan(
		&rec.ShopID,
		&rec.IdempotencyKey,
		&rec.AppointmentID,
		&rec.StatusCode,
		&responseText,
	)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
