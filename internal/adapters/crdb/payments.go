package crdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-booking/internal/domain"
)

func (r *Repository) InsertPaymentTx(ctx context.Context, tx pgx.Tx, p domain.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, amount_cents, method)
		VALUES ($1, $2, $3, $4)
	`, p.ID, p.BookingID, p.AmountCents, p.Method)
	return err
}

func (r *Repository) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	return scanPayment(r.pool.QueryRow(ctx, `
		SELECT id, booking_id, amount_cents, method FROM payments WHERE id = $1
	`, id))
}

// GetPaymentTx locks the payment row for the duration of a cascade removal.
func (r *Repository) GetPaymentTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Payment, error) {
	return scanPayment(tx.QueryRow(ctx, `
		SELECT id, booking_id, amount_cents, method FROM payments WHERE id = $1
		FOR UPDATE
	`, id))
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.AmountCents, &p.Method)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) DeletePaymentTx(ctx context.Context, tx pgx.Tx, id int64) error {
	tag, err := tx.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) DeletePaymentsOfBookingTx(ctx context.Context, tx pgx.Tx, bookingID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM payments WHERE booking_id = $1`, bookingID)
	return err
}
