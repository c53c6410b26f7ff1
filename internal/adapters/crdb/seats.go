package crdb

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-booking/internal/domain"
)

// MaterializeInventoryTx creates the seat pool for a show: one show_seats row
// per physical seat label, booking_id NULL, price drawn from rule. It must
// run exactly once per (show, theater); a second call fails with
// DuplicateInventoryError. Returns the created seat ids in label order.
func (r *Repository) MaterializeInventoryTx(ctx context.Context, tx pgx.Tx, showID int64, theaterID string, seatLabels []string, rule domain.PricingRule) ([]int64, error) {
	if len(seatLabels) == 0 || !rule.Valid() {
		return nil, domain.ErrInvalidInput
	}

	var existing int64
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM show_seats WHERE show_id = $1`, showID).Scan(&existing); err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, &domain.DuplicateInventoryError{ShowID: showID, TheaterID: theaterID}
	}

	ids := make([]int64, 0, len(seatLabels))
	batch := &pgx.Batch{}
	for _, label := range seatLabels {
		id, err := r.NextIDTx(ctx, tx, CounterShowSeats)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		batch.Queue(`
			INSERT INTO show_seats (id, show_id, seat_label, price_cents, booking_id)
			VALUES ($1, $2, $3, $4, NULL)
		`, id, showID, label, r.seatPrice(rule))
	}
	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range seatLabels {
		if _, err := br.Exec(); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// ListFreeSeats returns the currently unbound seats of a show. The snapshot
// may be stale by the time a bind is attempted; BindSeats is the arbiter.
func (r *Repository) ListFreeSeats(ctx context.Context, showID int64) ([]domain.FreeSeat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, seat_label, price_cents
		FROM show_seats WHERE show_id = $1 AND booking_id IS NULL
		ORDER BY id
	`, showID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var seats []domain.FreeSeat
	for rows.Next() {
		var s domain.FreeSeat
		if err := rows.Scan(&s.SeatID, &s.SeatLabel, &s.PriceCents); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// BindSeats sets booking_id on exactly the named seats, but only if every
// one of them belongs to showID and is currently free. Anything less aborts
// the transaction with zero seats mutated, naming a blocking seat. This is
// the single serialization point for seat assignment.
func (r *Repository) BindSeats(ctx context.Context, tx pgx.Tx, showID int64, seatIDs []int64, bookingID int64) error {
	if len(seatIDs) == 0 {
		return domain.ErrInvalidInput
	}
	tag, err := tx.Exec(ctx, `
		UPDATE show_seats SET booking_id = $1
		WHERE id = ANY($2) AND show_id = $3 AND booking_id IS NULL
	`, bookingID, seatIDs, showID)
	if err != nil {
		return err
	}
	if int(tag.RowsAffected()) == len(seatIDs) {
		return nil
	}

	// Find a seat to blame. The enclosing tx rolls back, so the partial
	// update above never becomes visible.
	for _, id := range seatIDs {
		var ours bool
		err := tx.QueryRow(ctx, `
			SELECT booking_id = $2 FROM show_seats WHERE id = $1 AND show_id = $3
		`, id, bookingID, showID).Scan(&ours)
		if err == pgx.ErrNoRows {
			return &domain.SeatUnavailableError{SeatID: id}
		}
		if err != nil {
			return err
		}
		if !ours {
			return &domain.SeatUnavailableError{SeatID: id}
		}
	}
	// Fewer rows than requested with no blocker found: duplicate ids.
	return domain.ErrInvalidInput
}

// ReleaseSeats unbinds the named seats unconditionally. Releasing an already
// free seat is a no-op, so the operation is idempotent.
func (r *Repository) ReleaseSeats(ctx context.Context, tx pgx.Tx, seatIDs []int64) error {
	if len(seatIDs) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE show_seats SET booking_id = NULL WHERE id = ANY($1)`, seatIDs)
	return err
}

// ReleaseSeatsOfBooking unbinds every seat currently held by the booking and
// returns how many it freed.
func (r *Repository) ReleaseSeatsOfBooking(ctx context.Context, tx pgx.Tx, bookingID int64) (int64, error) {
	tag, err := tx.Exec(ctx, `UPDATE show_seats SET booking_id = NULL WHERE booking_id = $1`, bookingID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// SeatsOfBooking lists the seat ids currently bound to a booking.
func (r *Repository) SeatsOfBooking(ctx context.Context, tx pgx.Tx, bookingID int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM show_seats WHERE booking_id = $1 ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SwapSeat atomically releases oldSeatID from the booking and binds
// newSeatID in its place, but only when the new seat is free, in the same
// show, and carries the same price. Any rejection leaves both seats as they
// were.
func (r *Repository) SwapSeat(ctx context.Context, tx pgx.Tx, oldSeatID, newSeatID, bookingID int64) error {
	var showID, oldPrice int64
	err := tx.QueryRow(ctx, `
		SELECT show_id, price_cents FROM show_seats
		WHERE id = $1 AND booking_id = $2
		FOR UPDATE
	`, oldSeatID, bookingID).Scan(&showID, &oldPrice)
	if err == pgx.ErrNoRows {
		return &domain.SeatUnavailableError{SeatID: oldSeatID}
	}
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE show_seats SET booking_id = $1
		WHERE id = $2 AND show_id = $3 AND booking_id IS NULL AND price_cents = $4
	`, bookingID, newSeatID, showID, oldPrice)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		var free bool
		var price int64
		err := tx.QueryRow(ctx, `
			SELECT booking_id IS NULL, price_cents FROM show_seats WHERE id = $1 AND show_id = $2
		`, newSeatID, showID).Scan(&free, &price)
		if err == pgx.ErrNoRows {
			return &domain.SeatUnavailableError{SeatID: newSeatID}
		}
		if err != nil {
			return err
		}
		if !free {
			return &domain.SeatUnavailableError{SeatID: newSeatID}
		}
		return &domain.PriceMismatchError{SeatID: newSeatID, WantPriceCents: oldPrice, GotPriceCents: price}
	}

	_, err = tx.Exec(ctx, `UPDATE show_seats SET booking_id = NULL WHERE id = $1`, oldSeatID)
	return err
}

// DeleteShowSeatsTx removes the whole seat pool of a show. Used only by
// administrative show removal after bookings are cancelled and released.
func (r *Repository) DeleteShowSeatsTx(ctx context.Context, tx pgx.Tx, showID int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM show_seats WHERE show_id = $1`, showID)
	return err
}
