package crdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-booking/internal/domain"
)

func (r *Repository) InsertBookingTx(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, status, created_at, seat_count, show_id, user_email)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, b.ID, b.Status, b.CreatedAt, b.SeatCount, b.ShowID, b.UserEmail)
	return err
}

func (r *Repository) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return scanBooking(r.pool.QueryRow(ctx, `
		SELECT id, status, created_at, seat_count, show_id, user_email
		FROM bookings WHERE id = $1
	`, id))
}

// GetBookingTx reads a booking with a row lock so lifecycle transitions on
// the same booking serialize.
func (r *Repository) GetBookingTx(ctx context.Context, tx pgx.Tx, id int64) (*domain.Booking, error) {
	return scanBooking(tx.QueryRow(ctx, `
		SELECT id, status, created_at, seat_count, show_id, user_email
		FROM bookings WHERE id = $1
		FOR UPDATE
	`, id))
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.Status, &b.CreatedAt, &b.SeatCount, &b.ShowID, &b.UserEmail)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SetBookingStatusTx moves a booking from one of the expected statuses to
// the target. A zero-row update means the booking changed under us or never
// existed; the caller decides how to report that.
func (r *Repository) SetBookingStatusTx(ctx context.Context, tx pgx.Tx, id int64, from []domain.BookingStatus, to domain.BookingStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET status = $2 WHERE id = $1 AND status = ANY($3)
	`, id, to, statusStrings(from))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func statusStrings(ss []domain.BookingStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

// ListPendingBookingIDs snapshots the ids of all Pending bookings. Bulk
// cancellation iterates this snapshot one transaction per booking.
func (r *Repository) ListPendingBookingIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM bookings WHERE status = $1 ORDER BY id`, domain.StatusPending)
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

// ListAbandonedBookings returns Pending bookings created at or before cutoff
// that have no payment row. These are what the sweep worker cancels.
func (r *Repository) ListAbandonedBookings(ctx context.Context, cutoff time.Time) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT b.id, b.status, b.created_at, b.seat_count, b.show_id, b.user_email
		FROM bookings b
		LEFT JOIN payments p ON p.booking_id = b.id
		WHERE b.status = $1 AND b.created_at <= $2 AND p.id IS NULL
		ORDER BY b.created_at
	`, domain.StatusPending, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.Status, &b.CreatedAt, &b.SeatCount, &b.ShowID, &b.UserEmail); err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// ClearCancelledTx hard-deletes every Cancelled booking. Cancellation always
// releases seats first, so a cancelled booking that still holds bound seats
// is an invariant breach: the purge aborts with ConsistencyViolationError
// instead of deleting anything.
func (r *Repository) ClearCancelledTx(ctx context.Context, tx pgx.Tx) (int64, error) {
	rows, err := tx.Query(ctx, `
		SELECT b.id, count(ss.id)
		FROM bookings b
		LEFT JOIN show_seats ss ON ss.booking_id = b.id
		WHERE b.status = $1
		GROUP BY b.id
	`, domain.StatusCancelled)
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, bound int64
		if err := rows.Scan(&id, &bound); err != nil {
			return 0, err
		}
		if bound > 0 {
			return 0, &domain.ConsistencyViolationError{BookingID: id, SeatsBound: int(bound)}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	rows.Close()

	tag, err := tx.Exec(ctx, `DELETE FROM bookings WHERE status = $1`, domain.StatusCancelled)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// BookingIDsOfShowTx lists every booking referencing the show, any status.
func (r *Repository) BookingIDsOfShowTx(ctx context.Context, tx pgx.Tx, showID int64) ([]int64, error) {
	rows, err := tx.Query(ctx, `SELECT id FROM bookings WHERE show_id = $1 ORDER BY id`, showID)
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

func (r *Repository) DeleteBookingTx(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	return err
}
