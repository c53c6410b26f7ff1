package crdb

import (
	"context"

	"github.com/robertarktes/cinema-booking/internal/domain"
)

// UserBooking pairs a booking with the labels of its currently bound seats,
// for per-user history listings.
type UserBooking struct {
	Booking    domain.Booking
	SeatLabels []string
}

// ListPendingBookingUsers returns the distinct emails of users holding a
// Pending booking.
func (r *Repository) ListPendingBookingUsers(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT user_email FROM bookings WHERE status = $1 ORDER BY user_email
	`, domain.StatusPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		emails = append(emails, e)
	}
	return emails, rows.Err()
}

// ListBookingsForUser returns every booking of the user, newest first, each
// with the seat labels it holds.
func (r *Repository) ListBookingsForUser(ctx context.Context, email string) ([]UserBooking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, status, created_at, seat_count, show_id, user_email
		FROM bookings WHERE user_email = $1
		ORDER BY created_at DESC, id DESC
	`, email)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserBooking
	index := make(map[int64]int)
	var ids []int64
	for rows.Next() {
		var b domain.Booking
		if err := rows.Scan(&b.ID, &b.Status, &b.CreatedAt, &b.SeatCount, &b.ShowID, &b.UserEmail); err != nil {
			return nil, err
		}
		index[b.ID] = len(out)
		ids = append(ids, b.ID)
		out = append(out, UserBooking{Booking: b})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	seatRows, err := r.pool.Query(ctx, `
		SELECT booking_id, seat_label FROM show_seats
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, seat_label
	`, ids)
	if err != nil {
		return nil, err
	}
	defer seatRows.Close()
	for seatRows.Next() {
		var bid int64
		var label string
		if err := seatRows.Scan(&bid, &label); err != nil {
			return nil, err
		}
		if i, ok := index[bid]; ok {
			out[i].SeatLabels = append(out[i].SeatLabels, label)
		}
	}
	return out, seatRows.Err()
}
