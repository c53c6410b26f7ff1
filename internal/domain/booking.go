package domain

import "time"

func NewBooking(id int64, showID int64, userEmail string, seatCount int) Booking {
	return Booking{
		ID:        id,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
		SeatCount: seatCount,
		ShowID:    showID,
		UserEmail: userEmail,
	}
}

// CanTransition reports whether the booking state machine permits moving
// from the booking's current status to the target. Cancelled is terminal.
func (b Booking) CanTransition(to BookingStatus) bool {
	switch b.Status {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled
	case StatusConfirmed:
		return to == StatusCancelled
	default:
		return false
	}
}

// Payable reports whether a payment may be recorded against the booking.
func (b Booking) Payable() bool {
	return b.Status == StatusPending || b.Status == StatusConfirmed
}

// Abandoned reports whether an unpaid pending booking is older than ttl and
// therefore eligible for the automatic cancellation sweep.
func (b Booking) Abandoned(ttl time.Duration, now time.Time) bool {
	return b.Status == StatusPending && now.Sub(b.CreatedAt) > ttl
}
