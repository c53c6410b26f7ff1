package domain

import "time"

type BookingStatus string

const (
	StatusPending   BookingStatus = "Pending"
	StatusConfirmed BookingStatus = "Confirmed"
	StatusCancelled BookingStatus = "Cancelled"
)

// Show is a single scheduled screening of a movie in a theater.
// Rows are immutable once created except by administrative removal.
type Show struct {
	ID        int64
	MovieID   int64
	TheaterID string
	Date      time.Time
	StartsAt  time.Time
	EndsAt    time.Time
}

type Booking struct {
	ID        int64
	Status    BookingStatus
	CreatedAt time.Time
	SeatCount int
	ShowID    int64
	UserEmail string
}

type Payment struct {
	ID          int64
	BookingID   int64
	AmountCents int64
	Method      string
}

// FreeSeat is what ListFreeSeats reports to callers picking seats. It is a
// snapshot; only BindSeats decides who actually gets a seat.
type FreeSeat struct {
	SeatID     int64
	SeatLabel  string
	PriceCents int64
}
