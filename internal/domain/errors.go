package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrSequenceExhausted    = errors.New("sequence exhausted")
)

// SeatUnavailableError names the first seat that blocked a bind or swap:
// the seat is already bound, or it does not belong to the requested show.
type SeatUnavailableError struct {
	SeatID int64
}

func (e *SeatUnavailableError) Error() string {
	return fmt.Sprintf("seat %d unavailable", e.SeatID)
}

// PriceMismatchError rejects a seat swap between differently priced seats.
type PriceMismatchError struct {
	SeatID         int64
	WantPriceCents int64
	GotPriceCents  int64
}

func (e *PriceMismatchError) Error() string {
	return fmt.Sprintf("seat %d priced %d, expected %d", e.SeatID, e.GotPriceCents, e.WantPriceCents)
}

// DuplicateInventoryError signals a second materialization attempt for the
// same show. The seat pool is created exactly once per (show, theater).
type DuplicateInventoryError struct {
	ShowID    int64
	TheaterID string
}

func (e *DuplicateInventoryError) Error() string {
	return fmt.Sprintf("inventory already materialized for show %d in theater %s", e.ShowID, e.TheaterID)
}

// InvalidStateError rejects an operation against a booking whose lifecycle
// status does not permit it.
type InvalidStateError struct {
	BookingID int64
	Status    BookingStatus
	Op        string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("booking %d is %s, cannot %s", e.BookingID, e.Status, e.Op)
}

// ConsistencyViolationError is fatal: a cancelled booking still holds bound
// seats at purge time. It aborts the purge rather than deleting silently.
type ConsistencyViolationError struct {
	BookingID  int64
	SeatsBound int
}

func (e *ConsistencyViolationError) Error() string {
	return fmt.Sprintf("cancelled booking %d still holds %d bound seats", e.BookingID, e.SeatsBound)
}
