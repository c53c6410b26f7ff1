package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-booking/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/cinema-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
)

// Service owns the booking state machine and payment reconciliation. Every
// multi-row effect (bind, cancel+release, payment cascade) commits as one
// transaction; seats are never mutated outside BindSeats/ReleaseSeats/SwapSeat.
type Service struct {
	repo    *crdb.Repository
	cache   *redisadapter.Cache
	catalog *mongoadapter.CatalogRepository
	audit   *mongoadapter.AuditTrail
	logger  observability.Logger
	ttl     time.Duration
}

func NewService(repo *crdb.Repository, cache *redisadapter.Cache, catalog *mongoadapter.CatalogRepository, audit *mongoadapter.AuditTrail, logger observability.Logger, bookingTTL time.Duration) *Service {
	return &Service{
		repo:    repo,
		cache:   cache,
		catalog: catalog,
		audit:   audit,
		logger:  logger,
		ttl:     bookingTTL,
	}
}

// ScheduleShow validates the movie and theater against the catalog, inserts
// the show and materializes its seat pool in one transaction.
func (s *Service) ScheduleShow(ctx context.Context, movieID int64, theaterID string, date, startsAt, endsAt time.Time, rule domain.PricingRule) (*domain.Show, error) {
	if _, err := s.catalog.GetMovie(ctx, movieID); err != nil {
		return nil, errors.Wrapf(err, "movie %d", movieID)
	}
	theater, err := s.catalog.GetTheater(ctx, theaterID)
	if err != nil {
		return nil, errors.Wrapf(err, "theater %s", theaterID)
	}
	labels := make([]string, len(theater.Seats))
	for i, seat := range theater.Seats {
		labels[i] = seat.Label
	}

	var show domain.Show
	err = s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		id, err := s.repo.NextIDTx(ctx, tx, crdb.CounterShows)
		if err != nil {
			return err
		}
		show = domain.Show{ID: id, MovieID: movieID, TheaterID: theaterID, Date: date, StartsAt: startsAt, EndsAt: endsAt}
		if err := s.repo.InsertShowTx(ctx, tx, show); err != nil {
			return err
		}
		_, err = s.repo.MaterializeInventoryTx(ctx, tx, show.ID, theaterID, labels, rule)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &show, nil
}

func (s *Service) ListFreeSeats(ctx context.Context, showID int64) ([]domain.FreeSeat, error) {
	if _, err := s.repo.GetShow(ctx, showID); err != nil {
		return nil, err
	}
	return s.repo.ListFreeSeats(ctx, showID)
}

// CreateBooking reserves the named seats for a new Pending booking. The id
// allocation, booking row and seat bind commit as one unit: a bind conflict
// aborts the transaction, so no booking row survives a failed reservation.
func (s *Service) CreateBooking(ctx context.Context, showID int64, userEmail string, seatIDs []int64) (*domain.Booking, error) {
	if len(seatIDs) == 0 {
		return nil, domain.ErrInvalidInput
	}
	show, err := s.repo.GetShow(ctx, showID)
	if err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetUser(ctx, userEmail); err != nil {
		return nil, errors.Wrapf(err, "user %s", userEmail)
	}

	// Advisory fast path: contending agents fail here without touching the
	// database. The transactional bind below remains the arbiter.
	claimed := make([]int64, 0, len(seatIDs))
	for _, seatID := range seatIDs {
		ok, err := s.cache.ClaimSeat(ctx, show.ID, seatID, s.ttl)
		if err != nil {
			s.releaseClaims(ctx, show.ID, claimed)
			return nil, err
		}
		if !ok {
			s.releaseClaims(ctx, show.ID, claimed)
			observability.SeatConflicts.Inc()
			return nil, &domain.SeatUnavailableError{SeatID: seatID}
		}
		claimed = append(claimed, seatID)
	}

	var b domain.Booking
	err = s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		id, err := s.repo.NextIDTx(ctx, tx, crdb.CounterBookings)
		if err != nil {
			return err
		}
		b = domain.NewBooking(id, show.ID, userEmail, len(seatIDs))
		if err := s.repo.InsertBookingTx(ctx, tx, b); err != nil {
			return err
		}
		if err := s.repo.BindSeats(ctx, tx, show.ID, seatIDs, b.ID); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{"booking_id": b.ID, "show_id": show.ID, "seats": seatIDs})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("booking", b.ID, "booking.created", payload))
	})
	if err != nil {
		s.releaseClaims(ctx, show.ID, claimed)
		var seatErr *domain.SeatUnavailableError
		if errors.As(err, &seatErr) {
			observability.SeatConflicts.Inc()
		}
		return nil, err
	}

	if err := s.audit.LogBookingCreated(ctx, b, seatIDs); err != nil {
		s.logger.WithField("booking_id", b.ID).Warn("audit write failed", err)
	}
	return &b, nil
}

func (s *Service) GetBooking(ctx context.Context, id int64) (*domain.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// CancelBooking transitions a Pending or Confirmed booking to Cancelled and
// releases its seats in the same transaction, so a cancelled booking never
// holds a bound seat.
func (s *Service) CancelBooking(ctx context.Context, bookingID int64, reason string) error {
	var released int64
	var seatIDs []int64
	var showID int64
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := s.repo.GetBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !b.CanTransition(domain.StatusCancelled) {
			return &domain.InvalidStateError{BookingID: b.ID, Status: b.Status, Op: "cancel"}
		}
		showID = b.ShowID
		seatIDs, err = s.repo.SeatsOfBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if err := s.repo.SetBookingStatusTx(ctx, tx, bookingID, []domain.BookingStatus{b.Status}, domain.StatusCancelled); err != nil {
			return err
		}
		released, err = s.repo.ReleaseSeatsOfBooking(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{"booking_id": bookingID, "reason": reason})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("booking", bookingID, "booking.cancelled", payload))
	})
	if err != nil {
		return err
	}

	s.releaseClaims(ctx, showID, seatIDs)
	if err := s.audit.LogBookingCancelled(ctx, bookingID, released, reason); err != nil {
		s.logger.WithField("booking_id", bookingID).Warn("audit write failed", err)
	}
	return nil
}

// CancelPendingBookings cancels every Pending booking, one transaction per
// booking so a single wedged booking cannot block the batch. Returns how
// many were cancelled.
func (s *Service) CancelPendingBookings(ctx context.Context) (int, error) {
	ids, err := s.repo.ListPendingBookingIDs(ctx)
	if err != nil {
		return 0, err
	}
	cancelled := 0
	for _, id := range ids {
		err := s.CancelBooking(ctx, id, "bulk cancellation")
		if err != nil {
			if cancelSkippable(err) {
				continue
			}
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

// cancelSkippable reports whether a bulk cancellation should skip the
// booking: it changed status, or was cancelled and purged, between the
// snapshot and the cancel attempt.
func cancelSkippable(err error) bool {
	var stateErr *domain.InvalidStateError
	return errors.Is(err, domain.ErrNotFound) || errors.As(err, &stateErr)
}

// ClearCancelledBookings hard-deletes all Cancelled bookings. A cancelled
// booking that still holds seats fails the whole purge loudly.
func (s *Service) ClearCancelledBookings(ctx context.Context) (int64, error) {
	var purged int64
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		purged, err = s.repo.ClearCancelledTx(ctx, tx)
		return err
	})
	if err != nil {
		var consErr *domain.ConsistencyViolationError
		if errors.As(err, &consErr) {
			s.logger.WithField("booking_id", consErr.BookingID).Error("purge aborted, invariant breach", err)
		}
		return 0, err
	}
	return purged, nil
}

// ChangeSeat swaps one seat of a live booking for a free, equally priced
// seat of the same show. Booking fields are untouched. After commit the old
// seat's advisory claim is dropped so the freed seat is rebookable at once.
func (s *Service) ChangeSeat(ctx context.Context, bookingID, oldSeatID, newSeatID int64) error {
	var showID int64
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := s.repo.GetBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if b.Status != domain.StatusPending && b.Status != domain.StatusConfirmed {
			return &domain.InvalidStateError{BookingID: b.ID, Status: b.Status, Op: "change seat"}
		}
		showID = b.ShowID
		if err := s.repo.SwapSeat(ctx, tx, oldSeatID, newSeatID, bookingID); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{"booking_id": bookingID, "old_seat": oldSeatID, "new_seat": newSeatID})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("booking", bookingID, "booking.seat_changed", payload))
	})
	if err != nil {
		return err
	}

	s.releaseClaims(ctx, showID, []int64{oldSeatID})
	return nil
}

// RecordPayment creates a payment for a Pending or Confirmed booking and
// confirms the booking as a side effect, in one transaction.
func (s *Service) RecordPayment(ctx context.Context, bookingID, amountCents int64, method string) (*domain.Payment, error) {
	var p domain.Payment
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		b, err := s.repo.GetBookingTx(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if !b.Payable() {
			return &domain.InvalidStateError{BookingID: b.ID, Status: b.Status, Op: "record payment"}
		}
		id, err := s.repo.NextIDTx(ctx, tx, crdb.CounterPayments)
		if err != nil {
			return err
		}
		p = domain.Payment{ID: id, BookingID: bookingID, AmountCents: amountCents, Method: method}
		if err := s.repo.InsertPaymentTx(ctx, tx, p); err != nil {
			return err
		}
		if b.Status == domain.StatusPending {
			if err := s.repo.SetBookingStatusTx(ctx, tx, bookingID, []domain.BookingStatus{domain.StatusPending}, domain.StatusConfirmed); err != nil {
				return err
			}
		}
		payload, _ := json.Marshal(map[string]interface{}{"booking_id": bookingID, "payment_id": p.ID, "amount_cents": amountCents})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("payment", p.ID, "payment.recorded", payload))
	})
	if err != nil {
		return nil, err
	}

	if err := s.audit.LogPaymentRecorded(ctx, p); err != nil {
		s.logger.WithField("payment_id", p.ID).Warn("audit write failed", err)
	}
	return &p, nil
}

// RemovePayment deletes the payment, releases every seat bound to the
// owning booking and cancels the booking, all in one transaction. Either
// all three effects commit or none do.
func (s *Service) RemovePayment(ctx context.Context, paymentID int64) error {
	var p *domain.Payment
	var released int64
	var seatIDs []int64
	var showID int64
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		var err error
		p, err = s.repo.GetPaymentTx(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		b, err := s.repo.GetBookingTx(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		showID = b.ShowID
		seatIDs, err = s.repo.SeatsOfBooking(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if err := s.repo.DeletePaymentTx(ctx, tx, paymentID); err != nil {
			return err
		}
		released, err = s.repo.ReleaseSeatsOfBooking(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if b.Status != domain.StatusCancelled {
			if err := s.repo.SetBookingStatusTx(ctx, tx, b.ID, []domain.BookingStatus{domain.StatusPending, domain.StatusConfirmed}, domain.StatusCancelled); err != nil {
				return err
			}
		}
		payload, _ := json.Marshal(map[string]interface{}{"payment_id": paymentID, "booking_id": b.ID})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewOutboxRecord("payment", paymentID, "payment.removed", payload))
	})
	if err != nil {
		return err
	}

	s.releaseClaims(ctx, showID, seatIDs)
	if err := s.audit.LogPaymentRemoved(ctx, *p, released); err != nil {
		s.logger.WithField("payment_id", paymentID).Warn("audit write failed", err)
	}
	return nil
}

// ListAbandoned returns unpaid Pending bookings older than the configured
// TTL. The sweep worker cancels them through CancelBooking, never by
// touching seats directly.
func (s *Service) ListAbandoned(ctx context.Context) ([]domain.Booking, error) {
	return s.repo.ListAbandonedBookings(ctx, time.Now().UTC().Add(-s.ttl))
}

// RemoveShowsOnDate administratively removes a theater's shows on a date:
// per show, payments are deleted, bookings cancelled with seats released,
// the seat pool dropped and the show row deleted, as one transaction per
// show. Returns the number of shows removed.
func (s *Service) RemoveShowsOnDate(ctx context.Context, theaterID string, date time.Time) (int, error) {
	showIDs, err := s.repo.ShowIDsOnDate(ctx, theaterID, date)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, showID := range showIDs {
		err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
			bookingIDs, err := s.repo.BookingIDsOfShowTx(ctx, tx, showID)
			if err != nil {
				return err
			}
			for _, bid := range bookingIDs {
				if err := s.repo.DeletePaymentsOfBookingTx(ctx, tx, bid); err != nil {
					return err
				}
				if _, err := s.repo.ReleaseSeatsOfBooking(ctx, tx, bid); err != nil {
					return err
				}
			}
			if err := s.repo.DeleteShowSeatsTx(ctx, tx, showID); err != nil {
				return err
			}
			for _, bid := range bookingIDs {
				if err := s.repo.DeleteBookingTx(ctx, tx, bid); err != nil {
					return err
				}
			}
			return s.repo.DeleteShowTx(ctx, tx, showID)
		})
		if err != nil {
			return removed, errors.Wrapf(err, "remove show %d", showID)
		}
		removed++
	}
	return removed, nil
}

func (s *Service) releaseClaims(ctx context.Context, showID int64, seatIDs []int64) {
	for _, seatID := range seatIDs {
		if err := s.cache.ReleaseClaim(ctx, showID, seatID); err != nil {
			s.logger.WithField("seat_id", seatID).Warn("failed to release seat claim", err)
		}
	}
}
