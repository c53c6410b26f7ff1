package crdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func newTestRepo(t *testing.T) (*crdb.Repository, *pgxpool.Pool) {
	t.Helper()
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { crdbContainer.Terminate(ctx) })

	dsn, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}

	pool, err := pgxpool.New(ctx, dsn+"/defaultdb?sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(pool.Close)

	if err := crdb.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	return crdb.NewRepository(pool), pool
}

func seedShow(t *testing.T, repo *crdb.Repository, labels []string) (int64, []int64) {
	t.Helper()
	ctx := context.Background()

	var showID int64
	var seatIDs []int64
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		id, err := repo.NextIDTx(ctx, tx, crdb.CounterShows)
		if err != nil {
			return err
		}
		showID = id
		show := domain.Show{
			ID:        id,
			MovieID:   1,
			TheaterID: "th-1",
			Date:      time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			StartsAt:  time.Date(2026, 9, 1, 18, 0, 0, 0, time.UTC),
			EndsAt:    time.Date(2026, 9, 1, 20, 0, 0, 0, time.UTC),
		}
		if err := repo.InsertShowTx(ctx, tx, show); err != nil {
			return err
		}
		seatIDs, err = repo.MaterializeInventoryTx(ctx, tx, id, "th-1", labels, domain.FlatPrice(1500))
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return showID, seatIDs
}

func seedBooking(t *testing.T, repo *crdb.Repository, showID int64, seatCount int) int64 {
	t.Helper()
	ctx := context.Background()

	var bookingID int64
	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		id, err := repo.NextIDTx(ctx, tx, crdb.CounterBookings)
		if err != nil {
			return err
		}
		bookingID = id
		return repo.InsertBookingTx(ctx, tx, domain.NewBooking(id, showID, "alice@example.com", seatCount))
	})
	if err != nil {
		t.Fatal(err)
	}
	return bookingID
}

func TestRepository_MaterializeInventory(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2", "B1"})
	if len(seatIDs) != 3 {
		t.Fatalf("expected 3 seats, got %d", len(seatIDs))
	}

	free, err := repo.ListFreeSeats(ctx, showID)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 3 {
		t.Errorf("expected 3 free seats, got %d", len(free))
	}
	for _, s := range free {
		if s.PriceCents != 1500 {
			t.Errorf("seat %s: expected price 1500, got %d", s.SeatLabel, s.PriceCents)
		}
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.MaterializeInventoryTx(ctx, tx, showID, "th-1", []string{"A1"}, domain.FlatPrice(1500))
		return err
	})
	var dupErr *domain.DuplicateInventoryError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DuplicateInventoryError, got %v", err)
	}
	if dupErr.ShowID != showID {
		t.Errorf("expected show %d in error, got %d", showID, dupErr.ShowID)
	}
}

func TestRepository_BindSeats_Conflict(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2", "A3"})
	first := seedBooking(t, repo, showID, 1)
	second := seedBooking(t, repo, showID, 2)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.BindSeats(ctx, tx, showID, seatIDs[:1], first)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Overlapping bind must fail naming the taken seat and leave the
	// free seat untouched.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.BindSeats(ctx, tx, showID, []int64{seatIDs[0], seatIDs[1]}, second)
	})
	var seatErr *domain.SeatUnavailableError
	if !errors.As(err, &seatErr) {
		t.Fatalf("expected SeatUnavailableError, got %v", err)
	}
	if seatErr.SeatID != seatIDs[0] {
		t.Errorf("expected seat %d in error, got %d", seatIDs[0], seatErr.SeatID)
	}

	free, err := repo.ListFreeSeats(ctx, showID)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 2 {
		t.Errorf("rolled-back bind must not consume seats: expected 2 free, got %d", len(free))
	}
}

func TestRepository_BindSeats_DisjointBookings(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2", "A3", "A4"})
	first := seedBooking(t, repo, showID, 2)
	second := seedBooking(t, repo, showID, 2)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.BindSeats(ctx, tx, showID, seatIDs[:2], first)
	})
	if err != nil {
		t.Fatal(err)
	}
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.BindSeats(ctx, tx, showID, seatIDs[2:], second)
	})
	if err != nil {
		t.Fatal(err)
	}

	free, err := repo.ListFreeSeats(ctx, showID)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 0 {
		t.Errorf("expected 0 free seats, got %d", len(free))
	}
}

func TestRepository_BindSeats_ConcurrentOverlap(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2", "A3"})
	first := seedBooking(t, repo, showID, 2)
	second := seedBooking(t, repo, showID, 2)

	bind := func(bookingID int64, seats []int64) error {
		return repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.BindSeats(ctx, tx, showID, seats, bookingID)
		})
	}

	// Both bookings race for seat 0; exactly one transaction may win it.
	results := make([]error, 2)
	var g errgroup.Group
	g.Go(func() error {
		results[0] = bind(first, []int64{seatIDs[0], seatIDs[1]})
		return nil
	})
	g.Go(func() error {
		results[1] = bind(second, []int64{seatIDs[0], seatIDs[2]})
		return nil
	})
	g.Wait()

	wins := 0
	for _, bindErr := range results {
		if bindErr == nil {
			wins++
			continue
		}
		var seatErr *domain.SeatUnavailableError
		if !errors.As(bindErr, &seatErr) && !errors.Is(bindErr, domain.ErrSerializationFailure) {
			t.Fatalf("unexpected bind error: %v", bindErr)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner for the contended seat, got %d", wins)
	}

	// The winner holds its two seats; the loser holds none.
	free, err := repo.ListFreeSeats(ctx, showID)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 1 {
		t.Errorf("expected 1 free seat after the race, got %d", len(free))
	}
}

func TestRepository_BindSeats_ConcurrentDisjoint(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2", "A3", "A4"})
	first := seedBooking(t, repo, showID, 2)
	second := seedBooking(t, repo, showID, 2)

	// Disjoint sets must both succeed; retry the benign serialization
	// aborts SERIALIZABLE can produce under contention.
	bind := func(bookingID int64, seats []int64) error {
		var bindErr error
		for i := 0; i < 5; i++ {
			bindErr = repo.WithTx(ctx, func(tx pgx.Tx) error {
				return repo.BindSeats(ctx, tx, showID, seats, bookingID)
			})
			if !errors.Is(bindErr, domain.ErrSerializationFailure) {
				break
			}
		}
		return bindErr
	}

	var g errgroup.Group
	g.Go(func() error { return bind(first, seatIDs[:2]) })
	g.Go(func() error { return bind(second, seatIDs[2:]) })
	if err := g.Wait(); err != nil {
		t.Fatalf("disjoint concurrent binds must both succeed: %v", err)
	}

	free, err := repo.ListFreeSeats(ctx, showID)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 0 {
		t.Errorf("expected 0 free seats, got %d", len(free))
	}
}

func TestRepository_ReleaseSeats_Idempotent(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2"})
	bookingID := seedBooking(t, repo, showID, 2)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.BindSeats(ctx, tx, showID, seatIDs, bookingID)
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		err = repo.WithTx(ctx, func(tx pgx.Tx) error {
			return repo.ReleaseSeats(ctx, tx, seatIDs)
		})
		if err != nil {
			t.Fatalf("release attempt %d: %v", i+1, err)
		}
	}

	free, err := repo.ListFreeSeats(ctx, showID)
	if err != nil {
		t.Fatal(err)
	}
	if len(free) != 2 {
		t.Errorf("expected 2 free seats after release, got %d", len(free))
	}
}

func TestRepository_SwapSeat_PriceMismatch(t *testing.T) {
	repo, pool := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1", "A2"})
	bookingID := seedBooking(t, repo, showID, 1)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.BindSeats(ctx, tx, showID, seatIDs[:1], bookingID)
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = pool.Exec(ctx, `UPDATE show_seats SET price_cents = 2000 WHERE id = $1`, seatIDs[1])
	if err != nil {
		t.Fatal(err)
	}

	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		return repo.SwapSeat(ctx, tx, seatIDs[0], seatIDs[1], bookingID)
	})
	var priceErr *domain.PriceMismatchError
	if !errors.As(err, &priceErr) {
		t.Fatalf("expected PriceMismatchError, got %v", err)
	}
	if priceErr.SeatID != seatIDs[1] {
		t.Errorf("expected seat %d in error, got %d", seatIDs[1], priceErr.SeatID)
	}

	// The failed swap must not have released the original seat.
	var heldBy *int64
	err = pool.QueryRow(ctx, `SELECT booking_id FROM show_seats WHERE id = $1`, seatIDs[0]).Scan(&heldBy)
	if err != nil {
		t.Fatal(err)
	}
	if heldBy == nil || *heldBy != bookingID {
		t.Errorf("expected seat %d still bound to booking %d", seatIDs[0], bookingID)
	}
}

func TestRepository_ClearCancelled_ConsistencyCheck(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	showID, seatIDs := seedShow(t, repo, []string{"A1"})
	bookingID := seedBooking(t, repo, showID, 1)

	err := repo.WithTx(ctx, func(tx pgx.Tx) error {
		if err := repo.BindSeats(ctx, tx, showID, seatIDs, bookingID); err != nil {
			return err
		}
		return repo.SetBookingStatusTx(ctx, tx, bookingID, []domain.BookingStatus{domain.StatusPending}, domain.StatusCancelled)
	})
	if err != nil {
		t.Fatal(err)
	}

	// Cancelled booking still holds its seat: the purge must refuse.
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := repo.ClearCancelledTx(ctx, tx)
		return err
	})
	var consErr *domain.ConsistencyViolationError
	if !errors.As(err, &consErr) {
		t.Fatalf("expected ConsistencyViolationError, got %v", err)
	}
	if consErr.BookingID != bookingID {
		t.Errorf("expected booking %d in error, got %d", bookingID, consErr.BookingID)
	}

	var purged int64
	err = repo.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := repo.ReleaseSeatsOfBooking(ctx, tx, bookingID); err != nil {
			return err
		}
		purged, err = repo.ClearCancelledTx(ctx, tx)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if purged != 1 {
		t.Errorf("expected 1 purged booking, got %d", purged)
	}

	_, err = repo.GetBooking(ctx, bookingID)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound after purge, got %v", err)
	}
}

func TestRepository_NextID_Monotonic(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	var prev int64
	for i := 0; i < 5; i++ {
		id, err := repo.NextID(ctx, crdb.CounterBookings)
		if err != nil {
			t.Fatal(err)
		}
		if id <= prev {
			t.Fatalf("expected id > %d, got %d", prev, id)
		}
		prev = id
	}
}
