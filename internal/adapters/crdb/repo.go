package crdb

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
)

const (
	SerializationFailureCode = "40001"
)

// Counter names used with NextID. Every identifier in the core tables comes
// from one of these; nothing else mints ids.
const (
	CounterMovies    = "movies"
	CounterShows     = "shows"
	CounterShowSeats = "show_seats"
	CounterBookings  = "bookings"
	CounterPayments  = "payments"
)

type Repository struct {
	pool *pgxpool.Pool

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		observability.DBTxDuration.Observe(time.Since(start).Seconds())
	}()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}

	return tx.Commit(ctx)
}

// querier is satisfied by both pgxpool.Pool and pgx.Tx so id allocation works
// inside and outside transactions.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextID returns the next value of the named counter. Values are strictly
// increasing per counter and never reused. Overflow is fatal, not retried.
func (r *Repository) NextID(ctx context.Context, counter string) (int64, error) {
	return nextID(ctx, r.pool, counter)
}

// NextIDTx is NextID scoped to an open transaction, so an allocated id is
// rolled back together with the rows it was minted for.
func (r *Repository) NextIDTx(ctx context.Context, tx pgx.Tx, counter string) (int64, error) {
	return nextID(ctx, tx, counter)
}

func nextID(ctx context.Context, q querier, counter string) (int64, error) {
	var v int64
	err := q.QueryRow(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value
	`, counter).Scan(&v)
	if err != nil {
		return 0, errors.Wrapf(err, "next id for %s", counter)
	}
	if v < 1 {
		return 0, domain.ErrSequenceExhausted
	}
	return v, nil
}

func (r *Repository) seatPrice(rule domain.PricingRule) int64 {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()
	return rule.SeatPrice(r.rng)
}
