package crdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema holds the DDL for the four core tables plus counters and outbox.
// show_seats.booking_id is the single contended column: NULL means free,
// otherwise it references a Pending or Confirmed booking.
const Schema = `
CREATE TABLE IF NOT EXISTS counters (
	name TEXT PRIMARY KEY,
	value BIGINT NOT NULL
);
CREATE TABLE IF NOT EXISTS shows (
	id BIGINT PRIMARY KEY,
	movie_id BIGINT NOT NULL,
	theater_id TEXT NOT NULL,
	show_date DATE NOT NULL,
	starts_at TIMESTAMPTZ NOT NULL,
	ends_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS bookings (
	id BIGINT PRIMARY KEY,
	status TEXT NOT NULL CHECK (status IN ('Pending', 'Confirmed', 'Cancelled')),
	created_at TIMESTAMPTZ NOT NULL,
	seat_count INT NOT NULL,
	show_id BIGINT NOT NULL,
	user_email TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS show_seats (
	id BIGINT PRIMARY KEY,
	show_id BIGINT NOT NULL,
	seat_label TEXT NOT NULL,
	price_cents BIGINT NOT NULL,
	booking_id BIGINT NULL REFERENCES bookings (id),
	UNIQUE (show_id, seat_label)
);
CREATE TABLE IF NOT EXISTS payments (
	id BIGINT PRIMARY KEY,
	booking_id BIGINT NOT NULL,
	amount_cents BIGINT NOT NULL,
	method TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id BIGINT NOT NULL,
	event_type TEXT NOT NULL,
	payload_json BYTES NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ NULL,
	status TEXT NOT NULL,
	dedupe_key TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS show_seats_by_booking ON show_seats (booking_id);
CREATE INDEX IF NOT EXISTS bookings_by_status ON bookings (status);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
