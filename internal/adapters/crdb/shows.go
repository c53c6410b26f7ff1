package crdb

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/cinema-booking/internal/domain"
)

func (r *Repository) InsertShowTx(ctx context.Context, tx pgx.Tx, s domain.Show) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO shows (id, movie_id, theater_id, show_date, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, s.ID, s.MovieID, s.TheaterID, s.Date, s.StartsAt, s.EndsAt)
	return err
}

func (r *Repository) GetShow(ctx context.Context, id int64) (*domain.Show, error) {
	var s domain.Show
	err := r.pool.QueryRow(ctx, `
		SELECT id, movie_id, theater_id, show_date, starts_at, ends_at
		FROM shows WHERE id = $1
	`, id).Scan(&s.ID, &s.MovieID, &s.TheaterID, &s.Date, &s.StartsAt, &s.EndsAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListShowsStartingAt returns the shows on a date that start at the given
// instant. A zero startsAt matches every show on the date.
func (r *Repository) ListShowsStartingAt(ctx context.Context, date time.Time, startsAt time.Time) ([]domain.Show, error) {
	q := `
		SELECT id, movie_id, theater_id, show_date, starts_at, ends_at
		FROM shows WHERE show_date = $1
	`
	args := []any{date}
	if !startsAt.IsZero() {
		q += ` AND starts_at = $2`
		args = append(args, startsAt)
	}
	q += ` ORDER BY starts_at, id`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shows []domain.Show
	for rows.Next() {
		var s domain.Show
		if err := rows.Scan(&s.ID, &s.MovieID, &s.TheaterID, &s.Date, &s.StartsAt, &s.EndsAt); err != nil {
			return nil, err
		}
		shows = append(shows, s)
	}
	return shows, rows.Err()
}

// ShowIDsOnDate lists a theater's shows on the given date, for
// administrative removal.
func (r *Repository) ShowIDsOnDate(ctx context.Context, theaterID string, date time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM shows WHERE theater_id = $1 AND show_date = $2 ORDER BY id
	`, theaterID, date)
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

func (r *Repository) DeleteShowTx(ctx context.Context, tx pgx.Tx, id int64) error {
	_, err := tx.Exec(ctx, `DELETE FROM shows WHERE id = $1`, id)
	return err
}
