package http

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-booking/internal/adapters/mongo"
	"github.com/robertarktes/cinema-booking/internal/booking"
	"github.com/robertarktes/cinema-booking/internal/config"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/idempotency"
)

const dateLayout = "2006-01-02"

type Handlers struct {
	cfg     *config.Config
	svc     *booking.Service
	repo    *crdb.Repository
	catalog *mongoadapter.CatalogRepository
	idemp   *idempotency.Idempotency
}

func NewHandlers(cfg *config.Config, svc *booking.Service, repo *crdb.Repository, catalog *mongoadapter.CatalogRepository, idemp *idempotency.Idempotency) *Handlers {
	return &Handlers{
		cfg:     cfg,
		svc:     svc,
		repo:    repo,
		catalog: catalog,
		idemp:   idemp,
	}
}

// writeError maps domain failures to HTTP statuses. Every rejection names
// the offending entity in the body so the caller can react.
func writeError(w http.ResponseWriter, err error) {
	var seatErr *domain.SeatUnavailableError
	var priceErr *domain.PriceMismatchError
	var dupErr *domain.DuplicateInventoryError
	var stateErr *domain.InvalidStateError
	var consErr *domain.ConsistencyViolationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, domain.ErrSerializationFailure):
		http.Error(w, "conflict, try again", http.StatusConflict)
	case errors.As(err, &seatErr):
		http.Error(w, seatErr.Error(), http.StatusConflict)
	case errors.As(err, &dupErr):
		http.Error(w, dupErr.Error(), http.StatusConflict)
	case errors.As(err, &priceErr):
		http.Error(w, priceErr.Error(), http.StatusUnprocessableEntity)
	case errors.As(err, &stateErr):
		http.Error(w, stateErr.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, domain.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &consErr):
		http.Error(w, consErr.Error(), http.StatusInternalServerError)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) []byte {
	data, _ := json.Marshal(v)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
	return data
}

func (h *Handlers) replayIdempotent(w http.ResponseWriter, r *http.Request) (string, bool) {
	key := r.Header.Get("Idempotency-Key")
	existing, err := h.idemp.Get(r.Context(), key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return key, true
	}
	if existing != nil {
		w.WriteHeader(existing.Status)
		w.Write(existing.Result)
		return key, true
	}
	return key, false
}

func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	key, done := h.replayIdempotent(w, r)
	if done {
		return
	}

	var req struct {
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Phone     string `json:"phone"`
		Password  string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	user := mongoadapter.UserDoc{Email: req.Email, FirstName: req.FirstName, LastName: req.LastName, Phone: req.Phone}
	if err := h.catalog.CreateUser(r.Context(), user, req.Password); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{"email": req.Email})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) ScheduleShow(w http.ResponseWriter, r *http.Request) {
	key, done := h.replayIdempotent(w, r)
	if done {
		return
	}

	var req struct {
		MovieID       int64  `json:"movie_id"`
		TheaterID     string `json:"theater_id"`
		Date          string `json:"date"`
		StartsAt      string `json:"starts_at"`
		EndsAt        string `json:"ends_at"`
		FlatPrice     int64  `json:"flat_price_cents"`
		MinPriceCents int64  `json:"min_price_cents"`
		MaxPriceCents int64  `json:"max_price_cents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		http.Error(w, "invalid date", http.StatusBadRequest)
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		http.Error(w, "invalid starts_at", http.StatusBadRequest)
		return
	}
	endsAt, err := time.Parse(time.RFC3339, req.EndsAt)
	if err != nil {
		http.Error(w, "invalid ends_at", http.StatusBadRequest)
		return
	}
	rule := domain.FlatPrice(req.FlatPrice)
	if req.MaxPriceCents > 0 {
		rule = domain.RandomPrice(req.MinPriceCents, req.MaxPriceCents)
	}

	show, err := h.svc.ScheduleShow(r.Context(), req.MovieID, req.TheaterID, date, startsAt, endsAt, rule)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{"show_id": show.ID})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) RemoveShowsOnDate(w http.ResponseWriter, r *http.Request) {
	theaterID := r.URL.Query().Get("theater_id")
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil || theaterID == "" {
		http.Error(w, "theater_id and date required", http.StatusBadRequest)
		return
	}

	removed, err := h.svc.RemoveShowsOnDate(r.Context(), theaterID, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shows_removed": removed})
}

func (h *Handlers) ListFreeSeats(w http.ResponseWriter, r *http.Request) {
	showID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid show id", http.StatusBadRequest)
		return
	}
	seats, err := h.svc.ListFreeSeats(r.Context(), showID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(seats))
	for _, s := range seats {
		out = append(out, map[string]interface{}{
			"seat_id":     s.SeatID,
			"seat_label":  s.SeatLabel,
			"price_cents": s.PriceCents,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"show_id": showID, "free_seats": out})
}

func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	key, done := h.replayIdempotent(w, r)
	if done {
		return
	}

	var req struct {
		ShowID    int64   `json:"show_id"`
		UserEmail string  `json:"user_email"`
		SeatIDs   []int64 `json:"seat_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := h.svc.CreateBooking(r.Context(), req.ShowID, req.UserEmail, req.SeatIDs)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"booking_id": b.ID,
		"status":     b.Status,
		"seat_count": b.SeatCount,
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id": b.ID,
		"status":     b.Status,
		"seat_count": b.SeatCount,
		"show_id":    b.ShowID,
		"user_email": b.UserEmail,
		"created_at": b.CreatedAt.Format(time.RFC3339),
	})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	if err := h.svc.CancelBooking(r.Context(), id, "caller request"); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"booking_id": id, "status": domain.StatusCancelled})
}

func (h *Handlers) ChangeSeat(w http.ResponseWriter, r *http.Request) {
	key, done := h.replayIdempotent(w, r)
	if done {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid booking id", http.StatusBadRequest)
		return
	}
	var req struct {
		OldSeatID int64 `json:"old_seat_id"`
		NewSeatID int64 `json:"new_seat_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.ChangeSeat(r.Context(), id, req.OldSeatID, req.NewSeatID); err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusOK, map[string]interface{}{"booking_id": id, "seat_id": req.NewSeatID})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusOK, Result: data})
}

func (h *Handlers) CancelPendingBookings(w http.ResponseWriter, r *http.Request) {
	cancelled, err := h.svc.CancelPendingBookings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"cancelled": cancelled})
}

func (h *Handlers) ClearCancelledBookings(w http.ResponseWriter, r *http.Request) {
	purged, err := h.svc.ClearCancelledBookings(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"purged": purged})
}

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	key, done := h.replayIdempotent(w, r)
	if done {
		return
	}

	var req struct {
		BookingID   int64  `json:"booking_id"`
		AmountCents int64  `json:"amount_cents"`
		Method      string `json:"method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.svc.RecordPayment(r.Context(), req.BookingID, req.AmountCents, req.Method)
	if err != nil {
		writeError(w, err)
		return
	}

	data := writeJSON(w, http.StatusCreated, map[string]interface{}{
		"payment_id": p.ID,
		"booking_id": p.BookingID,
		"status":     domain.StatusConfirmed,
	})
	h.idemp.Set(r.Context(), key, idempotency.Response{Status: http.StatusCreated, Result: data})
}

func (h *Handlers) RemovePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid payment id", http.StatusBadRequest)
		return
	}
	if err := h.svc.RemovePayment(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payment_id": id, "removed": true})
}

func (h *Handlers) ListPendingUsers(w http.ResponseWriter, r *http.Request) {
	emails, err := h.repo.ListPendingBookingUsers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": emails})
}

func (h *Handlers) ListUserBookings(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	bookings, err := h.repo.ListBookingsForUser(r.Context(), email)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(bookings))
	for _, ub := range bookings {
		out = append(out, map[string]interface{}{
			"booking_id": ub.Booking.ID,
			"status":     ub.Booking.Status,
			"show_id":    ub.Booking.ShowID,
			"seats":      ub.SeatLabels,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bookings": out})
}

func (h *Handlers) SearchMovies(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	after, _ := strconv.Atoi(r.URL.Query().Get("released_after"))
	movies, err := h.catalog.SearchMovies(r.Context(), title, after)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(movies))
	for _, m := range movies {
		out = append(out, map[string]interface{}{
			"movie_id":     m.ID,
			"title":        m.Title,
			"duration_min": m.DurationMin,
			"release_year": m.ReleaseYear,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"movies": out})
}

func (h *Handlers) ListShows(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(dateLayout, r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, "date required", http.StatusBadRequest)
		return
	}
	var startsAt time.Time
	if v := r.URL.Query().Get("starts_at"); v != "" {
		startsAt, err = time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid starts_at", http.StatusBadRequest)
			return
		}
	}
	shows, err := h.repo.ListShowsStartingAt(r.Context(), date, startsAt)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, 0, len(shows))
	for _, s := range shows {
		out = append(out, map[string]interface{}{
			"show_id":    s.ID,
			"movie_id":   s.MovieID,
			"theater_id": s.TheaterID,
			"starts_at":  s.StartsAt.Format(time.RFC3339),
			"ends_at":    s.EndsAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"shows": out})
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}
