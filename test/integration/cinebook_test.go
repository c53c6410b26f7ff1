package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	amqp "github.com/rabbitmq/amqp091-go"
	redisclient "github.com/redis/go-redis/v9"
	"github.com/robertarktes/cinema-booking/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/cinema-booking/internal/adapters/mongo"
	"github.com/robertarktes/cinema-booking/internal/adapters/rabbit"
	redisadapter "github.com/robertarktes/cinema-booking/internal/adapters/redis"
	"github.com/robertarktes/cinema-booking/internal/booking"
	"github.com/robertarktes/cinema-booking/internal/config"
	httphandler "github.com/robertarktes/cinema-booking/internal/http"
	"github.com/robertarktes/cinema-booking/internal/idempotency"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"github.com/robertarktes/cinema-booking/internal/outbox"
	"github.com/robertarktes/cinema-booking/internal/rateLimit"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func TestIntegration_BookPayConfirm(t *testing.T) {
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
	defer crdbContainer.Terminate(ctx)

	mongoContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer mongoContainer.Terminate(ctx)

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForExec([]string{"redis-cli", "ping"}),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer redisContainer.Terminate(ctx)

	rabbitContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-management",
			ExposedPorts: []string{"5672/tcp", "15672/tcp"},
			WaitingFor:   wait.ForHTTP("/api/health").WithPort("15672"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitContainer.Terminate(ctx)

	crdbDSN, err := crdbContainer.Endpoint(ctx, "postgresql")
	if err != nil {
		t.Fatal(err)
	}
	mongoEndpoint, err := mongoContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	redisEndpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	rabbitHost, err := rabbitContainer.Host(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rabbitPort, err := rabbitContainer.MappedPort(ctx, "5672")
	if err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{
		CRDBDSN:      crdbDSN + "/defaultdb?sslmode=disable",
		MongoURI:     "mongodb://" + mongoEndpoint,
		RedisAddr:    redisEndpoint,
		RabbitURL:    "amqp://guest:guest@" + rabbitHost + ":" + rabbitPort.Port() + "/",
		BookingTTL:   10 * time.Minute,
		OTLPEndpoint: "",
	}

	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()
	if err := crdb.Migrate(ctx, pool); err != nil {
		t.Fatal(err)
	}
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		t.Fatal(err)
	}
	defer mongoClient.Disconnect(ctx)
	mongoDB := mongoClient.Database("cinebook")
	logger := observability.NewLogger()
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditTrail(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)
	redisIdemp := redisadapter.NewIdempotency(redisClient)
	idemp := idempotency.NewIdempotency(redisIdemp, time.Hour)
	rl := rateLimit.NewRateLimiter(cache)

	rabbitConn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		t.Fatal(err)
	}
	defer rabbitConn.Close()
	rabbitPub, err := rabbit.NewPublisher(rabbitConn)
	if err != nil {
		t.Fatal(err)
	}
	consumer, err := rabbit.NewConsumer(rabbitConn, "cinebook.test.q", "booking.*")
	if err != nil {
		t.Fatal(err)
	}
	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		t.Fatal(err)
	}

	svc := booking.NewService(repo, cache, catalog, audit, logger, cfg.BookingTTL)
	handlers := httphandler.NewHandlers(cfg, svc, repo, catalog, idemp)
	srv := httptest.NewServer(httphandler.SetupRouter(handlers, logger, rl))
	defer srv.Close()

	relayCtx, stopRelay := context.WithCancel(ctx)
	defer stopRelay()
	go outbox.NewPublisher(repo, rabbitPub, logger).Run(relayCtx)

	// Seed catalog
	if err := catalog.CreateMovie(ctx, mongoadapter.MovieDoc{ID: 1, Title: "Heat", DurationMin: 170, ReleaseYear: 1995}); err != nil {
		t.Fatal(err)
	}
	err = catalog.CreateTheater(ctx, mongoadapter.TheaterDoc{
		ID:   "th-1",
		Name: "Screen 1",
		Seats: []mongoadapter.TheaterSeatDoc{
			{Label: "A1", Row: "A", Number: 1},
			{Label: "A2", Row: "A", Number: 2},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	doPost := func(path string, body map[string]interface{}) *http.Response {
		t.Helper()
		data, _ := json.Marshal(body)
		req, _ := http.NewRequest("POST", srv.URL+path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", uuid.New().String())
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp
	}

	resp := doPost("/v1/users", map[string]interface{}{
		"email":      "alice@example.com",
		"first_name": "Alice",
		"password":   "secret",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create user: status %d", resp.StatusCode)
	}

	resp = doPost("/v1/shows", map[string]interface{}{
		"movie_id":         1,
		"theater_id":       "th-1",
		"date":             "2026-09-01",
		"starts_at":        "2026-09-01T18:00:00Z",
		"ends_at":          "2026-09-01T21:00:00Z",
		"flat_price_cents": 1500,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("schedule show: status %d", resp.StatusCode)
	}
	var showResp struct {
		ShowID int64 `json:"show_id"`
	}
	json.NewDecoder(resp.Body).Decode(&showResp)

	req, _ := http.NewRequest("GET", srv.URL+"/v1/shows/"+itoa(showResp.ShowID)+"/seats", nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("list seats failed: %v, status %d", err, resp.StatusCode)
	}
	var seatsResp struct {
		FreeSeats []struct {
			SeatID int64 `json:"seat_id"`
		} `json:"free_seats"`
	}
	json.NewDecoder(resp.Body).Decode(&seatsResp)
	if len(seatsResp.FreeSeats) != 2 {
		t.Fatalf("expected 2 free seats, got %d", len(seatsResp.FreeSeats))
	}

	resp = doPost("/v1/bookings", map[string]interface{}{
		"show_id":    showResp.ShowID,
		"user_email": "alice@example.com",
		"seat_ids":   []int64{seatsResp.FreeSeats[0].SeatID},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create booking: status %d", resp.StatusCode)
	}
	var bookingResp struct {
		BookingID int64  `json:"booking_id"`
		Status    string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&bookingResp)
	if bookingResp.Status != "Pending" {
		t.Errorf("expected Pending, got %s", bookingResp.Status)
	}

	// Rebooking the same seat must conflict.
	resp = doPost("/v1/bookings", map[string]interface{}{
		"show_id":    showResp.ShowID,
		"user_email": "alice@example.com",
		"seat_ids":   []int64{seatsResp.FreeSeats[0].SeatID},
	})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 on taken seat, got %d", resp.StatusCode)
	}

	resp = doPost("/v1/payments", map[string]interface{}{
		"booking_id":   bookingResp.BookingID,
		"amount_cents": 1500,
		"method":       "card",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("record payment: status %d", resp.StatusCode)
	}

	req, _ = http.NewRequest("GET", srv.URL+"/v1/bookings/"+itoa(bookingResp.BookingID), nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("get booking failed: %v, status %d", err, resp.StatusCode)
	}
	var getResp struct {
		Status string `json:"status"`
	}
	json.NewDecoder(resp.Body).Decode(&getResp)
	if getResp.Status != "Confirmed" {
		t.Errorf("expected Confirmed after payment, got %s", getResp.Status)
	}

	// The outbox relay must deliver the booking.created event.
	select {
	case d := <-deliveries:
		var event struct {
			BookingID int64 `json:"booking_id"`
		}
		if err := json.Unmarshal(d.Body, &event); err != nil {
			t.Fatal(err)
		}
		if event.BookingID != bookingResp.BookingID {
			t.Errorf("event for booking %d, want %d", event.BookingID, bookingResp.BookingID)
		}
		d.Ack(false)
	case <-time.After(30 * time.Second):
		t.Error("no booking event relayed from the outbox")
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
