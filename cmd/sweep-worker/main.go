package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
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
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := observability.NewLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config: ", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		logger.Fatal("failed to setup otel: ", err)
	}
	defer shutdownOtel()

	observability.InitMetrics()

	pool, err := pgxpool.New(context.Background(), cfg.CRDBDSN)
	if err != nil {
		logger.Fatal("failed to connect to crdb: ", err)
	}
	defer pool.Close()
	repo := crdb.NewRepository(pool)

	mongoClient, err := mongo.Connect(context.Background(), options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		logger.Fatal("failed to connect to mongo: ", err)
	}
	defer mongoClient.Disconnect(context.Background())
	mongoDB := mongoClient.Database("cinebook")
	catalog := mongoadapter.NewCatalogRepository(mongoDB, logger)
	audit := mongoadapter.NewAuditTrail(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	cache := redisadapter.NewCache(redisClient)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		logger.Fatal("failed to connect to rabbitmq: ", err)
	}
	defer conn.Close()
	rabbitPub, err := rabbit.NewPublisher(conn)
	if err != nil {
		logger.Fatal("failed to create publisher: ", err)
	}

	svc := booking.NewService(repo, cache, catalog, audit, logger, cfg.BookingTTL)
	worker := NewSweepWorker(svc, rabbitPub, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go worker.Run(ctx, cfg.SweepInterval)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown sweep worker")
}

// SweepWorker cancels pending bookings that sat unpaid past the booking TTL,
// freeing their seats for resale.
type SweepWorker struct {
	svc       *booking.Service
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
}

func NewSweepWorker(svc *booking.Service, rabbitPub *rabbit.Publisher, logger observability.Logger) *SweepWorker {
	return &SweepWorker{svc: svc, rabbitPub: rabbitPub, logger: logger}
}

func (w *SweepWorker) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SweepWorker) sweep(ctx context.Context) {
	abandoned, err := w.svc.ListAbandoned(ctx)
	if err != nil {
		w.logger.Error("failed to list abandoned bookings", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, b := range abandoned {
		b := b
		g.Go(func() error {
			if err := w.expireWithRetry(gctx, b); err != nil {
				w.logger.Error("failed to expire booking after retries", err)
			}
			return nil
		})
	}
	g.Wait()
}

func (w *SweepWorker) expireWithRetry(ctx context.Context, b domain.Booking) error {
	maxRetries := 3
	for i := 0; i < maxRetries; i++ {
		err := w.svc.CancelBooking(ctx, b.ID, "abandoned past TTL")
		if err != nil {
			var stateErr *domain.InvalidStateError
			if errors.As(err, &stateErr) {
				return nil
			}
			backoff := time.Duration(1<<i) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				continue
			}
		}

		observability.BookingsSwept.Inc()

		payload, _ := json.Marshal(map[string]interface{}{"booking_id": b.ID, "show_id": b.ShowID})
		msg := amqp.Publishing{
			MessageId:   uuid.New().String(),
			ContentType: "application/json",
			Body:        payload,
		}
		return w.rabbitPub.Publish(ctx, "booking.expired", msg)
	}
	return errors.Newf("booking %d: failed after %d retries", b.ID, maxRetries)
}
