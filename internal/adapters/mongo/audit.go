package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/cinema-booking/internal/domain"
	"github.com/robertarktes/cinema-booking/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditTrail records booking and payment lifecycle events so that
// cancellation and seat release can be audited independently.
type AuditTrail struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditTrail(db *mongo.Database, logger observability.Logger) *AuditTrail {
	return &AuditTrail{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	BookingID int64     `bson:"booking_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditTrail) LogEvent(ctx context.Context, action string, bookingID int64, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		BookingID: bookingID,
		Timestamp: time.Now(),
		Data:      bson.M(data),
	}
	_, err := a.coll.InsertOne(ctx, log)
	if err != nil {
		a.logger.Error("failed to insert audit log", err)
		return err
	}
	return nil
}

func (a *AuditTrail) LogBookingCreated(ctx context.Context, b domain.Booking, seatIDs []int64) error {
	data := map[string]interface{}{
		"show_id":    b.ShowID,
		"user_email": b.UserEmail,
		"seat_ids":   seatIDs,
	}
	return a.LogEvent(ctx, "booking.created", b.ID, data)
}

func (a *AuditTrail) LogBookingCancelled(ctx context.Context, bookingID int64, seatsReleased int64, reason string) error {
	data := map[string]interface{}{
		"seats_released": seatsReleased,
		"reason":         reason,
	}
	return a.LogEvent(ctx, "booking.cancelled", bookingID, data)
}

func (a *AuditTrail) LogPaymentRecorded(ctx context.Context, p domain.Payment) error {
	data := map[string]interface{}{
		"payment_id":   p.ID,
		"amount_cents": p.AmountCents,
		"method":       p.Method,
	}
	return a.LogEvent(ctx, "payment.recorded", p.BookingID, data)
}

func (a *AuditTrail) LogPaymentRemoved(ctx context.Context, p domain.Payment, seatsReleased int64) error {
	data := map[string]interface{}{
		"payment_id":     p.ID,
		"seats_released": seatsReleased,
	}
	return a.LogEvent(ctx, "payment.removed", p.BookingID, data)
}
