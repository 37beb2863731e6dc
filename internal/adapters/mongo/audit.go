package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        uuid.UUID `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    uuid.UUID `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, action string, userID uuid.UUID, data map[string]interface{}) error {
	log := AuditLog{
		ID:        uuid.New(),
		Action:    action,
		UserID:    userID,
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

func (a *AuditLogger) LogReservation(ctx context.Context, res domain.Reservation) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"place_id":       res.PlaceID,
		"start_time":     res.StartTime.Format(time.RFC3339),
		"duration":       res.Duration.String(),
		"status":         string(res.Status),
	}
	if res.ExpiresAt != nil {
		data["expires_at"] = res.ExpiresAt.Format(time.RFC3339)
	}
	return a.LogEvent(ctx, "reservation.created", res.UserID, data)
}

func (a *AuditLogger) LogCancellation(ctx context.Context, res domain.Reservation, refund float64) error {
	data := map[string]interface{}{
		"reservation_id": res.ID,
		"place_id":       res.PlaceID,
		"refund_amount":  refund,
	}
	return a.LogEvent(ctx, "reservation.cancelled", res.UserID, data)
}
