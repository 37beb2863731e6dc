package booking

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/club-seat-reservations/internal/adapters/crdb"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
)

// EventPublisher pushes lifecycle events emitted by the sweep. Sweep
// transitions are already durable when published, so direct publishing
// (without the outbox) is acceptable here.
type EventPublisher interface {
	PublishJSON(ctx context.Context, key string, payload map[string]interface{}) error
}

// Sweeper retires expired provisional holds and promotes elapsed active
// reservations to completed. It is the sole owner of hold expiry: there
// are no in-process timers, so a restart loses nothing.
type Sweeper struct {
	repo   *crdb.Repository
	pub    EventPublisher
	logger observability.Logger
}

func NewSweeper(repo *crdb.Repository, pub EventPublisher, logger observability.Logger) *Sweeper {
	return &Sweeper{repo: repo, pub: pub, logger: logger}
}

// Run executes a sweep on every tick until ctx is cancelled. A failed
// tick is logged and retried on the next cadence.
func (w *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := w.Sweep(ctx, now.UTC()); err != nil {
				w.logger.WithError(err).Error("sweep tick failed")
			}
		}
	}
}

// Sweep runs one pass. Both steps are set-based, status-guarded writes,
// so running the sweep twice in a row is a no-op the second time, and it
// composes safely with concurrent client transitions.
func (w *Sweeper) Sweep(ctx context.Context, now time.Time) error {
	completed, err := w.repo.CompleteElapsed(ctx, now)
	if err != nil {
		return errors.Wrap(err, "complete elapsed reservations")
	}
	for _, id := range completed {
		w.publish(ctx, "reservation.completed", map[string]interface{}{"reservation_id": id})
	}
	if len(completed) > 0 {
		observability.SweepCompleted.Add(float64(len(completed)))
		w.logger.WithField("count", len(completed)).Info("reservations completed")
	}

	expired, err := w.repo.DeleteExpiredHolds(ctx, now)
	if err != nil {
		return errors.Wrap(err, "delete expired holds")
	}
	for _, res := range expired {
		w.publish(ctx, "reservation.expired", map[string]interface{}{
			"reservation_id": res.ID,
			"place_id":       res.PlaceID,
			"user_id":        res.UserID,
		})
	}
	if len(expired) > 0 {
		observability.SweepExpired.Add(float64(len(expired)))
		w.logger.WithField("count", len(expired)).Info("provisional holds expired")
	}
	return nil
}

func (w *Sweeper) publish(ctx context.Context, key string, payload map[string]interface{}) {
	if w.pub == nil {
		return
	}
	if err := w.pub.PublishJSON(ctx, key, payload); err != nil {
		w.logger.WithError(err).WithField("event", key).Warn("sweep event publish failed")
	}
}
