package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/club-seat-reservations/internal/adapters/crdb"
	"github.com/robertarktes/club-seat-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
)

// Publisher relays committed outbox records to the broker. At-least-once:
// a record is marked published only after a successful publish, so a
// crash in between re-delivers with the same dedupe key.
type Publisher struct {
	repo      *crdb.Repository
	rabbitPub *rabbit.Publisher
	logger    observability.Logger
	batchSize int
}

func NewPublisher(repo *crdb.Repository, rabbitPub *rabbit.Publisher, logger observability.Logger) *Publisher {
	return &Publisher{repo: repo, rabbitPub: rabbitPub, logger: logger, batchSize: 50}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.drain(ctx)
		}
	}
}

func (p *Publisher) drain(ctx context.Context) {
	records, err := p.repo.GetUnpublishedOutbox(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("failed to read outbox")
		return
	}
	if len(records) > 0 {
		observability.OutboxLag.Set(time.Since(records[0].CreatedAt).Seconds())
	} else {
		observability.OutboxLag.Set(0)
	}
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:   rec.DedupeKey,
			ContentType: "application/json",
			Body:        rec.Payload,
		}
		if err := p.rabbitPub.Publish(ctx, rec.EventType, msg); err != nil {
			p.logger.WithError(err).WithField("event", rec.EventType).Warn("outbox publish failed")
			continue
		}
		if err := p.repo.MarkPublished(ctx, rec.ID, time.Now()); err != nil {
			p.logger.WithError(err).Error("failed to mark outbox record published")
		}
	}
}
