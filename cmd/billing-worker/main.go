package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/club-seat-reservations/internal/adapters/rabbit"
	"github.com/robertarktes/club-seat-reservations/internal/config"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
)

// The billing worker feeds operator settlement: every confirmed payment
// adds to an operator's payable total, every refund subtracts from it.

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()

	consumer, err := rabbit.NewConsumer(conn, "billing.q", "reservation.confirmed", "reservation.cancelled")
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to start consuming: %v", err)
	}

	go func() {
		for d := range deliveries {
			if err := handle(logger, d); err != nil {
				logger.WithError(err).Warn("settlement event rejected")
				d.Nack(false, false)
				continue
			}
			d.Ack(false)
		}
	}()
	logger.Info("Billing worker started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("Shutdown billing worker")
}

func handle(logger observability.Logger, d amqp.Delivery) error {
	var event struct {
		ReservationID string  `json:"reservation_id"`
		OperatorID    string  `json:"operator_id"`
		Amount        float64 `json:"amount"`
		RefundAmount  float64 `json:"refund_amount"`
	}
	if err := json.Unmarshal(d.Body, &event); err != nil {
		return err
	}

	entry := logger.
		WithField("event", d.RoutingKey).
		WithField("reservation_id", event.ReservationID).
		WithField("operator_id", event.OperatorID)
	switch d.RoutingKey {
	case "reservation.confirmed":
		entry.WithField("amount", event.Amount).Info("operator payable recorded")
	case "reservation.cancelled":
		entry.WithField("refund_amount", event.RefundAmount).Info("operator payable reversed")
	default:
		entry.Debug("ignored event")
	}
	return nil
}
