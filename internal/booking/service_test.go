package booking_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/club-seat-reservations/internal/booking"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
)

// Validation rejects before any transaction opens, so these paths are
// exercised without a store.
func newValidationService() *booking.Service {
	return booking.NewService(nil, nil, nil, nil, 5*time.Minute, time.Minute, observability.NewLogger())
}

func TestReserve_RejectsBadDuration(t *testing.T) {
	svc := newValidationService()
	start := time.Now().Add(time.Hour)

	for name, dur := range map[string]time.Duration{
		"zero":           0,
		"negative":       -30 * time.Minute,
		"sub-minute":     30 * time.Second,
		"partial-minute": 90 * time.Second,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Reserve(context.Background(), uuid.New(), uuid.New(), start, dur)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Errorf("duration %v: got %v, want ErrInvalidInput", dur, err)
			}
		})
	}
}

func TestReserve_RejectsZeroStart(t *testing.T) {
	svc := newValidationService()
	_, err := svc.Reserve(context.Background(), uuid.New(), uuid.New(), time.Time{}, 30*time.Minute)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestConfirmBatch_RejectsEmptyAndNonPositive(t *testing.T) {
	svc := newValidationService()

	if err := svc.ConfirmBatch(context.Background(), uuid.New(), nil, 100); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("empty batch: got %v, want ErrInvalidInput", err)
	}
	if err := svc.ConfirmBatch(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("zero amount: got %v, want ErrInvalidInput", err)
	}
	if err := svc.ConfirmBatch(context.Background(), uuid.New(), []uuid.UUID{uuid.New()}, -5); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("negative amount: got %v, want ErrInvalidInput", err)
	}
}

// A repeated id would debit the share twice against a single hold, so
// the batch is rejected before any lookup or transaction.
func TestConfirmBatch_RejectsDuplicateIDs(t *testing.T) {
	svc := newValidationService()
	id := uuid.New()

	err := svc.ConfirmBatch(context.Background(), uuid.New(), []uuid.UUID{id, uuid.New(), id}, 300)
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("duplicate ids: got %v, want ErrInvalidInput", err)
	}
}

func TestTopUp_RejectsNonPositive(t *testing.T) {
	svc := newValidationService()
	if _, err := svc.TopUp(context.Background(), uuid.New(), 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}

func TestList_RejectsUnknownFilter(t *testing.T) {
	svc := newValidationService()
	if _, err := svc.List(context.Background(), uuid.New(), "upcoming"); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("got %v, want ErrInvalidInput", err)
	}
}
