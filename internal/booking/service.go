package booking

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/club-seat-reservations/internal/adapters/crdb"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
	"github.com/robertarktes/club-seat-reservations/internal/observability"
	"golang.org/x/sync/errgroup"
)

// Directory is the external club/place catalog. The engine resolves
// place identity and payment routing through it and nothing else.
type Directory interface {
	PlaceExists(ctx context.Context, id uuid.UUID) (bool, error)
	ResolveOperator(ctx context.Context, placeID uuid.UUID) (*uuid.UUID, error)
	GetPlace(ctx context.Context, id uuid.UUID) (*domain.PlaceInfo, error)
}

// PlaceCache is an advisory read-through cache over Directory lookups.
type PlaceCache interface {
	GetPlace(ctx context.Context, placeID uuid.UUID) (*domain.PlaceInfo, error)
	SetPlace(ctx context.Context, info domain.PlaceInfo, ttl time.Duration) error
}

// Auditor records lifecycle events out-of-band; failures are logged,
// never surfaced to callers.
type Auditor interface {
	LogReservation(ctx context.Context, res domain.Reservation) error
	LogCancellation(ctx context.Context, res domain.Reservation, refund float64) error
}

// Service is the reservation lifecycle engine. All cross-row invariants
// are enforced inside store transactions; the service itself holds no
// mutable state.
type Service struct {
	repo     *crdb.Repository
	dir      Directory
	cache    PlaceCache
	audit    Auditor
	holdTTL  time.Duration
	cacheTTL time.Duration
	logger   observability.Logger
}

func NewService(repo *crdb.Repository, dir Directory, cache PlaceCache, audit Auditor, holdTTL, cacheTTL time.Duration, logger observability.Logger) *Service {
	return &Service{
		repo:     repo,
		dir:      dir,
		cache:    cache,
		audit:    audit,
		holdTTL:  holdTTL,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// Reserve places a provisional hold on a seat for [start, start+duration).
// The overlap check and the insert run in one serializable transaction
// with the place's live rows locked, so no two overlapping reservations
// are ever visible to any other transaction.
func (s *Service) Reserve(ctx context.Context, placeID, userID uuid.UUID, start time.Time, duration time.Duration) (uuid.UUID, error) {
	if duration < time.Minute || duration%time.Minute != 0 {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "duration must be a positive whole number of minutes")
	}
	if start.IsZero() {
		return uuid.Nil, errors.Wrap(domain.ErrInvalidInput, "start time is required")
	}

	ok, err := s.dir.PlaceExists(ctx, placeID)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "place lookup")
	}
	if !ok {
		return uuid.Nil, errors.Wrapf(domain.ErrNotFound, "place %s", placeID)
	}

	// Operator absence is tolerated at reserve time; routing is enforced
	// at payment.
	operatorID, err := s.dir.ResolveOperator(ctx, placeID)
	if err != nil {
		return uuid.Nil, errors.Wrap(err, "operator lookup")
	}

	res := domain.NewHold(placeID, userID, operatorID, start, duration, s.holdTTL)

	txStart := time.Now()
	err = s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		existing, err := s.repo.LockSlotReservations(ctx, tx, placeID)
		if err != nil {
			return err
		}
		if domain.OverlapsAny(existing, res.StartTime, res.Duration) {
			return domain.ErrConflict
		}
		if err := s.repo.InsertReservation(ctx, tx, res); err != nil {
			return err
		}
		payload, _ := json.Marshal(map[string]interface{}{
			"reservation_id": res.ID,
			"place_id":       res.PlaceID,
			"user_id":        res.UserID,
			"expires_at":     res.ExpiresAt,
		})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewReservationEvent(res.ID, "reservation.created", payload))
	})
	observability.DBTxDuration.Observe(time.Since(txStart).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			observability.ReservationsTotal.WithLabelValues("conflict").Inc()
		}
		return uuid.Nil, err
	}
	observability.ReservationsTotal.WithLabelValues("created").Inc()

	if s.audit != nil {
		if err := s.audit.LogReservation(ctx, res); err != nil {
			s.logger.WithError(err).Warn("audit log failed for reservation")
		}
	}
	return res.ID, nil
}

// ConfirmBatch settles one checkout covering several holds. The total
// is debited once and split evenly across the batch; each reservation
// is promoted to active with its own payment row. Everything commits
// in a single transaction or not at all.
func (s *Service) ConfirmBatch(ctx context.Context, userID uuid.UUID, reservationIDs []uuid.UUID, totalAmount float64) error {
	if len(reservationIDs) == 0 {
		return errors.Wrap(domain.ErrInvalidInput, "no reservations to confirm")
	}
	if totalAmount <= 0 {
		return errors.Wrap(domain.ErrInvalidInput, "total amount must be positive")
	}
	seen := make(map[uuid.UUID]struct{}, len(reservationIDs))
	for _, id := range reservationIDs {
		if _, ok := seen[id]; ok {
			return errors.Wrapf(domain.ErrInvalidInput, "duplicate reservation %s", id)
		}
		seen[id] = struct{}{}
	}

	// Routing must be complete before any money moves: every reservation
	// needs an operator to receive its payment record.
	operators := make([]uuid.UUID, len(reservationIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range reservationIDs {
		i, id := i, id
		g.Go(func() error {
			res, err := s.repo.GetReservation(gctx, id)
			if err != nil {
				return err
			}
			if res.UserID != userID {
				return errors.Wrapf(domain.ErrNotFound, "reservation %s", id)
			}
			op, err := s.dir.ResolveOperator(gctx, res.PlaceID)
			if err != nil {
				return errors.Wrapf(domain.ErrIncompleteRouting, "place %s: %v", res.PlaceID, err)
			}
			if op == nil {
				return errors.Wrapf(domain.ErrIncompleteRouting, "place %s has no operator", res.PlaceID)
			}
			operators[i] = *op
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	share := totalAmount / float64(len(reservationIDs))
	now := time.Now().UTC()

	txStart := time.Now()
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		balance, err := s.repo.LockAccount(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance < totalAmount {
			return errors.Wrapf(domain.ErrInsufficientFunds, "required %.2f, have %.2f", totalAmount, balance)
		}
		if err := s.repo.DebitAccount(ctx, tx, userID, totalAmount); err != nil {
			return err
		}
		for i, id := range reservationIDs {
			if err := s.repo.PromoteToActive(ctx, tx, id); err != nil {
				return err
			}
			payment := domain.Payment{
				ID:            uuid.New(),
				ReservationID: id,
				UserID:        userID,
				OperatorID:    operators[i],
				Amount:        share,
				Method:        "online",
				Status:        domain.PaymentPaid,
				PaidAt:        now,
			}
			if err := s.repo.InsertPayment(ctx, tx, payment); err != nil {
				return err
			}
			payload, _ := json.Marshal(map[string]interface{}{
				"reservation_id": id,
				"user_id":        userID,
				"operator_id":    operators[i],
				"amount":         share,
			})
			if err := s.repo.InsertOutbox(ctx, tx, crdb.NewReservationEvent(id, "reservation.confirmed", payload)); err != nil {
				return err
			}
		}
		return nil
	})
	observability.DBTxDuration.Observe(time.Since(txStart).Seconds())
	if err != nil {
		return err
	}
	observability.ReservationsTotal.WithLabelValues("confirmed").Add(float64(len(reservationIDs)))
	return nil
}

// Cancel releases a reservation owned by userID and refunds 90% of the
// paid amount. Reservation flip, payment flip and balance credit commit
// as one unit; a failure in any of them rolls everything back.
func (s *Service) Cancel(ctx context.Context, reservationID, userID uuid.UUID) (float64, error) {
	var refund float64
	var cancelled domain.Reservation

	txStart := time.Now()
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		res, err := s.repo.LockReservation(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res.UserID != userID {
			return errors.Wrapf(domain.ErrNotFound, "reservation %s", reservationID)
		}
		if res.Status.Terminal() {
			return errors.Wrapf(domain.ErrInvalidState, "reservation %s is %s", reservationID, res.Status)
		}

		payment, err := s.repo.LockPaidPayment(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		refund = payment.RefundAmount()

		if err := s.repo.MarkCancelled(ctx, tx, reservationID); err != nil {
			return err
		}
		if err := s.repo.MarkRefunded(ctx, tx, payment.ID); err != nil {
			return err
		}
		if err := s.repo.CreditAccount(ctx, tx, userID, refund); err != nil {
			return err
		}

		cancelled = *res
		payload, _ := json.Marshal(map[string]interface{}{
			"reservation_id": reservationID,
			"user_id":        userID,
			"refund_amount":  refund,
		})
		return s.repo.InsertOutbox(ctx, tx, crdb.NewReservationEvent(reservationID, "reservation.cancelled", payload))
	})
	observability.DBTxDuration.Observe(time.Since(txStart).Seconds())
	if err != nil {
		return 0, err
	}
	observability.ReservationsTotal.WithLabelValues("cancelled").Inc()

	if s.audit != nil {
		if err := s.audit.LogCancellation(ctx, cancelled, refund); err != nil {
			s.logger.WithError(err).Warn("audit log failed for cancellation")
		}
	}
	return refund, nil
}

// TopUp credits a user's balance and returns the new total.
func (s *Service) TopUp(ctx context.Context, userID uuid.UUID, amount float64) (float64, error) {
	if amount <= 0 {
		return 0, errors.Wrap(domain.ErrInvalidInput, "amount must be positive")
	}
	return s.repo.TopUp(ctx, userID, amount)
}

const (
	FilterActive  = "active"
	FilterHistory = "history"
	FilterAll     = "all"
)

// Summary is the listing view of a reservation, enriched with directory
// data about the seat when available.
type Summary struct {
	ID              uuid.UUID  `json:"id"`
	PlaceID         uuid.UUID  `json:"place_id"`
	StartTime       time.Time  `json:"start_time"`
	DurationMinutes int        `json:"duration_minutes"`
	Status          string     `json:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	PlaceName       string     `json:"place_name,omitempty"`
	ClubName        string     `json:"club_name,omitempty"`
	TariffName      string     `json:"tariff_name,omitempty"`
	HourlyCost      float64    `json:"hourly_cost,omitempty"`
	Games           []string   `json:"games,omitempty"`
}

// List returns a user's reservations, most recent start time first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter string) ([]Summary, error) {
	statuses, err := statusesFor(filter)
	if err != nil {
		return nil, err
	}
	reservations, err := s.repo.ListByUser(ctx, userID, statuses)
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, 0, len(reservations))
	for _, res := range reservations {
		sum := Summary{
			ID:              res.ID,
			PlaceID:         res.PlaceID,
			StartTime:       res.StartTime,
			DurationMinutes: int(res.Duration / time.Minute),
			Status:          string(res.Status),
			ExpiresAt:       res.ExpiresAt,
		}
		if info := s.placeInfo(ctx, res.PlaceID); info != nil {
			sum.PlaceName = info.Description
			sum.ClubName = info.ClubName
			sum.TariffName = info.TariffName
			sum.HourlyCost = info.HourlyCost
			sum.Games = info.Games
		}
		summaries = append(summaries, sum)
	}
	return summaries, nil
}

func statusesFor(filter string) ([]domain.Status, error) {
	switch filter {
	case FilterActive, "":
		return []domain.Status{domain.StatusProvisional, domain.StatusActive}, nil
	case FilterHistory:
		return []domain.Status{domain.StatusCompleted, domain.StatusCancelled}, nil
	case FilterAll:
		return []domain.Status{domain.StatusProvisional, domain.StatusActive, domain.StatusCompleted, domain.StatusCancelled}, nil
	default:
		return nil, errors.Wrapf(domain.ErrInvalidInput, "unknown filter %q", filter)
	}
}

// placeInfo is best-effort: listing still works when the directory or
// cache is down, just without enrichment.
func (s *Service) placeInfo(ctx context.Context, placeID uuid.UUID) *domain.PlaceInfo {
	if s.cache != nil {
		if info, err := s.cache.GetPlace(ctx, placeID); err == nil && info != nil {
			return info
		}
	}
	info, err := s.dir.GetPlace(ctx, placeID)
	if err != nil {
		s.logger.WithError(err).WithField("place_id", placeID).Warn("place enrichment failed")
		return nil
	}
	if s.cache != nil {
		if err := s.cache.SetPlace(ctx, *info, s.cacheTTL); err != nil {
			s.logger.WithError(err).Debug("place cache write failed")
		}
	}
	return info
}
