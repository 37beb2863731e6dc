package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
)

const (
	SerializationFailureCode = "40001"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return err
	}

	err = fn(tx)
	if err == nil {
		// CockroachDB often reports serialization conflicts at commit,
		// not at the statement that caused them.
		err = tx.Commit(ctx)
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == SerializationFailureCode {
			return domain.ErrSerializationFailure
		}
		return err
	}
	return nil
}

// LockSlotReservations write-locks every reservation of a place that
// still occupies its slot (provisional or active) and returns them for
// overlap evaluation. Lock order is always "place rows first, then
// insert", across all call sites.
func (r *Repository) LockSlotReservations(ctx context.Context, tx pgx.Tx, placeID uuid.UUID) ([]domain.Reservation, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, place_id, user_id, operator_id, start_time, duration_minutes, status, expires_at, created_at
		FROM reservations
		WHERE place_id = $1 AND status IN ('provisional', 'active')
		FOR UPDATE
	`, placeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repository) InsertReservation(ctx context.Context, tx pgx.Tx, res domain.Reservation) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO reservations (id, place_id, user_id, operator_id, start_time, duration_minutes, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, res.ID, res.PlaceID, res.UserID, res.OperatorID, res.StartTime,
		int(res.Duration/time.Minute), res.Status, res.ExpiresAt, res.CreatedAt)
	return err
}

func (r *Repository) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return r.getReservation(ctx, r.pool, id, "")
}

// LockReservation fetches a single reservation FOR UPDATE inside tx.
func (r *Repository) LockReservation(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Reservation, error) {
	return r.getReservation(ctx, tx, id, "FOR UPDATE")
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *Repository) getReservation(ctx context.Context, q queryer, id uuid.UUID, suffix string) (*domain.Reservation, error) {
	var res domain.Reservation
	var minutes int
	err := q.QueryRow(ctx, `
		SELECT id, place_id, user_id, operator_id, start_time, duration_minutes, status, expires_at, created_at
		FROM reservations WHERE id = $1 `+suffix,
		id).Scan(&res.ID, &res.PlaceID, &res.UserID, &res.OperatorID, &res.StartTime,
		&minutes, &res.Status, &res.ExpiresAt, &res.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	res.Duration = time.Duration(minutes) * time.Minute
	return &res, nil
}

// PromoteToActive flips a provisional reservation to active and clears
// its hold deadline. Already-active rows are a no-op so payment retries
// stay idempotent; terminal rows reject with ErrInvalidState.
func (r *Repository) PromoteToActive(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE reservations SET status = 'active', expires_at = NULL
		WHERE id = $1 AND status = 'provisional'
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 1 {
		return nil
	}

	var status domain.Status
	err = tx.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1 FOR UPDATE`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	if status == domain.StatusActive {
		return nil
	}
	return errors.Wrapf(domain.ErrInvalidState, "reservation %s is %s", id, status)
}

// MarkCancelled is guarded on non-terminal status; the caller decides
// ownership and refund before flipping.
func (r *Repository) MarkCancelled(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE reservations SET status = 'cancelled', expires_at = NULL
		WHERE id = $1 AND status IN ('provisional', 'active')
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrInvalidState
	}
	return nil
}

// CompleteElapsed promotes every active reservation whose interval has
// fully elapsed to completed, in one batched guarded update. Safe to run
// concurrently with client transitions and idempotent across ticks.
func (r *Repository) CompleteElapsed(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		UPDATE reservations SET status = 'completed'
		WHERE status = 'active'
		  AND start_time + duration_minutes * INTERVAL '1 minute' <= $1
		RETURNING id
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// DeleteExpiredHolds hard-deletes provisional reservations whose hold
// deadline has passed. Confirmed rows carry a NULL expires_at and are
// never touched, which makes the sweep race-safe against confirmation.
func (r *Repository) DeleteExpiredHolds(ctx context.Context, now time.Time) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, `
		DELETE FROM reservations
		WHERE status = 'provisional' AND expires_at IS NOT NULL AND expires_at <= $1
		RETURNING id, place_id, user_id, operator_id, start_time, duration_minutes, status, expires_at, created_at
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, statuses []domain.Status) ([]domain.Reservation, error) {
	strs := make([]string, len(statuses))
	for i, s := range statuses {
		strs[i] = string(s)
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, place_id, user_id, operator_id, start_time, duration_minutes, status, expires_at, created_at
		FROM reservations
		WHERE user_id = $1 AND status = ANY($2)
		ORDER BY start_time DESC
	`, userID, strs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanReservations(rows)
}

func scanReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	var out []domain.Reservation
	for rows.Next() {
		var res domain.Reservation
		var minutes int
		if err := rows.Scan(&res.ID, &res.PlaceID, &res.UserID, &res.OperatorID, &res.StartTime,
			&minutes, &res.Status, &res.ExpiresAt, &res.CreatedAt); err != nil {
			return nil, err
		}
		res.Duration = time.Duration(minutes) * time.Minute
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
