package crdb

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/club-seat-reservations/internal/domain"
)

// Ledger queries live on the same Repository so that balance movements,
// payment rows and reservation flips can share one transaction.

// LockAccount write-locks a user's account row and returns the balance.
func (r *Repository) LockAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (float64, error) {
	var balance float64
	err := tx.QueryRow(ctx, `
		SELECT balance FROM accounts WHERE user_id = $1 FOR UPDATE
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

func (r *Repository) DebitAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount float64) error {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance - $2 WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *Repository) CreditAccount(ctx context.Context, tx pgx.Tx, userID uuid.UUID, amount float64) error {
	result, err := tx.Exec(ctx, `
		UPDATE accounts SET balance = balance + $2 WHERE user_id = $1
	`, userID, amount)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TopUp credits an existing account and returns the new balance.
func (r *Repository) TopUp(ctx context.Context, userID uuid.UUID, amount float64) (float64, error) {
	var balance float64
	err := r.pool.QueryRow(ctx, `
		UPDATE accounts SET balance = balance + $2 WHERE user_id = $1
		RETURNING balance
	`, userID, amount).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (float64, error) {
	var balance float64
	err := r.pool.QueryRow(ctx, `
		SELECT balance FROM accounts WHERE user_id = $1
	`, userID).Scan(&balance)
	if err == pgx.ErrNoRows {
		return 0, domain.ErrNotFound
	}
	return balance, err
}

func (r *Repository) InsertPayment(ctx context.Context, tx pgx.Tx, p domain.Payment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO payments (id, reservation_id, user_id, operator_id, amount, method, status, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.ID, p.ReservationID, p.UserID, p.OperatorID, p.Amount, p.Method, p.Status, p.PaidAt)
	return err
}

// LockPaidPayment finds the paid payment backing a reservation, locked
// for the refund flip. At most one such row exists at any time.
func (r *Repository) LockPaidPayment(ctx context.Context, tx pgx.Tx, reservationID uuid.UUID) (*domain.Payment, error) {
	var p domain.Payment
	err := tx.QueryRow(ctx, `
		SELECT id, reservation_id, user_id, operator_id, amount, method, status, paid_at
		FROM payments WHERE reservation_id = $1 AND status = 'paid'
		FOR UPDATE
	`, reservationID).Scan(&p.ID, &p.ReservationID, &p.UserID, &p.OperatorID,
		&p.Amount, &p.Method, &p.Status, &p.PaidAt)
	if err == pgx.ErrNoRows {
		return nil, domain.ErrNoPayment
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repository) MarkRefunded(ctx context.Context, tx pgx.Tx, paymentID uuid.UUID) error {
	result, err := tx.Exec(ctx, `
		UPDATE payments SET status = 'refunded' WHERE id = $1 AND status = 'paid'
	`, paymentID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNoPayment
	}
	return nil
}
