package domain

import "errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("slot unavailable")
	ErrInvalidInput         = errors.New("invalid input")
	ErrInvalidState         = errors.New("operation not allowed in current status")
	ErrNoPayment            = errors.New("no paid payment for reservation")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrIncompleteRouting    = errors.New("operator resolution incomplete")
)
