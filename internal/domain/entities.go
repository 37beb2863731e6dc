package domain

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusProvisional Status = "provisional"
	StatusActive      Status = "active"
	StatusCompleted   Status = "completed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Reservation struct {
	ID         uuid.UUID
	PlaceID    uuid.UUID
	UserID     uuid.UUID
	OperatorID *uuid.UUID
	StartTime  time.Time
	Duration   time.Duration
	Status     Status
	ExpiresAt  *time.Time
	CreatedAt  time.Time
}

func (r Reservation) EndTime() time.Time {
	return r.StartTime.Add(r.Duration)
}

const (
	PaymentPaid     = "paid"
	PaymentRefunded = "refunded"
)

type Payment struct {
	ID            uuid.UUID
	ReservationID uuid.UUID
	UserID        uuid.UUID
	OperatorID    uuid.UUID
	Amount        float64
	Method        string
	Status        string
	PaidAt        time.Time
}

// RefundFactor is the share of a paid amount returned on cancellation.
// The remaining 10% is kept as a cancellation fee.
const RefundFactor = 0.9

func (p Payment) RefundAmount() float64 {
	return p.Amount * RefundFactor
}

// PlaceInfo is the directory's view of a bookable seat, used to enrich
// reservation listings. The directory owns this data; the engine only
// reads it.
type PlaceInfo struct {
	ID          uuid.UUID  `json:"id"`
	ClubID      uuid.UUID  `json:"club_id"`
	ClubName    string     `json:"club_name"`
	Description string     `json:"description"`
	OperatorID  *uuid.UUID `json:"operator_id,omitempty"`
	TariffName  string     `json:"tariff_name"`
	HourlyCost  float64    `json:"hourly_cost"`
	Games       []string   `json:"games"`
}
