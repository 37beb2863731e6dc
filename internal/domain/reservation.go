package domain

import (
	"time"

	"github.com/google/uuid"
)

// NewHold builds a provisional reservation. The hold stays provisional
// until payment promotes it to active; expires_at bounds how long the
// slot may sit unpaid before the sweep deletes it.
func NewHold(placeID, userID uuid.UUID, operatorID *uuid.UUID, start time.Time, duration, holdTTL time.Duration) Reservation {
	expires := time.Now().UTC().Add(holdTTL)
	return Reservation{
		ID:         uuid.New(),
		PlaceID:    placeID,
		UserID:     userID,
		OperatorID: operatorID,
		StartTime:  start,
		Duration:   duration,
		Status:     StatusProvisional,
		ExpiresAt:  &expires,
		CreatedAt:  time.Now().UTC(),
	}
}

// Overlaps decides whether two half-open intervals [aStart, aStart+aDur)
// and [bStart, bStart+bDur) intersect. Back-to-back slots sharing a
// boundary instant do not overlap.
func Overlaps(aStart time.Time, aDur time.Duration, bStart time.Time, bDur time.Duration) bool {
	return aStart.Before(bStart.Add(bDur)) && bStart.Before(aStart.Add(aDur))
}

// OverlapsAny checks a candidate interval against every blocking
// reservation of a place. Callers must pass only rows whose status still
// occupies the slot (provisional or active).
func OverlapsAny(existing []Reservation, start time.Time, duration time.Duration) bool {
	for _, r := range existing {
		if Overlaps(r.StartTime, r.Duration, start, duration) {
			return true
		}
	}
	return false
}
