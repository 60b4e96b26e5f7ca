package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reservation is the lease on a set of escrow unspents held by a swap between
// the build and the settle phases. Once expired, the unspents are released.
type Reservation struct {
	ID        uuid.UUID
	Intent    SwapIntent
	Unspents  []Unspent
	Draft     *Draft
	Plan      *SigningPlan
	CreatedAt time.Time
	ExpiresAt time.Time
	Settling  bool
}

// NewReservation returns a reservation for the given unspents expiring after
// the given lease duration.
func NewReservation(
	intent SwapIntent, unspents []Unspent, now time.Time, lease time.Duration,
) *Reservation {
	return &Reservation{
		ID:        intent.ID,
		Intent:    intent,
		Unspents:  unspents,
		CreatedAt: now,
		ExpiresAt: now.Add(lease),
	}
}

// Keys returns the keys of the reserved unspents.
func (r *Reservation) Keys() []UnspentKey {
	return Keys(r.Unspents)
}

// IsExpired returns whether the lease has expired at the given time. A
// reservation being settled never expires.
func (r *Reservation) IsExpired(now time.Time) bool {
	return !r.Settling && !now.Before(r.ExpiresAt)
}

// Holds returns whether the reservation locks the unspent with given key.
func (r *Reservation) Holds(key UnspentKey) bool {
	for _, u := range r.Unspents {
		if u.IsKeyEqual(key) {
			return true
		}
	}
	return false
}

// HoldsExactly returns whether the reservation locks exactly the given keys.
func (r *Reservation) HoldsExactly(keys []UnspentKey) bool {
	if len(keys) != len(r.Unspents) {
		return false
	}
	for _, k := range keys {
		if !r.Holds(k) {
			return false
		}
	}
	return true
}
