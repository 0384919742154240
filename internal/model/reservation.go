package model

import "time"

// ReservationStatus tracks a reservation through its lifecycle.  The
// FIFO queue for an item is formed by its WAITING reservations ordered
// by request time.
type ReservationStatus string

const (
	ReservationWaiting   ReservationStatus = "WAITING"
	ReservationReady     ReservationStatus = "READY_FOR_PICKUP"
	ReservationExpired   ReservationStatus = "EXPIRED"
	ReservationCancelled ReservationStatus = "CANCELLED"
	ReservationFulfilled ReservationStatus = "FULFILLED"
)

// Reservation is a queued request to borrow a title that had no
// available copy at request time.  When a copy frees up the head of
// the queue is promoted to READY_FOR_PICKUP and claims that copy; the
// patron then has a fixed pickup window to collect it.
//
// Fields:
//  ID          – primary key identifier.
//  PatronID    – requesting patron.
//  ItemID      – requested title.
//  CopyID      – copy claimed by the promotion (nil while waiting).
//  PickupCode  – opaque code quoted by the patron at the desk.
//  RequestedAt – when the reservation entered the queue.
//  ReadyAt     – when a copy became available for this reservation;
//                starts the pickup window (nil while waiting).
//  Status      – current lifecycle state.
type Reservation struct {
	ID          int64             `json:"id"`
	PatronID    int64             `json:"patron_id"`
	ItemID      int64             `json:"item_id"`
	CopyID      *int64            `json:"copy_id,omitempty"`
	PickupCode  string            `json:"pickup_code"`
	RequestedAt time.Time         `json:"requested_at"`
	ReadyAt     *time.Time        `json:"ready_at,omitempty"`
	Status      ReservationStatus `json:"status"`
}

// ExpiredAt reports whether a READY_FOR_PICKUP reservation has
// outlived the pickup window at the given instant.
func (r *Reservation) ExpiredAt(now time.Time, window time.Duration) bool {
	if r.Status != ReservationReady || r.ReadyAt == nil {
		return false
	}
	return now.Sub(*r.ReadyAt) > window
}
