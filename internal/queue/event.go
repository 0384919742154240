// Package queue defines the notification payloads exchanged over the
// message broker and the background consumer that renders them.
package queue

// Notification kinds emitted by the circulation engine.
const (
	KindReservationReady = "reservation.ready"  // a copy is waiting for the patron
	KindPatronSuspended  = "patron.suspended"   // late return triggered a suspension
	KindItemDueTomorrow  = "loan.due_tomorrow"  // due-date reminder, one day ahead
	KindReservationLapse = "reservation.lapsed" // pickup window elapsed unclaimed
)

// Notification is a side effect surfaced by a circulation operation.
// It carries enough information for downstream consumers to notify the
// patron without querying the primary database.  Deadline and
// timestamps are RFC3339 strings.
type Notification struct {
	Kind      string `json:"kind"`
	PatronID  int64  `json:"patron_id"`
	ItemID    int64  `json:"item_id,omitempty"`
	ItemTitle string `json:"item_title,omitempty"`
	Deadline  string `json:"deadline,omitempty"`
	Reason    string `json:"reason,omitempty"`
	EmittedAt string `json:"emitted_at"`
}
