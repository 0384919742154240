package model

import "time"

// LoanStatus is the stored state of a loan.  Overdue is intentionally
// not a stored status: it is derived by comparing DueAt against the
// current time, which avoids the stale-status bugs of keeping a third
// state in sync.
type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
)

// Loan is a borrowing record linking a patron, an item and the
// specific copy that left the shelf.  Closed loans keep their row
// forever; the most-borrowed report aggregates over the full history.
//
// Fields:
//  ID            – primary key identifier.
//  PatronID      – borrower.
//  ItemID        – borrowed title.
//  CopyID        – the copy handed out.
//  BorrowedAt    – when the loan was opened.
//  DueAt         – BorrowedAt plus the media type's standard duration.
//  ReturnedAt    – when the copy came back (nil while active).
//  FineCents     – fine accrued at return time, in cents.
//  DueNoticeSent – whether a due-tomorrow notice has been emitted.
//  Status        – ACTIVE or RETURNED.
type Loan struct {
	ID            int64      `json:"id"`
	PatronID      int64      `json:"patron_id"`
	ItemID        int64      `json:"item_id"`
	CopyID        int64      `json:"copy_id"`
	BorrowedAt    time.Time  `json:"borrowed_at"`
	DueAt         time.Time  `json:"due_at"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	FineCents     int64      `json:"fine_cents"`
	DueNoticeSent bool       `json:"-"`
	Status        LoanStatus `json:"status"`
}

// OverdueAt reports whether an active loan is past due at the given
// instant.  Returned loans are never overdue.
func (l *Loan) OverdueAt(now time.Time) bool {
	return l.Status == LoanActive && now.After(l.DueAt)
}
