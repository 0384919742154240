package model

import "time"

// PatronCategory classifies a registered library user.  The category
// determines the default borrowing limits applied at registration time.
type PatronCategory string

const (
	CategoryStudent       PatronCategory = "STUDENT"
	CategoryStaff         PatronCategory = "STAFF"
	CategoryLibrarian     PatronCategory = "LIBRARIAN"
	CategoryAdministrator PatronCategory = "ADMINISTRATOR"
	CategoryFaculty       PatronCategory = "FACULTY"
)

// ValidCategory reports whether c is one of the known patron categories.
func ValidCategory(c PatronCategory) bool {
	switch c {
	case CategoryStudent, CategoryStaff, CategoryLibrarian, CategoryAdministrator, CategoryFaculty:
		return true
	}
	return false
}

// DefaultLoanLimit returns the maximum number of simultaneous active
// loans for a category.  All categories currently share the same cap.
func DefaultLoanLimit(c PatronCategory) int {
	_ = c
	return 5
}

// DefaultElectronicLimit returns the maximum number of simultaneous
// active electronic-media loans for a category.  Students and staff
// get the lower cap; librarians, administrators and faculty get the
// general cap.
func DefaultElectronicLimit(c PatronCategory) int {
	switch c {
	case CategoryStudent, CategoryStaff:
		return 2
	default:
		return 5
	}
}

// Patron represents a registered library user as stored in the
// `patrons` table.  Loan counters are maintained by the repository on
// every borrow and return so that limit checks do not need to scan the
// loan ledger.
//
// Fields:
//  ID                  – primary key identifier.
//  DisplayName         – name shown on receipts and notifications.
//  Category            – patron category, drives default limits.
//  MaxActiveLoans      – cap on simultaneous active loans.
//  MaxElectronicLoans  – cap on simultaneous active electronic loans.
//  ActiveLoans         – current number of active loans.
//  ActiveElectronic    – current number of active electronic loans.
//  Suspended           – whether the patron is currently suspended.
//  SuspendedUntil      – end of the suspension window (nil when not suspended).
//  SuspensionReason    – human-readable reason (nil when not suspended).
//  CreatedAt           – registration timestamp.
type Patron struct {
	ID                 int64          `json:"id"`
	DisplayName        string         `json:"display_name"`
	Category           PatronCategory `json:"category"`
	MaxActiveLoans     int            `json:"max_active_loans"`
	MaxElectronicLoans int            `json:"max_electronic_loans"`
	ActiveLoans        int            `json:"active_loans"`
	ActiveElectronic   int            `json:"active_electronic_loans"`
	Suspended          bool           `json:"suspended"`
	SuspendedUntil     *time.Time     `json:"suspended_until,omitempty"`
	SuspensionReason   *string        `json:"suspension_reason,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// SuspendedAt reports whether the patron's suspension is in effect at
// the given instant.  A suspension with no end date never expires on
// its own.
func (p *Patron) SuspendedAt(now time.Time) bool {
	if !p.Suspended {
		return false
	}
	if p.SuspendedUntil == nil {
		return true
	}
	return now.Before(*p.SuspendedUntil)
}
