package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rferraz/library-circulation/internal/model"
)

// LoanRepo is the loan ledger.  Loans are inserted when a copy leaves
// the shelf and closed, never deleted, when it comes back; the full
// history feeds the most-borrowed report.
type LoanRepo struct {
	db *sql.DB
}

// NewLoanRepo returns a new LoanRepo bound to the given database.
func NewLoanRepo(db *sql.DB) *LoanRepo { return &LoanRepo{db: db} }

const loanColumns = `id, patron_id, item_id, copy_id, borrowed_at, due_at, returned_at,
	fine_cents, due_notice_sent, status`

// OpenTx inserts a new active loan and populates the generated ID.
// BorrowedAt and DueAt must already be set by the caller.
func (r *LoanRepo) OpenTx(ctx context.Context, tx *sql.Tx, loan *model.Loan) error {
	const q = `INSERT INTO loans (patron_id, item_id, copy_id, borrowed_at, due_at, returned_at,
		fine_cents, due_notice_sent, status) VALUES (?, ?, ?, ?, ?, NULL, 0, 0, ?)`
	loan.Status = model.LoanActive
	res, err := tx.ExecContext(ctx, q,
		loan.PatronID, loan.ItemID, loan.CopyID,
		fmtTime(loan.BorrowedAt), fmtTime(loan.DueAt), string(loan.Status))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	loan.ID = id
	return nil
}

// CloseTx marks a loan returned, recording the return time and any
// fine.  The caller computes the fine; the ledger only persists it.
func (r *LoanRepo) CloseTx(ctx context.Context, tx *sql.Tx, loanID int64, returnedAt time.Time, fineCents int64) error {
	const q = `UPDATE loans SET status = ?, returned_at = ?, fine_cents = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q,
		string(model.LoanReturned), fmtTime(returnedAt), fineCents, loanID, string(model.LoanActive))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanLoan(row interface{ Scan(...any) error }) (*model.Loan, error) {
	var l model.Loan
	var borrowedAt, dueAt string
	var returnedAt sql.NullString
	err := row.Scan(&l.ID, &l.PatronID, &l.ItemID, &l.CopyID,
		&borrowedAt, &dueAt, &returnedAt, &l.FineCents, &l.DueNoticeSent, &l.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if l.BorrowedAt, err = parseDBTime(borrowedAt); err != nil {
		return nil, err
	}
	if l.DueAt, err = parseDBTime(dueAt); err != nil {
		return nil, err
	}
	if l.ReturnedAt, err = parseNullTime(returnedAt); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LoanRepo) listLoans(ctx context.Context, q queryer, query string, args ...any) ([]model.Loan, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	loans := make([]model.Loan, 0)
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// GetByID returns a single loan or ErrNotFound.
func (r *LoanRepo) GetByID(ctx context.Context, id int64) (*model.Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans WHERE id = ?`
	return scanLoan(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx is GetByID within an existing transaction.
func (r *LoanRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans WHERE id = ?`
	return scanLoan(tx.QueryRowContext(ctx, q, id))
}

// ListActive returns active loans, optionally restricted to one
// patron (patronID > 0), ordered by due date then ID.
func (r *LoanRepo) ListActive(ctx context.Context, patronID int64) ([]model.Loan, error) {
	if patronID > 0 {
		const q = `SELECT ` + loanColumns + ` FROM loans
			WHERE status = ? AND patron_id = ? ORDER BY due_at, id`
		return r.listLoans(ctx, r.db, q, string(model.LoanActive), patronID)
	}
	const q = `SELECT ` + loanColumns + ` FROM loans WHERE status = ? ORDER BY due_at, id`
	return r.listLoans(ctx, r.db, q, string(model.LoanActive))
}

// CountActiveByPatron returns the number of active loans held by a
// patron, straight from the ledger.  Used to cross-check the patron
// counters.
func (r *LoanRepo) CountActiveByPatron(ctx context.Context, patronID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE patron_id = ? AND status = ?`,
		patronID, string(model.LoanActive)).Scan(&n)
	return n, err
}

// ListByItem returns every loan, active or returned, ever recorded
// against an item, newest first.
func (r *LoanRepo) ListByItem(ctx context.Context, itemID int64) ([]model.Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans WHERE item_id = ? ORDER BY borrowed_at DESC, id DESC`
	return r.listLoans(ctx, r.db, q, itemID)
}

// ListOverdue returns active loans whose due date has passed at the
// given instant.
func (r *LoanRepo) ListOverdue(ctx context.Context, now time.Time) ([]model.Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans
		WHERE status = ? AND due_at < ? ORDER BY due_at, id`
	return r.listLoans(ctx, r.db, q, string(model.LoanActive), fmtTime(now))
}

// ListDueBetweenTx returns active loans due inside (from, to] that
// have not yet triggered a due-soon notice.
func (r *LoanRepo) ListDueBetweenTx(ctx context.Context, tx *sql.Tx, from, to time.Time) ([]model.Loan, error) {
	const q = `SELECT ` + loanColumns + ` FROM loans
		WHERE status = ? AND due_notice_sent = 0 AND due_at > ? AND due_at <= ?
		ORDER BY due_at, id`
	return r.listLoans(ctx, tx, q, string(model.LoanActive), fmtTime(from), fmtTime(to))
}

// MarkDueNoticeSentTx records that a due-soon notice has been emitted
// for a loan so the sweep stays idempotent.
func (r *LoanRepo) MarkDueNoticeSentTx(ctx context.Context, tx *sql.Tx, loanID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE loans SET due_notice_sent = 1 WHERE id = ?`, loanID)
	return err
}

// ItemLoanCount is one row of the most-borrowed report.
type ItemLoanCount struct {
	ItemID int64  `json:"item_id"`
	Title  string `json:"title"`
	Count  int    `json:"loan_count"`
}

// MostBorrowed aggregates loan counts per item over the full ledger,
// descending by count with ties broken by item ID ascending, limited
// to topN rows.
func (r *LoanRepo) MostBorrowed(ctx context.Context, topN int) ([]ItemLoanCount, error) {
	const q = `SELECT l.item_id, i.title, COUNT(*) AS cnt
		FROM loans l
		JOIN catalog_items i ON i.id = l.item_id
		GROUP BY l.item_id, i.title
		ORDER BY cnt DESC, l.item_id ASC
		LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, topN)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]ItemLoanCount, 0, topN)
	for rows.Next() {
		var c ItemLoanCount
		if err := rows.Scan(&c.ItemID, &c.Title, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
