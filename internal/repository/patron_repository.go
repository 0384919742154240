package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rferraz/library-circulation/internal/model"
)

// PatronRepo provides CRUD operations for patrons and maintains their
// loan counters and suspension state.  All timestamps are stored in
// UTC.
type PatronRepo struct {
	db *sql.DB
}

// NewPatronRepo returns a new PatronRepo bound to the given database.
func NewPatronRepo(db *sql.DB) *PatronRepo { return &PatronRepo{db: db} }

// DB exposes the underlying handle so that the service layer can open
// transactions spanning multiple repositories.
func (r *PatronRepo) DB() *sql.DB { return r.db }

const patronColumns = `id, display_name, category, max_active_loans, max_electronic_loans,
	active_loans, active_electronic, suspended, suspended_until, suspension_reason, created_at`

// Create inserts a new patron and populates the generated ID.  When
// the limits are zero they are filled in from the category defaults.
func (r *PatronRepo) Create(ctx context.Context, p *model.Patron) error {
	if p.MaxActiveLoans == 0 {
		p.MaxActiveLoans = model.DefaultLoanLimit(p.Category)
	}
	if p.MaxElectronicLoans == 0 {
		p.MaxElectronicLoans = model.DefaultElectronicLimit(p.Category)
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	const q = `INSERT INTO patrons (display_name, category, max_active_loans, max_electronic_loans,
		active_loans, active_electronic, suspended, suspended_until, suspension_reason, created_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, NULL, NULL, ?)`
	res, err := r.db.ExecContext(ctx, q,
		p.DisplayName, string(p.Category), p.MaxActiveLoans, p.MaxElectronicLoans, fmtTime(p.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

func scanPatron(row interface{ Scan(...any) error }) (*model.Patron, error) {
	var p model.Patron
	var suspendedUntil, reason sql.NullString
	var createdAt string
	err := row.Scan(&p.ID, &p.DisplayName, &p.Category, &p.MaxActiveLoans, &p.MaxElectronicLoans,
		&p.ActiveLoans, &p.ActiveElectronic, &p.Suspended, &suspendedUntil, &reason, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if p.SuspendedUntil, err = parseNullTime(suspendedUntil); err != nil {
		return nil, err
	}
	if reason.Valid {
		s := reason.String
		p.SuspensionReason = &s
	}
	if p.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByID returns a single patron or ErrNotFound.
func (r *PatronRepo) GetByID(ctx context.Context, id int64) (*model.Patron, error) {
	const q = `SELECT ` + patronColumns + ` FROM patrons WHERE id = ?`
	return scanPatron(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx is GetByID within an existing transaction.
func (r *PatronRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Patron, error) {
	const q = `SELECT ` + patronColumns + ` FROM patrons WHERE id = ?`
	return scanPatron(tx.QueryRowContext(ctx, q, id))
}

// List returns all patrons ordered by ID.
func (r *PatronRepo) List(ctx context.Context) ([]model.Patron, error) {
	const q = `SELECT ` + patronColumns + ` FROM patrons ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	patrons := make([]model.Patron, 0)
	for rows.Next() {
		p, err := scanPatron(rows)
		if err != nil {
			return nil, err
		}
		patrons = append(patrons, *p)
	}
	return patrons, rows.Err()
}

// Delete removes a patron.  It fails with ErrConflict while the patron
// owns active loans and with ErrNotFound when the patron does not
// exist.  The check and the delete run in one transaction.
func (r *PatronRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var active int
	err = tx.QueryRowContext(ctx, `SELECT active_loans FROM patrons WHERE id = ?`, id).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if active > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM patrons WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// AdjustCountersTx shifts the patron's active loan counters by delta
// (+1 on borrow, -1 on return).  The electronic counter moves only
// when the loaned media is electronic.
func (r *PatronRepo) AdjustCountersTx(ctx context.Context, tx *sql.Tx, patronID int64, delta int, electronic bool) error {
	var res sql.Result
	var err error
	if electronic {
		res, err = tx.ExecContext(ctx,
			`UPDATE patrons SET active_loans = active_loans + ?, active_electronic = active_electronic + ? WHERE id = ?`,
			delta, delta, patronID)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE patrons SET active_loans = active_loans + ? WHERE id = ?`,
			delta, patronID)
	}
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

// SetSuspensionTx suspends the patron until the given instant with a
// human-readable reason.
func (r *PatronRepo) SetSuspensionTx(ctx context.Context, tx *sql.Tx, patronID int64, until time.Time, reason string) error {
	const q = `UPDATE patrons SET suspended = 1, suspended_until = ?, suspension_reason = ? WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, fmtTime(until), reason, patronID)
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

// ClearSuspensionTx lifts a suspension.  Clearing an already clear
// patron is a no-op.
func (r *PatronRepo) ClearSuspensionTx(ctx context.Context, tx *sql.Tx, patronID int64) error {
	const q = `UPDATE patrons SET suspended = 0, suspended_until = NULL, suspension_reason = NULL WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, patronID)
	return err
}
