package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rferraz/library-circulation/internal/model"
)

// ReservationRepo persists the per-item reservation queues.  The queue
// for an item is the set of WAITING rows ordered by request time; the
// service layer drives promotion, expiry and fulfilment.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, patron_id, item_id, copy_id, pickup_code, requested_at, ready_at, status`

// CreateTx inserts a new reservation and populates the generated ID.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations (patron_id, item_id, copy_id, pickup_code, requested_at, ready_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.PatronID, res.ItemID, res.CopyID, res.PickupCode,
		fmtTime(res.RequestedAt), fmtNullTime(res.ReadyAt), string(res.Status))
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = id
	return nil
}

func scanReservation(row interface{ Scan(...any) error }) (*model.Reservation, error) {
	var res model.Reservation
	var copyID sql.NullInt64
	var requestedAt string
	var readyAt sql.NullString
	err := row.Scan(&res.ID, &res.PatronID, &res.ItemID, &copyID,
		&res.PickupCode, &requestedAt, &readyAt, &res.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if copyID.Valid {
		id := copyID.Int64
		res.CopyID = &id
	}
	if res.RequestedAt, err = parseDBTime(requestedAt); err != nil {
		return nil, err
	}
	if res.ReadyAt, err = parseNullTime(readyAt); err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *ReservationRepo) listReservations(ctx context.Context, q queryer, query string, args ...any) ([]model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *res)
	}
	return out, rows.Err()
}

// GetByID returns a single reservation or ErrNotFound.
func (r *ReservationRepo) GetByID(ctx context.Context, id int64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	return scanReservation(r.db.QueryRowContext(ctx, q, id))
}

// GetByIDTx is GetByID within an existing transaction.
func (r *ReservationRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE id = ?`
	return scanReservation(tx.QueryRowContext(ctx, q, id))
}

// HasOpenByPatronItemTx reports whether the patron already has a
// WAITING or READY_FOR_PICKUP reservation for the item.
func (r *ReservationRepo) HasOpenByPatronItemTx(ctx context.Context, tx *sql.Tx, patronID, itemID int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM reservations
		WHERE patron_id = ? AND item_id = ? AND status IN (?, ?)`
	var n int
	err := tx.QueryRowContext(ctx, q, patronID, itemID,
		string(model.ReservationWaiting), string(model.ReservationReady)).Scan(&n)
	return n > 0, err
}

// HeadWaitingTx returns the oldest WAITING reservation for an item
// (FIFO by request time, ID as tie-break), or ErrNotFound when the
// queue is empty.
func (r *ReservationRepo) HeadWaitingTx(ctx context.Context, tx *sql.Tx, itemID int64) (*model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE item_id = ? AND status = ? ORDER BY requested_at, id LIMIT 1`
	return scanReservation(tx.QueryRowContext(ctx, q, itemID, string(model.ReservationWaiting)))
}

// MarkReadyTx promotes a reservation to READY_FOR_PICKUP, binding it
// to the copy it now claims and starting the pickup window at readyAt.
func (r *ReservationRepo) MarkReadyTx(ctx context.Context, tx *sql.Tx, resID, copyID int64, readyAt time.Time) error {
	const q = `UPDATE reservations SET status = ?, copy_id = ?, ready_at = ? WHERE id = ?`
	result, err := tx.ExecContext(ctx, q, string(model.ReservationReady), copyID, fmtTime(readyAt), resID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatusTx moves a reservation to a terminal or intermediate
// status without touching its copy binding.
func (r *ReservationRepo) SetStatusTx(ctx context.Context, tx *sql.Tx, resID int64, status model.ReservationStatus) error {
	result, err := tx.ExecContext(ctx, `UPDATE reservations SET status = ? WHERE id = ?`, string(status), resID)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListReadyBeforeTx returns READY_FOR_PICKUP reservations whose
// pickup window started strictly before the cutoff.  The stored
// timestamp format sorts lexicographically, so the comparison happens
// in SQL.
func (r *ReservationRepo) ListReadyBeforeTx(ctx context.Context, tx *sql.Tx, cutoff time.Time) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations
		WHERE status = ? AND ready_at IS NOT NULL AND ready_at < ?
		ORDER BY ready_at, id`
	return r.listReservations(ctx, tx, q, string(model.ReservationReady), fmtTime(cutoff))
}

// ListByItem returns every reservation recorded against an item,
// oldest first.
func (r *ReservationRepo) ListByItem(ctx context.Context, itemID int64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE item_id = ? ORDER BY requested_at, id`
	return r.listReservations(ctx, r.db, q, itemID)
}

// ListByPatron returns every reservation made by a patron, oldest
// first.
func (r *ReservationRepo) ListByPatron(ctx context.Context, patronID int64) ([]model.Reservation, error) {
	const q = `SELECT ` + reservationColumns + ` FROM reservations WHERE patron_id = ? ORDER BY requested_at, id`
	return r.listReservations(ctx, r.db, q, patronID)
}
