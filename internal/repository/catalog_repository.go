package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rferraz/library-circulation/internal/model"
)

// queryer is the read surface shared by *sql.DB and *sql.Tx.  It lets
// a repository serve the same query inside and outside a transaction.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// CatalogRepo provides access to catalog items and their copies.
// Copy status transitions are the responsibility of the service layer;
// the repository only persists them.
type CatalogRepo struct {
	db *sql.DB
}

// NewCatalogRepo returns a new CatalogRepo bound to the given database.
func NewCatalogRepo(db *sql.DB) *CatalogRepo { return &CatalogRepo{db: db} }

// Create inserts a catalog item together with copyCount copies, all of
// them Available.  The generated item and copy IDs are populated on
// the passed item.
func (r *CatalogRepo) Create(ctx context.Context, item *model.CatalogItem, copyCount int) error {
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
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

	res, err := tx.ExecContext(ctx,
		`INSERT INTO catalog_items (title, author, media_type, created_at) VALUES (?, ?, ?, ?)`,
		item.Title, item.Author, string(item.MediaType), fmtTime(item.CreatedAt))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	item.ID = id

	item.Copies = make([]model.Copy, 0, copyCount)
	for i := 0; i < copyCount; i++ {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO copies (item_id, status, created_at) VALUES (?, ?, ?)`,
			item.ID, string(model.CopyAvailable), fmtTime(item.CreatedAt))
		if err != nil {
			return err
		}
		copyID, err := res.LastInsertId()
		if err != nil {
			return err
		}
		item.Copies = append(item.Copies, model.Copy{
			ID:        copyID,
			ItemID:    item.ID,
			Status:    model.CopyAvailable,
			CreatedAt: item.CreatedAt,
		})
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (r *CatalogRepo) getByID(ctx context.Context, q queryer, id int64) (*model.CatalogItem, error) {
	var item model.CatalogItem
	var createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, title, author, media_type, created_at FROM catalog_items WHERE id = ?`, id).
		Scan(&item.ID, &item.Title, &item.Author, &item.MediaType, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if item.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx,
		`SELECT id, item_id, status, created_at FROM copies WHERE item_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var c model.Copy
		var copyCreated string
		if err := rows.Scan(&c.ID, &c.ItemID, &c.Status, &copyCreated); err != nil {
			return nil, err
		}
		if c.CreatedAt, err = parseDBTime(copyCreated); err != nil {
			return nil, err
		}
		item.Copies = append(item.Copies, c)
	}
	return &item, rows.Err()
}

// GetByID returns an item with its copies ordered by copy ID, or
// ErrNotFound.
func (r *CatalogRepo) GetByID(ctx context.Context, id int64) (*model.CatalogItem, error) {
	return r.getByID(ctx, r.db, id)
}

// GetByIDTx is GetByID within an existing transaction.
func (r *CatalogRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id int64) (*model.CatalogItem, error) {
	return r.getByID(ctx, tx, id)
}

// List returns all catalog items ordered by ID, without their copies.
func (r *CatalogRepo) List(ctx context.Context) ([]model.CatalogItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, author, media_type, created_at FROM catalog_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.CatalogItem, 0)
	for rows.Next() {
		var item model.CatalogItem
		var createdAt string
		if err := rows.Scan(&item.ID, &item.Title, &item.Author, &item.MediaType, &createdAt); err != nil {
			return nil, err
		}
		if item.CreatedAt, err = parseDBTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Delete removes an item and its copies.  It fails with ErrConflict
// while any copy is on loan and with ErrNotFound when the item does
// not exist.
func (r *CatalogRepo) Delete(ctx context.Context, id int64) error {
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

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM catalog_items WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var onLoan int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM copies WHERE item_id = ? AND status = ?`, id, string(model.CopyOnLoan)).
		Scan(&onLoan)
	if err != nil {
		return err
	}
	if onLoan > 0 {
		return ErrConflict
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM copies WHERE item_id = ?`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM catalog_items WHERE id = ?`, id); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// SetCopyStatusTx moves a copy to the given status.
func (r *CatalogRepo) SetCopyStatusTx(ctx context.Context, tx *sql.Tx, copyID int64, status model.CopyStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE copies SET status = ? WHERE id = ?`, string(status), copyID)
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

// CountAvailableTx returns the number of Available copies of an item.
func (r *CatalogRepo) CountAvailableTx(ctx context.Context, tx *sql.Tx, itemID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM copies WHERE item_id = ? AND status = ?`,
		itemID, string(model.CopyAvailable)).Scan(&n)
	return n, err
}

// CountByStatusTx returns the number of copies of an item in the given
// status.
func (r *CatalogRepo) CountByStatusTx(ctx context.Context, tx *sql.Tx, itemID int64, status model.CopyStatus) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM copies WHERE item_id = ? AND status = ?`,
		itemID, string(status)).Scan(&n)
	return n, err
}

// FirstCopyWithStatusTx returns the lowest-ID copy of an item in the
// given status, or ErrNotFound when there is none.  Picking the lowest
// ID keeps copy selection deterministic.
func (r *CatalogRepo) FirstCopyWithStatusTx(ctx context.Context, tx *sql.Tx, itemID int64, status model.CopyStatus) (*model.Copy, error) {
	var c model.Copy
	var createdAt string
	err := tx.QueryRowContext(ctx,
		`SELECT id, item_id, status, created_at FROM copies
		 WHERE item_id = ? AND status = ? ORDER BY id LIMIT 1`,
		itemID, string(status)).
		Scan(&c.ID, &c.ItemID, &c.Status, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseDBTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}
