package repository

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rferraz/library-circulation/internal/model"
)

func TestCatalogCreatePopulatesCopies(t *testing.T) {
	_, _, catalog, _, _ := newRepos(t)
	ctx := context.Background()

	item := seedItem(t, catalog, "Dom Casmurro", model.MediaBook, 3)
	require.Len(t, item.Copies, 3)

	stored, err := catalog.GetByID(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dom Casmurro", stored.Title)
	assert.Equal(t, model.MediaBook, stored.MediaType)
	require.Len(t, stored.Copies, 3)
	for i, c := range stored.Copies {
		assert.Equal(t, item.ID, c.ItemID)
		assert.Equal(t, model.CopyAvailable, c.Status)
		if i > 0 {
			assert.Greater(t, c.ID, stored.Copies[i-1].ID, "copies ordered by ID")
		}
	}
}

func TestCatalogGetByIDNotFound(t *testing.T) {
	_, _, catalog, _, _ := newRepos(t)
	_, err := catalog.GetByID(context.Background(), 42)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCatalogFirstCopyWithStatusIsDeterministic(t *testing.T) {
	db, _, catalog, _, _ := newRepos(t)
	ctx := context.Background()
	item := seedItem(t, catalog, "Dom Casmurro", model.MediaBook, 3)

	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, catalog.SetCopyStatusTx(ctx, tx, item.Copies[0].ID, model.CopyOnLoan))
	})
	inTx(t, db, func(tx *sql.Tx) {
		c, err := catalog.FirstCopyWithStatusTx(ctx, tx, item.ID, model.CopyAvailable)
		require.NoError(t, err)
		assert.Equal(t, item.Copies[1].ID, c.ID)

		n, err := catalog.CountAvailableTx(ctx, tx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		n, err = catalog.CountByStatusTx(ctx, tx, item.ID, model.CopyOnLoan)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		_, err = catalog.FirstCopyWithStatusTx(ctx, tx, item.ID, model.CopyMaintenance)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestCatalogDeleteWithLoanedCopyConflicts(t *testing.T) {
	db, _, catalog, _, _ := newRepos(t)
	ctx := context.Background()
	item := seedItem(t, catalog, "Dom Casmurro", model.MediaBook, 2)

	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, catalog.SetCopyStatusTx(ctx, tx, item.Copies[0].ID, model.CopyOnLoan))
	})
	assert.ErrorIs(t, catalog.Delete(ctx, item.ID), ErrConflict)

	inTx(t, db, func(tx *sql.Tx) {
		require.NoError(t, catalog.SetCopyStatusTx(ctx, tx, item.Copies[0].ID, model.CopyAvailable))
	})
	require.NoError(t, catalog.Delete(ctx, item.ID))
	_, err := catalog.GetByID(ctx, item.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, catalog.Delete(ctx, 9999), ErrNotFound)
}

func TestCatalogListOmitsCopies(t *testing.T) {
	_, _, catalog, _, _ := newRepos(t)
	seedItem(t, catalog, "A", model.MediaBook, 2)
	seedItem(t, catalog, "B", model.MediaMagazine, 1)

	list, err := catalog.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, item := range list {
		assert.Empty(t, item.Copies)
	}
}
