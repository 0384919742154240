package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rferraz/library-circulation/internal/database"
	"github.com/rferraz/library-circulation/internal/model"
)

var baseTime = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func seedPatron(t *testing.T, repo *PatronRepo, name string, category model.PatronCategory) *model.Patron {
	t.Helper()
	p := &model.Patron{DisplayName: name, Category: category, CreatedAt: baseTime}
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func seedItem(t *testing.T, repo *CatalogRepo, title string, media model.MediaType, copies int) *model.CatalogItem {
	t.Helper()
	item := &model.CatalogItem{Title: title, Author: "Author", MediaType: media, CreatedAt: baseTime}
	require.NoError(t, repo.Create(context.Background(), item, copies))
	return item
}

// inTx runs fn inside a committed transaction.
func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx)) {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	fn(tx)
	require.NoError(t, tx.Commit())
}

func newRepos(t *testing.T) (*sql.DB, *PatronRepo, *CatalogRepo, *LoanRepo, *ReservationRepo) {
	t.Helper()
	db := database.NewTestDB(t)
	return db, NewPatronRepo(db), NewCatalogRepo(db), NewLoanRepo(db), NewReservationRepo(db)
}
