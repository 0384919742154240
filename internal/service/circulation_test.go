package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rferraz/library-circulation/internal/config"
	"github.com/rferraz/library-circulation/internal/database"
	"github.com/rferraz/library-circulation/internal/model"
	"github.com/rferraz/library-circulation/internal/queue"
	"github.com/rferraz/library-circulation/internal/repository"
)

func testPolicy() config.Policy {
	return config.Policy{
		FinePerDayCents:    200,
		PickupWindow:       24 * time.Hour,
		SuspensionDays:     5,
		BookLoanDays:       15,
		MagazineLoanDays:   15,
		ElectronicLoanDays: 7,
	}
}

// fixture wires an engine to a fresh in-memory database with a
// controllable clock.
type fixture struct {
	t            *testing.T
	db           *sql.DB
	engine       *Circulation
	patrons      *repository.PatronRepo
	catalog      *repository.CatalogRepo
	loans        *repository.LoanRepo
	reservations *repository.ReservationRepo
	now          time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := database.NewTestDB(t)
	f := &fixture{
		t:            t,
		db:           db,
		patrons:      repository.NewPatronRepo(db),
		catalog:      repository.NewCatalogRepo(db),
		loans:        repository.NewLoanRepo(db),
		reservations: repository.NewReservationRepo(db),
		now:          time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	f.engine = NewCirculation(db, f.patrons, f.catalog, f.loans, f.reservations, testPolicy())
	f.engine.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) advance(d time.Duration) { f.now = f.now.Add(d) }

func (f *fixture) addPatron(name string, category model.PatronCategory) *model.Patron {
	f.t.Helper()
	p := &model.Patron{DisplayName: name, Category: category, CreatedAt: f.now}
	require.NoError(f.t, f.patrons.Create(context.Background(), p))
	return p
}

func (f *fixture) addItem(title string, media model.MediaType, copies int) *model.CatalogItem {
	f.t.Helper()
	item := &model.CatalogItem{Title: title, Author: "Test Author", MediaType: media, CreatedAt: f.now}
	require.NoError(f.t, f.catalog.Create(context.Background(), item, copies))
	return item
}

func (f *fixture) copyStatus(copyID int64) model.CopyStatus {
	f.t.Helper()
	var s string
	require.NoError(f.t, f.db.QueryRow(`SELECT status FROM copies WHERE id = ?`, copyID).Scan(&s))
	return model.CopyStatus(s)
}

func (f *fixture) reloadPatron(id int64) *model.Patron {
	f.t.Helper()
	p, err := f.patrons.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) reloadReservation(id int64) *model.Reservation {
	f.t.Helper()
	r, err := f.reservations.GetByID(context.Background(), id)
	require.NoError(f.t, err)
	return r
}

// checkCounters asserts that the patron's counters agree with the
// loan ledger.
func (f *fixture) checkCounters(patronID int64) {
	f.t.Helper()
	p := f.reloadPatron(patronID)
	n, err := f.loans.CountActiveByPatron(context.Background(), patronID)
	require.NoError(f.t, err)
	assert.Equal(f.t, n, p.ActiveLoans, "counter must match ledger")
}

func policyReason(t *testing.T, err error) string {
	t.Helper()
	pe, ok := err.(*PolicyError)
	require.True(t, ok, "expected PolicyError, got %v", err)
	return pe.Reason
}

func TestBorrowReturnRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Dom Casmurro", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now, loan.BorrowedAt)
	assert.Equal(t, f.now.AddDate(0, 0, 15), loan.DueAt)
	assert.Equal(t, model.CopyOnLoan, f.copyStatus(loan.CopyID))
	assert.Equal(t, 1, f.reloadPatron(patron.ID).ActiveLoans)
	f.checkCounters(patron.ID)

	f.advance(48 * time.Hour)
	result, err := f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)
	assert.False(t, result.WasLate)
	assert.Zero(t, result.FineCents)
	assert.Empty(t, result.Notifications)
	assert.Equal(t, model.CopyAvailable, f.copyStatus(loan.CopyID))
	assert.Equal(t, 0, f.reloadPatron(patron.ID).ActiveLoans)
	f.checkCounters(patron.ID)
}

func TestBorrowUnknownPatronOrItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Dom Casmurro", model.MediaBook, 1)

	_, err := f.engine.BorrowItem(ctx, 9999, item.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	_, err = f.engine.BorrowItem(ctx, patron.ID, 9999)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBorrowLoanLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := &model.Patron{DisplayName: "Bia", Category: model.CategoryStudent, MaxActiveLoans: 2, MaxElectronicLoans: 2}
	require.NoError(t, f.patrons.Create(ctx, patron))

	first := f.addItem("Book A", model.MediaBook, 1)
	second := f.addItem("Book B", model.MediaBook, 1)
	third := f.addItem("Book C", model.MediaBook, 1)

	_, err := f.engine.BorrowItem(ctx, patron.ID, first.ID)
	require.NoError(t, err)
	_, err = f.engine.BorrowItem(ctx, patron.ID, second.ID)
	require.NoError(t, err)

	_, err = f.engine.BorrowItem(ctx, patron.ID, third.ID)
	assert.Equal(t, ReasonLoanLimit, policyReason(t, err))

	// Rejection leaves state unchanged.
	assert.Equal(t, 2, f.reloadPatron(patron.ID).ActiveLoans)
	assert.Equal(t, model.CopyAvailable, f.copyStatus(third.Copies[0].ID))
	f.checkCounters(patron.ID)
}

func TestBorrowElectronicLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	// Students carry the lower electronic cap of 2.
	patron := f.addPatron("Caio", model.CategoryStudent)
	require.Equal(t, 2, patron.MaxElectronicLoans)

	e1 := f.addItem("E-book 1", model.MediaElectronic, 1)
	e2 := f.addItem("E-book 2", model.MediaElectronic, 1)
	e3 := f.addItem("E-book 3", model.MediaElectronic, 1)
	book := f.addItem("Paper Book", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, e1.ID)
	require.NoError(t, err)
	assert.Equal(t, f.now.AddDate(0, 0, 7), loan.DueAt, "electronic media loans for 7 days")
	_, err = f.engine.BorrowItem(ctx, patron.ID, e2.ID)
	require.NoError(t, err)

	_, err = f.engine.BorrowItem(ctx, patron.ID, e3.ID)
	assert.Equal(t, ReasonElectronicLimit, policyReason(t, err))

	// A non-electronic borrow under the general limit still succeeds.
	_, err = f.engine.BorrowItem(ctx, patron.ID, book.ID)
	require.NoError(t, err)

	p := f.reloadPatron(patron.ID)
	assert.Equal(t, 3, p.ActiveLoans)
	assert.Equal(t, 2, p.ActiveElectronic)
}

func TestBorrowNoCopyAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	_, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)

	_, err = f.engine.BorrowItem(ctx, b.ID, item.ID)
	assert.Equal(t, ReasonNoCopyAvailable, policyReason(t, err))
}

func TestLateReturnFineAndSuspension(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Davi", model.CategoryFaculty)
	item := f.addItem("Grande Sertão", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)

	// Three days past due.
	f.now = loan.DueAt.Add(72 * time.Hour)
	result, err := f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)
	assert.True(t, result.WasLate)
	assert.Equal(t, 3, result.DaysLate)
	assert.Equal(t, int64(600), result.FineCents)

	p := f.reloadPatron(patron.ID)
	require.True(t, p.Suspended)
	require.NotNil(t, p.SuspendedUntil)
	assert.Equal(t, f.now.AddDate(0, 0, 5), p.SuspendedUntil.UTC())
	require.NotNil(t, p.SuspensionReason)
	assert.Contains(t, *p.SuspensionReason, "Grande Sertão")

	require.Len(t, result.Notifications, 1)
	assert.Equal(t, queue.KindPatronSuspended, result.Notifications[0].Kind)

	// Borrowing while suspended is rejected.
	_, err = f.engine.BorrowItem(ctx, patron.ID, item.ID)
	assert.Equal(t, ReasonSuspended, policyReason(t, err))
}

func TestPartialDayLateCountsAsOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Eva", model.CategoryStaff)
	item := f.addItem("Revista", model.MediaMagazine, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)

	f.now = loan.DueAt.Add(time.Hour)
	result, err := f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.DaysLate)
	assert.Equal(t, int64(200), result.FineCents)
}

func TestSuspensionExpiresAndClears(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Davi", model.CategoryFaculty)
	item := f.addItem("Grande Sertão", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)
	f.now = loan.DueAt.Add(24 * time.Hour)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)
	require.True(t, f.reloadPatron(patron.ID).Suspended)

	// Past the suspension window the next borrow succeeds and the
	// flag is cleared in passing.
	f.advance(6 * 24 * time.Hour)
	_, err = f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)
	assert.False(t, f.reloadPatron(patron.ID).Suspended)
}

func TestReturnTwiceFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Dom Casmurro", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	_, err = f.engine.ReturnItem(ctx, loan.ID)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestReserveAvailableItemFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Dom Casmurro", model.MediaBook, 2)

	_, err := f.engine.ReserveItem(ctx, patron.ID, item.ID)
	assert.Equal(t, ReasonCopyAvailable, policyReason(t, err))
}

func TestReserveDuplicateFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	_, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)

	_, err = f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReserveItem(ctx, b.ID, item.ID)
	assert.Equal(t, ReasonAlreadyReserved, policyReason(t, err))
}

func TestReservationPromotionOnReturn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)

	reserveResult, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	require.Equal(t, model.ReservationWaiting, reserveResult.Reservation.Status)
	assert.NotEmpty(t, reserveResult.Reservation.PickupCode)

	f.advance(2 * time.Hour)
	returnTime := f.now
	returnResult, err := f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, returnResult.PromotedPatronID)

	res := f.reloadReservation(reserveResult.Reservation.ID)
	assert.Equal(t, model.ReservationReady, res.Status)
	require.NotNil(t, res.ReadyAt)
	assert.Equal(t, returnTime, res.ReadyAt.UTC())

	// The copy is held for the reservation, not shelved.
	assert.Equal(t, model.CopyReserved, f.copyStatus(loan.CopyID))

	require.Len(t, returnResult.Notifications, 1)
	notif := returnResult.Notifications[0]
	assert.Equal(t, queue.KindReservationReady, notif.Kind)
	assert.Equal(t, b.ID, notif.PatronID)
	assert.Equal(t, returnTime.Add(24*time.Hour).Format(time.RFC3339), notif.Deadline)
}

func TestPickupReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	reserveResult, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	f.advance(3 * time.Hour)
	picked, err := f.engine.PickupReservation(ctx, reserveResult.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, b.ID, picked.PatronID)
	assert.Equal(t, loan.CopyID, picked.CopyID)
	assert.Equal(t, model.CopyOnLoan, f.copyStatus(picked.CopyID))
	assert.Equal(t, model.ReservationFulfilled, f.reloadReservation(reserveResult.Reservation.ID).Status)
	assert.Equal(t, 1, f.reloadPatron(b.ID).ActiveLoans)
	f.checkCounters(b.ID)
}

func TestPickupNotReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	_, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	reserveResult, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)

	_, err = f.engine.PickupReservation(ctx, reserveResult.Reservation.ID)
	assert.Equal(t, ReasonNotReady, policyReason(t, err))
}

func TestPickupAfterWindowExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	reserveResult, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	_, err = f.engine.PickupReservation(ctx, reserveResult.Reservation.ID)
	assert.Equal(t, ReasonReservationExpired, policyReason(t, err))

	// The auto-expiry persisted even though the pickup failed.
	assert.Equal(t, model.ReservationExpired, f.reloadReservation(reserveResult.Reservation.ID).Status)
	assert.Equal(t, model.CopyAvailable, f.copyStatus(loan.CopyID))
}

func TestPickupRespectsLoanLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := &model.Patron{DisplayName: "Bia", Category: model.CategoryStudent, MaxActiveLoans: 1, MaxElectronicLoans: 1}
	require.NoError(t, f.patrons.Create(ctx, b))
	contested := f.addItem("Contested", model.MediaBook, 1)
	filler := f.addItem("Filler", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, contested.ID)
	require.NoError(t, err)
	reserveResult, err := f.engine.ReserveItem(ctx, b.ID, contested.ID)
	require.NoError(t, err)
	_, err = f.engine.BorrowItem(ctx, b.ID, filler.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	_, err = f.engine.PickupReservation(ctx, reserveResult.Reservation.ID)
	assert.Equal(t, ReasonLoanLimit, policyReason(t, err))
	// The reservation survives the failed pickup.
	assert.Equal(t, model.ReservationReady, f.reloadReservation(reserveResult.Reservation.ID).Status)
}

func TestCancelWaitingReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	_, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	reserveResult, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)

	cancelled, err := f.engine.CancelReservation(ctx, reserveResult.Reservation.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationCancelled, cancelled.Reservation.Status)

	_, err = f.engine.CancelReservation(ctx, reserveResult.Reservation.ID)
	assert.ErrorIs(t, err, repository.ErrConflict)
}

func TestCancelReadyReservationCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	cc := f.addPatron("Caio", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	bRes, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	cRes, err := f.engine.ReserveItem(ctx, cc.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	result, err := f.engine.CancelReservation(ctx, bRes.Reservation.ID)
	require.NoError(t, err)

	// Caio inherits the copy.
	assert.Equal(t, model.ReservationReady, f.reloadReservation(cRes.Reservation.ID).Status)
	assert.Equal(t, model.CopyReserved, f.copyStatus(loan.CopyID))
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, queue.KindReservationReady, result.Notifications[0].Kind)
	assert.Equal(t, cc.ID, result.Notifications[0].PatronID)
}

func TestReserveMaintenanceFallback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Under Repair", model.MediaBook, 1)

	tx, err := f.db.Begin()
	require.NoError(t, err)
	require.NoError(t, f.catalog.SetCopyStatusTx(ctx, tx, item.Copies[0].ID, model.CopyMaintenance))
	require.NoError(t, tx.Commit())

	result, err := f.engine.ReserveItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationReady, result.Reservation.Status)
	require.NotNil(t, result.Reservation.CopyID)
	assert.Equal(t, item.Copies[0].ID, *result.Reservation.CopyID)
	assert.Equal(t, model.CopyReserved, f.copyStatus(item.Copies[0].ID))
	require.Len(t, result.Notifications, 1)
	assert.Equal(t, queue.KindReservationReady, result.Notifications[0].Kind)
}

func TestSweepExpiresAndCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	cc := f.addPatron("Caio", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	bRes, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	cRes, err := f.engine.ReserveItem(ctx, cc.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	result, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredReservations)

	assert.Equal(t, model.ReservationExpired, f.reloadReservation(bRes.Reservation.ID).Status)
	promoted := f.reloadReservation(cRes.Reservation.ID)
	assert.Equal(t, model.ReservationReady, promoted.Status)
	require.NotNil(t, promoted.ReadyAt)
	assert.Equal(t, f.now, promoted.ReadyAt.UTC())
	assert.Equal(t, model.CopyReserved, f.copyStatus(loan.CopyID))

	kinds := make([]string, 0, len(result.Notifications))
	for _, n := range result.Notifications {
		kinds = append(kinds, n.Kind)
	}
	assert.Contains(t, kinds, queue.KindReservationLapse)
	assert.Contains(t, kinds, queue.KindReservationReady)

	// Second run over unchanged state: no further transitions.
	again, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.ExpiredReservations)
	assert.Empty(t, again.Notifications)
	assert.Equal(t, model.ReservationReady, f.reloadReservation(cRes.Reservation.ID).Status)
}

func TestSweepExpiryReleasesCopyWithEmptyQueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Single Copy", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	bRes, err := f.engine.ReserveItem(ctx, b.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.ReturnItem(ctx, loan.ID)
	require.NoError(t, err)

	f.advance(25 * time.Hour)
	result, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ExpiredReservations)
	assert.Equal(t, model.ReservationExpired, f.reloadReservation(bRes.Reservation.ID).Status)
	assert.Equal(t, model.CopyAvailable, f.copyStatus(loan.CopyID))
}

func TestSweepDueTomorrowNoticeOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Dom Casmurro", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)

	// Half a day before the due date.
	f.now = loan.DueAt.Add(-12 * time.Hour)
	result, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, result.Notifications, 1)
	notif := result.Notifications[0]
	assert.Equal(t, queue.KindItemDueTomorrow, notif.Kind)
	assert.Equal(t, patron.ID, notif.PatronID)
	assert.Equal(t, loan.DueAt.Format(time.RFC3339), notif.Deadline)

	// The notice is deduplicated across runs.
	again, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Notifications)
}

func TestSweepCountsOverdueLoans(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	patron := f.addPatron("Ana", model.CategoryStudent)
	item := f.addItem("Dom Casmurro", model.MediaBook, 1)

	loan, err := f.engine.BorrowItem(ctx, patron.ID, item.ID)
	require.NoError(t, err)

	f.now = loan.DueAt.Add(48 * time.Hour)
	result, err := f.engine.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.OverdueLoans)

	// Overdue is derived, never written back to the row.
	stored, err := f.loans.GetByID(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, model.LoanActive, stored.Status)
	assert.True(t, stored.OverdueAt(f.now))
}

func TestCopyAndLedgerAgree(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.addPatron("Ana", model.CategoryStudent)
	b := f.addPatron("Bia", model.CategoryStudent)
	item := f.addItem("Two Copies", model.MediaBook, 2)

	_, err := f.engine.BorrowItem(ctx, a.ID, item.ID)
	require.NoError(t, err)
	_, err = f.engine.BorrowItem(ctx, b.ID, item.ID)
	require.NoError(t, err)

	var onLoan int
	require.NoError(t, f.db.QueryRow(
		`SELECT COUNT(*) FROM copies WHERE item_id = ? AND status = ?`,
		item.ID, string(model.CopyOnLoan)).Scan(&onLoan))
	active, err := f.loans.ListActive(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, len(active), onLoan)
}
