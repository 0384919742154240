package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rferraz/library-circulation/internal/config"
	"github.com/rferraz/library-circulation/internal/model"
	"github.com/rferraz/library-circulation/internal/queue"
	"github.com/rferraz/library-circulation/internal/repository"
)

// Circulation is the policy engine.  It coordinates the patron store,
// catalog, loan ledger and reservation queues, executing each borrow,
// return, reserve and pickup as one transaction under an engine-wide
// lock.  Results carry the side-effect notifications the caller
// should surface; the engine itself never talks to a transport.
type Circulation struct {
	db           *sql.DB
	patrons      *repository.PatronRepo
	catalog      *repository.CatalogRepo
	loans        *repository.LoanRepo
	reservations *repository.ReservationRepo
	policy       config.Policy

	mu  sync.Mutex
	now func() time.Time
}

// NewCirculation wires the engine to its repositories and policy.
func NewCirculation(db *sql.DB, patrons *repository.PatronRepo, catalog *repository.CatalogRepo,
	loans *repository.LoanRepo, reservations *repository.ReservationRepo, policy config.Policy) *Circulation {
	return &Circulation{
		db:           db,
		patrons:      patrons,
		catalog:      catalog,
		loans:        loans,
		reservations: reservations,
		policy:       policy,
		now:          time.Now,
	}
}

// Policy exposes the engine's circulation constants.
func (c *Circulation) Policy() config.Policy { return c.policy }

// clock returns the current instant truncated to the storage
// resolution, so in-memory values match what the repositories persist.
func (c *Circulation) clock() time.Time {
	return c.now().UTC().Truncate(time.Second)
}

// ReturnResult is the outcome of returning a loan.
type ReturnResult struct {
	LoanID           int64                `json:"loan_id"`
	FineCents        int64                `json:"fine_cents"`
	DaysLate         int                  `json:"days_late"`
	WasLate          bool                 `json:"was_late"`
	PromotedPatronID int64                `json:"promoted_patron_id,omitempty"`
	Notifications    []queue.Notification `json:"-"`
}

// ReserveResult is the outcome of placing a reservation.  Under the
// maintenance fallback the reservation may come back already
// READY_FOR_PICKUP, in which case a ready notification accompanies it.
type ReserveResult struct {
	Reservation   *model.Reservation
	Notifications []queue.Notification
}

// SweepResult summarizes one maintenance sweep.
type SweepResult struct {
	ExpiredReservations int
	OverdueLoans        int
	Notifications       []queue.Notification
}

// BorrowItem lends an available copy of an item to a patron.  It
// fails with repository.ErrNotFound when either party is missing and
// with a PolicyError when a circulation rule stands in the way:
// suspended, no_copy_available, loan_limit or electronic_limit.
func (c *Circulation) BorrowItem(ctx context.Context, patronID, itemID int64) (*model.Loan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	patron, err := c.patrons.GetByIDTx(ctx, tx, patronID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	item, err := c.catalog.GetByIDTx(ctx, tx, itemID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	if err := c.checkSuspension(ctx, tx, patron, now); err != nil {
		return nil, err
	}

	copyToLend, err := c.catalog.FirstCopyWithStatusTx(ctx, tx, itemID, model.CopyAvailable)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, policyErr(ReasonNoCopyAvailable)
	}
	if err != nil {
		return nil, wrapStorage(err)
	}

	if err := c.checkLimits(patron, item); err != nil {
		return nil, err
	}

	loan, err := c.openLoanTx(ctx, tx, patron, item, copyToLend.ID, now)
	if err != nil {
		return nil, wrapStorage(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}
	committed = true
	return loan, nil
}

// ReturnItem closes a loan: it computes lateness and fine, releases
// the copy (promoting the head of the reservation queue when one is
// waiting) and suspends the patron after a late return.  Returning a
// missing or already returned loan fails with repository.ErrNotFound.
func (c *Circulation) ReturnItem(ctx context.Context, loanID int64) (*ReturnResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	loan, err := c.loans.GetByIDTx(ctx, tx, loanID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if loan.Status != model.LoanActive {
		return nil, repository.ErrNotFound
	}
	item, err := c.catalog.GetByIDTx(ctx, tx, loan.ItemID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	daysLate := lateDays(loan.DueAt, now)
	fine := int64(daysLate) * c.policy.FinePerDayCents
	if err := c.loans.CloseTx(ctx, tx, loan.ID, now, fine); err != nil {
		return nil, wrapStorage(err)
	}
	electronic := item.MediaType == model.MediaElectronic
	if err := c.patrons.AdjustCountersTx(ctx, tx, loan.PatronID, -1, electronic); err != nil {
		return nil, wrapStorage(err)
	}

	result := &ReturnResult{
		LoanID:    loan.ID,
		FineCents: fine,
		DaysLate:  daysLate,
		WasLate:   daysLate > 0,
	}

	if daysLate > 0 {
		until := now.AddDate(0, 0, c.policy.SuspensionDays)
		reason := "late return: " + item.Title
		if err := c.patrons.SetSuspensionTx(ctx, tx, loan.PatronID, until, reason); err != nil {
			return nil, wrapStorage(err)
		}
		result.Notifications = append(result.Notifications, queue.Notification{
			Kind:      queue.KindPatronSuspended,
			PatronID:  loan.PatronID,
			ItemID:    item.ID,
			ItemTitle: item.Title,
			Reason:    reason,
			Deadline:  until.Format(time.RFC3339),
			EmittedAt: now.Format(time.RFC3339),
		})
	}

	promoted, notif, err := c.promoteHeadIfFreed(ctx, tx, item, loan.CopyID, now)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if promoted != nil {
		result.PromotedPatronID = promoted.PatronID
		result.Notifications = append(result.Notifications, *notif)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}
	committed = true
	return result, nil
}

// ReserveItem queues a reservation for an item with no available
// copy.  Reserving an item that can simply be borrowed fails with a
// PolicyError (copy_available), as does reserving while suspended or
// holding an open reservation for the same title.  When every copy of
// the item sits in maintenance, the first reservation claims one
// immediately and comes back READY_FOR_PICKUP.
func (c *Circulation) ReserveItem(ctx context.Context, patronID, itemID int64) (*ReserveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	patron, err := c.patrons.GetByIDTx(ctx, tx, patronID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	item, err := c.catalog.GetByIDTx(ctx, tx, itemID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	if err := c.checkSuspension(ctx, tx, patron, now); err != nil {
		return nil, err
	}

	open, err := c.reservations.HasOpenByPatronItemTx(ctx, tx, patronID, itemID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if open {
		return nil, policyErr(ReasonAlreadyReserved)
	}

	available, err := c.catalog.CountAvailableTx(ctx, tx, itemID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if available > 0 {
		return nil, policyErr(ReasonCopyAvailable)
	}

	res := &model.Reservation{
		PatronID:    patronID,
		ItemID:      itemID,
		PickupCode:  uuid.NewString(),
		RequestedAt: now,
		Status:      model.ReservationWaiting,
	}

	result := &ReserveResult{Reservation: res}

	// Maintenance fallback: when no copy is circulating at all, the
	// first reservation pulls a maintenance copy back into service and
	// claims it on the spot.
	onLoan, err := c.catalog.CountByStatusTx(ctx, tx, itemID, model.CopyOnLoan)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if onLoan == 0 {
		if maintCopy, err := c.catalog.FirstCopyWithStatusTx(ctx, tx, itemID, model.CopyMaintenance); err == nil {
			if err := c.catalog.SetCopyStatusTx(ctx, tx, maintCopy.ID, model.CopyReserved); err != nil {
				return nil, wrapStorage(err)
			}
			res.Status = model.ReservationReady
			res.CopyID = &maintCopy.ID
			ready := now
			res.ReadyAt = &ready
			result.Notifications = append(result.Notifications, c.readyNotification(res, item, now))
		} else if !errors.Is(err, repository.ErrNotFound) {
			return nil, wrapStorage(err)
		}
	}

	if err := c.reservations.CreateTx(ctx, tx, res); err != nil {
		return nil, wrapStorage(err)
	}
	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}
	committed = true
	return result, nil
}

// PickupReservation converts a READY_FOR_PICKUP reservation into a
// loan.  The pickup window is re-validated at call time: an elapsed
// reservation is expired on the spot (releasing its copy to the next
// patron in the queue) and the call fails with reservation_expired.
// Suspension and loan limits are checked exactly as for a borrow.
func (c *Circulation) PickupReservation(ctx context.Context, reservationID int64) (*model.Loan, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := c.reservations.GetByIDTx(ctx, tx, reservationID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if res.Status != model.ReservationReady {
		return nil, policyErr(ReasonNotReady)
	}

	if res.ExpiredAt(now, c.policy.PickupWindow) {
		// Auto-expire and persist the cascade even though the pickup
		// itself fails.
		if _, err := c.expireReservation(ctx, tx, res, now); err != nil {
			return nil, wrapStorage(err)
		}
		if err := tx.Commit(); err != nil {
			return nil, wrapStorage(err)
		}
		committed = true
		return nil, policyErr(ReasonReservationExpired)
	}

	patron, err := c.patrons.GetByIDTx(ctx, tx, res.PatronID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	item, err := c.catalog.GetByIDTx(ctx, tx, res.ItemID)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if err := c.checkSuspension(ctx, tx, patron, now); err != nil {
		return nil, err
	}
	if err := c.checkLimits(patron, item); err != nil {
		return nil, err
	}
	if res.CopyID == nil {
		return nil, wrapStorage(errors.New("ready reservation has no copy bound"))
	}

	loan, err := c.openLoanTx(ctx, tx, patron, item, *res.CopyID, now)
	if err != nil {
		return nil, wrapStorage(err)
	}
	if err := c.reservations.SetStatusTx(ctx, tx, res.ID, model.ReservationFulfilled); err != nil {
		return nil, wrapStorage(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}
	committed = true
	return loan, nil
}

// CancelReservation cancels a WAITING or READY_FOR_PICKUP
// reservation.  A ready reservation releases its copy, which cascades
// to the next patron in the queue.  Cancelling a reservation that
// already reached a terminal state fails with repository.ErrConflict.
func (c *Circulation) CancelReservation(ctx context.Context, reservationID int64) (*ReserveResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := c.reservations.GetByIDTx(ctx, tx, reservationID)
	if err != nil {
		return nil, wrapStorage(err)
	}

	result := &ReserveResult{Reservation: res}
	switch res.Status {
	case model.ReservationWaiting:
		if err := c.reservations.SetStatusTx(ctx, tx, res.ID, model.ReservationCancelled); err != nil {
			return nil, wrapStorage(err)
		}
	case model.ReservationReady:
		if err := c.reservations.SetStatusTx(ctx, tx, res.ID, model.ReservationCancelled); err != nil {
			return nil, wrapStorage(err)
		}
		if res.CopyID != nil {
			item, err := c.catalog.GetByIDTx(ctx, tx, res.ItemID)
			if err != nil {
				return nil, wrapStorage(err)
			}
			promoted, notif, err := c.promoteHeadIfFreed(ctx, tx, item, *res.CopyID, now)
			if err != nil {
				return nil, wrapStorage(err)
			}
			if promoted != nil {
				result.Notifications = append(result.Notifications, *notif)
			}
		}
	default:
		return nil, repository.ErrConflict
	}
	res.Status = model.ReservationCancelled

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}
	committed = true
	return result, nil
}

// Sweep performs the time-triggered maintenance pass: it expires
// reservations whose pickup window elapsed (cascading each freed copy
// to the next patron in its queue) and emits one due-tomorrow notice
// per loan coming due within the next day.  Running it twice over the
// same state produces no additional side effects.
func (c *Circulation) Sweep(ctx context.Context) (*SweepResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wrapStorage(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	result := &SweepResult{}

	stale, err := c.reservations.ListReadyBeforeTx(ctx, tx, now.Add(-c.policy.PickupWindow))
	if err != nil {
		return nil, wrapStorage(err)
	}
	for i := range stale {
		notifs, err := c.expireReservation(ctx, tx, &stale[i], now)
		if err != nil {
			return nil, wrapStorage(err)
		}
		result.ExpiredReservations++
		result.Notifications = append(result.Notifications, notifs...)
	}

	dueSoon, err := c.loans.ListDueBetweenTx(ctx, tx, now, now.Add(24*time.Hour))
	if err != nil {
		return nil, wrapStorage(err)
	}
	for _, loan := range dueSoon {
		item, err := c.catalog.GetByIDTx(ctx, tx, loan.ItemID)
		if err != nil {
			return nil, wrapStorage(err)
		}
		result.Notifications = append(result.Notifications, queue.Notification{
			Kind:      queue.KindItemDueTomorrow,
			PatronID:  loan.PatronID,
			ItemID:    loan.ItemID,
			ItemTitle: item.Title,
			Deadline:  loan.DueAt.Format(time.RFC3339),
			EmittedAt: now.Format(time.RFC3339),
		})
		if err := c.loans.MarkDueNoticeSentTx(ctx, tx, loan.ID); err != nil {
			return nil, wrapStorage(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapStorage(err)
	}
	committed = true

	// Overdue stays a derived view; the sweep only reports how many
	// active loans are past due.
	overdue, err := c.loans.ListOverdue(ctx, now)
	if err != nil {
		return nil, wrapStorage(err)
	}
	result.OverdueLoans = len(overdue)
	return result, nil
}

// checkSuspension fails with a PolicyError while the patron is
// suspended.  A suspension whose window already elapsed is cleared in
// passing.
func (c *Circulation) checkSuspension(ctx context.Context, tx *sql.Tx, patron *model.Patron, now time.Time) error {
	if patron.SuspendedAt(now) {
		return policyErr(ReasonSuspended)
	}
	if patron.Suspended {
		if err := c.patrons.ClearSuspensionTx(ctx, tx, patron.ID); err != nil {
			return wrapStorage(err)
		}
		patron.Suspended = false
	}
	return nil
}

// checkLimits enforces the general and electronic loan caps.
func (c *Circulation) checkLimits(patron *model.Patron, item *model.CatalogItem) error {
	if patron.ActiveLoans >= patron.MaxActiveLoans {
		return policyErr(ReasonLoanLimit)
	}
	if item.MediaType == model.MediaElectronic && patron.ActiveElectronic >= patron.MaxElectronicLoans {
		return policyErr(ReasonElectronicLimit)
	}
	return nil
}

// openLoanTx hands the given copy to the patron: copy goes ON_LOAN, a
// ledger entry opens with the media type's standard duration, and the
// patron's counters move up.
func (c *Circulation) openLoanTx(ctx context.Context, tx *sql.Tx, patron *model.Patron,
	item *model.CatalogItem, copyID int64, now time.Time) (*model.Loan, error) {
	if err := c.catalog.SetCopyStatusTx(ctx, tx, copyID, model.CopyOnLoan); err != nil {
		return nil, err
	}
	loan := &model.Loan{
		PatronID:   patron.ID,
		ItemID:     item.ID,
		CopyID:     copyID,
		BorrowedAt: now,
		DueAt:      now.AddDate(0, 0, c.policy.LoanDays(item.MediaType)),
	}
	if err := c.loans.OpenTx(ctx, tx, loan); err != nil {
		return nil, err
	}
	electronic := item.MediaType == model.MediaElectronic
	if err := c.patrons.AdjustCountersTx(ctx, tx, patron.ID, +1, electronic); err != nil {
		return nil, err
	}
	return loan, nil
}

// promoteHeadIfFreed routes a freed copy: the head of the item's
// waiting queue claims it (copy goes RESERVED, reservation goes
// READY_FOR_PICKUP) or, with nobody waiting, the copy returns to the
// shelf as AVAILABLE.
func (c *Circulation) promoteHeadIfFreed(ctx context.Context, tx *sql.Tx, item *model.CatalogItem,
	copyID int64, now time.Time) (*model.Reservation, *queue.Notification, error) {
	head, err := c.reservations.HeadWaitingTx(ctx, tx, item.ID)
	if errors.Is(err, repository.ErrNotFound) {
		if err := c.catalog.SetCopyStatusTx(ctx, tx, copyID, model.CopyAvailable); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}

	if err := c.catalog.SetCopyStatusTx(ctx, tx, copyID, model.CopyReserved); err != nil {
		return nil, nil, err
	}
	if err := c.reservations.MarkReadyTx(ctx, tx, head.ID, copyID, now); err != nil {
		return nil, nil, err
	}
	head.Status = model.ReservationReady
	head.CopyID = &copyID
	ready := now
	head.ReadyAt = &ready

	notif := c.readyNotification(head, item, now)
	return head, &notif, nil
}

// expireReservation marks a lapsed pickup as EXPIRED and releases its
// copy, cascading the promotion to the next reservation in the queue.
// A lapse notification is emitted for the patron who missed the
// window; a ready notification follows when the queue moves.
func (c *Circulation) expireReservation(ctx context.Context, tx *sql.Tx, res *model.Reservation, now time.Time) ([]queue.Notification, error) {
	if err := c.reservations.SetStatusTx(ctx, tx, res.ID, model.ReservationExpired); err != nil {
		// A reservation resolved elsewhere is treated as already
		// handled, not as a sweep failure.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	res.Status = model.ReservationExpired

	item, err := c.catalog.GetByIDTx(ctx, tx, res.ItemID)
	if err != nil {
		return nil, err
	}
	notifs := []queue.Notification{{
		Kind:      queue.KindReservationLapse,
		PatronID:  res.PatronID,
		ItemID:    res.ItemID,
		ItemTitle: item.Title,
		EmittedAt: now.Format(time.RFC3339),
	}}

	if res.CopyID != nil {
		promoted, notif, err := c.promoteHeadIfFreed(ctx, tx, item, *res.CopyID, now)
		if err != nil {
			return nil, err
		}
		if promoted != nil {
			notifs = append(notifs, *notif)
		}
	}
	return notifs, nil
}

func (c *Circulation) readyNotification(res *model.Reservation, item *model.CatalogItem, now time.Time) queue.Notification {
	deadline := now.Add(c.policy.PickupWindow)
	return queue.Notification{
		Kind:      queue.KindReservationReady,
		PatronID:  res.PatronID,
		ItemID:    item.ID,
		ItemTitle: item.Title,
		Deadline:  deadline.Format(time.RFC3339),
		EmittedAt: now.Format(time.RFC3339),
	}
}

// lateDays returns how many whole or partial days past due the return
// happened, zero for an on-time return.
func lateDays(dueAt, returnedAt time.Time) int {
	late := returnedAt.Sub(dueAt)
	if late <= 0 {
		return 0
	}
	days := int(late / (24 * time.Hour))
	if late%(24*time.Hour) > 0 {
		days++
	}
	return days
}
