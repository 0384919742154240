package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/queue"
	"github.com/rferraz/library-circulation/internal/repository"
	"github.com/rferraz/library-circulation/internal/service"
)

// CirculationHandler serves the borrow/return and reserve/pickup
// flows.  Notifications produced by an operation are published after
// the transaction commits; publish failures are logged and ignored so
// the main flow never blocks on the broker.
type CirculationHandler struct {
	Engine       *service.Circulation
	Loans        *repository.LoanRepo
	Reservations *repository.ReservationRepo
	Publisher    queue.Publisher
}

// NewCirculationHandler constructs a CirculationHandler.  A nil
// publisher discards notifications.
func NewCirculationHandler(engine *service.Circulation, loans *repository.LoanRepo,
	reservations *repository.ReservationRepo, publisher queue.Publisher) *CirculationHandler {
	if publisher == nil {
		publisher = queue.NopPublisher{}
	}
	return &CirculationHandler{Engine: engine, Loans: loans, Reservations: reservations, Publisher: publisher}
}

func (h *CirculationHandler) publishAll(c echo.Context, notifs []queue.Notification) {
	ctx := c.Request().Context()
	for _, n := range notifs {
		if err := h.Publisher.Publish(ctx, n); err != nil {
			c.Logger().Warnf("publish %s failed: %v", n.Kind, err)
		}
	}
}

// Borrow handles POST /v1/loans.
func (h *CirculationHandler) Borrow(c echo.Context) error {
	var body struct {
		PatronID int64 `json:"patron_id"`
		ItemID   int64 `json:"item_id"`
	}
	if err := c.Bind(&body); err != nil || body.PatronID <= 0 || body.ItemID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "patron_id and item_id are required"})
	}
	loan, err := h.Engine.BorrowItem(c.Request().Context(), body.PatronID, body.ItemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, loan)
}

// Return handles POST /v1/loans/:id/return.
func (h *CirculationHandler) Return(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid loan id"})
	}
	result, err := h.Engine.ReturnItem(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	h.publishAll(c, result.Notifications)
	return c.JSON(http.StatusOK, result)
}

// ListLoans handles GET /v1/loans, optionally filtered by patron_id.
// Only active loans are listed; closed loans surface through the
// reports.
func (h *CirculationHandler) ListLoans(c echo.Context) error {
	var patronID int64
	if s := c.QueryParam("patron_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid patron_id"})
		}
		patronID = id
	}
	loans, err := h.Loans.ListActive(c.Request().Context(), patronID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}

// Reserve handles POST /v1/reservations.
func (h *CirculationHandler) Reserve(c echo.Context) error {
	var body struct {
		PatronID int64 `json:"patron_id"`
		ItemID   int64 `json:"item_id"`
	}
	if err := c.Bind(&body); err != nil || body.PatronID <= 0 || body.ItemID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "patron_id and item_id are required"})
	}
	result, err := h.Engine.ReserveItem(c.Request().Context(), body.PatronID, body.ItemID)
	if err != nil {
		return writeError(c, err)
	}
	h.publishAll(c, result.Notifications)
	return c.JSON(http.StatusCreated, result.Reservation)
}

// Pickup handles POST /v1/reservations/:id/pickup, converting a ready
// reservation into a loan.
func (h *CirculationHandler) Pickup(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	loan, err := h.Engine.PickupReservation(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, loan)
}

// CancelReservation handles POST /v1/reservations/:id/cancel.
func (h *CirculationHandler) CancelReservation(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
	}
	result, err := h.Engine.CancelReservation(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	h.publishAll(c, result.Notifications)
	return c.JSON(http.StatusOK, result.Reservation)
}

// ListReservations handles GET /v1/reservations filtered by item_id
// or patron_id.
func (h *CirculationHandler) ListReservations(c echo.Context) error {
	ctx := c.Request().Context()
	if s := c.QueryParam("item_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item_id"})
		}
		out, err := h.Reservations.ListByItem(ctx, id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
	if s := c.QueryParam("patron_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil || id <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid patron_id"})
		}
		out, err := h.Reservations.ListByPatron(ctx, id)
		if err != nil {
			return writeError(c, err)
		}
		return c.JSON(http.StatusOK, out)
	}
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "item_id or patron_id is required"})
}
