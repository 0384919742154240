package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/repository"
)

// ReportHandler serves read-only circulation reports.  These
// endpoints sit behind the response cache.
type ReportHandler struct {
	Loans *repository.LoanRepo
}

// NewReportHandler constructs a ReportHandler.
func NewReportHandler(loans *repository.LoanRepo) *ReportHandler {
	return &ReportHandler{Loans: loans}
}

// MostBorrowed handles GET /v1/reports/most-borrowed?top=N (default
// 10), aggregating over the full loan history.
func (h *ReportHandler) MostBorrowed(c echo.Context) error {
	top := 10
	if s := c.QueryParam("top"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid top"})
		}
		top = n
	}
	rows, err := h.Loans.MostBorrowed(c.Request().Context(), top)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rows)
}

// Overdue handles GET /v1/reports/overdue.  Overdue is derived from
// the due date at request time, never stored.
func (h *ReportHandler) Overdue(c echo.Context) error {
	loans, err := h.Loans.ListOverdue(c.Request().Context(), time.Now().UTC())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, loans)
}
