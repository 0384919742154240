package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/model"
	"github.com/rferraz/library-circulation/internal/repository"
)

// PatronHandler serves patron registration and lookup.  Removal is
// rejected while the patron still owns active loans.
type PatronHandler struct {
	Patrons *repository.PatronRepo
}

// NewPatronHandler constructs a PatronHandler.
func NewPatronHandler(patrons *repository.PatronRepo) *PatronHandler {
	return &PatronHandler{Patrons: patrons}
}

// Create handles POST /v1/patrons.  Limits default from the category
// when omitted.
func (h *PatronHandler) Create(c echo.Context) error {
	var body struct {
		DisplayName        string `json:"display_name"`
		Category           string `json:"category"`
		MaxActiveLoans     int    `json:"max_active_loans"`
		MaxElectronicLoans int    `json:"max_electronic_loans"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.DisplayName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "display_name is required"})
	}
	category := model.PatronCategory(body.Category)
	if !model.ValidCategory(category) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown category"})
	}
	patron := &model.Patron{
		DisplayName:        body.DisplayName,
		Category:           category,
		MaxActiveLoans:     body.MaxActiveLoans,
		MaxElectronicLoans: body.MaxElectronicLoans,
	}
	if err := h.Patrons.Create(c.Request().Context(), patron); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, patron)
}

// List handles GET /v1/patrons.
func (h *PatronHandler) List(c echo.Context) error {
	patrons, err := h.Patrons.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, patrons)
}

// Get handles GET /v1/patrons/:id.
func (h *PatronHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid patron id"})
	}
	patron, err := h.Patrons.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, patron)
}

// Delete handles DELETE /v1/patrons/:id.  Responds 409 while the
// patron has active loans.
func (h *PatronHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid patron id"})
	}
	if err := h.Patrons.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
