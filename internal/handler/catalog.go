package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/model"
	"github.com/rferraz/library-circulation/internal/repository"
)

// CatalogHandler serves catalog item management.  Removal is rejected
// while any copy of the item is on loan.
type CatalogHandler struct {
	Catalog *repository.CatalogRepo
}

// NewCatalogHandler constructs a CatalogHandler.
func NewCatalogHandler(catalog *repository.CatalogRepo) *CatalogHandler {
	return &CatalogHandler{Catalog: catalog}
}

// Create handles POST /v1/items.  The item starts with the requested
// number of available copies (default 1).
func (h *CatalogHandler) Create(c echo.Context) error {
	var body struct {
		Title     string `json:"title"`
		Author    string `json:"author"`
		MediaType string `json:"media_type"`
		Copies    int    `json:"copies"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}
	media := model.MediaType(body.MediaType)
	if !model.ValidMediaType(media) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown media_type"})
	}
	if body.Copies <= 0 {
		body.Copies = 1
	}
	item := &model.CatalogItem{
		Title:     body.Title,
		Author:    body.Author,
		MediaType: media,
	}
	if err := h.Catalog.Create(c.Request().Context(), item, body.Copies); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// List handles GET /v1/items.
func (h *CatalogHandler) List(c echo.Context) error {
	items, err := h.Catalog.List(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, items)
}

// Get handles GET /v1/items/:id, returning the item with its copies.
func (h *CatalogHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	item, err := h.Catalog.GetByID(c.Request().Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, item)
}

// Delete handles DELETE /v1/items/:id.  Responds 409 while a copy is
// on loan.
func (h *CatalogHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid item id"})
	}
	if err := h.Catalog.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
