// Package router wires the HTTP routes to their handlers.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/handler"
)

// Handlers groups everything the router needs to register the API.
type Handlers struct {
	Patrons     *handler.PatronHandler
	Catalog     *handler.CatalogHandler
	Circulation *handler.CirculationHandler
	Reports     *handler.ReportHandler
}

// RegisterRoutes registers the health check plus the full v1 API on
// the provided Echo instance.  cached, when non-nil, wraps the
// read-only endpoints in the response cache.
func RegisterRoutes(e *echo.Echo, h Handlers, cached echo.MiddlewareFunc) {
	e.GET("/healthz", handler.Health)

	v1 := e.Group("/v1")

	v1.POST("/patrons", h.Patrons.Create)
	v1.GET("/patrons", h.Patrons.List)
	v1.GET("/patrons/:id", h.Patrons.Get)
	v1.DELETE("/patrons/:id", h.Patrons.Delete)

	v1.POST("/items", h.Catalog.Create)
	v1.GET("/items", h.Catalog.List)
	v1.GET("/items/:id", h.Catalog.Get)
	v1.DELETE("/items/:id", h.Catalog.Delete)

	v1.POST("/loans", h.Circulation.Borrow)
	v1.POST("/loans/:id/return", h.Circulation.Return)
	v1.GET("/loans", h.Circulation.ListLoans)

	v1.POST("/reservations", h.Circulation.Reserve)
	v1.POST("/reservations/:id/pickup", h.Circulation.Pickup)
	v1.POST("/reservations/:id/cancel", h.Circulation.CancelReservation)
	v1.GET("/reservations", h.Circulation.ListReservations)

	// Reports are read-mostly and safe to cache.
	reports := e.Group("/v1/reports")
	if cached != nil {
		reports.Use(cached)
	}
	reports.GET("/most-borrowed", h.Reports.MostBorrowed)
	reports.GET("/overdue", h.Reports.Overdue)
}
