// Package handler exposes the circulation engine and the stores over
// a JSON HTTP API.  Handlers stay thin: they parse identifiers, call
// the engine or a repository, publish any side-effect notifications
// and translate domain errors into HTTP responses.
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/rferraz/library-circulation/internal/repository"
	"github.com/rferraz/library-circulation/internal/service"
)

// writeError maps a domain error onto its HTTP shape.  Policy
// violations carry their reason code so the UI can show an actionable
// message.
func writeError(c echo.Context, err error) error {
	var pe *service.PolicyError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict"})
	case errors.As(err, &pe):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{
			"error":  "policy_violation",
			"reason": pe.Reason,
		})
	default:
		c.Logger().Errorf("internal error: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
}

// pathID parses the numeric :id path parameter.
func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// Health responds to liveness probes.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
