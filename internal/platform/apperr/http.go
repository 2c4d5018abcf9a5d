package apperr

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// HTTPStatus maps an error to the HTTP status its handler should return.
func HTTPStatus(err error) int {
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ErrIdempotencyConflict):
		return http.StatusConflict
	case errors.Is(err, ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, ErrStatusMismatch):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case IsClientError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInconsistentState), errors.Is(err, ErrInfrastructure):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// ToHTTP converts a domain error into an echo HTTPError, preserving the
// message so UI layers can render it without re-deriving context.
func ToHTTP(err error) *echo.HTTPError {
	return echo.NewHTTPError(HTTPStatus(err), err.Error())
}
