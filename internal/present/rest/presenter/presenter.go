package presenter

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/contentgraph/publishing/internal/domain"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// OK wraps a successful response.
func OK(c echo.Context, payload any) error {
	return c.JSON(http.StatusOK, payload)
}

func BadRequest(c echo.Context, err error) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func BadRequestMessage(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: msg})
}

func NotFound(c echo.Context, msg string) error {
	return c.JSON(http.StatusNotFound, errorResponse{Error: msg})
}

func Conflict(c echo.Context, msg string) error {
	return c.JSON(http.StatusConflict, errorResponse{Error: msg})
}

func UnprocessableEntity(c echo.Context, msg string, fields map[string][]string) error {
	return c.JSON(http.StatusUnprocessableEntity, errorResponse{Error: msg, Fields: fields})
}

func InternalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// DomainError maps domain errors onto their response status: missing
// resources 404, optimistic lock and path collisions 409, invalid
// payloads 422, anything else 500.
func DomainError(c echo.Context, err error) error {
	var validation domain.ValidationError
	if errors.As(err, &validation) {
		return UnprocessableEntity(c, validation.Error(), validation.Fields)
	}
	if errors.Is(err, domain.ErrNotFound) {
		return NotFound(c, err.Error())
	}
	if errors.Is(err, domain.ErrConflict) {
		return Conflict(c, err.Error())
	}
	return InternalError(c, err)
}
