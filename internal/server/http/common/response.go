package common

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/apperr"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type ErrorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

const StatusUnauthorized = "unauthorized"

// StatusCode maps an error kind to its HTTP status.
func StatusCode(kind apperr.Kind) int {
	switch kind {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindBadRequest:
		return http.StatusBadRequest
	case apperr.KindPreconditionFailed:
		return http.StatusPreconditionFailed
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUsageLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromService renders a service error. Internal errors are logged and their details hidden.
func ErrorFromService(c echo.Context, logger *zerolog.Logger, err error) error {
	kind := apperr.KindOf(err)
	message := apperr.MessageOf(err)

	if kind == apperr.KindInternal {
		logger.Error().Err(err).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Msg("internal error")

		message = "internal error"
	}

	return c.JSON(StatusCode(kind), &ErrorResponse{Status: string(kind), Message: message})
}

func ValidationErrorResponse(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, &ErrorResponse{Status: string(apperr.KindBadRequest), Message: message})
}

func NotFoundResponse(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, &ErrorResponse{Status: string(apperr.KindNotFound), Message: message})
}

func UnauthorizedResponse(c echo.Context, message string) error {
	return c.JSON(http.StatusUnauthorized, &ErrorResponse{Status: StatusUnauthorized, Message: message})
}

// UUIDParam parses a path parameter as UUID.
func UUIDParam(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.BadRequest("invalid %s", name)
	}

	return id, nil
}

// ErrorHandler renders errors that escape handlers, including echo routing errors.
func ErrorHandler(logger *zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) {
			message := http.StatusText(httpErr.Code)
			if m, ok := httpErr.Message.(string); ok {
				message = m
			}

			if writeErr := c.JSON(httpErr.Code, &ErrorResponse{Status: statusOf(httpErr.Code), Message: message}); writeErr != nil {
				logger.Error().Err(writeErr).Msg("unable to write error response")
			}

			return
		}

		if writeErr := ErrorFromService(c, logger, err); writeErr != nil {
			logger.Error().Err(writeErr).Msg("unable to write error response")
		}
	}
}

func statusOf(code int) string {
	switch code {
	case http.StatusNotFound:
		return string(apperr.KindNotFound)
	case http.StatusUnauthorized:
		return StatusUnauthorized
	case http.StatusForbidden:
		return string(apperr.KindForbidden)
	case http.StatusTooManyRequests:
		return string(apperr.KindUsageLimitExceeded)
	}

	if code >= http.StatusInternalServerError {
		return string(apperr.KindInternal)
	}

	return string(apperr.KindBadRequest)
}
