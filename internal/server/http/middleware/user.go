package middleware

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/server/http/common"
)

// UserIDHeader is set by the upstream auth gateway after it authenticates the caller.
const UserIDHeader = "X-User-ID"

const contextUserID = "user_id"

// ResolvesUser reads the caller identity from UserIDHeader and rejects anonymous requests.
func ResolvesUser() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get(UserIDHeader)
			if raw == "" {
				return common.UnauthorizedResponse(c, "authentication required")
			}

			userID, err := uuid.Parse(raw)
			if err != nil {
				return common.UnauthorizedResponse(c, "invalid user id")
			}

			c.Set(contextUserID, userID)

			return next(c)
		}
	}
}

// ResolveUserID returns the caller resolved by ResolvesUser or uuid.Nil.
func ResolveUserID(c echo.Context) uuid.UUID {
	if userID, ok := c.Get(contextUserID).(uuid.UUID); ok {
		return userID
	}

	return uuid.Nil
}
