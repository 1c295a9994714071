package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/msgdeck/msgdeck/internal/server/http/middleware"
	"github.com/stretchr/testify/assert"
)

func TestResolvesUser(t *testing.T) {
	userID := uuid.New()

	for _, tt := range []struct {
		name       string
		header     string
		expectCode int
	}{
		{name: "missing header", expectCode: http.StatusUnauthorized},
		{name: "malformed header", header: "not-a-uuid", expectCode: http.StatusUnauthorized},
		{name: "valid header", header: userID.String(), expectCode: http.StatusNoContent},
	} {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(middleware.UserIDHeader, tt.header)
			}

			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			var resolved uuid.UUID
			handler := middleware.ResolvesUser()(func(c echo.Context) error {
				resolved = middleware.ResolveUserID(c)
				return c.NoContent(http.StatusNoContent)
			})

			err := handler(c)

			assert.NoError(t, err)
			assert.Equal(t, tt.expectCode, rec.Code)

			if tt.expectCode == http.StatusNoContent {
				assert.Equal(t, userID, resolved)
			} else {
				assert.Equal(t, uuid.Nil, resolved)
			}
		})
	}
}
