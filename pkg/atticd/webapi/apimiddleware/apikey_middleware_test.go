package apimiddleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func newTestServer() *echo.Echo {
	e := echo.New()

	getUser := func(token string) (*model.User, error) {
		if token == "good-token" {
			return &model.User{ID: 1, Email: "owner@test.org", APIToken: token}, nil
		}
		return nil, errors.New("no such user")
	}

	e.Use(APIKeyAuth(APIKeyConfig{
		Skipper:           middleware.DefaultSkipper,
		Keyname:           "X-API-Token",
		GetUserByAPIToken: getUser,
	}))

	e.GET("/whoami", func(c echo.Context) error {
		user := c.Get("User").(model.User)
		return c.JSON(http.StatusOK, map[string]string{"email": user.Email})
	})

	return e
}

func TestAPIKeyAuth(t *testing.T) {
	e := newTestServer()

	t.Run("TokenInHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-API-Token", "good-token")
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "owner@test.org")
	})

	t.Run("TokenInQuery", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami?X-API-Token=good-token", nil)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("MissingToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownToken", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("X-API-Token", "bad-token")
		rec := httptest.NewRecorder()

		e.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
