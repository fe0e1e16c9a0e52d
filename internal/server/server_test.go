package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pingRoutes struct{}

func (pingRoutes) Register(e *echo.Echo) {
	e.GET("/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}

func TestServer_RegistersHandlers(t *testing.T) {
	t.Parallel()

	srv := New("test", ":0", nil, pingRoutes{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRequestValidator(t *testing.T) {
	t.Parallel()

	srv := New("test", ":0", nil)

	type payload struct {
		Name string `validate:"required"`
	}

	err := srv.Echo().Validator.Validate(&payload{})
	require.Error(t, err)

	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.Code)

	assert.NoError(t, srv.Echo().Validator.Validate(&payload{Name: "x"}))
}
