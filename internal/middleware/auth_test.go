// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"codeberg.org/oliverandrich/identity-service/internal/apperror"
	"codeberg.org/oliverandrich/identity-service/internal/auth"
	"codeberg.org/oliverandrich/identity-service/internal/middleware"
	"codeberg.org/oliverandrich/identity-service/internal/models"
	"codeberg.org/oliverandrich/identity-service/internal/services/token"
	"codeberg.org/oliverandrich/identity-service/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	codec, err := token.NewCodec([]byte(testutil.TestSecret), "test", time.Minute)
	require.NoError(t, err)
	return codec
}

func bearer(t *testing.T, codec *token.Codec, role models.Role) string {
	t.Helper()
	signed, _, err := codec.Sign("user-"+role.String(), role)
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestAuthenticate(t *testing.T) {
	codec := newCodec(t)
	header := bearer(t, codec, models.RoleSupervisor)

	p, err := middleware.Authenticate(codec, header)
	require.NoError(t, err)
	assert.Equal(t, "user-supervisor", p.UserID)
	assert.Equal(t, models.RoleSupervisor, p.Role)

	p, err = middleware.Authenticate(codec, "bearer "+header[len("Bearer "):])
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupervisor, p.Role)
}

func TestAuthenticate_Rejects(t *testing.T) {
	codec := newCodec(t)
	valid := bearer(t, codec, models.RoleEndUser)

	for name, header := range map[string]string{
		"missing":      "",
		"no token":     "Bearer ",
		"basic scheme": "Basic dXNlcjpwYXNz",
		"raw token":    valid[len("Bearer "):],
		"garbage":      "Bearer garbage",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := middleware.Authenticate(codec, header)
			assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
		})
	}
}

func TestAuthenticate_Expired(t *testing.T) {
	now := time.Now()
	codec := newCodec(t).WithClock(func() time.Time { return now })
	header := bearer(t, codec, models.RoleEndUser)
	now = now.Add(time.Hour)

	_, err := middleware.Authenticate(codec, header)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
	assert.ErrorIs(t, err, apperror.ErrTokenExpired)
}

func TestAuthorize_Monotonic(t *testing.T) {
	roles := models.Roles()
	for _, have := range roles {
		for _, need := range roles {
			err := middleware.Authorize(auth.Principal{UserID: "u", Role: have}, need)
			if have.Rank() >= need.Rank() {
				assert.NoError(t, err, "%s should satisfy %s", have, need)
			} else {
				assert.ErrorIs(t, err, apperror.ErrForbidden, "%s should not satisfy %s", have, need)
			}
		}
	}

	assert.ErrorIs(t, middleware.Authorize(auth.Principal{Role: "root"}, models.RoleEndUser), apperror.ErrForbidden)
}

func newServer(codec *token.Codec) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		_ = c.NoContent(apperror.KindOf(err).HTTPStatus())
	}
	ok := func(c echo.Context) error {
		p, _ := auth.PrincipalFrom(c.Request().Context())
		return c.String(http.StatusOK, p.UserID)
	}
	api := e.Group("", middleware.RequireAuth(codec))
	api.GET("/me", ok)
	api.GET("/reports", ok, middleware.RequireSupervisor())
	api.GET("/admin", ok, middleware.RequireAdmin())
	return e
}

func TestRequireMinRole_Routes(t *testing.T) {
	codec := newCodec(t)
	e := newServer(codec)

	tests := []struct {
		role models.Role
		path string
		want int
	}{
		{models.RoleEndUser, "/me", http.StatusOK},
		{models.RoleEndUser, "/reports", http.StatusForbidden},
		{models.RoleEndUser, "/admin", http.StatusForbidden},
		{models.RoleSupervisor, "/reports", http.StatusOK},
		{models.RoleSupervisor, "/admin", http.StatusForbidden},
		{models.RoleAdmin, "/me", http.StatusOK},
		{models.RoleAdmin, "/reports", http.StatusOK},
		{models.RoleAdmin, "/admin", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.role.String()+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set(echo.HeaderAuthorization, bearer(t, codec, tt.role))
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "user-"+tt.role.String(), rec.Body.String())
			}
		})
	}
}

func TestRequireAuth_NoHeader(t *testing.T) {
	e := newServer(newCodec(t))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireMinRole_WithoutPrincipal(t *testing.T) {
	e := echo.New()
	c, _ := testutil.NewEchoContext(e, http.MethodGet, "/", nil)

	err := middleware.RequireAdmin()(func(echo.Context) error { return nil })(c)
	assert.ErrorIs(t, err, apperror.ErrUnauthenticated)
}

func TestStripTrailingSlash(t *testing.T) {
	e := echo.New()
	e.Pre(middleware.StripTrailingSlash())
	e.GET("/api/health", func(c echo.Context) error { return c.String(http.StatusOK, c.Request().URL.Path) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "/api/health", rec.Body.String())
}
