package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanlanch/leadscope/pkg/auth"
	"github.com/jordanlanch/leadscope/pkg/cache"
)

const secret = "test-secret-key-minimum-32-characters-long"

func call(t *testing.T, mw echo.MiddlewareFunc, header string) (*httptest.ResponseRecorder, int) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/status/Biz-1", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	seen := 0
	err := mw(func(c echo.Context) error {
		id, ok := UserID(c)
		require.True(t, ok)
		seen = id
		return c.NoContent(http.StatusNoContent)
	})(c)
	require.NoError(t, err)
	return rec, seen
}

func TestJWTMiddleware(t *testing.T) {
	mw := JWTMiddleware(secret)

	t.Run("Success - valid token", func(t *testing.T) {
		token, err := auth.GenerateJWT(42, secret, 1)
		require.NoError(t, err)

		rec, userID := call(t, mw, "Bearer "+token)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, 42, userID)
	})

	t.Run("Error - missing header", func(t *testing.T) {
		rec, _ := call(t, mw, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing_token")
	})

	t.Run("Error - wrong scheme", func(t *testing.T) {
		rec, _ := call(t, mw, "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_token_format")
	})

	t.Run("Error - bad token", func(t *testing.T) {
		rec, _ := call(t, mw, "Bearer nope")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid_token")
	})
}

func TestJWTMiddlewareWithBlacklist(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := cache.NewClient("redis://" + mr.Addr())
	require.NoError(t, err)
	defer client.Close()

	blacklist := auth.NewTokenBlacklist(client)
	mw := JWTMiddlewareWithBlacklist(secret, blacklist)

	token, err := auth.GenerateJWT(9, secret, 1)
	require.NoError(t, err)

	rec, _ := call(t, mw, "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, err = blacklist.Revoke(context.Background(), token, secret)
	require.NoError(t, err)

	rec, _ = call(t, mw, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "revoked")
}
