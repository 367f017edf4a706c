package middleware

import (
	"context"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	apierrors "github.com/jordanlanch/leadscope/pkg/api/errors"
	"github.com/jordanlanch/leadscope/pkg/auth"
)

// UserIDKey is the echo context key holding the authenticated user id
const UserIDKey = "user_id"

// JWTMiddleware creates a JWT authentication middleware
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return JWTMiddlewareWithBlacklist(secret, nil)
}

// JWTMiddlewareWithBlacklist creates a JWT authentication middleware that
// also rejects revoked tokens
func JWTMiddlewareWithBlacklist(secret string, blacklist *auth.TokenBlacklist) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apierrors.UnauthorizedError(c, "missing_token", "Authorization header is required")
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return apierrors.UnauthorizedError(c, "invalid_token_format", "Authorization header must be 'Bearer {token}'")
			}
			token := parts[1]

			ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
			defer cancel()

			claims, err := auth.ValidateJWTWithBlacklist(ctx, token, secret, blacklist)
			if err != nil {
				return apierrors.UnauthorizedError(c, "invalid_token", err.Error())
			}

			c.Set("token", token)
			c.Set(UserIDKey, claims.UserID)

			return next(c)
		}
	}
}

// UserID returns the authenticated user id set by the JWT middleware
func UserID(c echo.Context) (int, bool) {
	id, ok := c.Get(UserIDKey).(int)
	return id, ok && id > 0
}
