package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/jordanlanch/leadscope/pkg/cache"
)

// TokenBlacklist keeps revoked tokens in Redis until they would have expired
type TokenBlacklist struct {
	cache *cache.Client
}

// NewTokenBlacklist creates a new token blacklist
func NewTokenBlacklist(cache *cache.Client) *TokenBlacklist {
	return &TokenBlacklist{cache: cache}
}

// Add revokes a token for expiration
func (b *TokenBlacklist) Add(ctx context.Context, token string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	return b.cache.Set(ctx, b.key(token), "revoked", expiration)
}

// Revoke validates token and revokes it for the rest of its lifetime
func (b *TokenBlacklist) Revoke(ctx context.Context, token, secret string) (*Claims, error) {
	claims, err := ValidateJWT(token, secret)
	if err != nil {
		return nil, err
	}
	if err := b.Add(ctx, token, claims.Remaining(time.Now())); err != nil {
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}
	return claims, nil
}

// IsBlacklisted checks if a token is revoked
func (b *TokenBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return b.cache.Exists(ctx, b.key(token))
}

// tokens are stored hashed
func (b *TokenBlacklist) key(token string) string {
	hash := sha256.Sum256([]byte(token))
	return "jwt:blacklist:" + hex.EncodeToString(hash[:])
}
