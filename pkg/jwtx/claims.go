// Package jwtx reads the claims carried by backend-issued access tokens.
//
// The admin client never holds the signing key, so tokens are decoded without
// signature verification. The result is only used to display who is logged in
// and when the access token lapses; authorization is always the backend's call.
package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed = errors.New("jwtx: malformed token")
	ErrExpired   = errors.New("jwtx: token expired")
)

// Claims are the access-token claims the admin backend issues. Only
// additive fields here; unknown claims are ignored.
type Claims struct {
	jwt.RegisteredClaims

	// UserID is the backend's "id" claim; older tokens only set "sub".
	UserID string `json:"id,omitempty"`
	Email  string `json:"email,omitempty"`
	Name   string `json:"name,omitempty"`
	Role   string `json:"role,omitempty"`
}

// Peek decodes token without verifying its signature.
func Peek(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrMalformed
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	return claims, nil
}

// Identity returns the best available user identifier.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// ValidateExpiryWithLeeway reports ErrExpired once now is past exp+leeway.
// Tokens without exp never expire from the client's point of view.
func (c *Claims) ValidateExpiryWithLeeway(now time.Time, leeway time.Duration) error {
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}
	return nil
}
