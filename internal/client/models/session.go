package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the opaque proof returned by signing in. Holding a Session does
// not mean the user is authenticated: it must be verified first.
type Session struct {
	ID           string
	UserID       string
	AccessToken  string
	RefreshToken string

	// ExpiresAt is zero when neither the service nor the token told us.
	ExpiresAt time.Time
}

// Valid reports whether the session carries the fields a usable session needs.
func (s Session) Valid() bool {
	return s.ID != "" && s.AccessToken != ""
}

// Expired reports whether the session is past its expiry at now.
// A session without a known expiry never expires client-side.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(s.ExpiresAt)
}

// TokenExpiry reads the exp claim of a JWT access token without verifying
// its signature. The client cannot verify it and only uses it as a hint.
func TokenExpiry(token string) (time.Time, bool) {
	if token == "" {
		return time.Time{}, false
	}
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

// NewSession builds a Session, falling back to the access token's exp claim
// when expiresAt is zero.
func NewSession(id, userID, accessToken, refreshToken string, expiresAt time.Time) Session {
	if expiresAt.IsZero() {
		if exp, ok := TokenExpiry(accessToken); ok {
			expiresAt = exp
		}
	}
	return Session{
		ID:           id,
		UserID:       userID,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt.UTC(),
	}
}
