// ABOUTME: Reads the expiry of an access token without verifying its signature
// ABOUTME: The client never holds the signing key, so it only inspects claims

package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoExpiry means the token has no readable exp claim.
var ErrNoExpiry = errors.New("token has no expiry")

// tokenExpiry returns the exp claim of a JWT.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, err
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}
