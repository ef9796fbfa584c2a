// Package securitytest mints access tokens for tests, in the shape the
// identity provider issues them.
package securitytest

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func AccessToken(secret string, username string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"preferred_username": username,
		"sub":                username,
		"iat":                jwt.NewNumericDate(now),
		"exp":                jwt.NewNumericDate(now.Add(ttl)),
	}
	if len(roles) > 0 {
		claims["roles"] = roles
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}
