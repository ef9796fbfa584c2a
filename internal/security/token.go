package security

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"avatarsvc/internal/models"
)

var ErrInvalidToken = errors.New("invalid token")

// AccessClaims are the claims of the bearer tokens issued by the identity
// provider.
type AccessClaims struct {
	PreferredUsername string   `json:"preferred_username,omitempty"`
	Email             string   `json:"email,omitempty"`
	Roles             []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the caller identity. The name is preferred_username,
// falling back to sub.
func (c AccessClaims) Principal() models.Principal {
	name := c.PreferredUsername
	if name == "" {
		name = c.Subject
	}
	return models.Principal{
		Username: name,
		Email:    c.Email,
		Roles:    c.Roles,
	}
}

func ParseAccessToken(tokenStr string, secret string) (*AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.PreferredUsername == "" && claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	return claims, nil
}
