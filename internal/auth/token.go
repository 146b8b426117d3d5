package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "libris"

// Claims is the JWT claim set embedded in session tokens.
type Claims struct {
	DisplayName string `json:"name"`
	Email       string `json:"email,omitempty"`
	Role        Role   `json:"role"`
	jwt.RegisteredClaims
}

func signToken(secret []byte, id Identity, issuedAt time.Time, ttl time.Duration) (string, time.Time, error) {
	if id.ID == "" {
		return "", time.Time{}, errors.New("identity id is required")
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("ttl must be greater than zero")
	}
	expiresAt := issuedAt.Add(ttl)
	claims := Claims{
		DisplayName: id.DisplayName,
		Email:       id.Email,
		Role:        id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func parseToken(secret []byte, raw string, now time.Time) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrSessionInvalid
	}
	parsed, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrSessionInvalid
		}
		return secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return now }))
	if err != nil {
		return nil, ErrSessionInvalid
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrSessionInvalid
	}
	if claims.Issuer != issuer || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrSessionInvalid
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, ErrSessionInvalid
	}
	if !now.Before(claims.ExpiresAt.Time) {
		return nil, ErrSessionInvalid
	}
	return claims, nil
}
