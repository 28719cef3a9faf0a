package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/cart-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

// TokenVerifier checks HS256 bearer tokens. The subject claim is the user id.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(30*time.Second),
		),
	}
}

func (v *TokenVerifier) Verify(raw string) (string, error) {
	if v == nil || len(v.secret) == 0 {
		return "", fmt.Errorf("%w: token verification is not configured", domain.ErrInvalidToken)
	}

	var claims jwt.RegisteredClaims
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", domain.ErrInvalidToken)
	}
	return claims.Subject, nil
}

// Sign issues a token for userID. Used by tests and local tooling; real
// tokens come from the identity provider.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("empty signing secret")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
