package account

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ResetClaims are carried by a password reset token.
type ResetClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

// TokenIssuer signs reset tokens with the server secret joined to the user's
// current password hash. Changing the password changes the key, so every
// outstanding token stops verifying.
type TokenIssuer struct {
	secret string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: secret, ttl: ttl, now: time.Now}
}

func (t *TokenIssuer) key(u User) []byte {
	return []byte(t.secret + u.PasswordHash)
}

func (t *TokenIssuer) Issue(u User) (string, error) {
	now := t.now()
	claims := ResetClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
		Email: u.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key(u))
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return signed, nil
}

// Verify checks token against u as currently stored.
func (t *TokenIssuer) Verify(u User, token string) error {
	var claims ResetClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return t.key(u), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return errors.Join(ErrInvalidToken, err)
	}
	if claims.Subject != u.ID.String() {
		return ErrInvalidToken
	}
	return nil
}
