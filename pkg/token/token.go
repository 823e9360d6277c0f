// Package token issues and verifies the signed bearer tokens that identify sessions.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/fastygo/sessions/domain"
)

// Claims carried by a session token. Subject is the user id; ID is unique per token.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer signs tokens with HS256.
type Issuer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue returns a token for userID valid for ttl, and its expiry at second precision.
func (i *Issuer) Issue(userID string, ttl time.Duration) (string, time.Time, error) {
	if userID == "" || ttl <= 0 {
		return "", time.Time{}, domain.ErrInvalidPayload
	}
	now := i.now()
	expiresAt := jwt.NewNumericDate(now.Add(ttl))
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: expiresAt,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks signature, issuer and time claims.
func (i *Issuer) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	parser := jwt.Parser{ValidMethods: []string{jwt.SigningMethodHS256.Alg()}}
	parsed, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil {
		return nil, unauthorized(err)
	}
	if !parsed.Valid {
		return nil, unauthorized(errors.New("token invalid"))
	}
	if i.issuer != "" && !claims.VerifyIssuer(i.issuer, true) {
		return nil, unauthorized(errors.New("unexpected issuer"))
	}
	if claims.Subject == "" {
		return nil, unauthorized(errors.New("missing subject"))
	}
	return claims, nil
}

func unauthorized(err error) error {
	return domain.WrapError(domain.ErrCodeUnauthorized, domain.ErrUnauthorized.Message, err)
}
