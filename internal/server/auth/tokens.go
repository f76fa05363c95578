// Package auth issues and verifies the signed, expiring, purpose-tagged
// tokens used for account confirmation, password reset and email change.
//
// Tokens are HS256 JWTs signed with the server secret. Nothing is stored
// server side: a token is valid as long as its signature checks out, it has
// not expired and it was issued for the purpose the caller expects.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/flasky/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose tags what a token may be redeemed for.
type Purpose string

const (
	PurposeConfirm       Purpose = "confirm"
	PurposeResetPassword Purpose = "reset_password"
	PurposeChangeEmail   Purpose = "change_email"
)

// DefaultExpiration applies when Generate is called with a non-positive
// expiration.
const DefaultExpiration = time.Hour

// Payload is the purpose specific data carried by a token.
type Payload struct {
	UserID   string
	NewEmail string
}

// Claims is the JWT body.
type Claims struct {
	jwt.RegisteredClaims
	Purpose  Purpose `json:"purpose"`
	UserID   string  `json:"uid"`
	NewEmail string  `json:"new_email,omitempty"`
}

// Signer generates and verifies tokens with a single secret key.
type Signer struct {
	secret []byte
	now    func() time.Time
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock replaces time.Now for issuing and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

func NewSigner(secret []byte, opts ...Option) *Signer {
	s := &Signer{secret: secret, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Generate signs purpose and payload with an absolute expiry of
// now+expiration. The signature covers every claim.
func (s *Signer) Generate(purpose Purpose, payload Payload, expiration time.Duration) (string, error) {
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	now := s.now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
		},
		Purpose:  purpose,
		UserID:   payload.UserID,
		NewEmail: payload.NewEmail,
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tokenString, nil
}

// Verify checks the signature, expiry and purpose of tokenString and
// returns its payload unchanged. Expired tokens yield common.ErrTokenExpired;
// every other rejection yields common.ErrInvalidToken.
func (s *Signer) Verify(tokenString string, expected Purpose) (Payload, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
		jwt.WithStrictDecoding(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Payload{}, common.ErrTokenExpired
		}
		return Payload{}, common.ErrInvalidToken
	}

	if !token.Valid || claims.Purpose != expected || claims.UserID == "" {
		return Payload{}, common.ErrInvalidToken
	}

	return Payload{UserID: claims.UserID, NewEmail: claims.NewEmail}, nil
}
