package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const purposePasswordReset = "password_reset"

type resetClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// ResetSigner issues HS256 tokens that authorise exactly one password change.
// They are never accepted as bearer tokens.
type ResetSigner struct {
	secret []byte
	issuer string
}

func NewResetSigner(secret, issuer string) (*ResetSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("reset token secret must be at least 32 bytes")
	}
	return &ResetSigner{secret: []byte(secret), issuer: issuer}, nil
}

func (s *ResetSigner) Sign(userID, tokenID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := resetClaims{
		Purpose: purposePasswordReset,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *ResetSigner) Parse(tokenStr string) (userID, tokenID string, expiresAt time.Time, err error) {
	var claims resetClaims
	_, err = jwt.ParseWithClaims(tokenStr, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("parse reset token: %w", err)
	}
	if claims.Purpose != purposePasswordReset {
		return "", "", time.Time{}, errors.New("token is not a reset token")
	}
	if claims.Subject == "" || claims.ID == "" {
		return "", "", time.Time{}, errors.New("reset token missing subject or id")
	}
	return claims.Subject, claims.ID, claims.ExpiresAt.Time, nil
}
