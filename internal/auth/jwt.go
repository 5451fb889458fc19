/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer = "dayplanner"
	// clockSkew tolerated between the issuing host and this one.
	clockSkew = 30 * time.Second
)

var (
	// ErrMissingUser is returned for tokens without a user id.
	ErrMissingUser = errors.New("token has no user id")
	// ErrInvalidTTL is returned when a token would be born expired.
	ErrInvalidTTL = errors.New("token lifetime must be positive")
)

// Claims identifies the owner of every task, slot and placement a request touches.
type Claims struct {
	UserID string `json:"uid"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs an HS256 token for claims.UserID valid for ttl.
func Issue(secret []byte, claims Claims, ttl time.Duration) (string, error) {
	switch {
	case claims.UserID == "":
		return "", ErrMissingUser
	case ttl <= 0:
		return "", ErrInvalidTTL
	}

	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies signature, issuer and expiry. Any algorithm other than
// HS256 is refused.
func Parse(secret []byte, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, ErrMissingUser
	}
	return claims, nil
}
