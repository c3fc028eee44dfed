// Package auth is the identity backend: it stores credentials, issues and
// verifies identity tokens, and tells listeners when an identity signs in
// or out.
//
// ────────────────────────────────────────────────────────────────────
// LEARNING NOTE — what is a JWT?
// ────────────────────────────────────────────────────────────────────
// A JSON Web Token (JWT) is a compact, self-contained way to represent
// claims (assertions) between two parties. It has three Base64-encoded
// sections separated by dots:
//
//	HEADER.PAYLOAD.SIGNATURE
//
// The HEADER says which algorithm was used (HS256 here).
// The PAYLOAD carries our custom claims (uid, email) plus standard ones
// (expiry, issued-at, and a unique token id "jti").
// The SIGNATURE is an HMAC-SHA256 hash of HEADER+PAYLOAD using a secret
// key only the server knows. Tampering with the payload invalidates the
// signature, so the server can trust the claims without a database lookup.
//
// The one lookup we do make is for sign-out: a JWT stays valid until it
// expires, so signing out records its jti in revoked_tokens and Verify
// refuses any token found there.
//
// Useful resource: https://jwt.io/introduction
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the JWT claims embedded in each identity token.
// RegisteredClaims.ID carries the jti used for revocation.
type Claims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// DefaultTokenTTL is how long an identity token stays valid after issue.
const DefaultTokenTTL = 72 * time.Hour

// GenerateToken creates a signed identity token for uid, valid for ttl
// from now. Every token gets a fresh jti.
func GenerateToken(uid, email, secret string, now time.Time, ttl time.Duration) (string, *Claims, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	claims := &Claims{
		UID:   uid,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ParseToken validates a JWT string and returns the embedded claims.
// It rejects tokens with:
//   - wrong or missing signature
//   - expired tokens (ExpiresAt in the past)
//   - unexpected signing algorithm (algorithm confusion attack prevention)
//   - no uid or no jti
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		// Guard against "alg:none" or RS256 tokens being passed to an HS256 server.
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UID == "" || claims.ID == "" {
		return nil, errors.New("token is missing uid or jti")
	}
	return claims, nil
}
