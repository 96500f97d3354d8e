// Package auth verifies the identity tokens the upstream authority issues
// (HS256 JWTs carrying a player_id claim) and can mint them for the dev
// bootstrap endpoint.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// ErrUnauthenticated is returned when no valid identity token is present.
var ErrUnauthenticated = errors.New("unauthenticated")

// IssueToken mints an HS256 token for playerID, valid for ttl.
func IssueToken(playerID, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"player_id": playerID,
		"exp":       time.Now().Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// VerifyToken validates an HS256 token and returns the player identity.
func VerifyToken(token, secret string) (string, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %s", t.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrUnauthenticated
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrUnauthenticated
	}
	playerID, ok := claims["player_id"].(string)
	if !ok || playerID == "" {
		return "", ErrUnauthenticated
	}
	return playerID, nil
}

// FromRequest resolves the verified player identity for an HTTP request:
// Authorization bearer header first, then a token query parameter (browser
// WebSocket clients cannot set headers on the upgrade request).
func FromRequest(r *http.Request, secret string) (string, error) {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return VerifyToken(strings.TrimPrefix(h, "Bearer "), secret)
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return VerifyToken(t, secret)
	}
	return "", ErrUnauthenticated
}
