package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Claims are issued by the external identity provider and verified here.
type Claims struct {
	Sub   string `json:"sub"`
	Email string `json:"email,omitempty"`
	Admin bool   `json:"admin,omitempty"`
	JTI   string `json:"jti"`
	Exp   int64  `json:"exp"`
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// IssueToken signs claims for a caller. The portal only verifies tokens in
// production; tests and local tooling use this to mint them.
func IssueToken(secret []byte, claims Claims) (string, error) {
	raw, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("marshal claims: %w", err)
	}
	payload := base64.RawURLEncoding.EncodeToString(raw)
	return payload + "." + sign(secret, payload), nil
}

// ParseToken verifies a "<payload>.<signature>" token and returns its claims.
// A token without sub, jti or exp is invalid; one past exp is expired.
func ParseToken(secret []byte, token string) (Claims, error) {
	payload, signature, ok := strings.Cut(token, ".")
	if !ok || strings.Contains(signature, ".") {
		return Claims{}, ErrInvalidToken
	}
	if !hmac.Equal([]byte(signature), []byte(sign(secret, payload))) {
		return Claims{}, ErrInvalidToken
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(raw, &claims); err != nil {
		return Claims{}, ErrInvalidToken
	}
	switch {
	case claims.Sub == "" || claims.JTI == "" || claims.Exp == 0:
		return Claims{}, ErrInvalidToken
	case time.Now().Unix() >= claims.Exp:
		return Claims{}, ErrExpiredToken
	}
	return claims, nil
}

// Identity converts verified claims into the caller's Identity Context.
func (c Claims) Identity() Identity {
	return Identity{CallerID: c.Sub, Email: c.Email, IsAdmin: c.Admin}
}

func sign(secret []byte, payload string) string {
	sum := hmac.New(sha256.New, secret)
	_, _ = sum.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(sum.Sum(nil))
}
