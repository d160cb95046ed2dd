// Package tokens mints and verifies the access tokens issued by the stub
// auth server.
package tokens

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/middleware"
)

// Claims carried by an access token. Path is the resource path the token grants.
type Claims struct {
	Path string `json:"path"`
	jwt.RegisteredClaims
}

// GenerateAccessToken creates a signed HS256 access token for identity and path.
func GenerateAccessToken(secret, identity, path string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		Path: path,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := jt.SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	// the exp claim has second resolution
	return s, exp.Truncate(time.Second), nil
}

// ParseAccessToken validates signature, algorithm and expiry.
func ParseAccessToken(secret, raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return &claims, nil
}

// NewRefreshToken returns an opaque random refresh token.
func NewRefreshToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Verifier adapts ParseAccessToken to the bearer middleware.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier { return &Verifier{secret: secret} }

func (v *Verifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	c, err := ParseAccessToken(v.secret, raw)
	if err != nil {
		return nil, err
	}
	return verifiedToken{claims: c}, nil
}

type verifiedToken struct {
	claims *Claims
}

// Claims decodes the token claims into v through their JSON form.
func (t verifiedToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
