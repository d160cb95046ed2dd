// Package oidc verifies third-party ID tokens presented to the auth stub by
// the "jwt" login provider.
package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/munirahkamaluddin/realm-dotnet/pkg/middleware"
)

var ErrNoSubject = errors.New("id token has no sub claim")

// Verifier wraps the OIDC provider and token verifier
type Verifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewVerifier discovers the issuer and returns a verifier for clientID.
func NewVerifier(ctx context.Context, issuer, clientID string) (*Verifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider: %w", err)
	}
	return &Verifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// Verify checks signature, issuer, audience and expiry of raw.
func (v *Verifier) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	return idToken, nil
}

// Subject verifies raw with ver and returns its sub claim.
func Subject(ctx context.Context, ver middleware.Verifier, raw string) (string, error) {
	tok, err := ver.Verify(ctx, raw)
	if err != nil {
		return "", err
	}
	var claims struct {
		Sub string `json:"sub"`
	}
	if err := tok.Claims(&claims); err != nil {
		return "", err
	}
	if claims.Sub == "" {
		return "", ErrNoSubject
	}
	return claims.Sub, nil
}
