// Package auth manages the signed-in identity of the terminal user.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/ayaxan7/betTermux/internal/logging"
)

// ErrNotLoggedIn is returned when no identity is available.
var ErrNotLoggedIn = errors.New("not logged in")

// Claims is the subset of ID-token claims the terminal uses.
type Claims struct {
	UserID    string
	Email     string
	Name      string
	ExpiresAt time.Time
}

// ParseUnverified extracts claims from an ID token without checking its
// signature. The backend verifies every request; this only identifies the user.
func ParseUnverified(token string) (*Claims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parse id token: %w", err)
	}

	out := &Claims{
		UserID: stringClaim(claims, "user_id"),
		Email:  stringClaim(claims, "email"),
		Name:   stringClaim(claims, "name"),
	}
	if out.UserID == "" {
		out.UserID = stringClaim(claims, "sub")
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if out.UserID == "" {
		return nil, fmt.Errorf("id token has no user_id or sub claim")
	}
	return out, nil
}

func stringClaim(claims jwt.MapClaims, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

// Verifier checks ID-token signatures against an OIDC issuer.
type Verifier struct {
	verifier *oidc.IDTokenVerifier
	issuer   string
}

// NewVerifier discovers the issuer's keys.
// Returns nil if issuerURL is empty (verification disabled).
func NewVerifier(ctx context.Context, issuerURL, clientID string) (*Verifier, error) {
	if issuerURL == "" {
		return nil, nil
	}

	provider, err := oidc.NewProvider(ctx, issuerURL)
	if err != nil {
		return nil, fmt.Errorf("oidc provider init: %w", err)
	}

	cfg := &oidc.Config{ClientID: clientID}
	if clientID == "" {
		cfg.SkipClientIDCheck = true
	}

	logging.L().Debug("OIDC verifier initialized",
		zap.String("issuer", issuerURL),
		zap.String("client_id", clientID))

	return &Verifier{verifier: provider.Verifier(cfg), issuer: issuerURL}, nil
}

// Verify checks the token signature and expiry and returns its claims.
func (v *Verifier) Verify(ctx context.Context, token string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	var std struct {
		UserID string `json:"user_id"`
		Email  string `json:"email"`
		Name   string `json:"name"`
	}
	if err := idToken.Claims(&std); err != nil {
		return nil, fmt.Errorf("parse oidc claims: %w", err)
	}

	uid := std.UserID
	if uid == "" {
		uid = idToken.Subject
	}
	return &Claims{
		UserID:    uid,
		Email:     std.Email,
		Name:      std.Name,
		ExpiresAt: idToken.Expiry,
	}, nil
}
