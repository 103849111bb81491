package auth

import (
	"context"
	"errors"
	"fmt"

	"nesavent/internal/models"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier turns a raw bearer token into the calling principal.
type Verifier interface {
	Verify(ctx context.Context, rawToken string) (models.Caller, error)
}

// OIDCVerifier validates tokens against the issuer's published keys.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, rawToken string) (models.Caller, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return models.Caller{}, fmt.Errorf("invalid token: %w", err)
	}
	var claims Claims
	if err := idToken.Claims(&claims); err != nil {
		return models.Caller{}, fmt.Errorf("failed to parse claims: %w", err)
	}
	return claims.Caller()
}

// HMACVerifier validates HS256 tokens signed with a shared secret.
type HMACVerifier struct {
	Secret []byte
}

type hmacClaims struct {
	Role        string `json:"role"`
	RealmAccess struct {
		Roles []string `json:"roles"`
	} `json:"realm_access"`
	jwt.RegisteredClaims
}

func (v *HMACVerifier) Verify(_ context.Context, rawToken string) (models.Caller, error) {
	if len(v.Secret) == 0 {
		return models.Caller{}, errors.New("jwt secret not configured")
	}
	var parsed hmacClaims
	_, err := jwt.ParseWithClaims(rawToken, &parsed, func(t *jwt.Token) (interface{}, error) {
		return v.Secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return models.Caller{}, fmt.Errorf("invalid token: %w", err)
	}

	claims := Claims{Sub: parsed.Subject, Role: parsed.Role}
	claims.RealmAccess.Roles = parsed.RealmAccess.Roles
	return claims.Caller()
}

// NewVerifier prefers OIDC when an issuer is configured.
func NewVerifier(ctx context.Context, issuer, secret string) (Verifier, error) {
	if issuer != "" {
		return NewOIDCVerifier(ctx, issuer)
	}
	if secret == "" {
		return nil, errors.New("either OIDC_ISSUER or JWT_SECRET must be set")
	}
	return &HMACVerifier{Secret: []byte(secret)}, nil
}
