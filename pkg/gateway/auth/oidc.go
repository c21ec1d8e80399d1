package auth

import (
	"context"
	"fmt"

	"github.com/sahayak-health/platform/pkg/common/models"
	"golang.org/x/oauth2"
)

// OIDCAuthenticator validates bearer tokens against an external issuer when
// the deployment delegates identity to a managed provider instead of the
// built-in JWT manager.
type OIDCAuthenticator struct {
	config *oauth2.Config
	issuer string
}

func NewOIDCAuthenticator(issuer, clientID, clientSecret string) (*OIDCAuthenticator, error) {
	if issuer == "" || clientID == "" {
		return nil, fmt.Errorf("OIDC configuration incomplete")
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:  fmt.Sprintf("%s/authorize", issuer),
			TokenURL: fmt.Sprintf("%s/token", issuer),
		},
		Scopes: []string{"openid", "profile", "roles"},
	}

	return &OIDCAuthenticator{
		config: config,
		issuer: issuer,
	}, nil
}

// ValidateToken exchanges the bearer token for userinfo claims at the
// issuer. The issuer's role claim must map onto the platform's closed role
// set or the token is rejected.
func (a *OIDCAuthenticator) ValidateToken(ctx context.Context, token string) (models.Principal, error) {
	if token == "" {
		return models.Principal{}, fmt.Errorf("token is empty")
	}

	src := a.config.TokenSource(ctx, &oauth2.Token{AccessToken: token})
	refreshed, err := src.Token()
	if err != nil {
		return models.Principal{}, fmt.Errorf("token validation failed: %w", err)
	}

	principalID, _ := refreshed.Extra("sub").(string)
	role, _ := refreshed.Extra("role").(string)
	if principalID == "" {
		return models.Principal{}, fmt.Errorf("issuer returned no subject")
	}

	principal := models.Principal{ID: principalID, Role: models.Role(role)}
	if !principal.Role.Valid() {
		return models.Principal{}, fmt.Errorf("issuer role %q not recognized", role)
	}
	return principal, nil
}
