package oauth

import (
	"context"
	"fmt"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/config"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// GoogleProvider authenticates users via Google's OpenID Connect flow. The
// identity comes from the id_token minted alongside the access token; its
// claims are checked for audience, issuer, and expiry. The token arrives
// over the TLS channel of the code exchange, so the claims checks guard
// against misrouted tokens rather than forged ones.
type GoogleProvider struct {
	config   *oauth2.Config
	clientID string
}

func NewGoogleProvider(cfg config.OAuthProvider) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     google.Endpoint,
		},
		clientID: cfg.ClientID,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier))
}

func (p *GoogleProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

type googleIDClaims struct {
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
	jwt.RegisteredClaims
}

func (p *GoogleProvider) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	raw, ok := token.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: Google response is missing the id_token", apperrors.ErrUnauthorized)
	}

	claims := &googleIDClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: malformed id_token", apperrors.ErrUnauthorized)
	}

	if len(claims.Audience) == 0 || claims.Audience[0] != p.clientID {
		return nil, fmt.Errorf("%w: id_token audience mismatch", apperrors.ErrUnauthorized)
	}
	if claims.Issuer != "https://accounts.google.com" && claims.Issuer != "accounts.google.com" {
		return nil, fmt.Errorf("%w: id_token issuer mismatch", apperrors.ErrUnauthorized)
	}
	if claims.ExpiresAt == nil || claims.ExpiresAt.Before(time.Now()) {
		return nil, fmt.Errorf("%w: id_token expired", apperrors.ErrUnauthorized)
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: id_token is missing identity claims", apperrors.ErrUnauthorized)
	}

	return &Identity{
		Provider:      p.Name(),
		ProviderID:    claims.Subject,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}
