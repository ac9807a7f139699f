package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/config"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
)

// Short-lived cookies carrying the CSRF state and the PKCE verifier across
// the provider round-trip.
const (
	StateCookie    = "oauth_state"
	VerifierCookie = "oauth_code_verifier"

	handshakeTTL = 10 * time.Minute
)

// Identity is the provider-agnostic result of a completed handshake.
type Identity struct {
	Provider      string
	ProviderID    string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// Provider is one configured upstream identity provider.
type Provider interface {
	Name() string
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	Identity(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// Service drives the authorization-code handshake for the registered
// providers and resolves identities to local accounts.
type Service struct {
	DB           *gorm.DB
	CookieConfig config.CookieConfig

	providers map[string]Provider
}

func NewService(db *gorm.DB, cookieCfg config.CookieConfig, providers ...Provider) *Service {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	return &Service{DB: db, CookieConfig: cookieCfg, providers: byName}
}

func (s *Service) provider(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown OAuth provider %q", apperrors.ErrNotFound, name)
	}
	return p, nil
}

// Begin starts the handshake: mints a state value and a PKCE verifier,
// parks both in short-lived cookies, and returns the provider's consent URL.
func (s *Service) Begin(c *gin.Context, providerName string) (string, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return "", err
	}

	state := uuid.New().String()
	verifier := oauth2.GenerateVerifier()

	maxAge := int(handshakeTTL / time.Second)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StateCookie, state, maxAge, "/", s.CookieConfig.Domain, s.CookieConfig.IsSecure, true)
	c.SetCookie(VerifierCookie, verifier, maxAge, "/", s.CookieConfig.Domain, s.CookieConfig.IsSecure, true)

	return p.AuthCodeURL(state, verifier), nil
}

// Complete finishes the handshake on the callback: checks the state echo
// against the parked cookie before any token exchange, exchanges the code
// with the parked verifier, fetches the identity, and resolves it to a
// local account.
func (s *Service) Complete(c *gin.Context, providerName, state, code string) (*models.User, error) {
	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	parkedState, stateErr := c.Cookie(StateCookie)
	verifier, verifierErr := c.Cookie(VerifierCookie)

	// Single use: the parked values are dead the moment the callback runs,
	// whether or not the handshake checks out.
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(StateCookie, "", -1, "/", s.CookieConfig.Domain, s.CookieConfig.IsSecure, true)
	c.SetCookie(VerifierCookie, "", -1, "/", s.CookieConfig.Domain, s.CookieConfig.IsSecure, true)

	if stateErr != nil || parkedState == "" || parkedState != state {
		return nil, fmt.Errorf("%w: OAuth state mismatch", apperrors.ErrBadRequest)
	}
	if verifierErr != nil || verifier == "" {
		return nil, fmt.Errorf("%w: missing PKCE verifier", apperrors.ErrBadRequest)
	}

	if code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", apperrors.ErrBadRequest)
	}

	token, err := p.Exchange(c.Request.Context(), code, verifier)
	if err != nil {
		return nil, fmt.Errorf("%w: exchanging authorization code: %v", apperrors.ErrUnauthorized, err)
	}

	identity, err := p.Identity(c.Request.Context(), token)
	if err != nil {
		return nil, err
	}

	return s.resolveUser(c.Request.Context(), identity)
}

// resolveUser maps a provider identity to a local account: match on the
// provider ID first, then link by email, then create. Provider-asserted
// emails count as verified, so linked and created accounts skip the email
// verification loop.
func (s *Service) resolveUser(ctx context.Context, identity *Identity) (*models.User, error) {
	if identity.Email == "" {
		return nil, fmt.Errorf("%w: provider returned no email address", apperrors.ErrBadRequest)
	}

	column, err := providerIDColumn(identity.Provider)
	if err != nil {
		return nil, err
	}

	var user models.User
	err = s.DB.WithContext(ctx).Where(column+" = ?", identity.ProviderID).First(&user).Error
	if err == nil {
		return s.refreshProfile(ctx, &user, identity)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}

	err = s.DB.WithContext(ctx).Where("email = ?", identity.Email).First(&user).Error
	if err == nil {
		updates := map[string]interface{}{
			column:           identity.ProviderID,
			"email_verified": true,
		}
		if user.FullName == "" && identity.Name != "" {
			updates["full_name"] = identity.Name
		}
		if user.Picture == "" && identity.Picture != "" {
			updates["picture"] = identity.Picture
		}
		if err := s.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
		}
		return s.reload(ctx, user.ID)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}

	user = models.User{
		Email:         identity.Email,
		EmailVerified: true,
		IsActive:      true,
		FullName:      identity.Name,
		Picture:       identity.Picture,
	}
	switch identity.Provider {
	case "google":
		user.GoogleID = &identity.ProviderID
	case "github":
		user.GitHubID = &identity.ProviderID
	}
	if err := s.DB.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	return &user, nil
}

func (s *Service) refreshProfile(ctx context.Context, user *models.User, identity *Identity) (*models.User, error) {
	updates := map[string]interface{}{}
	if user.FullName == "" && identity.Name != "" {
		updates["full_name"] = identity.Name
	}
	if user.Picture == "" && identity.Picture != "" {
		updates["picture"] = identity.Picture
	}
	if len(updates) > 0 {
		if err := s.DB.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
		}
		return s.reload(ctx, user.ID)
	}
	return user, nil
}

func (s *Service) reload(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	return &user, nil
}

func providerIDColumn(provider string) (string, error) {
	switch provider {
	case "google":
		return "google_id", nil
	case "github":
		return "github_id", nil
	}
	return "", fmt.Errorf("%w: unknown OAuth provider %q", apperrors.ErrNotFound, provider)
}
