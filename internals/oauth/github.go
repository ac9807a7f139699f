package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

const githubAPIBase = "https://api.github.com"

// GitHubProvider authenticates users against GitHub. GitHub has no id_token,
// so the identity is fetched from its REST API with the exchanged access
// token. A profile with a hidden email falls back to the verified primary
// address from the emails endpoint.
type GitHubProvider struct {
	config *oauth2.Config

	// apiBase is overridable in tests.
	apiBase string
}

func NewGitHubProvider(cfg config.OAuthProvider) *GitHubProvider {
	return &GitHubProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		apiBase: githubAPIBase,
	}
}

func (p *GitHubProvider) Name() string { return "github" }

func (p *GitHubProvider) AuthCodeURL(state, verifier string) string {
	return p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (p *GitHubProvider) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code, oauth2.VerifierOption(verifier))
}

type githubUser struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func (p *GitHubProvider) Identity(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	client := p.config.Client(ctx, token)

	var profile githubUser
	if err := p.getJSON(ctx, client, "/user", &profile); err != nil {
		return nil, err
	}

	email := profile.Email
	emailVerified := email != ""
	if email == "" {
		var emails []githubEmail
		if err := p.getJSON(ctx, client, "/user/emails", &emails); err != nil {
			return nil, err
		}
		for _, e := range emails {
			if e.Primary && e.Verified {
				email = e.Email
				emailVerified = true
				break
			}
		}
	}
	if email == "" {
		return nil, fmt.Errorf("%w: GitHub account has no verified primary email", apperrors.ErrBadRequest)
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}

	return &Identity{
		Provider:      p.Name(),
		ProviderID:    strconv.FormatInt(profile.ID, 10),
		Email:         email,
		EmailVerified: emailVerified,
		Name:          name,
		Picture:       profile.AvatarURL,
	}, nil
}

func (p *GitHubProvider) getJSON(ctx context.Context, client *http.Client, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiBase+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: calling GitHub API: %v", apperrors.ErrInternal, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: GitHub API returned %d for %s", apperrors.ErrUnauthorized, resp.StatusCode, path)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding GitHub response: %v", apperrors.ErrInternal, err)
	}
	return nil
}
