package oauth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

func newTestService() *Service {
	return NewService(nil, config.CookieConfig{},
		NewGoogleProvider(config.OAuthProvider{ClientID: "client-id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}),
		NewGitHubProvider(config.OAuthProvider{ClientID: "gh-id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"}),
	)
}

func callbackContext(t *testing.T, stateCookie, verifierCookie string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req := httptest.NewRequest(http.MethodGet, "/auth/oauth/google/callback", nil)
	if stateCookie != "" {
		req.AddCookie(&http.Cookie{Name: StateCookie, Value: stateCookie})
	}
	if verifierCookie != "" {
		req.AddCookie(&http.Cookie{Name: VerifierCookie, Value: verifierCookie})
	}
	c.Request = req
	return c, w
}

func TestBeginParksStateAndVerifier(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := newTestService()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/auth/oauth/google", nil)

	url, err := svc.Begin(c, "google")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(url, "state=") || !strings.Contains(url, "code_challenge=") {
		t.Errorf("consent URL missing state or PKCE challenge: %s", url)
	}

	cookies := w.Result().Cookies()
	names := map[string]bool{}
	for _, ck := range cookies {
		names[ck.Name] = true
		if !ck.HttpOnly {
			t.Errorf("cookie %s is not HttpOnly", ck.Name)
		}
	}
	if !names[StateCookie] || !names[VerifierCookie] {
		t.Errorf("got cookies %v, want state and verifier parked", names)
	}
}

func TestCompleteRejectsUnknownProvider(t *testing.T) {
	svc := newTestService()
	c, _ := callbackContext(t, "s", "v")
	if _, err := svc.Complete(c, "gitlab", "s", "code"); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestCompleteRejectsStateMismatch(t *testing.T) {
	svc := newTestService()
	c, _ := callbackContext(t, "expected", "verifier")
	// The check fires before any token exchange: no network needed.
	if _, err := svc.Complete(c, "google", "forged", "code"); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("got %v, want bad request", err)
	}
}

func TestCompleteClearsCookiesOnFailure(t *testing.T) {
	svc := newTestService()
	c, w := callbackContext(t, "expected", "verifier")
	if _, err := svc.Complete(c, "google", "forged", "code"); err == nil {
		t.Fatal("expected state mismatch")
	}

	// The parked handshake cookies are single use and die with the
	// callback even when it fails.
	expired := map[string]bool{}
	for _, ck := range w.Result().Cookies() {
		if ck.MaxAge < 0 {
			expired[ck.Name] = true
		}
	}
	if !expired[StateCookie] || !expired[VerifierCookie] {
		t.Errorf("got expired cookies %v, want state and verifier cleared", expired)
	}
}

func TestCompleteRejectsMissingState(t *testing.T) {
	svc := newTestService()
	c, _ := callbackContext(t, "", "verifier")
	if _, err := svc.Complete(c, "google", "anything", "code"); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("got %v, want bad request", err)
	}
}

func TestCompleteRejectsMissingVerifier(t *testing.T) {
	svc := newTestService()
	c, _ := callbackContext(t, "state", "")
	if _, err := svc.Complete(c, "google", "state", "code"); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("got %v, want bad request", err)
	}
}

func TestCompleteRejectsMissingCode(t *testing.T) {
	svc := newTestService()
	c, _ := callbackContext(t, "state", "verifier")
	if _, err := svc.Complete(c, "google", "state", ""); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("got %v, want bad request", err)
	}
}

func googleToken(t *testing.T, claims jwt.MapClaims) *oauth2.Token {
	t.Helper()
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("upstream"))
	if err != nil {
		t.Fatal(err)
	}
	return (&oauth2.Token{AccessToken: "at"}).WithExtra(map[string]interface{}{"id_token": raw})
}

func TestGoogleIdentity(t *testing.T) {
	p := NewGoogleProvider(config.OAuthProvider{ClientID: "client-id"})
	token := googleToken(t, jwt.MapClaims{
		"aud":            "client-id",
		"iss":            "https://accounts.google.com",
		"sub":            "g-123",
		"email":          "user@example.com",
		"email_verified": true,
		"name":           "Some User",
		"picture":        "https://example.com/p.png",
		"exp":            time.Now().Add(time.Hour).Unix(),
	})

	identity, err := p.Identity(context.Background(), token)
	if err != nil {
		t.Fatal(err)
	}
	if identity.ProviderID != "g-123" || identity.Email != "user@example.com" {
		t.Errorf("got %+v", identity)
	}
	if !identity.EmailVerified {
		t.Error("email_verified claim dropped")
	}
}

func TestGoogleIdentityRejectsWrongAudience(t *testing.T) {
	p := NewGoogleProvider(config.OAuthProvider{ClientID: "client-id"})
	token := googleToken(t, jwt.MapClaims{
		"aud":   "someone-else",
		"iss":   "https://accounts.google.com",
		"sub":   "g-123",
		"email": "user@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	if _, err := p.Identity(context.Background(), token); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("got %v, want unauthorized", err)
	}
}

func TestGoogleIdentityRejectsExpired(t *testing.T) {
	p := NewGoogleProvider(config.OAuthProvider{ClientID: "client-id"})
	token := googleToken(t, jwt.MapClaims{
		"aud":   "client-id",
		"iss":   "https://accounts.google.com",
		"sub":   "g-123",
		"email": "user@example.com",
		"exp":   time.Now().Add(-time.Hour).Unix(),
	})
	if _, err := p.Identity(context.Background(), token); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("got %v, want unauthorized", err)
	}
}

func TestGoogleIdentityRejectsMissingIDToken(t *testing.T) {
	p := NewGoogleProvider(config.OAuthProvider{ClientID: "client-id"})
	if _, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "at"}); !errors.Is(err, apperrors.ErrUnauthorized) {
		t.Fatalf("got %v, want unauthorized", err)
	}
}

func TestGitHubIdentityFallsBackToPrimaryEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/user":
			w.Write([]byte(`{"id": 77, "login": "octo", "name": "", "email": "", "avatar_url": "https://example.com/a.png"}`))
		case "/user/emails":
			w.Write([]byte(`[
				{"email": "secondary@example.com", "primary": false, "verified": true},
				{"email": "primary@example.com", "primary": true, "verified": true}
			]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	p := NewGitHubProvider(config.OAuthProvider{ClientID: "gh-id"})
	p.apiBase = server.URL

	identity, err := p.Identity(context.Background(), &oauth2.Token{AccessToken: "at"})
	if err != nil {
		t.Fatal(err)
	}
	if identity.Email != "primary@example.com" {
		t.Errorf("got email %q, want the verified primary", identity.Email)
	}
	if identity.ProviderID != "77" {
		t.Errorf("got provider id %q, want 77", identity.ProviderID)
	}
	if identity.Name != "octo" {
		t.Errorf("got name %q, want login fallback", identity.Name)
	}
}
