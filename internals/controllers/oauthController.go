package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"

	"github.com/gin-gonic/gin"
)

// BeginOAuth starts the provider handshake and redirects the browser to the
// provider's consent page.
func (ac *AuthController) BeginOAuth(c *gin.Context) {
	url, err := ac.OAuth.Begin(c, c.Param("provider"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// OAuthCallback finishes the handshake, opens a session for the resolved
// account, and sends the browser back to the application. A botched
// handshake (state mismatch, missing code or verifier) is a hard 400;
// upstream failures past that point send the browser back to the login
// page with an error marker, since the user is mid-redirect and has no
// client to render a JSON body. Provider-asserted identities carry a
// verified email, so the verification loop is skipped.
func (ac *AuthController) OAuthCallback(c *gin.Context) {
	provider := c.Param("provider")
	user, err := ac.OAuth.Complete(c, provider, c.Query("state"), c.Query("code"))
	if err != nil {
		if errors.Is(err, apperrors.ErrBadRequest) || errors.Is(err, apperrors.ErrNotFound) {
			respondError(c, err)
			return
		}
		log.Printf("completing %s OAuth: %v", provider, err)
		c.Redirect(http.StatusFound, fmt.Sprintf("%s/login?error=%s_auth_failed", ac.AppURL, provider))
		return
	}

	if !user.IsActive {
		respondError(c, fmt.Errorf("%w: this account is deactivated", apperrors.ErrForbidden))
		return
	}

	pair, err := ac.Tokens.IssuePair(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := ac.Tokens.AppendSession(c.Request.Context(), user, pair.JTI); err != nil {
		log.Printf("recording session for user %d: %v", user.ID, err)
	}

	ac.Tokens.SetSessionCookies(c, pair)
	c.Redirect(http.StatusFound, ac.AppURL)
}
