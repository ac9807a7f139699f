package controllers

import (
	"fmt"
	"net/http"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/middleware"
	"github.com/AntonyShaga/booking-notes-chat/internals/tokens"

	"github.com/gin-gonic/gin"
)

// Refresh rotates the refresh token: the presented jti is atomically swapped
// for a fresh one and a new cookie pair is issued. A token that lost a
// concurrent rotation race gets a conflict, not a silent second session.
func (ac *AuthController) Refresh(c *gin.Context) {
	refresh, err := c.Cookie(tokens.RefreshCookie)
	if err != nil || refresh == "" {
		respondError(c, fmt.Errorf("%w: missing refresh token", apperrors.ErrBadRequest))
		return
	}

	pair, _, err := ac.Tokens.Rotate(c.Request.Context(), refresh)
	if err != nil {
		respondError(c, err)
		return
	}

	ac.Tokens.SetSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{"message": "session refreshed"})
}

// Me returns the authenticated account. Doubles as the session validation
// endpoint: a 200 means the access token still holds.
func (ac *AuthController) Me(c *gin.Context) {
	user, ok := middleware.MustUser(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": userSummary(user)})
}
