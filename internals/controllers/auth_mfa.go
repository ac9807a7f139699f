package controllers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/middleware"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/twofactor"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Enable2FA stages a second-factor enrollment for the chosen method. QR and
// manual return provisioning material for an authenticator app; email sends
// a one-time code. Nothing is committed until Confirm2FA.
func (ac *AuthController) Enable2FA(c *gin.Context) {
	user, ok := middleware.MustUser(c)
	if !ok {
		return
	}

	var req struct {
		Method string `json:"method" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: method is required", apperrors.ErrBadRequest))
		return
	}
	method, err := twofactor.ParseMethod(req.Method)
	if err != nil {
		respondError(c, err)
		return
	}

	challenge, err := ac.TwoFactor.Enable(c.Request.Context(), user, method)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, challenge)
}

// Confirm2FA completes a staged enrollment with the code the user obtained
// through the chosen method.
func (ac *AuthController) Confirm2FA(c *gin.Context) {
	user, ok := middleware.MustUser(c)
	if !ok {
		return
	}

	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: code is required", apperrors.ErrBadRequest))
		return
	}

	if err := ac.TwoFactor.Confirm(c.Request.Context(), user, req.Code); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "two-factor authentication enabled"})
}

// Disable2FA turns the second factor off.
func (ac *AuthController) Disable2FA(c *gin.Context) {
	user, ok := middleware.MustUser(c)
	if !ok {
		return
	}

	if err := ac.TwoFactor.Disable(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "two-factor authentication disabled"})
}

// Status2FA reports whether the second factor is on, and any staged
// enrollment awaiting confirmation.
func (ac *AuthController) Status2FA(c *gin.Context) {
	user, ok := middleware.MustUser(c)
	if !ok {
		return
	}

	status, err := ac.TwoFactor.CurrentStatus(c.Request.Context(), user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// The login-side endpoints run before any session exists, so they identify
// the account by the userId the login response handed back. Both require a
// live half-finished login, which the password step created, so they cannot
// be used to probe arbitrary accounts.

type loginChallengeRequest struct {
	UserID uint   `json:"userId" binding:"required"`
	Code   string `json:"code"`
}

func (ac *AuthController) pendingLoginUser(c *gin.Context, id uint) (*models.User, bool) {
	var user models.User
	err := ac.DB.WithContext(c.Request.Context()).First(&user, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, fmt.Errorf("%w: no 2FA verification in progress", apperrors.ErrUnauthorized))
			return nil, false
		}
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return nil, false
	}
	return &user, true
}

// Request2FACode emails a one-time code for a half-finished login.
func (ac *AuthController) Request2FACode(c *gin.Context) {
	var req loginChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: userId is required", apperrors.ErrBadRequest))
		return
	}

	user, ok := ac.pendingLoginUser(c, req.UserID)
	if !ok {
		return
	}
	if err := ac.TwoFactor.SendLoginCode(c.Request.Context(), user); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "verification code sent"})
}

// VerifyLogin2FA checks the second-factor code and, on success, opens the
// session the password step left pending.
func (ac *AuthController) VerifyLogin2FA(c *gin.Context) {
	var req loginChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Code == "" {
		respondError(c, fmt.Errorf("%w: userId and code are required", apperrors.ErrBadRequest))
		return
	}

	user, ok := ac.pendingLoginUser(c, req.UserID)
	if !ok {
		return
	}
	if err := ac.TwoFactor.VerifyLogin(c.Request.Context(), user, req.Code); err != nil {
		respondError(c, err)
		return
	}

	ac.openSession(c, user, false)
}
