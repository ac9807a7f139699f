package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/ratelimit"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerifyEmail confirms the mailbox behind a verification link. The token is
// single use: both token fields are cleared in the same update that flips
// the verified flag.
func (ac *AuthController) VerifyEmail(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		respondError(c, fmt.Errorf("%w: missing verification token", apperrors.ErrBadRequest))
		return
	}

	ctx := c.Request.Context()
	var user models.User
	err := ac.DB.WithContext(ctx).Where("verification_token = ?", token).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, fmt.Errorf("%w: invalid verification token", apperrors.ErrBadRequest))
			return
		}
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}

	if !user.IsActive {
		respondError(c, fmt.Errorf("%w: this account is deactivated", apperrors.ErrForbidden))
		return
	}
	if user.EmailVerified {
		// A stale link for an already-verified mailbox is harmless.
		c.JSON(http.StatusOK, gin.H{"message": "email address verified"})
		return
	}
	if user.VerificationTokenExpires == nil || user.VerificationTokenExpires.Before(time.Now()) {
		respondError(c, fmt.Errorf("%w: verification token expired, request a new one", apperrors.ErrBadRequest))
		return
	}

	err = ac.DB.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"email_verified":             true,
		"verification_token":         nil,
		"verification_token_expires": nil,
	}).Error
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "email address verified"})
}

// ResendVerification replaces the account's verification token and mails a
// fresh link. The old link stops working immediately. The endpoint is
// reachable without a session because the accounts that need it are exactly
// the ones the login gate still refuses.
func (ac *AuthController) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: email is required", apperrors.ErrBadRequest))
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if err := ac.DB.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, fmt.Errorf("%w: no account with this email", apperrors.ErrNotFound))
			return
		}
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}
	if !user.IsActive {
		respondError(c, fmt.Errorf("%w: this account is deactivated", apperrors.ErrForbidden))
		return
	}
	if user.EmailVerified {
		respondError(c, fmt.Errorf("%w: email address is already verified", apperrors.ErrBadRequest))
		return
	}
	if err := ac.Limiter.Check(ctx, ratelimit.Keys.Resend(user.ID), resendRateMax, resendRateWindow); err != nil {
		respondError(c, err)
		return
	}

	token := uuid.New().String()
	expires := time.Now().Add(verificationTokenTTL)
	err := ac.DB.WithContext(ctx).Model(&user).Updates(map[string]interface{}{
		"verification_token":         token,
		"verification_token_expires": expires,
	}).Error
	if err != nil {
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}

	if err := ac.Mailer.Send(user.Email, utils.EmailVerify, token); err != nil {
		respondError(c, fmt.Errorf("%w: sending verification email: %v", apperrors.ErrInternal, err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "verification email sent"})
}
