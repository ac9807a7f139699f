package controllers

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/ratelimit"
	"github.com/AntonyShaga/booking-notes-chat/internals/tokens"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const verificationTokenTTL = 24 * time.Hour

type credentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// Register creates a credential account and mails a verification link. The
// account can log in only after the link is followed.
func (ac *AuthController) Register(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: email and a password of at least 8 characters are required", apperrors.ErrBadRequest))
		return
	}

	ctx := c.Request.Context()
	if err := ac.Limiter.Check(ctx, ratelimit.Keys.Signup(c.ClientIP()), credentialRateMax, credentialRateWindow); err != nil {
		respondError(c, err)
		return
	}

	var existing models.User
	err := ac.DB.WithContext(ctx).Where("email = ?", req.Email).First(&existing).Error
	if err == nil {
		respondError(c, fmt.Errorf("%w: an account with this email already exists", apperrors.ErrConflict))
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, fmt.Errorf("%w: hashing password: %v", apperrors.ErrInternal, err))
		return
	}

	token := uuid.New().String()
	expires := time.Now().Add(verificationTokenTTL)
	user := models.User{
		Email:                    req.Email,
		Password:                 string(hash),
		IsActive:                 true,
		VerificationToken:        &token,
		VerificationTokenExpires: &expires,
	}

	// The account and the verification mail stand or fall together: an
	// account whose link was never dispatched could only sit unverified
	// until the janitor purges it.
	err = ac.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
		}
		if err := ac.Mailer.Send(user.Email, utils.EmailVerify, token); err != nil {
			return fmt.Errorf("%w: sending verification email: %v", apperrors.ErrInternal, err)
		}
		return nil
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "account created, check your email to verify your address",
		"user":    userSummary(&user),
	})
}

// Login checks credentials and either opens a session or, for accounts with
// a second factor, parks the login until the code is verified. Unknown
// emails, provider-only accounts, and bad passwords each get their own
// error code; the client renders distinct guidance for each.
func (ac *AuthController) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: email and password are required", apperrors.ErrBadRequest))
		return
	}

	ctx := c.Request.Context()
	if err := ac.Limiter.Check(ctx, ratelimit.Keys.Login(c.ClientIP()), credentialRateMax, credentialRateWindow); err != nil {
		respondError(c, err)
		return
	}

	var user models.User
	if err := ac.DB.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, fmt.Errorf("%w: no account with this email", apperrors.ErrNotFound))
			return
		}
		respondError(c, fmt.Errorf("%w: %v", apperrors.ErrInternal, err))
		return
	}

	if user.Password == "" {
		// Provider-only account; there is no password to check.
		respondError(c, fmt.Errorf("%w: this account signs in through its identity provider", apperrors.ErrForbidden))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		respondError(c, fmt.Errorf("%w: invalid email or password", apperrors.ErrUnauthorized))
		return
	}

	if !user.IsActive {
		respondError(c, fmt.Errorf("%w: this account is deactivated", apperrors.ErrForbidden))
		return
	}
	if !user.EmailVerified {
		respondError(c, fmt.Errorf("%w: verify your email address before logging in", apperrors.ErrForbidden))
		return
	}

	if user.TwoFactorEnabled {
		if err := ac.TwoFactor.Pending.MarkAwaitingLogin(ctx, user.ID); err != nil {
			respondError(c, err)
			return
		}
		// No cookies yet: the session opens only after the code checks out.
		c.JSON(http.StatusOK, gin.H{
			"requires2FA": true,
			"userId":      user.ID,
			"message":     "two-factor verification required",
		})
		return
	}

	ac.openSession(c, &user, true)
}

// openSession issues the token pair, records the session, and sets cookies.
// fatalOnRecord controls whether a bookkeeping failure aborts the login or
// is merely logged; the second-factor path tolerates it because the user
// already proved two factors.
func (ac *AuthController) openSession(c *gin.Context, user *models.User, fatalOnRecord bool) {
	pair, err := ac.Tokens.IssuePair(user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := ac.Tokens.AppendSession(c.Request.Context(), user, pair.JTI); err != nil {
		if fatalOnRecord {
			respondError(c, err)
			return
		}
		log.Printf("recording session for user %d: %v", user.ID, err)
	}

	ac.Tokens.SetSessionCookies(c, pair)
	c.JSON(http.StatusOK, gin.H{
		"message": "logged in",
		"user":    userSummary(user),
	})
}

// Logout revokes the presented refresh token's jti and clears both cookies.
// It succeeds even without a valid token so a client can always reach a
// clean state.
func (ac *AuthController) Logout(c *gin.Context) {
	ctx := c.Request.Context()
	if refresh, err := c.Cookie(tokens.RefreshCookie); err == nil && refresh != "" {
		if claims, err := ac.Tokens.DecodeUnverified(refresh); err == nil {
			if userID, err := claims.UserID(); err == nil {
				if err := ac.Tokens.RemoveSession(ctx, userID, claims.ID); err != nil {
					log.Printf("revoking session for user %d: %v", userID, err)
				}
			}
		}
	}

	ac.Tokens.ClearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}
