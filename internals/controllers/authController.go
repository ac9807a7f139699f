package controllers

import (
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/oauth"
	"github.com/AntonyShaga/booking-notes-chat/internals/ratelimit"
	"github.com/AntonyShaga/booking-notes-chat/internals/tokens"
	"github.com/AntonyShaga/booking-notes-chat/internals/twofactor"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Credential endpoints share a small fixed window per client IP; resending
// the verification mail has a much longer per-account window.
const (
	credentialRateMax    = 5
	credentialRateWindow = 10 * time.Second

	resendRateMax    = 3
	resendRateWindow = time.Hour
)

// AuthController carries the collaborators the HTTP handlers need. All
// dependencies arrive through the constructor; handlers hold no package
// state.
type AuthController struct {
	DB        *gorm.DB
	Tokens    *tokens.Manager
	Limiter   *ratelimit.Limiter
	TwoFactor *twofactor.Service
	OAuth     *oauth.Service
	Mailer    utils.Mailer

	AppURL string
}

func NewAuthController(db *gorm.DB, tm *tokens.Manager, limiter *ratelimit.Limiter, tf *twofactor.Service, oa *oauth.Service, mailer utils.Mailer, appURL string) *AuthController {
	return &AuthController{
		DB:        db,
		Tokens:    tm,
		Limiter:   limiter,
		TwoFactor: tf,
		OAuth:     oa,
		Mailer:    mailer,
		AppURL:    appURL,
	}
}

// respondError maps an error to its HTTP status and machine code. Rate
// limit errors additionally carry the seconds until the window resets.
func respondError(c *gin.Context, err error) {
	payload := gin.H{
		"error": err.Error(),
		"code":  apperrors.Code(err),
	}
	if retryAfter := apperrors.RetryAfter(err); retryAfter > 0 {
		payload["retryAfter"] = retryAfter
	}
	c.JSON(apperrors.Status(err), payload)
}

// userSummary is the account shape returned to clients; secrets and
// session bookkeeping never leave the server.
func userSummary(user *models.User) gin.H {
	return gin.H{
		"id":               user.ID,
		"email":            user.Email,
		"emailVerified":    user.EmailVerified,
		"twoFactorEnabled": user.TwoFactorEnabled,
		"fullName":         user.FullName,
		"picture":          user.Picture,
	}
}
