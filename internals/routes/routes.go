package routes

import (
	"github.com/AntonyShaga/booking-notes-chat/internals/config"
	"github.com/AntonyShaga/booking-notes-chat/internals/controllers"
	"github.com/AntonyShaga/booking-notes-chat/internals/middleware"
	"github.com/AntonyShaga/booking-notes-chat/internals/oauth"
	"github.com/AntonyShaga/booking-notes-chat/internals/ratelimit"
	"github.com/AntonyShaga/booking-notes-chat/internals/tokens"
	"github.com/AntonyShaga/booking-notes-chat/internals/twofactor"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// SetupRouter wires the full dependency graph and mounts the routes. Every
// collaborator is constructed here and handed down; nothing reaches for
// package globals.
func SetupRouter(cfg *config.Config, db *gorm.DB, redisClient redis.UniversalClient, mailer utils.Mailer) (*gin.Engine, error) {
	tokenManager, err := tokens.NewManager(db, cfg.Cookie, cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(redisClient)
	pending := twofactor.NewPendingStore(redisClient)
	totp := &twofactor.TOTPProvider{Issuer: cfg.AppName}
	twoFactor := twofactor.NewService(db, pending, totp, limiter, mailer, cfg.EncryptionKey)
	oauthService := oauth.NewService(db, cfg.Cookie,
		oauth.NewGoogleProvider(cfg.Google),
		oauth.NewGitHubProvider(cfg.GitHub),
	)

	ac := controllers.NewAuthController(db, tokenManager, limiter, twoFactor, oauthService, mailer, cfg.AppURL)

	r := gin.Default()
	requireAuth := middleware.RequireAuth(tokenManager, db)

	auth := r.Group("/auth")
	{
		auth.POST("/register", ac.Register)
		auth.POST("/login", ac.Login)
		auth.POST("/logout", ac.Logout)
		auth.POST("/refresh", ac.Refresh)
		auth.GET("/me", requireAuth, ac.Me)

		auth.GET("/verify-email", ac.VerifyEmail)
		auth.POST("/resend-verification", ac.ResendVerification)

		auth.GET("/oauth/:provider", ac.BeginOAuth)
		auth.GET("/oauth/:provider/callback", ac.OAuthCallback)

		mfa := auth.Group("/2fa")
		{
			mfa.POST("/enable", requireAuth, ac.Enable2FA)
			mfa.POST("/confirm", requireAuth, ac.Confirm2FA)
			mfa.POST("/disable", requireAuth, ac.Disable2FA)
			mfa.GET("/status", requireAuth, ac.Status2FA)

			// Pre-session endpoints for finishing a password login.
			mfa.POST("/request", ac.Request2FACode)
			mfa.POST("/verify-login", ac.VerifyLogin2FA)
		}
	}

	return r, nil
}
