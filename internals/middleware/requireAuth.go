package middleware

import (
	"errors"
	"net/http"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/tokens"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Context keys under which the authenticated user and the session jti are
// stored for handlers downstream.
const (
	UserKey = "user"
	JTIKey  = "jti"
)

// RequireAuth admits only requests carrying a valid access token for an
// active account. Everything else is a hard 401; recovering an expired
// session is the client's job via the refresh endpoint.
func RequireAuth(tm *tokens.Manager, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, jti, err := authenticate(c, tm, db)
		if err != nil {
			c.AbortWithStatusJSON(apperrors.Status(err), gin.H{
				"error": err.Error(),
				"code":  apperrors.Code(err),
			})
			return
		}
		c.Set(UserKey, user)
		c.Set(JTIKey, jti)
		c.Next()
	}
}

// OptionalAuth attaches the user when a valid session is present and lets
// the request through anonymously otherwise. An expired access token gets
// one recovery attempt through the refresh token before falling back to
// anonymous.
func OptionalAuth(tm *tokens.Manager, db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, jti, err := authenticate(c, tm, db)
		if err != nil && errors.Is(err, tokens.ErrExpired) {
			user, jti = recoverSession(c, tm, db)
		}
		if user != nil {
			c.Set(UserKey, user)
			c.Set(JTIKey, jti)
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, tm *tokens.Manager, db *gorm.DB) (*models.User, string, error) {
	tokenStr, err := c.Cookie(tokens.AccessCookie)
	if err != nil || tokenStr == "" {
		return nil, "", tokens.ErrInvalid
	}

	claims, err := tm.VerifyAccess(tokenStr)
	if err != nil {
		return nil, "", err
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, "", err
	}

	var user models.User
	if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", tokens.ErrInvalid
		}
		return nil, "", apperrors.ErrInternal
	}
	if !user.IsActive {
		return nil, "", apperrors.ErrForbidden
	}

	return &user, claims.ID, nil
}

// recoverSession rotates the refresh token to mint a fresh session. Any
// failure degrades to anonymous rather than surfacing an error.
func recoverSession(c *gin.Context, tm *tokens.Manager, db *gorm.DB) (*models.User, string) {
	refresh, err := c.Cookie(tokens.RefreshCookie)
	if err != nil || refresh == "" {
		return nil, ""
	}

	pair, userID, err := tm.Rotate(c.Request.Context(), refresh)
	if err != nil {
		return nil, ""
	}

	var user models.User
	if err := db.WithContext(c.Request.Context()).First(&user, userID).Error; err != nil {
		return nil, ""
	}
	if !user.IsActive {
		return nil, ""
	}

	tm.SetSessionCookies(c, pair)
	return &user, pair.JTI
}

// CurrentUser fetches the authenticated user a middleware stored on the
// context; the bool mirrors map lookup semantics.
func CurrentUser(c *gin.Context) (*models.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*models.User)
	return user, ok
}

// SessionJTI returns the jti of the session the request authenticated with.
func SessionJTI(c *gin.Context) string {
	v, ok := c.Get(JTIKey)
	if !ok {
		return ""
	}
	jti, _ := v.(string)
	return jti
}

// MustUser is CurrentUser for handlers behind RequireAuth, where absence is
// a programming error surfaced as a 500.
func MustUser(c *gin.Context) (*models.User, bool) {
	user, ok := CurrentUser(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "user missing from request context",
			"code":  apperrors.Code(apperrors.ErrInternal),
		})
		return nil, false
	}
	return user, true
}
