package tokens

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/config"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Cookie names consumed by the browser. The access cookie doubles as the
// session-hydration source; the refresh cookie only travels to the refresh
// and logout endpoints.
const (
	AccessCookie  = "token"
	RefreshCookie = "refreshToken"
)

var (
	// ErrInvalid is returned for a token with a bad signature or structure.
	ErrInvalid = fmt.Errorf("%w: invalid token", apperrors.ErrUnauthorized)
	// ErrExpired is returned for a structurally valid token past its expiry.
	ErrExpired = fmt.Errorf("%w: token expired", apperrors.ErrUnauthorized)
	// ErrRevoked is returned when a refresh token's jti is absent from the
	// user's active set. Signature validity is irrelevant: membership in the
	// persisted set is the authoritative revocation mechanism.
	ErrRevoked = fmt.Errorf("%w: refresh token revoked", apperrors.ErrUnauthorized)
)

// Claims is the signed claim set shared by access and refresh tokens.
// A pair issued together carries the same jti; only the refresh token is
// flagged IsRefresh.
type Claims struct {
	IsRefresh bool `json:"isRefresh,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim back into the store's key type.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return uint(id), nil
}

// Pair is one freshly issued access/refresh token pair and the jti binding
// them.
type Pair struct {
	AccessToken  string
	RefreshToken string
	JTI          string
}

// Manager issues, verifies, and rotates session token pairs, and owns the
// session cookies derived from them.
type Manager struct {
	DB           *gorm.DB
	CookieConfig config.CookieConfig

	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager builds a Manager. An empty signing secret is a deployment
// mistake that would make every signature forgeable-by-guess, so it is
// rejected up front.
func NewManager(db *gorm.DB, cookieCfg config.CookieConfig, jwtSecret string, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	if jwtSecret == "" {
		return nil, fmt.Errorf("%w: JWT signing secret is not set", apperrors.ErrConfiguration)
	}
	return &Manager{
		DB:           db,
		CookieConfig: cookieCfg,
		secret:       []byte(jwtSecret),
		accessTTL:    accessTTL,
		refreshTTL:   refreshTTL,
	}, nil
}

func (m *Manager) sign(userID uint, jti string, ttl time.Duration, isRefresh bool) (string, error) {
	now := time.Now()
	claims := Claims{
		IsRefresh: isRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// IssuePair mints an access/refresh pair sharing a fresh random jti. The two
// signatures are independent computations and run concurrently.
func (m *Manager) IssuePair(userID uint) (*Pair, error) {
	jti := uuid.New().String()

	type signed struct {
		token string
		err   error
	}
	refreshCh := make(chan signed, 1)
	go func() {
		token, err := m.sign(userID, jti, m.refreshTTL, true)
		refreshCh <- signed{token, err}
	}()

	access, err := m.sign(userID, jti, m.accessTTL, false)
	refresh := <-refreshCh
	if err != nil {
		return nil, fmt.Errorf("%w: signing access token: %v", apperrors.ErrInternal, err)
	}
	if refresh.err != nil {
		return nil, fmt.Errorf("%w: signing refresh token: %v", apperrors.ErrInternal, refresh.err)
	}

	return &Pair{AccessToken: access, RefreshToken: refresh.token, JTI: jti}, nil
}

// VerifyAccess checks signature and expiry of an access token.
func (m *Manager) VerifyAccess(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpired
		}
		return nil, ErrInvalid
	}
	if claims.IsRefresh {
		// A refresh token presented where an access token belongs.
		return nil, ErrInvalid
	}
	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature. Used to
// read subject/jti cheaply before the store round-trip during rotation and
// logout; never a substitute for verification.
func (m *Manager) DecodeUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims)
	if err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

// verifyIgnoringExpiry checks the signature but deliberately not the expiry:
// a refresh token stays rotatable past its nominal lifetime for as long as
// its jti remains in the active set.
func (m *Manager) verifyIgnoringExpiry(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, m.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) keyFunc(t *jwt.Token) (interface{}, error) {
	return m.secret, nil
}

// Rotate exchanges a refresh token for a fresh pair.
//
// The order is load-bearing: decode without verifying to find the user
// cheaply, confirm the jti is still a member of the persisted active set
// (the set is re-read here, not cached), then verify the signature, then
// confirm the verified claims match the decoded ones (defends against
// payload substitution when signing secrets are shared across issuers).
// The active-set swap is a compare-and-swap on the previous serialized
// list, so of two concurrent rotations with the same token exactly one
// wins; the loser gets ErrConflict instead of minting an orphan token.
func (m *Manager) Rotate(ctx context.Context, refreshToken string) (*Pair, uint, error) {
	decoded, err := m.DecodeUnverified(refreshToken)
	if err != nil || decoded.Subject == "" || decoded.ID == "" || !decoded.IsRefresh {
		return nil, 0, fmt.Errorf("%w: malformed refresh token", apperrors.ErrBadRequest)
	}
	userID, err := decoded.UserID()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: malformed refresh token", apperrors.ErrBadRequest)
	}

	var user models.User
	if err := m.DB.WithContext(ctx).
		Select("id", "active_refresh_tokens").
		First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, fmt.Errorf("%w: user not found", apperrors.ErrNotFound)
		}
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}

	previous := user.ActiveRefreshTokens
	if !previous.Contains(decoded.ID) {
		return nil, 0, ErrRevoked
	}

	verified, err := m.verifyIgnoringExpiry(refreshToken)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid refresh token signature", apperrors.ErrBadRequest)
	}
	if verified.Subject != decoded.Subject || verified.ID != decoded.ID {
		return nil, 0, fmt.Errorf("%w: token claims mismatch", apperrors.ErrUnauthorized)
	}

	pair, err := m.IssuePair(userID)
	if err != nil {
		return nil, 0, err
	}

	next := previous.Replace(decoded.ID, pair.JTI)
	result := m.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND active_refresh_tokens = ?", user.ID, previous).
		Update("active_refresh_tokens", next)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("%w: %v", apperrors.ErrInternal, result.Error)
	}
	if result.RowsAffected == 0 {
		// A concurrent rotation or logout changed the set after we read it.
		return nil, 0, fmt.Errorf("%w: refresh token already rotated", apperrors.ErrConflict)
	}

	return pair, userID, nil
}

// AppendSession records a freshly issued jti in the user's active set,
// evicting the oldest entry beyond the bound, and stamps last_login.
func (m *Manager) AppendSession(ctx context.Context, user *models.User, jti string) error {
	now := time.Now()
	next := user.ActiveRefreshTokens.Append(jti)
	err := m.DB.WithContext(ctx).Model(user).
		Updates(map[string]interface{}{
			"active_refresh_tokens": next,
			"last_login":            now,
		}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	user.ActiveRefreshTokens = next
	user.LastLogin = &now
	return nil
}

// RemoveSession drops a single jti from the user's active set, leaving
// other devices' sessions intact. Removing an absent jti is a no-op.
func (m *Manager) RemoveSession(ctx context.Context, userID uint, jti string) error {
	var user models.User
	if err := m.DB.WithContext(ctx).
		Select("id", "active_refresh_tokens").
		First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	err := m.DB.WithContext(ctx).Model(&user).
		Update("active_refresh_tokens", user.ActiveRefreshTokens.Remove(jti)).Error
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	return nil
}

// SetSessionCookies emits the pair as browser cookies with the documented
// flags: HttpOnly, Secure in production, SameSite=Lax, Path=/.
func (m *Manager) SetSessionCookies(c *gin.Context, pair *Pair) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, pair.AccessToken, int(m.accessTTL/time.Second), "/",
		m.CookieConfig.Domain, m.CookieConfig.IsSecure, m.CookieConfig.HttpOnly)
	c.SetCookie(RefreshCookie, pair.RefreshToken, int(m.refreshTTL/time.Second), "/",
		m.CookieConfig.Domain, m.CookieConfig.IsSecure, m.CookieConfig.HttpOnly)
}

// ClearSessionCookies removes both session cookies from the client.
func (m *Manager) ClearSessionCookies(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(AccessCookie, "", -1, "/", m.CookieConfig.Domain, m.CookieConfig.IsSecure, m.CookieConfig.HttpOnly)
	c.SetCookie(RefreshCookie, "", -1, "/", m.CookieConfig.Domain, m.CookieConfig.IsSecure, m.CookieConfig.HttpOnly)
}
