package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/config"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/tokens"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if err := db.AutoMigrate(&models.User{}); err != nil {
		t.Fatalf("migrating: %v", err)
	}
	return db
}

func newManager(t *testing.T, db *gorm.DB, accessTTL time.Duration) *tokens.Manager {
	t.Helper()
	m, err := tokens.NewManager(db, config.CookieConfig{HttpOnly: true}, "test-secret", accessTTL, 7*24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func whoAmI(c *gin.Context) {
	if user, ok := CurrentUser(c); ok {
		c.JSON(http.StatusOK, gin.H{"email": user.Email})
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": "anonymous"})
}

func get(t *testing.T, router *gin.Engine, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRequireAuthRejectsMissingCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	m := newManager(t, db, 15*time.Minute)

	router := gin.New()
	router.GET("/whoami", RequireAuth(m, db), whoAmI)

	if w := get(t, router); w.Code != http.StatusUnauthorized {
		t.Fatalf("got %d, want 401", w.Code)
	}
}

func TestRequireAuthRejectsInactiveAccount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	m := newManager(t, db, 15*time.Minute)

	user := &models.User{Email: "user@example.com", IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatal(err)
	}
	pair, err := m.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Model(user).Update("is_active", false).Error; err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	router.GET("/whoami", RequireAuth(m, db), whoAmI)

	w := get(t, router, &http.Cookie{Name: tokens.AccessCookie, Value: pair.AccessToken})
	if w.Code != http.StatusForbidden {
		t.Fatalf("got %d, want 403", w.Code)
	}
}

func TestOptionalAuthDegradesToAnonymous(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	m := newManager(t, db, 15*time.Minute)

	router := gin.New()
	router.GET("/whoami", OptionalAuth(m, db), whoAmI)

	w := get(t, router)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != `{"email":"anonymous"}` {
		t.Errorf("got body %s, want anonymous", body)
	}
}

func TestOptionalAuthRecoversExpiredSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)

	// A manager whose access tokens are born expired forces the recovery
	// path; the refresh token lifetime is unaffected.
	expiredIssuer := newManager(t, db, -time.Minute)

	user := &models.User{Email: "user@example.com", IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatal(err)
	}
	pair, err := expiredIssuer.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := expiredIssuer.AppendSession(context.Background(), user, pair.JTI); err != nil {
		t.Fatal(err)
	}

	serving := newManager(t, db, 15*time.Minute)
	router := gin.New()
	router.GET("/whoami", OptionalAuth(serving, db), whoAmI)

	w := get(t, router,
		&http.Cookie{Name: tokens.AccessCookie, Value: pair.AccessToken},
		&http.Cookie{Name: tokens.RefreshCookie, Value: pair.RefreshToken},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != `{"email":"user@example.com"}` {
		t.Errorf("got body %s, want the recovered user", body)
	}

	// Recovery rotated the session and reissued cookies.
	access, refresh := "", ""
	for _, ck := range w.Result().Cookies() {
		switch ck.Name {
		case tokens.AccessCookie:
			access = ck.Value
		case tokens.RefreshCookie:
			refresh = ck.Value
		}
	}
	if access == "" || refresh == "" {
		t.Fatal("recovery did not reissue session cookies")
	}
	if refresh == pair.RefreshToken {
		t.Error("recovery reused the old refresh token")
	}
}

func TestOptionalAuthAnonymousOnRevokedRefresh(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := newTestDB(t)
	expiredIssuer := newManager(t, db, -time.Minute)

	user := &models.User{Email: "user@example.com", IsActive: true}
	if err := db.Create(user).Error; err != nil {
		t.Fatal(err)
	}
	// Pair issued but never recorded: its jti is not in the active set.
	pair, err := expiredIssuer.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}

	router := gin.New()
	router.GET("/whoami", OptionalAuth(newManager(t, db, 15*time.Minute), db), whoAmI)

	w := get(t, router,
		&http.Cookie{Name: tokens.AccessCookie, Value: pair.AccessToken},
		&http.Cookie{Name: tokens.RefreshCookie, Value: pair.RefreshToken},
	)
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", w.Code)
	}
	if body := w.Body.String(); body != `{"email":"anonymous"}` {
		t.Errorf("got body %s, want anonymous", body)
	}
}
