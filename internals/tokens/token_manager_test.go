package tokens

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/config"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"

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

func newTestManager(t *testing.T) (*Manager, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	m, err := NewManager(db, config.CookieConfig{HttpOnly: true}, "test-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("creating manager: %v", err)
	}
	return m, db
}

func TestNewManagerRejectsEmptySecret(t *testing.T) {
	_, err := NewManager(nil, config.CookieConfig{}, "", time.Minute, time.Minute)
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("got %v, want configuration error", err)
	}
}

func TestIssuePairSharesJTI(t *testing.T) {
	m, _ := newTestManager(t)

	pair, err := m.IssuePair(42)
	if err != nil {
		t.Fatal(err)
	}
	if pair.JTI == "" {
		t.Fatal("empty jti")
	}

	access, err := m.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verifying access token: %v", err)
	}
	refresh, err := m.DecodeUnverified(pair.RefreshToken)
	if err != nil {
		t.Fatalf("decoding refresh token: %v", err)
	}

	if access.ID != pair.JTI || refresh.ID != pair.JTI {
		t.Errorf("jti mismatch: pair=%s access=%s refresh=%s", pair.JTI, access.ID, refresh.ID)
	}
	if access.IsRefresh {
		t.Error("access token flagged as refresh")
	}
	if !refresh.IsRefresh {
		t.Error("refresh token not flagged as refresh")
	}
	if id, _ := access.UserID(); id != 42 {
		t.Errorf("got subject %d, want 42", id)
	}
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	m, _ := newTestManager(t)
	pair, err := m.IssuePair(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want invalid token", err)
	}
}

func TestVerifyAccessRejectsTampering(t *testing.T) {
	m, _ := newTestManager(t)
	other, err := NewManager(nil, config.CookieConfig{}, "another-secret", time.Minute, time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	pair, err := other.IssuePair(1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.VerifyAccess(pair.AccessToken); !errors.Is(err, ErrInvalid) {
		t.Fatalf("got %v, want invalid token", err)
	}
}

func seedUser(t *testing.T, db *gorm.DB, jtis ...string) *models.User {
	t.Helper()
	user := &models.User{Email: "user@example.com", IsActive: true, ActiveRefreshTokens: models.TokenList(jtis)}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("seeding user: %v", err)
	}
	return user
}

func TestRotateSwapsJTI(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()

	user := seedUser(t, db)
	pair, err := m.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AppendSession(ctx, user, pair.JTI); err != nil {
		t.Fatal(err)
	}

	next, userID, err := m.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("rotating: %v", err)
	}
	if userID != user.ID {
		t.Errorf("got user %d, want %d", userID, user.ID)
	}
	if next.JTI == pair.JTI {
		t.Error("rotation reused the jti")
	}

	var reloaded models.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.ActiveRefreshTokens.Contains(pair.JTI) {
		t.Error("old jti still active after rotation")
	}
	if !reloaded.ActiveRefreshTokens.Contains(next.JTI) {
		t.Error("new jti not recorded")
	}
}

func TestRotateRejectsReusedToken(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()

	user := seedUser(t, db)
	pair, err := m.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AppendSession(ctx, user, pair.JTI); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatal(err)
	}

	// The first rotation retired the jti; replaying the old token fails.
	if _, _, err := m.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrRevoked) {
		t.Fatalf("got %v, want revoked", err)
	}
}

func TestRotateChainMintsDistinctJTIs(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()

	user := seedUser(t, db)
	pair, err := m.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := m.AppendSession(ctx, user, pair.JTI); err != nil {
		t.Fatal(err)
	}

	seen := map[string]bool{pair.JTI: true}
	current := pair.RefreshToken
	for i := 0; i < 4; i++ {
		next, _, err := m.Rotate(ctx, current)
		if err != nil {
			t.Fatalf("rotation %d: %v", i+1, err)
		}
		if seen[next.JTI] {
			t.Fatalf("rotation %d reused jti %s", i+1, next.JTI)
		}
		seen[next.JTI] = true
		current = next.RefreshToken
	}

	var reloaded models.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatal(err)
	}
	if len(reloaded.ActiveRefreshTokens) != 1 {
		t.Errorf("got %d active tokens, want 1", len(reloaded.ActiveRefreshTokens))
	}
}

func TestRotateRejectsAccessToken(t *testing.T) {
	m, db := newTestManager(t)
	user := seedUser(t, db)
	pair, err := m.IssuePair(user.ID)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Rotate(context.Background(), pair.AccessToken); !errors.Is(err, apperrors.ErrBadRequest) {
		t.Fatalf("got %v, want bad request", err)
	}
}

func TestRotateUnknownUser(t *testing.T) {
	m, _ := newTestManager(t)
	pair, err := m.IssuePair(999)
	if err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Rotate(context.Background(), pair.RefreshToken); !errors.Is(err, apperrors.ErrNotFound) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestAppendSessionBoundsActiveSet(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()
	user := seedUser(t, db)

	var first string
	for i := 0; i < models.MaxActiveRefreshTokens+1; i++ {
		pair, err := m.IssuePair(user.ID)
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = pair.JTI
		}
		if err := m.AppendSession(ctx, user, pair.JTI); err != nil {
			t.Fatal(err)
		}
	}

	var reloaded models.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatal(err)
	}
	if len(reloaded.ActiveRefreshTokens) != models.MaxActiveRefreshTokens {
		t.Errorf("got %d active tokens, want %d", len(reloaded.ActiveRefreshTokens), models.MaxActiveRefreshTokens)
	}
	if reloaded.ActiveRefreshTokens.Contains(first) {
		t.Error("oldest session should have been evicted")
	}
	if reloaded.LastLogin == nil {
		t.Error("last login not stamped")
	}
}

func TestRemoveSession(t *testing.T) {
	m, db := newTestManager(t)
	ctx := context.Background()
	user := seedUser(t, db, "keep", "drop")

	if err := m.RemoveSession(ctx, user.ID, "drop"); err != nil {
		t.Fatal(err)
	}

	var reloaded models.User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatal(err)
	}
	if reloaded.ActiveRefreshTokens.Contains("drop") {
		t.Error("removed jti still active")
	}
	if !reloaded.ActiveRefreshTokens.Contains("keep") {
		t.Error("unrelated session was dropped")
	}
}
