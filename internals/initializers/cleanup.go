package initializers

import (
	"log"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/models"

	"gorm.io/gorm"
)

// StartVerificationCleanup runs a background janitor that keeps the user
// table from accumulating dead verification state.
func StartVerificationCleanup(db *gorm.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		for range ticker.C {
			clearedTokens, removedUsers := sweepVerificationState(db, time.Now())
			if clearedTokens > 0 || removedUsers > 0 {
				log.Printf("Janitor: cleared %d expired verification tokens, removed %d stale unverified accounts",
					clearedTokens, removedUsers)
			}
		}
	}()
}

// sweepVerificationState performs one janitor pass.
func sweepVerificationState(db *gorm.DB, now time.Time) (clearedTokens, removedUsers int64) {
	// 1. Null out verification tokens past their expiry. The token itself is
	// single-use; once expired it can never be redeemed, so keeping it only
	// risks unique-index churn on resend.
	tokenResult := db.Model(&models.User{}).
		Where("verification_token IS NOT NULL AND verification_token_expires < ?", now).
		Updates(map[string]interface{}{
			"verification_token":         nil,
			"verification_token_expires": nil,
		})

	// 2. Purge unverified credential accounts older than 24 hours. Unscoped()
	// performs a hard delete, bypassing gorm's soft-delete column, so the
	// email becomes available for a fresh registration. Provider-linked
	// accounts are never purged.
	userResult := db.Unscoped().
		Where("email_verified = ? AND password <> '' AND google_id IS NULL AND github_id IS NULL AND created_at < ?",
			false, now.Add(-24*time.Hour)).
		Delete(&models.User{})

	return tokenResult.RowsAffected, userResult.RowsAffected
}
