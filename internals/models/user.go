package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"
)

// MaxActiveRefreshTokens bounds the per-user session list. Inserting beyond
// the bound evicts the oldest entry (FIFO by position, not by token expiry).
const MaxActiveRefreshTokens = 5

// TokenList is the ordered set of refresh-token identifiers (jti) currently
// valid for a user. It is the authoritative revocation mechanism: a refresh
// token whose jti is absent from this list is revoked regardless of its
// signature. Stored as a JSON array in a text column.
type TokenList []string

// Value implements driver.Valuer.
func (t TokenList) Value() (driver.Value, error) {
	if t == nil {
		t = TokenList{}
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (t *TokenList) Scan(value interface{}) error {
	if value == nil {
		*t = TokenList{}
		return nil
	}
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, t)
	case string:
		return json.Unmarshal([]byte(v), t)
	default:
		return errors.New("unsupported type for TokenList")
	}
}

// Contains reports whether jti is present in the list.
func (t TokenList) Contains(jti string) bool {
	for _, id := range t {
		if id == jti {
			return true
		}
	}
	return false
}

// Append returns a new list with jti added, evicting the oldest entries so
// the result never exceeds MaxActiveRefreshTokens.
func (t TokenList) Append(jti string) TokenList {
	out := make(TokenList, 0, MaxActiveRefreshTokens)
	start := 0
	if len(t) >= MaxActiveRefreshTokens {
		start = len(t) - MaxActiveRefreshTokens + 1
	}
	out = append(out, t[start:]...)
	return append(out, jti)
}

// Remove returns a new list with jti removed. Removing an absent jti is a
// no-op.
func (t TokenList) Remove(jti string) TokenList {
	out := make(TokenList, 0, len(t))
	for _, id := range t {
		if id != jti {
			out = append(out, id)
		}
	}
	return out
}

// Replace returns a new list with oldJTI swapped for newJTI. When oldJTI is
// absent the new jti is still appended, subject to the FIFO bound.
func (t TokenList) Replace(oldJTI, newJTI string) TokenList {
	return t.Remove(oldJTI).Append(newJTI)
}

type User struct {
	gorm.Model
	Email    string `gorm:"column:email;uniqueIndex"`
	Password string `gorm:"column:password"` // bcrypt hash; empty for provider-only accounts

	// IsActive gates login entirely; a deactivated account cannot
	// authenticate through any path. EmailVerified tracks the mailbox
	// confirmation flow separately.
	IsActive      bool `gorm:"column:is_active;default:true"`
	EmailVerified bool `gorm:"column:email_verified;default:false"`

	// One active verification token per user; both fields are cleared on
	// successful confirmation.
	VerificationToken        *string    `gorm:"column:verification_token;uniqueIndex"`
	VerificationTokenExpires *time.Time `gorm:"column:verification_token_expires"`

	// Multi-Factor Authentication. TwoFactorEnabled is the single
	// authoritative flag; TwoFactorSecret (AES-GCM encrypted base32) is
	// supporting material and is only ever set for a confirmed method.
	TwoFactorEnabled bool   `gorm:"column:two_factor_enabled;default:false"`
	TwoFactorSecret  string `gorm:"column:two_factor_secret"`

	ActiveRefreshTokens TokenList `gorm:"column:active_refresh_tokens;type:text"`

	// OAuth2 / Social Login
	GoogleID *string `gorm:"column:google_id;uniqueIndex"`
	GitHubID *string `gorm:"column:github_id;uniqueIndex"`
	Picture  string  `gorm:"column:picture"`
	FullName string  `gorm:"column:full_name"`

	LastLogin *time.Time `gorm:"column:last_login"`
}
