package twofactor

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/ratelimit"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"

	"gorm.io/gorm"
)

// Service runs the second-factor state machine: enrollment (staged in the
// cache, confirmed into the user row), disabling, and the login-time
// verification step.
type Service struct {
	DB      *gorm.DB
	Pending *PendingStore
	TOTP    *TOTPProvider
	Limiter *ratelimit.Limiter
	Mailer  utils.Mailer

	// EncryptionKey protects secrets at rest in the user row. Cache-staged
	// pending secrets are short-lived and stored as-is.
	EncryptionKey string
}

func NewService(db *gorm.DB, pending *PendingStore, totp *TOTPProvider, limiter *ratelimit.Limiter, mailer utils.Mailer, encryptionKey string) *Service {
	return &Service{
		DB:            db,
		Pending:       pending,
		TOTP:          totp,
		Limiter:       limiter,
		Mailer:        mailer,
		EncryptionKey: encryptionKey,
	}
}

// EnrollmentChallenge is what the client needs to complete an enrollment
// started by Enable. Fields are populated per method.
type EnrollmentChallenge struct {
	Method  Method `json:"method"`
	Secret  string `json:"secret,omitempty"`
	URI     string `json:"uri,omitempty"`
	QRCode  string `json:"qrCode,omitempty"`
	Message string `json:"message,omitempty"`
}

// Status describes the user's second-factor state.
type Status struct {
	Enabled       bool   `json:"enabled"`
	PendingMethod Method `json:"pendingMethod,omitempty"`
}

// Enable stages a new enrollment for the chosen method. Nothing touches the
// user row yet; the enrollment takes effect only when Confirm sees a valid
// code. Starting over with a different method replaces the staged state.
func (s *Service) Enable(ctx context.Context, user *models.User, method Method) (*EnrollmentChallenge, error) {
	if user.TwoFactorEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication is already enabled, disable it first", apperrors.ErrBadRequest)
	}

	// A fresh enrollment starts with a clean attempt budget; stale pending
	// material is replaced by Stage below.
	_ = s.Limiter.Reset(ctx, AttemptsKey(user.ID))

	switch method {
	case MethodQR:
		prov, err := s.TOTP.Provision(user.Email)
		if err != nil {
			return nil, err
		}
		if err := s.Pending.Stage(ctx, user.ID, Pending{Method: MethodQR, Secret: prov.Secret}); err != nil {
			return nil, err
		}
		return &EnrollmentChallenge{Method: MethodQR, URI: prov.URI, QRCode: prov.QRCode}, nil

	case MethodManual:
		prov, err := s.TOTP.Provision(user.Email)
		if err != nil {
			return nil, err
		}
		if err := s.Pending.Stage(ctx, user.ID, Pending{Method: MethodManual, Secret: prov.Secret}); err != nil {
			return nil, err
		}
		return &EnrollmentChallenge{Method: MethodManual, Secret: prov.Secret, URI: prov.URI}, nil

	case MethodEmail:
		return s.startEmailEnrollment(ctx, user)
	}

	return nil, fmt.Errorf("%w: unknown 2FA method %q", apperrors.ErrBadRequest, method)
}

// Confirm completes a staged enrollment. Authenticator methods validate the
// submitted code against the staged secret; the email method compares it
// with the emailed one-time code. A wrong code keeps the staged state so
// the user can retry within the attempt budget.
func (s *Service) Confirm(ctx context.Context, user *models.User, code string) error {
	if user.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor authentication is already enabled, disable it first", apperrors.ErrBadRequest)
	}

	pending, err := s.Pending.Load(ctx, user.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return fmt.Errorf("%w: no 2FA setup in progress, request one first", apperrors.ErrBadRequest)
		}
		return err
	}

	if err := s.Limiter.Check(ctx, AttemptsKey(user.ID), MaxVerifyAttempts, VerifyAttemptsTTL); err != nil {
		return err
	}

	if !s.codeMatches(pending, code) {
		return fmt.Errorf("%w: invalid verification code", apperrors.ErrBadRequest)
	}

	encrypted, err := utils.Encrypt(pending.Secret, s.EncryptionKey)
	if err != nil {
		return fmt.Errorf("%w: encrypting 2FA secret: %v", apperrors.ErrInternal, err)
	}

	err = s.DB.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"two_factor_enabled": true,
		"two_factor_secret":  encrypted,
	}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	user.TwoFactorEnabled = true
	user.TwoFactorSecret = encrypted

	// Best effort: staged state and counters expire on their own anyway.
	_ = s.Pending.Clear(ctx, user.ID)
	_ = s.Limiter.Reset(ctx, AttemptsKey(user.ID))
	return nil
}

func (s *Service) codeMatches(pending *Pending, code string) bool {
	if pending.Method == MethodEmail {
		return subtle.ConstantTimeCompare([]byte(pending.Token), []byte(code)) == 1 && pending.Token != ""
	}
	return s.TOTP.VerifyCode(pending.Secret, code)
}

// Disable turns the second factor off unconditionally. The caller already
// holds an authenticated session; no further proof is demanded, and
// disabling an account that never enabled 2FA is a no-op.
func (s *Service) Disable(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Model(user).Updates(map[string]interface{}{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""

	_ = s.Pending.Clear(ctx, user.ID)
	_ = s.Pending.ClearAwaitingLogin(ctx, user.ID)
	_ = s.Limiter.Reset(ctx, AttemptsKey(user.ID))
	return nil
}

// CurrentStatus reports whether the second factor is on and, if off,
// whether an enrollment is staged.
func (s *Service) CurrentStatus(ctx context.Context, user *models.User) (*Status, error) {
	status := &Status{Enabled: user.TwoFactorEnabled}
	if status.Enabled {
		return status, nil
	}
	pending, err := s.Pending.Load(ctx, user.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return status, nil
		}
		return nil, err
	}
	status.PendingMethod = pending.Method
	return status, nil
}

// VerifyLogin checks the second-factor code for a half-finished login. An
// emailed code is matched exactly against the staged one-time record, so it
// stays valid for the record's full TTL; anything else is validated as a
// TOTP code against the persisted secret.
func (s *Service) VerifyLogin(ctx context.Context, user *models.User, code string) error {
	awaiting, err := s.Pending.AwaitingLogin(ctx, user.ID)
	if err != nil {
		return err
	}
	if !awaiting {
		return fmt.Errorf("%w: no 2FA verification in progress", apperrors.ErrUnauthorized)
	}
	if !user.IsActive {
		return fmt.Errorf("%w: this account is deactivated", apperrors.ErrForbidden)
	}
	if !user.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor authentication is not enabled", apperrors.ErrBadRequest)
	}

	if err := s.Limiter.Check(ctx, AttemptsKey(user.ID), MaxVerifyAttempts, VerifyAttemptsTTL); err != nil {
		return err
	}

	if !s.loginCodeMatches(ctx, user, code) {
		return fmt.Errorf("%w: invalid verification code", apperrors.ErrUnauthorized)
	}

	_ = s.Pending.Clear(ctx, user.ID)
	_ = s.Pending.ClearAwaitingLogin(ctx, user.ID)
	_ = s.Limiter.Reset(ctx, AttemptsKey(user.ID))
	return nil
}

func (s *Service) loginCodeMatches(ctx context.Context, user *models.User, code string) bool {
	if pending, err := s.Pending.Load(ctx, user.ID); err == nil &&
		pending.Method == MethodEmail && pending.Token != "" &&
		subtle.ConstantTimeCompare([]byte(pending.Token), []byte(code)) == 1 {
		return true
	}

	secret, err := utils.Decrypt(user.TwoFactorSecret, s.EncryptionKey)
	if err != nil {
		return false
	}
	return s.TOTP.VerifyCode(secret, code)
}
