package twofactor

import (
	"context"
	"fmt"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"
	"github.com/AntonyShaga/booking-notes-chat/internals/models"
	"github.com/AntonyShaga/booking-notes-chat/internals/utils"
)

// startEmailEnrollment generates a secret, emails the code currently derived
// from it, and stages both. The cooldown is set only after a successful
// send, so an SMTP failure does not lock the user out of retrying.
func (s *Service) startEmailEnrollment(ctx context.Context, user *models.User) (*EnrollmentChallenge, error) {
	if err := s.Limiter.Check(ctx, AttemptsKey(user.ID), MaxVerifyAttempts, VerifyAttemptsTTL); err != nil {
		return nil, err
	}
	if err := s.Limiter.Cooldown(ctx, CooldownKey(user.ID)); err != nil {
		return nil, err
	}

	secret, err := s.TOTP.GenerateSecret(user.Email)
	if err != nil {
		return nil, err
	}
	code, err := s.TOTP.DeriveCode(secret)
	if err != nil {
		return nil, err
	}

	if err := s.Pending.Stage(ctx, user.ID, Pending{Method: MethodEmail, Token: code, Secret: secret}); err != nil {
		return nil, err
	}

	if err := s.Mailer.Send(user.Email, utils.EmailTwoFactor, code); err != nil {
		return nil, fmt.Errorf("%w: sending 2FA code: %v", apperrors.ErrInternal, err)
	}
	if err := s.Limiter.SetCooldown(ctx, CooldownKey(user.ID), CooldownTTL); err != nil {
		return nil, err
	}

	return &EnrollmentChallenge{
		Method:  MethodEmail,
		Message: "verification code sent to your email address",
	}, nil
}

// SendLoginCode emails a one-time code for a half-finished login. The code
// is staged as an exact-match record with its own TTL, so it stays usable
// for the full five minutes rather than one TOTP step.
func (s *Service) SendLoginCode(ctx context.Context, user *models.User) error {
	if !user.TwoFactorEnabled {
		return fmt.Errorf("%w: two-factor authentication is not enabled", apperrors.ErrBadRequest)
	}
	awaiting, err := s.Pending.AwaitingLogin(ctx, user.ID)
	if err != nil {
		return err
	}
	if !awaiting {
		return fmt.Errorf("%w: no 2FA verification in progress", apperrors.ErrUnauthorized)
	}

	if err := s.Limiter.Check(ctx, AttemptsKey(user.ID), MaxVerifyAttempts, VerifyAttemptsTTL); err != nil {
		return err
	}
	if err := s.Limiter.Cooldown(ctx, CooldownKey(user.ID)); err != nil {
		return err
	}

	secret, err := utils.Decrypt(user.TwoFactorSecret, s.EncryptionKey)
	if err != nil {
		return fmt.Errorf("%w: decrypting 2FA secret: %v", apperrors.ErrInternal, err)
	}
	code, err := s.TOTP.DeriveCode(secret)
	if err != nil {
		return err
	}
	if err := s.Pending.Stage(ctx, user.ID, Pending{Method: MethodEmail, Token: code}); err != nil {
		return err
	}

	if err := s.Mailer.Send(user.Email, utils.EmailTwoFactor, code); err != nil {
		return fmt.Errorf("%w: sending 2FA code: %v", apperrors.ErrInternal, err)
	}
	return s.Limiter.SetCooldown(ctx, CooldownKey(user.ID), CooldownTTL)
}
