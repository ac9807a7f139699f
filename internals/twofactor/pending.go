package twofactor

import (
	"context"
	"fmt"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"

	"github.com/redis/go-redis/v9"
)

// Method is the closed set of ways a second factor can be set up.
type Method string

const (
	// MethodQR provisions an authenticator app by scanning a QR code.
	MethodQR Method = "qr"
	// MethodManual provisions an authenticator app by typing the secret.
	MethodManual Method = "manual"
	// MethodEmail delivers one-time codes to the account's email address.
	MethodEmail Method = "email"
)

// ParseMethod validates a client-supplied method string.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodQR, MethodManual, MethodEmail:
		return Method(s), nil
	}
	return "", fmt.Errorf("%w: unknown 2FA method %q", apperrors.ErrBadRequest, s)
}

// Cache lifetimes for the second-factor state machine.
const (
	PendingTTL  = 5 * time.Minute
	StatusTTL   = 5 * time.Minute
	CooldownTTL = time.Minute

	MaxVerifyAttempts = 5
	VerifyAttemptsTTL = 5 * time.Minute
)

func pendingKey(userID uint) string { return fmt.Sprintf("2fa:pending:%d", userID) }
func statusKey(userID uint) string  { return fmt.Sprintf("2fa:status:%d", userID) }

// CooldownKey names the resend cooldown slot for a user. Exported so the
// login-time code request and the setup flow share one cooldown.
func CooldownKey(userID uint) string { return fmt.Sprintf("2fa:cooldown:%d", userID) }

// AttemptsKey names the verification attempt counter for a user.
func AttemptsKey(userID uint) string { return fmt.Sprintf("2fa:attempts:%d", userID) }

// Pending is an in-progress second-factor enrollment. It lives only in the
// cache: the user row is untouched until the enrollment is confirmed with a
// valid code, so an abandoned setup expires without a trace.
type Pending struct {
	Method Method
	Token  string
	Secret string
}

// PendingStore keeps enrollment state and the awaiting-second-factor login
// marker in Redis.
type PendingStore struct {
	redis redis.UniversalClient
}

func NewPendingStore(redisClient redis.UniversalClient) *PendingStore {
	return &PendingStore{redis: redisClient}
}

// Stage saves a pending enrollment, replacing any previous one. Starting a
// new enrollment with a different method therefore discards the old one.
func (s *PendingStore) Stage(ctx context.Context, userID uint, p Pending) error {
	key := pendingKey(userID)
	pipe := s.redis.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, "method", string(p.Method), "token", p.Token, "secret", p.Secret)
	pipe.Expire(ctx, key, PendingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: staging pending 2FA: %v", apperrors.ErrInternal, err)
	}
	return nil
}

// Load returns the pending enrollment, or ErrNotFound if none exists or it
// has expired.
func (s *PendingStore) Load(ctx context.Context, userID uint) (*Pending, error) {
	fields, err := s.redis.HGetAll(ctx, pendingKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: loading pending 2FA: %v", apperrors.ErrInternal, err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no pending 2FA setup", apperrors.ErrNotFound)
	}
	return &Pending{
		Method: Method(fields["method"]),
		Token:  fields["token"],
		Secret: fields["secret"],
	}, nil
}

// Clear drops the pending enrollment.
func (s *PendingStore) Clear(ctx context.Context, userID uint) error {
	if err := s.redis.Del(ctx, pendingKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: clearing pending 2FA: %v", apperrors.ErrInternal, err)
	}
	return nil
}

// MarkAwaitingLogin records that the user passed the password check and owes
// a second factor. The marker expires on its own if the user walks away.
func (s *PendingStore) MarkAwaitingLogin(ctx context.Context, userID uint) error {
	if err := s.redis.Set(ctx, statusKey(userID), "pending", StatusTTL).Err(); err != nil {
		return fmt.Errorf("%w: marking 2FA login: %v", apperrors.ErrInternal, err)
	}
	return nil
}

// AwaitingLogin reports whether the user has a live half-finished login.
func (s *PendingStore) AwaitingLogin(ctx context.Context, userID uint) (bool, error) {
	n, err := s.redis.Exists(ctx, statusKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: checking 2FA login: %v", apperrors.ErrInternal, err)
	}
	return n > 0, nil
}

// ClearAwaitingLogin drops the half-finished login marker.
func (s *PendingStore) ClearAwaitingLogin(ctx context.Context, userID uint) error {
	if err := s.redis.Del(ctx, statusKey(userID)).Err(); err != nil {
		return fmt.Errorf("%w: clearing 2FA login: %v", apperrors.ErrInternal, err)
	}
	return nil
}
