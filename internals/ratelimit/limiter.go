package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonyShaga/booking-notes-chat/internals/apperrors"

	"github.com/redis/go-redis/v9"
)

// Keys builds the cache key layout shared by the limiter's callers.
var Keys = struct {
	Login  func(identifier string) string
	Signup func(identifier string) string
	Resend func(userID uint) string
}{
	Login:  func(identifier string) string { return "ratelimit:login:" + identifier },
	Signup: func(identifier string) string { return "ratelimit:register:" + identifier },
	Resend: func(userID uint) string { return fmt.Sprintf("ratelimit:resend:%d", userID) },
}

// Limiter enforces fixed-window attempt budgets and cooldown markers against
// the shared cache.
type Limiter struct {
	redis redis.UniversalClient
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient) *Limiter {
	return &Limiter{redis: redisClient}
}

// Check atomically increments the counter at key and fails with a
// TooManyRequests error once the post-increment value exceeds maxAttempts.
// The first increment in a window sets the window TTL; the error carries the
// remaining seconds until reset when the store can derive them.
func (l *Limiter) Check(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		// A key of the wrong type (corrupted state) would poison every
		// subsequent INCR and lock the identifier out permanently. Delete it
		// and restart the counter.
		if isWrongTypeErr(err) {
			if delErr := l.redis.Del(ctx, key).Err(); delErr != nil {
				return fmt.Errorf("%w: %v", apperrors.ErrInternal, delErr)
			}
			count, err = l.redis.Incr(ctx, key).Result()
		}
		if err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
		}
	}

	// Fixed-window semantics: TTL is set only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, window).Err(); err != nil {
			return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
		}
	}

	if count > int64(maxAttempts) {
		return &apperrors.RateLimitError{RetryAfter: l.remainingSeconds(ctx, key)}
	}

	return nil
}

// Cooldown fails when a cooldown marker exists at key. The caller is
// expected to set the marker (SetCooldown) after performing the guarded
// action, so a failed action does not burn the cooldown.
func (l *Limiter) Cooldown(ctx context.Context, key string) error {
	exists, err := l.redis.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	if exists > 0 {
		return &apperrors.RateLimitError{RetryAfter: l.remainingSeconds(ctx, key)}
	}
	return nil
}

// SetCooldown places a cooldown marker at key for the given duration.
func (l *Limiter) SetCooldown(ctx context.Context, key string, d time.Duration) error {
	if err := l.redis.Set(ctx, key, "1", d).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	return nil
}

// Reset clears the counter or marker at key.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInternal, err)
	}
	return nil
}

func (l *Limiter) remainingSeconds(ctx context.Context, key string) int {
	ttl, err := l.redis.TTL(ctx, key).Result()
	if err != nil || ttl <= 0 {
		return 0
	}
	return int(ttl / time.Second)
}

func isWrongTypeErr(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	// go-redis surfaces Redis WRONGTYPE replies as generic errors; match on
	// the reply prefix.
	return len(err.Error()) >= 9 && err.Error()[:9] == "WRONGTYPE"
}
