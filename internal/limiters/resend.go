// Package limiters holds the Redis-backed throttles the orchestrator puts
// in front of challenge issuance.
package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrResendLimited means the number has hit its issuance budget for the
	// current window.
	ErrResendLimited = errors.New("phone challenge resend limited")
	// ErrLimiterUnavailable wraps Redis transport failures.
	ErrLimiterUnavailable = errors.New("resend limiter unavailable")
)

const resendKeyPrefix = "pcr"

// Resend enforces a fixed-window budget on phone challenge issuance per
// E.164 number. The backend may throttle on its own; this limiter fails the
// attempt before the SMS provider or the human-verification widget is
// touched at all.
type Resend struct {
	redis  *redis.Client
	window time.Duration
	max    int
}

// NewResend creates a limiter allowing max issuances per window for each
// number.
func NewResend(redisClient *redis.Client, window time.Duration, max int) (*Resend, error) {
	if redisClient == nil {
		return nil, errors.New("limiters: nil redis client")
	}
	if window <= 0 || max <= 0 {
		return nil, errors.New("limiters: invalid resend window configuration")
	}
	return &Resend{redis: redisClient, window: window, max: max}, nil
}

func (l *Resend) key(phoneE164 string) string {
	return resendKeyPrefix + ":" + phoneE164
}

// Check consumes one issuance slot for the number, returning
// ErrResendLimited once the window budget is spent.
func (l *Resend) Check(ctx context.Context, phoneE164 string) error {
	key := l.key(phoneE164)

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
		}
	}
	if count > int64(l.max) {
		return ErrResendLimited
	}
	return nil
}

// Reset clears the window for a number after a successful confirmation.
func (l *Resend) Reset(ctx context.Context, phoneE164 string) error {
	if err := l.redis.Del(ctx, l.key(phoneE164)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLimiterUnavailable, err)
	}
	return nil
}
