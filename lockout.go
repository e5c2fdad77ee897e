package defauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/sainik-portal/defauth/roles"
)

// lockoutTracker counts consecutive failed password checks per
// (role, identity) pair in Redis and converts threshold breaches into a
// timed lock. The lock is consulted before any account or hash lookup.
type lockoutTracker struct {
	redis redis.UniversalClient
	cfg   LockoutConfig
}

func newLockoutTracker(redisClient redis.UniversalClient, cfg LockoutConfig) *lockoutTracker {
	return &lockoutTracker{
		redis: redisClient,
		cfg:   cfg,
	}
}

func lockoutFailKey(role roles.Role, identity string) string {
	return fmt.Sprintf("defauth:lockout:fail:%s:%s", role, identity)
}

func lockoutLockKey(role roles.Role, identity string) string {
	return fmt.Sprintf("defauth:lockout:lock:%s:%s", role, identity)
}

// Check returns a *LockedError when the pair is currently locked. The
// remaining duration comes from the lock key's TTL.
func (t *lockoutTracker) Check(ctx context.Context, role roles.Role, identity string) error {
	remaining, err := t.redis.TTL(ctx, lockoutLockKey(role, identity)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	// TTL returns a negative duration for missing or unexpiring keys.
	if remaining > 0 {
		return &LockedError{Remaining: remaining}
	}

	return nil
}

// RecordFailure adds one failed attempt. When the threshold is reached it
// arms the lock and returns a *LockedError; otherwise it returns the number
// of attempts left before lockout.
func (t *lockoutTracker) RecordFailure(ctx context.Context, role roles.Role, identity string) (int, error) {
	failKey := lockoutFailKey(role, identity)

	count, err := t.redis.Incr(ctx, failKey).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := t.redis.Expire(ctx, failKey, t.cfg.WindowTTL).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
	}

	if count >= int64(t.cfg.Threshold) {
		pipe := t.redis.TxPipeline()
		pipe.Set(ctx, lockoutLockKey(role, identity), "1", t.cfg.LockDuration)
		pipe.Del(ctx, failKey)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
		}
		return 0, &LockedError{Remaining: t.cfg.LockDuration}
	}

	return t.cfg.Threshold - int(count), nil
}

// Reset clears the counter and any lock after a fully completed login.
func (t *lockoutTracker) Reset(ctx context.Context, role roles.Role, identity string) error {
	err := t.redis.Del(ctx, lockoutFailKey(role, identity), lockoutLockKey(role, identity)).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrLockoutUnavailable, err)
	}
	return nil
}
