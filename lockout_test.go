package defauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sainik-portal/defauth/roles"
)

func newTestLockout(t *testing.T, cfg LockoutConfig) (*lockoutTracker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return newLockoutTracker(client, cfg), mr
}

func TestLockoutThreshold(t *testing.T) {
	tracker, _ := newTestLockout(t, LockoutConfig{
		Threshold:    3,
		LockDuration: time.Hour,
		WindowTTL:    time.Hour,
	})
	ctx := context.Background()

	if err := tracker.Check(ctx, roles.RolePersonnel, "ARMY123456"); err != nil {
		t.Fatalf("check before failures: %v", err)
	}

	for want := 2; want >= 1; want-- {
		remaining, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456")
		if err != nil {
			t.Fatalf("failure: %v", err)
		}
		if remaining != want {
			t.Fatalf("remaining = %d, want %d", remaining, want)
		}
	}

	_, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("third failure err = %v, want *LockedError", err)
	}
	if locked.Remaining != time.Hour {
		t.Fatalf("lock duration = %v, want 1h", locked.Remaining)
	}

	err = tracker.Check(ctx, roles.RolePersonnel, "ARMY123456")
	if !errors.As(err, &locked) {
		t.Fatalf("check while locked err = %v, want *LockedError", err)
	}
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatal("locked error must match ErrAccountLocked")
	}
}

func TestLockoutLockExpires(t *testing.T) {
	tracker, mr := newTestLockout(t, LockoutConfig{
		Threshold:    1,
		LockDuration: time.Minute,
		WindowTTL:    time.Hour,
	})
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456"); err == nil {
		t.Fatal("expected lock at threshold 1")
	}

	mr.FastForward(time.Minute)

	if err := tracker.Check(ctx, roles.RolePersonnel, "ARMY123456"); err != nil {
		t.Fatalf("check after lock expiry: %v", err)
	}
	// The failure window was cleared when the lock was applied, so the
	// next failure starts a fresh count and locks again at threshold 1.
	_, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("err = %v, want *LockedError", err)
	}
}

func TestLockoutKeysAreScopedByRole(t *testing.T) {
	tracker, _ := newTestLockout(t, LockoutConfig{
		Threshold:    1,
		LockDuration: time.Hour,
		WindowTTL:    time.Hour,
	})
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456"); err == nil {
		t.Fatal("expected lock at threshold 1")
	}
	if err := tracker.Check(ctx, roles.RoleVeteran, "ARMY123456"); err != nil {
		t.Fatalf("same identity under another role must be unaffected: %v", err)
	}
}

func TestLockoutReset(t *testing.T) {
	tracker, _ := newTestLockout(t, LockoutConfig{
		Threshold:    3,
		LockDuration: time.Hour,
		WindowTTL:    time.Hour,
	})
	ctx := context.Background()

	if _, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456"); err != nil {
		t.Fatalf("failure: %v", err)
	}
	if err := tracker.Reset(ctx, roles.RolePersonnel, "ARMY123456"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	remaining, err := tracker.RecordFailure(ctx, roles.RolePersonnel, "ARMY123456")
	if err != nil {
		t.Fatalf("failure after reset: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want full window after reset", remaining)
	}
}
