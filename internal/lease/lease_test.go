package lease

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func exercise(t *testing.T, l Locker) {
	t.Helper()
	ctx := context.Background()
	key := GradeKey(42)

	release, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	if _, err := l.Acquire(ctx, key, time.Minute); !errors.Is(err, ErrHeld) {
		t.Fatalf("second Acquire error = %v, want ErrHeld", err)
	}

	other, err := l.Acquire(ctx, GradeKey(43), time.Minute)
	if err != nil {
		t.Fatalf("Acquire other key: %v", err)
	}
	other()

	release()
	release()

	again, err := l.Acquire(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	again()
}

func TestMemoryLocker(t *testing.T) {
	exercise(t, NewMemoryLocker())
}

func TestMemoryLockerExpiry(t *testing.T) {
	l := NewMemoryLocker()
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	stale, err := l.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Second)
	fresh, err := l.Acquire(context.Background(), "k", time.Second)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}

	// the expired holder must not release the new lease
	stale()
	if _, err := l.Acquire(context.Background(), "k", time.Second); !errors.Is(err, ErrHeld) {
		t.Fatalf("Acquire error = %v, want ErrHeld", err)
	}
	fresh()
}

func TestMemoryLockerCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMemoryLocker().Acquire(ctx, "k", time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("Acquire error = %v, want context.Canceled", err)
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestRedisLocker(t *testing.T) {
	_, client := newRedis(t)
	exercise(t, NewRedisLocker(client, "test:"))
}

func TestRedisLockerExpiry(t *testing.T) {
	mr, client := newRedis(t)
	l := NewRedisLocker(client, "test:")
	ctx := context.Background()

	stale, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("test:k") {
		t.Fatal("lease key not written with prefix")
	}

	mr.FastForward(2 * time.Second)
	fresh, err := l.Acquire(ctx, "k", time.Second)
	if err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}

	stale()
	if !mr.Exists("test:k") {
		t.Fatal("stale release removed the current lease")
	}
	fresh()
	if mr.Exists("test:k") {
		t.Fatal("release did not remove the lease")
	}
}
