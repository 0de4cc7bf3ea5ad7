package ratelimit

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestBucket(t *testing.T, cfg Config) (*RedisTokenBucket, *time.Time) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	bucket, err := NewRedisTokenBucket(client, cfg)
	if err != nil {
		t.Fatalf("NewRedisTokenBucket error: %v", err)
	}
	now := time.UnixMilli(1_700_000_000_000)
	bucket.now = func() time.Time { return now }
	return bucket, &now
}

func TestTokenBucketAllowsUpToCapacity(t *testing.T) {
	ctx := context.Background()
	bucket, now := newTestBucket(t, Config{Capacity: 2, Window: time.Second})

	for i, wantRemaining := range []int64{1, 0} {
		d, err := bucket.Allow(ctx, "user-1")
		if err != nil {
			t.Fatalf("allow %d: %v", i, err)
		}
		if !d.Allowed || d.Remaining != wantRemaining {
			t.Fatalf("allow %d: unexpected decision %+v", i, d)
		}
	}

	d, err := bucket.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow over capacity: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected third request to be rejected")
	}
	if d.RetryAfter <= 0 || d.RetryAfter > time.Second {
		t.Fatalf("unexpected retry-after %s", d.RetryAfter)
	}

	*now = now.Add(600 * time.Millisecond)
	d, err = bucket.Allow(ctx, "user-1")
	if err != nil {
		t.Fatalf("allow after refill: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected a token after refill")
	}
}

func TestTokenBucketSubjectsAreIndependent(t *testing.T) {
	ctx := context.Background()
	bucket, _ := newTestBucket(t, Config{Capacity: 1, Window: time.Minute})

	if d, _ := bucket.Allow(ctx, "a"); !d.Allowed {
		t.Fatal("expected first request for a to pass")
	}
	if d, _ := bucket.Allow(ctx, "a"); d.Allowed {
		t.Fatal("expected second request for a to be rejected")
	}
	if d, _ := bucket.Allow(ctx, "b"); !d.Allowed {
		t.Fatal("expected b to have its own bucket")
	}
}

func TestTokenBucketAllowNIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	bucket, _ := newTestBucket(t, Config{Capacity: 3, Window: time.Minute})

	d, err := bucket.AllowN(ctx, "batch", 4)
	if err != nil {
		t.Fatalf("allowN: %v", err)
	}
	if d.Allowed || d.Remaining != 3 {
		t.Fatalf("expected rejection with all tokens left, got %+v", d)
	}

	d, err = bucket.AllowN(ctx, "batch", 3)
	if err != nil {
		t.Fatalf("allowN: %v", err)
	}
	if !d.Allowed || d.Remaining != 0 {
		t.Fatalf("expected 3 tokens granted, got %+v", d)
	}
}

func TestNewRedisTokenBucketValidation(t *testing.T) {
	if _, err := NewRedisTokenBucket(nil, Config{Capacity: 1, Window: time.Second}); err == nil {
		t.Fatal("expected error for nil client")
	}
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()
	if _, err := NewRedisTokenBucket(client, Config{Capacity: 0, Window: time.Second}); err == nil {
		t.Fatal("expected error for zero capacity")
	}
	if _, err := NewRedisTokenBucket(client, Config{Capacity: 1}); err == nil {
		t.Fatal("expected error for zero window")
	}
}
