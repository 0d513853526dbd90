package runlock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func newTestLock(t *testing.T, mr *miniredis.Miniredis, owner string, ttl time.Duration) *Lock {
	t.Helper()
	l, err := New(Config{RedisAddr: mr.Addr(), Owner: owner, TTL: ttl}, zerolog.Nop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return l
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()

	if cfg.Key != defaultKey {
		t.Errorf("Key = %q, want %q", cfg.Key, defaultKey)
	}
	if cfg.TTL != defaultTTL {
		t.Errorf("TTL = %v, want %v", cfg.TTL, defaultTTL)
	}
	if cfg.Owner == "" {
		t.Error("Owner should be generated")
	}
}

func TestConfigKeepsExplicitValues(t *testing.T) {
	cfg := Config{Key: "k", TTL: time.Minute, Owner: "host-a"}
	cfg.applyDefaults()

	if cfg.Key != "k" || cfg.TTL != time.Minute || cfg.Owner != "host-a" {
		t.Fatalf("explicit values overwritten: %+v", cfg)
	}
}

func TestNewFailsWithoutRedis(t *testing.T) {
	// Port 1 is reserved and refuses connections.
	_, err := New(Config{RedisAddr: "127.0.0.1:1"}, zerolog.Nop())
	if err == nil {
		t.Fatal("expected connection error")
	}
}

func TestAcquireContentionAndRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx := context.Background()

	a := newTestLock(t, mr, "host-a", time.Minute)
	b := newTestLock(t, mr, "host-b", time.Minute)

	if err := a.Acquire(ctx); err != nil {
		t.Fatalf("a.Acquire() error = %v", err)
	}
	if !a.Held() {
		t.Fatal("a should hold the lock")
	}
	if got, _ := mr.Get(defaultKey); got != "host-a" {
		t.Fatalf("key owner = %q, want host-a", got)
	}

	err := b.Acquire(ctx)
	if !errors.Is(err, ErrHeld) {
		t.Fatalf("b.Acquire() error = %v, want ErrHeld", err)
	}
	if b.Held() {
		t.Fatal("b must not hold the lock")
	}

	if err := a.Release(ctx); err != nil {
		t.Fatalf("a.Release() error = %v", err)
	}
	if mr.Exists(defaultKey) {
		t.Fatal("release should delete the key")
	}
	if a.Held() {
		t.Fatal("a still reports the lock held after release")
	}

	if err := b.Acquire(ctx); err != nil {
		t.Fatalf("b.Acquire() after release error = %v", err)
	}
	if err := b.Release(ctx); err != nil {
		t.Fatalf("b.Release() error = %v", err)
	}
}

func TestRenewalExtendsLease(t *testing.T) {
	mr := miniredis.RunT(t)
	ttl := 300 * time.Millisecond

	l := newTestLock(t, mr, "host-a", ttl)
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer l.Release(context.Background())

	mr.FastForward(200 * time.Millisecond)
	if left := mr.TTL(defaultKey); left > 100*time.Millisecond {
		t.Fatalf("TTL after fast forward = %v", left)
	}

	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL(defaultKey) <= 100*time.Millisecond {
		if time.Now().After(deadline) {
			t.Fatalf("lease not renewed, TTL = %v", mr.TTL(defaultKey))
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !l.Held() {
		t.Fatal("lock should still be held")
	}
}

func TestLeaseLossClosesLost(t *testing.T) {
	mr := miniredis.RunT(t)

	l := newTestLock(t, mr, "host-a", 300*time.Millisecond)
	if l.Lost() != nil {
		t.Fatal("Lost() should be nil before Acquire")
	}
	if err := l.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	// Another host takes the key over.
	if err := mr.Set(defaultKey, "host-b"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	select {
	case <-l.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("Lost() not closed after takeover")
	}
	if l.Held() {
		t.Fatal("Held() = true after losing the lease")
	}

	if err := l.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if got, _ := mr.Get(defaultKey); got != "host-b" {
		t.Fatalf("release deleted another owner's key, owner = %q", got)
	}
}
