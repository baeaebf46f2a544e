package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"aercd/pkg/domain"
)

var testUser = domain.User{
	ID:    "u-1",
	Name:  "Admin",
	Email: "admin@aercd.sn",
	Role:  domain.RoleAdmin,
}

func exerciseSessionStore(t *testing.T, s SessionStore) {
	t.Helper()
	ctx := context.Background()
	token, err := s.NewSession(ctx, testUser)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if token == "" {
		t.Fatalf("expected token")
	}
	user, ok, err := s.GetUser(ctx, token)
	if err != nil || !ok {
		t.Fatalf("get user: ok=%v err=%v", ok, err)
	}
	if user != testUser {
		t.Fatalf("user = %+v, want %+v", user, testUser)
	}
	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, ok, _ := s.GetUser(ctx, token); ok {
		t.Fatalf("session must be gone after logout")
	}
	if err := s.DeleteSession(ctx, token); err != nil {
		t.Fatalf("logout must be idempotent: %v", err)
	}
	if _, ok, _ := s.GetUser(ctx, "unknown-token"); ok {
		t.Fatalf("unknown token must not resolve")
	}
}

func TestMemorySessionStore(t *testing.T) {
	exerciseSessionStore(t, NewMemorySessionStore(time.Hour))
}

func TestMemorySessionStoreExpiry(t *testing.T) {
	s := NewMemorySessionStore(time.Millisecond)
	token, err := s.NewSession(context.Background(), testUser)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok, _ := s.GetUser(context.Background(), token); ok {
		t.Fatalf("expired session must not resolve")
	}
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }
func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemorySessionStoreSweepsExpiredOnWrite(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
	s := NewMemorySessionStore(time.Hour)
	s.now = clock.now
	ctx := context.Background()
	for range 3 {
		if _, err := s.NewSession(ctx, testUser); err != nil {
			t.Fatalf("new session: %v", err)
		}
	}
	clock.advance(2 * time.Hour)
	if _, err := s.NewSession(ctx, testUser); err != nil {
		t.Fatalf("new session: %v", err)
	}
	if got := len(s.sess); got != 1 {
		t.Fatalf("sessions held = %d, want 1 after sweep", got)
	}

	clock.advance(2 * time.Hour)
	s.lastSweep = clock.t.Add(-sweepInterval / 2)
	if _, err := s.NewSession(ctx, testUser); err != nil {
		t.Fatalf("new session: %v", err)
	}
	if got := len(s.sess); got != 2 {
		t.Fatalf("sessions held = %d, want 2 within the sweep interval", got)
	}
}

func TestMemoryTokenRevokerSweepsExpiredOnWrite(t *testing.T) {
	clock := &testClock{t: time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)}
	r := NewMemoryTokenRevoker()
	r.now = clock.now
	ctx := context.Background()
	if err := r.Revoke(ctx, "old", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := r.IsRevoked(ctx, "old"); !revoked {
		t.Fatalf("id must be revoked before expiry")
	}
	clock.advance(2 * time.Minute)
	if err := r.Revoke(ctx, "new", time.Hour); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, held := r.tokens["old"]; held || len(r.tokens) != 1 {
		t.Fatalf("expired revocation still held: %v", r.tokens)
	}
	if revoked, _ := r.IsRevoked(ctx, "new"); !revoked {
		t.Fatalf("fresh revocation must hold")
	}
}

func TestRedisSessionStore(t *testing.T) {
	redis := miniredis.RunT(t)
	exerciseSessionStore(t, NewRedisSessionStore(redis.Addr(), "", time.Hour))
}

func TestRedisSessionStoreTTL(t *testing.T) {
	redis := miniredis.RunT(t)
	s := NewRedisSessionStore(redis.Addr(), "", time.Minute)
	token, err := s.NewSession(context.Background(), testUser)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	redis.FastForward(2 * time.Minute)
	if _, ok, _ := s.GetUser(context.Background(), token); ok {
		t.Fatalf("session must expire with its ttl")
	}
}

func TestJWTSessionStore(t *testing.T) {
	s, err := NewJWTSessionStore("0123456789abcdef-secret", time.Hour, nil)
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	exerciseSessionStore(t, s)
}

func TestJWTSessionStoreRedisRevoker(t *testing.T) {
	redis := miniredis.RunT(t)
	s, err := NewJWTSessionStore("0123456789abcdef-secret", time.Hour, NewRedisTokenRevoker(redis.Addr(), ""))
	if err != nil {
		t.Fatalf("new jwt store: %v", err)
	}
	exerciseSessionStore(t, s)
}

func TestJWTSessionStoreRejectsForeignTokens(t *testing.T) {
	a, _ := NewJWTSessionStore("0123456789abcdef-secret", time.Hour, nil)
	b, _ := NewJWTSessionStore("another-secret-0123456789", time.Hour, nil)
	token, err := a.NewSession(context.Background(), testUser)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, ok, _ := b.GetUser(context.Background(), token); ok {
		t.Fatalf("token signed with another secret must not resolve")
	}
	if _, ok, _ := a.GetUser(context.Background(), "not-a-jwt"); ok {
		t.Fatalf("garbage token must not resolve")
	}
}

func TestNewJWTSessionStoreValidation(t *testing.T) {
	if _, err := NewJWTSessionStore("short", time.Hour, nil); err == nil {
		t.Fatalf("expected error for short secret")
	}
	if _, err := NewJWTSessionStore("0123456789abcdef-secret", 0, nil); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
