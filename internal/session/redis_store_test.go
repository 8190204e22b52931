package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"okrops/api/internal/store"
)

func setupTestRedis(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	t.Cleanup(func() { rs.Close() })
	return rs
}

func testProfile(id string) store.Profile {
	return store.Profile{ID: id, Email: id + "@acme.dev", Role: "member"}
}

func TestSaveAndLookupRefreshSession(t *testing.T) {
	rs := setupTestRedis(t)
	ctx := context.Background()

	expiresAt := time.Now().Add(24 * time.Hour)
	if err := rs.SaveRefreshSession(ctx, "hash-1", testProfile("usr_1"), expiresAt); err != nil {
		t.Fatalf("save: %v", err)
	}

	profile, err := rs.LookupRefreshSession(ctx, "hash-1")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if profile.ID != "usr_1" || profile.Email != "usr_1@acme.dev" || profile.Role != "member" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestLookupExpiredSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rs, err := NewRedisStore("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("create redis store: %v", err)
	}
	defer rs.Close()
	ctx := context.Background()

	if err := rs.SaveRefreshSession(ctx, "hash-exp", testProfile("usr_2"), time.Now().Add(10*time.Millisecond)); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(time.Second)

	if _, err := rs.LookupRefreshSession(ctx, "hash-exp"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for expired token, got %v", err)
	}
}

func TestSaveRejectsPastExpiry(t *testing.T) {
	rs := setupTestRedis(t)
	err := rs.SaveRefreshSession(context.Background(), "hash-past", testProfile("usr_3"), time.Now().Add(-time.Minute))
	if err == nil {
		t.Fatal("expected error for already expired session")
	}
}

func TestLookupUnknownSession(t *testing.T) {
	rs := setupTestRedis(t)
	if _, err := rs.LookupRefreshSession(context.Background(), "never-saved"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeRefreshSession(t *testing.T) {
	rs := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := rs.SaveRefreshSession(ctx, "hash-revoke", testProfile("usr_4"), expiresAt); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Fatalf("lookup before revoke: %v", err)
	}

	if err := rs.RevokeRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := rs.LookupRefreshSession(ctx, "hash-revoke"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after revoke, got %v", err)
	}

	// Revoking again is a no-op, not an error.
	if err := rs.RevokeRefreshSession(ctx, "hash-revoke"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func TestSessionIsolation(t *testing.T) {
	rs := setupTestRedis(t)
	ctx := context.Background()
	expiresAt := time.Now().Add(24 * time.Hour)

	if err := rs.SaveRefreshSession(ctx, "hash-a", testProfile("usr_a"), expiresAt); err != nil {
		t.Fatalf("save a: %v", err)
	}
	if err := rs.SaveRefreshSession(ctx, "hash-b", testProfile("usr_b"), expiresAt); err != nil {
		t.Fatalf("save b: %v", err)
	}

	if err := rs.RevokeRefreshSession(ctx, "hash-a"); err != nil {
		t.Fatalf("revoke a: %v", err)
	}

	if _, err := rs.LookupRefreshSession(ctx, "hash-a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected hash-a revoked, got %v", err)
	}
	profile, err := rs.LookupRefreshSession(ctx, "hash-b")
	if err != nil {
		t.Fatalf("lookup b: %v", err)
	}
	if profile.ID != "usr_b" {
		t.Fatalf("expected usr_b, got %s", profile.ID)
	}
}
