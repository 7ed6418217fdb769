package accountholder

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/RamXX/tminus/internal/store"
)

func testMasterKey(t *testing.T) string {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate master key: %v", err)
	}
	return base64.StdEncoding.EncodeToString(key)
}

func newTestActor(t *testing.T, refresher TokenRefresher) *Actor {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "tminus.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	env, err := NewEnvelope(testMasterKey(t))
	if err != nil {
		t.Fatalf("new envelope: %v", err)
	}

	a := New("acc_test", store.New(db), env, refresher, 10, 10, zerolog.Nop())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(a.Stop)
	return a
}

type fakeRefresher struct {
	accessToken string
	expiresAt   time.Time
	err         error
}

func (f *fakeRefresher) Refresh(ctx context.Context, accountID string, refreshToken []byte) ([]byte, time.Time, error) {
	if f.err != nil {
		return nil, time.Time{}, f.err
	}
	return []byte(f.accessToken), f.expiresAt, nil
}

func TestSeedAndGetAccessTokenNoRefreshNeeded(t *testing.T) {
	a := newTestActor(t, &fakeRefresher{})
	ctx := context.Background()

	if err := a.SeedTokens(ctx, "tok_access_1", "tok_refresh_1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}

	got, err := a.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("get access token: %v", err)
	}
	if got != "tok_access_1" {
		t.Errorf("expected tok_access_1, got %s", got)
	}
}

func TestGetAccessTokenRefreshesWhenNearExpiry(t *testing.T) {
	refresher := &fakeRefresher{accessToken: "tok_access_refreshed", expiresAt: time.Now().Add(time.Hour)}
	a := newTestActor(t, refresher)
	ctx := context.Background()

	if err := a.SeedTokens(ctx, "tok_access_stale", "tok_refresh_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}

	got, err := a.GetAccessToken(ctx)
	if err != nil {
		t.Fatalf("get access token: %v", err)
	}
	if got != "tok_access_refreshed" {
		t.Errorf("expected refreshed token, got %s", got)
	}
}

func TestGetAccessTokenTerminalRefreshFailureRevokesAuth(t *testing.T) {
	refresher := &fakeRefresher{err: errRefreshDenied}
	a := newTestActor(t, refresher)
	ctx := context.Background()

	if err := a.SeedTokens(ctx, "tok_access_stale", "tok_refresh_1", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("seed tokens: %v", err)
	}

	if _, err := a.GetAccessToken(ctx); err == nil {
		t.Fatal("expected auth revoked error")
	}

	if _, err := a.GetAccessToken(ctx); err == nil {
		t.Fatal("expected subsequent calls to also fail on an inactive account")
	}
}

func TestSyncCursorRoundTrip(t *testing.T) {
	a := newTestActor(t, &fakeRefresher{})
	ctx := context.Background()

	cursor, err := a.GetSyncCursor(ctx)
	if err != nil {
		t.Fatalf("get sync cursor: %v", err)
	}
	if cursor != "" {
		t.Errorf("expected empty initial cursor, got %q", cursor)
	}

	now := time.Now().UTC()
	if err := a.SetSyncCursor(ctx, "cursor_123", now); err != nil {
		t.Fatalf("set sync cursor: %v", err)
	}
	cursor, err = a.GetSyncCursor(ctx)
	if err != nil {
		t.Fatalf("get sync cursor: %v", err)
	}
	if cursor != "cursor_123" {
		t.Errorf("expected cursor_123, got %q", cursor)
	}
}

func TestChannelLifecycle(t *testing.T) {
	a := newTestActor(t, &fakeRefresher{})
	ctx := context.Background()
	expires := time.Now().Add(24 * time.Hour)

	if err := a.RegisterChannel(ctx, "chan_1", "res_1", expires); err != nil {
		t.Fatalf("register channel: %v", err)
	}
	if err := a.RenewChannel(ctx, "chan_2", "res_1", expires.Add(24*time.Hour)); err != nil {
		t.Fatalf("renew channel: %v", err)
	}
	if err := a.ExpireChannel(ctx); err != nil {
		t.Fatalf("expire channel: %v", err)
	}
}

func TestRateLimit(t *testing.T) {
	a := newTestActor(t, &fakeRefresher{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.RateLimit(ctx, 1); err != nil {
		t.Fatalf("rate limit: %v", err)
	}
}

var errRefreshDenied = &staticError{"refresh denied"}

type staticError struct{ msg string }

func (e *staticError) Error() string { return e.msg }
