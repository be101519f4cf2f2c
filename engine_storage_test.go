package tokenguard

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/MrEthical07/tokenguard/store/sqlite"
)

func openSQLite(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return s
}

func TestSQLiteRevocationSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokenguard.db")
	users := staticUsers{"user-1": {Subject: "user-1", Email: "a@example.com"}}

	first := openSQLite(t, path)
	engineA, err := New().
		WithConfig(productionConfig()).
		WithBlacklistStore(first).
		WithReplayStore(first).
		WithUserProvider(users).
		Build()
	if err != nil {
		t.Fatalf("build with sqlite store failed: %v", err)
	}

	access, err := engineA.IssueAccessToken(ctx, "user-1", "a@example.com", nil)
	if err != nil {
		t.Fatal(err)
	}
	refresh, err := engineA.IssueRefreshToken(ctx, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if err := engineA.BlacklistToken(ctx, access); err != nil {
		t.Fatalf("blacklist failed: %v", err)
	}
	pair, err := engineA.Refresh(ctx, refresh)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	engineA.Close()
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := openSQLite(t, path)
	t.Cleanup(func() { _ = second.Close() })
	engineB := newTestEngine(t, productionConfig(), func(b *Builder) {
		b.WithBlacklistStore(second).WithReplayStore(second).WithUserProvider(users)
	})

	if _, err := engineB.Validate(ctx, access, TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("revoked token must stay revoked after restart, got %v", err)
	}
	if _, err := engineB.Refresh(ctx, refresh); !errors.Is(err, ErrRefreshInvalid) {
		t.Fatalf("consumed refresh token must stay consumed after restart, got %v", err)
	}
	if _, err := engineB.Refresh(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("rotated refresh token must be usable, got %v", err)
	}

	status, err := engineB.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !status.Healthy || !status.DurableRevocation || !status.Blacklist.Checked {
		t.Fatalf("unexpected health %+v", status)
	}
}
