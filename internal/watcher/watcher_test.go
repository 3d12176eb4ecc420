package watcher

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
)

func TestSettingsWatcher_RefreshesOnForeignWrites(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "watcher.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	cipher, err := security.NewCipher("watcher-test-key")
	if err != nil {
		t.Fatalf("cipher: %v", err)
	}
	local := settings.NewStore(conn, cipher)
	remote := settings.NewStore(conn, cipher)

	w := NewSettingsWatcher(conn, local, time.Hour)
	if !w.Poll(ctx, true) {
		t.Fatalf("expected forced poll to refresh")
	}
	if w.Poll(ctx, false) {
		t.Fatalf("expected no refresh without changes")
	}

	if _, errSet := remote.Set(ctx, settings.APIRateLimitPerMinuteKey, 7, settings.TypeInteger, settings.SetOptions{}); errSet != nil {
		t.Fatalf("remote set: %v", errSet)
	}
	if got := local.Snapshot().Int(settings.APIRateLimitPerMinuteKey, 0); got != 0 {
		t.Fatalf("expected stale local snapshot, got %d", got)
	}
	if !w.Poll(ctx, false) {
		t.Fatalf("expected refresh after remote write")
	}
	if got := local.Snapshot().Int(settings.APIRateLimitPerMinuteKey, 0); got != 7 {
		t.Fatalf("expected refreshed value 7, got %d", got)
	}

	if _, errDelete := remote.Delete(ctx, settings.APIRateLimitPerMinuteKey); errDelete != nil {
		t.Fatalf("remote delete: %v", errDelete)
	}
	if !w.Poll(ctx, false) {
		t.Fatalf("expected refresh after remote delete")
	}
	if _, ok := local.Snapshot().Value(settings.APIRateLimitPerMinuteKey); ok {
		t.Fatalf("expected deleted key to leave the snapshot")
	}
}

func TestNewSettingsWatcher_NilInputs(t *testing.T) {
	if w := NewSettingsWatcher(nil, nil, 0); w != nil {
		t.Fatalf("expected nil watcher")
	}
	var w *SettingsWatcher
	w.Start(context.Background())
	w.Stop()
	if w.Poll(context.Background(), true) {
		t.Fatalf("expected nil watcher poll to be a no-op")
	}
}
