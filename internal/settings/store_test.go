package settings

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/security"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	cipher, err := security.NewCipher("settings-test-key")
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return NewStore(conn, cipher)
}

func TestStore_SetGetTypedValues(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, "max_users", 42, TypeInteger, SetOptions{}); err != nil {
		t.Fatalf("set integer: %v", err)
	}
	if _, err := store.Set(ctx, "feature_on", true, TypeBoolean, SetOptions{}); err != nil {
		t.Fatalf("set boolean: %v", err)
	}
	if _, err := store.Set(ctx, "palette", map[string]any{"primary": "blue"}, TypeJSON, SetOptions{}); err != nil {
		t.Fatalf("set json: %v", err)
	}

	n, err := store.GetInt(ctx, "max_users", 0)
	if err != nil || n != 42 {
		t.Fatalf("expected 42, got %d (%v)", n, err)
	}
	b, err := store.GetBool(ctx, "feature_on", false)
	if err != nil || !b {
		t.Fatalf("expected true, got %v (%v)", b, err)
	}
	v, err := store.Get(ctx, "palette", nil)
	if err != nil {
		t.Fatalf("get json: %v", err)
	}
	palette, ok := v.(map[string]any)
	if !ok || palette["primary"] != "blue" {
		t.Fatalf("unexpected json value: %#v", v)
	}

	var raw models.Setting
	if errFind := store.db.Where("key = ?", "feature_on").First(&raw).Error; errFind != nil {
		t.Fatalf("load raw: %v", errFind)
	}
	if raw.Value != "1" {
		t.Fatalf("expected boolean stored as 1, got %q", raw.Value)
	}
}

func TestStore_GetMissingReturnsDefault(t *testing.T) {
	store := newTestStore(t)
	v, err := store.Get(context.Background(), "does_not_exist", "fallback")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if v != "fallback" {
		t.Fatalf("expected default, got %#v", v)
	}
	if _, errLookup := store.Lookup(context.Background(), "does_not_exist"); !apperr.IsKind(errLookup, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", errLookup)
	}
}

func TestStore_EncryptedValueIsParsedAfterDecrypt(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, "smtp_port", 2525, TypeInteger, SetOptions{Encrypted: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	var raw models.Setting
	if errFind := store.db.Where("key = ?", "smtp_port").First(&raw).Error; errFind != nil {
		t.Fatalf("load raw: %v", errFind)
	}
	if raw.Value == "2525" || !raw.IsEncrypted {
		t.Fatalf("expected ciphertext at rest, got %q", raw.Value)
	}

	v, err := store.Get(ctx, "smtp_port", nil)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if n, ok := v.(int64); !ok || n != 2525 {
		t.Fatalf("expected int64 2525, got %#v", v)
	}
}

func TestStore_UpsertKeepsSystemFlag(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, "timezone", "UTC", TypeString, SetOptions{System: true, Description: "tz"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	entry, err := store.Set(ctx, "timezone", "Europe/Paris", TypeString, SetOptions{System: false})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if !entry.IsSystem {
		t.Fatalf("expected system flag to survive upsert")
	}
	if entry.Value != "Europe/Paris" || entry.Description != "tz" {
		t.Fatalf("unexpected entry after upsert: %+v", entry)
	}

	var count int64
	if errCount := store.db.Model(&models.Setting{}).Where("key = ?", "timezone").Count(&count).Error; errCount != nil {
		t.Fatalf("count: %v", errCount)
	}
	if count != 1 {
		t.Fatalf("expected one row, got %d", count)
	}
}

func TestStore_DeleteUnlessSystem(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, "locked", "x", TypeString, SetOptions{System: true}); err != nil {
		t.Fatalf("set system: %v", err)
	}
	if _, err := store.Set(ctx, "free", "y", TypeString, SetOptions{}); err != nil {
		t.Fatalf("set: %v", err)
	}

	if err := store.DeleteUnlessSystem(ctx, "locked"); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}
	if err := store.DeleteUnlessSystem(ctx, "free"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteUnlessSystem(ctx, "free"); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	deleted, err := store.Delete(ctx, "locked")
	if err != nil || !deleted {
		t.Fatalf("expected plain delete to remove system row, got %v (%v)", deleted, err)
	}
}

func TestStore_ApplyRefusesSystemFlip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Set(ctx, "session_timeout", 480, TypeInteger, SetOptions{System: true}); err != nil {
		t.Fatalf("set: %v", err)
	}
	off := false
	if _, err := store.Apply(ctx, "session_timeout", Update{System: &off}); !apperr.IsKind(err, apperr.KindPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	entry, err := store.Apply(ctx, "session_timeout", Update{Value: json.Number("600"), HasValue: true})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if entry.Value != int64(600) || !entry.IsSystem {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestStore_SetRejectsMismatchedValue(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Set(context.Background(), "n", "twelve", TypeInteger, SetOptions{}); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestStore_EnsureDefaultsAndSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created, err := store.EnsureDefaults(ctx)
	if err != nil {
		t.Fatalf("ensure defaults: %v", err)
	}
	if created != len(Defaults) {
		t.Fatalf("expected %d created, got %d", len(Defaults), created)
	}
	again, err := store.EnsureDefaults(ctx)
	if err != nil || again != 0 {
		t.Fatalf("expected idempotent seed, got %d (%v)", again, err)
	}

	snap := store.Snapshot()
	if got := snap.Int(APIRateLimitPerMinuteKey, 0); got != DefaultRateLimitPerMinute {
		t.Fatalf("expected default rate limit, got %d", got)
	}
	if got := snap.String(LabNameKey, ""); got != DefaultLabName {
		t.Fatalf("expected default lab name, got %q", got)
	}

	if _, errSet := store.Set(ctx, APIRateLimitPerMinuteKey, 7, TypeInteger, SetOptions{}); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if got := snap.Int(APIRateLimitPerMinuteKey, 0); got != 7 {
		t.Fatalf("expected snapshot refresh after write, got %d", got)
	}

	entries, err := store.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, e := range entries {
		if e.Key == SMTPPasswordKey && e.Masked().Value != MaskedValue {
			t.Fatalf("expected smtp password to be masked")
		}
	}
}

func TestStore_LabInfo(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	info, err := store.LabInfo(ctx)
	if err != nil {
		t.Fatalf("lab info: %v", err)
	}
	if info.Name != DefaultLabName {
		t.Fatalf("expected default name, got %q", info.Name)
	}

	name := "North Lab"
	email := "lab@example.com"
	info, err = store.UpdateLabInfo(ctx, LabInfoUpdate{Name: &name, Email: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if info.Name != name || info.Email != email {
		t.Fatalf("unexpected lab info: %+v", info)
	}

	bad := "not-an-email"
	if _, err = store.UpdateLabInfo(ctx, LabInfoUpdate{Email: &bad}); !apperr.IsKind(err, apperr.KindInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestStore_CreateRejectsDuplicateKey(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Create(ctx, "only_once", "a", TypeString, SetOptions{}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := store.Create(ctx, "only_once", "b", TypeString, SetOptions{})
	if !db.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	v, _ := store.GetString(ctx, "only_once", "")
	if v != "a" {
		t.Fatalf("expected first value to survive, got %q", v)
	}
}
