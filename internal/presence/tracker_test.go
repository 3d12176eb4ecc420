package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/models"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "presence.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, conn *gorm.DB, email, status string, lastHeartbeat *time.Time) models.User {
	t.Helper()
	user := models.User{
		FirstName:       "Test",
		LastName:        "User",
		Email:           email,
		Password:        "hash",
		UserType:        models.UserTypeTechnician,
		SessionStatus:   status,
		LastHeartbeatAt: lastHeartbeat,
	}
	if err := conn.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func fixedTracker(conn *gorm.DB, now time.Time) *Tracker {
	tracker := NewTracker(conn)
	tracker.now = func() time.Time { return now }
	return tracker
}

func TestHeartbeat_MarksOnlineAndStoresDevice(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	user := createUser(t, conn, "hb@example.com", models.SessionStatusOffline, nil)
	tracker := fixedTracker(conn, now)

	req := httptest.NewRequest("POST", "/api/presence/heartbeat", nil)
	req.Header.Set("User-Agent", "LimsDesktop/2.1")
	req.Header.Set("X-Platform", "Windows")
	device := DeviceInfoFromRequest(req, "10.0.0.5", now)

	report, err := tracker.Heartbeat(context.Background(), user.ID, &device)
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if report.Status != models.SessionStatusOnline || !report.IsOnline || report.IsAway || report.ShouldBeOffline {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.LastHeartbeatAt == nil || !report.LastHeartbeatAt.Equal(now) {
		t.Fatalf("expected heartbeat at %s, got %v", now, report.LastHeartbeatAt)
	}

	var stored DeviceInfo
	if errUnmarshal := json.Unmarshal(report.DeviceInfo, &stored); errUnmarshal != nil {
		t.Fatalf("decode device info: %v", errUnmarshal)
	}
	if stored.UserAgent != "LimsDesktop/2.1" || stored.Platform != "Windows" || stored.AppVersion != DefaultAppVersion || stored.IPAddress != "10.0.0.5" {
		t.Fatalf("unexpected device info: %+v", stored)
	}
}

func TestHeartbeat_UnknownUser(t *testing.T) {
	conn := openTestDB(t)
	tracker := NewTracker(conn)
	if _, err := tracker.Heartbeat(context.Background(), 9999, nil); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := tracker.Status(context.Background(), 9999); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := tracker.SetOffline(context.Background(), 9999); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStatus_DerivesFromHeartbeatAge(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-3 * time.Minute)
	user := createUser(t, conn, "away@example.com", models.SessionStatusOnline, &stale)

	report, err := fixedTracker(conn, now).Status(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != models.SessionStatusOnline {
		t.Fatalf("expected stored status to be reported unchanged, got %s", report.Status)
	}
	if !report.IsAway || report.IsOnline || report.ShouldBeOffline {
		t.Fatalf("unexpected derived flags: %+v", report)
	}
}

func TestSetOffline(t *testing.T) {
	conn := openTestDB(t)
	now := time.Now().UTC()
	user := createUser(t, conn, "off@example.com", models.SessionStatusOnline, &now)
	tracker := NewTracker(conn)

	if err := tracker.SetOffline(context.Background(), user.ID); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	report, err := tracker.Status(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if report.Status != models.SessionStatusOffline {
		t.Fatalf("expected offline, got %s", report.Status)
	}
}

func TestReconcile_HundredUsers(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Second)
	idle := now.Add(-5 * time.Minute)
	gone := now.Add(-15 * time.Minute)

	// Recent heartbeats stored as offline or away must be promoted.
	for i := 0; i < 30; i++ {
		stored := models.SessionStatusOffline
		if i%2 == 0 {
			stored = models.SessionStatusAway
		}
		createUser(t, conn, fmt.Sprintf("on%d@example.com", i), stored, &recent)
	}
	for i := 0; i < 40; i++ {
		createUser(t, conn, fmt.Sprintf("away%d@example.com", i), models.SessionStatusOnline, &idle)
	}
	for i := 0; i < 30; i++ {
		last := &gone
		if i%2 == 0 {
			last = nil
		}
		createUser(t, conn, fmt.Sprintf("off%d@example.com", i), models.SessionStatusOnline, last)
	}

	tracker := fixedTracker(conn, now)
	result, err := tracker.Reconcile(context.Background(), now)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Examined != 100 || result.ToOnline != 30 || result.ToAway != 40 || result.ToOffline != 30 || result.Changed() != 100 {
		t.Fatalf("unexpected result: %+v", result)
	}

	summary, err := tracker.Summary(context.Background())
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Online != 30 || summary.Away != 40 || summary.Offline != 30 || summary.Total != 100 {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	again, err := tracker.Reconcile(context.Background(), now)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if again.Changed() != 0 {
		t.Fatalf("expected no changes on second sweep, got %+v", again)
	}

	list, err := tracker.OnlineUsers(context.Background(), now)
	if err != nil {
		t.Fatalf("online users: %v", err)
	}
	if list.Total != 30 || len(list.Users) != 30 {
		t.Fatalf("expected 30 online users, got %d", list.Total)
	}
	if list.Users[0].UserTypeLabel != "Technician" {
		t.Fatalf("unexpected label: %q", list.Users[0].UserTypeLabel)
	}
}

func TestReconcile_PromotesStaleAwayBackToOnline(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Second)
	createUser(t, conn, "back@example.com", models.SessionStatusAway, &recent)

	result, err := NewTracker(conn).Reconcile(context.Background(), now)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.ToOnline != 1 {
		t.Fatalf("expected one row promoted, got %+v", result)
	}
}

func TestReconciler_RunOnce(t *testing.T) {
	conn := openTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	createUser(t, conn, "never@example.com", models.SessionStatusOnline, nil)

	reconciler := NewReconciler(NewTracker(conn), 0)
	reconciler.now = func() time.Time { return now }
	result, err := reconciler.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if result.ToOffline != 1 {
		t.Fatalf("expected one offline transition, got %+v", result)
	}
	if reconciler.interval != defaultReconcileInterval {
		t.Fatalf("expected default interval, got %s", reconciler.interval)
	}
}

func TestDeviceInfoFromRequest_Defaults(t *testing.T) {
	req := httptest.NewRequest("POST", "/", nil)
	req.Header.Del("User-Agent")
	info := DeviceInfoFromRequest(req, "", time.Unix(0, 0))
	if info.UserAgent != DefaultUserAgent || info.Platform != DefaultPlatform || info.AppVersion != DefaultAppVersion {
		t.Fatalf("unexpected defaults: %+v", info)
	}
}
