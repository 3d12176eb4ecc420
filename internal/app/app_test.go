package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/config"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	for _, key := range []string{"DB_CONNECTION", "APP_KEY", "JWT_SECRET", "JWT_EXPIRY", "KEY_STRETCH_SECRET", "PRESENCE_RECONCILE_INTERVAL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	appKey, err := security.GenerateAppKey()
	if err != nil {
		t.Fatalf("GenerateAppKey: %v", err)
	}
	if errWrite := WriteConfigFile(configPath, "file:"+filepath.Join(dir, "lims.db"), 8420, appKey); errWrite != nil {
		t.Fatalf("WriteConfigFile: %v", errWrite)
	}
	return configPath
}

func TestOpenServices_SeedsSettings(t *testing.T) {
	configPath := writeTestConfig(t)
	services, err := OpenServices(context.Background(), configPath)
	if err != nil {
		t.Fatalf("OpenServices: %v", err)
	}
	defer services.Close()

	if got := services.Settings.Snapshot().Int(settings.APIRateLimitPerMinuteKey, 0); got != settings.DefaultRateLimitPerMinute {
		t.Fatalf("expected seeded rate limit, got %d", got)
	}
	if services.Limiter.Limit() != settings.DefaultRateLimitPerMinute {
		t.Fatalf("expected limiter to read the snapshot, got %d", services.Limiter.Limit())
	}
	if services.Reconciler == nil || services.Accounts == nil || services.Keys == nil {
		t.Fatalf("expected every service to be wired")
	}
}

func TestBootstrapRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	configPath := writeTestConfig(t)
	services, err := OpenServices(context.Background(), configPath)
	if err != nil {
		t.Fatalf("OpenServices: %v", err)
	}
	defer services.Close()
	engine := NewEngine(services)

	status := func() bool {
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/init/status", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("status: expected 200, got %d", rec.Code)
		}
		var body struct {
			Data InitStatusResponse `json:"data"`
		}
		if errDecode := json.Unmarshal(rec.Body.Bytes(), &body); errDecode != nil {
			t.Fatalf("decode status: %v", errDecode)
		}
		return body.Data.Initialized
	}
	setup := func() int {
		payload, _ := json.Marshal(AdminInput{
			LabName:       "Bootstrap Lab",
			AdminEmail:    "boot@lab.test",
			AdminPassword: adminPassword,
		})
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/init/setup", bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(rec, req)
		return rec.Code
	}

	if status() {
		t.Fatalf("expected uninitialized system")
	}
	if code := setup(); code != http.StatusCreated {
		t.Fatalf("expected 201 on first setup, got %d", code)
	}
	if !status() {
		t.Fatalf("expected initialized system after setup")
	}
	if code := setup(); code != http.StatusConflict {
		t.Fatalf("expected 409 on second setup, got %d", code)
	}

	var admin models.User
	if errFind := services.DB.Where("email = ?", "boot@lab.test").First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if admin.UserType != models.UserTypeAdmin {
		t.Fatalf("expected admin user type, got %q", admin.UserType)
	}
}

func TestReconcileOnce(t *testing.T) {
	configPath := writeTestConfig(t)
	services, err := OpenServices(context.Background(), configPath)
	if err != nil {
		t.Fatalf("OpenServices: %v", err)
	}

	stale := time.Now().UTC().Add(-2 * time.Hour)
	recent := time.Now().UTC().Add(-30 * time.Second)
	users := []models.User{
		{Email: "stale@lab.test", Password: "x", UserType: models.UserTypeAnalyst, IsActive: true, LastHeartbeatAt: &stale, SessionStatus: models.SessionStatusOnline},
		{Email: "recent@lab.test", Password: "x", UserType: models.UserTypeAnalyst, IsActive: true, LastHeartbeatAt: &recent, SessionStatus: models.SessionStatusOnline},
	}
	if errCreate := services.DB.Create(&users).Error; errCreate != nil {
		t.Fatalf("create users: %v", errCreate)
	}
	services.Close()

	summary, err := ReconcileOnce(context.Background(), config.AppConfig{ConfigPath: configPath})
	if err != nil {
		t.Fatalf("ReconcileOnce: %v", err)
	}
	if summary.Online != 1 || summary.Offline != 1 || summary.Total != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}
