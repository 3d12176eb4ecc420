package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/config"
	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/http/api/handlers"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// AdminInput describes the first administrator and the lab it runs.
type AdminInput struct {
	LabName        string `json:"lab_name"`
	AdminEmail     string `json:"admin_email"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	AdminPassword  string `json:"admin_password"`
}

// InitRequest contains parameters for initial system setup.
type InitRequest struct {
	DatabaseType     string `json:"database_type"`
	DatabaseHost     string `json:"database_host"`
	DatabasePort     int    `json:"database_port"`
	DatabaseUser     string `json:"database_user"`
	DatabasePassword string `json:"database_password"`
	DatabaseName     string `json:"database_name"`
	DatabasePath     string `json:"database_path"`
	DatabaseSSLMode  string `json:"database_ssl_mode"`
	AdminInput
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ErrInitCompleted signals that initialization finished and the main server should start.
var ErrInitCompleted = errors.New("init completed")

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

const defaultSQLitePath = "lims.db"

// BuildDSN builds a database DSN from the init request.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf(
			"postgres://%s:%s@%s:%d/%s?sslmode=%s",
			req.DatabaseUser,
			req.DatabasePassword,
			req.DatabaseHost,
			req.DatabasePort,
			req.DatabaseName,
			sslMode,
		), nil
	case "sqlite":
		return buildSQLiteDSN(req.DatabasePath), nil
	default:
		return "", apperr.InvalidArg("unsupported database type")
	}
}

func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_foreign_keys=on",
		"_synchronous=NORMAL",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

func validateInitRequest(req *InitRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "postgres"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return apperr.InvalidArg("database host is required")
		}
		if req.DatabasePort <= 0 {
			return apperr.InvalidArg("invalid database port")
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return apperr.InvalidArg("database username is required")
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return apperr.InvalidArg("database name is required")
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return apperr.InvalidArg("unsupported database type")
	}
	return validateAdminInput(&req.AdminInput)
}

func validateAdminInput(in *AdminInput) error {
	in.LabName = strings.TrimSpace(in.LabName)
	if in.LabName == "" {
		in.LabName = settings.DefaultLabName
	}
	in.AdminEmail = strings.ToLower(strings.TrimSpace(in.AdminEmail))
	if in.AdminEmail == "" {
		return apperr.InvalidArg("admin email is required")
	}
	if _, err := mail.ParseAddress(in.AdminEmail); err != nil {
		return apperr.InvalidArg("admin email is not a valid email address")
	}
	in.AdminFirstName = strings.TrimSpace(in.AdminFirstName)
	in.AdminLastName = strings.TrimSpace(in.AdminLastName)
	if in.AdminFirstName == "" {
		in.AdminFirstName = "Lab"
	}
	if in.AdminLastName == "" {
		in.AdminLastName = "Administrator"
	}
	policy := security.PasswordPolicy{
		MinLength:      8,
		RequireSpecial: true,
		MinEntropy:     config.DefaultMinPasswordEntropy,
	}
	return policy.Validate(in.AdminPassword)
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Host          string      `yaml:"host"`
	Port          int         `yaml:"port"`
	DatabaseDSN   string      `yaml:"database-dsn"`
	Debug         bool        `yaml:"debug"`
	LoggingToFile bool        `yaml:"logging-to-file"`
	JWT           jwtCfg      `yaml:"jwt"`
	Security      securityCfg `yaml:"security"`
	Presence      presenceCfg `yaml:"presence"`
	TLS           tlsCfg      `yaml:"tls"`
}

type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

type securityCfg struct {
	AppKey        string `yaml:"app-key"`
	StretchSecret string `yaml:"stretch-secret"`
}

type presenceCfg struct {
	ReconcileInterval string `yaml:"reconcile-interval"`
}

type tlsCfg struct {
	Enable bool   `yaml:"enable"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

// WriteConfigFile writes the initial config file with fresh secrets.
func WriteConfigFile(configPath, dsn string, port int, appKey string) error {
	jwtSecret, err := security.GenerateRandomString(32)
	if err != nil {
		return fmt.Errorf("generate jwt secret: %w", err)
	}
	stretchSecret, err := security.GenerateRandomString(32)
	if err != nil {
		return fmt.Errorf("generate stretch secret: %w", err)
	}
	cfg := configFile{
		Port:        port,
		DatabaseDSN: dsn,
		JWT: jwtCfg{
			Secret: jwtSecret,
			Expiry: "720h",
		},
		Security: securityCfg{
			AppKey:        appKey,
			StretchSecret: stretchSecret,
		},
		Presence: presenceCfg{ReconcileInterval: "1m"},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if errMkdir := os.MkdirAll(filepath.Dir(configPath), 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}
	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}
	return nil
}

// ErrAdminExists is returned when an administrator already exists.
var ErrAdminExists = apperr.AlreadySetUp("system already initialized")

// CreateAdminUserWithConn creates the first administrator and stores the lab
// name. The administrator completes account setup on first sign-in, which
// issues their keypair.
func CreateAdminUserWithConn(ctx context.Context, conn *gorm.DB, store *settings.Store, in AdminInput) (models.User, error) {
	if conn == nil || store == nil {
		return models.User{}, fmt.Errorf("create admin: nil database")
	}
	if errValidate := validateAdminInput(&in); errValidate != nil {
		return models.User{}, errValidate
	}
	hashedPassword, err := security.HashPassword(in.AdminPassword)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}

	admin := models.User{
		FirstName: in.AdminFirstName,
		LastName:  in.AdminLastName,
		Email:     in.AdminEmail,
		Password:  hashedPassword,
		UserType:  models.UserTypeAdmin,
		IsActive:  true,
	}
	errTx := conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if errCount := tx.Model(&models.User{}).Where("user_type = ?", models.UserTypeAdmin).Count(&count).Error; errCount != nil {
			return errCount
		}
		if count > 0 {
			return ErrAdminExists
		}
		if errCreate := tx.Create(&admin).Error; errCreate != nil {
			return fmt.Errorf("create admin: %w", errCreate)
		}
		_, errSet := store.WithTx(tx).Set(ctx, settings.LabNameKey, in.LabName, settings.TypeString, settings.SetOptions{
			Description: defaultDescription(settings.LabNameKey),
		})
		return errSet
	})
	if errTx != nil {
		return models.User{}, errTx
	}
	if errRefresh := store.Refresh(ctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("settings refresh after init failed")
	}
	return admin, nil
}

func defaultDescription(key string) string {
	for _, d := range settings.Defaults {
		if d.Key == key {
			return d.Description
		}
	}
	return ""
}

// createAdminFromDSN opens the freshly configured database and seeds it.
func createAdminFromDSN(ctx context.Context, dsn, appKey string, in AdminInput) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if sqlDB, errDB := conn.DB(); errDB == nil {
			_ = sqlDB.Close()
		}
	}()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	cipher, err := security.NewCipher(appKey)
	if err != nil {
		return err
	}
	store := settings.NewStore(conn, cipher)
	if _, errSeed := store.EnsureDefaults(ctx); errSeed != nil {
		return errSeed
	}
	_, err = CreateAdminUserWithConn(ctx, conn, store, in)
	return err
}

// registerBootstrapRoutes exposes first-administrator creation on the main
// server for deployments configured through DB_CONNECTION.
func registerBootstrapRoutes(engine *gin.Engine, services *Services) {
	engine.GET("/api/init/status", func(c *gin.Context) {
		initialized, err := HasAdminInitialized(services.DB)
		if err != nil {
			handlers.RespondError(c, err)
			return
		}
		handlers.RespondOK(c, http.StatusOK, InitStatusResponse{Initialized: initialized})
	})
	engine.POST("/api/init/setup", func(c *gin.Context) {
		var in AdminInput
		if errBind := c.ShouldBindJSON(&in); errBind != nil {
			handlers.RespondError(c, apperr.InvalidArg("invalid request body"))
			return
		}
		admin, err := CreateAdminUserWithConn(c.Request.Context(), services.DB, services.Settings, in)
		if err != nil {
			handlers.RespondError(c, err)
			return
		}
		log.WithField("user_id", admin.ID).Info("first administrator created")
		handlers.RespondMessage(c, http.StatusCreated, "Initialization successful", gin.H{"user_id": admin.ID, "email": admin.Email})
	})
}

// RunInitServer serves the first-run setup endpoints until a config file
// has been written, then returns ErrInitCompleted.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	initDone := make(chan struct{})
	setupInitRoutes(engine, configPath, port, initDone)

	addr := fmt.Sprintf(":%d", port)
	log.Infof("starting init server on %s (config not found at %s)", addr, configPath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-initDone:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("init server shutdown error: %v", errShutdown)
		}
	}()

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}

	select {
	case <-initDone:
		return ErrInitCompleted
	default:
		return nil
	}
}

func setupInitRoutes(engine *gin.Engine, configPath string, port int, initDone chan struct{}) {
	engine.GET("/api/init/status", func(c *gin.Context) {
		handlers.RespondOK(c, http.StatusOK, InitStatusResponse{Initialized: ConfigExists(configPath)})
	})

	engine.POST("/api/init/setup", func(c *gin.Context) {
		if ConfigExists(configPath) {
			handlers.RespondError(c, ErrAdminExists)
			return
		}
		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			handlers.RespondError(c, apperr.InvalidArg("invalid request body"))
			return
		}
		if errValidate := validateInitRequest(&req); errValidate != nil {
			handlers.RespondError(c, errValidate)
			return
		}
		dsn, errBuild := BuildDSN(req)
		if errBuild != nil {
			handlers.RespondError(c, errBuild)
			return
		}
		if errTest := TestDatabaseConnection(dsn); errTest != nil {
			handlers.RespondError(c, apperr.Wrap(apperr.KindInvalidArgument, "database connection failed", errTest))
			return
		}
		appKey, errKey := security.GenerateAppKey()
		if errKey != nil {
			handlers.RespondError(c, errKey)
			return
		}
		if errWrite := WriteConfigFile(configPath, dsn, port, appKey); errWrite != nil {
			handlers.RespondError(c, errWrite)
			return
		}
		if errAdmin := createAdminFromDSN(c.Request.Context(), dsn, appKey, req.AdminInput); errAdmin != nil {
			if errRemove := os.Remove(configPath); errRemove != nil {
				log.Errorf("remove config file error: %v", errRemove)
			}
			handlers.RespondError(c, errAdmin)
			return
		}

		handlers.RespondMessage(c, http.StatusOK, "Initialization successful", nil)
		go func() {
			time.Sleep(500 * time.Millisecond)
			close(initDone)
		}()
	})

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"kind":    "UNAVAILABLE",
				"message": "system is not initialized, POST /api/init/setup first",
			},
		})
	})
}
