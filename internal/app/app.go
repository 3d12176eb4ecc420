package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/accounts"
	"github.com/labforge/lims-admin/internal/config"
	"github.com/labforge/lims-admin/internal/credentials"
	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/http/api"
	"github.com/labforge/lims-admin/internal/notify"
	"github.com/labforge/lims-admin/internal/presence"
	"github.com/labforge/lims-admin/internal/ratelimit"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
	"github.com/labforge/lims-admin/internal/watcher"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const shutdownTimeout = 10 * time.Second

// Services holds the long-lived components built from one config file.
type Services struct {
	DB         *gorm.DB
	Settings   *settings.Store
	Keys       *credentials.Manager
	Accounts   *accounts.Service
	Presence   *presence.Tracker
	Reconciler *presence.Reconciler
	Limiter    *ratelimit.Manager
}

// OpenServices opens and migrates the database, seeds settings and wires
// every service the API needs.
func OpenServices(ctx context.Context, configPath string) (_ *Services, err error) {
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			closeDB(conn)
		}
	}()
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}

	securityCfg, err := config.LoadSecurityConfig(configPath)
	if err != nil {
		return nil, err
	}
	cipher, err := security.NewCipher(securityCfg.AppKey)
	if err != nil {
		return nil, err
	}
	store := settings.NewStore(conn, cipher)
	seeded, errSeed := store.EnsureDefaults(ctx)
	if errSeed != nil {
		return nil, errSeed
	}
	if seeded > 0 {
		log.Infof("seeded %d default settings", seeded)
	}
	if errRefresh := store.Refresh(ctx); errRefresh != nil {
		return nil, errRefresh
	}

	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		return nil, err
	}
	if jwtCfg.Secret == "" {
		return nil, fmt.Errorf("missing jwt secret (set `jwt.secret` in config file or JWT_SECRET)")
	}
	presenceCfg, err := config.LoadPresenceConfig(configPath)
	if err != nil {
		return nil, err
	}

	keys := credentials.NewManager(conn, cipher, store, securityCfg.StretchSecret)
	mailer := notify.NewSMTPMailer(store.Snapshot(), nil)
	svc := accounts.NewService(conn, store, keys, mailer, accounts.Config{
		JWTSecret:          jwtCfg.Secret,
		JWTExpiry:          jwtCfg.Expiry,
		MinPasswordEntropy: securityCfg.MinPasswordEntropy,
	})
	tracker := presence.NewTracker(conn)

	return &Services{
		DB:         conn,
		Settings:   store,
		Keys:       keys,
		Accounts:   svc,
		Presence:   tracker,
		Reconciler: presence.NewReconciler(tracker, presenceCfg.ReconcileInterval),
		Limiter:    ratelimit.NewManager(ratelimit.SnapshotProvider(store.Snapshot()), nil, nil),
	}, nil
}

// Close releases the database pool and the rate limiter backend.
func (s *Services) Close() {
	if s == nil {
		return
	}
	if errClose := s.Limiter.Close(); errClose != nil {
		log.WithError(errClose).Warn("rate limiter close failed")
	}
	if s.DB != nil {
		closeDB(s.DB)
	}
}

func closeDB(conn *gorm.DB) {
	sqlDB, errDB := conn.DB()
	if errDB != nil {
		return
	}
	if errClose := sqlDB.Close(); errClose != nil {
		log.WithError(errClose).Warn("database close failed")
	}
}

// NewEngine builds the gin engine serving the API.
func NewEngine(services *Services) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, api.Deps{
		DB:         services.DB,
		Accounts:   services.Accounts,
		Keys:       services.Keys,
		Settings:   services.Settings,
		Presence:   services.Presence,
		Reconciler: services.Reconciler,
		Limiter:    services.Limiter,
	})
	registerBootstrapRoutes(engine, services)
	return engine
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	services, err := OpenServices(ctx, configPath)
	if err != nil {
		return err
	}
	defer services.Close()

	if _, errGroup := services.Keys.GetGroupKeypair(ctx); errGroup != nil {
		return fmt.Errorf("bootstrap group keypair: %w", errGroup)
	}
	if purged, errPurge := services.Accounts.PurgeRevokedTokens(ctx); errPurge != nil {
		log.WithError(errPurge).Warn("purge revoked tokens failed")
	} else if purged > 0 {
		log.Infof("purged %d expired revoked tokens", purged)
	}
	if initialized, errInit := HasAdminInitialized(services.DB); errInit == nil && !initialized {
		log.Warn("no administrator exists yet, POST /api/init/setup to create one")
	}

	services.Reconciler.Start(ctx)
	settingsWatcher := watcher.NewSettingsWatcher(services.DB, services.Settings, 0)
	settingsWatcher.Start(ctx)
	defer settingsWatcher.Stop()

	gin.SetMode(gin.ReleaseMode)
	serverCfg := config.LoadServerConfig(configPath, defaultPort)
	srv := &http.Server{
		Addr:              net.JoinHostPort(serverCfg.Host, strconv.Itoa(serverCfg.Port)),
		Handler:           NewEngine(services),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting LIMS API on %s (config=%s)", srv.Addr, configPath)
		var errServe error
		if serverCfg.TLS.Enable {
			errServe = srv.ListenAndServeTLS(serverCfg.TLS.Cert, serverCfg.TLS.Key)
		} else {
			errServe = srv.ListenAndServe()
		}
		if errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
			errCh <- errServe
		}
		close(errCh)
	}()

	select {
	case errServe, ok := <-errCh:
		if ok {
			return errServe
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("server shutdown: %w", errShutdown)
	}
	log.Info("LIMS API stopped")
	return nil
}

// ReconcileOnce runs a single presence sweep and logs the status counts.
func ReconcileOnce(ctx context.Context, cfg config.AppConfig) (presence.Summary, error) {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return presence.Summary{}, err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return presence.Summary{}, err
	}
	defer closeDB(conn)
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return presence.Summary{}, errMigrate
	}

	tracker := presence.NewTracker(conn)
	result, err := presence.NewReconciler(tracker, 0).RunOnce(ctx)
	if err != nil {
		return presence.Summary{}, err
	}
	summary, err := tracker.Summary(ctx)
	if err != nil {
		return presence.Summary{}, err
	}
	log.WithFields(log.Fields{
		"changed": result.Changed(),
		"online":  summary.Online,
		"away":    summary.Away,
		"offline": summary.Offline,
	}).Info("presence reconciled")
	return summary, nil
}
