package api

import (
	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/accounts"
	"github.com/labforge/lims-admin/internal/credentials"
	"github.com/labforge/lims-admin/internal/http/api/handlers"
	"github.com/labforge/lims-admin/internal/presence"
	"github.com/labforge/lims-admin/internal/ratelimit"
	"github.com/labforge/lims-admin/internal/settings"
	"gorm.io/gorm"
)

// Deps are the services the API is built on.
type Deps struct {
	DB         *gorm.DB
	Accounts   *accounts.Service
	Keys       *credentials.Manager
	Settings   *settings.Store
	Presence   *presence.Tracker
	Reconciler *presence.Reconciler
	Limiter    *ratelimit.Manager
}

// RegisterRoutes registers API routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Accounts == nil {
		return
	}
	r.Use(requestLogMiddleware())

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(deps.Accounts)
	keypairHandler := handlers.NewKeypairHandler(deps.Keys)
	presenceHandler := handlers.NewPresenceHandler(deps.Presence, deps.Reconciler)
	settingHandler := handlers.NewSettingHandler(deps.Settings)
	userHandler := handlers.NewUserHandler(deps.Accounts, deps.Keys)

	apiGroup := r.Group("/api")

	public := apiGroup.Group("")
	public.Use(rateLimitMiddleware(deps.Limiter))
	public.POST("/auth/login", authHandler.Login)
	public.GET("/keys/jwks", keypairHandler.JWKS)

	// Reachable before first-time setup.
	selfAuthed := apiGroup.Group("")
	selfAuthed.Use(authMiddleware(deps.Accounts), rateLimitMiddleware(deps.Limiter))
	selfAuthed.POST("/auth/logout", authHandler.Logout)
	selfAuthed.POST("/auth/logout-all", authHandler.LogoutAll)
	selfAuthed.GET("/auth/profile", authHandler.Profile)
	selfAuthed.POST("/auth/setup-account", authHandler.SetupAccount)

	authed := apiGroup.Group("")
	authed.Use(authMiddleware(deps.Accounts), accountSetMiddleware(), rateLimitMiddleware(deps.Limiter))
	authed.PUT("/auth/profile", authHandler.UpdateProfile)
	authed.POST("/auth/change-password", authHandler.ChangePassword)
	authed.POST("/auth/update-login", authHandler.UpdateLogin)
	authed.POST("/auth/mfa/totp/prepare", authHandler.PrepareTOTP)
	authed.POST("/auth/mfa/totp/confirm", authHandler.ConfirmTOTP)
	authed.POST("/auth/mfa/totp/disable", authHandler.DisableTOTP)

	authed.POST("/presence/heartbeat", presenceHandler.Heartbeat)
	authed.GET("/presence/status", presenceHandler.Status)
	authed.POST("/presence/offline", presenceHandler.Offline)
	authed.GET("/presence/online", presenceHandler.Online)

	authed.POST("/keypairs", keypairHandler.Generate)
	authed.GET("/keypairs", keypairHandler.Active)
	authed.GET("/keypairs/history", keypairHandler.History)
	authed.POST("/keypairs/:id/verify", keypairHandler.Verify)
	authed.GET("/group-keypair/public", keypairHandler.GroupPublicKey)

	admin := authed.Group("/admin")
	admin.Use(adminMiddleware())

	admin.POST("/users", userHandler.Create)
	admin.GET("/users", userHandler.List)
	admin.GET("/users/stats", userHandler.Stats)
	admin.GET("/users/:id", userHandler.Get)
	admin.PUT("/users/:id", userHandler.Update)
	admin.DELETE("/users/:id", userHandler.Delete)
	admin.POST("/users/:id/toggle-active", userHandler.ToggleActive)
	admin.POST("/users/:id/reset-password", userHandler.ResetPassword)
	admin.GET("/users/:id/keypairs", userHandler.Keypairs)

	admin.POST("/settings", settingHandler.Create)
	admin.GET("/settings", settingHandler.List)
	admin.GET("/settings/:key", settingHandler.Get)
	admin.PUT("/settings/:key", settingHandler.Update)
	admin.DELETE("/settings/:key", settingHandler.Delete)
	admin.GET("/lab-info", settingHandler.LabInfo)
	admin.PUT("/lab-info", settingHandler.UpdateLabInfo)

	admin.GET("/group-keypair", keypairHandler.GroupKeypair)
	admin.POST("/group-keypair/regenerate", keypairHandler.RegenerateGroupKeypair)

	admin.POST("/presence/reconcile", presenceHandler.Reconcile)
}
