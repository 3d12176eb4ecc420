package ratelimit

import (
	"strings"

	"github.com/labforge/lims-admin/internal/settings"
)

// SettingsConfig captures the rate limit settings of the current snapshot.
type SettingsConfig struct {
	Limit         int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// DefaultSettingsConfig is used before any settings have been loaded.
func DefaultSettingsConfig() SettingsConfig {
	return SettingsConfig{
		Limit:       settings.DefaultRateLimitPerMinute,
		RedisPrefix: settings.DefaultRateLimitRedisPrefix,
	}
}

// LoadSettingsConfig reads rate limit settings from a settings snapshot.
func LoadSettingsConfig(snap *settings.Snapshot) SettingsConfig {
	cfg := DefaultSettingsConfig()
	if snap == nil {
		return cfg
	}
	cfg.Limit = int(snap.Int(settings.APIRateLimitPerMinuteKey, int64(cfg.Limit)))
	cfg.RedisEnabled = snap.Bool(settings.RateLimitRedisEnabledKey, false)
	cfg.RedisAddr = strings.TrimSpace(snap.String(settings.RateLimitRedisAddrKey, ""))
	cfg.RedisPassword = strings.TrimSpace(snap.String(settings.RateLimitRedisPasswordKey, ""))
	cfg.RedisDB = int(snap.Int(settings.RateLimitRedisDBKey, 0))
	cfg.RedisPrefix = strings.TrimSpace(snap.String(settings.RateLimitRedisPrefixKey, cfg.RedisPrefix))
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = settings.DefaultRateLimitRedisPrefix
	}
	if cfg.RedisDB < 0 {
		cfg.RedisDB = 0
	}
	if cfg.Limit < 0 {
		cfg.Limit = 0
	}
	return cfg
}

// SnapshotProvider returns a SettingsProvider bound to snap.
func SnapshotProvider(snap *settings.Snapshot) SettingsProvider {
	return func() SettingsConfig {
		return LoadSettingsConfig(snap)
	}
}
