package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath        = "CONFIG_PATH"
	EnvDBConnection      = "DB_CONNECTION"
	EnvJWTSecret         = "JWT_SECRET"
	EnvJWTExpiry         = "JWT_EXPIRY"
	EnvAppKey            = "APP_KEY"
	EnvStretchSecret     = "KEY_STRETCH_SECRET"
	EnvReconcileInterval = "PRESENCE_RECONCILE_INTERVAL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// envOverrides holds values that take precedence over the config file.
type envOverrides struct {
	ConfigPath        string `env:"CONFIG_PATH"`
	DBConnection      string `env:"DB_CONNECTION"`
	JWTSecret         string `env:"JWT_SECRET"`
	JWTExpiry         string `env:"JWT_EXPIRY"`
	AppKey            string `env:"APP_KEY"`
	StretchSecret     string `env:"KEY_STRETCH_SECRET"`
	ReconcileInterval string `env:"PRESENCE_RECONCILE_INTERVAL"`
}

func loadEnvOverrides() (envOverrides, error) {
	var env envOverrides
	if err := envconfig.Process(context.Background(), &env); err != nil {
		return envOverrides{}, fmt.Errorf("parse env: %w", err)
	}
	env.ConfigPath = strings.TrimSpace(env.ConfigPath)
	env.DBConnection = strings.TrimSpace(env.DBConnection)
	env.JWTSecret = strings.TrimSpace(env.JWTSecret)
	env.JWTExpiry = strings.TrimSpace(env.JWTExpiry)
	env.AppKey = strings.TrimSpace(env.AppKey)
	env.StretchSecret = strings.TrimSpace(env.StretchSecret)
	env.ReconcileInterval = strings.TrimSpace(env.ReconcileInterval)
	return env, nil
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	env, err := loadEnvOverrides()
	if err != nil {
		return AppConfig{}, err
	}
	return AppConfig{ConfigPath: ResolveConfigPath(env.ConfigPath)}, nil
}

// DatabaseFromEnv reports the DB_CONNECTION override, if any.
func DatabaseFromEnv() string {
	env, err := loadEnvOverrides()
	if err != nil {
		return ""
	}
	return env.DBConnection
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// SecurityConfig holds process-wide secrets for data at rest.
type SecurityConfig struct {
	AppKey             string  `yaml:"app-key"`              // Key for settings and private key encryption.
	StretchSecret      string  `yaml:"stretch-secret"`       // Secret mixed into the key stretching salt.
	MinPasswordEntropy float64 `yaml:"min-password-entropy"` // Entropy floor in bits.
}

// PresenceConfig controls the in-process reconciliation loop.
type PresenceConfig struct {
	ReconcileInterval time.Duration `yaml:"reconcile-interval"`
}

// LoggingConfig controls log level and file output.
type LoggingConfig struct {
	Debug      bool   `yaml:"debug"`
	ToFile     bool   `yaml:"logging-to-file"`
	File       string `yaml:"log-file"`
	MaxSizeMB  int    `yaml:"log-max-size-mb"`
	MaxBackups int    `yaml:"log-max-backups"`
	MaxAgeDays int    `yaml:"log-max-age-days"`
}

// TLSConfig holds optional TLS material for the API listener.
type TLSConfig struct {
	Enable bool   `yaml:"enable"`
	Cert   string `yaml:"cert"`
	Key    string `yaml:"key"`
}

// ServerConfig holds listener settings.
type ServerConfig struct {
	Host string    `yaml:"host"`
	Port int       `yaml:"port"`
	TLS  TLSConfig `yaml:"tls"`
}

// fileConfig maps the YAML config file.
type fileConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	DatabaseDSN string `yaml:"database-dsn"`
	Database    struct {
		DSN string `yaml:"dsn"`
	} `yaml:"database"`
	Debug         bool           `yaml:"debug"`
	LoggingToFile bool           `yaml:"logging-to-file"`
	LogFile       string         `yaml:"log-file"`
	LogMaxSizeMB  int            `yaml:"log-max-size-mb"`
	LogMaxBackups int            `yaml:"log-max-backups"`
	LogMaxAgeDays int            `yaml:"log-max-age-days"`
	JWT           JWTConfig      `yaml:"jwt"`
	Security      SecurityConfig `yaml:"security"`
	Presence      PresenceConfig `yaml:"presence"`
	TLS           TLSConfig      `yaml:"tls"`
}

func readFileConfig(configPath string) (fileConfig, error) {
	var cfg fileConfig
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("parse config file: %w", errUnmarshal)
	}
	return cfg, nil
}

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	env, errEnv := loadEnvOverrides()
	if errEnv != nil {
		return "", errEnv
	}
	if env.DBConnection != "" {
		return env.DBConnection, nil
	}

	cfg, err := readFileConfig(configPath)
	if err != nil {
		return "", err
	}
	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 30 * 24 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	result := JWTConfig{Expiry: defaultJWTExpiry}
	if cfg, errRead := readFileConfig(configPath); errRead == nil {
		result = cfg.JWT
	}

	env, errEnv := loadEnvOverrides()
	if errEnv != nil {
		return JWTConfig{}, errEnv
	}
	if env.JWTSecret != "" {
		result.Secret = env.JWTSecret
	}
	if env.JWTExpiry != "" {
		if expiry, errParse := time.ParseDuration(env.JWTExpiry); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// Security defaults.
const (
	DefaultStretchSecret      = "default-stretch"
	DefaultMinPasswordEntropy = 50
)

// ErrMissingAppKey indicates that no encryption key was configured.
var ErrMissingAppKey = errors.New("missing app key (set `security.app-key` in config file or APP_KEY)")

// LoadSecurityConfig loads the encryption key and stretch secret.
func LoadSecurityConfig(configPath string) (SecurityConfig, error) {
	result := SecurityConfig{}
	if cfg, errRead := readFileConfig(configPath); errRead == nil {
		result = cfg.Security
	}

	env, errEnv := loadEnvOverrides()
	if errEnv != nil {
		return SecurityConfig{}, errEnv
	}
	if env.AppKey != "" {
		result.AppKey = env.AppKey
	}
	if env.StretchSecret != "" {
		result.StretchSecret = env.StretchSecret
	}

	result.AppKey = strings.TrimSpace(result.AppKey)
	if result.AppKey == "" {
		return SecurityConfig{}, ErrMissingAppKey
	}
	if strings.TrimSpace(result.StretchSecret) == "" {
		result.StretchSecret = DefaultStretchSecret
	}
	if result.MinPasswordEntropy < 0 {
		result.MinPasswordEntropy = 0
	}
	if result.MinPasswordEntropy == 0 {
		result.MinPasswordEntropy = DefaultMinPasswordEntropy
	}
	return result, nil
}

// defaultReconcileInterval is the presence sweep period when unset.
const defaultReconcileInterval = time.Minute

// LoadPresenceConfig loads presence reconciliation settings.
func LoadPresenceConfig(configPath string) (PresenceConfig, error) {
	result := PresenceConfig{}
	if cfg, errRead := readFileConfig(configPath); errRead == nil {
		result = cfg.Presence
	}

	env, errEnv := loadEnvOverrides()
	if errEnv != nil {
		return PresenceConfig{}, errEnv
	}
	if env.ReconcileInterval != "" {
		if interval, errParse := time.ParseDuration(env.ReconcileInterval); errParse == nil {
			result.ReconcileInterval = interval
		}
	}
	if result.ReconcileInterval <= 0 {
		result.ReconcileInterval = defaultReconcileInterval
	}
	return result, nil
}

// LoadLoggingConfig loads log level and file rotation settings.
func LoadLoggingConfig(configPath string) LoggingConfig {
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return LoggingConfig{}
	}
	return LoggingConfig{
		Debug:      cfg.Debug,
		ToFile:     cfg.LoggingToFile,
		File:       strings.TrimSpace(cfg.LogFile),
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
	}
}

// LoadServerConfig loads listener settings, falling back to defaultPort.
func LoadServerConfig(configPath string, defaultPort int) ServerConfig {
	result := ServerConfig{Port: defaultPort}
	cfg, errRead := readFileConfig(configPath)
	if errRead != nil {
		return result
	}
	result.Host = strings.TrimSpace(cfg.Host)
	if cfg.Port > 0 {
		result.Port = cfg.Port
	}
	result.TLS = cfg.TLS
	return result
}
