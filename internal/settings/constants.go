package settings

// Lab information keys.
const (
	LabNameKey          = "lab_name"
	LabAddressKey       = "lab_address"
	LabPhoneKey         = "lab_phone"
	LabEmailKey         = "lab_email"
	LabLicenseNumberKey = "lab_license_number"
	// DefaultLabName is the fallback laboratory name.
	DefaultLabName = "LIMS Laboratory"
)

// System, security and API keys.
const (
	SystemTimezoneKey              = "system_timezone"
	SessionTimeoutKey              = "session_timeout"
	MaxFileUploadSizeKey           = "max_file_upload_size"
	EnableAuditLoggingKey          = "enable_audit_logging"
	EnableTwoFactorAuthKey         = "enable_two_factor_auth"
	PasswordMinLengthKey           = "password_min_length"
	PasswordRequireSpecialCharsKey = "password_require_special_chars"
	FailedLoginAttemptsLimitKey    = "failed_login_attempts_limit"
	AccountLockoutDurationKey      = "account_lockout_duration"
	APIRateLimitPerMinuteKey       = "api_rate_limit_per_minute"
	APITokenLifetimeDaysKey        = "api_token_lifetime_days"
	AuditLogRetentionDaysKey       = "audit_log_retention_days"
	APILogRetentionDaysKey         = "api_log_retention_days"
	AutoBackupEnabledKey           = "auto_backup_enabled"
	BackupFrequencyHoursKey        = "backup_frequency_hours"
	BackupRetentionDaysKey         = "backup_retention_days"
)

// Notification keys.
const (
	EmailNotificationsEnabledKey = "email_notifications_enabled"
	SMTPHostKey                  = "smtp_host"
	SMTPPortKey                  = "smtp_port"
	SMTPUsernameKey              = "smtp_username"
	SMTPPasswordKey              = "smtp_password"
	SMTPFromKey                  = "smtp_from"
)

// Rate limit backend keys.
const (
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "rate_limit_redis_enabled"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "rate_limit_redis_addr"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "rate_limit_redis_password"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "rate_limit_redis_db"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "rate_limit_redis_prefix"
	// DefaultRateLimitPerMinute is the fallback per-user limit (0 means unlimited).
	DefaultRateLimitPerMinute = 100
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "lims:rl"
)

// Group keypair keys.
const (
	GroupPrivateKeyKey = "group_private_key"
	GroupPublicKeyKey  = "group_public_key"
)

// Default describes a seeded setting.
type Default struct {
	Key         string
	Value       any
	Type        ValueType
	Description string
	Encrypted   bool
	System      bool
}

// Defaults is the catalogue created on first start when missing.
var Defaults = []Default{
	{Key: LabNameKey, Value: DefaultLabName, Type: TypeString, Description: "Laboratory name displayed throughout the system"},
	{Key: LabAddressKey, Value: "", Type: TypeString, Description: "Laboratory physical address"},
	{Key: LabPhoneKey, Value: "", Type: TypeString, Description: "Laboratory contact phone number"},
	{Key: LabEmailKey, Value: "", Type: TypeString, Description: "Laboratory contact email address"},
	{Key: LabLicenseNumberKey, Value: "", Type: TypeString, Description: "Laboratory license or certification number"},

	{Key: SystemTimezoneKey, Value: "UTC", Type: TypeString, Description: "Default system timezone", System: true},
	{Key: SessionTimeoutKey, Value: 480, Type: TypeInteger, Description: "User session timeout in minutes", System: true},
	{Key: MaxFileUploadSizeKey, Value: 10485760, Type: TypeInteger, Description: "Maximum file upload size in bytes", System: true},
	{Key: EnableAuditLoggingKey, Value: true, Type: TypeBoolean, Description: "Enable comprehensive audit logging", System: true},
	{Key: EnableTwoFactorAuthKey, Value: false, Type: TypeBoolean, Description: "Enable two-factor authentication requirement", System: true},

	{Key: PasswordMinLengthKey, Value: 8, Type: TypeInteger, Description: "Minimum password length requirement", System: true},
	{Key: PasswordRequireSpecialCharsKey, Value: true, Type: TypeBoolean, Description: "Require special characters in passwords", System: true},
	{Key: FailedLoginAttemptsLimitKey, Value: 5, Type: TypeInteger, Description: "Maximum failed login attempts before account lockout", System: true},
	{Key: AccountLockoutDurationKey, Value: 30, Type: TypeInteger, Description: "Account lockout duration in minutes", System: true},

	{Key: APIRateLimitPerMinuteKey, Value: DefaultRateLimitPerMinute, Type: TypeInteger, Description: "API requests per minute limit per user", System: true},
	{Key: APITokenLifetimeDaysKey, Value: 30, Type: TypeInteger, Description: "API token lifetime in days", System: true},

	{Key: AuditLogRetentionDaysKey, Value: 365, Type: TypeInteger, Description: "Audit log retention period in days", System: true},
	{Key: APILogRetentionDaysKey, Value: 90, Type: TypeInteger, Description: "API log retention period in days", System: true},

	{Key: AutoBackupEnabledKey, Value: true, Type: TypeBoolean, Description: "Enable automatic database backups", System: true},
	{Key: BackupFrequencyHoursKey, Value: 24, Type: TypeInteger, Description: "Backup frequency in hours", System: true},
	{Key: BackupRetentionDaysKey, Value: 30, Type: TypeInteger, Description: "Backup retention period in days", System: true},

	{Key: EmailNotificationsEnabledKey, Value: true, Type: TypeBoolean, Description: "Enable email notifications"},
	{Key: SMTPHostKey, Value: "", Type: TypeString, Description: "SMTP server hostname"},
	{Key: SMTPPortKey, Value: 587, Type: TypeInteger, Description: "SMTP server port"},
	{Key: SMTPUsernameKey, Value: "", Type: TypeString, Description: "SMTP authentication username", Encrypted: true},
	{Key: SMTPPasswordKey, Value: "", Type: TypeString, Description: "SMTP authentication password", Encrypted: true},
	{Key: SMTPFromKey, Value: "", Type: TypeString, Description: "Sender address for outgoing email"},

	{Key: RateLimitRedisEnabledKey, Value: false, Type: TypeBoolean, Description: "Share API rate limit counters through Redis"},
	{Key: RateLimitRedisAddrKey, Value: "", Type: TypeString, Description: "Redis address for rate limiting"},
	{Key: RateLimitRedisPasswordKey, Value: "", Type: TypeString, Description: "Redis password for rate limiting", Encrypted: true},
	{Key: RateLimitRedisDBKey, Value: 0, Type: TypeInteger, Description: "Redis database index for rate limiting"},
	{Key: RateLimitRedisPrefixKey, Value: DefaultRateLimitRedisPrefix, Type: TypeString, Description: "Redis key prefix for rate limiting"},
}
