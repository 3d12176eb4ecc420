package accounts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/credentials"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/notify"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Config holds the process-level inputs of the account service.
type Config struct {
	JWTSecret          string
	JWTExpiry          time.Duration
	MinPasswordEntropy float64
}

// Session is an issued bearer token.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service owns sign-in, first-time setup and user administration.
type Service struct {
	db       *gorm.DB
	settings *settings.Store
	keys     *credentials.Manager
	mailer   notify.Mailer
	cfg      Config
	now      func() time.Time
}

// NewService constructs the account service.
func NewService(conn *gorm.DB, store *settings.Store, keys *credentials.Manager, mailer notify.Mailer, cfg Config) *Service {
	return &Service{
		db:       conn,
		settings: store,
		keys:     keys,
		mailer:   mailer,
		cfg:      cfg,
		now:      time.Now,
	}
}

// PasswordPolicy returns the current password rules.
func (s *Service) PasswordPolicy() security.PasswordPolicy {
	snap := s.settings.Snapshot()
	return security.PasswordPolicy{
		MinLength:      int(snap.Int(settings.PasswordMinLengthKey, 8)),
		RequireSpecial: snap.Bool(settings.PasswordRequireSpecialCharsKey, true),
		MinEntropy:     s.cfg.MinPasswordEntropy,
	}
}

// Authenticate checks credentials and, when two-factor sign-in is enabled
// and the user has enrolled, the TOTP code.
func (s *Service) Authenticate(ctx context.Context, email, password, totpCode string) (models.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return models.User{}, apperr.Unauthorized("invalid credentials")
	}
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, apperr.Unauthorized("invalid credentials")
		}
		return models.User{}, fmt.Errorf("accounts: load user: %w", err)
	}

	now := s.now().UTC()
	if user.LockedUntil != nil && now.Before(*user.LockedUntil) {
		return models.User{}, apperr.Forbidden("account is temporarily locked")
	}
	if !security.CheckPassword(user.Password, password) {
		if errFail := s.registerFailedLogin(ctx, &user, now); errFail != nil {
			return models.User{}, errFail
		}
		return models.User{}, apperr.Unauthorized("invalid credentials")
	}
	if !user.IsActive {
		return models.User{}, apperr.Forbidden("account is deactivated")
	}

	snap := s.settings.Snapshot()
	if snap.Bool(settings.EnableTwoFactorAuthKey, false) && user.TOTPSecret != "" {
		if strings.TrimSpace(totpCode) == "" {
			return models.User{}, apperr.Unauthorized("two-factor code required")
		}
		if !security.ValidateTOTP(totpCode, user.TOTPSecret) {
			return models.User{}, apperr.Unauthorized("invalid two-factor code")
		}
	}

	updates := map[string]any{
		"last_login_at":         now,
		"failed_login_attempts": 0,
		"locked_until":          nil,
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return models.User{}, fmt.Errorf("accounts: record login: %w", err)
	}
	user.LastLoginAt = &now
	user.FailedLoginAttempts = 0
	user.LockedUntil = nil
	return user, nil
}

func (s *Service) registerFailedLogin(ctx context.Context, user *models.User, now time.Time) error {
	snap := s.settings.Snapshot()
	limit := int(snap.Int(settings.FailedLoginAttemptsLimitKey, 5))
	lockout := time.Duration(snap.Int(settings.AccountLockoutDurationKey, 30)) * time.Minute

	attempts := user.FailedLoginAttempts + 1
	updates := map[string]any{"failed_login_attempts": attempts}
	if limit > 0 && attempts >= limit {
		until := now.Add(lockout)
		updates["failed_login_attempts"] = 0
		updates["locked_until"] = until
		log.WithFields(log.Fields{"user_id": user.ID, "until": until}).Warn("accounts: account locked after failed logins")
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", user.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("accounts: record failed login: %w", err)
	}
	return nil
}

// IssueSession signs a bearer token for the user. The lifetime comes from
// api_token_lifetime_days, falling back to the configured JWT expiry.
func (s *Service) IssueSession(user models.User) (Session, error) {
	expiry := s.cfg.JWTExpiry
	if days := s.settings.Snapshot().Int(settings.APITokenLifetimeDaysKey, 0); days > 0 {
		expiry = time.Duration(days) * 24 * time.Hour
	}
	token, expiresAt, err := security.IssueToken(s.cfg.JWTSecret, security.TokenSubject{
		UserID:       user.ID,
		UserType:     user.UserType,
		TokenVersion: user.TokenVersion,
	}, expiry, s.now().UTC())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, TokenType: "Bearer", ExpiresAt: expiresAt}, nil
}

// ResolveToken validates a bearer token and loads its active owner.
func (s *Service) ResolveToken(ctx context.Context, token string) (models.User, *security.Claims, error) {
	claims, err := security.ParseToken(s.cfg.JWTSecret, token)
	if err != nil {
		return models.User{}, nil, apperr.Unauthorized("invalid token")
	}
	var revoked int64
	if errCount := s.db.WithContext(ctx).Model(&models.RevokedToken{}).Where("jti = ?", claims.ID).Count(&revoked).Error; errCount != nil {
		return models.User{}, nil, fmt.Errorf("accounts: check revocation: %w", errCount)
	}
	if revoked > 0 {
		return models.User{}, nil, apperr.Unauthorized("token revoked")
	}
	user, err := s.GetUser(ctx, claims.UserID)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return models.User{}, nil, apperr.Unauthorized("invalid token")
		}
		return models.User{}, nil, err
	}
	if user.TokenVersion != claims.TokenVersion {
		return models.User{}, nil, apperr.Unauthorized("token revoked")
	}
	if !user.IsActive {
		return models.User{}, nil, apperr.Forbidden("account is deactivated")
	}
	return user, claims, nil
}

// RevokeToken signs out a single token.
func (s *Service) RevokeToken(ctx context.Context, claims *security.Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	expiresAt := s.now().UTC()
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	row := models.RevokedToken{JTI: claims.ID, UserID: claims.UserID, ExpiresAt: expiresAt}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("accounts: revoke token: %w", err)
	}
	return nil
}

// RevokeAllTokens invalidates every token issued to the user so far.
func (s *Service) RevokeAllTokens(ctx context.Context, userID uint64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Update("token_version", gorm.Expr("token_version + 1"))
	if res.Error != nil {
		return fmt.Errorf("accounts: revoke tokens: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// PurgeRevokedTokens drops revocation rows whose tokens have expired anyway.
func (s *Service) PurgeRevokedTokens(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Where("expires_at < ?", s.now().UTC()).Delete(&models.RevokedToken{})
	if res.Error != nil {
		return 0, fmt.Errorf("accounts: purge revoked tokens: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// SetupAccount sets the first password and issues the user's first keypair
// in one transaction. A second call fails with ConflictAlreadySetUp.
func (s *Service) SetupAccount(ctx context.Context, userID uint64, password string) (credentials.IssuedKeypair, error) {
	if err := s.PasswordPolicy().Validate(password); err != nil {
		return credentials.IssuedKeypair{}, err
	}
	hash, err := security.HashPassword(password)
	if err != nil {
		return credentials.IssuedKeypair{}, err
	}

	var issued credentials.IssuedKeypair
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ? AND account_is_set = ?", userID, false).
			Updates(map[string]any{"password": hash, "account_is_set": true})
		if res.Error != nil {
			return fmt.Errorf("accounts: setup account: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			var count int64
			if errCount := tx.Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; errCount != nil {
				return fmt.Errorf("accounts: setup account: %w", errCount)
			}
			if count == 0 {
				return apperr.NotFound("user not found")
			}
			return apperr.AlreadySetUp("account is already set up")
		}
		var errGen error
		issued, errGen = s.keys.GenerateKeypairTx(ctx, tx, userID, credentials.DefaultBits)
		return errGen
	})
	if errTx != nil {
		return credentials.IssuedKeypair{}, errTx
	}
	log.WithField("user_id", userID).Info("accounts: account set up")
	return issued, nil
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID uint64, current, next string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !security.CheckPassword(user.Password, current) {
		return apperr.InvalidArg("current password is incorrect")
	}
	if current == next {
		return apperr.InvalidArg("new password must differ from the current one")
	}
	if errPolicy := s.PasswordPolicy().Validate(next); errPolicy != nil {
		return errPolicy
	}
	hash, err := security.HashPassword(next)
	if err != nil {
		return err
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Update("password", hash).Error; errUpdate != nil {
		return fmt.Errorf("accounts: change password: %w", errUpdate)
	}
	return nil
}

// TouchLogin records a login time without re-authenticating.
func (s *Service) TouchLogin(ctx context.Context, userID uint64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("last_login_at", s.now().UTC())
	if res.Error != nil {
		return fmt.Errorf("accounts: touch login: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}

// ProfileUpdate holds the self-service profile fields.
type ProfileUpdate struct {
	FirstName   *string `json:"first_name"`
	LastName    *string `json:"last_name"`
	PhoneNumber *string `json:"phone_number"`
}

// UpdateProfile changes the caller's own name and phone number.
func (s *Service) UpdateProfile(ctx context.Context, userID uint64, in ProfileUpdate) (models.User, error) {
	updates := map[string]any{}
	if in.FirstName != nil {
		name := strings.TrimSpace(*in.FirstName)
		if name == "" {
			return models.User{}, apperr.InvalidArg("first_name cannot be empty")
		}
		updates["first_name"] = name
	}
	if in.LastName != nil {
		name := strings.TrimSpace(*in.LastName)
		if name == "" {
			return models.User{}, apperr.InvalidArg("last_name cannot be empty")
		}
		updates["last_name"] = name
	}
	if in.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*in.PhoneNumber)
	}
	if len(updates) > 0 {
		res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates)
		if res.Error != nil {
			return models.User{}, fmt.Errorf("accounts: update profile: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return models.User{}, apperr.NotFound("user not found")
		}
	}
	return s.GetUser(ctx, userID)
}

// GetUser loads a user by id.
func (s *Service) GetUser(ctx context.Context, userID uint64) (models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, apperr.NotFound("user not found")
		}
		return models.User{}, fmt.Errorf("accounts: load user: %w", err)
	}
	return user, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
