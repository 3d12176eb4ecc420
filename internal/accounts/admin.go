package accounts

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/labforge/lims-admin/internal/apperr"
	dbutil "github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/notify"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const temporaryPasswordLength = 12

// CreateUserInput describes a new lab account.
type CreateUserInput struct {
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	Email       string     `json:"email"`
	PhoneNumber string     `json:"phone_number"`
	UserType    string     `json:"user_type"`
	DateHired   *time.Time `json:"date_hired"`
}

// CreatedUser is the result of CreateUser and ResetPassword.
type CreatedUser struct {
	User              models.User
	TemporaryPassword string
	EmailSent         bool
}

// UpdateUserInput holds optional admin edits.
type UpdateUserInput struct {
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Email       *string    `json:"email"`
	PhoneNumber *string    `json:"phone_number"`
	UserType    *string    `json:"user_type"`
	DateHired   *time.Time `json:"date_hired"`
	IsActive    *bool      `json:"is_active"`
}

// ListFilter narrows ListUsers.
type ListFilter struct {
	Search        string
	UserType      string
	Active        *bool
	SessionStatus string
	Page          int
	PageSize      int
}

// CreateUser adds an account with a temporary password and mails it when
// notifications are configured. The account must be set up on first sign-in.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput) (CreatedUser, error) {
	email := normalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		return CreatedUser{}, err
	}
	userType := strings.TrimSpace(in.UserType)
	if userType == "" {
		userType = models.UserTypeTechnician
	}
	if !models.ValidUserType(userType) {
		return CreatedUser{}, apperr.InvalidArg(fmt.Sprintf("unknown user type %q", userType))
	}
	if strings.TrimSpace(in.FirstName) == "" || strings.TrimSpace(in.LastName) == "" {
		return CreatedUser{}, apperr.InvalidArg("first_name and last_name are required")
	}

	temp, err := security.GenerateTemporaryPassword(temporaryPasswordLength)
	if err != nil {
		return CreatedUser{}, err
	}
	hash, err := security.HashPassword(temp)
	if err != nil {
		return CreatedUser{}, err
	}

	user := models.User{
		FirstName:     strings.TrimSpace(in.FirstName),
		LastName:      strings.TrimSpace(in.LastName),
		Email:         email,
		PhoneNumber:   strings.TrimSpace(in.PhoneNumber),
		Password:      hash,
		DateHired:     in.DateHired,
		UserType:      userType,
		IsActive:      true,
		SessionStatus: models.SessionStatusOffline,
	}
	if errCreate := s.db.WithContext(ctx).Create(&user).Error; errCreate != nil {
		if dbutil.IsUniqueViolation(errCreate) {
			return CreatedUser{}, apperr.InvalidArg("email is already in use")
		}
		return CreatedUser{}, fmt.Errorf("accounts: create user: %w", errCreate)
	}
	log.WithFields(log.Fields{"user_id": user.ID, "user_type": user.UserType}).Info("accounts: user created")

	return CreatedUser{
		User:              user,
		TemporaryPassword: temp,
		EmailSent:         s.notify(ctx, user, temp, false),
	}, nil
}

// ListUsers returns users matching the filter and the total match count.
func (s *Service) ListUsers(ctx context.Context, filter ListFilter) ([]models.User, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.User{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+search+"%")
		q = q.Where(
			"("+dbutil.CaseInsensitiveLikeExpr(s.db, "first_name")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(s.db, "last_name")+" OR "+
				dbutil.CaseInsensitiveLikeExpr(s.db, "email")+")",
			pattern, pattern, pattern,
		)
	}
	if userType := strings.TrimSpace(filter.UserType); userType != "" {
		q = q.Where("user_type = ?", userType)
	}
	if filter.Active != nil {
		q = q.Where("is_active = ?", *filter.Active)
	}
	if status := strings.TrimSpace(filter.SessionStatus); status != "" {
		q = q.Where("session_status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("accounts: count users: %w", err)
	}

	page, size := filter.Page, filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	if page <= 0 {
		page = 1
	}
	var rows []models.User
	if err := q.Order("created_at DESC").Order("id DESC").
		Offset((page - 1) * size).Limit(size).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("accounts: list users: %w", err)
	}
	return rows, total, nil
}

// UpdateUser applies admin edits. The last active administrator cannot be
// demoted or deactivated.
func (s *Service) UpdateUser(ctx context.Context, actorID, userID uint64, in UpdateUserInput) (models.User, error) {
	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	updates := map[string]any{}
	if in.FirstName != nil {
		if v := strings.TrimSpace(*in.FirstName); v != "" {
			updates["first_name"] = v
		}
	}
	if in.LastName != nil {
		if v := strings.TrimSpace(*in.LastName); v != "" {
			updates["last_name"] = v
		}
	}
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		if errEmail := validateEmail(email); errEmail != nil {
			return models.User{}, errEmail
		}
		updates["email"] = email
	}
	if in.PhoneNumber != nil {
		updates["phone_number"] = strings.TrimSpace(*in.PhoneNumber)
	}
	if in.DateHired != nil {
		updates["date_hired"] = in.DateHired.UTC()
	}
	demoting := false
	if in.UserType != nil {
		userType := strings.TrimSpace(*in.UserType)
		if !models.ValidUserType(userType) {
			return models.User{}, apperr.InvalidArg(fmt.Sprintf("unknown user type %q", userType))
		}
		updates["user_type"] = userType
		demoting = current.UserType == models.UserTypeAdmin && userType != models.UserTypeAdmin
	}
	deactivating := false
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
		deactivating = current.IsActive && !*in.IsActive
		if deactivating && actorID == userID {
			return models.User{}, apperr.Forbidden("you cannot deactivate your own account")
		}
	}
	if (demoting || deactivating) && current.UserType == models.UserTypeAdmin && current.IsActive {
		if errLast := s.ensureOtherActiveAdmin(ctx, userID); errLast != nil {
			return models.User{}, errLast
		}
	}
	if len(updates) == 0 {
		return current, nil
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; errUpdate != nil {
		if dbutil.IsUniqueViolation(errUpdate) {
			return models.User{}, apperr.InvalidArg("email is already in use")
		}
		return models.User{}, fmt.Errorf("accounts: update user: %w", errUpdate)
	}
	return s.GetUser(ctx, userID)
}

// ToggleActive flips the user's active flag.
func (s *Service) ToggleActive(ctx context.Context, actorID, userID uint64) (models.User, error) {
	current, err := s.GetUser(ctx, userID)
	if err != nil {
		return models.User{}, err
	}
	next := !current.IsActive
	return s.UpdateUser(ctx, actorID, userID, UpdateUserInput{IsActive: &next})
}

// ResetPassword replaces the password with a temporary one and requires the
// account to be set up again.
func (s *Service) ResetPassword(ctx context.Context, userID uint64) (CreatedUser, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return CreatedUser{}, err
	}
	temp, err := security.GenerateTemporaryPassword(temporaryPasswordLength)
	if err != nil {
		return CreatedUser{}, err
	}
	hash, err := security.HashPassword(temp)
	if err != nil {
		return CreatedUser{}, err
	}
	updates := map[string]any{
		"password":              hash,
		"account_is_set":        false,
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"token_version":         gorm.Expr("token_version + 1"),
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; errUpdate != nil {
		return CreatedUser{}, fmt.Errorf("accounts: reset password: %w", errUpdate)
	}
	user, err = s.GetUser(ctx, userID)
	if err != nil {
		return CreatedUser{}, err
	}
	log.WithField("user_id", userID).Info("accounts: password reset")
	return CreatedUser{
		User:              user,
		TemporaryPassword: temp,
		EmailSent:         s.notify(ctx, user, temp, true),
	}, nil
}

// DeleteUser removes a user and their keypairs. Admins cannot delete
// themselves or the last active administrator.
func (s *Service) DeleteUser(ctx context.Context, actorID, userID uint64) error {
	if actorID == userID {
		return apperr.Forbidden("you cannot delete your own account")
	}
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.UserType == models.UserTypeAdmin && user.IsActive {
		if errLast := s.ensureOtherActiveAdmin(ctx, userID); errLast != nil {
			return errLast
		}
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errKeys := tx.Where("user_id = ?", userID).Delete(&models.Keypair{}).Error; errKeys != nil {
			return errKeys
		}
		if errTokens := tx.Where("user_id = ?", userID).Delete(&models.RevokedToken{}).Error; errTokens != nil {
			return errTokens
		}
		return tx.Delete(&models.User{}, userID).Error
	})
	if errTx != nil {
		return fmt.Errorf("accounts: delete user: %w", errTx)
	}
	log.WithFields(log.Fields{"user_id": userID, "actor_id": actorID}).Info("accounts: user deleted")
	return nil
}

// Stats counts users by type and status for the admin dashboard.
type Stats struct {
	Total      int64            `json:"total"`
	Active     int64            `json:"active"`
	PendingSet int64            `json:"pending_setup"`
	ByType     map[string]int64 `json:"by_type"`
}

// UserStats summarises the user base.
func (s *Service) UserStats(ctx context.Context) (Stats, error) {
	out := Stats{ByType: map[string]int64{}}
	base := func() *gorm.DB { return s.db.WithContext(ctx).Model(&models.User{}) }
	if err := base().Count(&out.Total).Error; err != nil {
		return Stats{}, fmt.Errorf("accounts: stats: %w", err)
	}
	if err := base().Where("is_active = ?", true).Count(&out.Active).Error; err != nil {
		return Stats{}, fmt.Errorf("accounts: stats: %w", err)
	}
	if err := base().Where("account_is_set = ?", false).Count(&out.PendingSet).Error; err != nil {
		return Stats{}, fmt.Errorf("accounts: stats: %w", err)
	}
	var rows []struct {
		UserType string
		Count    int64
	}
	if err := base().Select("user_type, COUNT(*) AS count").Group("user_type").Scan(&rows).Error; err != nil {
		return Stats{}, fmt.Errorf("accounts: stats: %w", err)
	}
	for _, row := range rows {
		out.ByType[row.UserType] = row.Count
	}
	return out, nil
}

func (s *Service) ensureOtherActiveAdmin(ctx context.Context, excludeID uint64) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("user_type = ? AND is_active = ? AND id <> ?", models.UserTypeAdmin, true, excludeID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("accounts: count admins: %w", err)
	}
	if count == 0 {
		return apperr.Forbidden("the last active administrator cannot be removed")
	}
	return nil
}

// notify sends the account email and reports whether it went out. Failures
// are logged; the account change itself stands.
func (s *Service) notify(ctx context.Context, user models.User, temp string, reset bool) bool {
	if s.mailer == nil || !s.mailer.Enabled() {
		return false
	}
	msg := notify.AccountEmail{
		To:                user.Email,
		Name:              user.FullName(),
		LabName:           s.settings.Snapshot().String(settings.LabNameKey, settings.DefaultLabName),
		TemporaryPassword: temp,
	}
	send := s.mailer.SendAccountCreated
	if reset {
		send = s.mailer.SendPasswordReset
	}
	if err := send(ctx, msg); err != nil {
		log.WithError(err).WithField("user_id", user.ID).Warn("accounts: notification email failed")
		return false
	}
	return true
}

func validateEmail(email string) error {
	if email == "" {
		return apperr.InvalidArg("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.InvalidArg("email is not a valid address")
	}
	return nil
}

