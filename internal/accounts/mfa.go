package accounts

import (
	"context"
	"fmt"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/security"
	"github.com/labforge/lims-admin/internal/settings"
)

// PrepareTOTP creates an enrollment secret. Nothing is stored until ConfirmTOTP.
func (s *Service) PrepareTOTP(ctx context.Context, userID uint64) (security.TOTPEnrollment, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return security.TOTPEnrollment{}, err
	}
	issuer := s.settings.Snapshot().String(settings.LabNameKey, settings.DefaultLabName)
	return security.GenerateTOTP(issuer, user.Email)
}

// ConfirmTOTP stores the secret once the user proves they can produce codes for it.
func (s *Service) ConfirmTOTP(ctx context.Context, userID uint64, secret, code string) error {
	if secret == "" {
		return apperr.InvalidArg("secret is required")
	}
	if !security.ValidateTOTP(code, secret) {
		return apperr.InvalidArg("invalid two-factor code")
	}
	return s.setTOTPSecret(ctx, userID, secret)
}

// DisableTOTP removes the secret after checking a current code.
func (s *Service) DisableTOTP(ctx context.Context, userID uint64, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return apperr.InvalidArg("two-factor authentication is not enabled")
	}
	if !security.ValidateTOTP(code, user.TOTPSecret) {
		return apperr.InvalidArg("invalid two-factor code")
	}
	return s.setTOTPSecret(ctx, userID, "")
}

func (s *Service) setTOTPSecret(ctx context.Context, userID uint64, secret string) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("totp_secret", secret)
	if res.Error != nil {
		return fmt.Errorf("accounts: store totp secret: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return apperr.NotFound("user not found")
	}
	return nil
}
