package settings

import (
	"context"
	"net/mail"
	"strings"

	"github.com/labforge/lims-admin/internal/apperr"
	"gorm.io/gorm"
)

// LabInfo is the laboratory identity shown across the system.
type LabInfo struct {
	Name          string `json:"lab_name"`
	Address       string `json:"lab_address"`
	Phone         string `json:"lab_phone"`
	Email         string `json:"lab_email"`
	LicenseNumber string `json:"lab_license_number"`
}

// LabInfoUpdate holds optional lab information changes.
type LabInfoUpdate struct {
	Name          *string `json:"lab_name"`
	Address       *string `json:"lab_address"`
	Phone         *string `json:"lab_phone"`
	Email         *string `json:"lab_email"`
	LicenseNumber *string `json:"lab_license_number"`
}

// LabInfo reads the lab information keys.
func (s *Store) LabInfo(ctx context.Context) (LabInfo, error) {
	var info LabInfo
	fields := []struct {
		key string
		def string
		dst *string
	}{
		{LabNameKey, DefaultLabName, &info.Name},
		{LabAddressKey, "", &info.Address},
		{LabPhoneKey, "", &info.Phone},
		{LabEmailKey, "", &info.Email},
		{LabLicenseNumberKey, "", &info.LicenseNumber},
	}
	for _, f := range fields {
		v, err := s.GetString(ctx, f.key, f.def)
		if err != nil {
			return LabInfo{}, err
		}
		*f.dst = v
	}
	return info, nil
}

// UpdateLabInfo writes the supplied lab fields in one transaction.
func (s *Store) UpdateLabInfo(ctx context.Context, in LabInfoUpdate) (LabInfo, error) {
	if in.Name != nil && strings.TrimSpace(*in.Name) == "" {
		return LabInfo{}, apperr.InvalidArg("lab_name cannot be empty")
	}
	if in.Email != nil {
		if email := strings.TrimSpace(*in.Email); email != "" {
			if _, err := mail.ParseAddress(email); err != nil {
				return LabInfo{}, apperr.InvalidArg("lab_email is not a valid email address")
			}
		}
	}

	changes := []struct {
		key   string
		value *string
	}{
		{LabNameKey, in.Name},
		{LabAddressKey, in.Address},
		{LabPhoneKey, in.Phone},
		{LabEmailKey, in.Email},
		{LabLicenseNumberKey, in.LicenseNumber},
	}
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := s.WithTx(tx)
		for _, c := range changes {
			if c.value == nil {
				continue
			}
			if _, err := txStore.Set(ctx, c.key, strings.TrimSpace(*c.value), TypeString, SetOptions{}); err != nil {
				return err
			}
		}
		return nil
	})
	if errTx != nil {
		return LabInfo{}, errTx
	}
	s.refreshAfterWrite(ctx)
	return s.LabInfo(ctx)
}
