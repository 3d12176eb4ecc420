package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Cipher encrypts key material at rest.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// IssuedKeypair is returned once at generation time and carries plaintext material.
type IssuedKeypair struct {
	ID                  uint64    `json:"id"`
	UserID              uint64    `json:"user_id"`
	Algorithm           string    `json:"key_algorithm"`
	PublicKey           string    `json:"public_key"`
	PrivateKey          string    `json:"private_key"`
	PrivateKeyStretched string    `json:"private_key_stretched"`
	GeneratedAt         time.Time `json:"generated_at"`
	IsActive            bool      `json:"is_active"`
}

// KeypairInfo is the non-secret view of a stored keypair.
type KeypairInfo struct {
	ID          uint64     `json:"id"`
	UserID      uint64     `json:"user_id"`
	Algorithm   string     `json:"key_algorithm"`
	PublicKey   string     `json:"public_key"`
	GeneratedAt time.Time  `json:"generated_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	IsActive    bool       `json:"is_active"`
}

// Option customises a Manager.
type Option func(*Manager)

// WithKeyGenerator replaces the RSA engine.
func WithKeyGenerator(gen KeyGenerator) Option {
	return func(m *Manager) {
		if gen != nil {
			m.generate = gen
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// Manager issues, rotates and verifies user and group keypairs.
type Manager struct {
	db            *gorm.DB
	cipher        Cipher
	settings      *settings.Store
	stretchSecret string
	generate      KeyGenerator
	now           func() time.Time
}

// NewManager constructs a credential manager.
func NewManager(conn *gorm.DB, cipher Cipher, store *settings.Store, stretchSecret string, opts ...Option) *Manager {
	m := &Manager{
		db:            conn,
		cipher:        cipher,
		settings:      store,
		stretchSecret: stretchSecret,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateKeypair issues a new active keypair for the user, deactivating
// previous ones in the same transaction.
func (m *Manager) GenerateKeypair(ctx context.Context, userID uint64, bits int) (IssuedKeypair, error) {
	bits, err := NormalizeBits(bits)
	if err != nil {
		return IssuedKeypair{}, err
	}
	var issued IssuedKeypair
	errTx := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var errGen error
		issued, errGen = m.GenerateKeypairTx(ctx, tx, userID, bits)
		return errGen
	})
	if errTx != nil {
		return IssuedKeypair{}, errTx
	}
	log.WithFields(log.Fields{
		"user_id":    userID,
		"keypair_id": issued.ID,
		"algorithm":  issued.Algorithm,
	}).Info("credentials: keypair generated")
	return issued, nil
}

// GenerateKeypairTx is GenerateKeypair inside a caller-owned transaction.
func (m *Manager) GenerateKeypairTx(ctx context.Context, tx *gorm.DB, userID uint64, bits int) (IssuedKeypair, error) {
	bits, err := NormalizeBits(bits)
	if err != nil {
		return IssuedKeypair{}, err
	}

	var owner models.User
	errOwner := db.LockForUpdate(tx.WithContext(ctx).Select("id")).
		Where("id = ?", userID).
		First(&owner).Error
	if errOwner != nil {
		if errors.Is(errOwner, gorm.ErrRecordNotFound) {
			return IssuedKeypair{}, apperr.NotFound("user not found")
		}
		return IssuedKeypair{}, fmt.Errorf("credentials: lock user: %w", errOwner)
	}

	material, err := generateMaterial(m.generate, bits)
	if err != nil {
		return IssuedKeypair{}, err
	}
	stretched := Stretch(material.PrivateKeyPEM, m.stretchSecret, userID)

	privateEnc, err := m.cipher.Encrypt(material.PrivateKeyPEM)
	if err != nil {
		return IssuedKeypair{}, fmt.Errorf("credentials: encrypt private key: %w", err)
	}
	stretchedEnc, err := m.cipher.Encrypt(stretched)
	if err != nil {
		return IssuedKeypair{}, fmt.Errorf("credentials: encrypt stretched key: %w", err)
	}

	if errDeactivate := tx.WithContext(ctx).Model(&models.Keypair{}).
		Where("user_id = ? AND is_active = ?", userID, true).
		Update("is_active", false).Error; errDeactivate != nil {
		return IssuedKeypair{}, fmt.Errorf("credentials: deactivate keypairs: %w", errDeactivate)
	}

	row := models.Keypair{
		UserID:                       userID,
		PublicKey:                    material.PublicKeyPEM,
		PrivateKeyEncrypted:          privateEnc,
		PrivateKeyStretchedEncrypted: stretchedEnc,
		KeyAlgorithm:                 material.Algorithm,
		GeneratedAt:                  m.now().UTC(),
		IsActive:                     true,
	}
	if errCreate := tx.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return IssuedKeypair{}, fmt.Errorf("credentials: insert keypair: %w", errCreate)
	}

	return IssuedKeypair{
		ID:                  row.ID,
		UserID:              userID,
		Algorithm:           row.KeyAlgorithm,
		PublicKey:           material.PublicKeyPEM,
		PrivateKey:          material.PrivateKeyPEM,
		PrivateKeyStretched: stretched,
		GeneratedAt:         row.GeneratedAt,
		IsActive:            true,
	}, nil
}

// GetActiveKeypair returns the user's active keypair.
func (m *Manager) GetActiveKeypair(ctx context.Context, userID uint64) (KeypairInfo, error) {
	var row models.Keypair
	err := m.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("generated_at DESC").
		Order("id DESC").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return KeypairInfo{}, apperr.NotFound("no active keypair")
		}
		return KeypairInfo{}, fmt.Errorf("credentials: active keypair: %w", err)
	}
	return toInfo(&row), nil
}

// ListKeypairs returns every keypair ever issued to the user, newest first.
func (m *Manager) ListKeypairs(ctx context.Context, userID uint64) ([]KeypairInfo, error) {
	var rows []models.Keypair
	if err := m.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("generated_at DESC").
		Order("id DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("credentials: list keypairs: %w", err)
	}
	out := make([]KeypairInfo, 0, len(rows))
	for i := range rows {
		out = append(out, toInfo(&rows[i]))
	}
	return out, nil
}

// ActiveKeypairs returns the active keypair of every user.
func (m *Manager) ActiveKeypairs(ctx context.Context) ([]KeypairInfo, error) {
	var rows []models.Keypair
	if err := m.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("user_id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("credentials: active keypairs: %w", err)
	}
	out := make([]KeypairInfo, 0, len(rows))
	for i := range rows {
		out = append(out, toInfo(&rows[i]))
	}
	return out, nil
}

// VerifyKeyStretching recomputes the stretched key from the stored private key
// and reports whether it matches. A false result is a diagnostic, not an error.
func (m *Manager) VerifyKeyStretching(ctx context.Context, keypairID uint64) (bool, error) {
	var row models.Keypair
	if err := m.db.WithContext(ctx).Where("id = ?", keypairID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, apperr.NotFound("keypair not found")
		}
		return false, fmt.Errorf("credentials: load keypair: %w", err)
	}
	if row.PrivateKeyStretchedEncrypted == "" {
		return false, nil
	}

	entry := log.WithField("keypair_id", row.ID)
	privatePEM, err := m.cipher.Decrypt(row.PrivateKeyEncrypted)
	if err != nil {
		entry.WithError(err).Warn("credentials: private key does not decrypt")
		return false, nil
	}
	stretched, err := m.cipher.Decrypt(row.PrivateKeyStretchedEncrypted)
	if err != nil {
		entry.WithError(err).Warn("credentials: stretched key does not decrypt")
		return false, nil
	}
	ok := VerifyStretch(privatePEM, stretched, m.stretchSecret, row.UserID)
	if !ok {
		entry.Warn("credentials: stretched key mismatch")
	}
	return ok, nil
}

// KeypairOwner returns the owning user id of a keypair.
func (m *Manager) KeypairOwner(ctx context.Context, keypairID uint64) (uint64, error) {
	var row models.Keypair
	if err := m.db.WithContext(ctx).Select("id", "user_id").Where("id = ?", keypairID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, apperr.NotFound("keypair not found")
		}
		return 0, fmt.Errorf("credentials: load keypair: %w", err)
	}
	return row.UserID, nil
}

func toInfo(row *models.Keypair) KeypairInfo {
	return KeypairInfo{
		ID:          row.ID,
		UserID:      row.UserID,
		Algorithm:   row.KeyAlgorithm,
		PublicKey:   row.PublicKey,
		GeneratedAt: row.GeneratedAt,
		ExpiresAt:   row.ExpiresAt,
		IsActive:    row.IsActive,
	}
}
