package credentials

import (
	"context"
	"fmt"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/db"
	"github.com/labforge/lims-admin/internal/models"
	"github.com/labforge/lims-admin/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// GroupKeypair is the lab-wide keypair.
type GroupKeypair struct {
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key"`
	Algorithm  string `json:"key_algorithm"`
}

// Caller identifies who invokes a privileged operation.
type Caller struct {
	UserID   uint64
	UserType string
}

func (c Caller) privileged() bool {
	return c.UserType == models.UserTypeAdmin
}

// GetGroupKeypair returns the group keypair, generating it on first use.
// Concurrent first callers converge on a single generation: the insert is
// guarded by the settings key constraint and the loser reads the winner back.
// Rows left by an interrupted generation are removed by id, so a pair
// committed by another caller in the meantime is never touched.
func (m *Manager) GetGroupKeypair(ctx context.Context) (GroupKeypair, error) {
	// Ids are captured before the completeness check: anything committed
	// afterwards carries new ids and survives the cleanup below.
	stale, err := m.groupRowIDs(ctx)
	if err != nil {
		return GroupKeypair{}, err
	}
	if pair, ok, errRead := m.readGroup(ctx); errRead != nil || ok {
		return pair, errRead
	}

	material, err := generateMaterial(m.generate, GroupKeyBits)
	if err != nil {
		return GroupKeypair{}, err
	}

	if len(stale) > 0 {
		if errClear := m.db.WithContext(ctx).Where("id IN ?", stale).Delete(&models.Setting{}).Error; errClear != nil {
			return GroupKeypair{}, fmt.Errorf("credentials: clear partial group keypair: %w", errClear)
		}
	}
	errTx := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return m.insertGroup(ctx, tx, material)
	})
	if errTx != nil {
		if !db.IsUniqueViolation(errTx) {
			return GroupKeypair{}, errTx
		}
		winner, ok, errRead := m.readGroup(ctx)
		if errRead != nil {
			return GroupKeypair{}, errRead
		}
		if !ok {
			return GroupKeypair{}, fmt.Errorf("credentials: group keypair lost race but winner is incomplete: %w", errTx)
		}
		return winner, nil
	}
	if errRefresh := m.settings.Refresh(ctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("credentials: refresh settings after group keypair")
	}
	return GroupKeypair{
		PublicKey:  material.PublicKeyPEM,
		PrivateKey: material.PrivateKeyPEM,
		Algorithm:  material.Algorithm,
	}, nil
}

// GroupPublicKey returns only the public half of the group keypair.
func (m *Manager) GroupPublicKey(ctx context.Context) (string, error) {
	pair, err := m.GetGroupKeypair(ctx)
	if err != nil {
		return "", err
	}
	return pair.PublicKey, nil
}

// RegenerateGroupKeypair destroys and recreates the group keypair. Anything
// encrypted to the previous public key becomes unrecoverable. The old pair is
// only removed in the transaction that stores the new one.
func (m *Manager) RegenerateGroupKeypair(ctx context.Context, caller Caller) (GroupKeypair, error) {
	if !caller.privileged() {
		return GroupKeypair{}, apperr.Forbidden("only administrators can regenerate the group keypair")
	}
	material, err := generateMaterial(m.generate, GroupKeyBits)
	if err != nil {
		return GroupKeypair{}, err
	}

	errTx := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errClear := tx.Where("key IN ?", groupKeys).Delete(&models.Setting{}).Error; errClear != nil {
			return fmt.Errorf("credentials: delete group keypair: %w", errClear)
		}
		return m.insertGroup(ctx, tx, material)
	})
	if errTx != nil {
		return GroupKeypair{}, errTx
	}
	log.WithField("user_id", caller.UserID).
		Warn("credentials: group keypair replaced; data encrypted to the previous group public key is unrecoverable")
	if errRefresh := m.settings.Refresh(ctx); errRefresh != nil {
		log.WithError(errRefresh).Warn("credentials: refresh settings after group keypair")
	}
	return GroupKeypair{
		PublicKey:  material.PublicKeyPEM,
		PrivateKey: material.PrivateKeyPEM,
		Algorithm:  material.Algorithm,
	}, nil
}

var groupKeys = []string{settings.GroupPrivateKeyKey, settings.GroupPublicKeyKey}

// groupRowIDs returns the ids of whichever group keypair rows are stored.
func (m *Manager) groupRowIDs(ctx context.Context) ([]uint64, error) {
	var ids []uint64
	err := m.db.WithContext(ctx).Model(&models.Setting{}).
		Where("key IN ?", groupKeys).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("credentials: load group keypair rows: %w", err)
	}
	return ids, nil
}

// insertGroup stores both halves of material inside tx.
func (m *Manager) insertGroup(ctx context.Context, tx *gorm.DB, material Material) error {
	txStore := m.settings.WithTx(tx)
	if _, err := txStore.Create(ctx, settings.GroupPrivateKeyKey, material.PrivateKeyPEM, settings.TypeString, settings.SetOptions{
		Encrypted:   true,
		System:      true,
		Description: "Group private key (" + material.Algorithm + ")",
	}); err != nil {
		return err
	}
	_, err := txStore.Create(ctx, settings.GroupPublicKeyKey, material.PublicKeyPEM, settings.TypeString, settings.SetOptions{
		System:      true,
		Description: "Group public key (" + material.Algorithm + ")",
	})
	return err
}

// readGroup reports the stored group keypair and whether both halves exist.
func (m *Manager) readGroup(ctx context.Context) (GroupKeypair, bool, error) {
	priv, errPriv := m.settings.Lookup(ctx, settings.GroupPrivateKeyKey)
	if errPriv != nil && !apperr.IsKind(errPriv, apperr.KindNotFound) {
		return GroupKeypair{}, false, errPriv
	}
	pub, errPub := m.settings.Lookup(ctx, settings.GroupPublicKeyKey)
	if errPub != nil && !apperr.IsKind(errPub, apperr.KindNotFound) {
		return GroupKeypair{}, false, errPub
	}
	if errPriv != nil || errPub != nil {
		return GroupKeypair{}, false, nil
	}
	privPEM, _ := priv.Value.(string)
	pubPEM, _ := pub.Value.(string)
	if privPEM == "" || pubPEM == "" {
		return GroupKeypair{}, false, nil
	}
	algorithm := AlgorithmLabel(GroupKeyBits)
	if key, err := ParsePublicKeyPEM(pubPEM); err == nil {
		algorithm = AlgorithmLabel(key.N.BitLen())
	}
	return GroupKeypair{PublicKey: pubPEM, PrivateKey: privPEM, Algorithm: algorithm}, true, nil
}
