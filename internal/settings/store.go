package settings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MaskedValue replaces encrypted values in listings.
const MaskedValue = "********"

// Cipher encrypts values flagged as sensitive.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Entry is a decoded setting.
type Entry struct {
	Key         string    `json:"key"`
	Value       any       `json:"value"`
	Type        ValueType `json:"type"`
	Description string    `json:"description"`
	IsEncrypted bool      `json:"is_encrypted"`
	IsSystem    bool      `json:"is_system"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Masked returns a copy with encrypted values hidden.
func (e Entry) Masked() Entry {
	if e.IsEncrypted {
		e.Value = MaskedValue
	}
	return e
}

// SetOptions carries the optional attributes of an upsert.
type SetOptions struct {
	Encrypted   bool
	Description string
	// System only applies when the row is created.
	System bool
}

// Update describes a partial change to an existing setting.
type Update struct {
	Value       any
	HasValue    bool
	Type        *ValueType
	Encrypted   *bool
	Description *string
	System      *bool
}

// Store reads and writes typed settings.
type Store struct {
	db       *gorm.DB
	cipher   Cipher
	snapshot *Snapshot
	inTx     bool
	nowFn    func() time.Time
}

// NewStore constructs a settings store with an empty snapshot.
func NewStore(db *gorm.DB, cipher Cipher) *Store {
	return &Store{db: db, cipher: cipher, snapshot: NewSnapshot(), nowFn: time.Now}
}

// WithTx returns a store bound to tx. Writes through it do not refresh the
// snapshot; call Refresh after the transaction commits.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, cipher: s.cipher, snapshot: s.snapshot, inTx: true, nowFn: s.nowFn}
}

// Snapshot exposes the in-memory view of decoded settings.
func (s *Store) Snapshot() *Snapshot {
	return s.snapshot
}

// Lookup returns the decoded setting for key.
func (s *Store) Lookup(ctx context.Context, key string) (Entry, error) {
	row, err := s.find(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	return s.decodeRow(row)
}

// Get returns the decoded value for key, or def when the key is missing.
func (s *Store) Get(ctx context.Context, key string, def any) (any, error) {
	entry, err := s.Lookup(ctx, key)
	if err != nil {
		if apperr.IsKind(err, apperr.KindNotFound) {
			return def, nil
		}
		return def, err
	}
	return entry.Value, nil
}

// GetString returns a string setting or def.
func (s *Store) GetString(ctx context.Context, key, def string) (string, error) {
	v, err := s.Get(ctx, key, def)
	if err != nil {
		return def, err
	}
	str, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), nil
	}
	return str, nil
}

// GetInt returns an integer setting or def.
func (s *Store) GetInt(ctx context.Context, key string, def int64) (int64, error) {
	v, err := s.Get(ctx, key, def)
	if err != nil {
		return def, err
	}
	n, errConv := toInt64(v)
	if errConv != nil {
		return def, errConv
	}
	return n, nil
}

// GetBool returns a boolean setting or def.
func (s *Store) GetBool(ctx context.Context, key string, def bool) (bool, error) {
	v, err := s.Get(ctx, key, def)
	if err != nil {
		return def, err
	}
	b, errConv := toBool(v)
	if errConv != nil {
		return def, errConv
	}
	return b, nil
}

// Set encodes, optionally encrypts and upserts a setting by key.
func (s *Store) Set(ctx context.Context, key string, value any, typ ValueType, opts SetOptions) (Entry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Entry{}, apperr.InvalidArg("key is required")
	}
	if typ == "" {
		typ = TypeString
	}
	stored, err := s.encodeValue(typ, value, opts.Encrypted)
	if err != nil {
		return Entry{}, err
	}

	row := models.Setting{
		Key:         key,
		Value:       stored,
		Type:        string(typ),
		Description: opts.Description,
		IsEncrypted: opts.Encrypted,
		IsSystem:    opts.System,
	}
	updateColumns := []string{"value", "type", "is_encrypted", "updated_at"}
	if opts.Description != "" {
		updateColumns = append(updateColumns, "description")
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns(updateColumns),
	}).Create(&row).Error; errUpsert != nil {
		return Entry{}, fmt.Errorf("settings: upsert %s: %w", key, errUpsert)
	}

	entry, err := s.Lookup(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	s.refreshAfterWrite(ctx)
	return entry, nil
}

// Create inserts a new setting and fails when the key already exists.
// Callers racing on the same key can detect the loser with db.IsUniqueViolation.
func (s *Store) Create(ctx context.Context, key string, value any, typ ValueType, opts SetOptions) (Entry, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Entry{}, apperr.InvalidArg("key is required")
	}
	if typ == "" {
		typ = TypeString
	}
	stored, err := s.encodeValue(typ, value, opts.Encrypted)
	if err != nil {
		return Entry{}, err
	}
	row := models.Setting{
		Key:         key,
		Value:       stored,
		Type:        string(typ),
		Description: opts.Description,
		IsEncrypted: opts.Encrypted,
		IsSystem:    opts.System,
	}
	if errCreate := s.db.WithContext(ctx).Create(&row).Error; errCreate != nil {
		return Entry{}, fmt.Errorf("settings: create %s: %w", key, errCreate)
	}
	s.refreshAfterWrite(ctx)
	return s.decodeRow(&row)
}

// Apply changes an existing setting. Flipping the system flag is refused.
func (s *Store) Apply(ctx context.Context, key string, in Update) (Entry, error) {
	row, err := s.find(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	if in.System != nil && *in.System != row.IsSystem {
		return Entry{}, apperr.Forbidden("is_system cannot be changed")
	}

	current, err := s.decodeRow(row)
	if err != nil {
		return Entry{}, err
	}
	typ := current.Type
	if in.Type != nil {
		typ = *in.Type
	}
	encrypted := row.IsEncrypted
	if in.Encrypted != nil {
		encrypted = *in.Encrypted
	}
	value := current.Value
	if in.HasValue {
		value = in.Value
	}
	stored, err := s.encodeValue(typ, value, encrypted)
	if err != nil {
		return Entry{}, err
	}

	updates := map[string]any{
		"value":        stored,
		"type":         string(typ),
		"is_encrypted": encrypted,
		"updated_at":   s.nowFn().UTC(),
	}
	if in.Description != nil {
		updates["description"] = strings.TrimSpace(*in.Description)
	}
	if errUpdate := s.db.WithContext(ctx).Model(&models.Setting{}).
		Where("id = ?", row.ID).
		Updates(updates).Error; errUpdate != nil {
		return Entry{}, fmt.Errorf("settings: update %s: %w", key, errUpdate)
	}

	entry, err := s.Lookup(ctx, key)
	if err != nil {
		return Entry{}, err
	}
	s.refreshAfterWrite(ctx)
	return entry, nil
}

// Delete removes a setting regardless of its system flag and reports whether a row existed.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	res := s.db.WithContext(ctx).Where("key = ?", strings.TrimSpace(key)).Delete(&models.Setting{})
	if res.Error != nil {
		return false, fmt.Errorf("settings: delete %s: %w", key, res.Error)
	}
	if res.RowsAffected > 0 {
		s.refreshAfterWrite(ctx)
	}
	return res.RowsAffected > 0, nil
}

// DeleteUnlessSystem removes a non-system setting.
func (s *Store) DeleteUnlessSystem(ctx context.Context, key string) error {
	row, err := s.find(ctx, key)
	if err != nil {
		return err
	}
	if row.IsSystem {
		return apperr.Forbidden("system settings cannot be deleted")
	}
	_, err = s.Delete(ctx, key)
	return err
}

// List returns every setting ordered by key with decoded values.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("settings: list: %w", err)
	}
	out := make([]Entry, 0, len(rows))
	for i := range rows {
		entry, err := s.decodeRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// EnsureDefaults creates every catalogue entry that is missing. Existing rows
// keep their values.
func (s *Store) EnsureDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, def := range Defaults {
		stored, err := s.encodeValue(def.Type, def.Value, def.Encrypted)
		if err != nil {
			return created, fmt.Errorf("settings: seed %s: %w", def.Key, err)
		}
		row := models.Setting{
			Key:         def.Key,
			Value:       stored,
			Type:        string(def.Type),
			Description: def.Description,
			IsEncrypted: def.Encrypted,
			IsSystem:    def.System,
		}
		res := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&row)
		if res.Error != nil {
			return created, fmt.Errorf("settings: seed %s: %w", def.Key, res.Error)
		}
		created += int(res.RowsAffected)
	}
	if created > 0 {
		log.WithField("created", created).Info("settings: seeded defaults")
	}
	s.refreshAfterWrite(ctx)
	return created, nil
}

// Refresh reloads the snapshot from the database.
func (s *Store) Refresh(ctx context.Context) error {
	var rows []models.Setting
	if err := s.db.WithContext(ctx).Order("key ASC").Find(&rows).Error; err != nil {
		return fmt.Errorf("settings: refresh: %w", err)
	}
	values := make(map[string]any, len(rows))
	for i := range rows {
		if rows[i].Key == GroupPrivateKeyKey {
			continue
		}
		entry, err := s.decodeRow(&rows[i])
		if err != nil {
			log.WithError(err).WithField("key", rows[i].Key).Warn("settings: skip undecodable value")
			continue
		}
		values[entry.Key] = entry.Value
	}
	s.snapshot.Replace(values, s.nowFn().UTC())
	return nil
}

func (s *Store) refreshAfterWrite(ctx context.Context) {
	if s.inTx {
		return
	}
	if err := s.Refresh(ctx); err != nil {
		log.WithError(err).Warn("settings: refresh snapshot failed")
	}
}

func (s *Store) find(ctx context.Context, key string) (*models.Setting, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, apperr.InvalidArg("key is required")
	}
	var row models.Setting
	if err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(fmt.Sprintf("setting %q not found", key))
		}
		return nil, fmt.Errorf("settings: get %s: %w", key, err)
	}
	return &row, nil
}

func (s *Store) encodeValue(typ ValueType, value any, encrypted bool) (string, error) {
	if _, err := ParseValueType(string(typ)); err != nil {
		return "", apperr.InvalidArg(err.Error())
	}
	encoded, err := Encode(typ, value)
	if err != nil {
		return "", apperr.InvalidArg(err.Error())
	}
	if !encrypted {
		return encoded, nil
	}
	if s.cipher == nil {
		return "", errors.New("settings: no cipher configured for encrypted value")
	}
	sealed, err := s.cipher.Encrypt(encoded)
	if err != nil {
		return "", fmt.Errorf("settings: encrypt: %w", err)
	}
	return sealed, nil
}

func (s *Store) decodeRow(row *models.Setting) (Entry, error) {
	typ, err := ParseValueType(row.Type)
	if err != nil {
		return Entry{}, fmt.Errorf("settings: %s: %w", row.Key, err)
	}
	raw := row.Value
	if row.IsEncrypted && raw != "" {
		if s.cipher == nil {
			return Entry{}, errors.New("settings: no cipher configured for encrypted value")
		}
		plain, errDecrypt := s.cipher.Decrypt(raw)
		if errDecrypt != nil {
			return Entry{}, fmt.Errorf("settings: decrypt %s: %w", row.Key, errDecrypt)
		}
		raw = plain
	}
	value, err := Decode(typ, raw)
	if err != nil {
		return Entry{}, fmt.Errorf("settings: %s: %w", row.Key, err)
	}
	return Entry{
		Key:         row.Key,
		Value:       value,
		Type:        typ,
		Description: row.Description,
		IsEncrypted: row.IsEncrypted,
		IsSystem:    row.IsSystem,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}
