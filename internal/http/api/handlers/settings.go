package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/labforge/lims-admin/internal/apperr"
	"github.com/labforge/lims-admin/internal/settings"
)

// SettingHandler manages admin CRUD for settings values.
type SettingHandler struct {
	store *settings.Store
}

// NewSettingHandler constructs a settings handler.
func NewSettingHandler(store *settings.Store) *SettingHandler {
	return &SettingHandler{store: store}
}

// createSettingRequest captures the payload for creating a setting.
type createSettingRequest struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	Type        string          `json:"type"`
	IsEncrypted bool            `json:"is_encrypted"`
	IsSystem    bool            `json:"is_system"`
	Description string          `json:"description"`
}

var positiveIntSettingKeys = map[string]struct{}{
	settings.PasswordMinLengthKey:        {},
	settings.FailedLoginAttemptsLimitKey: {},
	settings.AccountLockoutDurationKey:   {},
	settings.APITokenLifetimeDaysKey:     {},
	settings.SessionTimeoutKey:           {},
	settings.SMTPPortKey:                 {},
}

var nonNegativeIntSettingKeys = map[string]struct{}{
	settings.APIRateLimitPerMinuteKey: {},
	settings.RateLimitRedisDBKey:      {},
}

// Keys owned by dedicated endpoints.
var reservedSettingKeys = map[string]struct{}{
	settings.GroupPrivateKeyKey: {},
	settings.GroupPublicKeyKey:  {},
}

var errPositiveIntegerValue = errors.New("value must be a positive integer")
var errNonNegativeIntegerValue = errors.New("value must be a non-negative integer")

// Create inserts a new setting.
func (h *SettingHandler) Create(c *gin.Context) {
	var body createSettingRequest
	if !bindJSON(c, &body) {
		return
	}
	key := strings.TrimSpace(body.Key)
	if key == "" {
		RespondError(c, apperr.InvalidArg("key is required"))
		return
	}
	if _, reserved := reservedSettingKeys[key]; reserved {
		RespondError(c, apperr.Forbidden("setting is managed by the system"))
		return
	}
	typ, err := settings.ParseValueType(body.Type)
	if err != nil {
		RespondError(c, apperr.InvalidArg(err.Error()))
		return
	}
	if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
		RespondError(c, apperr.InvalidArg(errValidate.Error()))
		return
	}
	value, err := decodeSettingValue(body.Value)
	if err != nil {
		RespondError(c, err)
		return
	}
	if _, errLookup := h.store.Lookup(c.Request.Context(), key); errLookup == nil {
		RespondError(c, apperr.InvalidArg("key already exists"))
		return
	}

	entry, err := h.store.Create(c.Request.Context(), key, value, typ, settings.SetOptions{
		Encrypted:   body.IsEncrypted,
		Description: strings.TrimSpace(body.Description),
		System:      body.IsSystem,
	})
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusCreated, "Setting created successfully", entry.Masked())
}

// List returns all settings sorted by key, with encrypted values masked.
func (h *SettingHandler) List(c *gin.Context) {
	rows, err := h.store.List(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	out := make([]settings.Entry, 0, len(rows))
	for _, row := range rows {
		if _, reserved := reservedSettingKeys[row.Key]; reserved {
			continue
		}
		out = append(out, row.Masked())
	}
	RespondOK(c, http.StatusOK, gin.H{"settings": out})
}

// Get returns a setting by key.
func (h *SettingHandler) Get(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		RespondError(c, apperr.InvalidArg("invalid key"))
		return
	}
	if _, reserved := reservedSettingKeys[key]; reserved {
		RespondError(c, apperr.Forbidden("setting is managed by the system"))
		return
	}
	entry, err := h.store.Lookup(c.Request.Context(), key)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, entry.Masked())
}

// updateSettingRequest captures a partial setting update.
type updateSettingRequest struct {
	Value       json.RawMessage `json:"value"`
	Type        *string         `json:"type"`
	IsEncrypted *bool           `json:"is_encrypted"`
	IsSystem    *bool           `json:"is_system"`
	Description *string         `json:"description"`
}

// Update changes a setting. Flipping is_system is refused by the store.
func (h *SettingHandler) Update(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		RespondError(c, apperr.InvalidArg("invalid key"))
		return
	}
	if _, reserved := reservedSettingKeys[key]; reserved {
		RespondError(c, apperr.Forbidden("setting is managed by the system"))
		return
	}
	var body updateSettingRequest
	if !bindJSON(c, &body) {
		return
	}

	update := settings.Update{
		Encrypted:   body.IsEncrypted,
		Description: body.Description,
		System:      body.IsSystem,
	}
	if body.Type != nil {
		typ, err := settings.ParseValueType(*body.Type)
		if err != nil {
			RespondError(c, apperr.InvalidArg(err.Error()))
			return
		}
		update.Type = &typ
	}
	if len(bytes.TrimSpace(body.Value)) > 0 {
		if errValidate := validateSettingValue(key, body.Value); errValidate != nil {
			RespondError(c, apperr.InvalidArg(errValidate.Error()))
			return
		}
		value, err := decodeSettingValue(body.Value)
		if err != nil {
			RespondError(c, err)
			return
		}
		// A masked value echoed back by a form leaves the secret untouched.
		if masked, _ := value.(string); masked != settings.MaskedValue {
			update.Value = value
			update.HasValue = true
		}
	}

	entry, err := h.store.Apply(c.Request.Context(), key, update)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Setting updated successfully", entry.Masked())
}

// Delete removes a non-system setting.
func (h *SettingHandler) Delete(c *gin.Context) {
	key := strings.TrimSpace(c.Param("key"))
	if key == "" {
		RespondError(c, apperr.InvalidArg("invalid key"))
		return
	}
	if errDelete := h.store.DeleteUnlessSystem(c.Request.Context(), key); errDelete != nil {
		RespondError(c, errDelete)
		return
	}
	RespondMessage(c, http.StatusOK, "Setting deleted successfully", nil)
}

// LabInfo returns the laboratory identity.
func (h *SettingHandler) LabInfo(c *gin.Context) {
	info, err := h.store.LabInfo(c.Request.Context())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, info)
}

// UpdateLabInfo changes the laboratory identity.
func (h *SettingHandler) UpdateLabInfo(c *gin.Context) {
	var body settings.LabInfoUpdate
	if !bindJSON(c, &body) {
		return
	}
	info, err := h.store.UpdateLabInfo(c.Request.Context(), body)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondMessage(c, http.StatusOK, "Lab information updated successfully", info)
}

// decodeSettingValue keeps numbers exact so integers survive the round trip.
func decodeSettingValue(raw json.RawMessage) (any, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, apperr.InvalidArg("invalid value")
	}
	return value, nil
}

func validateSettingValue(key string, value json.RawMessage) error {
	if _, ok := positiveIntSettingKeys[key]; !ok {
		if _, okNonNegative := nonNegativeIntSettingKeys[key]; !okNonNegative {
			return nil
		}
		if _, ok := parseNonNegativeInt(value); !ok {
			return errNonNegativeIntegerValue
		}
		return nil
	}
	if _, ok := parsePositiveInt(value); !ok {
		return errPositiveIntegerValue
	}
	return nil
}

func parsePositiveInt(raw json.RawMessage) (int, bool) {
	parsed, ok := parseNonNegativeInt(raw)
	return parsed, ok && parsed > 0
}

func parseNonNegativeInt(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return 0, false
	}
	var parsedInt int
	if errUnmarshalInt := json.Unmarshal(raw, &parsedInt); errUnmarshalInt == nil {
		return parsedInt, parsedInt >= 0
	}
	var parsedString string
	if errUnmarshalString := json.Unmarshal(raw, &parsedString); errUnmarshalString == nil {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(parsedString))
		if errParse != nil {
			return 0, false
		}
		return parsed, parsed >= 0
	}
	var parsedFloat float64
	if errUnmarshalFloat := json.Unmarshal(raw, &parsedFloat); errUnmarshalFloat == nil {
		if math.IsNaN(parsedFloat) || math.IsInf(parsedFloat, 0) {
			return 0, false
		}
		if parsedFloat < 0 || parsedFloat != math.Trunc(parsedFloat) {
			return 0, false
		}
		return int(parsedFloat), true
	}
	return 0, false
}
