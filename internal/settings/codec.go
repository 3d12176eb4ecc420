package settings

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType tags how a setting value is serialized.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeBoolean ValueType = "boolean"
	TypeJSON    ValueType = "json"
)

// ParseValueType validates a type tag, defaulting empty input to string.
func ParseValueType(raw string) (ValueType, error) {
	switch ValueType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", TypeString:
		return TypeString, nil
	case TypeInteger:
		return TypeInteger, nil
	case TypeBoolean:
		return TypeBoolean, nil
	case TypeJSON:
		return TypeJSON, nil
	default:
		return "", fmt.Errorf("settings: unknown type %q", raw)
	}
}

// Encode serializes a value for storage according to its type.
func Encode(typ ValueType, value any) (string, error) {
	switch typ {
	case TypeInteger:
		n, err := toInt64(value)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case TypeBoolean:
		b, err := toBool(value)
		if err != nil {
			return "", err
		}
		if b {
			return "1", nil
		}
		return "0", nil
	case TypeJSON:
		if raw, ok := value.(json.RawMessage); ok {
			if !json.Valid(raw) {
				return "", fmt.Errorf("settings: invalid json value")
			}
			return string(raw), nil
		}
		data, err := json.Marshal(value)
		if err != nil {
			return "", fmt.Errorf("settings: encode json: %w", err)
		}
		return string(data), nil
	case TypeString, "":
		switch v := value.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		case fmt.Stringer:
			return v.String(), nil
		default:
			return fmt.Sprint(v), nil
		}
	default:
		return "", fmt.Errorf("settings: unknown type %q", typ)
	}
}

// Decode parses a stored (already decrypted) value according to its type.
func Decode(typ ValueType, raw string) (any, error) {
	switch typ {
	case TypeInteger:
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			return int64(0), nil
		}
		n, err := strconv.ParseInt(trimmed, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("settings: decode integer: %w", err)
		}
		return n, nil
	case TypeBoolean:
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "1", "true":
			return true, nil
		default:
			return false, nil
		}
	case TypeJSON:
		if strings.TrimSpace(raw) == "" {
			return nil, nil
		}
		var out any
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, fmt.Errorf("settings: decode json: %w", err)
		}
		return out, nil
	case TypeString, "":
		return raw, nil
	default:
		return nil, fmt.Errorf("settings: unknown type %q", typ)
	}
}

func toInt64(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return 0, fmt.Errorf("settings: integer out of range")
		}
		return int64(v), nil
	case float32:
		return floatToInt64(float64(v))
	case float64:
		return floatToInt64(v)
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("settings: value %q is not an integer", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("settings: value of type %T is not an integer", value)
	}
}

func floatToInt64(f float64) (int64, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("settings: value %v is not an integer", f)
	}
	return int64(f), nil
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off", "":
			return false, nil
		}
		return false, fmt.Errorf("settings: value %q is not a boolean", v)
	default:
		n, err := toInt64(value)
		if err != nil || (n != 0 && n != 1) {
			return false, fmt.Errorf("settings: value of type %T is not a boolean", value)
		}
		return n == 1, nil
	}
}
