package settings

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// Snapshot holds the decoded settings last loaded from the database.
// Readers never block writers; a refresh swaps the whole map.
type Snapshot struct {
	current atomic.Pointer[snapshotData]
}

type snapshotData struct {
	values   map[string]any
	loadedAt time.Time
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{}
}

// Replace swaps in a freshly decoded value set.
func (s *Snapshot) Replace(values map[string]any, loadedAt time.Time) {
	if s == nil {
		return
	}
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	s.current.Store(&snapshotData{values: copied, loadedAt: loadedAt})
}

// LoadedAt reports when the snapshot was last replaced.
func (s *Snapshot) LoadedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	data := s.current.Load()
	if data == nil {
		return time.Time{}
	}
	return data.loadedAt
}

// Value returns the decoded value for key.
func (s *Snapshot) Value(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	data := s.current.Load()
	if data == nil {
		return nil, false
	}
	v, ok := data.values[key]
	return v, ok
}

// String returns a string setting or def.
func (s *Snapshot) String(key, def string) string {
	v, ok := s.Value(key)
	if !ok || v == nil {
		return def
	}
	switch typed := v.(type) {
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case bool:
		return strconv.FormatBool(typed)
	default:
		return def
	}
}

// Int returns an integer setting or def.
func (s *Snapshot) Int(key string, def int64) int64 {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	switch typed := v.(type) {
	case int64:
		return typed
	case float64:
		return int64(typed)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(typed), 10, 64)
		if err != nil {
			return def
		}
		return n
	default:
		return def
	}
}

// Bool returns a boolean setting or def.
func (s *Snapshot) Bool(key string, def bool) bool {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	switch typed := v.(type) {
	case bool:
		return typed
	case int64:
		return typed == 1
	case string:
		b, err := toBool(typed)
		if err != nil {
			return def
		}
		return b
	default:
		return def
	}
}
