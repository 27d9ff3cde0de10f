package memory

import (
	"maps"
	"sync"

	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

var _ driven.ConfigStore = (*ConfigStore)(nil)

// ConfigStore holds settings supplied by code instead of config.toml. The app
// tests and ephemeral runs use it; nothing is ever written to disk.
type ConfigStore struct {
	mu     sync.RWMutex
	values map[string]any
}

// NewConfigStore merges the seed maps in order, later keys winning.
func NewConfigStore(seeds ...map[string]any) *ConfigStore {
	s := &ConfigStore{values: make(map[string]any)}
	for _, seed := range seeds {
		maps.Copy(s.values, seed)
	}
	return s
}

// Get returns the raw value for a dotted key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// lookup returns the value for key when it has type T.
func lookup[T any](s *ConfigStore, key string) (T, bool) {
	raw, ok := s.Get(key)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := raw.(T)
	return v, ok
}

// GetString returns "" for missing or non-string values.
func (s *ConfigStore) GetString(key string) string {
	v, _ := lookup[string](s, key)
	return v
}

// GetInt accepts int and int64, the latter being what TOML decodes to.
func (s *ConfigStore) GetInt(key string) int {
	raw, _ := s.Get(key)
	switch v := raw.(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

// GetFloat also accepts integers so a temperature seeded as 0 still reads.
func (s *ConfigStore) GetFloat(key string) float64 {
	raw, _ := s.Get(key)
	switch v := raw.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// GetBool returns false for missing or non-bool values.
func (s *ConfigStore) GetBool(key string) bool {
	v, _ := lookup[bool](s, key)
	return v
}

// GetStringSlice keeps only the string elements of a mixed slice.
func (s *ConfigStore) GetStringSlice(key string) []string {
	raw, _ := s.Get(key)
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

// Set stores value under key.
func (s *ConfigStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
	return nil
}

// Save is a no-op.
func (s *ConfigStore) Save() error { return nil }

// Load is a no-op.
func (s *ConfigStore) Load() error { return nil }

// Path reports ":memory:" so callers can tell the store is not file-backed.
func (s *ConfigStore) Path() string { return ":memory:" }
