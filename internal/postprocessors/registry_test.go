package postprocessors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// registryMockSplitter is a simple mock for testing registry functionality.
type registryMockSplitter struct {
	name string
}

func (m *registryMockSplitter) Name() string { return m.name }
func (m *registryMockSplitter) Split(_ *domain.Document) ([]domain.Passage, error) {
	return nil, nil
}

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	require.NotNil(t, r)
	assert.Empty(t, r.Names())
}

func TestRegistry_Build_Success(t *testing.T) {
	r := NewRegistry()
	r.Register("test", func(cfg map[string]any) (driven.TextSplitter, error) {
		name := "default"
		if n, ok := cfg["name"].(string); ok {
			name = n
		}
		return &registryMockSplitter{name: name}, nil
	})

	assert.True(t, r.Has("test"))

	s, err := r.Build("test", map[string]any{"name": "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", s.Name())
}

func TestRegistry_Build_Unknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Build("unknown", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnsupportedType)
	assert.False(t, r.Has("unknown"))
}

func TestRegisterDefaults(t *testing.T) {
	r := NewRegistry()
	RegisterDefaults(r)

	assert.Equal(t, []string{SplitterFixed, SplitterRecursive}, r.Names())
}

func TestNewSplitter(t *testing.T) {
	tests := []struct {
		name     string
		settings domain.ChunkerSettings
		wantName string
		wantErr  error
	}{
		{"defaults", domain.DefaultAppSettings().Chunker, SplitterRecursive, nil},
		{"empty strategy", domain.ChunkerSettings{Size: 1000, Overlap: 200}, SplitterRecursive, nil},
		{"fixed", domain.ChunkerSettings{Strategy: "fixed", Size: 1000, Overlap: 100}, SplitterFixed, nil},
		{"unknown", domain.ChunkerSettings{Strategy: "semantic"}, "", domain.ErrUnsupportedType},
		{"overlap too large", domain.ChunkerSettings{Size: 100, Overlap: 100}, "", domain.ErrConfiguration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewSplitter(tt.settings)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, s.Name())
		})
	}
}

func TestGetIntFromConfig(t *testing.T) {
	cfg := map[string]any{"a": 1, "b": int64(2), "c": 3.0, "d": "4"}

	for key, want := range map[string]int{"a": 1, "b": 2, "c": 3} {
		got, ok := getIntFromConfig(cfg, key)
		assert.True(t, ok)
		assert.Equal(t, want, got)
	}

	_, ok := getIntFromConfig(cfg, "d")
	assert.False(t, ok)
	_, ok = getIntFromConfig(cfg, "missing")
	assert.False(t, ok)
}
