// Package local stores run artifacts on the local filesystem, one directory
// per request ID.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// Ensure Store implements the interface.
var _ driven.ArtifactStore = (*Store)(nil)

// Store writes artifacts to <dir>/<request-id>/<name>.
type Store struct {
	dir string
}

// NewStore creates a local artifact store rooted at dir.
// If dir is empty, defaults to ~/.umlgen/runs.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, ".umlgen", "runs")
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("creating runs directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// Put writes an artifact, replacing any previous content.
func (s *Store) Put(_ context.Context, requestID, name string, data []byte) (string, error) {
	p, err := s.path(requestID, name)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return "", fmt.Errorf("creating request directory: %w", err)
	}

	// Write to a temp file first so readers never see a partial artifact
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("writing %s: %w", name, err)
	}
	return p, nil
}

// Get reads an artifact.
func (s *Store) Get(_ context.Context, requestID, name string) ([]byte, error) {
	p, err := s.path(requestID, name)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: artifact %s/%s", domain.ErrNotFound, requestID, name)
		}
		return nil, fmt.Errorf("reading %s: %w", name, err)
	}
	return data, nil
}

// List returns the artifacts of a request sorted by name.
func (s *Store) List(_ context.Context, requestID string) ([]domain.ArtifactInfo, error) {
	if !domain.ValidArtifactName(requestID) {
		return nil, fmt.Errorf("%w: request id %q", domain.ErrInvalidInput, requestID)
	}

	dir := filepath.Join(s.dir, requestID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: run %s", domain.ErrNotFound, requestID)
		}
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}

	infos := make([]domain.ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) == ".tmp" {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		infos = append(infos, domain.ArtifactInfo{
			Name:       entry.Name(),
			Kind:       domain.KindOf(entry.Name()),
			Size:       fi.Size(),
			Location:   filepath.Join(dir, entry.Name()),
			ModifiedAt: fi.ModTime(),
		})
	}

	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Delete removes every artifact of a request.
func (s *Store) Delete(_ context.Context, requestID string) error {
	if !domain.ValidArtifactName(requestID) {
		return fmt.Errorf("%w: request id %q", domain.ErrInvalidInput, requestID)
	}
	if err := os.RemoveAll(filepath.Join(s.dir, requestID)); err != nil {
		return fmt.Errorf("deleting run %s: %w", requestID, err)
	}
	return nil
}

func (s *Store) path(requestID, name string) (string, error) {
	if !domain.ValidArtifactName(requestID) {
		return "", fmt.Errorf("%w: request id %q", domain.ErrInvalidInput, requestID)
	}
	if !domain.ValidArtifactName(name) {
		return "", fmt.Errorf("%w: artifact name %q", domain.ErrInvalidInput, name)
	}
	return filepath.Join(s.dir, requestID, name), nil
}
