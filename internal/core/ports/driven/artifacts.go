package driven

import (
	"context"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// ArtifactStore persists per-request artifacts. Every artifact lives in the
// namespace of exactly one request ID, so concurrent runs never collide.
type ArtifactStore interface {
	// Put writes data under requestID/name, overwriting any previous content.
	// Returns the storage location (path or URL).
	Put(ctx context.Context, requestID, name string, data []byte) (string, error)

	// Get reads an artifact. Returns domain.ErrNotFound if it does not exist.
	Get(ctx context.Context, requestID, name string) ([]byte, error)

	// List returns the artifacts of a request sorted by name.
	// Returns domain.ErrNotFound if the request has no artifacts.
	List(ctx context.Context, requestID string) ([]domain.ArtifactInfo, error)

	// Delete removes every artifact of a request.
	Delete(ctx context.Context, requestID string) error
}
