package driven

import (
	"context"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// RunStore keeps a history of finished pipeline runs.
type RunStore interface {
	// SaveRun stores or updates a run record.
	SaveRun(ctx context.Context, run domain.RunRecord) error

	// GetRun retrieves a run by request ID. Returns domain.ErrNotFound if absent.
	GetRun(ctx context.Context, requestID string) (*domain.RunRecord, error)

	// ListRuns returns the most recent runs first, at most limit entries.
	ListRuns(ctx context.Context, limit int) ([]domain.RunRecord, error)
}
