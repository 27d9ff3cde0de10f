package driven

import (
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// Observer receives pipeline measurements. Implementations must be safe
// for concurrent use and must not block.
type Observer interface {
	// ObserveRun records a finished run.
	ObserveRun(result *domain.RunResult, elapsed time.Duration)

	// ObserveRender records one renderer call and its error, if any.
	ObserveRender(err error)

	// ObserveLLM records one completion for a pipeline stage.
	ObserveLLM(stage string, elapsed time.Duration, err error)

	// ObserveIndex records an index action and the resulting passage count.
	ObserveIndex(action domain.IndexAction, passages int)

	// JobStarted and JobFinished track running background jobs.
	JobStarted()
	JobFinished()
}
