package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedType indicates an unknown provider or backend type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrConfiguration indicates missing or invalid configuration.
	// Raised before any network call is made.
	ErrConfiguration = errors.New("configuration error")

	// Provider Errors.

	// ErrAuthentication indicates the provider credential is missing or rejected.
	ErrAuthentication = errors.New("authentication failed")

	// ErrProvider indicates a non-success response from a remote provider.
	ErrProvider = errors.New("provider error")

	// ErrTimeout indicates a provider round trip exceeded its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	ErrLLMUnavailable = errors.New("LLM service unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service is not configured.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// Pipeline Errors.

	// ErrRetrieval indicates embedding or vector search failed during retrieval.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrCompletion indicates the completion endpoint failed for a pipeline stage.
	ErrCompletion = errors.New("completion failed")

	// ErrExtractionEmpty indicates no labelled diagram blocks were found.
	// This is a soft failure: the run still completes.
	ErrExtractionEmpty = errors.New("no diagrams found in response")

	// ErrIndexCorrupt indicates the persisted vector index cannot be loaded.
	ErrIndexCorrupt = errors.New("index corrupt")

	// Render Errors.

	// ErrRenderSyntax indicates the renderer rejected the diagram source.
	// Recoverable through the repair loop.
	ErrRenderSyntax = errors.New("diagram syntax rejected by renderer")

	// ErrRenderUnavailable indicates the renderer itself could not be reached.
	// Never fed into the repair loop.
	ErrRenderUnavailable = errors.New("renderer unavailable")

	// ErrRenderFailure indicates a diagram could not be rendered after all repair attempts.
	ErrRenderFailure = errors.New("render failed")
)

// RenderSyntaxError carries the renderer's rejection details.
type RenderSyntaxError struct {
	StatusCode int
	Message    string
}

// Error implements error.
func (e *RenderSyntaxError) Error() string {
	return fmt.Sprintf("renderer rejected source (status %d): %s", e.StatusCode, e.Message)
}

// Unwrap allows errors.Is(err, ErrRenderSyntax).
func (e *RenderSyntaxError) Unwrap() error {
	return ErrRenderSyntax
}

// RenderFailureError is the terminal failure for one diagram once repairs are exhausted.
type RenderFailureError struct {
	Diagram  string
	Attempts int
	Err      error
}

// Error implements error.
func (e *RenderFailureError) Error() string {
	return fmt.Sprintf("diagram %q failed after %d attempts: %v", e.Diagram, e.Attempts, e.Err)
}

// Unwrap exposes both the failure sentinel and the last renderer error.
func (e *RenderFailureError) Unwrap() []error {
	return []error{ErrRenderFailure, e.Err}
}

// ErrorKind returns a stable name for the most specific taxonomy member in err's chain.
// Returns "internal" for errors outside the taxonomy and "" for nil.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	// Order matters: wrapping errors are checked before the causes they carry.
	kinds := []struct {
		target error
		name   string
	}{
		{ErrInvalidInput, "invalid_input"},
		{ErrConfiguration, "configuration"},
		{ErrAuthentication, "authentication"},
		{ErrRenderFailure, "render_failure"},
		{ErrRenderUnavailable, "render_unavailable"},
		{ErrRenderSyntax, "render_syntax"},
		{ErrTimeout, "timeout"},
		{ErrRetrieval, "retrieval"},
		{ErrCompletion, "completion"},
		{ErrProvider, "provider"},
		{ErrExtractionEmpty, "extraction_empty"},
		{ErrIndexCorrupt, "index_corrupt"},
		{ErrNotFound, "not_found"},
		{ErrLLMUnavailable, "configuration"},
		{ErrEmbeddingUnavailable, "configuration"},
		{ErrUnsupportedType, "configuration"},
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.name
		}
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "internal"
}
