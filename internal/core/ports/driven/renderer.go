package driven

import "context"

// DiagramRenderer converts diagram source into image bytes through an
// external rendering service.
//
// Errors wrap domain.ErrRenderSyntax when the service rejects the source
// (a *domain.RenderSyntaxError carries the details) and
// domain.ErrRenderUnavailable when the service cannot be reached.
type DiagramRenderer interface {
	// Render submits source and returns the rendered image.
	Render(ctx context.Context, source string) ([]byte, error)

	// Format returns the image format produced (e.g. "png").
	Format() string
}
