package http

import (
	"net/http"

	"github.com/custodia-labs/umlgen/internal/core/ports/driving"
)

// Ports aggregates the driving ports the HTTP server exposes.
type Ports struct {
	// Jobs runs generations in the background.
	Jobs driving.JobService

	// Runs exposes run history and artifacts. Optional.
	Runs driving.RunService

	// Index manages the passage index. Optional.
	Index driving.IndexService

	// Metrics serves the Prometheus scrape endpoint. Optional.
	Metrics http.Handler
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Jobs == nil {
		return ErrMissingJobService
	}
	return nil
}
