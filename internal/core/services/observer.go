package services

import (
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

// nopObserver discards measurements when no observer is wired.
type nopObserver struct{}

var _ driven.Observer = nopObserver{}

func (nopObserver) ObserveRun(*domain.RunResult, time.Duration) {}
func (nopObserver) ObserveRender(error) {}
func (nopObserver) ObserveLLM(string, time.Duration, error) {}
func (nopObserver) ObserveIndex(domain.IndexAction, int) {}
func (nopObserver) JobStarted() {}
func (nopObserver) JobFinished() {}

// observerOrNop returns o, or a no-op observer when o is nil.
func observerOrNop(o driven.Observer) driven.Observer {
	if o == nil {
		return nopObserver{}
	}
	return o
}
