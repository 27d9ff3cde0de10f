package ai

import (
	"context"
	"time"

	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
)

var _ driven.AIConfigValidator = (*ConfigValidator)(nil)

// DefaultPingTimeout bounds a single connectivity check.
const DefaultPingTimeout = 5 * time.Second

// pinger is the part of a provider service the validator needs.
type pinger interface {
	Ping(ctx context.Context) error
	Close() error
}

// ConfigValidator checks provider settings by building the service they
// describe and pinging it. Unconfigured settings pass; completeness is the
// settings service's concern.
type ConfigValidator struct {
	timeout time.Duration
}

// ValidatorOption configures a ConfigValidator.
type ValidatorOption func(*ConfigValidator)

// WithPingTimeout overrides DefaultPingTimeout.
func WithPingTimeout(d time.Duration) ValidatorOption {
	return func(v *ConfigValidator) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewConfigValidator returns a validator using DefaultPingTimeout.
func NewConfigValidator(opts ...ValidatorOption) *ConfigValidator {
	v := &ConfigValidator{timeout: DefaultPingTimeout}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// ValidateEmbedding pings the configured embedding provider.
func (v *ConfigValidator) ValidateEmbedding(settings *domain.EmbeddingSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	return v.ping(func(ctx context.Context) (pinger, error) {
		return CreateEmbeddingService(ctx, settings)
	})
}

// ValidateLLM pings the configured LLM provider.
func (v *ConfigValidator) ValidateLLM(settings *domain.LLMSettings) error {
	if settings == nil || !settings.IsConfigured() {
		return nil
	}
	return v.ping(func(ctx context.Context) (pinger, error) {
		return CreateLLMService(ctx, settings)
	})
}

func (v *ConfigValidator) ping(create func(context.Context) (pinger, error)) error {
	ctx, cancel := context.WithTimeout(context.Background(), v.timeout)
	defer cancel()

	svc, err := create(ctx)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Ping(ctx)
}
