// Package kroki renders PlantUML through a Kroki-compatible HTTP service.
//
// The service receives POST {"diagram_source": "..."} and answers with image
// bytes. Rejections of the source are reported as *domain.RenderSyntaxError;
// anything that means the service could not do its job (gateway timeouts,
// 5xx gateway errors, transport failures, an open circuit) is
// domain.ErrRenderUnavailable.
package kroki

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/custodia-labs/umlgen/internal/adapters/driven/provider"
	"github.com/custodia-labs/umlgen/internal/core/domain"
	"github.com/custodia-labs/umlgen/internal/core/ports/driven"
	"github.com/custodia-labs/umlgen/internal/logger"
)

// Ensure Renderer implements the interface.
var _ driven.DiagramRenderer = (*Renderer)(nil)

// Default configuration values.
const (
	DefaultURL              = "https://kroki.io/plantuml/png"
	DefaultTimeout          = 30 * time.Second
	DefaultBreakerFailures  = 5
	DefaultBreakerCooldown  = 30 * time.Second
	maxImageBytes           = 32 << 20
	maxErrorBodyBytes       = 64 << 10
	requestContentType      = "application/json"
	breakerName             = "kroki"
	unavailableStatusPrefix = "renderer returned status"
)

// Config holds renderer configuration.
type Config struct {
	// URL is the full render endpoint, e.g. https://kroki.io/plantuml/png.
	URL string

	// Timeout bounds one render call.
	Timeout time.Duration

	// RateLimit throttles calls. Zero values disable throttling.
	RateLimit RateLimitConfig

	// BreakerFailures is the number of consecutive unavailability errors
	// that opens the circuit.
	BreakerFailures uint32

	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration

	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// Renderer is a Kroki HTTP client with rate limiting and a circuit breaker.
type Renderer struct {
	url     string
	format  string
	client  *http.Client
	limiter *RateLimiter
	breaker *gobreaker.CircuitBreaker
}

// New creates a Kroki renderer.
func New(cfg Config) (*Renderer, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	u, err := url.Parse(cfg.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: renderer.url %q is not an absolute URL", domain.ErrConfiguration, cfg.URL)
	}
	format := formatFromURL(u)
	if _, ok := domain.ImageFormats[format]; !ok {
		return nil, fmt.Errorf("%w: renderer.url %q names unsupported image format %q", domain.ErrConfiguration, cfg.URL, format)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	failures := cfg.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// Only an unreachable renderer counts against the circuit
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, domain.ErrRenderUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit %s: %s -> %s", name, from, to)
		},
	})

	return &Renderer{
		url:     cfg.URL,
		format:  format,
		client:  client,
		limiter: NewRateLimiter(cfg.RateLimit),
		breaker: breaker,
	}, nil
}

// Format returns the image format named by the endpoint path.
func (r *Renderer) Format() string {
	return r.format
}

// State returns the circuit breaker state.
func (r *Renderer) State() gobreaker.State {
	return r.breaker.State()
}

// Render submits source and returns the rendered image.
func (r *Renderer) Render(ctx context.Context, source string) ([]byte, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	out, err := r.breaker.Execute(func() (interface{}, error) {
		return r.post(ctx, source)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", domain.ErrRenderUnavailable, err)
		}
		return nil, err
	}
	return out.([]byte), nil
}

type renderRequest struct {
	DiagramSource string `json:"diagram_source"`
}

func (r *Renderer) post(ctx context.Context, source string) ([]byte, error) {
	body, err := json.Marshal(renderRequest{DiagramSource: source})
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %w", domain.ErrRenderUnavailable, err)
	}
	req.Header.Set("Content-Type", requestContentType)

	resp, err := r.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", domain.ErrRenderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: reading image: %w", domain.ErrRenderUnavailable, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("%w: renderer returned an empty image", domain.ErrRenderUnavailable)
		}
		return data, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		wait := parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
		r.limiter.RecordRateLimitError(wait)
		return nil, fmt.Errorf("%w: rate limited (status %d)", domain.ErrRenderUnavailable, resp.StatusCode)

	case resp.StatusCode == http.StatusBadGateway,
		resp.StatusCode == http.StatusServiceUnavailable,
		resp.StatusCode == http.StatusGatewayTimeout:
		return nil, fmt.Errorf("%w: %s %d", domain.ErrRenderUnavailable, unavailableStatusPrefix, resp.StatusCode)

	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &domain.RenderSyntaxError{
			StatusCode: resp.StatusCode,
			Message:    provider.Truncate(strings.TrimSpace(string(msg))),
		}
	}
}

func formatFromURL(u *url.URL) string {
	format := strings.ToLower(path.Base(u.Path))
	if format == "" || format == "." || format == "/" {
		return domain.DefaultImageFormat
	}
	return format
}
