// Package provider maps remote AI provider failures onto the domain error taxonomy.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/custodia-labs/umlgen/internal/core/domain"
)

// maxBodyInError bounds how much of a response body is quoted in errors.
const maxBodyInError = 512

// StatusError classifies a non-2xx response from a provider.
// 401 and 403 become domain.ErrAuthentication, 408 and 504 domain.ErrTimeout,
// anything else domain.ErrProvider.
func StatusError(name string, status int, message string) error {
	message = Truncate(strings.TrimSpace(message))
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s (status %d): %s", domain.ErrAuthentication, name, status, message)
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s (status %d): %s", domain.ErrTimeout, name, status, message)
	default:
		return fmt.Errorf("%w: %s (status %d): %s", domain.ErrProvider, name, status, message)
	}
}

// TransportError classifies a failure to complete the round trip.
// Cancellation is passed through untouched so callers can tell it apart.
func TransportError(name string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", name, err)
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %s: %w", domain.ErrTimeout, name, err)
	}
	return fmt.Errorf("%w: %s: %w", domain.ErrProvider, name, err)
}

// MissingKey is returned by constructors when a cloud provider has no credential.
func MissingKey(name string) error {
	return fmt.Errorf("%w: %s: API key is required", domain.ErrAuthentication, name)
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Truncate shortens s for inclusion in an error message.
func Truncate(s string) string {
	if len(s) <= maxBodyInError {
		return s
	}
	return s[:maxBodyInError] + "..."
}
