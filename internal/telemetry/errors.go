package telemetry

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialExchange is returned when the client-credentials exchange fails.
	// It is fatal for the current fetch and never retried internally.
	ErrCredentialExchange = errors.New("credential exchange failed")

	// ErrRateLimited is returned when the upstream still answers 429 after one wait-and-retry.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrAuthentication is returned when the upstream still answers 401 after one token refresh.
	ErrAuthentication = errors.New("upstream rejected credentials")

	// ErrTelemetryUnavailable wraps every failure on the snapshot path.
	// The previously cached snapshot is kept when it is returned.
	ErrTelemetryUnavailable = errors.New("telemetry unavailable")
)

const maxErrorBody = 512

// UpstreamError is any other non-2xx answer from the state-vector endpoint.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

func snippet(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody]) + "..."
	}
	return string(body)
}
