package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/Donggull/ea-plan-05-sub006/pkg/models"
)

// ErrTimeout marks a provider call that exceeded its budget. Distinct from
// generic failures so UIs can suggest retrying; callers match with errors.Is.
var ErrTimeout = errors.New("provider call timed out")

// HTTPError is a non-2xx upstream response, propagated with enough detail
// for a caller-driven retry decision. Never retried automatically.
type HTTPError struct {
	Provider models.Provider
	Status   int
	Body     string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s returned HTTP %d: %s", e.Provider, e.Status, e.Body)
}

// AuthConfigError is a missing or malformed provider API key. Configuration
// problems are never retried.
type AuthConfigError struct {
	Provider models.Provider
	Reason   string
}

func (e *AuthConfigError) Error() string {
	return fmt.Sprintf("%s auth config: %s", e.Provider, e.Reason)
}

// wrapTransport classifies a transport-level error from an adapter call.
// A deadline hit becomes ErrTimeout so the failure stays distinguishable.
func wrapTransport(p models.Provider, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", p, ErrTimeout)
	}
	return fmt.Errorf("%s request failed: %w", p, err)
}
