package fetch

import (
	"fmt"
	"net/http"

	"github.com/gridpulse/demand-weather-etl/internal/domain"
)

// StatusError maps a non-2xx HTTP status to the failure taxonomy: 401/403
// is a credential rejection, 429 and 5xx are transient, anything else is a
// permanent fetch failure.
func StatusError(source domain.Source, status int, body []byte) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &domain.AuthError{Source: source, Err: fmt.Errorf("status %d: %s", status, body)}
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrServerError, status, body)
	default:
		return fmt.Errorf("unexpected status %d: %s", status, body)
	}
}
