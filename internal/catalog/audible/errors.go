package audible

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mrlokans/listenwise/internal/catalog"
)

// Error wraps a failed remote call with the operation and marketplace.
// Err is always one of the catalog sentinels or wraps one.
type Error struct {
	Op          string
	Marketplace string
	Status      int
	Err         error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("audible %s [%s] (HTTP %d): %v", e.Op, e.Marketplace, e.Status, e.Err)
	}
	return fmt.Sprintf("audible %s [%s]: %v", e.Op, e.Marketplace, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// statusError maps a non-2xx response to a catalog error. unauthorized is
// the error to use for 401/403, which depends on the operation.
func statusError(resp *http.Response, unauthorized error) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return unauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return &catalog.RateLimitError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: server error", catalog.ErrNetwork)
	default:
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
