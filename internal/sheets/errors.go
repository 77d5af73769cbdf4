package sheets

import (
	"errors"
	"fmt"
	"time"
)

// ErrQuotaExceeded is matched by every error that reports upstream rate
// limiting, so callers can classify failures with errors.Is.
var ErrQuotaExceeded = errors.New("upstream quota exceeded")

// QuotaError is returned when the proxy rejects a request because the
// spreadsheet quota is exhausted, either through HTTP 429 or an error body.
type QuotaError struct {
	StatusCode int
	RetryAfter time.Duration
	Message    string
}

func (e *QuotaError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "rate limited"
	}
	if e.RetryAfter > 0 {
		return fmt.Sprintf("quota exceeded (status %d): %s, retry after %s", e.StatusCode, msg, e.RetryAfter)
	}
	return fmt.Sprintf("quota exceeded (status %d): %s", e.StatusCode, msg)
}

// Is lets errors.Is(err, ErrQuotaExceeded) match wrapped quota errors.
func (e *QuotaError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// IsQuotaExceeded reports whether err was caused by upstream rate limiting.
func IsQuotaExceeded(err error) bool {
	return err != nil && errors.Is(err, ErrQuotaExceeded)
}
