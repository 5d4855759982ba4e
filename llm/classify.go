package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"
)

var retryableStatus = map[int]struct{}{
	http.StatusTooManyRequests:     {},
	http.StatusInternalServerError: {},
	http.StatusBadGateway:          {},
	http.StatusServiceUnavailable:  {},
	http.StatusGatewayTimeout:      {},
}

var retryablePhrases = []string{
	"overloaded",
	"timeout",
	"unavailable",
	"rate limit",
	"quota exceeded",
	"internal error",
}

// IsRetryable reports whether a provider error response is transient.
// Overload, rate-limit and gateway statuses always are; any other status is
// retryable only when message mentions a transient condition.
func IsRetryable(statusCode int, message string) bool {
	if _, ok := retryableStatus[statusCode]; ok {
		return true
	}
	lower := strings.ToLower(message)
	for _, p := range retryablePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// IsTransportError reports whether err is a network-level failure: a timeout,
// a refused or reset connection, or a truncated response.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
