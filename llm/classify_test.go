package llm

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable_Status(t *testing.T) {
	for _, code := range []int{429, 500, 502, 503, 504} {
		for _, msg := range []string{"", "bad request", "API key not valid"} {
			assert.True(t, IsRetryable(code, msg), "%d %q", code, msg)
		}
	}
	for _, code := range []int{400, 401, 403} {
		assert.False(t, IsRetryable(code, "API key not valid"), "%d", code)
		assert.False(t, IsRetryable(code, "malformed request"), "%d", code)
	}
}

func TestIsRetryable_Message(t *testing.T) {
	cases := map[string]bool{
		"The model is OVERLOADED. Please try again later.": true,
		"Deadline: Timeout while waiting":                  true,
		"service Unavailable":                              true,
		"Rate limit reached for requests":                  true,
		"Quota exceeded for metric":                        true,
		"Internal error encountered.":                      true,
		"Invalid JSON payload received":                    false,
		"":                                                 false,
	}
	for msg, want := range cases {
		assert.Equal(t, want, IsRetryable(400, msg), msg)
	}
}

func TestIsTransportError(t *testing.T) {
	assert.False(t, IsTransportError(nil))
	assert.False(t, IsTransportError(errors.New("boom")))
	assert.True(t, IsTransportError(context.DeadlineExceeded))
	assert.True(t, IsTransportError(fmt.Errorf("wrapped: %w", context.DeadlineExceeded)))
	assert.True(t, IsTransportError(&url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}))
}
