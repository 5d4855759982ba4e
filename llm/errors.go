package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels for errors.Is checks against generation failures.
var (
	ErrTransient = errors.New("transient provider error")
	ErrFatal     = errors.New("fatal provider error")
	ErrFormat    = errors.New("unexpected response format")
	ErrExhausted = errors.New("generation exhausted")
)

// StatusError is returned by a Backend when the provider answered with a
// non-success status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Message)
}

// ProviderError is a classified provider failure. Transient errors are
// eligible for rotation and backoff; the rest are surfaced immediately.
type ProviderError struct {
	Provider   string
	Model      string
	StatusCode int // 0 for transport failures
	Message    string
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s api error (model %s): %s", e.Provider, e.Model, e.Message)
	}
	return fmt.Sprintf("%s api error (model %s): %d - %s", e.Provider, e.Model, e.StatusCode, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool {
	if e.Transient {
		return target == ErrTransient
	}
	return target == ErrFatal
}

// FormatError means a success response carried no extractable text.
type FormatError struct {
	Provider string
	Model    string
	Detail   string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unexpected response format from %s (model %s): %s", e.Provider, e.Model, e.Detail)
}

func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// ExhaustionReason tells why generation gave up after transient failures.
type ExhaustionReason string

const (
	ReasonModelsExhausted   ExhaustionReason = "models exhausted"
	ReasonAttemptsExhausted ExhaustionReason = "attempts exhausted"
)

// ExhaustionError is the terminal failure after every model or every attempt
// has been used up.
type ExhaustionError struct {
	Provider string
	Reason   ExhaustionReason
	Attempts int
	Tried    []string
	Last     error
}

func (e *ExhaustionError) Error() string {
	switch e.Reason {
	case ReasonModelsExhausted:
		return fmt.Sprintf("all %s models failed. Last error: %v", e.Provider, e.Last)
	default:
		return fmt.Sprintf("failed to generate response after %d attempts across models [%s]. Last error: %v",
			e.Attempts, strings.Join(e.Tried, ", "), e.Last)
	}
}

func (e *ExhaustionError) Unwrap() error { return e.Last }

func (e *ExhaustionError) Is(target error) bool { return target == ErrExhausted }

// GenerationError is returned by Generator for every provider-side failure.
// Err is a fatal *ProviderError, a *FormatError, an *ExhaustionError, or the
// caller's context error.
type GenerationError struct {
	Provider string
	Attempts int
	Tried    []string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generation failed after %d attempt(s) [%s]: %v",
		e.Provider, e.Attempts, strings.Join(e.Tried, ", "), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
