package llm

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultGeminiModels is the rotation pool used for Gemini, best first.
var DefaultGeminiModels = []string{
	"gemini-2.5-flash",
	"gemini-2.0-flash",
	"gemini-2.5-flash-lite",
	"gemini-2.0-flash-lite",
	"gemini-1.5-flash",
	"gemini-1.5-flash-8b",
}

// Registry is a fixed, ordered pool of model identifiers for one backend.
// It is immutable after construction and safe for concurrent use.
type Registry struct {
	models []string
	index  map[string]int
}

// NewRegistry builds a registry from an ordered list of unique model ids.
func NewRegistry(models ...string) (*Registry, error) {
	if len(models) == 0 {
		return nil, errors.New("registry: at least one model is required")
	}
	r := &Registry{
		models: make([]string, 0, len(models)),
		index:  make(map[string]int, len(models)),
	}
	for _, m := range models {
		m = strings.TrimSpace(m)
		if m == "" {
			return nil, errors.New("registry: empty model id")
		}
		if _, dup := r.index[m]; dup {
			return nil, fmt.Errorf("registry: duplicate model %q", m)
		}
		r.index[m] = len(r.models)
		r.models = append(r.models, m)
	}
	return r, nil
}

// MustRegistry is NewRegistry that panics on error; for static pools.
func MustRegistry(models ...string) *Registry {
	r, err := NewRegistry(models...)
	if err != nil {
		panic(err)
	}
	return r
}

// Models returns a copy of the ordered pool.
func (r *Registry) Models() []string {
	out := make([]string, len(r.models))
	copy(out, r.models)
	return out
}

// Len returns the number of candidates.
func (r *Registry) Len() int { return len(r.models) }

// Contains reports whether model is part of the pool.
func (r *Registry) Contains(model string) bool {
	_, ok := r.index[model]
	return ok
}

// NextModel returns the next candidate not in failed.
//
// With an empty current it returns the first candidate not in failed.
// Otherwise it walks the pool circularly starting right after current.
// An unknown current behaves like an empty one. ok is false when every
// candidate has failed.
func (r *Registry) NextModel(current string, failed map[string]struct{}) (string, bool) {
	n := len(r.models)
	start := 0
	if pos, known := r.index[current]; known && current != "" {
		start = pos + 1
	}
	for i := 0; i < n; i++ {
		m := r.models[(start+i)%n]
		if _, bad := failed[m]; !bad {
			return m, true
		}
	}
	return "", false
}
