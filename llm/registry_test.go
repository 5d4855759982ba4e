package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry()
	assert.Error(t, err)
	_, err = NewRegistry("a", " ")
	assert.Error(t, err)
	_, err = NewRegistry("a", "b", "a")
	assert.Error(t, err)

	r, err := NewRegistry("a", "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, r.Models())
	assert.True(t, r.Contains("b"))
	assert.False(t, r.Contains("c"))
}

func TestNextModel(t *testing.T) {
	r := MustRegistry("a", "b", "c", "d")
	set := func(ids ...string) map[string]struct{} {
		m := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			m[id] = struct{}{}
		}
		return m
	}

	cases := []struct {
		name    string
		current string
		failed  map[string]struct{}
		want    string
		wantOK  bool
	}{
		{"first when unset", "", nil, "a", true},
		{"first not failed when unset", "", set("a", "b"), "c", true},
		{"after current", "b", set("b"), "c", true},
		{"wraps around", "d", set("d"), "a", true},
		{"skips failed while wrapping", "c", set("c", "d", "a"), "b", true},
		{"unknown current falls back to first", "zzz", set("a"), "b", true},
		{"none left", "b", set("a", "b", "c", "d"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := r.NextModel(tc.current, tc.failed)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNextModel_VisitsEachModelOnce(t *testing.T) {
	pools := [][]string{
		{"only"},
		{"a", "b"},
		DefaultGeminiModels,
	}
	for _, pool := range pools {
		r := MustRegistry(pool...)
		for start := range pool {
			failed := map[string]struct{}{}
			seen := map[string]int{}
			current := pool[start]
			for {
				seen[current]++
				failed[current] = struct{}{}
				next, ok := r.NextModel(current, failed)
				if !ok {
					break
				}
				current = next
			}
			assert.Len(t, seen, len(pool))
			for m, n := range seen {
				assert.Equal(t, 1, n, "model %s visited %d times", m, n)
			}
		}
	}
}
