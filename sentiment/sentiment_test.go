package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAnalyzer(t *testing.T, h http.HandlerFunc) *HFAnalyzer {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	a, err := NewHFAnalyzer(Config{Token: "hf", BaseURL: srv.URL})
	require.NoError(t, err)
	return a
}

func TestAnalyze_PicksHighestLabel(t *testing.T) {
	for name, body := range map[string]string{
		"nested": `[[{"label":"negative","score":0.1},{"label":"positive","score":0.8},{"label":"neutral","score":0.1}]]`,
		"flat":   `[{"label":"neutral","score":0.2},{"label":"positive","score":0.8}]`,
	} {
		t.Run(name, func(t *testing.T) {
			a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/models/cardiffnlp/twitter-roberta-base-sentiment-latest", r.URL.Path)
				assert.Equal(t, "Bearer hf", r.Header.Get("Authorization"))
				var in map[string]string
				require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
				assert.Equal(t, "I love this", in["inputs"])
				_, _ = w.Write([]byte(body))
			})
			got, err := a.Analyze(context.Background(), "I love this")
			require.NoError(t, err)
			assert.Equal(t, Score{Label: "positive", Score: 0.8}, got)
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"Model is currently loading"}`))
	})
	_, err := a.Analyze(context.Background(), "hello")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Model is currently loading", apiErr.Message)

	_, err = a.Analyze(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestAnalyze_EmptyLabels(t *testing.T) {
	a := newTestAnalyzer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[]`))
	})
	_, err := a.Analyze(context.Background(), "hello")
	assert.Error(t, err)
}
