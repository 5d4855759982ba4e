package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	for _, k := range []string{"GOOGLE_API_KEY", "HF_API_TOKEN", "ANTHROPIC_API_KEY", "SENTIANT_CONFIG", "SENTIANT_LLM_PROVIDER"} {
		t.Setenv(k, "")
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := newRootCommand()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "report", "generate"})
	for _, f := range []string{"config", "log-level", "log-format"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(f), f)
	}
}

func TestGenerate_MissingKeyFailsValidation(t *testing.T) {
	isolateEnv(t)
	_, err := run(t, "generate", "--prompt", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no API key")
}

func TestGenerate_ThroughGemini(t *testing.T) {
	isolateEnv(t)
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if !strings.Contains(r.URL.Path, "gemini-2.5-flash") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hello back"}]}}]}`))
	}))
	defer srv.Close()
	t.Setenv("GOOGLE_API_KEY", "k")
	t.Setenv("SENTIANT_LLM_GEMINI_BASE_URL", srv.URL)

	out, err := run(t, "--log-level", "error", "generate", "-p", "hi", "--system", "be nice")
	require.NoError(t, err)
	assert.Equal(t, "hello back\n", out)
	assert.Equal(t, 1, calls)
}
