package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/sentiant/llm"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestCall_SystemGoesToSystemParam(t *testing.T) {
	var body map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
"content":[{"type":"text","text":"overall positive"}],"stop_reason":"end_turn",
"usage":{"input_tokens":4,"output_tokens":2}}`))
	})

	text, err := c.Call(context.Background(), "claude-3-5-haiku-latest", []llm.Message{
		llm.SystemMessage("you are an analyst"),
		llm.UserMessage("summarize"),
	})
	require.NoError(t, err)
	assert.Equal(t, "overall positive", text)

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.Equal(t, "user", msgs[0].(map[string]any)["role"])
	assert.NotNil(t, body["system"])
	assert.EqualValues(t, 2048, body["max_tokens"])
}

func TestCall_APIErrorBecomesStatusError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	})
	_, err := c.Call(context.Background(), "m", []llm.Message{llm.UserMessage("hi")})
	var se *llm.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 401, se.StatusCode)
	assert.False(t, llm.IsRetryable(se.StatusCode, se.Message))
}

func TestCall_NoTextBlockIsFormatError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m","content":[],
"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":0}}`))
	})
	_, err := c.Call(context.Background(), "m", []llm.Message{llm.UserMessage("hi")})
	assert.ErrorIs(t, err, llm.ErrFormat)
}
