package llm

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reply struct {
	text string
	err  error
}

// scriptedBackend answers per model; unknown models succeed with "ok:<model>".
type scriptedBackend struct {
	mu      sync.Mutex
	replies map[string]reply
	calls   []string
	block   bool
}

func (b *scriptedBackend) Provider() string { return "fake" }

func (b *scriptedBackend) Call(ctx context.Context, model string, msgs []Message) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, model)
	r, ok := b.replies[model]
	block := b.block
	b.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if !ok {
		return "ok:" + model, nil
	}
	return r.text, r.err
}

func (b *scriptedBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func newTestGenerator(t *testing.T, b Backend, maxAttempts int, models ...string) (*Generator, *[]time.Duration) {
	t.Helper()
	g, err := NewGenerator(b, MustRegistry(models...), GeneratorConfig{MaxAttempts: maxAttempts})
	require.NoError(t, err)
	var delays []time.Duration
	g.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return g, &delays
}

var convo = []Message{UserMessage("summarize the comments")}

func TestGenerate_RotatesToSucceedingModel(t *testing.T) {
	b := &scriptedBackend{replies: map[string]reply{
		"m1": {err: &StatusError{StatusCode: 503, Message: "The model is overloaded."}},
		"m2": {err: &StatusError{StatusCode: 400, Message: "Resource has been exhausted (e.g. check quota). Quota exceeded"}},
		"m3": {text: "final report"},
	}}
	g, delays := newTestGenerator(t, b, 3, "m1", "m2", "m3")

	text, err := g.Generate(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "final report", text)
	assert.Equal(t, []string{"m1", "m2", "m3"}, b.Calls())
	require.Len(t, *delays, 2)
	assert.InDelta(t, float64(time.Second), float64((*delays)[0]), float64(250*time.Millisecond))
	assert.InDelta(t, float64(2*time.Second), float64((*delays)[1]), float64(500*time.Millisecond))
}

func TestGenerate_AttemptBudgetExhausted(t *testing.T) {
	fail := reply{err: &StatusError{StatusCode: 429, Message: "rate limit"}}
	b := &scriptedBackend{replies: map[string]reply{"a": fail, "b": fail, "c": fail, "d": fail, "e": fail}}
	g, delays := newTestGenerator(t, b, 3, "a", "b", "c", "d", "e")

	_, err := g.Generate(context.Background(), convo)
	require.Error(t, err)
	assert.Len(t, b.Calls(), 3, "never a 4th network call")
	assert.Len(t, *delays, 2)

	assert.ErrorIs(t, err, ErrExhausted)
	var ex *ExhaustionError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, ReasonAttemptsExhausted, ex.Reason)
	assert.Equal(t, []string{"a", "b", "c"}, ex.Tried)
	assert.Contains(t, err.Error(), "after 3 attempts")

	var ge *GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, 3, ge.Attempts)
}

func TestGenerate_ModelsExhaustedBeforeBudget(t *testing.T) {
	fail := reply{err: &StatusError{StatusCode: 500, Message: "Internal error encountered."}}
	b := &scriptedBackend{replies: map[string]reply{"a": fail, "b": fail}}
	g, delays := newTestGenerator(t, b, 5, "a", "b")

	_, err := g.Generate(context.Background(), convo)
	var ex *ExhaustionError
	require.ErrorAs(t, err, &ex)
	assert.Equal(t, ReasonModelsExhausted, ex.Reason)
	assert.Equal(t, []string{"a", "b"}, b.Calls())
	assert.Len(t, *delays, 1)
	assert.Contains(t, err.Error(), "all fake models failed")
}

func TestGenerate_EmptyCandidatesIsFatalFormatError(t *testing.T) {
	b := &scriptedBackend{replies: map[string]reply{
		"a": {err: &FormatError{Detail: "no candidates in response"}},
	}}
	g, delays := newTestGenerator(t, b, 3, "a", "b", "c")

	_, err := g.Generate(context.Background(), convo)
	assert.ErrorIs(t, err, ErrFormat)
	assert.NotErrorIs(t, err, ErrExhausted)
	assert.Equal(t, []string{"a"}, b.Calls())
	assert.Empty(t, *delays)

	var fe *FormatError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "fake", fe.Provider)
	assert.Equal(t, "a", fe.Model)
}

func TestGenerate_EmptyTextIsFormatError(t *testing.T) {
	b := &scriptedBackend{replies: map[string]reply{"a": {text: "  "}}}
	g, _ := newTestGenerator(t, b, 3, "a", "b")
	_, err := g.Generate(context.Background(), convo)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Len(t, b.Calls(), 1)
}

func TestGenerate_FatalStatusSurfacesImmediately(t *testing.T) {
	for _, code := range []int{400, 401, 403} {
		b := &scriptedBackend{replies: map[string]reply{
			"a": {err: &StatusError{StatusCode: code, Message: "API key not valid. Please pass a valid API key."}},
		}}
		g, delays := newTestGenerator(t, b, 3, "a", "b")

		_, err := g.Generate(context.Background(), convo)
		assert.ErrorIs(t, err, ErrFatal)
		assert.NotErrorIs(t, err, ErrTransient)
		var pe *ProviderError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, code, pe.StatusCode)
		assert.Equal(t, []string{"a"}, b.Calls())
		assert.Empty(t, *delays)
	}
}

func TestGenerate_TransportErrorRotates(t *testing.T) {
	b := &scriptedBackend{replies: map[string]reply{
		"a": {err: &url.Error{Op: "Post", URL: "https://example", Err: errors.New("connection reset by peer")}},
	}}
	g, delays := newTestGenerator(t, b, 3, "a", "b")

	text, err := g.Generate(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "ok:b", text)
	assert.Len(t, *delays, 1)
}

func TestGenerate_UnknownErrorIsFatal(t *testing.T) {
	b := &scriptedBackend{replies: map[string]reply{"a": {err: errors.New("marshal request: bad value")}}}
	g, _ := newTestGenerator(t, b, 3, "a", "b")
	_, err := g.Generate(context.Background(), convo)
	assert.ErrorIs(t, err, ErrFatal)
	assert.Len(t, b.Calls(), 1)
}

func TestGenerate_PerCallTimeoutIsTransient(t *testing.T) {
	b := &scriptedBackend{block: true}
	g, err := NewGenerator(b, MustRegistry("a", "b"), GeneratorConfig{MaxAttempts: 2, CallTimeout: 20 * time.Millisecond})
	require.NoError(t, err)
	g.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_, err = g.Generate(context.Background(), convo)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, []string{"a", "b"}, b.Calls())
}

func TestGenerateWith_StartsAtModelAndWraps(t *testing.T) {
	fail := reply{err: &StatusError{StatusCode: 502, Message: "bad gateway"}}
	b := &scriptedBackend{replies: map[string]reply{"c": fail}}
	g, _ := newTestGenerator(t, b, 3, "a", "b", "c")

	text, err := g.GenerateWith(context.Background(), "c", convo)
	require.NoError(t, err)
	assert.Equal(t, "ok:a", text)
	assert.Equal(t, []string{"c", "a"}, b.Calls())
}

func TestGenerate_ContextCanceledDuringBackoff(t *testing.T) {
	fail := reply{err: &StatusError{StatusCode: 503, Message: "unavailable"}}
	b := &scriptedBackend{replies: map[string]reply{"a": fail}}
	g, err := NewGenerator(b, MustRegistry("a", "b"), GeneratorConfig{BaseDelay: time.Minute, MaxDelay: time.Minute})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err = g.Generate(ctx, convo)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []string{"a"}, b.Calls())
}

func TestGenerate_RejectsInvalidRoles(t *testing.T) {
	b := &scriptedBackend{}
	g, _ := newTestGenerator(t, b, 3, "a")

	_, err := g.Generate(context.Background(), []Message{{Role: "tool", Content: "x"}})
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = g.Generate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoMessages)
	assert.Empty(t, b.Calls())
}

func TestGenerate_StateIsPerCall(t *testing.T) {
	fail := reply{err: &StatusError{StatusCode: 503, Message: "overloaded"}}
	b := &scriptedBackend{replies: map[string]reply{"a": fail}}
	g, _ := newTestGenerator(t, b, 3, "a", "b")

	for i := 0; i < 2; i++ {
		text, err := g.Generate(context.Background(), convo)
		require.NoError(t, err)
		assert.Equal(t, "ok:b", text)
	}
	assert.Equal(t, []string{"a", "b", "a", "b"}, b.Calls())
}
