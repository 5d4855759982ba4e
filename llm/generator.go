package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/KamdynS/sentiant/observability"
)

// GeneratorConfig controls the attempt budget and timing of a Generator.
type GeneratorConfig struct {
	// MaxAttempts bounds network calls per Generate, across all models.
	MaxAttempts int           `json:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay"`
	MaxDelay    time.Duration `json:"max_delay"`
	// CallTimeout applies to each individual network call.
	CallTimeout time.Duration `json:"call_timeout"`
	Hooks       *observability.Hooks
}

// DefaultGeneratorConfig returns sane defaults for report generation.
func DefaultGeneratorConfig() GeneratorConfig {
	return GeneratorConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    8 * time.Second,
		CallTimeout: 45 * time.Second,
	}
}

// Generator drives model rotation and retries over a Backend.
// It holds no per-call state and may be shared between goroutines.
type Generator struct {
	backend  Backend
	registry *Registry
	cfg      GeneratorConfig
	backoff  Backoff
	sleep    func(ctx context.Context, d time.Duration) error
}

// NewGenerator creates a Generator (zero config fields take defaults).
func NewGenerator(backend Backend, registry *Registry, cfg GeneratorConfig) (*Generator, error) {
	if backend == nil {
		return nil, errors.New("generator: backend is required")
	}
	if registry == nil {
		return nil, errors.New("generator: registry is required")
	}
	def := DefaultGeneratorConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = def.CallTimeout
	}
	return &Generator{
		backend:  backend,
		registry: registry,
		cfg:      cfg,
		backoff:  Backoff{Base: cfg.BaseDelay, Max: cfg.MaxDelay},
		sleep:    sleepContext,
	}, nil
}

// Provider returns the backend's provider name.
func (g *Generator) Provider() string { return g.backend.Provider() }

// Generate produces a reply starting from the first model of the registry.
func (g *Generator) Generate(ctx context.Context, msgs []Message) (string, error) {
	return g.GenerateWith(ctx, "", msgs)
}

type step int

const (
	stepSelect step = iota
	stepCall
	stepEvaluate
	stepBackoff
	stepDone
	stepFailed
)

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeTransient
	outcomeFatal
)

// outcome is the interpreted result of one network call.
type outcome struct {
	kind outcomeKind
	text string
	err  error
}

// attemptState lives for exactly one GenerateWith call.
type attemptState struct {
	current  string
	next     string
	failed   map[string]struct{}
	tried    []string
	attempts int
	last     error
}

// GenerateWith is Generate with an explicit starting model. An empty model
// starts from the head of the registry.
func (g *Generator) GenerateWith(ctx context.Context, model string, msgs []Message) (string, error) {
	if err := ValidateMessages(msgs); err != nil {
		return "", err
	}
	st := &attemptState{current: model, failed: make(map[string]struct{})}
	provider := g.backend.Provider()

	var (
		out     outcome
		text    string
		failure error
	)
	s := stepSelect
	for {
		switch s {
		case stepSelect:
			if st.current == "" {
				m, ok := g.registry.NextModel("", st.failed)
				if !ok {
					failure = g.exhausted(st, ReasonModelsExhausted)
					s = stepFailed
					continue
				}
				st.current = m
			}
			s = stepCall

		case stepCall:
			out = g.call(ctx, st, msgs)
			s = stepEvaluate

		case stepEvaluate:
			switch out.kind {
			case outcomeSuccess:
				text = out.text
				s = stepDone
			case outcomeFatal:
				failure = out.err
				s = stepFailed
			case outcomeTransient:
				st.last = out.err
				st.failed[st.current] = struct{}{}
				m, ok := g.registry.NextModel(st.current, st.failed)
				if !ok {
					g.cfg.Hooks.SafeLog(ctx, "error", "all models have failed, no more models to try", map[string]any{"provider": provider})
					failure = g.exhausted(st, ReasonModelsExhausted)
					s = stepFailed
					continue
				}
				st.next = m
				s = stepBackoff
			}

		case stepBackoff:
			if st.attempts >= g.cfg.MaxAttempts {
				failure = g.exhausted(st, ReasonAttemptsExhausted)
				s = stepFailed
				continue
			}
			delay := g.backoff.Delay(st.attempts - 1)
			g.cfg.Hooks.SafeLLMRetry(ctx, provider, st.next, st.attempts, delay, st.last)
			if err := g.sleep(ctx, delay); err != nil {
				failure = err
				s = stepFailed
				continue
			}
			st.current = st.next
			st.next = ""
			s = stepSelect

		case stepDone:
			g.cfg.Hooks.SafeLog(ctx, "info", "generated response", map[string]any{"provider": provider, "model": st.current, "attempts": st.attempts})
			return text, nil

		case stepFailed:
			return "", &GenerationError{
				Provider: provider,
				Attempts: st.attempts,
				Tried:    append([]string(nil), st.tried...),
				Err:      failure,
			}
		}
	}
}

// call performs one network attempt against st.current under CallTimeout.
func (g *Generator) call(ctx context.Context, st *attemptState, msgs []Message) outcome {
	st.attempts++
	st.tried = append(st.tried, st.current)
	provider := g.backend.Provider()
	model := st.current

	g.cfg.Hooks.SafeLLMRequest(ctx, provider, model, map[string]any{"attempt": st.attempts, "max_attempts": g.cfg.MaxAttempts})
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.CallTimeout)
	start := time.Now()
	text, err := g.backend.Call(callCtx, model, msgs)
	cancel()
	out := g.interpret(ctx, provider, model, text, err)
	g.cfg.Hooks.SafeLLMResponse(ctx, provider, model, time.Since(start), map[string]any{
		"attempt": st.attempts,
		"error":   out.kind != outcomeSuccess,
	})
	return out
}

// interpret classifies the raw result of Backend.Call.
func (g *Generator) interpret(ctx context.Context, provider, model, text string, err error) outcome {
	if err == nil {
		if strings.TrimSpace(text) == "" {
			return outcome{kind: outcomeFatal, err: &FormatError{Provider: provider, Model: model, Detail: "empty text"}}
		}
		return outcome{kind: outcomeSuccess, text: text}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return outcome{kind: outcomeFatal, err: ctxErr}
	}

	var fe *FormatError
	if errors.As(err, &fe) {
		if fe.Provider == "" {
			fe.Provider = provider
		}
		if fe.Model == "" {
			fe.Model = model
		}
		g.cfg.Hooks.SafeLog(ctx, "error", "unexpected response format", map[string]any{"provider": provider, "model": model, "detail": fe.Detail})
		return outcome{kind: outcomeFatal, err: fe}
	}

	var se *StatusError
	if errors.As(err, &se) {
		pe := &ProviderError{
			Provider:   provider,
			Model:      model,
			StatusCode: se.StatusCode,
			Message:    se.Message,
			Transient:  IsRetryable(se.StatusCode, se.Message),
			Err:        err,
		}
		g.cfg.Hooks.SafeLog(ctx, "error", "provider api error", map[string]any{"provider": provider, "model": model, "status": se.StatusCode, "retryable": pe.Transient})
		if pe.Transient {
			return outcome{kind: outcomeTransient, err: pe}
		}
		return outcome{kind: outcomeFatal, err: pe}
	}

	pe := &ProviderError{Provider: provider, Model: model, Message: err.Error(), Err: err}
	if IsTransportError(err) {
		pe.Transient = true
		g.cfg.Hooks.SafeLog(ctx, "warn", "transport error", map[string]any{"provider": provider, "model": model, "error": err})
		return outcome{kind: outcomeTransient, err: pe}
	}
	return outcome{kind: outcomeFatal, err: pe}
}

func (g *Generator) exhausted(st *attemptState, reason ExhaustionReason) error {
	return &ExhaustionError{
		Provider: g.backend.Provider(),
		Reason:   reason,
		Attempts: st.attempts,
		Tried:    append([]string(nil), st.tried...),
		Last:     st.last,
	}
}

// String describes the generator for logs.
func (g *Generator) String() string {
	return fmt.Sprintf("%s[%s]", g.backend.Provider(), strings.Join(g.registry.models, ","))
}
