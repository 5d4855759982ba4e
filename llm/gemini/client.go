// Package gemini implements llm.Backend over the Gemini generateContent REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/KamdynS/sentiant/llm"
)

// ProviderName identifies this backend in errors and hooks.
const ProviderName = "gemini"

// DefaultBaseURL is the public Generative Language API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const maxBodyBytes = 8 << 20

// Client implements llm.Backend for Gemini.
type Client struct {
	http *http.Client
	cfg  Config
}

// Config configures the Gemini client.
type Config struct {
	APIKey  string
	BaseURL string
	Params  llm.GenerationParams
	Timeout time.Duration
	// HTTPClient overrides the default client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// NewClient creates a Gemini backend. The API key is required.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	cfg.Params = cfg.Params.WithDefaults()
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{http: hc, cfg: cfg}, nil
}

func (c *Client) Provider() string { return ProviderName }

// Call sends one generateContent request for model.
func (c *Client) Call(ctx context.Context, model string, msgs []llm.Message) (string, error) {
	payload := Request{
		Contents: Render(msgs),
		GenerationConfig: &GenerationConfig{
			Temperature:     c.cfg.Params.Temperature,
			TopK:            c.cfg.Params.TopK,
			TopP:            c.cfg.Params.TopP,
			MaxOutputTokens: c.cfg.Params.MaxOutputTokens,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal gemini request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, url.PathEscape(model))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &llm.StatusError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", &llm.FormatError{Provider: ProviderName, Model: model, Detail: "decode response: " + err.Error()}
	}
	text, err := Extract(&out)
	if err != nil {
		var fe *llm.FormatError
		if errors.As(err, &fe) {
			fe.Model = model
		}
		return "", err
	}
	return text, nil
}

// errorMessage pulls error.message from an error body, falling back to the raw text.
func errorMessage(raw []byte) string {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Error != nil && env.Error.Message != "" {
		return env.Error.Message
	}
	return strings.TrimSpace(string(raw))
}
