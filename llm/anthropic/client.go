// Package anthropic implements llm.Backend for the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	anth "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/KamdynS/sentiant/llm"
)

// ProviderName identifies this backend in errors and hooks.
const ProviderName = "anthropic"

// DefaultModels is the rotation pool used when none is configured.
var DefaultModels = []string{
	"claude-3-5-haiku-latest",
	"claude-3-5-sonnet-latest",
}

// Client implements llm.Backend for Claude.
type Client struct {
	client anth.Client
	cfg    Config
}

// Config configures the Anthropic client.
type Config struct {
	APIKey     string
	BaseURL    string
	Params     llm.GenerationParams
	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewClient creates an Anthropic backend with SDK retries disabled.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	cfg.Params = cfg.Params.WithDefaults()

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{client: anth.NewClient(opts...), cfg: cfg}, nil
}

func (c *Client) Provider() string { return ProviderName }

// Call sends one Messages request and returns the first text block.
func (c *Client) Call(ctx context.Context, model string, msgs []llm.Message) (string, error) {
	out, err := c.client.Messages.New(ctx, toAnthParams(model, msgs, c.cfg.Params))
	if err != nil {
		var apiErr *anth.Error
		if errors.As(err, &apiErr) {
			return "", &llm.StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return "", err
	}
	if out == nil {
		return "", &llm.FormatError{Provider: ProviderName, Model: model, Detail: "empty message"}
	}
	for _, block := range out.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", &llm.FormatError{Provider: ProviderName, Model: model, Detail: "no text block in response"}
}

// toAnthParams joins system messages into the system parameter; the rest
// become user or assistant turns in order.
func toAnthParams(model string, msgs []llm.Message, p llm.GenerationParams) anth.MessageNewParams {
	var system []string
	turns := make([]anth.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			turns = append(turns, anth.NewAssistantMessage(anth.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anth.NewUserMessage(anth.NewTextBlock(m.Content)))
		}
	}
	params := anth.MessageNewParams{
		Model:       anth.Model(model),
		Messages:    turns,
		MaxTokens:   int64(p.MaxOutputTokens),
		Temperature: anth.Float(p.Temperature),
		TopK:        anth.Int(int64(p.TopK)),
		TopP:        anth.Float(p.TopP),
	}
	if len(system) > 0 {
		params.System = []anth.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params
}
