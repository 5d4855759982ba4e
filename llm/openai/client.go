// Package openai implements llm.Backend for OpenAI-compatible chat APIs,
// by default the Hugging Face inference router.
package openai

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/KamdynS/sentiant/llm"
)

// ProviderName identifies this backend in errors and hooks.
const ProviderName = "huggingface"

// DefaultBaseURL is the OpenAI-compatible Hugging Face router.
const DefaultBaseURL = "https://router.huggingface.co/v1"

// DefaultModels is the rotation pool used when none is configured.
var DefaultModels = []string{
	"meta-llama/Llama-3.1-8B-Instruct",
	"mistralai/Mistral-7B-Instruct-v0.3",
	"Qwen/Qwen2.5-7B-Instruct",
}

// Client implements llm.Backend over the official OpenAI SDK.
type Client struct {
	client oa.Client
	cfg    Config
}

// Config configures the client.
type Config struct {
	APIKey       string
	BaseURL      string
	Organization string
	Params       llm.GenerationParams
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// NewClient creates a client. SDK retries are disabled; the generator owns them.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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
		option.WithHTTPClient(hc),
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	return &Client{client: oa.NewClient(opts...), cfg: cfg}, nil
}

func (c *Client) Provider() string { return ProviderName }

// Call issues one chat completion and returns the first choice's content.
func (c *Client) Call(ctx context.Context, model string, msgs []llm.Message) (string, error) {
	params := oa.ChatCompletionNewParams{
		Messages:    toOAMessages(msgs),
		Model:       shared.ChatModel(model),
		Temperature: oa.Float(c.cfg.Params.Temperature),
		TopP:        oa.Float(c.cfg.Params.TopP),
		MaxTokens:   oa.Int(int64(c.cfg.Params.MaxOutputTokens)),
	}
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *oa.Error
		if errors.As(err, &apiErr) {
			msg := apiErr.Message
			if msg == "" {
				msg = apiErr.Error()
			}
			return "", &llm.StatusError{StatusCode: apiErr.StatusCode, Message: msg}
		}
		return "", err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", &llm.FormatError{Provider: ProviderName, Model: model, Detail: "no choices in response"}
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", &llm.FormatError{Provider: ProviderName, Model: model, Detail: "first choice has no content"}
	}
	return content, nil
}

func toOAMessages(msgs []llm.Message) []oa.ChatCompletionMessageParamUnion {
	out := make([]oa.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			out = append(out, oa.SystemMessage(m.Content))
		case llm.RoleAssistant:
			out = append(out, oa.AssistantMessage(m.Content))
		default:
			out = append(out, oa.UserMessage(m.Content))
		}
	}
	return out
}
