// Package llm implements provider-neutral text generation with model rotation,
// retry classification and jittered backoff.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Message represents a single role/content entry in a chat.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// UserMessage is shorthand for a user-role message.
func UserMessage(content string) Message { return Message{Role: RoleUser, Content: content} }

// SystemMessage is shorthand for a system-role message.
func SystemMessage(content string) Message { return Message{Role: RoleSystem, Content: content} }

// ErrInvalidRole is returned for messages whose role is not user, assistant or system.
var ErrInvalidRole = errors.New("invalid message role")

// ErrNoMessages is returned when a conversation is empty.
var ErrNoMessages = errors.New("no messages")

// ValidateMessages checks that msgs is a non-empty conversation with known roles.
func ValidateMessages(msgs []Message) error {
	if len(msgs) == 0 {
		return ErrNoMessages
	}
	for i, m := range msgs {
		if !m.Role.Valid() {
			return fmt.Errorf("message %d: %w %q", i, ErrInvalidRole, m.Role)
		}
	}
	return nil
}

// Backend issues exactly one generation request against a model.
//
// Call renders msgs into the provider's wire shape, performs a single network
// request and extracts the generated text. Failures are reported as
// *StatusError (provider answered with an error status), *FormatError (success
// status without extractable text) or a transport error. Implementations must
// not retry internally.
type Backend interface {
	Provider() string
	Call(ctx context.Context, model string, msgs []Message) (string, error)
}

// TextGenerator turns a conversation into a single text reply.
type TextGenerator interface {
	Generate(ctx context.Context, msgs []Message) (string, error)
}

// GenerationParams are the sampling parameters sent with every request.
type GenerationParams struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"top_k"`
	TopP            float64 `json:"top_p"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// DefaultGenerationParams returns the parameters used for report generation.
func DefaultGenerationParams() GenerationParams {
	return GenerationParams{
		Temperature:     0.7,
		TopK:            40,
		TopP:            0.95,
		MaxOutputTokens: 2048,
	}
}

// WithDefaults fills zero fields from DefaultGenerationParams.
func (p GenerationParams) WithDefaults() GenerationParams {
	d := DefaultGenerationParams()
	if p.Temperature == 0 {
		p.Temperature = d.Temperature
	}
	if p.TopK == 0 {
		p.TopK = d.TopK
	}
	if p.TopP == 0 {
		p.TopP = d.TopP
	}
	if p.MaxOutputTokens == 0 {
		p.MaxOutputTokens = d.MaxOutputTokens
	}
	return p
}
