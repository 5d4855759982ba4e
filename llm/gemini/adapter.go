package gemini

import (
	"github.com/KamdynS/sentiant/llm"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

// Render converts a chat conversation into Gemini contents.
//
// Gemini only knows "user" and "model" turns: assistant becomes model, and a
// system message is folded into the most recent user turn (prepended, blank
// line separated) or becomes a user turn when no user turn precedes it.
func Render(msgs []llm.Message) []Content {
	out := make([]Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleAssistant:
			out = append(out, textContent(roleModel, m.Content))
		case llm.RoleSystem:
			if i := lastUser(out); i >= 0 {
				out[i].Parts[0].Text = m.Content + "\n\n" + out[i].Parts[0].Text
				continue
			}
			out = append(out, textContent(roleUser, m.Content))
		default:
			out = append(out, textContent(roleUser, m.Content))
		}
	}
	return out
}

// Extract returns the first text part of the first candidate.
func Extract(resp *Response) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return "", &llm.FormatError{Provider: ProviderName, Detail: "no candidates in response"}
	}
	c := resp.Candidates[0]
	if c.Content == nil || len(c.Content.Parts) == 0 {
		detail := "candidate has no content parts"
		if c.FinishReason != "" {
			detail += " (finishReason " + c.FinishReason + ")"
		}
		return "", &llm.FormatError{Provider: ProviderName, Detail: detail}
	}
	text := c.Content.Parts[0].Text
	if text == "" {
		return "", &llm.FormatError{Provider: ProviderName, Detail: "first part has no text"}
	}
	return text, nil
}

func textContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{{Text: text}}}
}

func lastUser(contents []Content) int {
	for i := len(contents) - 1; i >= 0; i-- {
		if contents[i].Role == roleUser && len(contents[i].Parts) > 0 {
			return i
		}
	}
	return -1
}
