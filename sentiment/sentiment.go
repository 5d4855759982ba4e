// Package sentiment scores text with a hosted text-classification model.
package sentiment

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
)

const (
	// DefaultModel is a RoBERTa model tuned on tweets with
	// negative/neutral/positive labels.
	DefaultModel   = "cardiffnlp/twitter-roberta-base-sentiment-latest"
	DefaultBaseURL = "https://router.huggingface.co/hf-inference"
)

// ErrEmptyText is returned for blank input.
var ErrEmptyText = errors.New("text must not be empty")

// Score is the winning label of a classification.
type Score struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Analyzer scores a single text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (Score, error)
}

// Config configures the Hugging Face client.
type Config struct {
	Token      string
	Model      string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HFAnalyzer calls the Hugging Face inference API once per text.
type HFAnalyzer struct {
	cfg Config
	hc  *http.Client
}

var _ Analyzer = (*HFAnalyzer)(nil)

// NewHFAnalyzer returns an analyzer; the token is required.
func NewHFAnalyzer(cfg Config) (*HFAnalyzer, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("sentiment: Hugging Face token is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &HFAnalyzer{cfg: cfg, hc: hc}, nil
}

// APIError is a non-2xx inference response.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sentiment inference: HTTP %d: %s", e.StatusCode, e.Message)
}

// Analyze returns the highest-scoring label for text.
func (a *HFAnalyzer) Analyze(ctx context.Context, text string) (Score, error) {
	if strings.TrimSpace(text) == "" {
		return Score{}, ErrEmptyText
	}
	body, err := json.Marshal(map[string]string{"inputs": text})
	if err != nil {
		return Score{}, err
	}
	endpoint := a.cfg.BaseURL + "/models/" + escapeModel(a.cfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Score{}, fmt.Errorf("build inference request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.hc.Do(req)
	if err != nil {
		return Score{}, fmt.Errorf("sentiment inference: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Score{}, fmt.Errorf("read inference response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Score{}, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}
	return parseScores(raw)
}

// parseScores accepts both [[{label,score}...]] and [{label,score}...].
func parseScores(raw []byte) (Score, error) {
	var nested [][]Score
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return best(nested[0])
	}
	var flat []Score
	if err := json.Unmarshal(raw, &flat); err != nil {
		return Score{}, fmt.Errorf("decode inference response: %w", err)
	}
	return best(flat)
}

func best(scores []Score) (Score, error) {
	if len(scores) == 0 {
		return Score{}, errors.New("inference response has no labels")
	}
	top := scores[0]
	for _, s := range scores[1:] {
		if s.Score > top.Score {
			top = s
		}
	}
	return top, nil
}

func errorMessage(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

// escapeModel escapes each path segment of an "org/name" model id.
func escapeModel(model string) string {
	parts := strings.Split(model, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
