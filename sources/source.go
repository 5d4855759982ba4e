// Package sources fetches user-generated text about a topic from social
// platforms and news feeds.
package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Platform names a content source.
type Platform string

const (
	PlatformReddit  Platform = "reddit"
	PlatformYouTube Platform = "youtube"
	PlatformTwitter Platform = "twitter"
)

// ErrRateLimited is matched by errors for HTTP 429 responses.
var ErrRateLimited = errors.New("rate limited by upstream")

// Item is one piece of fetched text.
type Item struct {
	Platform  Platform          `json:"platform"`
	ID        string            `json:"id"`
	Text      string            `json:"text"`
	Author    string            `json:"author,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Query selects what to fetch. Each fetcher reads the fields it understands.
type Query struct {
	Text                string
	Subreddit           string
	Limit               int
	MaxVideos           int
	MaxCommentsPerVideo int
}

// Fetcher retrieves items for a query from a single platform.
type Fetcher interface {
	Platform() Platform
	Fetch(ctx context.Context, q Query) ([]Item, error)
}

// StatusError is a non-2xx response from an upstream API.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// Is matches ErrRateLimited for 429 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

const maxErrorBody = 4 << 10

// doJSON sends req and decodes a 2xx JSON body into out.
func doJSON(hc *http.Client, service string, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")
	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", service, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Service: service, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", service, err)
	}
	return nil
}

func getJSON(ctx context.Context, hc *http.Client, service, endpoint string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", service, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return doJSON(hc, service, req, out)
}

func defaultHTTPClient(hc *http.Client) *http.Client {
	if hc != nil {
		return hc
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func clamp(v, lo, hi int) int {
	return min(max(v, lo), hi)
}
