package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

const newsAPIBase = "https://newsdata.io/api/1"

// Article is one news result.
type Article struct {
	ID          string   `json:"article_id,omitempty"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Content     string   `json:"content,omitempty"`
	Link        string   `json:"link,omitempty"`
	PubDate     string   `json:"pubDate,omitempty"`
	SourceID    string   `json:"source_id,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// NewsConfig configures the newsdata.io client.
type NewsConfig struct {
	APIKey     string
	APIBase    string
	HTTPClient *http.Client
}

// News queries the newsdata.io latest-news endpoint.
type News struct {
	cfg NewsConfig
	hc  *http.Client
}

// NewNews returns a client; the API key is required.
func NewNews(cfg NewsConfig) (*News, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("news: API key is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = newsAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &News{cfg: cfg, hc: defaultHTTPClient(cfg.HTTPClient)}, nil
}

// Latest returns the latest articles matching query.
func (n *News) Latest(ctx context.Context, query string) ([]Article, error) {
	params := url.Values{"apikey": {n.cfg.APIKey}, "q": {query}}
	var res struct {
		Status  string    `json:"status"`
		Results []Article `json:"results"`
	}
	if err := getJSON(ctx, n.hc, "news", n.cfg.APIBase+"/latest?"+params.Encode(), nil, &res); err != nil {
		return nil, err
	}
	return res.Results, nil
}
