package sources

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const twitterAPIBase = "https://api.twitter.com/2"

// TwitterConfig configures the v2 recent search client.
type TwitterConfig struct {
	BearerToken string
	APIBase     string
	HTTPClient  *http.Client
}

// Twitter runs recent-search queries restricted to English tweets.
type Twitter struct {
	cfg TwitterConfig
	hc  *http.Client
}

var _ Fetcher = (*Twitter)(nil)

// NewTwitter returns a client; the bearer token is required.
func NewTwitter(cfg TwitterConfig) (*Twitter, error) {
	if cfg.BearerToken == "" {
		return nil, errors.New("twitter: bearer token is required")
	}
	if cfg.APIBase == "" {
		cfg.APIBase = twitterAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Twitter{cfg: cfg, hc: defaultHTTPClient(cfg.HTTPClient)}, nil
}

func (t *Twitter) Platform() Platform { return PlatformTwitter }

type tweetSearch struct {
	Data []struct {
		ID        string `json:"id"`
		Text      string `json:"text"`
		AuthorID  string `json:"author_id"`
		CreatedAt string `json:"created_at"`
	} `json:"data"`
}

// Fetch returns recent tweets for q.Text. q.Limit is clamped to [10, 100]
// as the API requires. A 429 response matches ErrRateLimited.
func (t *Twitter) Fetch(ctx context.Context, q Query) ([]Item, error) {
	params := url.Values{
		"query":        {q.Text + " lang:en"},
		"max_results":  {strconv.Itoa(clamp(q.Limit, 10, 100))},
		"tweet.fields": {"text,created_at,author_id"},
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+t.cfg.BearerToken)

	var res tweetSearch
	if err := getJSON(ctx, t.hc, "twitter", t.cfg.APIBase+"/tweets/search/recent?"+params.Encode(), h, &res); err != nil {
		return nil, err
	}
	items := make([]Item, 0, len(res.Data))
	for _, tw := range res.Data {
		ts, err := time.Parse(time.RFC3339, tw.CreatedAt)
		if err != nil {
			ts = time.Now().UTC()
		}
		items = append(items, Item{
			Platform:  PlatformTwitter,
			ID:        tw.ID,
			Text:      tw.Text,
			Author:    tw.AuthorID,
			Timestamp: ts,
			Metadata:  map[string]string{"tweet_id": tw.ID},
		})
	}
	return items, nil
}
