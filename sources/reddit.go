package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	redditTokenURL = "https://www.reddit.com/api/v1/access_token"
	redditAPIBase  = "https://oauth.reddit.com"
)

// RedditConfig holds script-app credentials.
type RedditConfig struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	// TokenURL and APIBase override the public endpoints.
	TokenURL   string
	APIBase    string
	HTTPClient *http.Client
}

// Reddit searches a subreddit and collects comments of matching posts.
type Reddit struct {
	cfg RedditConfig
	hc  *http.Client

	mu      sync.Mutex
	token   string
	expires time.Time
}

var _ Fetcher = (*Reddit)(nil)

// NewReddit validates credentials and returns a client.
func NewReddit(cfg RedditConfig) (*Reddit, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("reddit: client id, secret, username and password are required")
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "sentiant/1.0"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = redditTokenURL
	}
	if cfg.APIBase == "" {
		cfg.APIBase = redditAPIBase
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	return &Reddit{cfg: cfg, hc: defaultHTTPClient(cfg.HTTPClient)}, nil
}

func (r *Reddit) Platform() Platform { return PlatformReddit }

type redditListing struct {
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data redditThingData `json:"data"`
}

type redditThingData struct {
	ID         string          `json:"id"`
	Title      string          `json:"title"`
	Body       string          `json:"body"`
	Author     string          `json:"author"`
	CreatedUTC float64         `json:"created_utc"`
	Permalink  string          `json:"permalink"`
	Replies    json.RawMessage `json:"replies"`
}

// Fetch returns up to q.Limit comment bodies from the newest posts matching
// q.Text in q.Subreddit (default "all", limit 10).
func (r *Reddit) Fetch(ctx context.Context, q Query) ([]Item, error) {
	sub := q.Subreddit
	if sub == "" {
		sub = "all"
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	params := url.Values{
		"q":           {q.Text},
		"sort":        {"new"},
		"restrict_sr": {"1"},
		"limit":       {strconv.Itoa(limit)},
		"raw_json":    {"1"},
	}
	var posts redditListing
	if err := r.get(ctx, "/r/"+url.PathEscape(sub)+"/search", params, &posts); err != nil {
		return nil, err
	}

	items := make([]Item, 0, limit)
	for _, post := range posts.Data.Children {
		if post.Kind != "t3" {
			continue
		}
		var thread []redditListing
		if err := r.get(ctx, "/comments/"+url.PathEscape(post.Data.ID), url.Values{"raw_json": {"1"}}, &thread); err != nil {
			return nil, err
		}
		if len(thread) < 2 {
			continue
		}
		items = collectComments(items, thread[1].Data.Children, sub, post.Data.ID, limit)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// collectComments flattens a comment forest depth-first until limit.
func collectComments(dst []Item, things []redditThing, sub, postID string, limit int) []Item {
	for _, c := range things {
		if len(dst) >= limit {
			return dst
		}
		if c.Kind != "t1" {
			continue
		}
		if body := strings.TrimSpace(c.Data.Body); body != "" {
			dst = append(dst, Item{
				Platform:  PlatformReddit,
				ID:        c.Data.ID,
				Text:      body,
				Author:    c.Data.Author,
				Timestamp: time.Unix(int64(c.Data.CreatedUTC), 0).UTC(),
				Metadata:  map[string]string{"comment_id": c.Data.ID, "post_id": postID, "subreddit": sub},
			})
		}
		if len(c.Data.Replies) > 0 && c.Data.Replies[0] == '{' {
			var replies redditListing
			if json.Unmarshal(c.Data.Replies, &replies) == nil {
				dst = collectComments(dst, replies.Data.Children, sub, postID, limit)
			}
		}
	}
	return dst
}

// HotTitles returns post titles from a subreddit's hot listing.
func (r *Reddit) HotTitles(ctx context.Context, sub string, limit int) ([]string, error) {
	var listing redditListing
	params := url.Values{"limit": {strconv.Itoa(limit)}, "raw_json": {"1"}}
	if err := r.get(ctx, "/r/"+url.PathEscape(sub)+"/hot", params, &listing); err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(listing.Data.Children))
	for _, c := range listing.Data.Children {
		if c.Data.Title != "" {
			titles = append(titles, c.Data.Title)
		}
	}
	return titles, nil
}

func (r *Reddit) get(ctx context.Context, path string, params url.Values, out any) error {
	token, err := r.accessToken(ctx)
	if err != nil {
		return err
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	h.Set("User-Agent", r.cfg.UserAgent)
	return getJSON(ctx, r.hc, "reddit", r.cfg.APIBase+path+"?"+params.Encode(), h, out)
}

// accessToken returns a cached password-grant token, refreshing it a
// minute before expiry.
func (r *Reddit) accessToken(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.token != "" && time.Now().Before(r.expires) {
		return r.token, nil
	}
	form := url.Values{
		"grant_type": {"password"},
		"username":   {r.cfg.Username},
		"password":   {r.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("reddit: build token request: %w", err)
	}
	req.SetBasicAuth(r.cfg.ClientID, r.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", r.cfg.UserAgent)

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		Error       string `json:"error"`
	}
	if err := doJSON(r.hc, "reddit", req, &tok); err != nil {
		return "", err
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("reddit: token request failed: %s", tok.Error)
	}
	r.token = tok.AccessToken
	r.expires = time.Now().Add(time.Duration(tok.ExpiresIn)*time.Second - time.Minute)
	return r.token, nil
}
