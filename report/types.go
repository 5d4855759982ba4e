package report

import (
	"errors"
	"strings"

	"github.com/KamdynS/sentiant/sentiment"
	"github.com/KamdynS/sentiant/sources"
)

var (
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrSourceUnavailable means the needed collaborator is not configured.
	ErrSourceUnavailable = errors.New("source not configured")
	// ErrNoArticles means the news search returned nothing.
	ErrNoArticles = errors.New("no news articles found")
)

// ScoredItem is a fetched item with its sentiment, or the reason scoring failed.
type ScoredItem struct {
	Platform       sources.Platform  `json:"platform"`
	ID             string            `json:"id,omitempty"`
	Text           string            `json:"text"`
	Author         string            `json:"author,omitempty"`
	Sentiment      *sentiment.Score  `json:"sentiment,omitempty"`
	SentimentError string            `json:"sentiment_error,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// FullReportRequest selects how much to pull from each platform.
type FullReportRequest struct {
	Topic                      string `json:"topic"`
	RedditSubreddit            string `json:"reddit_subreddit,omitempty"`
	RedditLimit                int    `json:"reddit_limit,omitempty"`
	YouTubeMaxVideos           int    `json:"youtube_max_videos,omitempty"`
	YouTubeMaxCommentsPerVideo int    `json:"youtube_max_comments_per_video,omitempty"`
	TwitterMaxResults          int    `json:"twitter_max_results,omitempty"`
}

// WithDefaults fills zero fields: subreddit "all", 10 Reddit comments,
// 2 videos with 5 comments each and 10 tweets.
func (r FullReportRequest) WithDefaults() FullReportRequest {
	r.Topic = strings.TrimSpace(r.Topic)
	if r.RedditSubreddit == "" {
		r.RedditSubreddit = "all"
	}
	if r.RedditLimit <= 0 {
		r.RedditLimit = 10
	}
	if r.YouTubeMaxVideos <= 0 {
		r.YouTubeMaxVideos = 2
	}
	if r.YouTubeMaxCommentsPerVideo <= 0 {
		r.YouTubeMaxCommentsPerVideo = 5
	}
	if r.TwitterMaxResults <= 0 {
		r.TwitterMaxResults = 10
	}
	return r
}

// Validate reports a missing topic.
func (r FullReportRequest) Validate() error {
	if strings.TrimSpace(r.Topic) == "" {
		return errors.Join(ErrInvalidRequest, errors.New("topic is required"))
	}
	return nil
}

// FullReport is the aggregated result. Partial lists platforms that
// contributed nothing because they failed or are not configured.
type FullReport struct {
	Report           string       `json:"report"`
	AnalyzedComments []ScoredItem `json:"analyzed_comments"`
	Partial          []string     `json:"partial,omitempty"`
}

// NewsSummary is an LLM digest of recent articles.
type NewsSummary struct {
	Summary  string            `json:"summary"`
	Articles []sources.Article `json:"articles"`
}
