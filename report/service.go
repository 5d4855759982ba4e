// Package report turns fetched social content into scored items and
// LLM-written reports.
package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/sentiment"
	"github.com/KamdynS/sentiant/sources"
	"github.com/KamdynS/sentiant/store"
)

// NewsSource returns recent articles for a query.
type NewsSource interface {
	Latest(ctx context.Context, query string) ([]sources.Article, error)
}

// TrendSource returns trending keywords. It degrades instead of failing.
type TrendSource interface {
	Trending(ctx context.Context) sources.Trending
}

// NewsFallbackSummary replaces the summary when the LLM call fails.
const NewsFallbackSummary = "Summary unavailable due to upstream error."

// DefaultConcurrency bounds in-flight sentiment calls per platform.
const DefaultConcurrency = 4

// Deps are the collaborators of a Service. Analyzer and Generator are
// required; everything else is optional.
type Deps struct {
	Fetchers    []sources.Fetcher
	Analyzer    sentiment.Analyzer
	Generator   llm.TextGenerator
	Store       store.Store
	News        NewsSource
	Trends      TrendSource
	Logger      *zap.Logger
	Concurrency int
}

// Service runs analyses and report generation.
type Service struct {
	fetchers    map[sources.Platform]sources.Fetcher
	analyzer    sentiment.Analyzer
	gen         llm.TextGenerator
	store       store.Store
	news        NewsSource
	trends      TrendSource
	log         *zap.Logger
	concurrency int
	now         func() time.Time
	newID       func() string
}

// New validates deps and builds a Service.
func New(d Deps) (*Service, error) {
	if d.Analyzer == nil {
		return nil, errors.New("report: sentiment analyzer is required")
	}
	if d.Generator == nil {
		return nil, errors.New("report: text generator is required")
	}
	s := &Service{
		fetchers:    make(map[sources.Platform]sources.Fetcher, len(d.Fetchers)),
		analyzer:    d.Analyzer,
		gen:         d.Generator,
		store:       d.Store,
		news:        d.News,
		trends:      d.Trends,
		log:         d.Logger,
		concurrency: d.Concurrency,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, f := range d.Fetchers {
		if f != nil {
			s.fetchers[f.Platform()] = f
		}
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.concurrency <= 0 {
		s.concurrency = DefaultConcurrency
	}
	return s, nil
}

// Fetcher returns the fetcher registered for p.
func (s *Service) Fetcher(p sources.Platform) (sources.Fetcher, bool) {
	f, ok := s.fetchers[p]
	return f, ok
}

// AnalyzeText scores a single text.
func (s *Service) AnalyzeText(ctx context.Context, text string) (sentiment.Score, error) {
	return s.analyzer.Analyze(ctx, text)
}

// AnalyzePlatform fetches items for q and scores each of them. Results keep
// fetch order. An item whose scoring fails carries SentimentError instead of
// a score. Scored items are persisted in one batch; a persistence failure is
// logged and does not fail the analysis.
func (s *Service) AnalyzePlatform(ctx context.Context, f sources.Fetcher, q sources.Query) ([]ScoredItem, error) {
	if f == nil {
		return nil, ErrSourceUnavailable
	}
	items, err := f.Fetch(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.Platform(), err)
	}

	out := make([]ScoredItem, len(items))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, it := range items {
		g.Go(func() error {
			si := ScoredItem{Platform: it.Platform, ID: it.ID, Text: it.Text, Author: it.Author, Metadata: it.Metadata}
			score, err := s.analyzer.Analyze(ctx, it.Text)
			if err != nil {
				si.SentimentError = err.Error()
				s.log.Warn("sentiment scoring failed",
					zap.String("platform", string(it.Platform)), zap.String("item_id", it.ID), zap.Error(err))
			} else {
				si.Sentiment = &score
			}
			out[i] = si
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.persist(ctx, items, out)
	return out, nil
}

func (s *Service) persist(ctx context.Context, items []sources.Item, scored []ScoredItem) {
	if s.store == nil {
		return
	}
	posts := make([]store.Post, 0, len(scored))
	for i, si := range scored {
		if si.Sentiment == nil {
			continue
		}
		score := si.Sentiment.Score
		ts := items[i].Timestamp
		if ts.IsZero() {
			ts = s.now().UTC()
		}
		meta := make(map[string]string, len(si.Metadata)+1)
		for k, v := range si.Metadata {
			meta[k] = v
		}
		if si.ID != "" {
			meta["source_id"] = si.ID
		}
		posts = append(posts, store.Post{
			ID:             s.newID(),
			Platform:       string(si.Platform),
			Content:        si.Text,
			UserHandle:     si.Author,
			Timestamp:      ts,
			SentimentScore: &score,
			Emotion:        si.Sentiment.Label,
			Metadata:       meta,
		})
	}
	if len(posts) == 0 {
		return
	}
	if err := s.store.SaveBatch(ctx, posts); err != nil {
		s.log.Error("persist scored posts", zap.Int("count", len(posts)), zap.Error(err))
	}
}

// GenerateReport asks the LLM for a report over items and records it.
func (s *Service) GenerateReport(ctx context.Context, topic string, items []ScoredItem) (string, error) {
	text, err := s.gen.Generate(ctx, BuildReportMessages(topic, items))
	if err != nil {
		return "", fmt.Errorf("generate report for %q: %w", topic, err)
	}
	if s.store != nil {
		rec := store.Report{
			ID:        s.newID(),
			Topic:     topic,
			CreatedAt: s.now().UTC(),
			Summary:   text,
			Metrics:   Summarize(items).Map(),
		}
		if err := s.store.SaveReport(ctx, rec); err != nil {
			s.log.Error("persist report", zap.String("topic", topic), zap.Error(err))
		}
	}
	return text, nil
}

type platformResult struct {
	items []ScoredItem
	err   error
}

// FullReport analyzes Reddit, YouTube and Twitter concurrently and writes
// one report. A platform that fails contributes nothing and is named in
// Partial. Only report generation failures fail the call.
func (s *Service) FullReport(ctx context.Context, req FullReportRequest) (FullReport, error) {
	req = req.WithDefaults()
	if err := req.Validate(); err != nil {
		return FullReport{}, err
	}
	plan := []struct {
		platform sources.Platform
		query    sources.Query
	}{
		{sources.PlatformReddit, sources.Query{Text: req.Topic, Subreddit: req.RedditSubreddit, Limit: req.RedditLimit}},
		{sources.PlatformYouTube, sources.Query{Text: req.Topic, MaxVideos: req.YouTubeMaxVideos, MaxCommentsPerVideo: req.YouTubeMaxCommentsPerVideo}},
		{sources.PlatformTwitter, sources.Query{Text: req.Topic, Limit: req.TwitterMaxResults}},
	}

	results := make([]platformResult, len(plan))
	var g errgroup.Group
	for i, p := range plan {
		g.Go(func() error {
			f, ok := s.fetchers[p.platform]
			if !ok {
				results[i].err = ErrSourceUnavailable
				return nil
			}
			results[i].items, results[i].err = s.AnalyzePlatform(ctx, f, p.query)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return FullReport{}, err
	}

	out := FullReport{AnalyzedComments: []ScoredItem{}}
	for i, r := range results {
		if r.err != nil {
			out.Partial = append(out.Partial, string(plan[i].platform))
			if !errors.Is(r.err, ErrSourceUnavailable) {
				s.log.Warn("platform degraded to empty",
					zap.String("platform", string(plan[i].platform)), zap.String("topic", req.Topic), zap.Error(r.err))
			}
			continue
		}
		out.AnalyzedComments = append(out.AnalyzedComments, r.items...)
	}

	text, err := s.GenerateReport(ctx, req.Topic, out.AnalyzedComments)
	if err != nil {
		return FullReport{}, err
	}
	out.Report = text
	return out, nil
}

// NewsSummary summarizes recent articles about topic. When the LLM fails
// the articles are still returned with NewsFallbackSummary.
func (s *Service) NewsSummary(ctx context.Context, topic string) (NewsSummary, error) {
	if s.news == nil {
		return NewsSummary{}, ErrSourceUnavailable
	}
	articles, err := s.news.Latest(ctx, topic)
	if err != nil {
		return NewsSummary{}, fmt.Errorf("fetch news: %w", err)
	}
	if len(articles) == 0 {
		return NewsSummary{}, ErrNoArticles
	}
	summary, err := s.gen.Generate(ctx, BuildNewsMessages(topic, articles))
	if err != nil {
		s.log.Error("news summary generation failed", zap.String("topic", topic), zap.Error(err))
		summary = NewsFallbackSummary
	}
	return NewsSummary{Summary: summary, Articles: articles}, nil
}

// Trending returns trending keywords.
func (s *Service) Trending(ctx context.Context) (sources.Trending, error) {
	if s.trends == nil {
		return sources.Trending{}, ErrSourceUnavailable
	}
	return s.trends.Trending(ctx), nil
}
