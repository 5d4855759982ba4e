package report

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/sentiment"
	"github.com/KamdynS/sentiant/sources"
	"github.com/KamdynS/sentiant/store"
)

type fakeFetcher struct {
	platform sources.Platform
	items    []sources.Item
	err      error
	gotQuery sources.Query
}

func (f *fakeFetcher) Platform() sources.Platform { return f.platform }

func (f *fakeFetcher) Fetch(_ context.Context, q sources.Query) ([]sources.Item, error) {
	f.gotQuery = q
	return f.items, f.err
}

type fakeAnalyzer struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (a *fakeAnalyzer) Analyze(_ context.Context, text string) (sentiment.Score, error) {
	n := a.inFlight.Add(1)
	defer a.inFlight.Add(-1)
	for {
		p := a.peak.Load()
		if n <= p || a.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(a.delay)
	if strings.Contains(text, "bad") {
		return sentiment.Score{}, errors.New("model loading")
	}
	if strings.Contains(text, "love") {
		return sentiment.Score{Label: "positive", Score: 0.9}, nil
	}
	return sentiment.Score{Label: "neutral", Score: 0.5}, nil
}

type fakeGen struct {
	mu   sync.Mutex
	msgs [][]llm.Message
	text string
	err  error
}

func (g *fakeGen) Generate(_ context.Context, msgs []llm.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.msgs = append(g.msgs, msgs)
	return g.text, g.err
}

func items(p sources.Platform, texts ...string) []sources.Item {
	out := make([]sources.Item, len(texts))
	for i, t := range texts {
		out[i] = sources.Item{Platform: p, ID: string(p) + "-" + t, Text: t, Author: "someone"}
	}
	return out
}

func newService(t *testing.T, d Deps) *Service {
	t.Helper()
	if d.Analyzer == nil {
		d.Analyzer = &fakeAnalyzer{}
	}
	if d.Generator == nil {
		d.Generator = &fakeGen{text: "the report"}
	}
	s, err := New(d)
	require.NoError(t, err)
	return s
}

func TestNew_RequiresAnalyzerAndGenerator(t *testing.T) {
	_, err := New(Deps{Generator: &fakeGen{}})
	assert.Error(t, err)
	_, err = New(Deps{Analyzer: &fakeAnalyzer{}})
	assert.Error(t, err)
}

func TestAnalyzePlatform_PreservesOrderAndKeepsFailures(t *testing.T) {
	mem := store.NewMemoryStore()
	an := &fakeAnalyzer{delay: 5 * time.Millisecond}
	s := newService(t, Deps{Analyzer: an, Store: mem})
	f := &fakeFetcher{platform: sources.PlatformReddit,
		items: items(sources.PlatformReddit, "love a", "bad b", "c", "love d", "e", "f", "g", "h")}

	got, err := s.AnalyzePlatform(context.Background(), f, sources.Query{Text: "go"})
	require.NoError(t, err)
	require.Len(t, got, 8)
	for i, it := range got {
		assert.Equal(t, f.items[i].Text, it.Text)
	}
	assert.Nil(t, got[1].Sentiment)
	assert.Equal(t, "model loading", got[1].SentimentError)
	require.NotNil(t, got[0].Sentiment)
	assert.Equal(t, "positive", got[0].Sentiment.Label)
	assert.LessOrEqual(t, an.peak.Load(), int32(DefaultConcurrency))

	posts := mem.Posts()
	require.Len(t, posts, 7)
	assert.Equal(t, "reddit", posts[0].Platform)
	assert.Equal(t, "reddit-love a", posts[0].Metadata["source_id"])
	assert.False(t, posts[0].Timestamp.IsZero())
}

type failingStore struct{ store.MemoryStore }

func (*failingStore) SaveBatch(context.Context, []store.Post) error { return errors.New("disk full") }
func (*failingStore) SaveReport(context.Context, store.Report) error {
	return errors.New("disk full")
}

func TestAnalyzePlatform_PersistenceFailureIsNotFatal(t *testing.T) {
	s := newService(t, Deps{Store: &failingStore{}})
	f := &fakeFetcher{platform: sources.PlatformYouTube, items: items(sources.PlatformYouTube, "x")}
	got, err := s.AnalyzePlatform(context.Background(), f, sources.Query{})
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestAnalyzePlatform_FetchError(t *testing.T) {
	s := newService(t, Deps{})
	f := &fakeFetcher{platform: sources.PlatformTwitter, err: sources.ErrRateLimited}
	_, err := s.AnalyzePlatform(context.Background(), f, sources.Query{})
	assert.ErrorIs(t, err, sources.ErrRateLimited)

	_, err = s.AnalyzePlatform(context.Background(), nil, sources.Query{})
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

func TestBuildReportMessages(t *testing.T) {
	msgs := BuildReportMessages("golang", []ScoredItem{
		{Text: "great", Sentiment: &sentiment.Score{Label: "positive", Score: 0.75}},
		{Text: "hmm", SentimentError: "boom"},
	})
	require.Len(t, msgs, 1)
	assert.Equal(t, llm.RoleUser, msgs[0].Role)
	body := msgs[0].Content
	assert.Contains(t, body, "about 'golang'")
	assert.Contains(t, body, "\n- Comment: great\n  Sentiment: positive (score: 0.75)")
	assert.Contains(t, body, "\n- Comment: hmm\n  Sentiment: unavailable (score: n/a)")
	assert.True(t, strings.HasSuffix(body, "Summary and Report:"))
}

func TestGenerateReport_SavesRecord(t *testing.T) {
	mem := store.NewMemoryStore()
	s := newService(t, Deps{Store: mem})
	text, err := s.GenerateReport(context.Background(), "go", []ScoredItem{
		{Platform: sources.PlatformReddit, Text: "a", Sentiment: &sentiment.Score{Label: "positive", Score: 1}},
		{Platform: sources.PlatformReddit, Text: "b", SentimentError: "x"},
	})
	require.NoError(t, err)
	assert.Equal(t, "the report", text)

	reps := mem.Reports()
	require.Len(t, reps, 1)
	assert.Equal(t, "go", reps[0].Topic)
	assert.Equal(t, 2, reps[0].Metrics["total"])
	assert.Equal(t, 1, reps[0].Metrics["failed"])
}

func TestGenerateReport_PropagatesTypedError(t *testing.T) {
	exhausted := &llm.ExhaustionError{Reason: llm.ReasonModelsExhausted}
	s := newService(t, Deps{Generator: &fakeGen{err: exhausted}})
	_, err := s.GenerateReport(context.Background(), "go", nil)
	assert.ErrorIs(t, err, llm.ErrExhausted)
}

func TestFullReport_DegradesFailingPlatforms(t *testing.T) {
	reddit := &fakeFetcher{platform: sources.PlatformReddit, items: items(sources.PlatformReddit, "love r1", "r2")}
	youtube := &fakeFetcher{platform: sources.PlatformYouTube, err: errors.New("quota")}
	gen := &fakeGen{text: "final"}
	s := newService(t, Deps{Fetchers: []sources.Fetcher{reddit, youtube}, Generator: gen})

	got, err := s.FullReport(context.Background(), FullReportRequest{Topic: "  rust "})
	require.NoError(t, err)
	assert.Equal(t, "final", got.Report)
	assert.Len(t, got.AnalyzedComments, 2)
	assert.ElementsMatch(t, []string{"youtube", "twitter"}, got.Partial)

	assert.Equal(t, sources.Query{Text: "rust", Subreddit: "all", Limit: 10}, reddit.gotQuery)
	assert.Equal(t, sources.Query{Text: "rust", MaxVideos: 2, MaxCommentsPerVideo: 5}, youtube.gotQuery)
	require.Len(t, gen.msgs, 1)
	assert.Contains(t, gen.msgs[0][0].Content, "- Comment: love r1")
}

func TestFullReport_AllSourcesDownStillReports(t *testing.T) {
	s := newService(t, Deps{})
	got, err := s.FullReport(context.Background(), FullReportRequest{Topic: "x"})
	require.NoError(t, err)
	assert.NotNil(t, got.AnalyzedComments)
	assert.Empty(t, got.AnalyzedComments)
	assert.Len(t, got.Partial, 3)
}

func TestFullReport_RequiresTopic(t *testing.T) {
	s := newService(t, Deps{})
	_, err := s.FullReport(context.Background(), FullReportRequest{Topic: " "})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

type fakeNews struct {
	articles []sources.Article
	err      error
}

func (n fakeNews) Latest(context.Context, string) ([]sources.Article, error) {
	return n.articles, n.err
}

func TestNewsSummary(t *testing.T) {
	arts := []sources.Article{{Title: "T1", Description: "D1", Content: "C1"}}

	gen := &fakeGen{text: "digest"}
	s := newService(t, Deps{News: fakeNews{articles: arts}, Generator: gen})
	got, err := s.NewsSummary(context.Background(), "ai")
	require.NoError(t, err)
	assert.Equal(t, "digest", got.Summary)
	assert.Equal(t, arts, got.Articles)
	assert.Contains(t, gen.msgs[0][0].Content, "Article 1:\nTitle: T1\nDescription: D1\nContent: C1")

	s = newService(t, Deps{News: fakeNews{articles: arts}, Generator: &fakeGen{err: errors.New("down")}})
	got, err = s.NewsSummary(context.Background(), "ai")
	require.NoError(t, err)
	assert.Equal(t, NewsFallbackSummary, got.Summary)

	s = newService(t, Deps{News: fakeNews{}})
	_, err = s.NewsSummary(context.Background(), "ai")
	assert.ErrorIs(t, err, ErrNoArticles)

	s = newService(t, Deps{})
	_, err = s.NewsSummary(context.Background(), "ai")
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}

type fixedTrends sources.Trending

func (f fixedTrends) Trending(context.Context) sources.Trending { return sources.Trending(f) }

func TestTrending(t *testing.T) {
	s := newService(t, Deps{Trends: fixedTrends{Topics: []string{"go"}}})
	got, err := s.Trending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"go"}, got.Topics)

	_, err = newService(t, Deps{}).Trending(context.Background())
	assert.ErrorIs(t, err, ErrSourceUnavailable)
}
