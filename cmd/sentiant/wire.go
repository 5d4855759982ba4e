package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	redisstore "github.com/KamdynS/sentiant/adapters/redis"
	sqsqueue "github.com/KamdynS/sentiant/adapters/sqs"
	"github.com/KamdynS/sentiant/config"
	"github.com/KamdynS/sentiant/llm"
	"github.com/KamdynS/sentiant/llm/anthropic"
	"github.com/KamdynS/sentiant/llm/gemini"
	"github.com/KamdynS/sentiant/llm/openai"
	"github.com/KamdynS/sentiant/observability"
	"github.com/KamdynS/sentiant/queue"
	"github.com/KamdynS/sentiant/report"
	"github.com/KamdynS/sentiant/sentiment"
	"github.com/KamdynS/sentiant/session"
	"github.com/KamdynS/sentiant/sources"
	"github.com/KamdynS/sentiant/state"
	"github.com/KamdynS/sentiant/store"
)

// jobStateTTL bounds how long finished async jobs stay queryable in Redis.
const jobStateTTL = 7 * 24 * time.Hour

// app owns the configuration, logger and every long-lived resource the
// commands build, and releases them in reverse order.
type app struct {
	cfg     config.Config
	log     *zap.Logger
	rdb     *redisstore.Client
	closers []func() error
}

func (a *app) onClose(f func() error) { a.closers = append(a.closers, f) }

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.log != nil {
			a.log.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func (a *app) backend(provider string) (llm.Backend, []string, error) {
	c := a.cfg.LLM
	params := llm.GenerationParams{
		Temperature:     c.Temperature,
		TopK:            c.TopK,
		TopP:            c.TopP,
		MaxOutputTokens: c.MaxOutputTokens,
	}
	switch provider {
	case gemini.ProviderName:
		b, err := gemini.NewClient(gemini.Config{APIKey: c.GoogleAPIKey, BaseURL: c.GeminiBaseURL, Params: params, Timeout: c.CallTimeout})
		return b, llm.DefaultGeminiModels, err
	case openai.ProviderName:
		b, err := openai.NewClient(openai.Config{APIKey: c.HFToken, BaseURL: c.HFBaseURL, Params: params, Timeout: c.CallTimeout})
		return b, openai.DefaultModels, err
	case anthropic.ProviderName:
		b, err := anthropic.NewClient(anthropic.Config{APIKey: c.AnthropicAPIKey, BaseURL: c.AnthropicBaseURL, Params: params, Timeout: c.CallTimeout})
		return b, anthropic.DefaultModels, err
	}
	return nil, nil, fmt.Errorf("unknown llm provider %q", provider)
}

func (a *app) generatorFor(provider string, models []string) (*llm.Generator, error) {
	backend, defaults, err := a.backend(provider)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		models = defaults
	}
	reg, err := llm.NewRegistry(models...)
	if err != nil {
		return nil, fmt.Errorf("%s models: %w", provider, err)
	}
	return llm.NewGenerator(backend, reg, llm.GeneratorConfig{
		MaxAttempts: a.cfg.LLM.MaxAttempts,
		BaseDelay:   a.cfg.LLM.BaseDelay,
		MaxDelay:    a.cfg.LLM.MaxDelay,
		CallTimeout: a.cfg.LLM.CallTimeout,
		Hooks:       observability.NewZapHooks(a.log.With(zap.String("component", "llm"))),
	})
}

// textGenerator builds the primary generator behind a router that falls
// back to the second provider when the first is exhausted.
func (a *app) textGenerator() (llm.TextGenerator, error) {
	primary, err := a.generatorFor(a.cfg.LLM.Provider, a.cfg.LLM.Models)
	if err != nil {
		return nil, err
	}
	rc := llm.RouterConfig{Timeout: a.cfg.LLM.RequestTimeout}
	if fp := a.cfg.LLM.FallbackProvider; fp != "" {
		fb, err := a.generatorFor(fp, a.cfg.LLM.FallbackModels)
		if err != nil {
			return nil, err
		}
		rc.Fallback = fb
	}
	return llm.NewRouter(primary).WithConfig(rc), nil
}

func (a *app) redis(ctx context.Context) (*redisstore.Client, error) {
	if a.rdb != nil {
		return a.rdb, nil
	}
	rc := a.cfg.Redis
	c, err := redisstore.Dial(ctx, redisstore.Config{
		Addr: rc.Addr, Username: rc.Username, Password: rc.Password, DB: rc.DB, Prefix: rc.Prefix,
	})
	if err != nil {
		return nil, err
	}
	a.rdb = c
	a.onClose(c.Close)
	return c, nil
}

func (a *app) postStore(ctx context.Context) (store.Store, error) {
	var s store.Store
	switch a.cfg.Store.Driver {
	case "sqlite":
		db, err := store.OpenSQLite(ctx, a.cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		s = db
	default:
		s = store.NewMemoryStore()
	}
	a.onClose(s.Close)
	return store.WithRetry(s, a.cfg.Store.Retries, a.cfg.Store.RetryDelay), nil
}

// fetchers builds the platform clients that have credentials configured.
func (a *app) fetchers() (fetchers []sources.Fetcher, yt *sources.YouTube, rd *sources.Reddit) {
	sc := a.cfg.Sources
	if sc.RedditClientID != "" {
		r, err := sources.NewReddit(sources.RedditConfig{
			ClientID: sc.RedditClientID, ClientSecret: sc.RedditClientSecret,
			Username: sc.RedditUsername, Password: sc.RedditPassword, UserAgent: sc.RedditUserAgent,
		})
		if err != nil {
			a.log.Warn("reddit disabled", zap.Error(err))
		} else {
			rd = r
			fetchers = append(fetchers, r)
		}
	}
	if sc.YouTubeAPIKey != "" {
		y, err := sources.NewYouTube(sources.YouTubeConfig{APIKey: sc.YouTubeAPIKey, Logger: a.log.Named("youtube")})
		if err != nil {
			a.log.Warn("youtube disabled", zap.Error(err))
		} else {
			yt = y
			fetchers = append(fetchers, y)
		}
	}
	if sc.TwitterBearerToken != "" {
		t, err := sources.NewTwitter(sources.TwitterConfig{BearerToken: sc.TwitterBearerToken})
		if err != nil {
			a.log.Warn("twitter disabled", zap.Error(err))
		} else {
			fetchers = append(fetchers, t)
		}
	}
	return fetchers, yt, rd
}

func (a *app) reportService(ctx context.Context) (*report.Service, error) {
	gen, err := a.textGenerator()
	if err != nil {
		return nil, err
	}
	analyzer, err := sentiment.NewHFAnalyzer(sentiment.Config{
		Token:   a.cfg.LLM.HFToken,
		Model:   a.cfg.Sentiment.Model,
		BaseURL: a.cfg.Sentiment.BaseURL,
		Timeout: a.cfg.Sentiment.Timeout,
	})
	if err != nil {
		return nil, err
	}
	posts, err := a.postStore(ctx)
	if err != nil {
		return nil, err
	}

	fetchers, yt, rd := a.fetchers()
	deps := report.Deps{
		Fetchers:    fetchers,
		Analyzer:    analyzer,
		Generator:   gen,
		Store:       posts,
		Logger:      a.log.Named("report"),
		Concurrency: a.cfg.Sentiment.Concurrency,
	}
	// interface fields stay nil unless a concrete client exists
	trends := &sources.TrendingSource{}
	if yt != nil {
		trends.YouTube = yt
	}
	if rd != nil {
		trends.Reddit = rd
	}
	if trends.YouTube != nil || trends.Reddit != nil {
		deps.Trends = trends
	}
	if key := a.cfg.Sources.NewsAPIKey; key != "" {
		news, err := sources.NewNews(sources.NewsConfig{APIKey: key})
		if err != nil {
			return nil, err
		}
		deps.News = news
	}

	names := make([]string, 0, len(fetchers))
	for _, f := range fetchers {
		names = append(names, string(f.Platform()))
	}
	a.log.Info("report service ready", zap.Strings("sources", names), zap.Bool("news", deps.News != nil))
	return report.New(deps)
}

func (a *app) sessionStore(ctx context.Context) (session.Store, error) {
	policy := session.Policy{InitialCredits: a.cfg.Session.InitialCredits, TTL: a.cfg.Session.TTL}
	if a.cfg.Session.Backend == "redis" {
		c, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		return redisstore.NewSessionStore(c, policy), nil
	}
	return session.NewMemoryStore(policy), nil
}

func (a *app) jobQueue(ctx context.Context) (queue.Queue, error) {
	qc := a.cfg.Queue
	var q queue.Queue
	switch qc.Backend {
	case "redis":
		c, err := a.redis(ctx)
		if err != nil {
			return nil, err
		}
		q = queue.NewRedisQueueFromClient(c.Redis(), c.Prefix(), 0, qc.VisibilityTimeout)
	case "sqs":
		sq, err := sqsqueue.New(ctx, sqsqueue.Config{
			QueueURL:          qc.SQSQueueURL,
			Region:            qc.SQSRegion,
			VisibilityTimeout: int(qc.VisibilityTimeout / time.Second),
		})
		if err != nil {
			return nil, err
		}
		q = sq
	default:
		log := a.log.Named("queue")
		q = queue.NewInMemoryQueueWithOptions(queue.Options{
			VisibilityTimeout: qc.VisibilityTimeout,
			EnableDLQ:         true,
			Hooks: queue.Hooks{
				OnRedeliver: func(name string, job *queue.Job) {
					log.Warn("job visibility expired, redelivering", zap.String("job_id", job.ID), zap.Int("attempts", job.Attempts))
				},
			},
		})
	}
	a.onClose(q.Close)
	return q, nil
}

// jobStates keeps async job state next to the queue: in process for the
// in-memory queue, in Redis when jobs may run on another instance.
func (a *app) jobStates(ctx context.Context) (state.Store, error) {
	if a.cfg.Queue.Backend == "memory" {
		return state.NewInMemoryStore(), nil
	}
	c, err := a.redis(ctx)
	if err != nil {
		return nil, fmt.Errorf("job state for %s queue needs redis: %w", a.cfg.Queue.Backend, err)
	}
	return redisstore.NewJobStore(c, jobStateTTL), nil
}
