// Package config loads Sentiant settings from defaults, an optional config
// file and SENTIANT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SENTIANT_LLM_PROVIDER.
const EnvPrefix = "SENTIANT"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Sentiment SentimentConfig `mapstructure:"sentiment"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Store     StoreConfig     `mapstructure:"store"`
	Session   SessionConfig   `mapstructure:"session"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Worker    WorkerConfig    `mapstructure:"worker"`
}

type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	AllowOrigin  string        `mapstructure:"allow_origin"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LLMConfig selects the report provider and its retry budget.
type LLMConfig struct {
	Provider         string        `mapstructure:"provider"`
	FallbackProvider string        `mapstructure:"fallback_provider"`
	Models           []string      `mapstructure:"models"`
	FallbackModels   []string      `mapstructure:"fallback_models"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	BaseDelay        time.Duration `mapstructure:"base_delay"`
	MaxDelay         time.Duration `mapstructure:"max_delay"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	Temperature      float64       `mapstructure:"temperature"`
	TopK             int           `mapstructure:"top_k"`
	TopP             float64       `mapstructure:"top_p"`
	MaxOutputTokens  int           `mapstructure:"max_output_tokens"`
	GoogleAPIKey     string        `mapstructure:"google_api_key"`
	HFToken          string        `mapstructure:"hf_token"`
	AnthropicAPIKey  string        `mapstructure:"anthropic_api_key"`
	GeminiBaseURL    string        `mapstructure:"gemini_base_url"`
	HFBaseURL        string        `mapstructure:"hf_base_url"`
	AnthropicBaseURL string        `mapstructure:"anthropic_base_url"`
}

type SentimentConfig struct {
	Model   string        `mapstructure:"model"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	// Concurrency bounds parallel scoring calls per platform.
	Concurrency int `mapstructure:"concurrency"`
}

type SourcesConfig struct {
	RedditClientID     string `mapstructure:"reddit_client_id"`
	RedditClientSecret string `mapstructure:"reddit_client_secret"`
	RedditUsername     string `mapstructure:"reddit_username"`
	RedditPassword     string `mapstructure:"reddit_password"`
	RedditUserAgent    string `mapstructure:"reddit_user_agent"`
	YouTubeAPIKey      string `mapstructure:"youtube_api_key"`
	TwitterBearerToken string `mapstructure:"twitter_bearer_token"`
	NewsAPIKey         string `mapstructure:"news_api_key"`
}

type StoreConfig struct {
	Driver     string        `mapstructure:"driver"`
	Path       string        `mapstructure:"path"`
	Retries    int           `mapstructure:"retries"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
}

type SessionConfig struct {
	Backend        string        `mapstructure:"backend"`
	InitialCredits int           `mapstructure:"initial_credits"`
	TTL            time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type QueueConfig struct {
	Backend           string        `mapstructure:"backend"`
	Name              string        `mapstructure:"name"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	SQSQueueURL       string        `mapstructure:"sqs_queue_url"`
	SQSRegion         string        `mapstructure:"sqs_region"`
}

type WorkerConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
	JobTimeout   time.Duration `mapstructure:"job_timeout"`
}

var defaults = map[string]any{
	"server.addr":          ":8000",
	"server.allow_origin":  "http://localhost:3000",
	"server.read_timeout":  "30s",
	"server.write_timeout": "180s",

	"log.level":  "info",
	"log.format": "json",

	"llm.provider":           "gemini",
	"llm.fallback_provider":  "",
	"llm.models":             []string{},
	"llm.fallback_models":    []string{},
	"llm.max_attempts":       3,
	"llm.base_delay":         "1s",
	"llm.max_delay":          "8s",
	"llm.call_timeout":       "45s",
	"llm.request_timeout":    "0s",
	"llm.temperature":        0.7,
	"llm.top_k":              40,
	"llm.top_p":              0.95,
	"llm.max_output_tokens":  2048,
	"llm.google_api_key":     "",
	"llm.hf_token":           "",
	"llm.anthropic_api_key":  "",
	"llm.gemini_base_url":    "",
	"llm.hf_base_url":        "",
	"llm.anthropic_base_url": "",

	"sentiment.model":       "",
	"sentiment.base_url":    "",
	"sentiment.timeout":     "30s",
	"sentiment.concurrency": 4,

	"sources.reddit_client_id":     "",
	"sources.reddit_client_secret": "",
	"sources.reddit_username":      "",
	"sources.reddit_password":      "",
	"sources.reddit_user_agent":    "sentiant/1.0",
	"sources.youtube_api_key":      "",
	"sources.twitter_bearer_token": "",
	"sources.news_api_key":         "",

	"store.driver":      "memory",
	"store.path":        "data/sentiant.db",
	"store.retries":     3,
	"store.retry_delay": "1s",

	"session.backend":         "memory",
	"session.initial_credits": 5,
	"session.ttl":             "24h",

	"redis.addr":     "localhost:6379",
	"redis.username": "",
	"redis.password": "",
	"redis.db":       0,
	"redis.prefix":   "sentiant",

	"queue.backend":            "memory",
	"queue.name":               "reports",
	"queue.visibility_timeout": "5m",
	"queue.sqs_queue_url":      "",
	"queue.sqs_region":         "",

	"worker.concurrency":   2,
	"worker.poll_interval": "100ms",
	"worker.max_attempts":  3,
	"worker.job_timeout":   "5m",
}

// legacyEnv maps keys to the unprefixed variable names deployments already use.
var legacyEnv = map[string]string{
	"llm.google_api_key":           "GOOGLE_API_KEY",
	"llm.hf_token":                 "HF_API_TOKEN",
	"llm.anthropic_api_key":        "ANTHROPIC_API_KEY",
	"sources.reddit_client_id":     "REDDIT_CLIENT_ID",
	"sources.reddit_client_secret": "REDDIT_CLIENT_SECRET",
	"sources.reddit_username":      "REDDIT_USERNAME",
	"sources.reddit_password":      "REDDIT_PASSWORD",
	"sources.reddit_user_agent":    "REDDIT_USER_AGENT",
	"sources.youtube_api_key":      "YOUTUBE_API_KEY",
	"sources.twitter_bearer_token": "TWITTER_BEARER_TOKEN",
	"sources.news_api_key":         "NEWS_API_KEY",
	"redis.addr":                   "REDIS_ADDR",
	"queue.sqs_queue_url":          "SQS_QUEUE_URL",
}

// NewViper returns a viper instance with defaults, env bindings and the
// config file location set. An empty configFile searches "." and the user
// config dir for config.{yaml,json,toml}.
func NewViper(configFile string) *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.NewReplacer(".", "_").Replace(key))
		_ = v.BindEnv(key, prefixed, legacy)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		return v
	}
	v.SetConfigName("config")
	v.AddConfigPath(".")
	if dir, err := os.UserConfigDir(); err == nil {
		v.AddConfigPath(filepath.Join(dir, "sentiant"))
	}
	return v
}

// Load reads the config file (required only when explicitly set),
// decodes and validates.
func Load(v *viper.Viper, strictFile bool) (Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || strictFile {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum fields and that the chosen backends have credentials.
func (c Config) Validate() error {
	var errs []error
	check := func(field, val string, allowed ...string) {
		for _, a := range allowed {
			if val == a {
				return
			}
		}
		errs = append(errs, fmt.Errorf("%s: %q is not one of %s", field, val, strings.Join(allowed, ", ")))
	}
	check("llm.provider", c.LLM.Provider, "gemini", "huggingface", "anthropic")
	check("llm.fallback_provider", c.LLM.FallbackProvider, "", "gemini", "huggingface", "anthropic")
	check("store.driver", c.Store.Driver, "memory", "sqlite")
	check("session.backend", c.Session.Backend, "memory", "redis")
	check("queue.backend", c.Queue.Backend, "memory", "redis", "sqs")
	check("log.format", c.Log.Format, "json", "console")

	if c.LLM.FallbackProvider != "" && c.LLM.FallbackProvider == c.LLM.Provider {
		errs = append(errs, errors.New("llm.fallback_provider must differ from llm.provider"))
	}
	for _, p := range []string{c.LLM.Provider, c.LLM.FallbackProvider} {
		if p != "" && c.LLM.APIKey(p) == "" {
			errs = append(errs, fmt.Errorf("llm: no API key configured for provider %q", p))
		}
	}
	if c.LLM.MaxAttempts <= 0 {
		errs = append(errs, errors.New("llm.max_attempts must be positive"))
	}
	if c.Queue.Backend == "sqs" && c.Queue.SQSQueueURL == "" {
		errs = append(errs, errors.New("queue.sqs_queue_url is required for the sqs backend"))
	}
	if c.Store.Driver == "sqlite" && strings.TrimSpace(c.Store.Path) == "" {
		errs = append(errs, errors.New("store.path is required for the sqlite driver"))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("worker.concurrency must be positive"))
	}
	return errors.Join(errs...)
}

// APIKey returns the credential for an LLM provider name.
func (l LLMConfig) APIKey(provider string) string {
	switch provider {
	case "gemini":
		return l.GoogleAPIKey
	case "huggingface":
		return l.HFToken
	case "anthropic":
		return l.AnthropicAPIKey
	}
	return ""
}
