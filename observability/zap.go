package observability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger for the given level (debug, info, warn, error)
// and format (json or console).
func NewLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	development := false
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		development = true
		zapLevel = zapcore.DebugLevel
	case "info", "":
		zapLevel = zapcore.InfoLevel
	case "warn", "warning":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		return nil, fmt.Errorf("unknown log level %q (expected debug, info, warn, or error)", level)
	}

	var cfg zap.Config
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json", "":
		cfg = zap.NewProductionConfig()
	case "console":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", format)
	}
	cfg.Development = development
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewZapHooks returns Hooks that write every callback to logger.
func NewZapHooks(logger *zap.Logger) *Hooks {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hooks{
		Logf: func(_ context.Context, level string, msg string, fields map[string]any) {
			logAt(logger, level, msg, toZapFields(fields)...)
		},
		OnLLMRequest: func(_ context.Context, provider string, model string, meta map[string]any) {
			fields := append(toZapFields(meta), zap.String("provider", provider), zap.String("model", model))
			logger.Debug("llm request", fields...)
		},
		OnLLMResponse: func(_ context.Context, provider string, model string, latency time.Duration, meta map[string]any) {
			fields := append(toZapFields(meta), zap.String("provider", provider), zap.String("model", model), zap.Duration("latency", latency))
			if failed, _ := meta["error"].(bool); failed {
				logger.Warn("llm response", fields...)
				return
			}
			logger.Info("llm response", fields...)
		},
		OnLLMRetry: func(_ context.Context, provider string, next string, attempt int, delay time.Duration, err error) {
			logger.Info("llm retry",
				zap.String("provider", provider),
				zap.String("next_model", next),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}
}

func logAt(logger *zap.Logger, level string, msg string, fields ...zap.Field) {
	switch strings.ToLower(level) {
	case "debug":
		logger.Debug(msg, fields...)
	case "warn", "warning":
		logger.Warn(msg, fields...)
	case "error":
		logger.Error(msg, fields...)
	default:
		logger.Info(msg, fields...)
	}
}

func toZapFields(m map[string]any) []zap.Field {
	if len(m) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(m))
	for k, v := range m {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}
