package advice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attunelabs/attune-core/internal/config"
)

// Engine turns a built context into advice text: cache lookup, prompt
// formatting, the generator call, and fallback on failure.
type Engine struct {
	cfg       config.AdviceConfig
	generator Generator
	cache     *Cache
	logger    *slog.Logger
}

// NewEngine selects the generator backend from config and wires the cache.
func NewEngine(cfg config.AdviceConfig, logger *slog.Logger) (*Engine, error) {
	var generator Generator
	var err error
	switch cfg.Mode {
	case "mock":
		generator = NewMockGenerator()
	case "openai":
		generator = NewOpenAIGenerator(cfg.Endpoint, cfg.APIKey, cfg.Model)
	case "exec":
		generator, err = NewExecGenerator(cfg.Command)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown advice mode %q", cfg.Mode)
	}

	var cache *Cache
	if cfg.CacheEnabled {
		cache = NewCache(cfg.CacheMaxSize, time.Duration(cfg.CacheTTLSeconds)*time.Second)
	}

	return &Engine{
		cfg:       cfg,
		generator: generator,
		cache:     cache,
		logger:    logger.With(slog.String("component", "advice-engine")),
	}, nil
}

// Advise produces advice for a built context. Cached reports whether the
// content was served without a generator call. A generator failure still
// returns usable fallback advice along with the error.
func (e *Engine) Advise(ctx context.Context, sessionID, traceID string, c Context) (content string, cached bool, err error) {
	if hit, ok := e.cache.Get(c); ok {
		return hit, true, nil
	}

	result, err := e.generator.Generate(ctx, Request{
		SessionID:   sessionID,
		Prompt:      FormatForPrompt(c),
		System:      SystemPrompt,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		TraceID:     traceID,
	})
	if err != nil {
		return FallbackAdvice(c.Summary.DominantState), false, err
	}

	e.cache.Put(c, result.Content)
	e.logger.Debug("advice generated",
		slog.String("session_id", sessionID),
		slog.Duration("latency", result.Latency),
		slog.Int("completion_tokens", result.CompletionTokens))
	return result.Content, false, nil
}

// CacheLen exposes the cache size for the stats endpoint.
func (e *Engine) CacheLen() int {
	return e.cache.Len()
}
