package advice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/attunelabs/attune-core/internal/config"
	"github.com/attunelabs/attune-core/internal/timeline"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAdviceConfig() config.AdviceConfig {
	return config.AdviceConfig{
		Enabled:         true,
		Mode:            "mock",
		MaxTokens:       100,
		Temperature:     0.7,
		CacheEnabled:    true,
		CacheTTLSeconds: 60,
		CacheMaxSize:    16,
	}
}

func windowContext(state string, words int) Context {
	return Context{
		Summary:  timeline.Summary{DominantState: state, TotalWords: words},
		Patterns: Patterns{EngagementTrend: "stable"},
		Intervals: []IntervalDigest{
			{Timestamp: 0.5, State: state, Text: "hello"},
		},
		TimeWindow: TimeWindowMeta{Start: 0, End: 5, Duration: 5, IntervalCount: 5},
	}
}

func TestAdviseCachesEquivalentContexts(t *testing.T) {
	engine, err := NewEngine(testAdviceConfig(), testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	first, cached, err := engine.Advise(ctx, "s1", "t1", windowContext("curious", 12))
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if cached {
		t.Fatal("first call must not be cached")
	}

	second, cached, err := engine.Advise(ctx, "s1", "t2", windowContext("curious", 14))
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if !cached {
		t.Fatal("near-identical context should hit the cache")
	}
	if second != first {
		t.Fatalf("cached advice should match: %q vs %q", second, first)
	}

	_, cached, err = engine.Advise(ctx, "s1", "t3", windowContext("closed-off", 12))
	if err != nil {
		t.Fatalf("advise: %v", err)
	}
	if cached {
		t.Fatal("different dominant state must miss the cache")
	}
}

func TestAdviseCacheDisabled(t *testing.T) {
	cfg := testAdviceConfig()
	cfg.CacheEnabled = false
	engine, err := NewEngine(cfg, testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}

	ctx := context.Background()
	if _, cached, _ := engine.Advise(ctx, "s1", "t1", windowContext("curious", 12)); cached {
		t.Fatal("cache disabled, nothing should be cached")
	}
	if _, cached, _ := engine.Advise(ctx, "s1", "t2", windowContext("curious", 12)); cached {
		t.Fatal("cache disabled, repeat call must still miss")
	}
	if engine.CacheLen() != 0 {
		t.Fatalf("expected empty cache, got %d", engine.CacheLen())
	}
}

type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, Request) (Result, error) {
	return Result{}, errors.New("backend down")
}

func TestAdviseFallsBackOnGeneratorError(t *testing.T) {
	engine, err := NewEngine(testAdviceConfig(), testLogger())
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	engine.generator = failingGenerator{}

	content, cached, err := engine.Advise(context.Background(), "s1", "t1", windowContext("closed-off", 3))
	if err == nil {
		t.Fatal("expected the generator error to surface")
	}
	if cached {
		t.Fatal("fallback is never cached")
	}
	if content == "" {
		t.Fatal("expected fallback advice content")
	}
	if content != FallbackAdvice("closed-off") {
		t.Fatalf("expected state-specific fallback, got %q", content)
	}
}

func TestUnknownModeRejected(t *testing.T) {
	cfg := testAdviceConfig()
	cfg.Mode = "telepathy"
	if _, err := NewEngine(cfg, testLogger()); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestCacheKeyBucketsWordCount(t *testing.T) {
	cache := NewCache(8, time.Minute)
	a := cache.Key(windowContext("curious", 12))
	b := cache.Key(windowContext("curious", 19))
	c := cache.Key(windowContext("curious", 20))
	if a != b {
		t.Fatalf("12 and 19 words should share a bucket: %q vs %q", a, b)
	}
	if a == c {
		t.Fatalf("20 words should roll into the next bucket: %q", c)
	}
}

func TestCacheTTLExpiry(t *testing.T) {
	cache := NewCache(8, 20*time.Millisecond)
	ctx := windowContext("amused", 5)
	cache.Put(ctx, "keep it light")
	if _, ok := cache.Get(ctx); !ok {
		t.Fatal("expected fresh entry to hit")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := cache.Get(ctx); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestMockGeneratorEchoesPromptHead(t *testing.T) {
	gen := NewMockGenerator()
	result, err := gen.Generate(context.Background(), Request{Prompt: "=== SPEAKER ANALYSIS ===\nrest"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !strings.Contains(result.Content, "=== SPEAKER ANALYSIS ===") {
		t.Fatalf("unexpected mock content %q", result.Content)
	}
}
