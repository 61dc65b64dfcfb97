package advice

import (
	"context"
	"time"
)

// Request describes one advice-generation call.
type Request struct {
	SessionID   string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	TraceID     string
}

// Result is the generator's completed answer.
type Result struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable text-generation backend.
type Generator interface {
	Generate(ctx context.Context, req Request) (Result, error)
}
