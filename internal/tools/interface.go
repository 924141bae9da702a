// Package tools implements the retrieval tools the assistant's agent calls.
// Every tool produces a two-channel Result: Text is what the language model
// reads, Artifacts are the raw catalog records behind it. Each tool also
// satisfies Eino's tool.InvokableTool so it can be registered with the agent
// directly; the Eino adapter returns Text and hands Artifacts to the
// ArtifactCollector carried in the request context.
package tools

import (
	"context"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/tool"
)

// Result is the output of one tool invocation.
type Result struct {
	// Text is the serialised, LLM-facing output.
	Text string
	// Artifacts are the matched records (catalog.Entry or catalog.ImageRecord).
	Artifacts []any
}

// CatalogTool is the interface every retrieval tool satisfies. It extends the
// Eino tool contract with Name and Description accessors so callers can log
// and route tool calls without type assertions.
type CatalogTool interface {
	tool.InvokableTool

	// Name returns the unique tool name registered with the agent.
	Name() string

	// Description returns the LLM-facing description of the tool.
	Description() string
}

// Outcome labels for Observer.
const (
	OutcomeOK    = "ok"
	OutcomeEmpty = "empty"
	OutcomeError = "error"
)

// Observer is notified after every Eino-invoked tool call. Used for metrics.
type Observer func(tool, outcome string, elapsed time.Duration)

// ToolCall records one invocation seen by an ArtifactCollector.
type ToolCall struct {
	Tool      string
	Artifacts int
}

// ArtifactCollector accumulates artifacts produced during one request.
// It is safe for concurrent use.
type ArtifactCollector struct {
	mu        sync.Mutex
	artifacts []any
	calls     []ToolCall
}

// NewArtifactCollector returns an empty collector.
func NewArtifactCollector() *ArtifactCollector {
	return &ArtifactCollector{}
}

// Add records the artifacts produced by one call of the named tool.
func (c *ArtifactCollector) Add(toolName string, artifacts []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = append(c.artifacts, artifacts...)
	c.calls = append(c.calls, ToolCall{Tool: toolName, Artifacts: len(artifacts)})
}

// Artifacts returns a copy of everything collected so far, in call order.
func (c *ArtifactCollector) Artifacts() []any {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]any, len(c.artifacts))
	copy(out, c.artifacts)
	return out
}

// Calls returns a copy of the recorded tool calls, in call order.
func (c *ArtifactCollector) Calls() []ToolCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ToolCall, len(c.calls))
	copy(out, c.calls)
	return out
}

type collectorKey struct{}

// WithCollector returns a context carrying c.
func WithCollector(ctx context.Context, c *ArtifactCollector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

// CollectorFrom returns the collector carried by ctx, or nil.
func CollectorFrom(ctx context.Context) *ArtifactCollector {
	c, _ := ctx.Value(collectorKey{}).(*ArtifactCollector)
	return c
}
