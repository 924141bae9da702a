// Package agent wires the Eino ReAct agent to the catalog retrieval tools to
// form the AlUla Collections assistant. Text questions go through the full
// ReAct loop; uploaded images skip the loop and run the image explanation
// tool directly.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/flow/agent/react"
	"github.com/cloudwego/eino/schema"

	"github.com/alula-collections/alula-go/internal/logging"
	"github.com/alula-collections/alula-go/internal/response"
	"github.com/alula-collections/alula-go/internal/tools"
)

// systemPrompt is injected into every text conversation.
const systemPrompt = `You are an AI assistant for the Royal Commission for AlUla.
You help users explore the AlUla Collections - 100 Objects.

You can:
- Retrieve object metadata
- Search by inventory number
- Search visually similar artifacts
- Combine metadata and image results

Always use tools when needed.

After using tools, always return a structured response as a single JSON object
with no text outside it:

{
  "answer": "final explanation",
  "image_paths": ["image file paths from metadata"],
  "inv_no": "AL-042",
  "confidence": 0.87
}

"inv_no" is the matched inventory number, or null when none matched.
"confidence" is a number between 0 and 1 when a similarity is known, otherwise null.

Only report inventory numbers and image paths that appear in tool results.`

// defaultMaxStep bounds the ReAct loop. Each tool round trip costs two steps.
const defaultMaxStep = 12

// Config holds the dependencies required to construct an AlulaAgent.
type Config struct {
	// ChatModel is the LLM backend constructed by the provider factory.
	ChatModel model.ToolCallingChatModel

	// Tools is the shared retrieval tool set.
	Tools *tools.Set

	// EnableHybrid registers hybrid_search with the agent.
	EnableHybrid bool

	// MaxStep caps the number of ReAct steps. Defaults to 12 if zero.
	MaxStep int
}

// Answer is the outcome of one request.
type Answer struct {
	Response response.StructuredResponse `json:"response"`
	// Artifacts are the catalog records the tools returned while answering.
	Artifacts []any `json:"artifacts"`
}

// AlulaAgent wraps the Eino ReAct agent. It holds no conversation state, so
// one instance serves every request concurrently.
type AlulaAgent struct {
	reactAgent *react.Agent
	tools      *tools.Set
}

// New constructs an AlulaAgent from the provided Config.
func New(ctx context.Context, cfg *Config) (*AlulaAgent, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("agent: ChatModel must not be nil")
	}
	if cfg.Tools == nil {
		return nil, fmt.Errorf("agent: Tools must not be nil")
	}

	maxStep := cfg.MaxStep
	if maxStep <= 0 {
		maxStep = defaultMaxStep
	}

	catalogTools := cfg.Tools.AgentTools(cfg.EnableHybrid)
	baseTools := make([]tool.BaseTool, 0, len(catalogTools))
	for _, t := range catalogTools {
		baseTools = append(baseTools, t)
	}

	reactAgent, err := react.NewAgent(ctx, &react.AgentConfig{
		ToolCallingModel: cfg.ChatModel,
		ToolsConfig: compose.ToolsNodeConfig{
			Tools: baseTools,
		},
		MaxStep: maxStep,
	})
	if err != nil {
		return nil, fmt.Errorf("agent: failed to create ReAct agent: %w", err)
	}

	return &AlulaAgent{reactAgent: reactAgent, tools: cfg.Tools}, nil
}

// Query runs one stateless text question through the ReAct loop. The text of
// the answer field is written to w as it arrives; the returned Answer carries
// the structured response extracted from the full output and every artifact
// the tools produced.
func (a *AlulaAgent) Query(ctx context.Context, userMessage string, w io.Writer) (*Answer, error) {
	collector := tools.NewArtifactCollector()
	ctx = tools.WithCollector(ctx, collector)

	sr, err := a.reactAgent.Stream(ctx, buildMessages(userMessage))
	if err != nil {
		return nil, fmt.Errorf("agent: stream failed: %w", err)
	}
	defer sr.Close()

	if w != nil {
		w = response.NewAnswerWriter(w)
	}

	var msgBuf strings.Builder
	for {
		msg, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("agent: stream receive error: %w", err)
		}
		if msg == nil || msg.Content == "" {
			continue
		}
		msgBuf.WriteString(msg.Content)
		if w != nil {
			if _, err := io.WriteString(w, msg.Content); err != nil {
				return nil, fmt.Errorf("agent: write error: %w", err)
			}
		}
	}

	artifacts := collector.Artifacts()
	resp := response.Merge(response.Extract(msgBuf.String()), artifacts)

	logging.FromContext(ctx).Debug("agent: query complete",
		slog.Int("tool_calls", len(collector.Calls())),
		slog.Int("artifacts", len(artifacts)),
		slog.Bool("has_inv_no", resp.InvNo != nil),
	)

	return &Answer{Response: resp, Artifacts: artifacts}, nil
}

// ExplainImage identifies the catalog object closest to the image at path and
// explains it. The explanation tool runs directly, without the ReAct loop, so
// exactly one model call is made.
func (a *AlulaAgent) ExplainImage(ctx context.Context, path string) (*Answer, error) {
	collector := tools.NewArtifactCollector()
	ctx = tools.WithCollector(ctx, collector)

	args, err := json.Marshal(map[string]string{"image_path": path})
	if err != nil {
		return nil, fmt.Errorf("agent: encode image arguments: %w", err)
	}
	text, err := a.tools.Explain.InvokableRun(ctx, string(args))
	if err != nil {
		return nil, fmt.Errorf("agent: explain image: %w", err)
	}

	artifacts := collector.Artifacts()
	resp := response.Merge(response.StructuredResponse{Answer: text, ImagePaths: []string{}}, artifacts)
	return &Answer{Response: resp, Artifacts: artifacts}, nil
}

// buildMessages constructs the message slice for one stateless turn.
func buildMessages(userMessage string) []*schema.Message {
	return []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userMessage),
	}
}
