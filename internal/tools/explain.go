package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/alula-collections/alula-go/internal/catalog"
	"github.com/alula-collections/alula-go/internal/embedder"
)

// Explainer turns a single prompt into prose. It makes exactly one model call
// and never calls tools.
type Explainer interface {
	Explain(ctx context.Context, prompt string) (string, error)
}

// ModelExplainer implements Explainer with one Generate call on a chat model.
type ModelExplainer struct {
	model model.BaseChatModel
}

// NewModelExplainer constructs a ModelExplainer.
func NewModelExplainer(m model.BaseChatModel) *ModelExplainer {
	return &ModelExplainer{model: m}
}

// Explain sends prompt as a single user message and returns the reply text.
func (e *ModelExplainer) Explain(ctx context.Context, prompt string) (string, error) {
	msg, err := e.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return "", fmt.Errorf("explain: model call failed: %w", err)
	}
	return msg.Content, nil
}

// ExplainPrompt builds the explanation prompt for a matched artifact.
func ExplainPrompt(invNo, content string) string {
	return fmt.Sprintf(`You are an expert cultural heritage assistant for AlUla.

An uploaded image was matched to the following artifact:

Inventory Number: %s

Artifact Details:
%s

Explain:
1. What this artifact is
2. Its historical significance
3. Material and period
4. Why it may be culturally important to AlUla
5. If relevant, explain visible features in the image

Be concise but informative.
`, invNo, content)
}

// ExplainImageTool matches an uploaded image to its closest catalog image,
// looks up that object's metadata and asks the model to explain it.
type ExplainImageTool struct {
	joint     embedder.JointEmbedder
	images    catalog.ImageIndex
	index     catalog.MetadataIndex
	explainer Explainer
	roots     []string
	obs       Observer
}

type imagePathInput struct {
	ImagePath string `json:"image_path"`
}

// ExplainImageConfig holds the dependencies of ExplainImageTool.
type ExplainImageConfig struct {
	Joint     embedder.JointEmbedder
	Images    catalog.ImageIndex
	Index     catalog.MetadataIndex
	Explainer Explainer
	// Roots, when non-empty, confines image_path to these directories.
	Roots    []string
	Observer Observer
}

// NewExplainImageTool constructs an ExplainImageTool.
func NewExplainImageTool(cfg ExplainImageConfig) *ExplainImageTool {
	roots := make([]string, 0, len(cfg.Roots))
	for _, r := range cfg.Roots {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			roots = append(roots, filepath.Clean(abs))
		}
	}
	return &ExplainImageTool{
		joint:     cfg.Joint,
		images:    cfg.Images,
		index:     cfg.Index,
		explainer: cfg.Explainer,
		roots:     roots,
		obs:       cfg.Observer,
	}
}

// Name returns the tool name registered with the agent.
func (t *ExplainImageTool) Name() string { return "search_by_image_and_explain" }

// Description returns the LLM-facing description of this tool.
func (t *ExplainImageTool) Description() string {
	return "Search similar artifact by image and explain it using retrieved metadata."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *ExplainImageTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"image_path": {
				Type:     schema.String,
				Desc:     "Local path of the uploaded image to identify.",
				Required: true,
			},
		}),
	}, nil
}

// Run checks the path, embeds the image, finds the closest catalog image,
// resolves its metadata and asks the Explainer once. Each step that finds
// nothing stops with a fixed message and no artifacts.
func (t *ExplainImageTool) Run(ctx context.Context, imagePath string) (Result, error) {
	if !t.pathAllowed(imagePath) {
		return Result{Text: MsgImagePathNotFound}, nil
	}
	if _, err := os.Stat(imagePath); err != nil {
		return Result{Text: MsgImagePathNotFound}, nil
	}

	vec, err := t.joint.EmbedImage(ctx, imagePath)
	if errors.Is(err, embedder.ErrInvalidInput) {
		return Result{Text: MsgImagePathNotFound}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("search_by_image_and_explain: %w", err)
	}

	recs, err := t.images.SearchByEmbedding(ctx, vec, 1)
	if err != nil {
		return Result{}, fmt.Errorf("search_by_image_and_explain: %w", err)
	}
	if len(recs) == 0 {
		return Result{Text: MsgNoSimilarArtifact}, nil
	}
	invNo := recs[0].InvNo

	entries, err := t.index.SearchByInventory(ctx, invNo)
	if err != nil {
		return Result{}, fmt.Errorf("search_by_image_and_explain: %w", err)
	}
	if len(entries) == 0 {
		return Result{Text: MsgMetadataNotFound}, nil
	}
	entry := entries[0]
	entry.Score = recs[0].Score

	explanation, err := t.explainer.Explain(ctx, ExplainPrompt(invNo, entry.Content))
	if err != nil {
		return Result{}, fmt.Errorf("search_by_image_and_explain: %w", err)
	}
	return Result{Text: explanation, Artifacts: []any{entry}}, nil
}

// pathAllowed reports whether p lies under one of the configured roots.
func (t *ExplainImageTool) pathAllowed(p string) bool {
	if len(t.roots) == 0 {
		return true
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	for _, root := range t.roots {
		if strings.HasPrefix(abs+string(filepath.Separator), root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// InvokableRun is the Eino adapter for Run.
func (t *ExplainImageTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in imagePathInput
	if err := decodeArgs(t.Name(), argumentsInJSON, &in); err != nil {
		return "", err
	}
	return invoke(ctx, t.Name(), t.obs, func(ctx context.Context) (Result, error) {
		return t.Run(ctx, in.ImagePath)
	})
}
