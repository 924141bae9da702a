package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/alula-collections/alula-go/internal/catalog"
	"github.com/alula-collections/alula-go/internal/embedder"
)

// imageSearchK is how many images search_image_by_text returns.
const imageSearchK = 3

// ImageByTextTool finds catalog images matching a free-text description in
// the joint text/image space.
type ImageByTextTool struct {
	joint  embedder.JointEmbedder
	images catalog.ImageIndex
	obs    Observer
}

// NewImageByTextTool constructs an ImageByTextTool.
func NewImageByTextTool(joint embedder.JointEmbedder, images catalog.ImageIndex, obs Observer) *ImageByTextTool {
	return &ImageByTextTool{joint: joint, images: images, obs: obs}
}

// Name returns the tool name registered with the agent.
func (t *ImageByTextTool) Name() string { return "search_image_by_text" }

// Description returns the LLM-facing description of this tool.
func (t *ImageByTextTool) Description() string {
	return "Find similar artifact images based on textual description."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *ImageByTextTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "A visual description, e.g. 'carved sandstone head with curled hair'.",
				Required: true,
			},
		}),
	}, nil
}

// Run embeds query in the joint space and returns the three nearest images.
func (t *ImageByTextTool) Run(ctx context.Context, query string) (Result, error) {
	vec, err := t.joint.EmbedText(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("search_image_by_text: %w", err)
	}
	recs, err := t.images.SearchByEmbedding(ctx, vec, imageSearchK)
	if err != nil {
		return Result{}, fmt.Errorf("search_image_by_text: %w", err)
	}
	if len(recs) == 0 {
		return Result{Text: MsgNoSimilarImages}, nil
	}

	var b strings.Builder
	artifacts := make([]any, 0, len(recs))
	for _, r := range recs {
		b.WriteString(formatImageRecord(r))
		artifacts = append(artifacts, r)
	}
	return Result{Text: b.String(), Artifacts: artifacts}, nil
}

// InvokableRun is the Eino adapter for Run.
func (t *ImageByTextTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in queryInput
	if err := decodeArgs(t.Name(), argumentsInJSON, &in); err != nil {
		return "", err
	}
	return invoke(ctx, t.Name(), t.obs, func(ctx context.Context) (Result, error) {
		return t.Run(ctx, in.Query)
	})
}

// hybridTextK is how many entries hybrid_search takes from the metadata index.
const hybridTextK = 2

// HybridTool runs a metadata search and an image-by-text search for the same
// query and returns both.
type HybridTool struct {
	index  catalog.MetadataIndex
	images *ImageByTextTool
	obs    Observer
}

// NewHybridTool constructs a HybridTool.
func NewHybridTool(index catalog.MetadataIndex, images *ImageByTextTool, obs Observer) *HybridTool {
	return &HybridTool{index: index, images: images, obs: obs}
}

// Name returns the tool name registered with the agent.
func (t *HybridTool) Name() string { return "hybrid_search" }

// Description returns the LLM-facing description of this tool.
func (t *HybridTool) Description() string {
	return "Perform both metadata and image-based search."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *HybridTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to look for in both descriptions and images.",
				Required: true,
			},
		}),
	}, nil
}

// Run returns the metadata results as artifacts; image results appear in the
// text only.
func (t *HybridTool) Run(ctx context.Context, query string) (Result, error) {
	entries, err := t.index.Search(ctx, query, hybridTextK)
	if err != nil {
		return Result{}, fmt.Errorf("hybrid_search: %w", err)
	}
	img, err := t.images.Run(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("hybrid_search: %w", err)
	}

	var b strings.Builder
	b.WriteString("TEXT RESULTS:\n")
	artifacts := make([]any, 0, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%s%s\n%s\n\n", inventoryLabel, e.InvNo, e.Content)
		artifacts = append(artifacts, e)
	}
	b.WriteString("\nIMAGE RESULTS:\n")
	b.WriteString(img.Text)

	return Result{Text: b.String(), Artifacts: artifacts}, nil
}

// InvokableRun is the Eino adapter for Run.
func (t *HybridTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in queryInput
	if err := decodeArgs(t.Name(), argumentsInJSON, &in); err != nil {
		return "", err
	}
	return invoke(ctx, t.Name(), t.obs, func(ctx context.Context) (Result, error) {
		return t.Run(ctx, in.Query)
	})
}
