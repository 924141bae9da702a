package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/alula-collections/alula-go/internal/catalog"
)

// textContextK is how many entries retrieve_text_context returns.
const textContextK = 3

// RetrieveTextTool searches catalog entries by meaning.
type RetrieveTextTool struct {
	index catalog.MetadataIndex
	obs   Observer
}

type queryInput struct {
	Query string `json:"query"`
}

// NewRetrieveTextTool constructs a RetrieveTextTool.
func NewRetrieveTextTool(index catalog.MetadataIndex, obs Observer) *RetrieveTextTool {
	return &RetrieveTextTool{index: index, obs: obs}
}

// Name returns the tool name registered with the agent.
func (t *RetrieveTextTool) Name() string { return "retrieve_text_context" }

// Description returns the LLM-facing description of this tool.
func (t *RetrieveTextTool) Description() string {
	return "Retrieve object metadata and descriptions from AlUla collections."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *RetrieveTextTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {
				Type:     schema.String,
				Desc:     "What to look for, in English or Arabic (e.g. 'bronze incense burner').",
				Required: true,
			},
		}),
	}, nil
}

// Run returns up to three entries most similar to query.
func (t *RetrieveTextTool) Run(ctx context.Context, query string) (Result, error) {
	entries, err := t.index.Search(ctx, query, textContextK)
	if err != nil {
		return Result{}, fmt.Errorf("retrieve_text_context: %w", err)
	}
	if len(entries) == 0 {
		return Result{Text: MsgNoMatchingObjects}, nil
	}

	blocks := make([]string, 0, len(entries))
	artifacts := make([]any, 0, len(entries))
	for _, e := range entries {
		blocks = append(blocks, formatEntry(e))
		artifacts = append(artifacts, e)
	}
	return Result{Text: strings.Join(blocks, "\n\n"), Artifacts: artifacts}, nil
}

// InvokableRun is the Eino adapter for Run.
func (t *RetrieveTextTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in queryInput
	if err := decodeArgs(t.Name(), argumentsInJSON, &in); err != nil {
		return "", err
	}
	return invoke(ctx, t.Name(), t.obs, func(ctx context.Context) (Result, error) {
		return t.Run(ctx, in.Query)
	})
}

// InventoryTool looks up one entry by exact inventory number.
type InventoryTool struct {
	index catalog.MetadataIndex
	obs   Observer
}

type inventoryInput struct {
	InvNo string `json:"inv_no"`
}

// NewInventoryTool constructs an InventoryTool.
func NewInventoryTool(index catalog.MetadataIndex, obs Observer) *InventoryTool {
	return &InventoryTool{index: index, obs: obs}
}

// Name returns the tool name registered with the agent.
func (t *InventoryTool) Name() string { return "retrieve_by_inventory" }

// Description returns the LLM-facing description of this tool.
func (t *InventoryTool) Description() string {
	return "Retrieve object details using exact inventory number."
}

// Info returns the Eino tool metadata including the JSON input schema.
func (t *InventoryTool) Info(ctx context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"inv_no": {
				Type:     schema.String,
				Desc:     "The exact inventory number, e.g. 'AL-042'.",
				Required: true,
			},
		}),
	}, nil
}

// Run returns the entry whose inventory number equals invNo. Surrounding
// whitespace from the model is ignored; everything else must match exactly.
func (t *InventoryTool) Run(ctx context.Context, invNo string) (Result, error) {
	entries, err := t.index.SearchByInventory(ctx, strings.TrimSpace(invNo))
	if err != nil {
		return Result{}, fmt.Errorf("retrieve_by_inventory: %w", err)
	}
	if len(entries) == 0 {
		return Result{Text: MsgNoInventoryMatch}, nil
	}
	e := entries[0]
	return Result{Text: formatInventoryEntry(e), Artifacts: []any{e}}, nil
}

// InvokableRun is the Eino adapter for Run.
func (t *InventoryTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var in inventoryInput
	if err := decodeArgs(t.Name(), argumentsInJSON, &in); err != nil {
		return "", err
	}
	return invoke(ctx, t.Name(), t.obs, func(ctx context.Context) (Result, error) {
		return t.Run(ctx, in.InvNo)
	})
}
