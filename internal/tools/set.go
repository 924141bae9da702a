package tools

import (
	"github.com/alula-collections/alula-go/internal/catalog"
	"github.com/alula-collections/alula-go/internal/embedder"
)

// Deps are the shared dependencies of the tool set.
type Deps struct {
	Index     catalog.MetadataIndex
	Images    catalog.ImageIndex
	Joint     embedder.JointEmbedder
	Explainer Explainer
	// ImageRoots confines search_by_image_and_explain to these directories.
	ImageRoots []string
	Observer   Observer
}

// Set is the full tool set, constructed once and shared by every request.
type Set struct {
	Text      *RetrieveTextTool
	Inventory *InventoryTool
	ImageText *ImageByTextTool
	Hybrid    *HybridTool
	Explain   *ExplainImageTool
}

// NewSet builds every tool from d.
func NewSet(d Deps) *Set {
	imageText := NewImageByTextTool(d.Joint, d.Images, d.Observer)
	return &Set{
		Text:      NewRetrieveTextTool(d.Index, d.Observer),
		Inventory: NewInventoryTool(d.Index, d.Observer),
		ImageText: imageText,
		Hybrid:    NewHybridTool(d.Index, imageText, d.Observer),
		Explain: NewExplainImageTool(ExplainImageConfig{
			Joint:     d.Joint,
			Images:    d.Images,
			Index:     d.Index,
			Explainer: d.Explainer,
			Roots:     d.ImageRoots,
			Observer:  d.Observer,
		}),
	}
}

// AgentTools returns the tools registered with the text agent, in order.
// hybrid_search is only included when enableHybrid is set.
func (s *Set) AgentTools(enableHybrid bool) []CatalogTool {
	out := []CatalogTool{s.Text, s.Inventory, s.ImageText}
	if enableHybrid {
		out = append(out, s.Hybrid)
	}
	return append(out, s.Explain)
}
