package embedder

import (
	"context"
	"fmt"

	openaiembedding "github.com/cloudwego/eino-ext/components/embedding/openai"
	"github.com/cloudwego/eino/components/embedding"
)

// OpenAIConfig holds the settings for constructing an OpenAIEmbedder.
type OpenAIConfig struct {
	// BaseURL is the API base URL. Empty means the public OpenAI endpoint.
	// For Azure: "https://<resource>.openai.azure.com".
	BaseURL string
	// APIKey is the authentication key.
	APIKey string
	// Model is the embedding model name (or the Azure deployment).
	Model string
	// Dimensions is the desired vector length (0 = model default).
	Dimensions int
	// Azure enables Azure OpenAI mode.
	Azure bool
	// APIVersion is the Azure OpenAI API version. Ignored when Azure is false.
	APIVersion string
}

// OpenAIEmbedder implements TextEmbedder on top of the eino OpenAI embedding
// component. It is safe for concurrent use.
type OpenAIEmbedder struct {
	inner embedding.Embedder
}

// NewOpenAIEmbedder constructs an OpenAIEmbedder from the given config.
func NewOpenAIEmbedder(ctx context.Context, cfg *OpenAIConfig) (*OpenAIEmbedder, error) {
	ec := &openaiembedding.EmbeddingConfig{
		APIKey:     cfg.APIKey,
		BaseURL:    cfg.BaseURL,
		Model:      cfg.Model,
		ByAzure:    cfg.Azure,
		APIVersion: cfg.APIVersion,
	}
	if cfg.Dimensions > 0 {
		dims := cfg.Dimensions
		ec.Dimensions = &dims
	}
	inner, err := openaiembedding.NewEmbedder(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return &OpenAIEmbedder{inner: inner}, nil
}

// Embed converts a batch of texts into normalised embeddings.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	raw, err := e.inner.EmbedStrings(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	if len(raw) != len(texts) {
		return nil, fmt.Errorf("openai embedder: expected %d embeddings, got %d", len(texts), len(raw))
	}
	vecs := make([][]float32, len(raw))
	for i, r := range raw {
		v := make([]float32, len(r))
		for j, x := range r {
			v[j] = float32(x)
		}
		vecs[i] = v
	}
	vecs, err = normalizeAll(vecs)
	if err != nil {
		return nil, fmt.Errorf("openai embedder: %w", err)
	}
	return vecs, nil
}
