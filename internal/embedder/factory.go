package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"
)

// Default embedding models per backend.
const (
	// defaultOllamaModel is multilingual-e5-base as published on the Ollama
	// registry; the catalog carries both Arabic and English text.
	defaultOllamaModel = "jeffh/intfloat-multilingual-e5-base:f16"
	defaultOpenAIModel = "text-embedding-3-small"

	// defaultOllamaDimensions is the output dimension of multilingual-e5-base.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536

	// defaultClipModel is ViT-B-32 trained on LAION-2B.
	defaultClipModel = "ViT-B-32::laion2b_s34b_b79k"
	// defaultClipDimensions is the ViT-B-32 joint embedding size.
	defaultClipDimensions = 512

	// defaultQueryPrefix is what e5 models expect on the query side.
	defaultQueryPrefix = "query: "
)

// DefaultDimensions returns the default text embedding vector size for the
// given backend name. EMBEDDING_DIMENSIONS always takes precedence when set.
func DefaultDimensions(backend string) int {
	if v := getEnvInt("EMBEDDING_DIMENSIONS", 0); v > 0 {
		return v
	}
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// JointDimensions returns the joint embedding size (CLIP_DIMENSIONS, default 512).
func JointDimensions() int {
	return getEnvInt("CLIP_DIMENSIONS", defaultClipDimensions)
}

// TextBackend resolves the effective text embedding backend.
// EMBEDDING_PROVIDER wins; otherwise an openai or azure chat provider is
// inherited, and everything else falls back to ollama.
func TextBackend() string {
	if b := os.Getenv("EMBEDDING_PROVIDER"); b != "" {
		return b
	}
	switch p := os.Getenv("MODEL_PROVIDER"); p {
	case "openai", "azure":
		return p
	}
	return "ollama"
}

// NewTextFromEnv constructs the metadata-index TextEmbedder.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER (see TextBackend)
//  2. EMBEDDING_MODEL overrides the default model for the resolved backend
//  3. EMBEDDING_API_KEY overrides the inherited API key
//  4. EMBEDDING_ENDPOINT overrides the inherited endpoint
//  5. EMBEDDING_DIMENSIONS overrides the default dimensions
//  6. EMBEDDING_QUERY_PREFIX is prepended to every query (default "query: ",
//     set to "none" to disable)
func NewTextFromEnv(ctx context.Context) (TextEmbedder, error) {
	var (
		base TextEmbedder
		err  error
	)

	switch backend := TextBackend(); backend {
	case "ollama":
		host := getEnv("EMBEDDING_ENDPOINT")
		if host == "" {
			host = getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434")
		}
		base = NewOllamaEmbedder(&OllamaConfig{
			Host:  host,
			Model: getEnvOrDefault("EMBEDDING_MODEL", defaultOllamaModel),
		})

	case "openai":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: openai requires OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		base, err = NewOpenAIEmbedder(ctx, &OpenAIConfig{
			BaseURL:    getEnv("EMBEDDING_ENDPOINT"),
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
		})

	case "azure":
		apiKey := getEnv("EMBEDDING_API_KEY")
		if apiKey == "" {
			apiKey = getEnv("AZURE_OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		endpoint := getEnv("EMBEDDING_ENDPOINT")
		if endpoint == "" {
			endpoint = getEnv("AZURE_OPENAI_ENDPOINT")
		}
		if endpoint == "" {
			return nil, fmt.Errorf("embedder: azure requires AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
		base, err = NewOpenAIEmbedder(ctx, &OpenAIConfig{
			BaseURL:    endpoint,
			APIKey:     apiKey,
			Model:      getEnvOrDefault("EMBEDDING_MODEL", defaultOpenAIModel),
			Dimensions: getEnvInt("EMBEDDING_DIMENSIONS", 0),
			Azure:      true,
			APIVersion: getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2024-02-01"),
		})

	default:
		return nil, fmt.Errorf("embedder: unknown backend %q (valid values: ollama, openai, azure)", backend)
	}
	if err != nil {
		return nil, err
	}

	return WithQueryPrefix(base, QueryPrefix()), nil
}

// QueryPrefix returns the configured query prefix. "none" disables it.
func QueryPrefix() string {
	p := getEnvOrDefault("EMBEDDING_QUERY_PREFIX", defaultQueryPrefix)
	if p == "none" {
		return ""
	}
	return p
}

// NewJointFromEnv constructs the image-index JointEmbedder from CLIP_ENDPOINT,
// CLIP_MODEL and CLIP_API_KEY.
func NewJointFromEnv() (JointEmbedder, error) {
	endpoint := getEnv("CLIP_ENDPOINT")
	if endpoint == "" {
		return nil, fmt.Errorf("embedder: CLIP_ENDPOINT is required for image search")
	}
	return NewClipEmbedder(&ClipConfig{
		Endpoint: endpoint,
		Model:    getEnvOrDefault("CLIP_MODEL", defaultClipModel),
		APIKey:   getEnv("CLIP_API_KEY"),
	}), nil
}

// getEnv returns the value of the named environment variable, or empty string.
func getEnv(key string) string {
	return os.Getenv(key)
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
