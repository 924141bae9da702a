package embedder

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// knownChatModelPrefixes contains name fragments that identify chat/completion
// models which are NOT suitable for embedding. If a configured model matches any
// of these, a warning is emitted so the operator knows they may have
// misconfigured the pipeline.
var knownChatModelPrefixes = []string{
	"gpt-4",
	"gpt-3.5",
	"gpt-35",
	"o1",
	"o3",
	"llama3",
	"llama2",
	"llama-3",
	"llama-2",
	"mistral",
	"mixtral",
	"gemma",
	"phi-",
	"phi3",
	"claude",
	"command-r",
	"deepseek",
	"qwen",
	"solar",
	"vicuna",
	"falcon",
	"yi-",
}

// looksLikeChatModel returns true when the model name resembles a known
// chat/completion model rather than a dedicated embedding model.
func looksLikeChatModel(model string) bool {
	lower := strings.ToLower(model)
	for _, prefix := range knownChatModelPrefixes {
		if strings.Contains(lower, prefix) {
			return true
		}
	}
	return false
}

// Validate is a pre-flight check for both embedding spaces. It returns an
// error when the configuration is clearly broken (missing credentials, no
// CLIP endpoint) and logs a warning when EMBEDDING_MODEL or CLIP_MODEL looks
// like a chat model rather than an embedding model.
//
// Call it before constructing the indexes so operators get a clear error at
// startup rather than a failure during the first search.
func Validate(log *slog.Logger) error {
	backend := TextBackend()

	switch backend {
	case "ollama":
	case "openai":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no OpenAI API key found, set OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
	case "azure":
		if os.Getenv("EMBEDDING_API_KEY") == "" && os.Getenv("AZURE_OPENAI_API_KEY") == "" {
			return fmt.Errorf("embedder: no Azure API key found, set AZURE_OPENAI_API_KEY or EMBEDDING_API_KEY")
		}
		if os.Getenv("EMBEDDING_ENDPOINT") == "" && os.Getenv("AZURE_OPENAI_ENDPOINT") == "" {
			return fmt.Errorf("embedder: no Azure endpoint found, set AZURE_OPENAI_ENDPOINT or EMBEDDING_ENDPOINT")
		}
	default:
		return fmt.Errorf("embedder: unknown EMBEDDING_PROVIDER %q, use ollama, openai or azure", backend)
	}

	if os.Getenv("CLIP_ENDPOINT") == "" {
		return fmt.Errorf("embedder: CLIP_ENDPOINT is not set, image search needs a CLIP inference service")
	}

	for _, key := range []string{"EMBEDDING_MODEL", "CLIP_MODEL"} {
		model := os.Getenv(key)
		if model != "" && looksLikeChatModel(model) {
			log.Warn("embedder: model looks like a chat model, not an embedding model",
				slog.String("env", key),
				slog.String("model", model),
				slog.String("hint", "use a dedicated embedding model e.g. multilingual-e5-base or ViT-B-32"),
			)
		}
	}

	log.Debug("embedder: configuration validated",
		slog.String("text_backend", backend),
		slog.Int("text_dimensions", DefaultDimensions(backend)),
		slog.Int("joint_dimensions", JointDimensions()),
	)
	return nil
}
