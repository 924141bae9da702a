// Package provider builds the chat model that drives the collections
// assistant. MODEL_PROVIDER selects the backend at runtime; each backend
// reads its own credentials so switching providers never requires code
// changes.
package provider

import (
	"fmt"
	"strings"
)

// Backend enumerates the supported LLM inference providers.
type Backend string

const (
	// BackendGroq selects Groq's OpenAI-compatible API (the deployed default).
	BackendGroq Backend = "groq"
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API or any compatible endpoint.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects Volcengine Ark.
	BackendArk Backend = "ark"
)

// groqBaseURL is Groq's OpenAI-compatible endpoint.
const groqBaseURL = "https://api.groq.com/openai/v1"

// ProviderOllama holds Ollama settings.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds OpenAI settings. BaseURL is optional and lets the
// backend target any OpenAI-compatible server.
type ProviderOpenAI struct {
	APIKey  string
	Model   string
	BaseURL string
}

// ProviderGroq holds Groq settings.
type ProviderGroq struct {
	APIKey string
	Model  string
}

// ProviderAzureOpenAI holds Azure OpenAI settings.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini holds Google Gemini settings.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk holds Volcengine Ark settings.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation parameters common to every backend.
type SharedTuning struct {
	// MaxTokens caps the number of tokens the model may generate per response.
	MaxTokens int
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32
}

// Config holds all provider-level configuration. Only the struct matching
// Backend is consulted.
type Config struct {
	Backend Backend

	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	Groq        ProviderGroq
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk

	Tuning SharedTuning
}

// Validate reports the first missing setting for the selected backend,
// naming the env var the operator needs to set.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendGroq:
		if c.Groq.APIKey == "" {
			return fmt.Errorf("provider: GROQ_API_KEY is required for groq backend")
		}
		if c.Groq.Model == "" {
			return fmt.Errorf("provider: GROQ_MODEL is required for groq backend")
		}
	case BackendOllama:
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("provider: OPENAI_API_KEY is required for openai backend")
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_API_KEY is required for azure backend")
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_ENDPOINT is required for azure backend")
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("provider: GOOGLE_API_KEY is required for gemini backend")
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("provider: ARK_API_KEY is required for ark backend")
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid values: groq, ollama, openai, azure, gemini, ark)", c.Backend)
	}
	return nil
}

// ModelName returns the model or deployment the selected backend will call.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendGroq:
		return c.Groq.Model
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// isAzureReasoningModel reports whether an Azure deployment name refers to an
// o-series or codex reasoning model. Those reject temperature and max_tokens.
func isAzureReasoningModel(deployment string) bool {
	d := strings.ToLower(deployment)
	for _, prefix := range []string{"o1", "o3", "o4", "codex"} {
		if strings.HasPrefix(d, prefix) {
			return true
		}
	}
	return false
}
