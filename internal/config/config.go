// Package config provides YAML-based configuration for alula.
// Configuration is layered: defaults → .env file → YAML file → env vars.
// Environment variables always win; the YAML file only fills keys that are
// still unset, and every component reads its settings from the environment.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. ALULA_CONFIG environment variable
//  3. ~/.alula/config.yaml
//  4. ./alula.yaml
//
// If no file is found the process runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the text embedding model used by the metadata index.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Clip configures the joint text/image embedding service used by the image index.
	Clip ClipConfig `yaml:"clip"`

	// Catalog selects the index backend and collection names.
	Catalog CatalogConfig `yaml:"catalog"`

	// Qdrant configures the Qdrant vector store connection.
	Qdrant QdrantConfig `yaml:"qdrant"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: groq, openai, ollama, azure, gemini, ark.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`

	Ollama OllamaConfig `yaml:"ollama"`
	OpenAI OpenAIConfig `yaml:"openai"`
	Groq   GroqConfig   `yaml:"groq"`
	Azure  AzureConfig  `yaml:"azure"`
	Gemini GeminiConfig `yaml:"gemini"`
	Ark    ArkConfig    `yaml:"ark"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
	// BaseURL points the client at any OpenAI-compatible endpoint.
	BaseURL string `yaml:"base_url"`
}

// GroqConfig holds Groq provider settings.
type GroqConfig struct {
	// APIKey is the Groq API key. Prefer env var GROQ_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
}

// EmbeddingConfig holds text embedding settings for the metadata index.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
	// QueryPrefix is prepended to search queries (e5 models expect "query: ").
	QueryPrefix string `yaml:"query_prefix"`
}

// ClipConfig holds joint text/image embedding settings for the image index.
type ClipConfig struct {
	// Endpoint is the base URL of the CLIP inference service.
	Endpoint string `yaml:"endpoint"`
	// Model is the CLIP model name sent with each request.
	Model string `yaml:"model"`
	// APIKey is the optional Bearer token. Prefer env var CLIP_API_KEY.
	APIKey string `yaml:"api_key"`
	// Dimensions is the joint embedding size (ViT-B-32: 512).
	Dimensions int `yaml:"dimensions"`
}

// CatalogConfig selects where the catalog indexes live.
type CatalogConfig struct {
	// Backend is qdrant or sqlite.
	Backend string `yaml:"backend"`
	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path"`
	// TextCollection is the Qdrant collection holding catalog entries.
	TextCollection string `yaml:"text_collection"`
	// ImageCollection is the Qdrant collection holding image embeddings.
	ImageCollection string `yaml:"image_collection"`
	// ImageRoot is the directory catalog image paths are resolved against.
	ImageRoot string `yaml:"image_root"`
	// EnableHybrid registers the hybrid_search tool with the agent.
	EnableHybrid bool `yaml:"enable_hybrid"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// UploadDir is where uploaded and downloaded attachment images are written.
	UploadDir string `yaml:"upload_dir"`
	// PublicURL is the externally visible base URL used in image cards.
	PublicURL string `yaml:"public_url"`
	// AttachmentHosts limits attachment URL downloads to these hosts.
	AttachmentHosts []string `yaml:"attachment_hosts"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"OPENAI_BASE_URL", func(c *Config) string { return c.Model.OpenAI.BaseURL }},
	{"GROQ_API_KEY", func(c *Config) string { return c.Model.Groq.APIKey }},
	{"GROQ_MODEL", func(c *Config) string { return c.Model.Groq.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"EMBEDDING_QUERY_PREFIX", func(c *Config) string { return c.Embedding.QueryPrefix }},
	{"CLIP_ENDPOINT", func(c *Config) string { return c.Clip.Endpoint }},
	{"CLIP_MODEL", func(c *Config) string { return c.Clip.Model }},
	{"CLIP_API_KEY", func(c *Config) string { return c.Clip.APIKey }},
	{"CLIP_DIMENSIONS", func(c *Config) string { return intStr(c.Clip.Dimensions) }},
	{"CATALOG_BACKEND", func(c *Config) string { return c.Catalog.Backend }},
	{"CATALOG_SQLITE_PATH", func(c *Config) string { return c.Catalog.SQLitePath }},
	{"QDRANT_TEXT_COLLECTION", func(c *Config) string { return c.Catalog.TextCollection }},
	{"QDRANT_IMAGE_COLLECTION", func(c *Config) string { return c.Catalog.ImageCollection }},
	{"ALULA_IMAGE_ROOT", func(c *Config) string { return c.Catalog.ImageRoot }},
	{"ALULA_ENABLE_HYBRID", func(c *Config) string { return boolStr(c.Catalog.EnableHybrid) }},
	{"QDRANT_HOST", func(c *Config) string { return c.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.Qdrant.Port) }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.Qdrant.TLS) }},
	{"ALULA_HOST", func(c *Config) string { return c.Server.Host }},
	{"ALULA_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"ALULA_UPLOAD_DIR", func(c *Config) string { return c.Server.UploadDir }},
	{"ALULA_PUBLIC_URL", func(c *Config) string { return c.Server.PublicURL }},
	{"ALULA_ATTACHMENT_HOSTS", func(c *Config) string { return strings.Join(c.Server.AttachmentHosts, ",") }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files (default
// "./.env") without overriding variables already present in the process
// environment. A missing file is not an error.
func LoadDotEnv(log *slog.Logger, files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: failed to load %s: %w", f, err)
		}
		log.Debug("config: loaded dotenv file", slog.String("path", f))
	}
	return nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set, do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("ALULA_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".alula", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("alula.yaml"); err == nil {
		return "alula.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
