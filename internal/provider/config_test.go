package provider

import (
	"strings"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		// ── Ollama ────────────────────────────────────────────────────────────
		{
			name: "ollama/valid",
			cfg: Config{
				Backend: BackendOllama,
				Ollama:  ProviderOllama{Host: "http://localhost:11434", Model: "llama3"},
			},
		},
		{
			name:    "ollama/missing model",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://localhost:11434"}},
			wantErr: "OLLAMA_MODEL",
		},

		// ── OpenAI ────────────────────────────────────────────────────────────
		{
			name: "openai/valid",
			cfg: Config{
				Backend: BackendOpenAI,
				OpenAI:  ProviderOpenAI{APIKey: "sk-test", Model: "gpt-4o"},
			},
		},
		{
			name:    "openai/missing api key",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{Model: "gpt-4o"}},
			wantErr: "OPENAI_API_KEY",
		},
		{
			name:    "openai/missing model",
			cfg:     Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk-test"}},
			wantErr: "OPENAI_MODEL",
		},

		// ── Azure ─────────────────────────────────────────────────────────────
		{
			name: "azure/valid",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
					APIVersion: "2024-02-01",
				},
			},
		},
		{
			name: "azure/missing api key",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					Endpoint:   "https://my.openai.azure.com",
					Deployment: "gpt-4o",
				},
			},
			wantErr: "AZURE_OPENAI_API_KEY",
		},
		{
			name: "azure/missing endpoint",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:     "key",
					Deployment: "gpt-4o",
				},
			},
			wantErr: "AZURE_OPENAI_ENDPOINT",
		},
		{
			name: "azure/missing deployment",
			cfg: Config{
				Backend: BackendAzure,
				AzureOpenAI: ProviderAzureOpenAI{
					APIKey:   "key",
					Endpoint: "https://my.openai.azure.com",
				},
			},
			wantErr: "AZURE_OPENAI_DEPLOYMENT",
		},

		// ── Groq ──────────────────────────────────────────────────────────────
		{
			name: "groq/valid",
			cfg: Config{
				Backend: BackendGroq,
				Groq:    ProviderGroq{APIKey: "gsk-test", Model: "openai/gpt-oss-120b"},
			},
		},
		{
			name:    "groq/missing api key",
			cfg:     Config{Backend: BackendGroq, Groq: ProviderGroq{Model: "openai/gpt-oss-120b"}},
			wantErr: "GROQ_API_KEY",
		},
		{
			name:    "groq/missing model",
			cfg:     Config{Backend: BackendGroq, Groq: ProviderGroq{APIKey: "gsk-test"}},
			wantErr: "GROQ_MODEL",
		},

		// ── Ark ───────────────────────────────────────────────────────────────
		{
			name: "ark/valid",
			cfg: Config{
				Backend: BackendArk,
				Ark:     ProviderArk{APIKey: "ark-test", Model: "doubao-pro"},
			},
		},
		{
			name:    "ark/missing model",
			cfg:     Config{Backend: BackendArk, Ark: ProviderArk{APIKey: "ark-test"}},
			wantErr: "ARK_MODEL",
		},

		// ── Gemini ────────────────────────────────────────────────────────────
		{
			name: "gemini/valid",
			cfg: Config{
				Backend: BackendGemini,
				Gemini:  ProviderGemini{APIKey: "AIza-test", Model: "gemini-1.5-pro"},
			},
		},
		{
			name:    "gemini/missing api key",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{Model: "gemini-1.5-pro"}},
			wantErr: "GOOGLE_API_KEY",
		},
		{
			name:    "gemini/missing model",
			cfg:     Config{Backend: BackendGemini, Gemini: ProviderGemini{APIKey: "AIza-test"}},
			wantErr: "GEMINI_MODEL",
		},

		// ── Unknown backend ───────────────────────────────────────────────────
		{
			name:    "unknown backend",
			cfg:     Config{Backend: "unknown"},
			wantErr: "unknown backend",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("Validate() error = %q, want substring %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestIsAzureReasoningModel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		deployment string
		want       bool
	}{
		// known o-series: should be detected
		{"o1", true},
		{"o1-preview", true},
		{"o1-mini", true},
		{"o3", true},
		{"o3-mini", true},
		{"o3-pro", true},
		{"o4-mini", true},
		{"O1-PREVIEW", true}, // case-insensitive
		{"O3-Mini", true},    // case-insensitive
		// codex-class: should be detected
		{"codex-mini", true},
		{"codex", true},
		{"gpt-5.2-codex", false}, // "codex" not at start, not matched by prefix rule
		// standard models: should NOT be detected
		{"gpt-4o", false},
		{"gpt-4o-mini", false},
		{"gpt-4", false},
		{"gpt-4.1", false},
		{"gpt-35-turbo", false},
		{"my-custom-deployment", false},
		{"", false},
	}

	for _, tc := range tests {
		t.Run(tc.deployment, func(t *testing.T) {
			t.Parallel()
			got := isAzureReasoningModel(tc.deployment)
			if got != tc.want {
				t.Errorf("isAzureReasoningModel(%q) = %v, want %v", tc.deployment, got, tc.want)
			}
		})
	}
}

func TestConfigFromEnv_Defaults(t *testing.T) {
	t.Setenv("MODEL_PROVIDER", "")
	t.Setenv("GROQ_MODEL", "")
	t.Setenv("GROQ_API_KEY", "gsk-env")
	t.Setenv("MODEL_MAX_TOKENS", "not-a-number")

	cfg := ConfigFromEnv()
	if cfg.Backend != BackendGroq {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendGroq)
	}
	if cfg.Groq.Model != "openai/gpt-oss-120b" {
		t.Errorf("Groq.Model = %q, want default", cfg.Groq.Model)
	}
	if cfg.Groq.APIKey != "gsk-env" {
		t.Errorf("Groq.APIKey = %q, want gsk-env", cfg.Groq.APIKey)
	}
	if cfg.Tuning.MaxTokens != 2048 {
		t.Errorf("Tuning.MaxTokens = %d, want fallback 2048", cfg.Tuning.MaxTokens)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestModelName(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Backend:     BackendAzure,
		AzureOpenAI: ProviderAzureOpenAI{Deployment: "gpt-4.1"},
		Groq:        ProviderGroq{Model: "openai/gpt-oss-120b"},
	}
	if got := cfg.ModelName(); got != "gpt-4.1" {
		t.Errorf("ModelName() = %q, want gpt-4.1", got)
	}
	cfg.Backend = BackendGroq
	if got := cfg.ModelName(); got != "openai/gpt-oss-120b" {
		t.Errorf("ModelName() = %q, want openai/gpt-oss-120b", got)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		cfg        Config
		wantURL    string
		wantHeader string
		wantValue  string
		wantOK     bool
	}{
		{
			name:       "groq",
			cfg:        Config{Backend: BackendGroq, Groq: ProviderGroq{APIKey: "gsk"}},
			wantURL:    "https://api.groq.com/openai/v1/models",
			wantHeader: "Authorization",
			wantValue:  "Bearer gsk",
			wantOK:     true,
		},
		{
			name:       "openai custom base",
			cfg:        Config{Backend: BackendOpenAI, OpenAI: ProviderOpenAI{APIKey: "sk", BaseURL: "http://llm.local/v1/"}},
			wantURL:    "http://llm.local/v1/models",
			wantHeader: "Authorization",
			wantValue:  "Bearer sk",
			wantOK:     true,
		},
		{
			name:    "ollama",
			cfg:     Config{Backend: BackendOllama, Ollama: ProviderOllama{Host: "http://gpu:11434"}},
			wantURL: "http://gpu:11434/api/tags",
			wantOK:  true,
		},
		{
			name:       "azure",
			cfg:        Config{Backend: BackendAzure, AzureOpenAI: ProviderAzureOpenAI{APIKey: "az", Endpoint: "https://x.openai.azure.com", APIVersion: "2024-02-01"}},
			wantURL:    "https://x.openai.azure.com/openai/models?api-version=2024-02-01",
			wantHeader: "api-key",
			wantValue:  "az",
			wantOK:     true,
		},
		{
			name:   "ark has no listing endpoint",
			cfg:    Config{Backend: BackendArk},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			hc, ok := tt.cfg.HealthCheck()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if hc.URL != tt.wantURL {
				t.Errorf("URL = %q, want %q", hc.URL, tt.wantURL)
			}
			if tt.wantHeader != "" && hc.Header.Get(tt.wantHeader) != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantHeader, hc.Header.Get(tt.wantHeader), tt.wantValue)
			}
		})
	}
}
