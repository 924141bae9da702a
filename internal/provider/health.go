package provider

import (
	"net/http"
	"net/url"
	"strings"
)

// HealthCheck describes a zero-cost probe for the selected backend: a GET
// that lists models without generating tokens.
type HealthCheck struct {
	URL    string
	Header http.Header
}

// HealthCheck returns the probe for the selected backend. ok is false when
// the backend has no listing endpoint and a Generate call is the only probe.
func (c *Config) HealthCheck() (hc HealthCheck, ok bool) {
	h := http.Header{}
	switch c.Backend {
	case BackendGroq:
		h.Set("Authorization", "Bearer "+c.Groq.APIKey)
		return HealthCheck{URL: groqBaseURL + "/models", Header: h}, true
	case BackendOpenAI:
		base := c.OpenAI.BaseURL
		if base == "" {
			base = "https://api.openai.com/v1"
		}
		h.Set("Authorization", "Bearer "+c.OpenAI.APIKey)
		return HealthCheck{URL: strings.TrimRight(base, "/") + "/models", Header: h}, true
	case BackendOllama:
		host := c.Ollama.Host
		if host == "" {
			host = "http://localhost:11434"
		}
		return HealthCheck{URL: strings.TrimRight(host, "/") + "/api/tags", Header: h}, true
	case BackendAzure:
		h.Set("api-key", c.AzureOpenAI.APIKey)
		q := url.Values{"api-version": {c.AzureOpenAI.APIVersion}}
		return HealthCheck{
			URL:    strings.TrimRight(c.AzureOpenAI.Endpoint, "/") + "/openai/models?" + q.Encode(),
			Header: h,
		}, true
	case BackendGemini:
		h.Set("x-goog-api-key", c.Gemini.APIKey)
		return HealthCheck{URL: "https://generativelanguage.googleapis.com/v1beta/models", Header: h}, true
	}
	return HealthCheck{}, false
}
