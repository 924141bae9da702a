package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/qdrant/go-client/qdrant"

	"github.com/alula-collections/alula-go/internal/provider"
)

// LLMPinger probes an LLM backend for readiness. When the backend exposes a
// model listing endpoint it is used; otherwise a single-token Generate call
// is the fallback.
type LLMPinger struct {
	// model is the chat model probed by the Generate fallback.
	model model.BaseChatModel
	// healthCheck is the zero-cost probe, when the backend has one.
	healthCheck *provider.HealthCheck
	// client performs healthCheck requests.
	client *http.Client
	// name identifies the backend in readiness responses (e.g. "groq").
	name string
}

// NewLLMPinger constructs an LLMPinger for the given provider config and model.
func NewLLMPinger(cfg *provider.Config, m model.BaseChatModel) *LLMPinger {
	p := &LLMPinger{model: m, client: http.DefaultClient, name: string(cfg.Backend)}
	if hc, ok := cfg.HealthCheck(); ok {
		p.healthCheck = &hc
	}
	return p
}

// Name returns the backend label used in readiness responses.
func (p *LLMPinger) Name() string { return p.name }

// Ping probes the LLM backend.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if p.healthCheck != nil {
		if err := httpProbe(ctx, p.client, p.healthCheck.URL, p.healthCheck.Header); err != nil {
			return fmt.Errorf("%s health check failed: %w", p.name, err)
		}
		return nil
	}

	// Burns tokens. Only reached for backends without a listing endpoint.
	slog.Warn("pinger: falling back to Generate-based health check; tokens will be consumed",
		slog.String("backend", p.name),
	)
	resp, err := p.model.Generate(ctx, []*schema.Message{schema.UserMessage("ping")})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}

// HTTPPinger probes any HTTP dependency (the CLIP service, an Ollama
// embedding host) with a GET that must return 2xx.
type HTTPPinger struct {
	name   string
	url    string
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger.
func NewHTTPPinger(name, url string) *HTTPPinger {
	return &HTTPPinger{name: name, url: url, client: http.DefaultClient}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues the GET.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	return httpProbe(ctx, p.client, p.url, nil)
}

func httpProbe(ctx context.Context, client *http.Client, url string, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its native HealthCheck RPC.
// It satisfies the Pinger interface and is used by GET /api/ready.
type QdrantPinger struct {
	// client is the Qdrant gRPC client to probe.
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given Qdrant client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// contextPinger is anything with a context-aware Ping, such as *sql.DB or
// the SQLite catalog.
type contextPinger interface {
	Ping(ctx context.Context) error
}

// namedPinger gives a contextPinger a readiness label.
type namedPinger struct {
	name string
	p    contextPinger
}

// NewNamedPinger wraps p so it reports as name in readiness responses.
func NewNamedPinger(name string, p contextPinger) Pinger {
	return &namedPinger{name: name, p: p}
}

func (n *namedPinger) Name() string                   { return n.name }
func (n *namedPinger) Ping(ctx context.Context) error { return n.p.Ping(ctx) }
