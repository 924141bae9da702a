// Package server exposes the AlUla Collections assistant over HTTP: a
// streaming chat endpoint (Server-Sent Events), an image identification
// endpoint, catalog image serving, health, readiness and Prometheus metrics.
// The server is started by the `alula serve` CLI command.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/alula-collections/alula-go/internal/agent"
	"github.com/alula-collections/alula-go/internal/attachment"
	"github.com/alula-collections/alula-go/internal/logging"
	"github.com/alula-collections/alula-go/internal/response"
)

// New constructs a Server from the provided agent and config.
func New(a *agent.AlulaAgent, cfg *Config) (*Server, error) {
	if a == nil {
		return nil, fmt.Errorf("server: agent must not be nil")
	}
	return newServer(a, cfg), nil
}

// newServer applies defaults and builds the handler tree around q.
func newServer(q querier, cfg *Config) *Server {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 3 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.MetricsRegistry)
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = attachment.NewRestrictedFetcher("", nil)
	}

	s := &Server{
		querier: q,
		cfg:     cfg,
		log:     cfg.Logger,
		pingers: cfg.Pingers,
		metrics: cfg.Metrics,
		fetcher: cfg.Fetcher,
	}
	if cfg.ImageRoot != "" {
		s.images = os.DirFS(cfg.ImageRoot)
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, cfg.Logger)
	s.stopRL = stop

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", rl.middleware(s.instrument("chat", http.HandlerFunc(s.handleChat))))
	mux.Handle("POST /api/image", rl.middleware(s.instrument("image", http.HandlerFunc(s.handleImage))))
	mux.Handle("GET /api/images/{path...}", s.instrument("catalog_image", http.HandlerFunc(s.handleCatalogImage)))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      otelhttp.NewHandler(requestLogger(cfg.Logger, mux), "alula"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// instrument wraps next with the per-handler HTTP request counter and
// latency histogram.
func (s *Server) instrument(name string, next http.Handler) http.Handler {
	labels := prometheus.Labels{labelHandler: name}
	return promhttp.InstrumentHandlerDuration(
		s.metrics.httpDurationSeconds.MustCurryWith(labels),
		promhttp.InstrumentHandlerCounter(s.metrics.httpRequestsTotal.MustCurryWith(labels), next),
	)
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("alula server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat requests. It streams the agent's response
// using Server-Sent Events so the client can render tokens as they arrive,
// then sends the artifacts, the structured response and, when the response
// names images, an image card. The stream always ends with a done event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	// Set SSE headers so the client receives a streaming response.
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	log := logging.FromContext(r.Context())
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	s.metrics.chatActiveStreams.Inc()
	defer s.metrics.chatActiveStreams.Dec()
	start := time.Now()

	sw := &sseWriter{w: w, flusher: flusher}
	sw.event("info", infoMessage)

	outcome := "ok"
	ans, err := s.querier.Query(ctx, req.Message, sw)
	if err != nil {
		outcome = "error"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			outcome = "timeout"
		}
		log.Error("chat: query failed", slog.Any("error", err), slog.String("outcome", outcome))
		sw.event("error", GenericErrorMessage)
	} else {
		artifacts := ans.Artifacts
		if artifacts == nil {
			artifacts = []any{}
		}
		sw.jsonEvent("artifacts", artifacts)
		sw.jsonEvent("response", ans.Response)
		if card := response.NewImageCard(ans.Response, s.cfg.PublicURL); card != nil {
			sw.jsonEvent("card", card)
		}
	}

	// Signal stream completion.
	sw.event("done", "[DONE]")
	s.metrics.observeChat(outcome, time.Since(start))
}

// sseWriter wraps an http.ResponseWriter to emit Server-Sent Event frames.
type sseWriter struct {
	// w is the underlying response writer.
	w http.ResponseWriter

	// flusher flushes buffered data to the client after each write.
	flusher http.Flusher
}

// Write formats p as one or more SSE data lines and flushes to the client.
// Each newline in p is prefixed with "data: " so multi-line chunks never
// break the SSE frame boundary.
func (s *sseWriter) Write(p []byte) (n int, err error) {
	if _, err = fmt.Fprint(s.w, dataLines(string(bytes.Clone(p)))); err != nil {
		return 0, err
	}
	s.flusher.Flush()
	return len(p), nil
}

// event writes one named event.
func (s *sseWriter) event(name, data string) {
	fmt.Fprintf(s.w, "event: %s\n%s", name, dataLines(data))
	s.flusher.Flush()
}

// jsonEvent writes one named event whose data is v encoded as JSON.
func (s *sseWriter) jsonEvent(name string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.event("error", GenericErrorMessage)
		return
	}
	s.event(name, string(b))
}

// dataLines renders chunk as SSE data lines terminated by a blank line.
func dataLines(chunk string) string {
	chunk = strings.TrimRight(chunk, "\n")
	var buf strings.Builder
	for _, line := range strings.Split(chunk, "\n") {
		buf.WriteString("data: ")
		buf.WriteString(line)
		buf.WriteString("\n")
	}
	buf.WriteString("\n")
	return buf.String()
}

// handleCatalogImage handles GET /api/images/{path...}. Paths are resolved
// inside the configured image root; anything escaping it is a 404.
func (s *Server) handleCatalogImage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("path")
	if s.images == nil || !fs.ValidPath(name) || name == "." {
		http.NotFound(w, r)
		return
	}
	if info, err := fs.Stat(s.images, name); err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeFileFS(w, r, s.images, name)
}
