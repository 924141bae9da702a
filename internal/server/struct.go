package server

import (
	"context"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alula-collections/alula-go/internal/agent"
	"github.com/alula-collections/alula-go/internal/attachment"
	"github.com/alula-collections/alula-go/internal/response"
)

// GenericErrorMessage is the only failure text users ever see for upstream errors.
const GenericErrorMessage = "An error occurred while processing your request."

// infoMessage is sent as the first SSE event of every chat stream.
const infoMessage = "Working on a response for you..."

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one /api/chat or /api/image request end to end.
	// Defaults to 3 minutes.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// Metrics receives chat, image and tool metrics. If nil, New registers a
	// fresh set against MetricsRegistry.
	Metrics *Metrics
	// MetricsRegistry is where metrics are registered. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// ImageRoot is the directory GET /api/images/{path...} serves from.
	// Empty disables the route.
	ImageRoot string
	// PublicURL is the externally visible base URL used in image cards.
	PublicURL string
	// Fetcher downloads attachment URLs and stores uploads. Defaults to a
	// restricted fetcher writing to os.TempDir(). URLs come from remote
	// clients, so it should never be an unrestricted one in production.
	Fetcher *attachment.Fetcher
}

// querier is the interface the handlers call. *agent.AlulaAgent satisfies
// it; tests inject a fake.
type querier interface {
	// Query streams the assistant's text for userMessage to w.
	Query(ctx context.Context, userMessage string, w io.Writer) (*agent.Answer, error)
	// ExplainImage identifies and explains the image at path.
	ExplainImage(ctx context.Context, path string) (*agent.Answer, error)
}

// Server is the HTTP server that wraps the AlulaAgent.
type Server struct {
	// querier handles every chat and image request.
	querier querier
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
	// metrics holds the Prometheus collectors.
	metrics *Metrics
	// fetcher downloads and stores attachments.
	fetcher *attachment.Fetcher
	// images serves catalog image files. Nil when no image root is configured.
	images fs.FS
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Message is the user's natural language query.
	Message string `json:"message"`
}

// imageRequest is the JSON body for POST /api/image when the image is
// referenced by URL instead of uploaded.
type imageRequest struct {
	URL string `json:"url"`
}

// imageResponse is the JSON response for POST /api/image.
type imageResponse struct {
	Response  response.StructuredResponse `json:"response"`
	Card      *response.Card              `json:"card,omitempty"`
	Artifacts []any                       `json:"artifacts"`
}

// errorResponse is the JSON body for non-streaming failures.
type errorResponse struct {
	Error string `json:"error"`
}

