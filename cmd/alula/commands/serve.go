package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/alula-collections/alula-go/internal/agent"
	"github.com/alula-collections/alula-go/internal/attachment"
	"github.com/alula-collections/alula-go/internal/embedder"
	"github.com/alula-collections/alula-go/internal/logging"
	"github.com/alula-collections/alula-go/internal/provider"
	"github.com/alula-collections/alula-go/internal/server"
	"github.com/alula-collections/alula-go/internal/version"
)

// NewServeCmd constructs the `alula serve` command, which starts the HTTP
// server.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the alula HTTP server",
		Long: `Start the alula HTTP server.

Endpoints:
  POST /api/chat              {"message": "..."}; streams Server-Sent Events
  POST /api/image             multipart field "image", or {"url": "..."}
  GET  /api/images/{path}     catalog images under ALULA_IMAGE_ROOT
  GET  /api/health            liveness
  GET  /api/ready             readiness (LLM, catalog, optional CLIP probe)
  GET  /metrics               Prometheus metrics

Examples:
  alula serve
  alula serve --port 9090
  MODEL_PROVIDER=ollama CATALOG_BACKEND=sqlite alula serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("version", version.String()))

			flush := setupTracing(log)
			defer flush()

			if err := embedder.Validate(log); err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			providerCfg := provider.ConfigFromEnv()
			chatModel, err := provider.New(ctx, providerCfg)
			if err != nil {
				return fmt.Errorf("serve: failed to initialise model provider: %w", err)
			}
			log.Info("provider initialised",
				slog.String("provider", string(providerCfg.Backend)),
				slog.String("model", providerCfg.ModelName()),
			)

			metrics := server.NewMetrics(prometheus.DefaultRegisterer)
			uploads := uploadDir()

			set, idx, err := buildTools(ctx, log, toolDeps{
				ChatModel:  chatModel,
				Observer:   metrics.ObserveTool,
				ImageRoots: []string{uploads},
				NeedJoint:  true,
			})
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer idx.close()

			alula, err := agent.New(ctx, &agent.Config{
				ChatModel:    chatModel,
				Tools:        set,
				EnableHybrid: os.Getenv("ALULA_ENABLE_HYBRID") == "true",
			})
			if err != nil {
				return fmt.Errorf("serve: failed to initialise agent: %w", err)
			}

			// Flags win; otherwise ALULA_HOST/ALULA_PORT, which may come from
			// .env or YAML loaded after flag defaults were computed.
			if host == "" {
				host = envOrDefault("ALULA_HOST", "127.0.0.1")
			}
			if port == 0 {
				port = envInt("ALULA_PORT", 8080)
			}

			srv, err := server.New(alula, &server.Config{
				Host:      host,
				Port:      port,
				Logger:    log,
				Pingers:   buildPingers(providerCfg, chatModel, idx),
				Metrics:   metrics,
				ImageRoot: os.Getenv("ALULA_IMAGE_ROOT"),
				PublicURL: os.Getenv("ALULA_PUBLIC_URL"),
				Fetcher:   attachment.NewRestrictedFetcher(uploads, splitList(os.Getenv("ALULA_ATTACHMENT_HOSTS"))),
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Host address to bind to (default: ALULA_HOST or 127.0.0.1)")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "TCP port to listen on (default: ALULA_PORT or 8080)")

	return cmd
}
