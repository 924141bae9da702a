package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"

	"github.com/alula-collections/alula-go/internal/catalog"
	"github.com/alula-collections/alula-go/internal/embedder"
	"github.com/alula-collections/alula-go/internal/provider"
	"github.com/alula-collections/alula-go/internal/server"
	"github.com/alula-collections/alula-go/internal/tools"
	"github.com/alula-collections/alula-go/internal/tracing"
)

// indexes holds the catalog backends opened for one process.
type indexes struct {
	metadata catalog.MetadataIndex
	images   catalog.ImageIndex
	// exactly one of qdrant and sqlite is set
	qdrant *catalog.QdrantIndex
	sqlite *catalog.SQLiteIndex
	close  func()
}

// buildIndexes opens the catalog backend selected by CATALOG_BACKEND
// (qdrant, the default, or sqlite). Both indexes share one backend.
func buildIndexes(ctx context.Context, log *slog.Logger) (*indexes, error) {
	text, err := embedder.NewTextFromEnv(ctx)
	if err != nil {
		return nil, err
	}

	switch backend := envOrDefault("CATALOG_BACKEND", "qdrant"); backend {
	case "qdrant":
		q, err := catalog.NewQdrantIndex(ctx, catalog.QdrantConfig{
			Host:            os.Getenv("QDRANT_HOST"),
			Port:            envInt("QDRANT_PORT", 6334),
			APIKey:          os.Getenv("QDRANT_API_KEY"),
			UseTLS:          os.Getenv("QDRANT_TLS") == "true",
			TextCollection:  os.Getenv("QDRANT_TEXT_COLLECTION"),
			ImageCollection: os.Getenv("QDRANT_IMAGE_COLLECTION"),
		}, text)
		if err != nil {
			return nil, err
		}
		log.Info("catalog: qdrant backend ready")
		return &indexes{
			metadata: q,
			images:   q,
			qdrant:   q,
			close: func() {
				if err := q.Close(); err != nil {
					log.Warn("catalog: qdrant close failed", slog.Any("error", err))
				}
			},
		}, nil

	case "sqlite":
		path := envOrDefault("CATALOG_SQLITE_PATH", "alula.db")
		s, err := catalog.OpenSQLite(path, text)
		if err != nil {
			return nil, err
		}
		log.Info("catalog: sqlite backend ready", slog.String("path", path))
		return &indexes{
			metadata: s,
			images:   s,
			sqlite:   s,
			close: func() {
				if err := s.Close(); err != nil {
					log.Warn("catalog: sqlite close failed", slog.Any("error", err))
				}
			},
		}, nil

	default:
		return nil, fmt.Errorf("catalog: unknown CATALOG_BACKEND %q (valid values: qdrant, sqlite)", backend)
	}
}

// toolDeps are the inputs to buildTools. ChatModel may be nil for commands
// that never explain an image.
type toolDeps struct {
	ChatModel  model.BaseChatModel
	Observer   tools.Observer
	ImageRoots []string
	NeedJoint  bool
}

// buildTools opens the indexes and the joint embedder and constructs the
// shared tool set. The returned close function releases the indexes.
func buildTools(ctx context.Context, log *slog.Logger, d toolDeps) (*tools.Set, *indexes, error) {
	idx, err := buildIndexes(ctx, log)
	if err != nil {
		return nil, nil, err
	}

	deps := tools.Deps{
		Index:      idx.metadata,
		Images:     idx.images,
		ImageRoots: d.ImageRoots,
		Observer:   d.Observer,
	}
	if d.NeedJoint {
		joint, err := embedder.NewJointFromEnv()
		if err != nil {
			idx.close()
			return nil, nil, err
		}
		deps.Joint = joint
	}
	if d.ChatModel != nil {
		deps.Explainer = tools.NewModelExplainer(d.ChatModel)
	}
	return tools.NewSet(deps), idx, nil
}

// buildPingers returns the readiness probes for GET /api/ready: the LLM
// backend, the catalog backend and, when CLIP_HEALTH_URL is set, the CLIP
// service.
func buildPingers(providerCfg *provider.Config, chatModel model.BaseChatModel, idx *indexes) []server.Pinger {
	pingers := []server.Pinger{server.NewLLMPinger(providerCfg, chatModel)}
	switch {
	case idx.qdrant != nil:
		pingers = append(pingers, server.NewQdrantPinger(idx.qdrant.Client()))
	case idx.sqlite != nil:
		pingers = append(pingers, server.NewNamedPinger("sqlite", idx.sqlite))
	}
	if u := os.Getenv("CLIP_HEALTH_URL"); u != "" {
		pingers = append(pingers, server.NewHTTPPinger("clip", u))
	}
	return pingers
}

// setupTracing registers the Langfuse handler globally when configured and
// returns the flush function to defer.
func setupTracing(log *slog.Logger) func() {
	handler, flush, ok := tracing.Setup()
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}

// uploadDir is where the server stores uploaded and downloaded attachments.
func uploadDir() string {
	if d := os.Getenv("ALULA_UPLOAD_DIR"); d != "" {
		return d
	}
	return filepath.Join(os.TempDir(), "alula-uploads")
}

// splitList splits a comma-separated variable, dropping empty items.
func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
