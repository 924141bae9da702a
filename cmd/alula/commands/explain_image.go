package commands

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alula-collections/alula-go/internal/agent"
	"github.com/alula-collections/alula-go/internal/attachment"
	"github.com/alula-collections/alula-go/internal/logging"
	"github.com/alula-collections/alula-go/internal/provider"
)

// NewExplainImageCmd constructs the `alula explain-image` command, which
// identifies the catalog object closest to a photo and explains it.
func NewExplainImageCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "explain-image [path|url]",
		Short: "Identify and explain the object in a photo",
		Long: `Match a photo against the catalog images, look up the closest object and
ask the model to explain it. The argument is a local file or an http(s) URL,
which is downloaded first.

Examples:
  alula explain-image ./incense-burner.jpg
  alula explain-image --json https://example.org/photos/statue.png`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := setupTracing(log)
			defer flush()

			path := args[0]
			if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
				downloaded, err := attachment.NewFetcher("").Fetch(ctx, path)
				if errors.Is(err, attachment.ErrDownloadFailure) {
					log.Warn("explain-image: download failed", slog.Any("error", err))
					return errors.New(attachment.DownloadFailureMessage)
				}
				if err != nil {
					return fmt.Errorf("explain-image: %w", err)
				}
				defer os.Remove(downloaded)
				path = downloaded
			}

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("explain-image: failed to initialise model provider: %w", err)
			}

			set, idx, err := buildTools(ctx, log, toolDeps{ChatModel: chatModel, NeedJoint: true})
			if err != nil {
				return fmt.Errorf("explain-image: %w", err)
			}
			defer idx.close()

			alula, err := agent.New(ctx, &agent.Config{ChatModel: chatModel, Tools: set})
			if err != nil {
				return fmt.Errorf("explain-image: failed to initialise agent: %w", err)
			}

			ans, err := alula.ExplainImage(ctx, path)
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point; error goes directly to cobra
			}
			return printAnswer(cmd.OutOrStdout(), ans, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured response and artifacts as JSON")

	return cmd
}
