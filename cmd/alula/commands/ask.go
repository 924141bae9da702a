package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alula-collections/alula-go/internal/agent"
	"github.com/alula-collections/alula-go/internal/logging"
	"github.com/alula-collections/alula-go/internal/provider"
)

// NewAskCmd constructs the `alula ask` command, which sends a single natural
// language question to the agent and streams the response to stdout.
func NewAskCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the collection",
		Long: `Ask the assistant a natural language question about the AlUla
Collections - 100 Objects.

The agent searches the catalog by meaning, by inventory number and by image
description as needed, and answers from what it finds. Each question is
independent; there is no conversation memory.

Examples:
  alula ask "what objects are made of bronze?"
  alula ask "tell me about AL-042"
  alula ask --json "show me a statue with an inscription"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := setupTracing(log)
			defer flush()

			chatModel, err := provider.NewFromEnv(ctx)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise model provider: %w", err)
			}

			set, idx, err := buildTools(ctx, log, toolDeps{ChatModel: chatModel, NeedJoint: true})
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer idx.close()

			alula, err := agent.New(ctx, &agent.Config{
				ChatModel:    chatModel,
				Tools:        set,
				EnableHybrid: os.Getenv("ALULA_ENABLE_HYBRID") == "true",
			})
			if err != nil {
				return fmt.Errorf("ask: failed to initialise agent: %w", err)
			}

			// The model answers in JSON, so nothing is streamed; the
			// extracted answer is printed once the run completes.
			ans, err := alula.Query(ctx, strings.Join(args, " "), nil)
			if err != nil {
				return err //nolint:wrapcheck // CLI entry point; error goes directly to cobra
			}

			return printAnswer(cmd.OutOrStdout(), ans, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the structured response and artifacts as JSON")

	return cmd
}

// printAnswer prints ans as indented JSON, or as the answer text followed by
// the grounded inventory number and image paths.
func printAnswer(w io.Writer, ans *agent.Answer, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ans)
	}
	fmt.Fprintln(w, ans.Response.Answer)
	if ans.Response.InvNo != nil {
		fmt.Fprintf(w, "\nInventory: %s\n", *ans.Response.InvNo)
	}
	for _, p := range ans.Response.ImagePaths {
		fmt.Fprintf(w, "Image: %s\n", p)
	}
	if ans.Response.Confidence != nil {
		fmt.Fprintf(w, "Confidence: %.2f\n", *ans.Response.Confidence)
	}
	return nil
}
