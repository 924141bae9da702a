package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alula-collections/alula-go/internal/logging"
)

// NewSearchImageCmd constructs the `alula search-image` command, which finds
// catalog images matching a text description in the joint CLIP space.
func NewSearchImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search-image [description]",
		Short: "Find catalog images matching a description",
		Long: `Embed a description with the CLIP service and print the three closest
catalog images with their inventory numbers.

Examples:
  alula search-image "carved stone camel"
  alula search-image "gold earring"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			set, idx, err := buildTools(ctx, log, toolDeps{NeedJoint: true})
			if err != nil {
				return fmt.Errorf("search-image: %w", err)
			}
			defer idx.close()

			res, err := set.ImageText.Run(ctx, strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("search-image: %w", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}
