package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alula-collections/alula-go/internal/logging"
)

// NewLookupCmd constructs the `alula lookup` command, an exact inventory
// number lookup that needs no chat model.
func NewLookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup [inv_no]",
		Short: "Look up a catalog object by inventory number",
		Long: `Look up one object by its exact inventory number and print its record.

Examples:
  alula lookup AL-042
  CATALOG_BACKEND=sqlite alula lookup AL-001`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			set, idx, err := buildTools(ctx, log, toolDeps{})
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			defer idx.close()

			res, err := set.Inventory.Run(ctx, args[0])
			if err != nil {
				return fmt.Errorf("lookup: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}
