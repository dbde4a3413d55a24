package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/lifecycle"
)

// NewListCmd creates the "list" subcommand.
func NewListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog backends and their install state",
		RunE:  runList,
	}
	addCommonFlags(cmd)
	return cmd
}

func runList(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(os.Stderr, verbose)

	manager, cat, cleanup, err := buildManager(cmd.Context(), cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tCATEGORY\tRUNTIME\tSTATE\tTOOLS")
	for _, def := range cat.All() {
		state := lifecycle.StateNotInstalled
		if inst, ok := manager.Installation(def.ID); ok {
			state = inst.State
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			def.ID, catalog.CategoryFor(def), def.Runtime, state, def.ToolCount)
	}
	return w.Flush()
}
