package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <backend-id>",
		Short: "Validate an installed backend",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
	addCommonFlags(cmd)
	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(os.Stderr, verbose)

	manager, _, cleanup, err := buildManager(cmd.Context(), cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := manager.Validate(args[0])
	if err != nil {
		return exitError(exitConfig, "validate: %v", err)
	}

	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", result.BackendID)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s has %d issue(s):\n", result.BackendID, len(result.Issues))
	for _, issue := range result.Issues {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%s] %s\n", issue.Severity, issue.Description)
	}
	for _, rem := range result.Remediations {
		marker := " "
		if rem.AutoFix {
			marker = "*"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "  fix%s %s: %s\n", marker, rem.Description, rem.Command())
	}
	return exitError(exitLifecycle, "%s failed validation", result.BackendID)
}
