package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewStartCmd creates the "start" subcommand.
func NewStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start <backend-id>",
		Short: "Start an installed backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
			logger := newLogger(os.Stderr, verbose)

			manager, _, cleanup, err := buildManager(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := manager.Start(cmd.Context(), args[0]); err != nil {
				return exitError(exitLifecycle, "start failed: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started %s\n", args[0])
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}

// NewStopCmd creates the "stop" subcommand.
func NewStopCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop <backend-id>",
		Short: "Stop a running backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
			logger := newLogger(os.Stderr, verbose)

			manager, _, cleanup, err := buildManager(cmd.Context(), cmd, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := manager.Stop(cmd.Context(), args[0]); err != nil {
				return exitError(exitLifecycle, "stop failed: %v", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
			return nil
		},
	}
	addCommonFlags(cmd)
	return cmd
}
