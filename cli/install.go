package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// NewInstallCmd creates the "install" subcommand.
func NewInstallCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install <backend-id>",
		Short: "Install a backend from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE:  runInstall,
	}

	addCommonFlags(cmd)
	cmd.Flags().StringArray("env", nil, "Backend environment variable KEY=VALUE (repeatable)")

	return cmd
}

func runInstall(cmd *cobra.Command, args []string) error {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	logger := newLogger(os.Stderr, verbose)

	manager, _, cleanup, err := buildManager(cmd.Context(), cmd, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	envFlags, _ := cmd.Flags().GetStringArray("env")
	env, err := parseEnvFlags(envFlags)
	if err != nil {
		return exitError(exitConfig, "invalid env flag: %v", err)
	}

	id := args[0]
	if err := manager.InstallWait(cmd.Context(), id, env); err != nil {
		for _, rec := range manager.Errors().For(id) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  [%s] %s\n", rec.Stage, rec.Details)
			for _, s := range rec.Suggestions {
				fmt.Fprintf(cmd.ErrOrStderr(), "    hint: %s\n", s.Description)
			}
		}
		return exitError(exitLifecycle, "install failed: %v", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "installed %s\n", id)
	return nil
}

func parseEnvFlags(flags []string) (map[string]string, error) {
	env := make(map[string]string, len(flags))
	for _, flag := range flags {
		key, value, found := strings.Cut(flag, "=")
		if !found || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("expected KEY=VALUE, got %q", flag)
		}
		env[strings.TrimSpace(key)] = value
	}
	return env, nil
}
