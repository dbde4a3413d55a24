// Package cli implements the mcpgate subcommands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/relayforge/mcpgate/catalog"
	"github.com/relayforge/mcpgate/lifecycle"
)

// Environment overrides for the shared flags.
const (
	envInstallRoot  = "MCPGATE_INSTALL_ROOT"
	envCatalogPath  = "MCPGATE_CATALOG"
	envClientConfig = "MCPGATE_CLIENT_CONFIG"
	envSQLitePath   = "MCPGATE_SQLITE_PATH"
)

const gatewayEntryName = "mcpgate"

// addCommonFlags registers the flags every lifecycle-touching command needs.
func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("install-root", "", "Directory holding backend installs (default: ~/.mcpgate/servers)")
	cmd.Flags().String("catalog", "", "Path to a YAML catalog override")
	cmd.Flags().String("client-config", "", "Path to the downstream client config to maintain")
	cmd.Flags().String("sqlite-path", "", "Persist install state in SQLite instead of JSON")
}

func resolveFlag(cmd *cobra.Command, name, envKey string) string {
	value, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(value) != "" {
		return value
	}
	return strings.TrimSpace(os.Getenv(envKey))
}

func defaultInstallRoot() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mcpgate", "servers"), nil
}

// newLogger builds the process logger. The stdio protocol owns stdout, so
// logs always go to stderr.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// buildManager wires the catalog, snapshot store, and lifecycle manager from
// the shared flags.
func buildManager(ctx context.Context, cmd *cobra.Command, logger *slog.Logger) (*lifecycle.Manager, *catalog.Catalog, func(), error) {
	cleanup := func() {}

	cat := catalog.Default()
	if path := resolveFlag(cmd, "catalog", envCatalogPath); path != "" {
		loaded, err := catalog.Load(path)
		if err != nil {
			return nil, nil, cleanup, exitError(exitConfig, "loading catalog: %v", err)
		}
		cat = loaded
	}

	installRoot := resolveFlag(cmd, "install-root", envInstallRoot)
	if installRoot == "" {
		root, err := defaultInstallRoot()
		if err != nil {
			return nil, nil, cleanup, exitError(exitConfig, "resolving install root: %v", err)
		}
		installRoot = root
	}

	var store lifecycle.Store
	if dsn := resolveFlag(cmd, "sqlite-path", envSQLitePath); dsn != "" {
		sqliteStore, err := lifecycle.NewSQLiteStore(lifecycle.SQLiteStoreConfig{DSN: dsn})
		if err != nil {
			return nil, nil, cleanup, exitError(exitConfig, "opening sqlite store: %v", err)
		}
		store = sqliteStore
		cleanup = func() {
			_ = sqliteStore.Close()
		}
	}

	gatewayCommand, err := os.Executable()
	if err != nil {
		gatewayCommand = gatewayEntryName
	}

	manager, err := lifecycle.NewManager(ctx, lifecycle.ManagerConfig{
		Catalog:          cat,
		Store:            store,
		InstallRoot:      installRoot,
		ClientConfigPath: resolveFlag(cmd, "client-config", envClientConfig),
		GatewayName:      gatewayEntryName,
		GatewayCommand:   gatewayCommand,
		GatewayArgs:      []string{"serve"},
		Logger:           logger,
	})
	if err != nil {
		cleanup()
		return nil, nil, func() {}, exitError(exitConfig, "building lifecycle manager: %v", err)
	}
	return manager, cat, cleanup, nil
}
