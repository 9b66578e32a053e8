// Package cli implements the poplift command line.
package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"poplift/internal"
	"poplift/internal/config"
	"poplift/internal/database"
	"poplift/internal/pkg/logger"
	"poplift/internal/security"
)

// Version information set by the main package.
var versionInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// SetVersionInfo is called by main to stamp build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "poplift",
	Short: "Poplift popup backend",
	Long: `Poplift serves popups to embedded scripts, records their analytics and
manages account subscriptions.

Running without a subcommand starts the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.LoadDotEnv()
	},
	RunE: runServe,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd, statsCmd, tokenCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "poplift %s (commit %s, built %s)\n",
			versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	},
}

// openDatabase builds a database manager without starting the HTTP stack.
func openDatabase() (*config.Config, *zap.Logger, *database.Manager, error) {
	cfg := config.Get()
	log, err := logger.Initialize(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initialize logger: %w", err)
	}
	return cfg, log, database.NewManager(cfg, log), nil
}

func parseUserFlag(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("--user is required")
	}
	if !security.IsValidUUID(raw) {
		return "", fmt.Errorf("--user must be a valid UUID, got %q", raw)
	}
	return strings.ToLower(raw), nil
}
