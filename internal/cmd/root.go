// Package cmd implements the cartosync CLI.
package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dataviz-jp/cartosync/internal/config"
	"github.com/dataviz-jp/cartosync/internal/observability"
)

// versionInfo is stamped from main via SetVersionInfo.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var (
	cfgFile  string
	logLevel string
	logJSON  bool

	// cfg is loaded in the persistent pre-run; commands read it from here.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "cartosync",
	Short: "Save, load, and list cartogram projects",
	Long: `cartosync persists cartogram visualization projects to an
account-scoped backend.

Two interchangeable backends are supported: "gateway" routes every
operation through an application API, and "direct" writes blob payloads
and metadata rows itself. Select one with the backend setting or
CARTOSYNC_BACKEND.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		observability.InitCLILogger(logLevel, logJSON)

		loaded, err := config.Load(cmd.Context(), cfgFile)
		if err != nil {
			return fmt.Errorf("load configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON lines")
}

// Execute runs the CLI.
func Execute(ctx context.Context) error {
	defer observability.SyncLogger()
	return rootCmd.ExecuteContext(ctx)
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}
