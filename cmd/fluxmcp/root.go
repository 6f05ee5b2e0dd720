package main

import (
	"io"
	"log/slog"
	"os"

	"fluxmcp/internal/config"
	"fluxmcp/internal/slogutil"
	"fluxmcp/internal/version"

	"github.com/spf13/cobra"
)

var (
	// configDirFlag is the CLI --config-dir flag value
	configDirFlag string
)

var rootCmd = &cobra.Command{
	Use:   "fluxmcp",
	Short: "fluxmcp - version-abstracted InfluxDB access over MCP",
	Long: `fluxmcp is a Model Context Protocol (MCP) server that exposes InfluxDB
time series data through a version-independent tool surface. It detects whether
the configured backend speaks InfluxQL (v1) or Flux (v2), translates each tool
call into the matching query dialect, and normalizes the results into one
response shape.`,
	Version: version.Info(),
}

func init() {
	rootCmd.SetVersionTemplate("fluxmcp version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", ".",
		"Directory searched for fluxmcp.yaml (environment variables take precedence)")
}

// loadConfig reads configuration from the configured directory and the
// INFLUX_*/FLUXMCP_* environment.
func loadConfig() (*config.Config, error) {
	return config.Load(configDirFlag)
}

// newCommandLogger builds the logger used by CLI commands. Logs always go to
// stderr: stdout belongs to the MCP protocol when the server is running.
func newCommandLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return slogutil.NewLogger(w, slogutil.LevelFromString(cfg.LogLevel))
}
