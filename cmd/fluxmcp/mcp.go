package main

import (
	"fluxmcp/internal/mcp"
	"fluxmcp/internal/query"
	"fluxmcp/internal/storage"
	"fluxmcp/internal/version"

	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol (MCP) server.

The server communicates over stdio using JSON-RPC 2.0 and exposes the
following tools to MCP clients:
  - list_buckets_or_dbs: list buckets (v2) or database/retention-policy pairs (v1)
  - list_measurements:   list measurements in a bucket or database
  - list_fields:         list fields of a measurement
  - list_tags:           list tag keys and sample values of a measurement
  - last_point:          fetch the most recent point of a series
  - query_timeseries:    fetch a windowed, optionally downsampled series
  - window_stats:        summary statistics over a time window
  - get_query_metrics:   per-tool invocation metrics

This command is typically invoked by MCP clients and not directly by users.`,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Logs go to stderr: stdout carries the protocol.
	logger := newCommandLogger(cmd.ErrOrStderr(), cfg)
	logger.Info("starting MCP server", "version", version.Info(), "url", cfg.URL)

	engine, err := query.NewEngineFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	metrics, err := storage.Open(cfg.MetricsDB, logger)
	if err != nil {
		logger.Warn("query metrics disabled", "error", err)
		metrics = nil
	}
	defer metrics.Close()

	server := mcp.NewServer(version.Version, engine, metrics, logger)
	if err := server.Start(); err != nil {
		logger.Error("MCP server error", "error", err)
		return err
	}
	return nil
}
