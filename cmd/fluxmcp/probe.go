package main

import (
	"context"
	"fmt"

	"fluxmcp/internal/query"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Detect the backend version and list its containers",
	Long: `Probe the configured InfluxDB backend without starting the server.

The backend is contacted once to determine its query dialect (flux for v2,
influxql for v1), then its buckets or databases are listed. Useful for
verifying connectivity and credentials before wiring fluxmcp into a client.`,
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newCommandLogger(cmd.ErrOrStderr(), cfg)
	engine, err := query.NewEngineFromConfig(cfg, logger)
	if err != nil {
		return err
	}

	result, err := engine.Probe(context.Background())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "backend: %s\n", cfg.URL)
	fmt.Fprintf(out, "dialect: %s\n", result.Dialect)
	fmt.Fprintf(out, "containers: %d\n", len(result.Containers))
	for i, c := range result.Containers {
		if i == 5 {
			fmt.Fprintf(out, "  ... and %d more\n", len(result.Containers)-i)
			break
		}
		if c.RetentionPolicy != "" {
			fmt.Fprintf(out, "  %s (%s, retention %s)\n", c.Name, c.Kind, c.RetentionPolicy)
		} else {
			fmt.Fprintf(out, "  %s (%s)\n", c.Name, c.Kind)
		}
	}
	return nil
}
