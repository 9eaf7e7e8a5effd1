package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenmap/resource-engine/internal/ingest"
	"github.com/havenmap/resource-engine/pkg/types"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Pull resource records from the registered external directories",
	Long: `Ingest fetches every active source in the registry (API, CSV, JSON, XML,
HTML), normalizes each item into a raw record with a stable derived id, and
upserts the records into the catalog. Per-source hourly rate limits and
failure isolation keep one bad directory from blocking the rest.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().String("registry", "", "source registry YAML (default sources.yaml)")
	ingestCmd.Flags().String("city", "", "only ingest sources covering this city")
	ingestCmd.Flags().Duration("timeout", 0, "HTTP request timeout (default 60s)")
	ingestCmd.Flags().Int("batch-size", 0, "records per store batch (default 50)")

	rootCmd.AddCommand(ingestCmd)
}

func ingestConfig(cmd *cobra.Command) types.IngestConfig {
	registry, _ := cmd.Flags().GetString("registry")
	if registry == "" {
		registry = viper.GetString("ingest.registry_path")
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if timeout == 0 {
		timeout = viper.GetDuration("ingest.timeout")
	}
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	batchSize, _ := cmd.Flags().GetInt("batch-size")

	return types.IngestConfig{
		HTTPConfig: types.HTTPConfig{
			Timeout:   timeout,
			UserAgent: defaultUserAgent,
		},
		RegistryPath: registry,
		BatchSize:    batchSize,
	}
}

func runIngest(cmd *cobra.Command, args []string) error {
	cfg := ingestConfig(cmd)
	city, _ := cmd.Flags().GetString("city")

	sources, err := ingest.LoadRegistry(cfg.RegistryPath)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	client := &http.Client{Timeout: cfg.Timeout}
	engine := ingest.NewEngine(st, client, sources, cfg)

	summary, err := engine.IngestAll(cmd.Context(), city, os.Stdout)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d source(s) failed ingestion", summary.Failed)
	}
	return nil
}
