// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the resource-engine CLI. Each pipeline
// stage is a subcommand: ingest, classify, geocode, rank. The schedule
// subcommand runs the stages as dependent, retryable jobs.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/havenmap/resource-engine/internal/secrets"
	"github.com/havenmap/resource-engine/internal/store"
	"github.com/havenmap/resource-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

const defaultUserAgent = "resource-engine/0.1 (catalog refresh)"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// rootCmd is the base command for the resource-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "resource-engine",
	Short: "Social-service resource catalog pipeline",
	Long: `resource-engine discovers, classifies, geolocates, and ranks social-service
resources (shelters, food banks, clinics) aggregated from heterogeneous
external directories, producing a continuously refreshed catalog with
quality and priority scores.

Each pipeline stage is a subcommand: ingest, classify, geocode, and rank.
The schedule subcommand sequences the stages as dependent, retryable,
time-boxed jobs.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./resource-engine.yaml or ~/.config/resource-engine/config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "SQLite catalog path (default catalog/resources.db)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("resource-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "resource-engine"))
		}
	}

	viper.SetEnvPrefix("RESOURCE_ENGINE")
	viper.AutomaticEnv()

	viper.SetDefault("store.path", "catalog/resources.db")
	viper.SetDefault("ingest.registry_path", "sources.yaml")
	viper.SetDefault("ingest.timeout", 60*time.Second)
	viper.SetDefault("classify.engine", "keyword")
	viper.SetDefault("geocode.timeout", 30*time.Second)
	viper.SetDefault("rank.profile", "balanced")
	viper.SetDefault("schedule.tick", time.Minute)
	viper.SetDefault("schedule.retention_days", 180)

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// openStore builds the catalog store from the --db flag or config.
func openStore() (*store.Store, error) {
	path, _ := rootCmd.PersistentFlags().GetString("db")
	if path == "" {
		path = viper.GetString("store.path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}
	return store.New(types.StoreConfig{Path: path})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
