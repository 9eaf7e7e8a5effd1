//go:build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

// runStage invokes the built CLI with the given subcommand.
func runStage(args ...string) error {
	cmd := exec.Command(filepath.Join(binDir, binName), args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// Ingest pulls resource records from every registered source.
func Ingest() error {
	mg.Deps(Build)
	return runStage("ingest")
}

// Classify categorizes pending raw records.
func Classify() error {
	mg.Deps(Build)
	return runStage("classify")
}

// Geocode resolves pending classified resources to coordinates.
func Geocode() error {
	mg.Deps(Build)
	return runStage("geocode")
}

// Rank scores pending geocoded resources.
func Rank() error {
	mg.Deps(Build)
	return runStage("rank")
}

// Refresh runs the four pipeline stages in order.
func Refresh() error {
	mg.Deps(Build)
	for _, stage := range []string{"ingest", "classify", "geocode", "rank"} {
		fmt.Printf("== %s ==\n", stage)
		if err := runStage(stage); err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
	}
	return nil
}
