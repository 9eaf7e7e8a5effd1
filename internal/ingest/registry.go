// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package ingest pulls raw listings from configured external directories,
// normalizes each into a RawRecord, and persists them idempotently.
package ingest

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"

	"github.com/havenmap/resource-engine/pkg/types"
)

// registryFile is the on-disk shape of the source registry.
type registryFile struct {
	Sources []types.DataSourceDescriptor `yaml:"sources"`
}

// LoadRegistry reads the YAML source registry and validates every
// descriptor. Duplicate ids, unknown kinds, and missing URLs are rejected
// so a bad registry fails at startup rather than mid-run.
func LoadRegistry(path string) ([]types.DataSourceDescriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading source registry %s: %w", path, err)
	}

	var reg registryFile
	if err := yaml.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing source registry %s: %w", path, err)
	}

	seen := make(map[string]bool, len(reg.Sources))
	for i, src := range reg.Sources {
		if src.ID == "" {
			return nil, fmt.Errorf("source %d: missing id", i)
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("source %q: duplicate id", src.ID)
		}
		seen[src.ID] = true

		if !types.ValidSourceKind(src.Kind) {
			return nil, fmt.Errorf("source %q: unknown kind %q", src.ID, src.Kind)
		}
		if src.URL == "" {
			return nil, fmt.Errorf("source %q: missing url", src.ID)
		}
		if src.RateLimitPerHour < 0 {
			return nil, fmt.Errorf("source %q: negative rate limit", src.ID)
		}
	}

	return reg.Sources, nil
}
