// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/havenmap/resource-engine/pkg/types"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sources.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeRegistry(t, `
sources:
  - id: city-foodbank
    name: City Food Bank Directory
    kind: json
    url: https://example.org/foodbanks.json
    city: Springfield
    rate_limit_per_hour: 10
    extraction:
      natural_id: [id]
      name: [name, title]
  - id: county-shelters
    name: County Shelter List
    kind: csv
    url: https://example.org/shelters.csv
`)

	sources, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry() error: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("got %d sources, want 2", len(sources))
	}
	if sources[0].Kind != types.SourceJSON || sources[0].RateLimitPerHour != 10 {
		t.Errorf("source = %+v", sources[0])
	}
	if got := sources[0].Extraction.Name; len(got) != 2 || got[0] != "name" {
		t.Errorf("extraction name candidates = %v", got)
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		errPart string
	}{
		{
			name: "duplicate id",
			content: `
sources:
  - {id: a, kind: json, url: "https://x"}
  - {id: a, kind: csv, url: "https://y"}
`,
			errPart: "duplicate id",
		},
		{
			name: "unknown kind",
			content: `
sources:
  - {id: a, kind: soap, url: "https://x"}
`,
			errPart: "unknown kind",
		},
		{
			name: "missing url",
			content: `
sources:
  - {id: a, kind: json}
`,
			errPart: "missing url",
		},
		{
			name: "missing id",
			content: `
sources:
  - {kind: json, url: "https://x"}
`,
			errPart: "missing id",
		},
		{
			name: "negative rate limit",
			content: `
sources:
  - {id: a, kind: json, url: "https://x", rate_limit_per_hour: -1}
`,
			errPart: "negative rate limit",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRegistry(writeRegistry(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("LoadRegistry() = %v, want error containing %q", err, tt.errPart)
			}
		})
	}
}

func TestLoadRegistryMissingFile(t *testing.T) {
	if _, err := LoadRegistry(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("missing registry file should fail")
	}
}
