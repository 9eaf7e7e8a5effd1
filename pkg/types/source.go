// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SourceKind identifies the transport/format of an external directory.
type SourceKind string

const (
	SourceAPI  SourceKind = "api"
	SourceCSV  SourceKind = "csv"
	SourceJSON SourceKind = "json"
	SourceXML  SourceKind = "xml"
	SourceHTML SourceKind = "html"
)

// ValidSourceKind reports whether k is a recognized source kind.
func ValidSourceKind(k SourceKind) bool {
	switch k {
	case SourceAPI, SourceCSV, SourceJSON, SourceXML, SourceHTML:
		return true
	}
	return false
}

// ExtractionMap tells the ingestion engine which raw fields supply each
// logical field. Every entry is an ordered candidate list; the first
// present non-empty raw value wins.
type ExtractionMap struct {
	NaturalID   []string `json:"natural_id,omitempty" yaml:"natural_id,omitempty"`
	Name        []string `json:"name" yaml:"name"`
	Address     []string `json:"address,omitempty" yaml:"address,omitempty"`
	City        []string `json:"city,omitempty" yaml:"city,omitempty"`
	State       []string `json:"state,omitempty" yaml:"state,omitempty"`
	Zip         []string `json:"zip,omitempty" yaml:"zip,omitempty"`
	County      []string `json:"county,omitempty" yaml:"county,omitempty"`
	Phone       []string `json:"phone,omitempty" yaml:"phone,omitempty"`
	Description []string `json:"description,omitempty" yaml:"description,omitempty"`
	Services    []string `json:"services,omitempty" yaml:"services,omitempty"`
	Hours       []string `json:"hours,omitempty" yaml:"hours,omitempty"`
	Eligibility []string `json:"eligibility,omitempty" yaml:"eligibility,omitempty"`
	Population  []string `json:"population,omitempty" yaml:"population,omitempty"`

	// ItemElement names the repeated element for XML sources (e.g. "entry").
	ItemElement string `json:"item_element,omitempty" yaml:"item_element,omitempty"`

	// ItemSelector is the CSS selector matching one listing for HTML sources.
	// FieldSelectors maps raw field names to CSS selectors inside each item.
	ItemSelector   string            `json:"item_selector,omitempty" yaml:"item_selector,omitempty"`
	FieldSelectors map[string]string `json:"field_selectors,omitempty" yaml:"field_selectors,omitempty"`
}

// DataSourceDescriptor is the static configuration for one external
// directory. Descriptors are loaded from the source registry and are
// immutable at runtime.
type DataSourceDescriptor struct {
	ID               string        `json:"id" yaml:"id"`
	Name             string        `json:"name" yaml:"name"`
	Kind             SourceKind    `json:"kind" yaml:"kind"`
	URL              string        `json:"url" yaml:"url"`
	City             string        `json:"city,omitempty" yaml:"city,omitempty"`
	State            string        `json:"state,omitempty" yaml:"state,omitempty"`
	APIKey           string        `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Cadence          string        `json:"cadence" yaml:"cadence"`
	RateLimitPerHour int           `json:"rate_limit_per_hour" yaml:"rate_limit_per_hour"`
	Extraction       ExtractionMap `json:"extraction" yaml:"extraction"`
}

// RawRecord is one externally-sourced listing, normalized to an opaque
// key/value payload. Records are created by ingestion and only ever
// updated by payload refresh on re-ingestion; maintenance jobs set the
// archived flag after the retention window.
type RawRecord struct {
	ID          string            `json:"id" yaml:"id"`
	SourceID    string            `json:"source_id" yaml:"source_id"`
	SourceURL   string            `json:"source_url" yaml:"source_url"`
	Payload     map[string]string `json:"payload" yaml:"payload"`
	ExtractedAt time.Time         `json:"extracted_at" yaml:"extracted_at"`
	City        string            `json:"city,omitempty" yaml:"city,omitempty"`
	State       string            `json:"state,omitempty" yaml:"state,omitempty"`
	Zip         string            `json:"zip,omitempty" yaml:"zip,omitempty"`
	County      string            `json:"county,omitempty" yaml:"county,omitempty"`
	Archived    bool              `json:"archived,omitempty" yaml:"archived,omitempty"`
}
