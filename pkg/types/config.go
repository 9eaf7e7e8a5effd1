package types

import "time"

// HTTPConfig holds shared HTTP settings used by stages that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "resource-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// StoreConfig holds settings for the catalog store.
type StoreConfig struct {
	// Path is the SQLite database file (default "catalog/resources.db").
	Path string `json:"path" yaml:"path"`
}

// IngestConfig holds settings for the ingestion stage.
type IngestConfig struct {
	HTTPConfig `yaml:",inline"`

	// RegistryPath is the YAML file listing DataSourceDescriptors.
	RegistryPath string `json:"registry_path" yaml:"registry_path"`

	// BatchSize is the number of raw records written per store batch (default 50).
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// ClassifyConfig holds settings for the classification stage.
type ClassifyConfig struct {
	// Engine selects the classification backend: keyword or gemini.
	Engine string `json:"engine" yaml:"engine"`

	// Model is the Gemini model identifier used by the gemini engine.
	Model string `json:"model" yaml:"model"`

	// APIKey authenticates the gemini engine.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// CallDelay is the fixed pause between successive engine calls (default 1s).
	CallDelay time.Duration `json:"call_delay" yaml:"call_delay"`

	// MaxAnalysisChars caps the concatenated analysis text (default 2000).
	MaxAnalysisChars int `json:"max_analysis_chars" yaml:"max_analysis_chars"`
}

// GeocodeConfig holds settings for the geocoding stage.
type GeocodeConfig struct {
	HTTPConfig `yaml:",inline"`

	// NominatimURL is the primary open provider endpoint.
	NominatimURL string `json:"nominatim_url" yaml:"nominatim_url"`

	// GeocodioURL and GeocodioAPIKey configure the commercial fallback.
	// The provider is skipped entirely when the key is empty.
	GeocodioURL    string `json:"geocodio_url" yaml:"geocodio_url"`
	GeocodioAPIKey string `json:"geocodio_api_key,omitempty" yaml:"geocodio_api_key,omitempty"`

	// GeocodioDailyQuota caps commercial lookups per day (default 2000).
	GeocodioDailyQuota int `json:"geocodio_daily_quota" yaml:"geocodio_daily_quota"`

	// CensusURL is the tertiary government provider endpoint.
	CensusURL string `json:"census_url" yaml:"census_url"`

	// RequestDelay throttles the primary provider (default 1.1s).
	RequestDelay time.Duration `json:"request_delay" yaml:"request_delay"`
}

// RankConfig holds settings for the ranking stage.
type RankConfig struct {
	// Profile names the weighting profile (default "balanced").
	Profile string `json:"profile" yaml:"profile"`
}

// ScheduleConfig holds settings for the refresh scheduler.
type ScheduleConfig struct {
	// Tick is the scheduler loop interval (default 1m).
	Tick time.Duration `json:"tick" yaml:"tick"`

	// HistorySize bounds the in-memory job result buffer (default 500).
	HistorySize int `json:"history_size" yaml:"history_size"`

	// RetentionDays is the raw-record retention window used by the
	// archive job (default 180).
	RetentionDays int `json:"retention_days" yaml:"retention_days"`
}

// PipelineConfig groups all stage configurations.
type PipelineConfig struct {
	Store    StoreConfig    `json:"store" yaml:"store"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Classify ClassifyConfig `json:"classify" yaml:"classify"`
	Geocode  GeocodeConfig  `json:"geocode" yaml:"geocode"`
	Rank     RankConfig     `json:"rank" yaml:"rank"`
	Schedule ScheduleConfig `json:"schedule" yaml:"schedule"`
}
