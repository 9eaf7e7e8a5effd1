// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists the resource catalog: raw records, classified,
// geocoded, and ranked resources, plus the refresh job audit log. The
// five tables form a 1:1 foreign-key chain; every writer uses upsert
// semantics on the derived record ids so re-running a stage is safe.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/havenmap/resource-engine/pkg/types"
)

const defaultDBPath = "catalog/resources.db"

// Store manages the catalog SQLite database.
type Store struct {
	db *sql.DB
}

// New opens or creates the catalog database and its schema.
func New(cfg types.StoreConfig) (*Store, error) {
	path := cfg.Path
	if path == "" {
		path = defaultDBPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating catalog directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS raw_records (
			id TEXT PRIMARY KEY,
			source_id TEXT NOT NULL,
			source_url TEXT,
			payload TEXT NOT NULL,
			extracted_at TEXT NOT NULL,
			city TEXT,
			state TEXT,
			zip TEXT,
			county TEXT,
			archived INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_source ON raw_records(source_id)`,
		`CREATE TABLE IF NOT EXISTS classified_resources (
			id TEXT PRIMARY KEY,
			raw_record_id TEXT NOT NULL UNIQUE REFERENCES raw_records(id),
			name TEXT,
			category TEXT NOT NULL,
			subcategory TEXT,
			description TEXT,
			services TEXT,
			eligibility TEXT,
			phone TEXT,
			address TEXT,
			city TEXT,
			state TEXT,
			zip TEXT,
			county TEXT,
			hours TEXT,
			target_groups TEXT,
			confidence REAL NOT NULL,
			meta TEXT,
			classified_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_classified_category ON classified_resources(category)`,
		`CREATE TABLE IF NOT EXISTS geocoded_resources (
			id TEXT PRIMARY KEY,
			classified_id TEXT NOT NULL UNIQUE REFERENCES classified_resources(id),
			latitude REAL,
			longitude REAL,
			formatted_address TEXT,
			city TEXT,
			state TEXT,
			zip TEXT,
			county TEXT,
			accuracy TEXT NOT NULL,
			provider TEXT,
			service_radius_m REAL,
			quality TEXT NOT NULL,
			meta TEXT,
			geocoded_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ranked_resources (
			id TEXT PRIMARY KEY,
			geocoded_id TEXT NOT NULL UNIQUE REFERENCES geocoded_resources(id),
			scores TEXT NOT NULL,
			overall REAL NOT NULL,
			tier TEXT NOT NULL,
			meta TEXT,
			ranked_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ranked_tier ON ranked_resources(tier)`,
		`CREATE TABLE IF NOT EXISTS refresh_job_results (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			job_name TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			success INTEGER NOT NULL,
			records_processed INTEGER NOT NULL,
			error_count INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			memory_delta_kb INTEGER NOT NULL,
			errors TEXT,
			metrics TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_job_results_name ON refresh_job_results(job_name, started_at)`,
		`CREATE TABLE IF NOT EXISTS source_sync (
			source_id TEXT PRIMARY KEY,
			last_sync TEXT NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// UpsertRawRecord writes one raw record, refreshing the payload and
// geography hints when the derived id already exists.
func (s *Store) UpsertRawRecord(ctx context.Context, rec types.RawRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO raw_records (id, source_id, source_url, payload, extracted_at, city, state, zip, county, archived)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
		 ON CONFLICT (id) DO UPDATE SET
			payload = excluded.payload,
			extracted_at = excluded.extracted_at,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip,
			county = excluded.county,
			archived = 0`,
		rec.ID, rec.SourceID, rec.SourceURL, string(payload), rec.ExtractedAt.UTC().Format(time.RFC3339),
		rec.City, rec.State, rec.Zip, rec.County)
	if err != nil {
		return fmt.Errorf("upserting raw record %s: %w", rec.ID, err)
	}
	return nil
}

// UpsertRawRecords writes a batch of raw records in one transaction.
func (s *Store) UpsertRawRecords(ctx context.Context, recs []types.RawRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning batch: %w", err)
	}
	for _, rec := range recs {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshaling payload for %s: %w", rec.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO raw_records (id, source_id, source_url, payload, extracted_at, city, state, zip, county, archived)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0)
			 ON CONFLICT (id) DO UPDATE SET
				payload = excluded.payload,
				extracted_at = excluded.extracted_at,
				city = excluded.city,
				state = excluded.state,
				zip = excluded.zip,
				county = excluded.county,
				archived = 0`,
			rec.ID, rec.SourceID, rec.SourceURL, string(payload), rec.ExtractedAt.UTC().Format(time.RFC3339),
			rec.City, rec.State, rec.Zip, rec.County); err != nil {
			tx.Rollback()
			return fmt.Errorf("upserting raw record %s: %w", rec.ID, err)
		}
	}
	return tx.Commit()
}

// TouchSourceSync records the time a source was last ingested successfully.
func (s *Store) TouchSourceSync(ctx context.Context, sourceID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO source_sync (source_id, last_sync) VALUES (?, ?)
		 ON CONFLICT (source_id) DO UPDATE SET last_sync = excluded.last_sync`,
		sourceID, at.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("touching source sync for %s: %w", sourceID, err)
	}
	return nil
}

// UpsertClassified writes one classified resource keyed by its derived id.
func (s *Store) UpsertClassified(ctx context.Context, res types.ClassifiedResource) error {
	services, _ := json.Marshal(res.Services)
	groups, _ := json.Marshal(res.TargetGroups)
	meta, err := json.Marshal(res.Meta)
	if err != nil {
		return fmt.Errorf("marshaling classification meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO classified_resources
			(id, raw_record_id, name, category, subcategory, description, services, eligibility,
			 phone, address, city, state, zip, county, hours, target_groups, confidence, meta, classified_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			subcategory = excluded.subcategory,
			description = excluded.description,
			services = excluded.services,
			eligibility = excluded.eligibility,
			phone = excluded.phone,
			address = excluded.address,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip,
			county = excluded.county,
			hours = excluded.hours,
			target_groups = excluded.target_groups,
			confidence = excluded.confidence,
			meta = excluded.meta,
			classified_at = excluded.classified_at`,
		res.ID, res.RawRecordID, res.Name, string(res.Category), res.Subcategory, res.Description,
		string(services), res.Eligibility, res.Phone, res.Address, res.City, res.State, res.Zip,
		res.County, res.Hours, string(groups), res.Confidence, string(meta),
		res.ClassifiedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting classified resource %s: %w", res.ID, err)
	}
	return nil
}

// UpsertGeocoded writes one geocoded resource keyed by its derived id.
func (s *Store) UpsertGeocoded(ctx context.Context, res types.GeocodedResource) error {
	meta, err := json.Marshal(res.Meta)
	if err != nil {
		return fmt.Errorf("marshaling geocode meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO geocoded_resources
			(id, classified_id, latitude, longitude, formatted_address, city, state, zip, county,
			 accuracy, provider, service_radius_m, quality, meta, geocoded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			formatted_address = excluded.formatted_address,
			city = excluded.city,
			state = excluded.state,
			zip = excluded.zip,
			county = excluded.county,
			accuracy = excluded.accuracy,
			provider = excluded.provider,
			service_radius_m = excluded.service_radius_m,
			quality = excluded.quality,
			meta = excluded.meta,
			geocoded_at = excluded.geocoded_at`,
		res.ID, res.ClassifiedID, res.Latitude, res.Longitude, res.FormattedAddress,
		res.City, res.State, res.Zip, res.County, string(res.Accuracy), res.Provider,
		res.ServiceRadiusM, string(res.Quality), string(meta),
		res.GeocodedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting geocoded resource %s: %w", res.ID, err)
	}
	return nil
}

// UpsertRanked writes one ranked resource keyed by its derived id.
func (s *Store) UpsertRanked(ctx context.Context, res types.RankedResource) error {
	scores, err := json.Marshal(res.Scores)
	if err != nil {
		return fmt.Errorf("marshaling sub-scores: %w", err)
	}
	meta, err := json.Marshal(res.Meta)
	if err != nil {
		return fmt.Errorf("marshaling rank meta: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ranked_resources (id, geocoded_id, scores, overall, tier, meta, ranked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			scores = excluded.scores,
			overall = excluded.overall,
			tier = excluded.tier,
			meta = excluded.meta,
			ranked_at = excluded.ranked_at`,
		res.ID, res.GeocodedID, string(scores), res.Overall, string(res.Tier), string(meta),
		res.RankedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("upserting ranked resource %s: %w", res.ID, err)
	}
	return nil
}

// AppendJobResult writes one execution record to the audit log.
func (s *Store) AppendJobResult(ctx context.Context, r types.RefreshJobResult) error {
	errs, _ := json.Marshal(r.Errors)
	metrics, _ := json.Marshal(r.Metrics)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_job_results
			(job_name, started_at, finished_at, success, records_processed, error_count,
			 duration_ms, memory_delta_kb, errors, metrics)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.JobName, r.StartedAt.UTC().Format(time.RFC3339), r.FinishedAt.UTC().Format(time.RFC3339),
		boolToInt(r.Success), r.RecordsProcessed, r.ErrorCount, r.DurationMS, r.MemoryDeltaKB,
		string(errs), string(metrics))
	if err != nil {
		return fmt.Errorf("appending job result for %s: %w", r.JobName, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
