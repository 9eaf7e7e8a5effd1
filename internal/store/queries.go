// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/havenmap/resource-engine/pkg/types"
)

// UnclassifiedRawRecords returns up to limit non-archived raw records that
// have no classified row yet, newest first. Eligibility for the next stage
// is decided by this anti-join, not by a status column.
func (s *Store) UnclassifiedRawRecords(ctx context.Context, limit int) ([]types.RawRecord, error) {
	q := sq.Select("r.id", "r.source_id", "r.source_url", "r.payload", "r.extracted_at",
		"r.city", "r.state", "r.zip", "r.county").
		From("raw_records r").
		LeftJoin("classified_resources c ON c.raw_record_id = r.id").
		Where(sq.Eq{"r.archived": 0}).
		Where("c.id IS NULL").
		OrderBy("r.extracted_at DESC").
		Limit(uint64(limit))

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building unclassified query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying unclassified records: %w", err)
	}
	defer rows.Close()

	var recs []types.RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// RawRecordsBySource returns all non-archived raw records for one source.
func (s *Store) RawRecordsBySource(ctx context.Context, sourceID string) ([]types.RawRecord, error) {
	query, args, err := sq.Select("id", "source_id", "source_url", "payload", "extracted_at",
		"city", "state", "zip", "county").
		From("raw_records").
		Where(sq.Eq{"source_id": sourceID, "archived": 0}).
		OrderBy("id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("building source query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records for source %s: %w", sourceID, err)
	}
	defer rows.Close()

	var recs []types.RawRecord
	for rows.Next() {
		rec, err := scanRawRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetRawRecord returns the raw record with the given id, or nil.
func (s *Store) GetRawRecord(ctx context.Context, id string) (*types.RawRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, source_url, payload, extracted_at, city, state, zip, county
		 FROM raw_records WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying raw record %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRawRecord(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRawRecord(rows *sql.Rows) (types.RawRecord, error) {
	var (
		rec         types.RawRecord
		payload     string
		extractedAt string
	)
	if err := rows.Scan(&rec.ID, &rec.SourceID, &rec.SourceURL, &payload, &extractedAt,
		&rec.City, &rec.State, &rec.Zip, &rec.County); err != nil {
		return rec, fmt.Errorf("scanning raw record: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
		return rec, fmt.Errorf("decoding payload for %s: %w", rec.ID, err)
	}
	rec.ExtractedAt, _ = time.Parse(time.RFC3339, extractedAt)
	return rec, nil
}

const classifiedCols = `id, raw_record_id, name, category, subcategory, description, services,
	eligibility, phone, address, city, state, zip, county, hours, target_groups,
	confidence, meta, classified_at`

// GetClassified returns the classified resource with the given id, or nil.
func (s *Store) GetClassified(ctx context.Context, id string) (*types.ClassifiedResource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+classifiedCols+` FROM classified_resources WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying classified resource %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	res, err := scanClassified(rows)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// UngeocodedClassified returns up to limit classified resources that have a
// street address but no geocoded row yet.
func (s *Store) UngeocodedClassified(ctx context.Context, limit int) ([]types.ClassifiedResource, error) {
	return s.selectClassified(ctx, func(q sq.SelectBuilder) sq.SelectBuilder {
		return q.LeftJoin("geocoded_resources g ON g.classified_id = c.id").
			Where("g.id IS NULL").
			Where(sq.NotEq{"c.address": ""}).
			OrderBy("c.classified_at DESC").
			Limit(uint64(limit))
	})
}

// LowConfidenceClassified returns up to limit classified resources whose
// confidence is below threshold, lowest first.
func (s *Store) LowConfidenceClassified(ctx context.Context, threshold float64, limit int) ([]types.ClassifiedResource, error) {
	return s.selectClassified(ctx, func(q sq.SelectBuilder) sq.SelectBuilder {
		return q.Where(sq.Lt{"c.confidence": threshold}).
			OrderBy("c.confidence ASC").
			Limit(uint64(limit))
	})
}

func (s *Store) selectClassified(ctx context.Context, mod func(sq.SelectBuilder) sq.SelectBuilder) ([]types.ClassifiedResource, error) {
	q := sq.Select("c.id", "c.raw_record_id", "c.name", "c.category", "c.subcategory",
		"c.description", "c.services", "c.eligibility", "c.phone", "c.address", "c.city",
		"c.state", "c.zip", "c.county", "c.hours", "c.target_groups", "c.confidence",
		"c.meta", "c.classified_at").
		From("classified_resources c")
	q = mod(q)

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building classified query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying classified resources: %w", err)
	}
	defer rows.Close()

	var out []types.ClassifiedResource
	for rows.Next() {
		res, err := scanClassified(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanClassified(rows *sql.Rows) (types.ClassifiedResource, error) {
	var (
		res          types.ClassifiedResource
		category     string
		services     sql.NullString
		groups       sql.NullString
		meta         sql.NullString
		classifiedAt string
	)
	if err := rows.Scan(&res.ID, &res.RawRecordID, &res.Name, &category, &res.Subcategory,
		&res.Description, &services, &res.Eligibility, &res.Phone, &res.Address, &res.City,
		&res.State, &res.Zip, &res.County, &res.Hours, &groups, &res.Confidence,
		&meta, &classifiedAt); err != nil {
		return res, fmt.Errorf("scanning classified resource: %w", err)
	}
	res.Category = types.Category(category)
	if services.Valid {
		json.Unmarshal([]byte(services.String), &res.Services)
	}
	if groups.Valid {
		json.Unmarshal([]byte(groups.String), &res.TargetGroups)
	}
	if meta.Valid {
		json.Unmarshal([]byte(meta.String), &res.Meta)
	}
	res.ClassifiedAt, _ = time.Parse(time.RFC3339, classifiedAt)
	return res, nil
}

// GetGeocoded returns the geocoded resource with the given id, or nil.
func (s *Store) GetGeocoded(ctx context.Context, id string) (*types.GeocodedResource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, classified_id, latitude, longitude, formatted_address, city, state, zip,
			county, accuracy, provider, service_radius_m, quality, meta, geocoded_at
		 FROM geocoded_resources WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying geocoded resource %s: %w", id, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	res, err := scanGeocoded(rows)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// LowQualityGeocoded returns up to limit geocoded resources whose quality
// grade is poor or failed, for the quality-improvement pass.
func (s *Store) LowQualityGeocoded(ctx context.Context, limit int) ([]types.GeocodedResource, error) {
	query, args, err := sq.Select("id", "classified_id", "latitude", "longitude",
		"formatted_address", "city", "state", "zip", "county", "accuracy", "provider",
		"service_radius_m", "quality", "meta", "geocoded_at").
		From("geocoded_resources").
		Where(sq.Eq{"quality": []string{string(types.QualityPoor), string(types.QualityFailed)}}).
		OrderBy("geocoded_at ASC").
		Limit(uint64(limit)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("building low-quality query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying low-quality geocodes: %w", err)
	}
	defer rows.Close()

	var out []types.GeocodedResource
	for rows.Next() {
		res, err := scanGeocoded(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanGeocoded(rows *sql.Rows) (types.GeocodedResource, error) {
	var (
		res        types.GeocodedResource
		accuracy   string
		quality    string
		meta       sql.NullString
		geocodedAt string
	)
	if err := rows.Scan(&res.ID, &res.ClassifiedID, &res.Latitude, &res.Longitude,
		&res.FormattedAddress, &res.City, &res.State, &res.Zip, &res.County,
		&accuracy, &res.Provider, &res.ServiceRadiusM, &quality, &meta, &geocodedAt); err != nil {
		return res, fmt.Errorf("scanning geocoded resource: %w", err)
	}
	res.Accuracy = types.Accuracy(accuracy)
	res.Quality = types.QualityGrade(quality)
	if meta.Valid {
		json.Unmarshal([]byte(meta.String), &res.Meta)
	}
	res.GeocodedAt, _ = time.Parse(time.RFC3339, geocodedAt)
	return res, nil
}

// UnrankedGeocoded returns up to limit geocoded resources that have no
// ranked row yet, joined with their classified and raw rows.
func (s *Store) UnrankedGeocoded(ctx context.Context, limit int) ([]types.RankingInput, error) {
	return s.selectRankingInputs(ctx, limit, true)
}

// AllRankingInputs returns up to limit geocoded resources joined with
// their upstream rows, regardless of rank state. Used by re-ranking.
func (s *Store) AllRankingInputs(ctx context.Context, limit int) ([]types.RankingInput, error) {
	return s.selectRankingInputs(ctx, limit, false)
}

func (s *Store) selectRankingInputs(ctx context.Context, limit int, onlyUnranked bool) ([]types.RankingInput, error) {
	q := sq.Select(
		"c.id", "c.raw_record_id", "c.name", "c.category", "c.subcategory", "c.description",
		"c.services", "c.eligibility", "c.phone", "c.address", "c.city", "c.state", "c.zip",
		"c.county", "c.hours", "c.target_groups", "c.confidence", "c.meta", "c.classified_at",
		"g.id", "g.classified_id", "g.latitude", "g.longitude", "g.formatted_address",
		"g.city", "g.state", "g.zip", "g.county", "g.accuracy", "g.provider",
		"g.service_radius_m", "g.quality", "g.meta", "g.geocoded_at",
		"r.extracted_at").
		From("geocoded_resources g").
		Join("classified_resources c ON c.id = g.classified_id").
		Join("raw_records r ON r.id = c.raw_record_id").
		OrderBy("g.geocoded_at DESC").
		Limit(uint64(limit))
	if onlyUnranked {
		q = q.LeftJoin("ranked_resources k ON k.geocoded_id = g.id").
			Where("k.id IS NULL")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building ranking input query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying ranking inputs: %w", err)
	}
	defer rows.Close()

	var out []types.RankingInput
	for rows.Next() {
		in, err := scanRankingInput(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func scanRankingInput(rows *sql.Rows) (types.RankingInput, error) {
	var (
		in           types.RankingInput
		category     string
		services     sql.NullString
		groups       sql.NullString
		cMeta        sql.NullString
		classifiedAt string
		accuracy     string
		quality      string
		gMeta        sql.NullString
		geocodedAt   string
		extractedAt  string
	)
	c := &in.Classified
	g := &in.Geocoded
	if err := rows.Scan(&c.ID, &c.RawRecordID, &c.Name, &category, &c.Subcategory,
		&c.Description, &services, &c.Eligibility, &c.Phone, &c.Address, &c.City, &c.State,
		&c.Zip, &c.County, &c.Hours, &groups, &c.Confidence, &cMeta, &classifiedAt,
		&g.ID, &g.ClassifiedID, &g.Latitude, &g.Longitude, &g.FormattedAddress,
		&g.City, &g.State, &g.Zip, &g.County, &accuracy, &g.Provider,
		&g.ServiceRadiusM, &quality, &gMeta, &geocodedAt, &extractedAt); err != nil {
		return in, fmt.Errorf("scanning ranking input: %w", err)
	}
	c.Category = types.Category(category)
	if services.Valid {
		json.Unmarshal([]byte(services.String), &c.Services)
	}
	if groups.Valid {
		json.Unmarshal([]byte(groups.String), &c.TargetGroups)
	}
	if cMeta.Valid {
		json.Unmarshal([]byte(cMeta.String), &c.Meta)
	}
	c.ClassifiedAt, _ = time.Parse(time.RFC3339, classifiedAt)
	g.Accuracy = types.Accuracy(accuracy)
	g.Quality = types.QualityGrade(quality)
	if gMeta.Valid {
		json.Unmarshal([]byte(gMeta.String), &g.Meta)
	}
	g.GeocodedAt, _ = time.Parse(time.RFC3339, geocodedAt)
	in.ExtractedAt, _ = time.Parse(time.RFC3339, extractedAt)
	return in, nil
}

// GetRanked returns the ranked resource for a geocoded id, or nil.
func (s *Store) GetRanked(ctx context.Context, geocodedID string) (*types.RankedResource, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, geocoded_id, scores, overall, tier, meta, ranked_at
		 FROM ranked_resources WHERE geocoded_id = ?`, geocodedID)
	if err != nil {
		return nil, fmt.Errorf("querying ranked resource for %s: %w", geocodedID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}

	var (
		res      types.RankedResource
		scores   string
		tier     string
		meta     sql.NullString
		rankedAt string
	)
	if err := rows.Scan(&res.ID, &res.GeocodedID, &scores, &res.Overall, &tier, &meta, &rankedAt); err != nil {
		return nil, fmt.Errorf("scanning ranked resource: %w", err)
	}
	json.Unmarshal([]byte(scores), &res.Scores)
	res.Tier = types.PriorityTier(tier)
	if meta.Valid {
		json.Unmarshal([]byte(meta.String), &res.Meta)
	}
	res.RankedAt, _ = time.Parse(time.RFC3339, rankedAt)
	return &res, nil
}

// StageCounts holds row totals per pipeline table.
type StageCounts struct {
	Raw        int `json:"raw"`
	Classified int `json:"classified"`
	Geocoded   int `json:"geocoded"`
	Ranked     int `json:"ranked"`
}

// CountStages returns row totals for the four pipeline tables. Archived raw
// records are excluded so conversion ratios reflect live work.
func (s *Store) CountStages(ctx context.Context) (StageCounts, error) {
	var counts StageCounts
	row := s.db.QueryRowContext(ctx, `SELECT
		(SELECT COUNT(*) FROM raw_records WHERE archived = 0),
		(SELECT COUNT(*) FROM classified_resources),
		(SELECT COUNT(*) FROM geocoded_resources),
		(SELECT COUNT(*) FROM ranked_resources)`)
	if err := row.Scan(&counts.Raw, &counts.Classified, &counts.Geocoded, &counts.Ranked); err != nil {
		return counts, fmt.Errorf("counting stages: %w", err)
	}
	return counts, nil
}

// JobResultsSince returns audit log entries whose start time is at or after t.
func (s *Store) JobResultsSince(ctx context.Context, t time.Time) ([]types.RefreshJobResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_name, started_at, finished_at, success, records_processed, error_count,
			duration_ms, memory_delta_kb, errors, metrics
		 FROM refresh_job_results WHERE started_at >= ? ORDER BY started_at DESC`,
		t.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("querying job results: %w", err)
	}
	defer rows.Close()

	var out []types.RefreshJobResult
	for rows.Next() {
		var (
			r          types.RefreshJobResult
			started    string
			finished   string
			success    int
			errsJSON   sql.NullString
			metricJSON sql.NullString
		)
		if err := rows.Scan(&r.JobName, &started, &finished, &success, &r.RecordsProcessed,
			&r.ErrorCount, &r.DurationMS, &r.MemoryDeltaKB, &errsJSON, &metricJSON); err != nil {
			return nil, fmt.Errorf("scanning job result: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339, started)
		r.FinishedAt, _ = time.Parse(time.RFC3339, finished)
		r.Success = success == 1
		if errsJSON.Valid {
			json.Unmarshal([]byte(errsJSON.String), &r.Errors)
		}
		if metricJSON.Valid {
			json.Unmarshal([]byte(metricJSON.String), &r.Metrics)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CleanupOrphans removes downstream rows whose upstream row vanished, then
// refreshes the query planner statistics. Returns the number of rows removed.
func (s *Store) CleanupOrphans(ctx context.Context) (int64, error) {
	var removed int64
	// Children first to satisfy the foreign keys; each orphan test walks the
	// chain back to a live raw record so one pass clears the whole chain.
	statements := []string{
		`DELETE FROM ranked_resources WHERE geocoded_id NOT IN (
			SELECT g.id FROM geocoded_resources g
			JOIN classified_resources c ON c.id = g.classified_id
			JOIN raw_records r ON r.id = c.raw_record_id AND r.archived = 0)`,
		`DELETE FROM geocoded_resources WHERE classified_id NOT IN (
			SELECT c.id FROM classified_resources c
			JOIN raw_records r ON r.id = c.raw_record_id AND r.archived = 0)`,
		`DELETE FROM classified_resources WHERE raw_record_id NOT IN (
			SELECT id FROM raw_records WHERE archived = 0)`,
	}
	for _, stmt := range statements {
		res, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return removed, fmt.Errorf("removing orphans: %w", err)
		}
		n, _ := res.RowsAffected()
		removed += n
	}
	if _, err := s.db.ExecContext(ctx, `ANALYZE`); err != nil {
		return removed, fmt.Errorf("refreshing statistics: %w", err)
	}
	return removed, nil
}

// ArchiveStale sets the archival flag on raw records extracted before cutoff.
// Archived records stop feeding the pipeline but remain for audit.
func (s *Store) ArchiveStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE raw_records SET archived = 1 WHERE archived = 0 AND extracted_at < ?`,
		cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("archiving stale records: %w", err)
	}
	return res.RowsAffected()
}
