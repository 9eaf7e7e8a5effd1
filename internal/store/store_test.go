// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(types.StoreConfig{Path: filepath.Join(t.TempDir(), "catalog", "resources.db")})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func rawRecord(id string, extractedAt time.Time) types.RawRecord {
	return types.RawRecord{
		ID:          id,
		SourceID:    "city-foodbank",
		SourceURL:   "https://example.org/foodbanks.json",
		Payload:     map[string]string{"name": "Harbor House", "address": "12 Main St"},
		ExtractedAt: extractedAt,
		City:        "Springfield",
		State:       "IL",
	}
}

func classified(id, rawID string, confidence float64) types.ClassifiedResource {
	return types.ClassifiedResource{
		ID:           id,
		RawRecordID:  rawID,
		Name:         "Harbor House",
		Category:     types.CategoryShelterHousing,
		Services:     []string{"shelter", "meals"},
		Address:      "12 Main St",
		City:         "Springfield",
		State:        "IL",
		Confidence:   confidence,
		ClassifiedAt: time.Now(),
	}
}

func geocoded(id, clsID string, quality types.QualityGrade) types.GeocodedResource {
	return types.GeocodedResource{
		ID:             id,
		ClassifiedID:   clsID,
		Latitude:       39.8,
		Longitude:      -89.6,
		Accuracy:       types.AccuracyRooftop,
		Provider:       "nominatim",
		ServiceRadiusM: 10000,
		Quality:        quality,
		GeocodedAt:     time.Now(),
	}
}

func ranked(id, geoID string, overall float64) types.RankedResource {
	return types.RankedResource{
		ID:         id,
		GeocodedID: geoID,
		Scores:     types.SubScores{Availability: 80},
		Overall:    overall,
		Tier:       types.TierHigh,
		RankedAt:   time.Now(),
	}
}

func TestUpsertRawRecordRefreshes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := rawRecord("src-1", time.Now().Add(-time.Hour))
	if err := s.UpsertRawRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertRawRecord() error: %v", err)
	}

	rec.Payload["name"] = "Harbor House (renamed)"
	rec.ExtractedAt = time.Now()
	if err := s.UpsertRawRecord(ctx, rec); err != nil {
		t.Fatalf("UpsertRawRecord() refresh error: %v", err)
	}

	recs, err := s.RawRecordsBySource(ctx, "city-foodbank")
	if err != nil {
		t.Fatalf("RawRecordsBySource() error: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 (upsert, not duplicate)", len(recs))
	}
	if recs[0].Payload["name"] != "Harbor House (renamed)" {
		t.Errorf("payload not refreshed: %v", recs[0].Payload)
	}
}

func TestUpsertRawRecordsBatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	batch := []types.RawRecord{
		rawRecord("src-1", time.Now()),
		rawRecord("src-2", time.Now()),
		rawRecord("src-3", time.Now()),
	}
	if err := s.UpsertRawRecords(ctx, batch); err != nil {
		t.Fatalf("UpsertRawRecords() error: %v", err)
	}

	counts, err := s.CountStages(ctx)
	if err != nil {
		t.Fatalf("CountStages() error: %v", err)
	}
	if counts.Raw != 3 {
		t.Errorf("raw count = %d, want 3", counts.Raw)
	}
}

func TestUnclassifiedRawRecordsAntiJoin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRawRecord(ctx, rawRecord("src-1", time.Now().Add(-time.Minute))); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRawRecord(ctx, rawRecord("src-2", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertClassified(ctx, classified("cls-src-1", "src-1", 80)); err != nil {
		t.Fatal(err)
	}

	pending, err := s.UnclassifiedRawRecords(ctx, 10)
	if err != nil {
		t.Fatalf("UnclassifiedRawRecords() error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "src-2" {
		t.Errorf("pending = %v, want only src-2", pending)
	}
}

func TestUngeocodedClassifiedRequiresAddress(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRawRecord(ctx, rawRecord("src-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRawRecord(ctx, rawRecord("src-2", time.Now())); err != nil {
		t.Fatal(err)
	}
	withAddr := classified("cls-src-1", "src-1", 80)
	noAddr := classified("cls-src-2", "src-2", 80)
	noAddr.Address = ""
	if err := s.UpsertClassified(ctx, withAddr); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertClassified(ctx, noAddr); err != nil {
		t.Fatal(err)
	}

	pending, err := s.UngeocodedClassified(ctx, 10)
	if err != nil {
		t.Fatalf("UngeocodedClassified() error: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "cls-src-1" {
		t.Errorf("pending = %v, want only the addressable resource", pending)
	}
	if len(pending[0].Services) != 2 {
		t.Errorf("services not round-tripped: %v", pending[0].Services)
	}

	if err := s.UpsertGeocoded(ctx, geocoded("geo-cls-src-1", "cls-src-1", types.QualityExcellent)); err != nil {
		t.Fatal(err)
	}
	pending, err = s.UngeocodedClassified(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("geocoded resource still pending: %v", pending)
	}
}

func TestLowConfidenceClassifiedOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, conf := range []float64{75, 30, 55} {
		id := string(rune('a' + i))
		if err := s.UpsertRawRecord(ctx, rawRecord("src-"+id, time.Now())); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertClassified(ctx, classified("cls-src-"+id, "src-"+id, conf)); err != nil {
			t.Fatal(err)
		}
	}

	low, err := s.LowConfidenceClassified(ctx, 60, 10)
	if err != nil {
		t.Fatalf("LowConfidenceClassified() error: %v", err)
	}
	if len(low) != 2 {
		t.Fatalf("got %d resources under 60, want 2", len(low))
	}
	if low[0].Confidence != 30 || low[1].Confidence != 55 {
		t.Errorf("order = %v then %v, want lowest first", low[0].Confidence, low[1].Confidence)
	}
}

func TestUnrankedGeocodedJoin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	extracted := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if err := s.UpsertRawRecord(ctx, rawRecord("src-1", extracted)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertClassified(ctx, classified("cls-src-1", "src-1", 82)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertGeocoded(ctx, geocoded("geo-cls-src-1", "cls-src-1", types.QualityGood)); err != nil {
		t.Fatal(err)
	}

	inputs, err := s.UnrankedGeocoded(ctx, 10)
	if err != nil {
		t.Fatalf("UnrankedGeocoded() error: %v", err)
	}
	if len(inputs) != 1 {
		t.Fatalf("got %d inputs, want 1", len(inputs))
	}
	in := inputs[0]
	if in.Classified.ID != "cls-src-1" || in.Geocoded.ID != "geo-cls-src-1" {
		t.Errorf("join ids = %s/%s", in.Classified.ID, in.Geocoded.ID)
	}
	if !in.ExtractedAt.Equal(extracted) {
		t.Errorf("extracted_at = %v, want %v", in.ExtractedAt, extracted)
	}

	if err := s.UpsertRanked(ctx, ranked("rnk-geo-cls-src-1", "geo-cls-src-1", 72.5)); err != nil {
		t.Fatal(err)
	}
	inputs, err = s.UnrankedGeocoded(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(inputs) != 0 {
		t.Errorf("ranked resource still unranked: %d inputs", len(inputs))
	}

	all, err := s.AllRankingInputs(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Errorf("AllRankingInputs() = %d inputs, want 1 regardless of rank state", len(all))
	}
}

func TestLowQualityGeocodedFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, q := range []types.QualityGrade{types.QualityExcellent, types.QualityPoor, types.QualityFailed} {
		id := string(rune('a' + i))
		if err := s.UpsertRawRecord(ctx, rawRecord("src-"+id, time.Now())); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertClassified(ctx, classified("cls-src-"+id, "src-"+id, 80)); err != nil {
			t.Fatal(err)
		}
		if err := s.UpsertGeocoded(ctx, geocoded("geo-cls-src-"+id, "cls-src-"+id, q)); err != nil {
			t.Fatal(err)
		}
	}

	low, err := s.LowQualityGeocoded(ctx, 10)
	if err != nil {
		t.Fatalf("LowQualityGeocoded() error: %v", err)
	}
	if len(low) != 2 {
		t.Errorf("got %d low-quality geocodes, want poor and failed only", len(low))
	}
}

func TestGetRankedRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.UpsertRawRecord(ctx, rawRecord("src-1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertClassified(ctx, classified("cls-src-1", "src-1", 80)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertGeocoded(ctx, geocoded("geo-cls-src-1", "cls-src-1", types.QualityGood)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRanked(ctx, ranked("rnk-geo-cls-src-1", "geo-cls-src-1", 72.5)); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetRanked(ctx, "geo-cls-src-1")
	if err != nil {
		t.Fatalf("GetRanked() error: %v", err)
	}
	if got == nil || got.Overall != 72.5 || got.Tier != types.TierHigh {
		t.Errorf("ranked = %+v", got)
	}
	if got.Scores.Availability != 80 {
		t.Errorf("sub-scores not round-tripped: %v", got.Scores)
	}

	missing, err := s.GetRanked(ctx, "geo-absent")
	if err != nil {
		t.Fatalf("GetRanked(absent) error: %v", err)
	}
	if missing != nil {
		t.Errorf("absent id = %+v, want nil", missing)
	}
}

func TestCleanupOrphans(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := rawRecord("src-1", time.Now().Add(-48*time.Hour))
	if err := s.UpsertRawRecord(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertClassified(ctx, classified("cls-src-1", "src-1", 80)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertGeocoded(ctx, geocoded("geo-cls-src-1", "cls-src-1", types.QualityGood)); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertRanked(ctx, ranked("rnk-geo-cls-src-1", "geo-cls-src-1", 60)); err != nil {
		t.Fatal(err)
	}

	// Archiving the raw record orphans the whole downstream chain.
	n, err := s.ArchiveStale(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("ArchiveStale() error: %v", err)
	}
	if n != 1 {
		t.Fatalf("archived %d records, want 1", n)
	}

	removed, err := s.CleanupOrphans(ctx)
	if err != nil {
		t.Fatalf("CleanupOrphans() error: %v", err)
	}
	if removed != 3 {
		t.Errorf("removed %d rows, want classified, geocoded, and ranked", removed)
	}

	counts, err := s.CountStages(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if counts.Raw != 0 || counts.Classified != 0 || counts.Geocoded != 0 || counts.Ranked != 0 {
		t.Errorf("counts = %+v, want an empty live pipeline", counts)
	}
}

func TestJobResultsSince(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	older := types.RefreshJobResult{
		JobName:    "full_ingestion",
		StartedAt:  now.Add(-48 * time.Hour),
		FinishedAt: now.Add(-48 * time.Hour).Add(time.Minute),
		Success:    true,
	}
	recent := types.RefreshJobResult{
		JobName:          "classify_new",
		StartedAt:        now.Add(-time.Hour),
		FinishedAt:       now.Add(-time.Hour).Add(time.Minute),
		Success:          false,
		RecordsProcessed: 40,
		ErrorCount:       2,
		Errors:           []string{"engine unavailable", "engine unavailable"},
	}
	if err := s.AppendJobResult(ctx, older); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendJobResult(ctx, recent); err != nil {
		t.Fatal(err)
	}

	results, err := s.JobResultsSince(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("JobResultsSince() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want the recent one only", len(results))
	}
	r := results[0]
	if r.JobName != "classify_new" || r.Success || r.ErrorCount != 2 {
		t.Errorf("result = %+v", r)
	}
	if len(r.Errors) != 2 {
		t.Errorf("errors not round-tripped: %v", r.Errors)
	}
}

func TestTouchSourceSyncIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.TouchSourceSync(ctx, "city-foodbank", time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("TouchSourceSync() error: %v", err)
	}
	if err := s.TouchSourceSync(ctx, "city-foodbank", time.Now()); err != nil {
		t.Fatalf("TouchSourceSync() update error: %v", err)
	}
}
