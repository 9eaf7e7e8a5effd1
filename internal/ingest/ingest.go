// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ingest

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

// maxResponseBytes caps how much of a feed is read; directories are small
// and a runaway response should not exhaust memory.
const maxResponseBytes = 32 << 20

// Storage is the subset of the catalog store the ingestion engine writes to.
type Storage interface {
	UpsertRawRecords(ctx context.Context, recs []types.RawRecord) error
	TouchSourceSync(ctx context.Context, sourceID string, at time.Time) error
}

// Engine pulls listings from registered sources. One engine instance owns
// its rate window; construct it once at process start.
type Engine struct {
	store   Storage
	client  *http.Client
	rates   *RateWindow
	sources []types.DataSourceDescriptor
	cfg     types.IngestConfig
}

// NewEngine builds an ingestion engine over the given source registry.
func NewEngine(store Storage, client *http.Client, sources []types.DataSourceDescriptor, cfg types.IngestConfig) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Engine{
		store:   store,
		client:  client,
		rates:   NewRateWindow(),
		sources: sources,
		cfg:     cfg,
	}
}

// BatchSummary holds the outcome of an ingestion run across sources.
type BatchSummary struct {
	Succeeded int
	Skipped   int
	Failed    int
	Records   int
}

// Total returns the number of sources processed.
func (s BatchSummary) Total() int {
	return s.Succeeded + s.Skipped + s.Failed
}

// HasFailures reports whether any source failed.
func (s BatchSummary) HasFailures() bool {
	return s.Failed > 0
}

// IngestFromSource fetches one source and returns its normalized records.
// It does not write to the store; IngestAll handles persistence so a single
// batch transaction covers each source.
func (e *Engine) IngestFromSource(ctx context.Context, src types.DataSourceDescriptor) ([]types.RawRecord, error) {
	if !e.rates.Allow(src.ID, src.RateLimitPerHour) {
		return nil, fmt.Errorf("source %s: hourly rate limit (%d) reached", src.ID, src.RateLimitPerHour)
	}

	body, err := e.fetch(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}

	items, err := parseBody(src, body)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", src.ID, err)
	}

	now := time.Now()
	var recs []types.RawRecord
	for _, item := range items {
		rec, ok := buildRecord(src, item, now)
		if !ok {
			continue
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// IngestAll runs every registered source, optionally filtered by city.
// Failures are isolated per source: logged to w, counted, and the run
// continues. Retry is the scheduler's job, not this engine's.
func (e *Engine) IngestAll(ctx context.Context, cityFilter string, w io.Writer) (BatchSummary, error) {
	var summary BatchSummary

	for _, src := range e.sources {
		if cityFilter != "" && !strings.EqualFold(src.City, cityFilter) {
			summary.Skipped++
			continue
		}

		recs, err := e.IngestFromSource(ctx, src)
		if err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", src.ID, err)
			summary.Failed++
			continue
		}

		if err := e.writeBatches(ctx, recs); err != nil {
			fmt.Fprintf(w, "failed:  %s (%v)\n", src.ID, err)
			summary.Failed++
			continue
		}

		if err := e.store.TouchSourceSync(ctx, src.ID, time.Now()); err != nil {
			fmt.Fprintf(w, "warning: %s sync timestamp not updated: %v\n", src.ID, err)
		}

		fmt.Fprintf(w, "ingested: %s (%d records)\n", src.ID, len(recs))
		summary.Succeeded++
		summary.Records += len(recs)
	}

	fmt.Fprintf(w, "\nIngestion summary: %d succeeded, %d skipped, %d failed, %d records\n",
		summary.Succeeded, summary.Skipped, summary.Failed, summary.Records)
	return summary, nil
}

func (e *Engine) writeBatches(ctx context.Context, recs []types.RawRecord) error {
	size := e.cfg.BatchSize
	for start := 0; start < len(recs); start += size {
		end := start + size
		if end > len(recs) {
			end = len(recs)
		}
		if err := e.store.UpsertRawRecords(ctx, recs[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) fetch(ctx context.Context, src types.DataSourceDescriptor) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", e.cfg.UserAgent)
	if src.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+src.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, src.URL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	return body, nil
}

// buildRecord normalizes one raw item into a RawRecord. Items without a
// content key (no natural id and no name) carry no stable identity and are
// dropped.
func buildRecord(src types.DataSourceDescriptor, item map[string]string, now time.Time) (types.RawRecord, bool) {
	ext := src.Extraction

	contentKey := types.FirstField(item, ext.NaturalID...)
	if contentKey == "" {
		contentKey = types.FirstField(item, ext.Name...)
	}
	if contentKey == "" {
		return types.RawRecord{}, false
	}

	city := types.FirstField(item, ext.City...)
	if city == "" {
		city = src.City
	}
	state := types.FirstField(item, ext.State...)
	if state == "" {
		state = src.State
	}

	return types.RawRecord{
		ID:          RecordID(src.ID, contentKey),
		SourceID:    src.ID,
		SourceURL:   src.URL,
		Payload:     item,
		ExtractedAt: now,
		City:        city,
		State:       state,
		Zip:         types.FirstField(item, ext.Zip...),
		County:      types.FirstField(item, ext.County...),
	}, true
}

// RecordID derives the stable record id from the source id and a content
// key. Re-ingesting the same listing always yields the same id, so writes
// upsert instead of duplicating.
func RecordID(sourceID, contentKey string) string {
	h := fnv.New64a()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(contentKey))))
	return fmt.Sprintf("%s-%016x", sourceID, h.Sum64())
}
