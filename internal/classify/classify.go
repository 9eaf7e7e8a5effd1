// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

// Candidate raw-field names for the analysis text and contact fields.
// Directories disagree on naming; these lists cover the variants seen
// across the registry.
var (
	nameFields        = []string{"name", "title", "organization", "org_name", "agency", "provider_name"}
	descFields        = []string{"description", "desc", "details", "about", "summary"}
	serviceFields     = []string{"services", "programs", "service_type", "offerings"}
	categoryHintField = []string{"category", "type", "service_category"}
	populationFields  = []string{"target_population", "population", "serves", "clients"}
	eligibilityFields = []string{"eligibility", "requirements", "criteria"}
	notesFields       = []string{"notes", "comments", "additional_info"}
	hoursFields       = []string{"hours", "hours_of_operation", "schedule", "open_hours"}
	phoneFields       = []string{"phone", "telephone", "phone_number", "contact_phone"}
	addressFields     = []string{"address", "street_address", "address1", "location"}
)

const defaultMaxAnalysisChars = 2000

// Storage is the subset of the catalog store the classifier uses.
type Storage interface {
	UnclassifiedRawRecords(ctx context.Context, limit int) ([]types.RawRecord, error)
	GetRawRecord(ctx context.Context, id string) (*types.RawRecord, error)
	LowConfidenceClassified(ctx context.Context, threshold float64, limit int) ([]types.ClassifiedResource, error)
	UpsertClassified(ctx context.Context, res types.ClassifiedResource) error
}

// Classifier reads unclassified raw records and writes classified
// resources. One record at a time: the fixed inter-call delay respects the
// engine's rate limits, so there is no fan-out.
type Classifier struct {
	store  Storage
	engine Engine
	cfg    types.ClassifyConfig
}

// New builds a classifier over the given engine.
func New(store Storage, engine Engine, cfg types.ClassifyConfig) *Classifier {
	if cfg.MaxAnalysisChars <= 0 {
		cfg.MaxAnalysisChars = defaultMaxAnalysisChars
	}
	if cfg.CallDelay < 0 {
		cfg.CallDelay = 0
	}
	return &Classifier{store: store, engine: engine, cfg: cfg}
}

// BatchSummary holds running counters from a classification run.
type BatchSummary struct {
	Processed     int
	Succeeded     int
	Failed        int
	AvgConfidence float64
}

// ClassifyPending classifies up to limit unclassified records, newest
// first. Engine failures skip the record (counted as failed) so it stays
// eligible for a future pass; nothing is poisoned.
func (c *Classifier) ClassifyPending(ctx context.Context, limit int, w io.Writer) (BatchSummary, error) {
	records, err := c.store.UnclassifiedRawRecords(ctx, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("selecting unclassified records: %w", err)
	}

	var summary BatchSummary
	var confidenceSum float64

	for i, rec := range records {
		if i > 0 && c.cfg.CallDelay > 0 {
			time.Sleep(c.cfg.CallDelay)
		}
		summary.Processed++

		res, err := c.ClassifyRecord(ctx, rec)
		if err != nil {
			fmt.Fprintf(w, "failed:     %s (%v)\n", rec.ID, err)
			summary.Failed++
			continue
		}

		if err := c.store.UpsertClassified(ctx, *res); err != nil {
			fmt.Fprintf(w, "failed:     %s (%v)\n", rec.ID, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "classified: %s -> %s (%.0f)\n", rec.ID, res.Category, res.Confidence)
		summary.Succeeded++
		confidenceSum += res.Confidence
	}

	if summary.Succeeded > 0 {
		summary.AvgConfidence = confidenceSum / float64(summary.Succeeded)
	}
	fmt.Fprintf(w, "\nClassification summary: %d processed, %d succeeded, %d failed, avg confidence %.1f\n",
		summary.Processed, summary.Succeeded, summary.Failed, summary.AvgConfidence)
	return summary, nil
}

// ClassifyRecord classifies one raw record without persisting it.
func (c *Classifier) ClassifyRecord(ctx context.Context, rec types.RawRecord) (*types.ClassifiedResource, error) {
	text := c.AnalysisText(rec)
	if text == "" {
		return nil, fmt.Errorf("record %s has no text fields to analyze", rec.ID)
	}

	result, err := c.engine.Classify(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("classification call: %w", err)
	}
	if result.Category == "" {
		return nil, fmt.Errorf("engine returned no category for %s", rec.ID)
	}

	services := result.Services
	if len(services) == 0 {
		if raw := rec.First(serviceFields...); raw != "" {
			services = splitList(raw)
		}
	}
	eligibility := result.EligibilityCriteria
	if eligibility == "" {
		eligibility = rec.First(eligibilityFields...)
	}

	return &types.ClassifiedResource{
		ID:           "cls-" + rec.ID,
		RawRecordID:  rec.ID,
		Name:         rec.First(nameFields...),
		Category:     result.Category,
		Subcategory:  result.Subcategory,
		Description:  rec.First(descFields...),
		Services:     services,
		Eligibility:  eligibility,
		Phone:        rec.First(phoneFields...),
		Address:      rec.First(addressFields...),
		City:         rec.City,
		State:        rec.State,
		Zip:          rec.Zip,
		County:       rec.County,
		Hours:        rec.First(hoursFields...),
		TargetGroups: result.TargetGroups,
		Confidence:   result.ConfidenceScore,
		Meta: types.ClassificationMeta{
			Engine:        c.engine.Name(),
			KeywordsFound: result.KeywordsFound,
			Alternatives:  result.Alternatives,
			QualityFlags:  result.QualityFlags,
		},
		ClassifiedAt: time.Now(),
	}, nil
}

// ReclassifyLowConfidence re-runs the engine on stored classifications
// below threshold. A new result is persisted only when its confidence
// strictly improves on the stored one.
func (c *Classifier) ReclassifyLowConfidence(ctx context.Context, threshold float64, limit int, w io.Writer) (BatchSummary, error) {
	stale, err := c.store.LowConfidenceClassified(ctx, threshold, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("selecting low-confidence resources: %w", err)
	}

	var summary BatchSummary
	var confidenceSum float64

	for i, old := range stale {
		if i > 0 && c.cfg.CallDelay > 0 {
			time.Sleep(c.cfg.CallDelay)
		}
		summary.Processed++

		rec, err := c.store.GetRawRecord(ctx, old.RawRecordID)
		if err != nil || rec == nil {
			fmt.Fprintf(w, "failed:    %s (raw record missing)\n", old.ID)
			summary.Failed++
			continue
		}

		fresh, err := c.ClassifyRecord(ctx, *rec)
		if err != nil {
			fmt.Fprintf(w, "failed:    %s (%v)\n", old.ID, err)
			summary.Failed++
			continue
		}

		if fresh.Confidence <= old.Confidence {
			fmt.Fprintf(w, "kept:      %s (%.0f does not improve %.0f)\n", old.ID, fresh.Confidence, old.Confidence)
			continue
		}

		if err := c.store.UpsertClassified(ctx, *fresh); err != nil {
			fmt.Fprintf(w, "failed:    %s (%v)\n", old.ID, err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(w, "improved:  %s (%.0f -> %.0f)\n", old.ID, old.Confidence, fresh.Confidence)
		summary.Succeeded++
		confidenceSum += fresh.Confidence
	}

	if summary.Succeeded > 0 {
		summary.AvgConfidence = confidenceSum / float64(summary.Succeeded)
	}
	return summary, nil
}

// AnalysisText concatenates the record's candidate text fields into one
// bounded analysis string.
func (c *Classifier) AnalysisText(rec types.RawRecord) string {
	parts := []string{
		rec.First(nameFields...),
		rec.First(descFields...),
		rec.First(serviceFields...),
		rec.First(categoryHintField...),
		rec.First(populationFields...),
		rec.First(eligibilityFields...),
		rec.First(notesFields...),
	}

	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}

	text := strings.Join(nonEmpty, ". ")
	if len(text) > c.cfg.MaxAnalysisChars {
		text = text[:c.cfg.MaxAnalysisChars]
	}
	return text
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '|'
	}) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
