// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rank computes priority scores for geocoded resources. Eight
// independent sub-scores are aggregated under a named weighting profile and
// mapped to a category-gated priority tier.
package rank

import (
	"context"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

// AlgorithmVersion is recorded in every rank's metadata so stored scores can
// be re-derived after heuristic changes.
const AlgorithmVersion = "2.1.0"

// Storage is the subset of the catalog store the ranker uses.
type Storage interface {
	UnrankedGeocoded(ctx context.Context, limit int) ([]types.RankingInput, error)
	AllRankingInputs(ctx context.Context, limit int) ([]types.RankingInput, error)
	GetRanked(ctx context.Context, geocodedID string) (*types.RankedResource, error)
	UpsertRanked(ctx context.Context, res types.RankedResource) error
}

// Ranker scores geocoded resources under one weighting profile.
type Ranker struct {
	store       Storage
	profile     Profile
	profileName string
	now         func() time.Time
}

// New builds a ranker for the named profile. An empty name selects balanced.
func New(store Storage, profileName string) (*Ranker, error) {
	if profileName == "" {
		profileName = DefaultProfile
	}
	profile, err := ProfileByName(profileName)
	if err != nil {
		return nil, err
	}
	return &Ranker{store: store, profile: profile, profileName: profileName, now: time.Now}, nil
}

// BatchSummary holds counters from a ranking run.
type BatchSummary struct {
	Processed int
	Succeeded int
	Kept      int
	Failed    int
}

// RankResource scores one resource. It is pure apart from the clock: no
// store access, so callers can score hypotheticals.
func (r *Ranker) RankResource(in types.RankingInput, loc *Location) *types.RankedResource {
	now := r.now()
	scores := types.SubScores{
		Availability:  availabilityScore(in.Classified),
		Accessibility: accessibilityScore(in.Classified),
		Capacity:      capacityScore(in.Classified),
		Quality:       qualityScore(in.Classified),
		Urgency:       urgencyScore(in.Classified),
		Population:    populationScore(in.Classified),
		Proximity:     proximityScore(in.Geocoded, loc),
		Reliability:   reliabilityScore(in.Classified, in.ExtractedAt, now),
	}
	overall := math.Round(r.profile.Aggregate(scores)*10) / 10

	confidence, flags := rankConfidence(in, now)

	return &types.RankedResource{
		ID:         "rnk-" + in.Geocoded.ID,
		GeocodedID: in.Geocoded.ID,
		Scores:     scores,
		Overall:    overall,
		Tier:       TierFor(in.Classified.Category, overall),
		Meta: types.RankMeta{
			AlgorithmVersion: AlgorithmVersion,
			Profile:          r.profileName,
			Confidence:       confidence,
			FreshnessDays:    freshnessDays(in.ExtractedAt, now),
			QualityFlags:     flags,
		},
		RankedAt: now,
	}
}

// RankPending ranks up to limit geocoded resources that have no rank yet.
func (r *Ranker) RankPending(ctx context.Context, limit int, w io.Writer) (BatchSummary, error) {
	pending, err := r.store.UnrankedGeocoded(ctx, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("selecting unranked resources: %w", err)
	}

	var summary BatchSummary
	for _, in := range pending {
		summary.Processed++

		ranked := r.RankResource(in, nil)
		if err := r.store.UpsertRanked(ctx, *ranked); err != nil {
			fmt.Fprintf(w, "failed: %s (%v)\n", in.Geocoded.ID, err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(w, "ranked: %s %.1f (%s)\n", ranked.ID, ranked.Overall, ranked.Tier)
		summary.Succeeded++
	}

	fmt.Fprintf(w, "\nRanking summary: %d processed, %d succeeded, %d failed\n",
		summary.Processed, summary.Succeeded, summary.Failed)
	return summary, nil
}

// RerankAll re-scores every geocoded resource, persisting only when the new
// overall score strictly improves on the stored one.
func (r *Ranker) RerankAll(ctx context.Context, limit int, w io.Writer) (BatchSummary, error) {
	inputs, err := r.store.AllRankingInputs(ctx, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("selecting ranking inputs: %w", err)
	}

	var summary BatchSummary
	for _, in := range inputs {
		summary.Processed++

		fresh := r.RankResource(in, nil)
		old, err := r.store.GetRanked(ctx, in.Geocoded.ID)
		if err != nil {
			fmt.Fprintf(w, "failed:   %s (%v)\n", in.Geocoded.ID, err)
			summary.Failed++
			continue
		}
		if old != nil && fresh.Overall <= old.Overall {
			summary.Kept++
			continue
		}

		if err := r.store.UpsertRanked(ctx, *fresh); err != nil {
			fmt.Fprintf(w, "failed:   %s (%v)\n", in.Geocoded.ID, err)
			summary.Failed++
			continue
		}
		if old != nil {
			fmt.Fprintf(w, "improved: %s (%.1f -> %.1f)\n", fresh.ID, old.Overall, fresh.Overall)
		} else {
			fmt.Fprintf(w, "ranked:   %s %.1f (%s)\n", fresh.ID, fresh.Overall, fresh.Tier)
		}
		summary.Succeeded++
	}

	fmt.Fprintf(w, "\nRe-ranking summary: %d processed, %d improved, %d kept, %d failed\n",
		summary.Processed, summary.Succeeded, summary.Kept, summary.Failed)
	return summary, nil
}

// TierFor maps an overall score to a priority tier, gated by category before
// being gated by score. Crisis categories never fall below high; basic-needs
// categories never go inactive.
func TierFor(category types.Category, overall float64) types.PriorityTier {
	if crisisCategories[category] {
		if overall >= 85 {
			return types.TierCritical
		}
		return types.TierHigh
	}
	if basicNeedsCategories[category] {
		switch {
		case overall >= 80:
			return types.TierCritical
		case overall >= 65:
			return types.TierHigh
		case overall >= 45:
			return types.TierMedium
		default:
			return types.TierLow
		}
	}
	switch {
	case overall >= 85:
		return types.TierCritical
	case overall >= 70:
		return types.TierHigh
	case overall >= 50:
		return types.TierMedium
	case overall >= 30:
		return types.TierLow
	default:
		return types.TierInactive
	}
}

// rankConfidence mirrors the geocoder's pattern: penalties for missing or
// weak inputs, a reward for high upstream classification confidence.
func rankConfidence(in types.RankingInput, now time.Time) (float64, []string) {
	confidence := 70.0
	var flags []string

	if strings.TrimSpace(in.Classified.Phone) == "" {
		flags = append(flags, "missing_contact")
		confidence -= 10
	}
	if len(strings.TrimSpace(in.Classified.Description)) < 40 {
		flags = append(flags, "thin_description")
		confidence -= 10
	}
	if in.Geocoded.Quality == types.QualityPoor || in.Geocoded.Quality == types.QualityFailed {
		flags = append(flags, "poor_geocoding")
		confidence -= 15
	}
	if freshnessDays(in.ExtractedAt, now) > 90 {
		flags = append(flags, "stale_data")
		confidence -= 10
	}
	if in.Classified.Confidence < 50 {
		flags = append(flags, "low_classification_confidence")
		confidence -= 10
	} else if in.Classified.Confidence >= 80 {
		confidence += 10
	}

	return clampScore(confidence), flags
}

func freshnessDays(extractedAt, now time.Time) int {
	if extractedAt.IsZero() {
		return 0
	}
	days := int(now.Sub(extractedAt).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
