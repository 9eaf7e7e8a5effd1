// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

// PrimaryDelay is the mandatory spacing between requests to the primary
// provider, per its usage policy. Tests override this to avoid real sleeps.
var PrimaryDelay = 1100 * time.Millisecond

// Storage is the subset of the catalog store the geocoder uses.
type Storage interface {
	UngeocodedClassified(ctx context.Context, limit int) ([]types.ClassifiedResource, error)
	LowQualityGeocoded(ctx context.Context, limit int) ([]types.GeocodedResource, error)
	GetClassified(ctx context.Context, id string) (*types.ClassifiedResource, error)
	UpsertGeocoded(ctx context.Context, res types.GeocodedResource) error
}

// Geocoder resolves classified resources through the provider cascade.
// One instance owns its cache and throttle state; construct it once at
// process start.
type Geocoder struct {
	store     Storage
	providers []Provider
	cache     *Cache

	mu          sync.Mutex
	lastPrimary time.Time
}

// New builds a geocoder over the given provider cascade, first to succeed
// wins. The conventional order is open, commercial, government.
func New(store Storage, providers []Provider) *Geocoder {
	return &Geocoder{
		store:     store,
		providers: providers,
		cache:     NewCache(),
	}
}

// BatchSummary holds counters from a geocoding run.
type BatchSummary struct {
	Processed int
	Succeeded int
	Failed    int
	CacheHits int
}

// GeocodeResource resolves one classified resource. A nil result with an
// error means every provider failed or had no match; the resource stays
// ungeocoded for a future pass.
func (g *Geocoder) GeocodeResource(ctx context.Context, res types.ClassifiedResource) (*types.GeocodedResource, error) {
	if strings.TrimSpace(res.Address) == "" {
		return nil, fmt.Errorf("resource %s has no street address", res.ID)
	}

	address := joinAddress(res.Address, res.City, res.State, res.Zip)
	key := NormalizeAddress(address)

	if entry, ok := g.cache.get(key); ok {
		return g.build(res, entry.result, entry.provider, entry.fallback, 0), nil
	}

	var errs []string
	for i, p := range g.providers {
		if i == 0 {
			g.throttlePrimary()
		}

		start := time.Now()
		result, err := p.Geocode(ctx, address)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", p.Name(), err))
			continue
		}
		if result == nil {
			errs = append(errs, fmt.Sprintf("%s: no match", p.Name()))
			continue
		}

		fallback := i > 0
		g.cache.put(key, cached{result: *result, provider: p.Name(), fallback: fallback})
		return g.build(res, *result, p.Name(), fallback, latency), nil
	}

	return nil, fmt.Errorf("all providers failed for %s: %s", res.ID, strings.Join(errs, "; "))
}

// GeocodePending geocodes up to limit classified resources lacking
// coordinates. Per-resource failures are counted and skipped.
func (g *Geocoder) GeocodePending(ctx context.Context, limit int, w io.Writer) (BatchSummary, error) {
	pending, err := g.store.UngeocodedClassified(ctx, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("selecting ungeocoded resources: %w", err)
	}

	var summary BatchSummary
	for _, res := range pending {
		summary.Processed++
		before := g.cache.Len()

		geo, err := g.GeocodeResource(ctx, res)
		if err != nil {
			fmt.Fprintf(w, "failed:   %s (%v)\n", res.ID, err)
			summary.Failed++
			continue
		}
		if g.cache.Len() == before {
			summary.CacheHits++
		}

		if err := g.store.UpsertGeocoded(ctx, *geo); err != nil {
			fmt.Fprintf(w, "failed:   %s (%v)\n", res.ID, err)
			summary.Failed++
			continue
		}

		fmt.Fprintf(w, "geocoded: %s via %s (%s)\n", res.ID, geo.Provider, geo.Accuracy)
		summary.Succeeded++
	}

	fmt.Fprintf(w, "\nGeocoding summary: %d processed, %d succeeded, %d failed, %d cache hits\n",
		summary.Processed, summary.Succeeded, summary.Failed, summary.CacheHits)
	return summary, nil
}

// RegeocodeLowQuality re-resolves stored poor/failed geocodes, overwriting
// only when the new quality grade strictly outranks the old one.
func (g *Geocoder) RegeocodeLowQuality(ctx context.Context, limit int, w io.Writer) (BatchSummary, error) {
	stale, err := g.store.LowQualityGeocoded(ctx, limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("selecting low-quality geocodes: %w", err)
	}

	var summary BatchSummary
	for _, old := range stale {
		summary.Processed++

		res, err := g.store.GetClassified(ctx, old.ClassifiedID)
		if err != nil || res == nil {
			fmt.Fprintf(w, "failed:   %s (classified resource missing)\n", old.ID)
			summary.Failed++
			continue
		}

		// Bypass the cache; a cached answer is what produced the poor grade.
		g.cache.drop(NormalizeAddress(joinAddress(res.Address, res.City, res.State, res.Zip)))

		fresh, err := g.GeocodeResource(ctx, *res)
		if err != nil {
			fmt.Fprintf(w, "failed:   %s (%v)\n", old.ID, err)
			summary.Failed++
			continue
		}

		if !GradeOutranks(fresh.Quality, old.Quality) {
			fmt.Fprintf(w, "kept:     %s (%s does not outrank %s)\n", old.ID, fresh.Quality, old.Quality)
			continue
		}

		if err := g.store.UpsertGeocoded(ctx, *fresh); err != nil {
			fmt.Fprintf(w, "failed:   %s (%v)\n", old.ID, err)
			summary.Failed++
			continue
		}
		fmt.Fprintf(w, "improved: %s (%s -> %s)\n", old.ID, old.Quality, fresh.Quality)
		summary.Succeeded++
	}
	return summary, nil
}

func (g *Geocoder) build(res types.ClassifiedResource, r ProviderResult, provider string, fallback bool, latencyMS int64) *types.GeocodedResource {
	return &types.GeocodedResource{
		ID:               "geo-" + res.ID,
		ClassifiedID:     res.ID,
		Latitude:         r.Latitude,
		Longitude:        r.Longitude,
		FormattedAddress: r.FormattedAddress,
		City:             firstNonEmpty(r.City, res.City),
		State:            firstNonEmpty(r.State, res.State),
		Zip:              firstNonEmpty(r.Zip, res.Zip),
		County:           firstNonEmpty(r.County, res.County),
		Accuracy:         r.Accuracy,
		Provider:         provider,
		ServiceRadiusM:   ServiceRadius(res.Category, r.Accuracy),
		Quality:          GradeFor(r.Accuracy),
		Meta: types.GeocodeMeta{
			Confidence:   Confidence(r.Accuracy, g.reliabilityBonus(provider)),
			FallbackUsed: fallback,
			LatencyMS:    latencyMS,
			QualityFlags: qualityFlags(res.Address, r, fallback),
		},
		GeocodedAt: time.Now(),
	}
}

func (g *Geocoder) reliabilityBonus(provider string) float64 {
	for _, p := range g.providers {
		if p.Name() == provider {
			return p.ReliabilityBonus()
		}
	}
	return 0
}

func (g *Geocoder) throttlePrimary() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.lastPrimary.IsZero() {
		if wait := PrimaryDelay - time.Since(g.lastPrimary); wait > 0 {
			time.Sleep(wait)
		}
	}
	g.lastPrimary = time.Now()
}

func joinAddress(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ", ")
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
