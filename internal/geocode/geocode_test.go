// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

// fakeProvider returns a canned result or error and counts calls.
type fakeProvider struct {
	name   string
	bonus  float64
	result *ProviderResult
	err    error
	calls  int
}

func (f *fakeProvider) Name() string              { return f.name }
func (f *fakeProvider) ReliabilityBonus() float64 { return f.bonus }

func (f *fakeProvider) Geocode(_ context.Context, _ string) (*ProviderResult, error) {
	f.calls++
	return f.result, f.err
}

// mockStore serves classified resources and records geocode upserts.
type mockStore struct {
	ungeocoded []types.ClassifiedResource
	lowQuality []types.GeocodedResource
	classified map[string]*types.ClassifiedResource
	upserted   []types.GeocodedResource
}

func (m *mockStore) UngeocodedClassified(_ context.Context, limit int) ([]types.ClassifiedResource, error) {
	return m.ungeocoded, nil
}

func (m *mockStore) LowQualityGeocoded(_ context.Context, limit int) ([]types.GeocodedResource, error) {
	return m.lowQuality, nil
}

func (m *mockStore) GetClassified(_ context.Context, id string) (*types.ClassifiedResource, error) {
	return m.classified[id], nil
}

func (m *mockStore) UpsertGeocoded(_ context.Context, res types.GeocodedResource) error {
	m.upserted = append(m.upserted, res)
	return nil
}

func shelterResource(id string) types.ClassifiedResource {
	return types.ClassifiedResource{
		ID:       id,
		Category: types.CategoryShelterHousing,
		Name:     "Harbor House",
		Address:  "12 Main St",
		City:     "Springfield",
		State:    "IL",
		Zip:      "62701",
	}
}

func rooftopResult() *ProviderResult {
	return &ProviderResult{
		Latitude:         39.8,
		Longitude:        -89.6,
		FormattedAddress: "12 Main Street, Springfield, IL 62701",
		City:             "Springfield",
		State:            "IL",
		Zip:              "62701",
		Accuracy:         types.AccuracyRooftop,
	}
}

func TestGeocodeResourceFallbackCascade(t *testing.T) {
	PrimaryDelay = 0
	primary := &fakeProvider{name: "nominatim", bonus: 5, err: errors.New("503")}
	secondary := &fakeProvider{name: "geocodio", bonus: 10, result: rooftopResult()}
	g := New(&mockStore{}, []Provider{primary, secondary})

	geo, err := g.GeocodeResource(context.Background(), shelterResource("cls-src-1"))
	if err != nil {
		t.Fatalf("GeocodeResource() error: %v", err)
	}
	if geo.ID != "geo-cls-src-1" || geo.Provider != "geocodio" {
		t.Errorf("geo = %s via %s, want geo-cls-src-1 via geocodio", geo.ID, geo.Provider)
	}
	if !geo.Meta.FallbackUsed {
		t.Error("fallback flag not set after primary failure")
	}
	found := false
	for _, f := range geo.Meta.QualityFlags {
		if f == "fallback_used" {
			found = true
		}
	}
	if !found {
		t.Errorf("flags = %v, want fallback_used", geo.Meta.QualityFlags)
	}
	if geo.Meta.Confidence != 100 {
		t.Errorf("confidence = %v, want 100 (50 + 40 rooftop + 10 provider, clamped)", geo.Meta.Confidence)
	}
}

func TestGeocodeResourceAllProvidersFail(t *testing.T) {
	PrimaryDelay = 0
	g := New(&mockStore{}, []Provider{
		&fakeProvider{name: "nominatim", err: errors.New("timeout")},
		&fakeProvider{name: "census"}, // nil result means no match
	})

	if _, err := g.GeocodeResource(context.Background(), shelterResource("cls-src-1")); err == nil {
		t.Error("exhausted cascade should fail")
	}
}

func TestGeocodeResourceNoAddress(t *testing.T) {
	g := New(&mockStore{}, nil)
	res := shelterResource("cls-src-1")
	res.Address = "  "
	if _, err := g.GeocodeResource(context.Background(), res); err == nil {
		t.Error("resource without a street address should fail")
	}
}

func TestGeocodeResourceCacheHit(t *testing.T) {
	PrimaryDelay = 0
	primary := &fakeProvider{name: "nominatim", bonus: 5, result: rooftopResult()}
	g := New(&mockStore{}, []Provider{primary})

	if _, err := g.GeocodeResource(context.Background(), shelterResource("cls-src-1")); err != nil {
		t.Fatalf("first call error: %v", err)
	}
	geo, err := g.GeocodeResource(context.Background(), shelterResource("cls-src-2"))
	if err != nil {
		t.Fatalf("second call error: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("provider called %d times, want 1 (second call cached)", primary.calls)
	}
	if geo.ID != "geo-cls-src-2" {
		t.Errorf("cached result must rebuild per resource; id = %s", geo.ID)
	}
}

func TestPrimaryProviderRequestsSpaced(t *testing.T) {
	PrimaryDelay = 50 * time.Millisecond
	t.Cleanup(func() { PrimaryDelay = 0 })

	primary := &fakeProvider{name: "nominatim", bonus: 5, result: rooftopResult()}
	g := New(&mockStore{}, []Provider{primary})

	first := shelterResource("cls-src-1")
	second := shelterResource("cls-src-2")
	second.Address = "34 Oak Ave" // distinct address, so the cache cannot absorb the call

	start := time.Now()
	if _, err := g.GeocodeResource(context.Background(), first); err != nil {
		t.Fatalf("first call error: %v", err)
	}
	if _, err := g.GeocodeResource(context.Background(), second); err != nil {
		t.Fatalf("second call error: %v", err)
	}

	if primary.calls != 2 {
		t.Fatalf("provider called %d times, want 2", primary.calls)
	}
	if elapsed := time.Since(start); elapsed < PrimaryDelay {
		t.Errorf("two primary requests completed in %s, want at least %s between them", elapsed, PrimaryDelay)
	}
}

func TestGeocodePendingSummary(t *testing.T) {
	PrimaryDelay = 0
	st := &mockStore{ungeocoded: []types.ClassifiedResource{
		shelterResource("cls-src-1"),
		shelterResource("cls-src-2"), // same address, served from cache
	}}
	g := New(st, []Provider{&fakeProvider{name: "nominatim", bonus: 5, result: rooftopResult()}})

	summary, err := g.GeocodePending(context.Background(), 10, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("GeocodePending() error: %v", err)
	}
	if summary.Processed != 2 || summary.Succeeded != 2 || summary.Failed != 0 {
		t.Errorf("summary = %+v, want 2 succeeded", summary)
	}
	if summary.CacheHits != 1 {
		t.Errorf("cache hits = %d, want 1", summary.CacheHits)
	}
	if len(st.upserted) != 2 {
		t.Errorf("upserted %d geocodes, want 2", len(st.upserted))
	}
}

func TestRegeocodeLowQualityOnlyPersistsStrictWins(t *testing.T) {
	PrimaryDelay = 0
	res := shelterResource("cls-src-1")
	st := &mockStore{
		classified: map[string]*types.ClassifiedResource{"cls-src-1": &res},
		lowQuality: []types.GeocodedResource{
			{ID: "geo-cls-src-1", ClassifiedID: "cls-src-1", Quality: types.QualityPoor},
		},
	}
	cityLevel := rooftopResult()
	cityLevel.Accuracy = types.AccuracyCityLevel
	g := New(st, []Provider{&fakeProvider{name: "nominatim", bonus: 5, result: cityLevel}})

	summary, err := g.RegeocodeLowQuality(context.Background(), 10, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("RegeocodeLowQuality() error: %v", err)
	}
	if summary.Succeeded != 0 || len(st.upserted) != 0 {
		t.Errorf("poor does not outrank poor; summary = %+v, %d upserts", summary, len(st.upserted))
	}

	// A rooftop retry strictly outranks the stored grade.
	g = New(st, []Provider{&fakeProvider{name: "nominatim", bonus: 5, result: rooftopResult()}})
	summary, err = g.RegeocodeLowQuality(context.Background(), 10, &bytes.Buffer{})
	if err != nil {
		t.Fatalf("RegeocodeLowQuality() error: %v", err)
	}
	if summary.Succeeded != 1 || len(st.upserted) != 1 {
		t.Fatalf("improvement not persisted: %+v, %d upserts", summary, len(st.upserted))
	}
	if st.upserted[0].Quality != types.QualityExcellent {
		t.Errorf("quality = %s, want excellent", st.upserted[0].Quality)
	}
}

func TestCityLevelResultWidensServiceRadius(t *testing.T) {
	PrimaryDelay = 0
	cityLevel := rooftopResult()
	cityLevel.Accuracy = types.AccuracyCityLevel
	g := New(&mockStore{}, []Provider{&fakeProvider{name: "census", bonus: 7, result: cityLevel}})

	geo, err := g.GeocodeResource(context.Background(), shelterResource("cls-src-1"))
	if err != nil {
		t.Fatalf("GeocodeResource() error: %v", err)
	}
	if geo.Quality != types.QualityPoor {
		t.Errorf("quality = %s, want poor for city-level accuracy", geo.Quality)
	}
	if geo.ServiceRadiusM != 20000 {
		t.Errorf("radius = %v, want 20000 (10km shelter base doubled)", geo.ServiceRadiusM)
	}
	if geo.Meta.Confidence != 62 {
		t.Errorf("confidence = %v, want 62 (50 + 5 city-level + 7 provider)", geo.Meta.Confidence)
	}
}
