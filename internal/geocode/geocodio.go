// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/havenmap/resource-engine/internal/httputil"
	"github.com/havenmap/resource-engine/pkg/types"
)

const (
	defaultGeocodioURL   = "https://api.geocod.io/v1.7/geocode"
	defaultGeocodioQuota = 2000
	geocodioTimeout      = 15 * time.Second
)

// Geocodio is the secondary, commercial provider. It only participates when
// an API key is configured, and it enforces a conservative daily quota so a
// bad batch cannot burn the paid allowance.
type Geocodio struct {
	client  *http.Client
	baseURL string
	apiKey  string

	mu    sync.Mutex
	day   time.Time
	used  int
	quota int
	now   func() time.Time
}

// NewGeocodio builds the commercial provider. A zero quota uses the default.
func NewGeocodio(client *http.Client, baseURL, apiKey string, dailyQuota int) *Geocodio {
	if baseURL == "" {
		baseURL = defaultGeocodioURL
	}
	if dailyQuota <= 0 {
		dailyQuota = defaultGeocodioQuota
	}
	return &Geocodio{
		client:  client,
		baseURL: baseURL,
		apiKey:  apiKey,
		quota:   dailyQuota,
		now:     time.Now,
	}
}

// Name identifies the provider in geocode metadata.
func (g *Geocodio) Name() string { return "geocodio" }

// ReliabilityBonus contributes to the result confidence score.
func (g *Geocodio) ReliabilityBonus() float64 { return 10 }

// Configured reports whether the provider has an API key.
func (g *Geocodio) Configured() bool { return g.apiKey != "" }

// allow counts one lookup against the daily quota.
func (g *Geocodio) allow() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	day := g.now().Truncate(24 * time.Hour)
	if day.After(g.day) {
		g.day = day
		g.used = 0
	}
	if g.used >= g.quota {
		return false
	}
	g.used++
	return true
}

// geocodioResponse is Geocodio's native JSON schema.
type geocodioResponse struct {
	Results []struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		FormattedAddress string `json:"formatted_address"`
		AccuracyType     string `json:"accuracy_type"`
		AddressComponents struct {
			City   string `json:"city"`
			State  string `json:"state"`
			Zip    string `json:"zip"`
			County string `json:"county"`
		} `json:"address_components"`
	} `json:"results"`
}

// Geocode resolves one address, spending one unit of daily quota.
func (g *Geocodio) Geocode(ctx context.Context, address string) (*ProviderResult, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("geocodio not configured")
	}
	if !g.allow() {
		return nil, fmt.Errorf("geocodio daily quota (%d) exhausted", g.quota)
	}

	ctx, cancel := context.WithTimeout(ctx, geocodioTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", address)
	q.Set("api_key", g.apiKey)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := httputil.DoWithRetry(ctx, g.client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("geocodio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocodio returned HTTP %d", resp.StatusCode)
	}

	var decoded geocodioResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parsing geocodio response: %w", err)
	}
	if len(decoded.Results) == 0 {
		return nil, nil
	}

	r := decoded.Results[0]
	return &ProviderResult{
		Latitude:         r.Location.Lat,
		Longitude:        r.Location.Lng,
		FormattedAddress: r.FormattedAddress,
		City:             r.AddressComponents.City,
		State:            r.AddressComponents.State,
		Zip:              r.AddressComponents.Zip,
		County:           r.AddressComponents.County,
		Accuracy:         geocodioAccuracy(r.AccuracyType),
	}, nil
}

// geocodioAccuracy maps Geocodio's accuracy_type onto the shared scale.
func geocodioAccuracy(accuracyType string) types.Accuracy {
	switch accuracyType {
	case "rooftop", "nearest_rooftop_match", "point":
		return types.AccuracyRooftop
	case "range_interpolation":
		return types.AccuracyRangeInterpolated
	case "street_center", "intersection":
		return types.AccuracyGeometricCenter
	case "place":
		return types.AccuracyCityLevel
	default:
		return types.AccuracyApproximate
	}
}
