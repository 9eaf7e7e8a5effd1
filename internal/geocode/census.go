// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/havenmap/resource-engine/internal/httputil"
	"github.com/havenmap/resource-engine/pkg/types"
)

const (
	defaultCensusURL = "https://geocoding.geo.census.gov/geocoder/locations/onelineaddress"
	censusTimeout    = 15 * time.Second
	censusBenchmark  = "Public_AR_Current"
)

// Census is the tertiary, government provider. It is free and keyless but
// only covers US street addresses, interpolated along TIGER lines.
type Census struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewCensus builds the government provider.
func NewCensus(client *http.Client, baseURL, userAgent string) *Census {
	if baseURL == "" {
		baseURL = defaultCensusURL
	}
	return &Census{client: client, baseURL: baseURL, userAgent: userAgent}
}

// Name identifies the provider in geocode metadata.
func (c *Census) Name() string { return "census" }

// ReliabilityBonus contributes to the result confidence score.
func (c *Census) ReliabilityBonus() float64 { return 7 }

// censusResponse is the Census geocoder's native JSON schema.
type censusResponse struct {
	Result struct {
		AddressMatches []struct {
			MatchedAddress string `json:"matchedAddress"`
			Coordinates    struct {
				X float64 `json:"x"`
				Y float64 `json:"y"`
			} `json:"coordinates"`
			AddressComponents struct {
				City  string `json:"city"`
				State string `json:"state"`
				Zip   string `json:"zip"`
			} `json:"addressComponents"`
		} `json:"addressMatches"`
	} `json:"result"`
}

// Geocode resolves one address against the Census onelineaddress endpoint.
func (c *Census) Geocode(ctx context.Context, address string) (*ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, censusTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("address", address)
	q.Set("benchmark", censusBenchmark)
	q.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := httputil.DoWithRetry(ctx, c.client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("census request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("census returned HTTP %d", resp.StatusCode)
	}

	var decoded censusResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("parsing census response: %w", err)
	}
	if len(decoded.Result.AddressMatches) == 0 {
		return nil, nil
	}

	m := decoded.Result.AddressMatches[0]
	return &ProviderResult{
		Latitude:         m.Coordinates.Y,
		Longitude:        m.Coordinates.X,
		FormattedAddress: m.MatchedAddress,
		City:             m.AddressComponents.City,
		State:            m.AddressComponents.State,
		Zip:              m.AddressComponents.Zip,
		Accuracy:         censusAccuracy(m.MatchedAddress),
	}, nil
}

// censusAccuracy maps the TIGER match onto the shared scale: a matched
// street number means range interpolation along the line; a match without
// one only places the address at city granularity.
func censusAccuracy(matchedAddress string) types.Accuracy {
	trimmed := strings.TrimSpace(matchedAddress)
	if trimmed == "" {
		return types.AccuracyCityLevel
	}
	if trimmed[0] >= '0' && trimmed[0] <= '9' {
		return types.AccuracyRangeInterpolated
	}
	return types.AccuracyCityLevel
}
