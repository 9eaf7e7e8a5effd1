// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/havenmap/resource-engine/internal/httputil"
	"github.com/havenmap/resource-engine/pkg/types"
)

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org/search"
	nominatimTimeout    = 10 * time.Second
)

// Nominatim is the primary, open geocoding provider. Callers must respect
// the usage policy's request spacing; the Geocoder enforces the delay.
type Nominatim struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewNominatim builds the open provider. An empty baseURL uses the public
// endpoint.
func NewNominatim(client *http.Client, baseURL, userAgent string) *Nominatim {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	return &Nominatim{client: client, baseURL: baseURL, userAgent: userAgent}
}

// Name identifies the provider in geocode metadata.
func (n *Nominatim) Name() string { return "nominatim" }

// ReliabilityBonus contributes to the result confidence score.
func (n *Nominatim) ReliabilityBonus() float64 { return 5 }

// nominatimHit is one entry of Nominatim's JSON array response.
type nominatimHit struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
	AddressType string `json:"addresstype"`
	Address     struct {
		HouseNumber string `json:"house_number"`
		City        string `json:"city"`
		Town        string `json:"town"`
		Village     string `json:"village"`
		State       string `json:"state"`
		Postcode    string `json:"postcode"`
		County      string `json:"county"`
	} `json:"address"`
}

// Geocode resolves one address against the Nominatim search endpoint.
func (n *Nominatim) Geocode(ctx context.Context, address string) (*ProviderResult, error) {
	ctx, cancel := context.WithTimeout(ctx, nominatimTimeout)
	defer cancel()

	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "json")
	q.Set("addressdetails", "1")
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", n.userAgent)

	resp, err := httputil.DoWithRetry(ctx, n.client, req, 2)
	if err != nil {
		return nil, fmt.Errorf("nominatim request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim returned HTTP %d", resp.StatusCode)
	}

	var hits []nominatimHit
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("parsing nominatim response: %w", err)
	}
	if len(hits) == 0 {
		return nil, nil
	}

	hit := hits[0]
	lat, err1 := strconv.ParseFloat(hit.Lat, 64)
	lon, err2 := strconv.ParseFloat(hit.Lon, 64)
	if err1 != nil || err2 != nil {
		return nil, fmt.Errorf("nominatim returned unparseable coordinates %q,%q", hit.Lat, hit.Lon)
	}

	city := hit.Address.City
	if city == "" {
		city = hit.Address.Town
	}
	if city == "" {
		city = hit.Address.Village
	}

	return &ProviderResult{
		Latitude:         lat,
		Longitude:        lon,
		FormattedAddress: hit.DisplayName,
		City:             city,
		State:            hit.Address.State,
		Zip:              hit.Address.Postcode,
		County:           hit.Address.County,
		Accuracy:         nominatimAccuracy(hit),
	}, nil
}

// nominatimAccuracy maps the OSM address type onto the shared scale.
func nominatimAccuracy(hit nominatimHit) types.Accuracy {
	switch hit.AddressType {
	case "house", "building", "amenity", "office", "shop":
		if hit.Address.HouseNumber != "" {
			return types.AccuracyRooftop
		}
		return types.AccuracyRangeInterpolated
	case "road", "street":
		return types.AccuracyRangeInterpolated
	case "neighbourhood", "suburb", "quarter", "postcode":
		return types.AccuracyApproximate
	case "city", "town", "village", "municipality":
		return types.AccuracyCityLevel
	default:
		return types.AccuracyGeometricCenter
	}
}
