// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package geocode resolves classified resources' street addresses to
// coordinates through a cascading chain of providers, and derives a
// per-category service radius and quality grade for each result.
package geocode

import (
	"context"

	"github.com/havenmap/resource-engine/pkg/types"
)

// ProviderResult is one provider's answer, normalized onto the shared
// accuracy scale.
type ProviderResult struct {
	Latitude         float64
	Longitude        float64
	FormattedAddress string
	City             string
	State            string
	Zip              string
	County           string
	Accuracy         types.Accuracy
}

// Provider geocodes a single address. Each implementation decodes its own
// native response schema and maps the native accuracy signal onto the
// shared scale.
type Provider interface {
	Name() string

	// ReliabilityBonus contributes to the result confidence score.
	ReliabilityBonus() float64

	// Geocode resolves one free-form address. A nil result with nil error
	// means the provider had no match; the cascade moves on.
	Geocode(ctx context.Context, address string) (*ProviderResult, error)
}
