// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"fmt"
	"sort"
	"strings"

	"github.com/havenmap/resource-engine/pkg/types"
)

// defaultWeight is applied to any sub-score a profile leaves unweighted.
const defaultWeight = 12.5

// Profile maps sub-score names to weights. Weights need not sum to 100; the
// aggregate is normalized by the total weight used.
type Profile map[string]float64

// profiles are the named weighting profiles. The empty balanced profile
// weights every sub-score equally via the default.
var profiles = map[string]Profile{
	"balanced": {},
	"crisis_response": {
		"urgency":       30,
		"availability":  25,
		"proximity":     15,
		"accessibility": 10,
	},
	"basic_needs": {
		"capacity":      25,
		"availability":  20,
		"proximity":     20,
		"accessibility": 15,
	},
	"proximity_first": {
		"proximity":    40,
		"availability": 20,
	},
	"family_services": {
		"population":    25,
		"quality":       20,
		"accessibility": 15,
		"capacity":      15,
	},
	"long_term_support": {
		"quality":     25,
		"reliability": 25,
		"population":  15,
	},
}

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "balanced"

// ProfileByName resolves a named profile.
func ProfileByName(name string) (Profile, error) {
	if name == "" {
		name = DefaultProfile
	}
	p, ok := profiles[name]
	if !ok {
		return nil, fmt.Errorf("unknown weighting profile %q (known: %s)", name, strings.Join(ProfileNames(), ", "))
	}
	return p, nil
}

// ProfileNames lists the known profiles in a stable order.
func ProfileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// subScoreFields enumerates the eight sub-scores in a stable order.
var subScoreFields = []struct {
	name  string
	value func(types.SubScores) float64
}{
	{"availability", func(s types.SubScores) float64 { return s.Availability }},
	{"accessibility", func(s types.SubScores) float64 { return s.Accessibility }},
	{"capacity", func(s types.SubScores) float64 { return s.Capacity }},
	{"quality", func(s types.SubScores) float64 { return s.Quality }},
	{"urgency", func(s types.SubScores) float64 { return s.Urgency }},
	{"population", func(s types.SubScores) float64 { return s.Population }},
	{"proximity", func(s types.SubScores) float64 { return s.Proximity }},
	{"reliability", func(s types.SubScores) float64 { return s.Reliability }},
}

// Aggregate computes the weighted average of the sub-scores under this
// profile, normalized by the total weight used.
func (p Profile) Aggregate(s types.SubScores) float64 {
	var weighted, total float64
	for _, f := range subScoreFields {
		w, ok := p[f.name]
		if !ok {
			w = defaultWeight
		}
		if w <= 0 {
			continue
		}
		weighted += w * f.value(s)
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
