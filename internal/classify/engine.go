// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package classify assigns each raw record one category from the fixed
// taxonomy, plus target-population tags and a confidence score.
package classify

import (
	"context"

	"github.com/havenmap/resource-engine/pkg/types"
)

// Result is the structured output of one classification call.
type Result struct {
	Category            types.Category              `json:"category"`
	Subcategory         string                      `json:"subcategory,omitempty"`
	TargetGroups        []string                    `json:"target_groups,omitempty"`
	Services            []string                    `json:"services,omitempty"`
	AccessRequirements  []string                    `json:"access_requirements,omitempty"`
	EligibilityCriteria string                      `json:"eligibility_criteria,omitempty"`
	ConfidenceScore     float64                     `json:"confidence_score"`
	KeywordsFound       []string                    `json:"keywords_found,omitempty"`
	Alternatives        []types.AlternativeCategory `json:"alternative_categories,omitempty"`
	QualityFlags        []string                    `json:"quality_flags,omitempty"`
}

// Engine classifies one analysis text. Implementations: KeywordEngine
// (deterministic, offline) and GeminiEngine (remote model).
type Engine interface {
	Name() string
	Classify(ctx context.Context, text string) (Result, error)
}
