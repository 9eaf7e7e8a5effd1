// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"sort"
	"strings"

	"github.com/havenmap/resource-engine/pkg/types"
)

// categoryKeywords maps each taxonomy category to the phrases that signal
// it. Matching is case-insensitive substring search over the analysis text.
var categoryKeywords = map[types.Category][]string{
	types.CategoryCrisisEmergency:    {"crisis", "emergency", "urgent", "hotline", "24/7", "24 hour", "immediate"},
	types.CategoryDomesticViolence:   {"domestic violence", "abuse", "safe house", "protective order", "batterer"},
	types.CategoryHumanTrafficking:   {"trafficking", "exploitation", "survivor advocacy", "rescue"},
	types.CategoryShelterHousing:     {"shelter", "housing", "transitional", "beds", "homeless", "rapid rehousing"},
	types.CategoryFoodAssistance:     {"food bank", "food pantry", "pantry", "meals", "soup kitchen", "groceries", "snap", "wic"},
	types.CategoryHealthcare:         {"clinic", "medical", "health care", "healthcare", "physician", "nurse", "surgery", "accident"},
	types.CategoryMentalHealth:       {"mental health", "counseling", "therapy", "psychiatric", "behavioral health"},
	types.CategorySubstanceAbuse:     {"substance", "addiction", "recovery", "detox", "sober", "rehab"},
	types.CategoryLegalAid:           {"legal aid", "attorney", "lawyer", "court", "expungement", "legal services"},
	types.CategoryEmployment:         {"employment", "job training", "job placement", "career", "workforce", "resume"},
	types.CategoryEducation:          {"education", "tutoring", "ged", "literacy", "school supplies", "esl"},
	types.CategoryChildcare:          {"childcare", "child care", "daycare", "preschool", "head start"},
	types.CategoryYouthServices:      {"youth", "teen", "after school", "mentoring", "runaway"},
	types.CategorySeniorServices:     {"senior", "elderly", "aging", "meals on wheels", "older adults"},
	types.CategoryVeteranServices:    {"veteran", "va benefits", "military", "service member"},
	types.CategoryDisabilityServices: {"disability", "disabled", "accessible services", "developmental", "independent living"},
	types.CategoryFinancialAid:       {"financial assistance", "rent assistance", "emergency funds", "cash assistance", "bill pay"},
	types.CategoryClothingGoods:      {"clothing", "clothes closet", "furniture", "household goods", "thrift"},
	types.CategoryTransportation:     {"transportation", "bus pass", "rides", "transit", "shuttle"},
	types.CategoryImmigration:        {"immigration", "immigrant", "refugee", "citizenship", "asylum", "visa"},
	types.CategoryLGBTQServices:      {"lgbtq", "lgbt", "gender", "pride", "queer"},
	types.CategoryReentryServices:    {"reentry", "re-entry", "formerly incarcerated", "parole", "probation"},
	types.CategoryUtilities:          {"utility", "utilities", "energy assistance", "liheap", "water bill"},
	types.CategoryDentalCare:         {"dental", "dentist", "oral health", "teeth"},
	types.CategoryVisionCare:         {"vision", "eye exam", "glasses", "optometry"},
	types.CategoryFaithBased:         {"church", "ministry", "faith", "parish", "congregation"},
	types.CategoryGeneralAssistance:  {"assistance", "resources", "referral", "support services"},
}

// targetGroupKeywords maps target-population tags to their text signals.
var targetGroupKeywords = map[string][]string{
	"veterans":              {"veteran", "military"},
	"families":              {"family", "families", "parents"},
	"children_youth":        {"children", "child", "youth", "teen", "minors"},
	"seniors":               {"senior", "elderly", "older adults"},
	"women":                 {"women", "mothers", "maternal"},
	"men":                   {"men only", "men's"},
	"dv_survivors":          {"domestic violence", "abuse survivor"},
	"trafficking_survivors": {"trafficking"},
	"chronically_homeless":  {"chronically homeless", "chronic homelessness", "street homeless"},
	"disabled":              {"disability", "disabled", "special needs"},
	"lgbtq":                 {"lgbtq", "lgbt", "queer"},
	"immigrants_refugees":   {"immigrant", "refugee", "asylum"},
	"general_public":        {"everyone", "all residents", "general public", "anyone"},
}

const (
	keywordBaseConfidence = 42.0
	keywordMatchBonus     = 18.0
	keywordMaxConfidence  = 95.0
	shortTextThreshold    = 80
)

// KeywordEngine is the deterministic classification backend. It needs no
// network and is the default engine.
type KeywordEngine struct{}

// Name identifies the engine in classification metadata.
func (KeywordEngine) Name() string { return "keyword" }

// Classify scores every category's keyword table against the text and
// returns the best match with runners-up as alternatives.
func (KeywordEngine) Classify(_ context.Context, text string) (Result, error) {
	lower := strings.ToLower(text)

	type scored struct {
		category types.Category
		matched  []string
	}
	var candidates []scored
	for _, cat := range types.AllCategories {
		var matched []string
		for _, kw := range categoryKeywords[cat] {
			if strings.Contains(lower, kw) {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			candidates = append(candidates, scored{category: cat, matched: matched})
		}
	}

	var result Result
	if len(lower) < shortTextThreshold {
		result.QualityFlags = append(result.QualityFlags, "short_text")
	}

	if len(candidates) == 0 {
		result.Category = types.CategoryGeneralAssistance
		result.ConfidenceScore = 25
		result.QualityFlags = append(result.QualityFlags, "no_keywords_matched")
		result.TargetGroups = matchTargetGroups(lower)
		return result, nil
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return len(candidates[i].matched) > len(candidates[j].matched)
	})

	best := candidates[0]
	result.Category = best.category
	result.KeywordsFound = best.matched
	result.ConfidenceScore = confidenceFor(len(best.matched))
	result.TargetGroups = matchTargetGroups(lower)

	for _, alt := range candidates[1:] {
		result.Alternatives = append(result.Alternatives, types.AlternativeCategory{
			Category:   alt.category,
			Confidence: confidenceFor(len(alt.matched)),
		})
		if len(result.Alternatives) == 3 {
			break
		}
	}
	if len(candidates) > 1 && len(candidates[1].matched) == len(best.matched) {
		result.QualityFlags = append(result.QualityFlags, "ambiguous_category")
	}

	return result, nil
}

func confidenceFor(matches int) float64 {
	c := keywordBaseConfidence + keywordMatchBonus*float64(matches)
	if c > keywordMaxConfidence {
		c = keywordMaxConfidence
	}
	return c
}

func matchTargetGroups(lower string) []string {
	var groups []string
	for group, keywords := range targetGroupKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				groups = append(groups, group)
				break
			}
		}
	}
	sort.Strings(groups)
	return groups
}
