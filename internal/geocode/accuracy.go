// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package geocode

import (
	"strings"
	"unicode"

	"github.com/havenmap/resource-engine/pkg/types"
)

// accuracyRank orders the shared accuracy scale; higher is better.
var accuracyRank = map[types.Accuracy]int{
	types.AccuracyRooftop:           5,
	types.AccuracyRangeInterpolated: 4,
	types.AccuracyGeometricCenter:   3,
	types.AccuracyApproximate:       2,
	types.AccuracyCityLevel:         1,
	types.AccuracyFailed:            0,
}

// radiusMultiplier widens the service radius as accuracy degrades: a coarse
// geocode must claim a wider catchment to stay discoverable.
var radiusMultiplier = map[types.Accuracy]float64{
	types.AccuracyRooftop:           1.0,
	types.AccuracyRangeInterpolated: 1.2,
	types.AccuracyGeometricCenter:   1.4,
	types.AccuracyApproximate:       1.7,
	types.AccuracyCityLevel:         2.0,
	types.AccuracyFailed:            2.0,
}

// baseRadiusM is the per-category service radius in meters before accuracy
// scaling. Crisis services reach further; walk-in services stay local.
var baseRadiusM = map[types.Category]float64{
	types.CategoryCrisisEmergency:    15000,
	types.CategoryDomesticViolence:   20000,
	types.CategoryHumanTrafficking:   25000,
	types.CategoryShelterHousing:     10000,
	types.CategoryFoodAssistance:     5000,
	types.CategoryHealthcare:         8000,
	types.CategoryMentalHealth:       10000,
	types.CategorySubstanceAbuse:     12000,
	types.CategoryLegalAid:           15000,
	types.CategoryEmployment:         10000,
	types.CategoryEducation:          6000,
	types.CategoryChildcare:          4000,
	types.CategoryYouthServices:      6000,
	types.CategorySeniorServices:     5000,
	types.CategoryVeteranServices:    15000,
	types.CategoryDisabilityServices: 10000,
	types.CategoryFinancialAid:       8000,
	types.CategoryClothingGoods:      5000,
	types.CategoryTransportation:     12000,
	types.CategoryImmigration:        15000,
	types.CategoryLGBTQServices:      12000,
	types.CategoryReentryServices:    12000,
	types.CategoryUtilities:          8000,
	types.CategoryDentalCare:         8000,
	types.CategoryVisionCare:         8000,
	types.CategoryFaithBased:         5000,
	types.CategoryGeneralAssistance:  6000,
}

const defaultBaseRadiusM = 6000

// ServiceRadius computes the category base radius scaled by accuracy.
func ServiceRadius(category types.Category, accuracy types.Accuracy) float64 {
	base, ok := baseRadiusM[category]
	if !ok {
		base = defaultBaseRadiusM
	}
	mult, ok := radiusMultiplier[accuracy]
	if !ok {
		mult = 2.0
	}
	return base * mult
}

// GradeFor maps accuracy onto the ordinal quality grade.
func GradeFor(accuracy types.Accuracy) types.QualityGrade {
	switch accuracy {
	case types.AccuracyRooftop:
		return types.QualityExcellent
	case types.AccuracyRangeInterpolated:
		return types.QualityGood
	case types.AccuracyGeometricCenter:
		return types.QualityAcceptable
	case types.AccuracyApproximate, types.AccuracyCityLevel:
		return types.QualityPoor
	default:
		return types.QualityFailed
	}
}

// gradeRank orders quality grades for improve-only comparison.
var gradeRank = map[types.QualityGrade]int{
	types.QualityExcellent:  4,
	types.QualityGood:       3,
	types.QualityAcceptable: 2,
	types.QualityPoor:       1,
	types.QualityFailed:     0,
}

// GradeOutranks reports whether a strictly outranks b on the fixed ordinal
// scale. Quality-improvement re-geocoding only overwrites on a strict win.
func GradeOutranks(a, b types.QualityGrade) bool {
	return gradeRank[a] > gradeRank[b]
}

// accuracyBonus feeds the confidence score.
var accuracyBonus = map[types.Accuracy]float64{
	types.AccuracyRooftop:           40,
	types.AccuracyRangeInterpolated: 30,
	types.AccuracyGeometricCenter:   20,
	types.AccuracyApproximate:       10,
	types.AccuracyCityLevel:         5,
	types.AccuracyFailed:            0,
}

// Confidence computes the 0-100 geocode confidence: base 50 plus an
// accuracy bonus plus the provider's reliability bonus.
func Confidence(accuracy types.Accuracy, providerBonus float64) float64 {
	c := 50 + accuracyBonus[accuracy] + providerBonus
	if c > 100 {
		c = 100
	}
	if c < 0 {
		c = 0
	}
	return c
}

// NormalizeAddress lowercases, strips punctuation, and collapses whitespace
// to form the cache key for an address.
func NormalizeAddress(addr string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(addr) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// qualityFlags inspects one result against the original input address.
func qualityFlags(input string, result ProviderResult, fallbackUsed bool) []string {
	var flags []string
	if result.Zip == "" {
		flags = append(flags, "missing_postal_code")
	}
	if !startsWithDigit(strings.TrimSpace(input)) {
		flags = append(flags, "no_street_number")
	}
	if result.FormattedAddress != "" && !addressesAgree(input, result.FormattedAddress) {
		flags = append(flags, "address_mismatch")
	}
	if fallbackUsed {
		flags = append(flags, "fallback_used")
	}
	return flags
}

func startsWithDigit(s string) bool {
	return s != "" && s[0] >= '0' && s[0] <= '9'
}

// addressesAgree checks that the first street token of the input appears in
// the formatted result. A coarse test, but it catches provider matches that
// wandered to a different street.
func addressesAgree(input, formatted string) bool {
	in := strings.Fields(NormalizeAddress(input))
	if len(in) == 0 {
		return true
	}
	token := in[0]
	if len(in) > 1 && startsWithDigit(token) {
		token = in[1]
	}
	return strings.Contains(NormalizeAddress(formatted), token)
}
