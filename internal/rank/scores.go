// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rank

import (
	"math"
	"strings"
	"time"

	"github.com/havenmap/resource-engine/pkg/types"
)

// Location is a user coordinate for proximity scoring.
type Location struct {
	Latitude  float64
	Longitude float64
}

// crisisCategories get an availability floor and gated tiers; someone in
// immediate danger must always find them near the top.
var crisisCategories = map[types.Category]bool{
	types.CategoryCrisisEmergency:  true,
	types.CategoryDomesticViolence: true,
	types.CategoryHumanTrafficking: true,
}

// basicNeedsCategories use the conservative four-tier cutoffs.
var basicNeedsCategories = map[types.Category]bool{
	types.CategoryShelterHousing: true,
	types.CategoryFoodAssistance: true,
	types.CategoryHealthcare:     true,
}

// categoryUrgency seeds the urgency sub-score per category.
var categoryUrgency = map[types.Category]float64{
	types.CategoryCrisisEmergency:    95,
	types.CategoryHumanTrafficking:   95,
	types.CategoryDomesticViolence:   90,
	types.CategoryShelterHousing:     80,
	types.CategoryMentalHealth:       75,
	types.CategorySubstanceAbuse:     75,
	types.CategoryFoodAssistance:     70,
	types.CategoryHealthcare:         70,
	types.CategoryUtilities:          60,
	types.CategoryLegalAid:           55,
	types.CategoryFinancialAid:       55,
	types.CategoryImmigration:        55,
	types.CategoryReentryServices:    50,
	types.CategoryVeteranServices:    50,
	types.CategoryDisabilityServices: 50,
	types.CategoryChildcare:          45,
	types.CategoryYouthServices:      45,
	types.CategorySeniorServices:     45,
	types.CategoryTransportation:     40,
	types.CategoryDentalCare:         40,
	types.CategoryVisionCare:         40,
	types.CategoryEmployment:         35,
	types.CategoryEducation:          35,
	types.CategoryClothingGoods:      35,
	types.CategoryFaithBased:         30,
	types.CategoryLGBTQServices:      50,
	types.CategoryGeneralAssistance:  40,
}

var recognizedOrgs = []string{
	"salvation army", "red cross", "united way", "catholic charities",
	"goodwill", "ymca", "ywca", "volunteers of america", "lutheran services",
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

func containsAny(text string, signals ...string) bool {
	for _, s := range signals {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

// signalText flattens the free-text fields the heuristics scan, lowercased.
func signalText(c types.ClassifiedResource) string {
	parts := []string{c.Name, c.Description, c.Eligibility, strings.Join(c.Services, " ")}
	return strings.ToLower(strings.Join(parts, " "))
}

// availabilityScore reads operating-hours language. Crisis categories are
// floored at 90 regardless of stated hours.
func availabilityScore(c types.ClassifiedResource) float64 {
	hours := strings.ToLower(c.Hours + " " + c.Description)
	score := 50.0

	switch {
	case containsAny(hours, "closed", "suspended", "discontinued"):
		score = 5
	case containsAny(hours, "24/7", "24-7", "24 hours", "around the clock"):
		score = 100
	default:
		if containsAny(hours, "saturday", "sunday", "weekend") {
			score += 15
		}
		if containsAny(hours, "evening", "7 days", "extended hours") {
			score += 10
		}
	}

	if crisisCategories[c.Category] && score < 90 {
		score = 90
	}
	return clampScore(score)
}

// accessibilityScore starts neutral-positive and moves on access signals.
func accessibilityScore(c types.ClassifiedResource) float64 {
	text := signalText(c)
	score := 60.0

	if containsAny(text, "wheelchair", "ada accessible", "ada compliant", "accessible entrance") {
		score += 10
	}
	if containsAny(text, "bus line", "bus route", "transit", "near public transportation") {
		score += 8
	}
	if containsAny(text, "free parking", "parking available") {
		score += 5
	}
	if containsAny(text, "spanish", "bilingual", "multilingual", "interpreter") {
		score += 8
	}
	if containsAny(text, "transportation provided", "transportation services", "rides available") {
		score += 8
	}

	if containsAny(text, "appointment only", "by appointment") {
		score -= 10
	}
	if containsAny(text, "id required", "identification required", "photo id") {
		score -= 10
	}
	if containsAny(text, "income verification", "proof of income") {
		score -= 10
	}
	return clampScore(score)
}

// capacityScore starts from a category-aware baseline. Beds are scarce, so
// housing starts low; food programs rarely turn people away.
func capacityScore(c types.ClassifiedResource) float64 {
	score := 60.0
	switch c.Category {
	case types.CategoryShelterHousing:
		score = 40
	case types.CategoryFoodAssistance:
		score = 75
	}

	text := signalText(c)
	if containsAny(text, "beds available", "openings", "accepting new", "walk-in", "walk in", "no appointment needed") {
		score += 30
	}
	if containsAny(text, "waiting list", "waitlist", "at capacity", "currently full") {
		score -= 25
	}
	return clampScore(score)
}

// qualityScore rewards accreditation language, recognized organizations, and
// a focused target population.
func qualityScore(c types.ClassifiedResource) float64 {
	text := signalText(c)
	score := 60.0

	if containsAny(text, "accredited", "certified", "licensed") {
		score += 12
	}
	if containsAny(text, "award", "recognized") {
		score += 8
	}
	if containsAny(text, "professional staff", "trained staff", "case manager") {
		score += 6
	}
	if containsAny(text, recognizedOrgs...) {
		score += 10
	}
	if n := len(c.TargetGroups); n >= 1 && n <= 3 {
		score += 8
	}
	return clampScore(score)
}

// urgencyScore seeds from the per-category priority weight and boosts on
// crisis language.
func urgencyScore(c types.ClassifiedResource) float64 {
	score, ok := categoryUrgency[c.Category]
	if !ok {
		score = 50
	}
	text := signalText(c)
	if containsAny(text, "crisis", "emergency", "immediate", "urgent", "hotline", "24/7", "24-7") {
		score += 10
	}
	return clampScore(score)
}

var vulnerableGroupBonus = map[string]float64{
	"chronically_homeless":  10,
	"dv_survivors":          10,
	"trafficking_survivors": 10,
	"disabled":              8,
	"veterans":              8,
	"seniors":               5,
	"youth":                 5,
	"children":              5,
	"immigrants":            5,
}

// populationScore rewards coverage of higher-vulnerability groups and either
// broad or narrowly specialized focus.
func populationScore(c types.ClassifiedResource) float64 {
	score := 70.0
	for _, g := range c.TargetGroups {
		score += vulnerableGroupBonus[g]
	}
	switch {
	case len(c.TargetGroups) == 1:
		score += 8
	case contains(c.TargetGroups, "general_public"):
		score += 5
	}
	return clampScore(score)
}

// proximityScore compares great-circle distance against the service radius.
// No user location means no basis for judgment, scored neutral.
func proximityScore(g types.GeocodedResource, loc *Location) float64 {
	if loc == nil || g.ServiceRadiusM <= 0 {
		return 60
	}
	distM := haversineM(loc.Latitude, loc.Longitude, g.Latitude, g.Longitude)
	ratio := distM / g.ServiceRadiusM
	switch {
	case ratio <= 0.25:
		return 100
	case ratio <= 0.5:
		return 90
	case ratio <= 1.0:
		return 75
	case ratio <= 1.5:
		return 50
	case ratio <= 2.0:
		return 25
	default:
		return 10
	}
}

// reliabilityScore rewards stable funding and established organizations, and
// penalizes precarious funding language and stale data.
func reliabilityScore(c types.ClassifiedResource, extractedAt time.Time, now time.Time) float64 {
	text := signalText(c)
	score := 65.0

	if containsAny(text, "government", "federal", "state funded", "county", "city of") {
		score += 10
	}
	if containsAny(text, recognizedOrgs...) {
		score += 8
	}
	if containsAny(text, "est. 19", "est. 20", "established", "since 19", "since 20") {
		score += 5
	}
	if containsAny(text, "temporary", "pilot program", "grant-funded", "grant funded") {
		score -= 12
	}

	age := now.Sub(extractedAt)
	switch {
	case age > 90*24*time.Hour:
		score -= 20
	case age > 30*24*time.Hour:
		score -= 10
	}
	return clampScore(score)
}

const earthRadiusM = 6371000.0

// haversineM returns the great-circle distance in meters.
func haversineM(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
