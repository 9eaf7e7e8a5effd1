// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Category is one value of the fixed service taxonomy.
type Category string

const (
	CategoryCrisisEmergency    Category = "crisis_emergency"
	CategoryDomesticViolence   Category = "domestic_violence"
	CategoryHumanTrafficking   Category = "human_trafficking"
	CategoryShelterHousing     Category = "shelter_housing"
	CategoryFoodAssistance     Category = "food_assistance"
	CategoryHealthcare         Category = "healthcare"
	CategoryMentalHealth       Category = "mental_health"
	CategorySubstanceAbuse     Category = "substance_abuse"
	CategoryLegalAid           Category = "legal_aid"
	CategoryEmployment         Category = "employment"
	CategoryEducation          Category = "education"
	CategoryChildcare          Category = "childcare"
	CategoryYouthServices      Category = "youth_services"
	CategorySeniorServices     Category = "senior_services"
	CategoryVeteranServices    Category = "veteran_services"
	CategoryDisabilityServices Category = "disability_services"
	CategoryFinancialAid       Category = "financial_assistance"
	CategoryClothingGoods      Category = "clothing_goods"
	CategoryTransportation     Category = "transportation"
	CategoryImmigration        Category = "immigration_refugee"
	CategoryLGBTQServices      Category = "lgbtq_services"
	CategoryReentryServices    Category = "reentry_services"
	CategoryUtilities          Category = "utilities_assistance"
	CategoryDentalCare         Category = "dental_care"
	CategoryVisionCare         Category = "vision_care"
	CategoryFaithBased         Category = "faith_based"
	CategoryGeneralAssistance  Category = "general_assistance"
)

// AllCategories lists the taxonomy in a stable order.
var AllCategories = []Category{
	CategoryCrisisEmergency, CategoryDomesticViolence, CategoryHumanTrafficking,
	CategoryShelterHousing, CategoryFoodAssistance, CategoryHealthcare,
	CategoryMentalHealth, CategorySubstanceAbuse, CategoryLegalAid,
	CategoryEmployment, CategoryEducation, CategoryChildcare,
	CategoryYouthServices, CategorySeniorServices, CategoryVeteranServices,
	CategoryDisabilityServices, CategoryFinancialAid, CategoryClothingGoods,
	CategoryTransportation, CategoryImmigration, CategoryLGBTQServices,
	CategoryReentryServices, CategoryUtilities, CategoryDentalCare,
	CategoryVisionCare, CategoryFaithBased, CategoryGeneralAssistance,
}

// ValidCategory reports whether c belongs to the taxonomy.
func ValidCategory(c Category) bool {
	for _, v := range AllCategories {
		if v == c {
			return true
		}
	}
	return false
}

// AlternativeCategory records a runner-up category and its confidence.
type AlternativeCategory struct {
	Category   Category `json:"category" yaml:"category"`
	Confidence float64  `json:"confidence" yaml:"confidence"`
}

// ClassificationMeta carries how a classification was produced.
type ClassificationMeta struct {
	Engine        string                `json:"engine" yaml:"engine"`
	KeywordsFound []string              `json:"keywords_found,omitempty" yaml:"keywords_found,omitempty"`
	Alternatives  []AlternativeCategory `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`
	QualityFlags  []string              `json:"quality_flags,omitempty" yaml:"quality_flags,omitempty"`
}

// ClassifiedResource is a RawRecord enriched with a taxonomy category,
// target-population tags, and a confidence score. Exactly one per raw record.
type ClassifiedResource struct {
	ID           string             `json:"id" yaml:"id"`
	RawRecordID  string             `json:"raw_record_id" yaml:"raw_record_id"`
	Name         string             `json:"name" yaml:"name"`
	Category     Category           `json:"category" yaml:"category"`
	Subcategory  string             `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
	Description  string             `json:"description,omitempty" yaml:"description,omitempty"`
	Services     []string           `json:"services,omitempty" yaml:"services,omitempty"`
	Eligibility  string             `json:"eligibility,omitempty" yaml:"eligibility,omitempty"`
	Phone        string             `json:"phone,omitempty" yaml:"phone,omitempty"`
	Address      string             `json:"address,omitempty" yaml:"address,omitempty"`
	City         string             `json:"city,omitempty" yaml:"city,omitempty"`
	State        string             `json:"state,omitempty" yaml:"state,omitempty"`
	Zip          string             `json:"zip,omitempty" yaml:"zip,omitempty"`
	County       string             `json:"county,omitempty" yaml:"county,omitempty"`
	Hours        string             `json:"hours,omitempty" yaml:"hours,omitempty"`
	TargetGroups []string           `json:"target_groups,omitempty" yaml:"target_groups,omitempty"`
	Confidence   float64            `json:"confidence" yaml:"confidence"`
	Meta         ClassificationMeta `json:"meta" yaml:"meta"`
	ClassifiedAt time.Time          `json:"classified_at" yaml:"classified_at"`
}

// Accuracy is the shared five-level geocoding accuracy scale. Every
// provider maps its native signal onto this scale.
type Accuracy string

const (
	AccuracyRooftop           Accuracy = "rooftop"
	AccuracyRangeInterpolated Accuracy = "range_interpolated"
	AccuracyGeometricCenter   Accuracy = "geometric_center"
	AccuracyApproximate       Accuracy = "approximate"
	AccuracyCityLevel         Accuracy = "city_level"
	AccuracyFailed            Accuracy = "failed"
)

// QualityGrade is the ordinal trustworthiness summary of a geocode.
type QualityGrade string

const (
	QualityExcellent  QualityGrade = "excellent"
	QualityGood       QualityGrade = "good"
	QualityAcceptable QualityGrade = "acceptable"
	QualityPoor       QualityGrade = "poor"
	QualityFailed     QualityGrade = "failed"
)

// GeocodeMeta carries how a geocode was produced.
type GeocodeMeta struct {
	Confidence   float64  `json:"confidence" yaml:"confidence"`
	FallbackUsed bool     `json:"fallback_used" yaml:"fallback_used"`
	LatencyMS    int64    `json:"latency_ms" yaml:"latency_ms"`
	QualityFlags []string `json:"quality_flags,omitempty" yaml:"quality_flags,omitempty"`
}

// GeocodedResource is a ClassifiedResource with resolved coordinates and a
// category-derived service radius. Exactly one per classified resource.
type GeocodedResource struct {
	ID               string       `json:"id" yaml:"id"`
	ClassifiedID     string       `json:"classified_id" yaml:"classified_id"`
	Latitude         float64      `json:"latitude" yaml:"latitude"`
	Longitude        float64      `json:"longitude" yaml:"longitude"`
	FormattedAddress string       `json:"formatted_address,omitempty" yaml:"formatted_address,omitempty"`
	City             string       `json:"city,omitempty" yaml:"city,omitempty"`
	State            string       `json:"state,omitempty" yaml:"state,omitempty"`
	Zip              string       `json:"zip,omitempty" yaml:"zip,omitempty"`
	County           string       `json:"county,omitempty" yaml:"county,omitempty"`
	Accuracy         Accuracy     `json:"accuracy" yaml:"accuracy"`
	Provider         string       `json:"provider" yaml:"provider"`
	ServiceRadiusM   float64      `json:"service_radius_m" yaml:"service_radius_m"`
	Quality          QualityGrade `json:"quality" yaml:"quality"`
	Meta             GeocodeMeta  `json:"meta" yaml:"meta"`
	GeocodedAt       time.Time    `json:"geocoded_at" yaml:"geocoded_at"`
}

// PriorityTier is the final discoverability bucket of a ranked resource.
type PriorityTier string

const (
	TierCritical PriorityTier = "critical"
	TierHigh     PriorityTier = "high"
	TierMedium   PriorityTier = "medium"
	TierLow      PriorityTier = "low"
	TierInactive PriorityTier = "inactive"
)

// SubScores holds the eight independent 0-100 ranking sub-scores.
type SubScores struct {
	Availability  float64 `json:"availability" yaml:"availability"`
	Accessibility float64 `json:"accessibility" yaml:"accessibility"`
	Capacity      float64 `json:"capacity" yaml:"capacity"`
	Quality       float64 `json:"quality" yaml:"quality"`
	Urgency       float64 `json:"urgency" yaml:"urgency"`
	Population    float64 `json:"population" yaml:"population"`
	Proximity     float64 `json:"proximity" yaml:"proximity"`
	Reliability   float64 `json:"reliability" yaml:"reliability"`
}

// RankMeta carries how a rank was produced.
type RankMeta struct {
	AlgorithmVersion string   `json:"algorithm_version" yaml:"algorithm_version"`
	Profile          string   `json:"profile" yaml:"profile"`
	Confidence       float64  `json:"confidence" yaml:"confidence"`
	FreshnessDays    int      `json:"freshness_days" yaml:"freshness_days"`
	QualityFlags     []string `json:"quality_flags,omitempty" yaml:"quality_flags,omitempty"`
}

// RankingInput joins the upstream rows the ranker needs for one resource.
type RankingInput struct {
	Classified  ClassifiedResource
	Geocoded    GeocodedResource
	ExtractedAt time.Time
}

// RankedResource is a GeocodedResource with sub-scores, an aggregate
// overall score, and a priority tier. Exactly one per geocoded resource.
type RankedResource struct {
	ID         string       `json:"id" yaml:"id"`
	GeocodedID string       `json:"geocoded_id" yaml:"geocoded_id"`
	Scores     SubScores    `json:"scores" yaml:"scores"`
	Overall    float64      `json:"overall" yaml:"overall"`
	Tier       PriorityTier `json:"tier" yaml:"tier"`
	Meta       RankMeta     `json:"meta" yaml:"meta"`
	RankedAt   time.Time    `json:"ranked_at" yaml:"ranked_at"`
}
