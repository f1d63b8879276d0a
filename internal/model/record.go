package model

import (
	"math"
	"time"
)

// Record is the canonical, source-agnostic representation of one
// company/date ESG observation. Adapters construct it from raw provider
// payloads; the reconciliation engine may replace it with a synthesized
// record tagged SourceReconciled.
type Record struct {
	CompanyID  string    `json:"company_id"`
	Timestamp  time.Time `json:"timestamp"`
	DataSource string    `json:"data_source"`

	EnvironmentalScore float64 `json:"environmental_score"`
	SocialScore        float64 `json:"social_score"`
	GovernanceScore    float64 `json:"governance_score"`
	CombinedScore      float64 `json:"combined_score"`

	CarbonIntensity      *float64 `json:"carbon_intensity,omitempty"`
	WaterIntensity       *float64 `json:"water_intensity,omitempty"`
	WasteIntensity       *float64 `json:"waste_intensity,omitempty"`
	EnergyEfficiency     *float64 `json:"energy_efficiency,omitempty"`
	EmployeeSatisfaction *float64 `json:"employee_satisfaction,omitempty"`
	BoardDiversity       *float64 `json:"board_diversity,omitempty"`

	Revenue   *float64 `json:"revenue,omitempty"`
	MarketCap *float64 `json:"market_cap,omitempty"`
	Sector    string   `json:"sector,omitempty"`
	Region    string   `json:"region,omitempty"`

	DataQualityScore float64 `json:"data_quality_score"`
	ConfidenceScore  float64 `json:"confidence_score"`
}

// SourceReconciled tags records synthesized by the ai-weighted
// reconciliation strategy.
const SourceReconciled = "reconciled_ai"

// DayKey groups records that describe the same company on the same UTC day.
type DayKey struct {
	CompanyID string
	Day       string // YYYY-MM-DD in UTC
}

// Key returns the (company, date) grouping key for reconciliation and
// deduplication.
func (r Record) Key() DayKey {
	return DayKey{
		CompanyID: r.CompanyID,
		Day:       r.Timestamp.UTC().Format("2006-01-02"),
	}
}

// PillarMean returns the unweighted mean of the three pillar scores.
func (r Record) PillarMean() float64 {
	return (r.EnvironmentalScore + r.SocialScore + r.GovernanceScore) / 3
}

// CombinedTolerance is the maximum absolute deviation allowed between the
// combined score and the pillar mean before a record is flagged
// inconsistent. Inconsistent records are flagged, not rejected.
const CombinedTolerance = 5.0

// CombinedConsistent reports whether the combined score agrees with the
// pillar mean within CombinedTolerance.
func (r Record) CombinedConsistent() bool {
	return math.Abs(r.CombinedScore-r.PillarMean()) <= CombinedTolerance
}

// Sanitize zeroes NaN pillar/combined scores. Adapters mark pillars the
// provider payload did not carry as NaN so the validator can see them as
// missing; NaN must not survive into serialized records.
func (r *Record) Sanitize() {
	for _, f := range []*float64{
		&r.EnvironmentalScore, &r.SocialScore, &r.GovernanceScore, &r.CombinedScore,
	} {
		if math.IsNaN(*f) {
			*f = 0
		}
	}
}

// MetricRange bounds an optional intensity/efficiency metric.
type MetricRange struct {
	Min float64
	Max float64
}

// ScoreMin and ScoreMax bound every pillar and combined score.
const (
	ScoreMin = 0.0
	ScoreMax = 100.0
)

// MetricRanges declares the valid range for each optional metric field.
// Shared by the quality validator and dataset statistics.
var MetricRanges = map[string]MetricRange{
	"carbon_intensity":      {Min: 0, Max: 1000},
	"water_intensity":       {Min: 0, Max: 500},
	"waste_intensity":       {Min: 0, Max: 100},
	"energy_efficiency":     {Min: 0, Max: 100},
	"employee_satisfaction": {Min: 0, Max: 100},
	"board_diversity":       {Min: 0, Max: 100},
}

// Metrics returns the optional metric fields that are set on the record,
// keyed by their canonical field name.
func (r Record) Metrics() map[string]float64 {
	out := make(map[string]float64)
	put := func(name string, v *float64) {
		if v != nil {
			out[name] = *v
		}
	}
	put("carbon_intensity", r.CarbonIntensity)
	put("water_intensity", r.WaterIntensity)
	put("waste_intensity", r.WasteIntensity)
	put("energy_efficiency", r.EnergyEfficiency)
	put("employee_satisfaction", r.EmployeeSatisfaction)
	put("board_diversity", r.BoardDiversity)
	return out
}
