package model

import "time"

// Dimension is one axis of the data quality model.
type Dimension string

const (
	DimCompleteness Dimension = "completeness"
	DimValidity     Dimension = "validity"
	DimConsistency  Dimension = "consistency"
	DimTimeliness   Dimension = "timeliness"
	DimAuthenticity Dimension = "authenticity"
)

// Dimensions lists every quality dimension in report order.
var Dimensions = []Dimension{
	DimCompleteness,
	DimValidity,
	DimConsistency,
	DimTimeliness,
	DimAuthenticity,
}

// Severity grades a validation finding.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// ValidationResult is one dimension's verdict for one record.
type ValidationResult struct {
	Dimension Dimension      `json:"dimension"`
	Severity  Severity       `json:"severity"`
	Score     float64        `json:"score"` // 0.0 to 1.0
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// QualityReport aggregates validation results for a batch of records.
type QualityReport struct {
	OverallScore    float64               `json:"overall_score"`
	DimensionScores map[Dimension]float64 `json:"dimension_scores"`
	Results         []ValidationResult    `json:"results"`
	DataSource      string                `json:"data_source"`
	RecordCount     int                   `json:"record_count"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

// CriticalCount returns the number of critical-severity results.
func (r QualityReport) CriticalCount() int {
	n := 0
	for _, res := range r.Results {
		if res.Severity == SeverityCritical {
			n++
		}
	}
	return n
}
