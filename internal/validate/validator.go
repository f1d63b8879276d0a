// Package validate scores canonical ESG records along five independent
// quality dimensions and decides whether a batch is production-acceptable.
package validate

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Thresholds holds the acceptance gates for a batch quality report.
type Thresholds struct {
	Overall      float64
	Completeness float64
	Validity     float64
	Authenticity float64
}

// DefaultThresholds returns the production acceptance gates.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Overall:      0.80,
		Completeness: 0.95,
		Validity:     0.90,
		Authenticity: 0.90,
	}
}

// RecordThreshold is the minimum overall score a single record must reach
// to survive adapter ingestion.
const RecordThreshold = 0.7

// Timeliness window boundaries.
const (
	freshAge = 24 * time.Hour
	staleAge = 168 * time.Hour
)

// Validator scores records and batches. The zero value is not usable;
// construct with New.
type Validator struct {
	thresholds Thresholds
	now        func() time.Time
	ranges     map[string]Rule
}

// New creates a Validator with the given thresholds.
func New(thresholds Thresholds) *Validator {
	return &Validator{
		thresholds: thresholds,
		now:        time.Now,
	}
}

// WithNow fixes the validator's clock for testing.
func (v *Validator) WithNow(now func() time.Time) *Validator {
	v.now = now
	return v
}

// ApplyRules replaces the validity ranges with generated rules. Fields
// without a rule keep their built-in range. Not safe to call while
// validation is running; the pipeline applies rules before ingestion
// starts.
func (v *Validator) ApplyRules(rules []Rule) {
	ranges := make(map[string]Rule, len(rules))
	for _, r := range rules {
		ranges[r.Field] = r
	}
	v.ranges = ranges
}

// rangeFor returns the active validity range for a field.
func (v *Validator) rangeFor(field string, defMin, defMax float64) (float64, float64) {
	if r, ok := v.ranges[field]; ok {
		return r.Min, r.Max
	}
	return defMin, defMax
}

// Score validates a single record along all five dimensions and returns a
// one-record quality report. The record itself is not mutated; callers
// apply the overall score to DataQualityScore.
func (v *Validator) Score(rec model.Record) model.QualityReport {
	results := v.check(rec)
	return buildReport(results, rec.DataSource, 1, v.now())
}

// Validate scores a batch of records from one source. Dimension scores are
// averaged across all records; the overall score is the mean of the
// dimension averages.
func (v *Validator) Validate(records []model.Record, sourceName string) model.QualityReport {
	var all []model.ValidationResult
	for i, rec := range records {
		for _, res := range v.check(rec) {
			if res.Details == nil {
				res.Details = map[string]any{}
			}
			res.Details["record_index"] = i
			all = append(all, res)
		}
	}
	return buildReport(all, sourceName, len(records), v.now())
}

// Acceptable reports whether a batch quality report meets the production
// gates: overall score, the completeness/validity/authenticity dimension
// thresholds, and zero critical findings.
func (v *Validator) Acceptable(report model.QualityReport) bool {
	if report.OverallScore < v.thresholds.Overall {
		return false
	}
	if report.DimensionScores[model.DimCompleteness] < v.thresholds.Completeness {
		return false
	}
	if report.DimensionScores[model.DimValidity] < v.thresholds.Validity {
		return false
	}
	if report.DimensionScores[model.DimAuthenticity] < v.thresholds.Authenticity {
		return false
	}
	return report.CriticalCount() == 0
}

func (v *Validator) check(rec model.Record) []model.ValidationResult {
	return []model.ValidationResult{
		checkCompleteness(rec),
		v.checkValidity(rec),
		checkConsistency(rec),
		v.checkTimeliness(rec),
		checkAuthenticity(rec),
	}
}

func buildReport(results []model.ValidationResult, source string, recordCount int, now time.Time) model.QualityReport {
	dimScores := make(map[model.Dimension]float64, len(model.Dimensions))
	for _, dim := range model.Dimensions {
		var sum float64
		var n int
		for _, res := range results {
			if res.Dimension == dim {
				sum += res.Score
				n++
			}
		}
		if n == 0 {
			dimScores[dim] = 1.0
			continue
		}
		dimScores[dim] = sum / float64(n)
	}

	var overall float64
	for _, dim := range model.Dimensions {
		overall += dimScores[dim]
	}
	overall /= float64(len(model.Dimensions))

	return model.QualityReport{
		OverallScore:    overall,
		DimensionScores: dimScores,
		Results:         results,
		DataSource:      source,
		RecordCount:     recordCount,
		GeneratedAt:     now.UTC(),
	}
}

// pillarPresent treats NaN as the in-memory marker for a pillar the
// provider payload did not carry. Adapters sanitize NaN away after scoring.
func pillarPresent(v float64) bool {
	return !math.IsNaN(v)
}

func checkCompleteness(rec model.Record) model.ValidationResult {
	var missingID []string
	if rec.CompanyID == "" {
		missingID = append(missingID, "company_id")
	}
	if rec.Timestamp.IsZero() {
		missingID = append(missingID, "timestamp")
	}
	if rec.DataSource == "" {
		missingID = append(missingID, "data_source")
	}
	if len(missingID) > 0 {
		return model.ValidationResult{
			Dimension: model.DimCompleteness,
			Severity:  model.SeverityError,
			Score:     0,
			Message:   "missing required fields: " + strings.Join(missingID, ", "),
			Details:   map[string]any{"missing_fields": missingID},
		}
	}

	var missingPillars []string
	for name, score := range map[string]float64{
		"environmental_score": rec.EnvironmentalScore,
		"social_score":        rec.SocialScore,
		"governance_score":    rec.GovernanceScore,
	} {
		if !pillarPresent(score) {
			missingPillars = append(missingPillars, name)
		}
	}

	if len(missingPillars) > 0 {
		return model.ValidationResult{
			Dimension: model.DimCompleteness,
			Severity:  model.SeverityWarning,
			Score:     1.0 - float64(len(missingPillars))/3.0,
			Message:   "missing pillar scores: " + strings.Join(missingPillars, ", "),
			Details:   map[string]any{"missing_scores": missingPillars},
		}
	}

	return model.ValidationResult{
		Dimension: model.DimCompleteness,
		Severity:  model.SeverityInfo,
		Score:     1.0,
		Message:   "all required fields present",
	}
}

func (v *Validator) checkValidity(rec model.Record) model.ValidationResult {
	var invalid []string
	checked := 0

	scoreFields := map[string]float64{
		"environmental_score": rec.EnvironmentalScore,
		"social_score":        rec.SocialScore,
		"governance_score":    rec.GovernanceScore,
		"combined_score":      rec.CombinedScore,
	}
	for name, val := range scoreFields {
		if !pillarPresent(val) {
			continue
		}
		checked++
		lo, hi := v.rangeFor(name, model.ScoreMin, model.ScoreMax)
		if val < lo || val > hi {
			invalid = append(invalid, fmt.Sprintf("%s: %.2f not in range [%.0f, %.0f]", name, val, lo, hi))
		}
	}

	for name, val := range rec.Metrics() {
		r := model.MetricRanges[name]
		checked++
		lo, hi := v.rangeFor(name, r.Min, r.Max)
		if val < lo || val > hi {
			invalid = append(invalid, fmt.Sprintf("%s: %.2f not in range [%.0f, %.0f]", name, val, lo, hi))
		}
	}

	if checked == 0 {
		checked = 1
	}
	score := 1.0 - float64(len(invalid))/float64(checked)

	if len(invalid) > 0 {
		sev := model.SeverityWarning
		if score < 0.5 {
			sev = model.SeverityError
		}
		return model.ValidationResult{
			Dimension: model.DimValidity,
			Severity:  sev,
			Score:     score,
			Message:   "invalid values: " + strings.Join(invalid, "; "),
			Details:   map[string]any{"invalid_fields": invalid},
		}
	}

	return model.ValidationResult{
		Dimension: model.DimValidity,
		Severity:  model.SeverityInfo,
		Score:     1.0,
		Message:   "all values within declared ranges",
	}
}

func checkConsistency(rec model.Record) model.ValidationResult {
	var issues []string
	checked := 0

	allPresent := pillarPresent(rec.EnvironmentalScore) &&
		pillarPresent(rec.SocialScore) &&
		pillarPresent(rec.GovernanceScore) &&
		pillarPresent(rec.CombinedScore)
	if allPresent {
		checked++
		if !rec.CombinedConsistent() {
			issues = append(issues, fmt.Sprintf(
				"combined score %.1f inconsistent with pillar mean %.1f",
				rec.CombinedScore, rec.PillarMean(),
			))
		}
	}

	// Canonical records carry confidence in [0, 1].
	checked++
	if rec.ConfidenceScore < 0 || rec.ConfidenceScore > 1 {
		issues = append(issues, fmt.Sprintf("confidence score %.2f not in [0, 1]", rec.ConfidenceScore))
	}

	score := 1.0 - float64(len(issues))/float64(checked)

	if len(issues) > 0 {
		return model.ValidationResult{
			Dimension: model.DimConsistency,
			Severity:  model.SeverityWarning,
			Score:     score,
			Message:   "consistency issues: " + strings.Join(issues, "; "),
			Details:   map[string]any{"inconsistencies": issues},
		}
	}

	return model.ValidationResult{
		Dimension: model.DimConsistency,
		Severity:  model.SeverityInfo,
		Score:     1.0,
		Message:   "record is internally consistent",
	}
}

func (v *Validator) checkTimeliness(rec model.Record) model.ValidationResult {
	if rec.Timestamp.IsZero() {
		return model.ValidationResult{
			Dimension: model.DimTimeliness,
			Severity:  model.SeverityError,
			Score:     0,
			Message:   "no timestamp provided",
		}
	}

	age := v.now().Sub(rec.Timestamp)
	ageHours := age.Hours()

	switch {
	case age < 0:
		return model.ValidationResult{
			Dimension: model.DimTimeliness,
			Severity:  model.SeverityError,
			Score:     0,
			Message:   "future timestamp",
			Details:   map[string]any{"age_hours": ageHours},
		}
	case age <= freshAge:
		return model.ValidationResult{
			Dimension: model.DimTimeliness,
			Severity:  model.SeverityInfo,
			Score:     1.0,
			Message:   "fresh",
			Details:   map[string]any{"age_hours": ageHours},
		}
	case age <= staleAge:
		score := 1.0 - (ageHours-freshAge.Hours())/(staleAge.Hours()-freshAge.Hours())
		return model.ValidationResult{
			Dimension: model.DimTimeliness,
			Severity:  model.SeverityWarning,
			Score:     score,
			Message:   fmt.Sprintf("record is %.1f hours old", ageHours),
			Details:   map[string]any{"age_hours": ageHours},
		}
	default:
		return model.ValidationResult{
			Dimension: model.DimTimeliness,
			Severity:  model.SeverityError,
			Score:     0,
			Message:   "stale",
			Details:   map[string]any{"age_hours": ageHours},
		}
	}
}

var mockCompanyPattern = regexp.MustCompile(`^(mock|test|demo)_.*_\d+$`)

// checkAuthenticity is a heuristic synthetic-data detector. The
// round-score check is a weak proxy and can misclassify genuinely round
// real-world scores; it is preserved for compatibility, not correctness.
func checkAuthenticity(rec model.Record) model.ValidationResult {
	var indicators []string

	source := strings.ToLower(rec.DataSource)
	if source == "mock" {
		indicators = append(indicators, "explicit mock source")
	} else if strings.Contains(source, "mock") || strings.Contains(source, "test") || strings.Contains(source, "demo") {
		indicators = append(indicators, "mock provider: "+source)
	}

	round := 0
	for _, v := range []float64{rec.EnvironmentalScore, rec.SocialScore, rec.GovernanceScore, rec.CombinedScore} {
		if !pillarPresent(v) {
			continue
		}
		if v == math.Trunc(v) || v*2 == math.Trunc(v*2) {
			round++
		}
	}
	if round >= 3 {
		indicators = append(indicators, "suspiciously round scores")
	}

	if mockCompanyPattern.MatchString(rec.CompanyID) {
		indicators = append(indicators, "sequential mock company ID pattern")
	}

	if len(indicators) > 0 {
		zap.L().Debug("authenticity check flagged record",
			zap.String("company_id", rec.CompanyID),
			zap.String("source", rec.DataSource),
			zap.Strings("indicators", indicators),
		)
		return model.ValidationResult{
			Dimension: model.DimAuthenticity,
			Severity:  model.SeverityCritical,
			Score:     0,
			Message:   "mock/fake data detected: " + strings.Join(indicators, ", "),
			Details:   map[string]any{"mock_indicators": indicators},
		}
	}

	return model.ValidationResult{
		Dimension: model.DimAuthenticity,
		Severity:  model.SeverityInfo,
		Score:     1.0,
		Message:   "record appears authentic",
	}
}
