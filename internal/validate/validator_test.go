package validate

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensiq/esg-pipeline/internal/model"
)

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestValidator() *Validator {
	return New(DefaultThresholds()).WithNow(func() time.Time { return fixedNow })
}

func goodRecord() model.Record {
	return model.Record{
		CompanyID:          "AAPL",
		Timestamp:          fixedNow.Add(-6 * time.Hour),
		DataSource:         "refinitiv",
		EnvironmentalScore: 72.3,
		SocialScore:        65.7,
		GovernanceScore:    80.1,
		CombinedScore:      72.7,
		ConfidenceScore:    0.9,
	}
}

func dimResult(t *testing.T, report model.QualityReport, dim model.Dimension) model.ValidationResult {
	t.Helper()
	for _, res := range report.Results {
		if res.Dimension == dim {
			return res
		}
	}
	t.Fatalf("no result for dimension %s", dim)
	return model.ValidationResult{}
}

func TestScoreCleanRecord(t *testing.T) {
	v := newTestValidator()

	report := v.Score(goodRecord())

	assert.InDelta(t, 1.0, report.OverallScore, 1e-9)
	for _, dim := range model.Dimensions {
		assert.InDelta(t, 1.0, report.DimensionScores[dim], 1e-9, "dimension %s", dim)
	}
	assert.Equal(t, 1, report.RecordCount)
	assert.Zero(t, report.CriticalCount())
}

func TestCompletenessMissingIdentity(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.CompanyID = ""

	res := dimResult(t, v.Score(rec), model.DimCompleteness)
	assert.Equal(t, model.SeverityError, res.Severity)
	assert.Zero(t, res.Score)
}

func TestCompletenessMissingPillars(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.SocialScore = math.NaN()

	res := dimResult(t, v.Score(rec), model.DimCompleteness)
	assert.Equal(t, model.SeverityWarning, res.Severity)
	assert.InDelta(t, 2.0/3.0, res.Score, 1e-9)
}

func TestValidityOutOfRange(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.EnvironmentalScore = 120.4

	res := dimResult(t, v.Score(rec), model.DimValidity)
	assert.InDelta(t, 0.75, res.Score, 1e-9)
	assert.Equal(t, model.SeverityWarning, res.Severity)
}

func TestValidityMetricOutOfRange(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	over := 1500.0
	rec.CarbonIntensity = &over

	res := dimResult(t, v.Score(rec), model.DimValidity)
	// 4 score fields plus 1 metric checked, 1 invalid.
	assert.InDelta(t, 0.8, res.Score, 1e-9)
}

func TestConsistencyCombinedDeviation(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.CombinedScore = rec.PillarMean() + 10

	res := dimResult(t, v.Score(rec), model.DimConsistency)
	assert.Equal(t, model.SeverityWarning, res.Severity)
	assert.InDelta(t, 0.5, res.Score, 1e-9)
}

func TestConsistencyConfidenceOutOfRange(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.ConfidenceScore = 1.5

	res := dimResult(t, v.Score(rec), model.DimConsistency)
	assert.Less(t, res.Score, 1.0)
}

func TestTimelinessWindows(t *testing.T) {
	v := newTestValidator()

	tests := []struct {
		name      string
		age       time.Duration
		wantScore float64
		wantSev   model.Severity
	}{
		{"fresh", 6 * time.Hour, 1.0, model.SeverityInfo},
		{"aging midpoint", 96 * time.Hour, 0.5, model.SeverityWarning},
		{"stale", 200 * time.Hour, 0, model.SeverityError},
		{"future", -2 * time.Hour, 0, model.SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := goodRecord()
			rec.Timestamp = fixedNow.Add(-tt.age)

			res := dimResult(t, v.Score(rec), model.DimTimeliness)
			assert.InDelta(t, tt.wantScore, res.Score, 1e-9)
			assert.Equal(t, tt.wantSev, res.Severity)
		})
	}
}

func TestAuthenticityFlagsMockSource(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.DataSource = "mock"

	res := dimResult(t, v.Score(rec), model.DimAuthenticity)
	assert.Equal(t, model.SeverityCritical, res.Severity)
	assert.Zero(t, res.Score)
}

func TestAuthenticityFlagsRoundScores(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.EnvironmentalScore = 60
	rec.SocialScore = 70
	rec.GovernanceScore = 80
	rec.CombinedScore = 70

	res := dimResult(t, v.Score(rec), model.DimAuthenticity)
	assert.Equal(t, model.SeverityCritical, res.Severity)
}

func TestAuthenticityFlagsSequentialCompanyID(t *testing.T) {
	v := newTestValidator()
	rec := goodRecord()
	rec.CompanyID = "mock_acme_42"

	res := dimResult(t, v.Score(rec), model.DimAuthenticity)
	assert.Equal(t, model.SeverityCritical, res.Severity)
}

func TestValidateBatchIndexesResults(t *testing.T) {
	v := newTestValidator()
	records := []model.Record{goodRecord(), goodRecord()}
	records[1].CompanyID = "MSFT"

	report := v.Validate(records, "refinitiv")

	assert.Equal(t, 2, report.RecordCount)
	assert.Equal(t, "refinitiv", report.DataSource)
	require.Len(t, report.Results, 2*len(model.Dimensions))
	assert.Equal(t, 0, report.Results[0].Details["record_index"])
	assert.Equal(t, 1, report.Results[len(model.Dimensions)].Details["record_index"])
}

func TestAcceptable(t *testing.T) {
	v := newTestValidator()

	good := v.Validate([]model.Record{goodRecord()}, "refinitiv")
	assert.True(t, v.Acceptable(good))

	mock := goodRecord()
	mock.DataSource = "mock"
	flagged := v.Validate([]model.Record{mock}, "mock")
	assert.False(t, v.Acceptable(flagged), "critical finding must fail acceptance")
}

func TestAcceptableOverallThreshold(t *testing.T) {
	v := newTestValidator()
	report := model.QualityReport{
		OverallScore: 0.79,
		DimensionScores: map[model.Dimension]float64{
			model.DimCompleteness: 1, model.DimValidity: 1, model.DimAuthenticity: 1,
		},
	}
	assert.False(t, v.Acceptable(report))

	report.OverallScore = 0.81
	assert.True(t, v.Acceptable(report))
}

func TestApplyRulesNarrowsValidityRanges(t *testing.T) {
	v := newTestValidator()
	v.ApplyRules([]Rule{
		{Field: "environmental_score", Min: 0, Max: 50, Required: true, Confidence: 0.9},
	})

	rec := goodRecord() // environmental 72.3, valid by the built-in range
	res := dimResult(t, v.Score(rec), model.DimValidity)
	assert.InDelta(t, 0.75, res.Score, 1e-9)

	// Fields without a generated rule keep their built-in range.
	rec.EnvironmentalScore = 40.2
	res = dimResult(t, v.Score(rec), model.DimValidity)
	assert.InDelta(t, 1.0, res.Score, 1e-9)
}

func TestApplyRulesCoversMetrics(t *testing.T) {
	v := newTestValidator()
	v.ApplyRules([]Rule{
		{Field: "carbon_intensity", Min: 0, Max: 100, Required: false, Confidence: 0.9},
	})

	rec := goodRecord()
	carbon := 250.0 // fine at the default 1000 ceiling, over the adaptive one
	rec.CarbonIntensity = &carbon

	res := dimResult(t, v.Score(rec), model.DimValidity)
	assert.InDelta(t, 0.8, res.Score, 1e-9)
}
