package reconcile

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensiq/esg-pipeline/internal/model"
)

var testDay = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

func mkRecord(source string, quality, confidence float64) model.Record {
	return model.Record{
		CompanyID:          "AAPL",
		Timestamp:          testDay,
		DataSource:         source,
		EnvironmentalScore: 70,
		SocialScore:        60,
		GovernanceScore:    80,
		CombinedScore:      70,
		DataQualityScore:   quality,
		ConfidenceScore:    confidence,
	}
}

// fakeOracle returns a canned response or error.
type fakeOracle struct {
	resp map[string]any
	err  error
}

func (f *fakeOracle) Generate(_ context.Context, _ map[string]any, _ string) (map[string]any, error) {
	return f.resp, f.err
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("ai")
	require.NoError(t, err)
	assert.Equal(t, StrategyAI, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyConfidence, s)

	_, err = ParseStrategy("vote")
	assert.Error(t, err)
}

func TestReconcileSingleSourcePassthrough(t *testing.T) {
	eng := NewEngine(nil, nil, nil)
	rec := mkRecord("refinitiv", 0.9, 0.85)

	result, err := eng.Reconcile(context.Background(), map[string][]model.Record{
		"refinitiv": {rec},
	}, StrategyConfidence)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, rec, result.Records[0])
	assert.Zero(t, result.ConflictsResolved)
	assert.False(t, result.Degraded)
}

func TestReconcileConfidenceKeepsHighestBlend(t *testing.T) {
	eng := NewEngine(nil, nil, nil)

	// refinitiv blend: 0.6*0.95 + 0.4*0.92 = 0.938
	// bloomberg blend: 0.6*0.90 + 0.4*0.87 = 0.888
	bySource := map[string][]model.Record{
		"refinitiv": {mkRecord("refinitiv", 0.95, 0.92)},
		"bloomberg": {mkRecord("bloomberg", 0.90, 0.87)},
	}

	result, err := eng.Reconcile(context.Background(), bySource, StrategyConfidence)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "refinitiv", result.Records[0].DataSource)
	assert.Equal(t, 1, result.ConflictsResolved)
}

func TestReconcilePriorityOrder(t *testing.T) {
	eng := NewEngine(nil, nil, nil)

	bySource := map[string][]model.Record{
		"msci":      {mkRecord("msci", 0.99, 0.99)},
		"bloomberg": {mkRecord("bloomberg", 0.50, 0.50)},
	}

	result, err := eng.Reconcile(context.Background(), bySource, StrategyPriority)
	require.NoError(t, err)

	// bloomberg outranks msci regardless of quality.
	require.Len(t, result.Records, 1)
	assert.Equal(t, "bloomberg", result.Records[0].DataSource)
}

func TestReconcilePriorityFallsBackToFirstAvailable(t *testing.T) {
	eng := NewEngine(nil, nil, []string{"refinitiv"})

	bySource := map[string][]model.Record{
		"vendor_b": {mkRecord("vendor_b", 0.8, 0.8)},
		"vendor_a": {mkRecord("vendor_a", 0.7, 0.7)},
	}

	result, err := eng.Reconcile(context.Background(), bySource, StrategyPriority)
	require.NoError(t, err)

	// No listed source present: the first candidate in source order wins.
	require.Len(t, result.Records, 1)
	assert.Equal(t, "vendor_a", result.Records[0].DataSource)
}

func TestReconcileAIWeightedMean(t *testing.T) {
	a := mkRecord("refinitiv", 0.9, 0.9)
	a.EnvironmentalScore = 80
	b := mkRecord("bloomberg", 0.8, 0.8)
	b.EnvironmentalScore = 60

	client := &fakeOracle{resp: map[string]any{
		"weights":   map[string]any{"refinitiv": 0.6, "bloomberg": 0.4},
		"anomalies": []any{"bloomberg stale filing"},
	}}
	eng := NewEngine(client, nil, nil)

	result, err := eng.Reconcile(context.Background(), map[string][]model.Record{
		"refinitiv": {a},
		"bloomberg": {b},
	}, StrategyAI)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.Equal(t, model.SourceReconciled, rec.DataSource)
	// (80*0.6 + 60*0.4) / 1.0 = 72
	assert.InDelta(t, 72.0, rec.EnvironmentalScore, 1e-9)
	// quality = min(1, mean(weights)) = 0.5; confidence = min(1, sum) = 1.0
	assert.InDelta(t, 0.5, rec.DataQualityScore, 1e-9)
	assert.InDelta(t, 1.0, rec.ConfidenceScore, 1e-9)
	assert.Equal(t, []string{"bloomberg stale filing"}, result.Anomalies)
	assert.False(t, result.Degraded)
}

func TestReconcileAIQualityCountsAbsentSourceWeights(t *testing.T) {
	a := mkRecord("refinitiv", 0.9, 0.9)
	a.EnvironmentalScore = 80
	b := mkRecord("bloomberg", 0.8, 0.8)
	b.EnvironmentalScore = 60

	// The oracle weighs a source that sent nothing this cycle. Field
	// synthesis uses only the present sources, but quality averages the
	// full answer.
	client := &fakeOracle{resp: map[string]any{
		"weights": map[string]any{"refinitiv": 0.6, "bloomberg": 0.4, "msci": 0.5},
	}}
	eng := NewEngine(client, nil, nil)

	result, err := eng.Reconcile(context.Background(), map[string][]model.Record{
		"refinitiv": {a},
		"bloomberg": {b},
	}, StrategyAI)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	assert.InDelta(t, 72.0, rec.EnvironmentalScore, 1e-9)
	// quality = min(1, (0.6+0.4+0.5)/3) = 0.5; confidence sums applied weights.
	assert.InDelta(t, 0.5, rec.DataQualityScore, 1e-9)
	assert.InDelta(t, 1.0, rec.ConfidenceScore, 1e-9)
}

func TestReconcileAISkipsMissingPillar(t *testing.T) {
	a := mkRecord("refinitiv", 0.9, 0.9)
	b := mkRecord("bloomberg", 0.8, 0.8)
	b.GovernanceScore = math.NaN()
	b.EnvironmentalScore = 50

	client := &fakeOracle{resp: map[string]any{
		"weights": map[string]any{"refinitiv": 0.5, "bloomberg": 0.5},
	}}
	eng := NewEngine(client, nil, nil)

	result, err := eng.Reconcile(context.Background(), map[string][]model.Record{
		"refinitiv": {a},
		"bloomberg": {b},
	}, StrategyAI)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	rec := result.Records[0]
	// Governance comes from refinitiv alone; environmental averages both.
	assert.InDelta(t, 80.0, rec.GovernanceScore, 1e-9)
	assert.InDelta(t, 60.0, rec.EnvironmentalScore, 1e-9)
}

func TestReconcileAIFallsBackOnOracleError(t *testing.T) {
	eng := NewEngine(&fakeOracle{err: eris.New("model overloaded")}, nil, nil)

	bySource := map[string][]model.Record{
		"refinitiv": {mkRecord("refinitiv", 0.95, 0.92)},
		"bloomberg": {mkRecord("bloomberg", 0.90, 0.87)},
	}

	result, err := eng.Reconcile(context.Background(), bySource, StrategyAI)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "refinitiv", result.Records[0].DataSource)
	assert.True(t, result.Degraded)
}

func TestReconcileAIFallsBackOnUnusableWeights(t *testing.T) {
	eng := NewEngine(&fakeOracle{resp: map[string]any{"notes": "no weights here"}}, nil, nil)

	bySource := map[string][]model.Record{
		"refinitiv": {mkRecord("refinitiv", 0.95, 0.92)},
		"bloomberg": {mkRecord("bloomberg", 0.90, 0.87)},
	}

	result, err := eng.Reconcile(context.Background(), bySource, StrategyAI)
	require.NoError(t, err)

	require.Len(t, result.Records, 1)
	assert.Equal(t, "refinitiv", result.Records[0].DataSource)
	assert.True(t, result.Degraded)
}

func TestReconcileSourceWeights(t *testing.T) {
	eng := NewEngine(nil, nil, nil)

	bySource := map[string][]model.Record{
		"refinitiv": {mkRecord("refinitiv", 0.9, 0.8)},
	}

	result, err := eng.Reconcile(context.Background(), bySource, StrategyConfidence)
	require.NoError(t, err)

	// 0.4*0.9 + 0.4*0.8 + 0.2*0.8 (seed reliability) = 0.84
	assert.InDelta(t, 0.84, result.SourceWeights["refinitiv"], 1e-9)
	// EMA after update: 0.8*0.8 + 0.2*0.84 = 0.808
	assert.InDelta(t, 0.808, eng.Reliability().Get("refinitiv"), 1e-9)
}

func TestReconcileAggregateConfidence(t *testing.T) {
	eng := NewEngine(nil, nil, nil)

	r1 := mkRecord("refinitiv", 0.9, 0.8)
	r2 := mkRecord("refinitiv", 0.9, 0.6)
	r2.CompanyID = "MSFT"

	result, err := eng.Reconcile(context.Background(), map[string][]model.Record{
		"refinitiv": {r1, r2},
	}, StrategyConfidence)
	require.NoError(t, err)

	assert.InDelta(t, 0.7, result.ConfidenceScore, 1e-9)
}

func TestReconcileDeterministicOrder(t *testing.T) {
	eng := NewEngine(nil, nil, nil)

	recs := []model.Record{
		mkRecord("refinitiv", 0.9, 0.9),
		mkRecord("refinitiv", 0.9, 0.9),
	}
	recs[0].CompanyID = "MSFT"
	recs[1].CompanyID = "AAPL"

	result, err := eng.Reconcile(context.Background(), map[string][]model.Record{
		"refinitiv": recs,
	}, StrategyConfidence)
	require.NoError(t, err)

	require.Len(t, result.Records, 2)
	assert.Equal(t, "AAPL", result.Records[0].CompanyID)
	assert.Equal(t, "MSFT", result.Records[1].CompanyID)
}
