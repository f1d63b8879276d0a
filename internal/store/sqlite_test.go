package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensiq/esg-pipeline/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleReport(id string) *model.CycleReport {
	started := time.Date(2026, 3, 10, 6, 0, 0, 0, time.UTC)
	return &model.CycleReport{
		ID:         id,
		State:      model.CycleDone,
		StartedAt:  started,
		FinishedAt: started.Add(3 * time.Minute),
		Stages: []model.StageResult{
			{Name: "ingesting", Status: model.StageComplete, RecordsOut: 120},
			{Name: "reconciling", Status: model.StageComplete, RecordsIn: 120, RecordsOut: 45},
		},
		Sources: []model.SourceOutcome{
			{Source: "refinitiv", Records: 60},
			{Source: "bloomberg", Records: 60},
		},
		TotalRecords: 45,
	}
}

func TestSQLiteCycleRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	report := sampleReport("cycle-1")
	require.NoError(t, s.SaveCycle(ctx, report))

	got, err := s.GetCycle(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, report.ID, got.ID)
	assert.Equal(t, model.CycleDone, got.State)
	assert.Len(t, got.Stages, 2)
	assert.Equal(t, 45, got.TotalRecords)
}

func TestSQLiteSaveCycleUpserts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	report := sampleReport("cycle-1")
	report.State = model.CycleIngesting
	require.NoError(t, s.SaveCycle(ctx, report))

	report.State = model.CycleDone
	require.NoError(t, s.SaveCycle(ctx, report))

	got, err := s.GetCycle(ctx, "cycle-1")
	require.NoError(t, err)
	assert.Equal(t, model.CycleDone, got.State)

	cycles, err := s.ListCycles(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func TestSQLiteGetCycleMissing(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetCycle(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSQLiteListCyclesNewestFirst(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	older := sampleReport("cycle-1")
	newer := sampleReport("cycle-2")
	newer.StartedAt = older.StartedAt.Add(time.Hour)
	require.NoError(t, s.SaveCycle(ctx, older))
	require.NoError(t, s.SaveCycle(ctx, newer))

	cycles, err := s.ListCycles(ctx, 10)
	require.NoError(t, err)
	require.Len(t, cycles, 2)
	assert.Equal(t, "cycle-2", cycles[0].ID)

	cycles, err = s.ListCycles(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, cycles, 1)
}

func TestSQLiteReliabilityRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	scores, err := s.GetReliability(ctx)
	require.NoError(t, err)
	assert.Empty(t, scores)

	require.NoError(t, s.SetReliability(ctx, map[string]float64{
		"refinitiv": 0.84,
		"bloomberg": 0.79,
	}))
	require.NoError(t, s.SetReliability(ctx, map[string]float64{
		"refinitiv": 0.86,
	}))

	scores, err = s.GetReliability(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.86, scores["refinitiv"], 1e-9)
	assert.InDelta(t, 0.79, scores["bloomberg"], 1e-9)
}
