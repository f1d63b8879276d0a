package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// failingWriter always fails writes, to exercise the fallback path.
type failingWriter struct{}

func (failingWriter) Write(context.Context, string, []model.Record) (Info, error) {
	return Info{}, eris.New("disk full")
}
func (failingWriter) Read(context.Context, string) ([]model.Record, error) {
	return nil, eris.New("disk full")
}
func (failingWriter) List(context.Context) ([]Info, error)          { return nil, eris.New("disk full") }
func (failingWriter) Delete(context.Context, string) error          { return eris.New("disk full") }
func (failingWriter) Cleanup(context.Context, time.Time) (int, error) {
	return 0, eris.New("disk full")
}
func (failingWriter) Close() error { return nil }

func newTestAssembler(t *testing.T) *Assembler {
	t.Helper()
	ff, err := NewFlatFile(t.TempDir())
	require.NoError(t, err)
	return NewAssembler(ff, nil)
}

func TestAssemblerCreate(t *testing.T) {
	a := newTestAssembler(t)

	info, stats, err := a.Create(context.Background(), "esg_daily", sampleRecords(20))
	require.NoError(t, err)

	assert.Equal(t, 20, info.Records)
	assert.Equal(t, 20, stats.Records)
	assert.Equal(t, 5, stats.Companies)
	assert.Equal(t, []string{"refinitiv"}, stats.Sources)
	assert.False(t, a.Degraded())
}

func TestAssemblerFallsBackOnPrimaryFailure(t *testing.T) {
	ff, err := NewFlatFile(t.TempDir())
	require.NoError(t, err)
	a := NewAssembler(failingWriter{}, ff)

	info, _, err := a.Create(context.Background(), "esg_daily", sampleRecords(5))
	require.NoError(t, err)
	assert.Equal(t, 5, info.Records)
	assert.True(t, a.Degraded())

	// Subsequent reads go to the fallback engine.
	got, err := a.Read(context.Background(), "esg_daily")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestAssemblerNoFallbackPropagatesError(t *testing.T) {
	a := NewAssembler(failingWriter{}, nil)
	_, _, err := a.Create(context.Background(), "esg_daily", sampleRecords(5))
	assert.Error(t, err)
	assert.False(t, a.Degraded())
}

func TestCreateSplitsDeterministic(t *testing.T) {
	records := sampleRecords(100)

	a1 := newTestAssembler(t)
	s1, err := a1.CreateSplits(context.Background(), "esg", records, DefaultSplitRatios(), 42)
	require.NoError(t, err)

	a2 := newTestAssembler(t)
	_, err = a2.CreateSplits(context.Background(), "esg", records, DefaultSplitRatios(), 42)
	require.NoError(t, err)

	// 70/15/15 of 100.
	assert.Equal(t, 70, s1.Train.Records)
	assert.Equal(t, 15, s1.Validation.Records)
	assert.Equal(t, 15, s1.Test.Records)

	train1, err := a1.Read(context.Background(), "esg_train")
	require.NoError(t, err)
	train2, err := a2.Read(context.Background(), "esg_train")
	require.NoError(t, err)
	assert.Equal(t, train1, train2)
}

func TestCreateSplitsSeedChangesAssignment(t *testing.T) {
	records := sampleRecords(100)

	a := newTestAssembler(t)
	_, err := a.CreateSplits(context.Background(), "s1", records, DefaultSplitRatios(), 1)
	require.NoError(t, err)
	_, err = a.CreateSplits(context.Background(), "s2", records, DefaultSplitRatios(), 2)
	require.NoError(t, err)

	t1, err := a.Read(context.Background(), "s1_train")
	require.NoError(t, err)
	t2, err := a.Read(context.Background(), "s2_train")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
}

func TestCreateSplitsRejectsBadRatios(t *testing.T) {
	a := newTestAssembler(t)

	_, err := a.CreateSplits(context.Background(), "esg", sampleRecords(10),
		SplitRatios{Validation: 0.5, Test: 0.5}, 1)
	assert.Error(t, err)

	_, err = a.CreateSplits(context.Background(), "esg", sampleRecords(10),
		SplitRatios{Validation: -0.1, Test: 0.1}, 1)
	assert.Error(t, err)

	_, err = a.CreateSplits(context.Background(), "esg", nil, DefaultSplitRatios(), 1)
	assert.Error(t, err)
}

func TestComputeStats(t *testing.T) {
	records := sampleRecords(4)
	stats := Compute(records)

	assert.Equal(t, 4, stats.Records)
	assert.Equal(t, records[0].Timestamp, stats.Earliest)
	assert.Equal(t, records[3].Timestamp, stats.Latest)

	env := stats.Fields["environmental_score"]
	assert.Equal(t, 4, env.Count)
	// Scores 50, 51, 52, 53.
	assert.InDelta(t, 51.5, env.Mean, 1e-9)
	assert.InDelta(t, 50, env.Min, 1e-9)
	assert.InDelta(t, 53, env.Max, 1e-9)

	carbon := stats.Fields["carbon_intensity"]
	assert.Equal(t, 4, carbon.Count)

	empty := Compute(nil)
	assert.Zero(t, empty.Records)
	assert.Empty(t, empty.Fields)
}
