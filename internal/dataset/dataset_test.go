package dataset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensiq/esg-pipeline/internal/model"
)

func sampleRecords(n int) []model.Record {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Record, n)
	for i := range out {
		carbon := float64(100 + i)
		out[i] = model.Record{
			CompanyID:          "C" + string(rune('A'+i%5)),
			Timestamp:          base.AddDate(0, 0, i),
			DataSource:         "refinitiv",
			EnvironmentalScore: 50 + float64(i%40),
			SocialScore:        55,
			GovernanceScore:    65,
			CombinedScore:      60,
			CarbonIntensity:    &carbon,
			DataQualityScore:   0.9,
			ConfidenceScore:    0.85,
		}
	}
	return out
}

// engines drives the shared Writer contract tests against both engines.
func engines(t *testing.T) map[string]Writer {
	t.Helper()
	sq, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	ff, err := NewFlatFile(t.TempDir())
	require.NoError(t, err)

	return map[string]Writer{"sqlite": sq, "flatfile": ff}
}

func TestWriterRoundTrip(t *testing.T) {
	for name, w := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			records := sampleRecords(10)

			info, err := w.Write(ctx, "esg_daily", records)
			require.NoError(t, err)
			assert.Equal(t, "esg_daily", info.Name)
			assert.Equal(t, 10, info.Records)

			got, err := w.Read(ctx, "esg_daily")
			require.NoError(t, err)
			require.Len(t, got, 10)
			assert.Equal(t, records[0].CompanyID, got[0].CompanyID)
			require.NotNil(t, got[0].CarbonIntensity)
			assert.InDelta(t, *records[0].CarbonIntensity, *got[0].CarbonIntensity, 1e-9)
		})
	}
}

func TestWriterReplacesOnRewrite(t *testing.T) {
	for name, w := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := w.Write(ctx, "esg_daily", sampleRecords(10))
			require.NoError(t, err)
			_, err = w.Write(ctx, "esg_daily", sampleRecords(3))
			require.NoError(t, err)

			got, err := w.Read(ctx, "esg_daily")
			require.NoError(t, err)
			assert.Len(t, got, 3)
		})
	}
}

func TestWriterReadMissing(t *testing.T) {
	for name, w := range engines(t) {
		t.Run(name, func(t *testing.T) {
			_, err := w.Read(context.Background(), "nope")
			assert.Error(t, err)
		})
	}
}

func TestWriterListAndDelete(t *testing.T) {
	for name, w := range engines(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_, err := w.Write(ctx, "a", sampleRecords(2))
			require.NoError(t, err)
			_, err = w.Write(ctx, "b", sampleRecords(4))
			require.NoError(t, err)

			infos, err := w.List(ctx)
			require.NoError(t, err)
			assert.Len(t, infos, 2)

			require.NoError(t, w.Delete(ctx, "a"))
			infos, err = w.List(ctx)
			require.NoError(t, err)
			require.Len(t, infos, 1)
			assert.Equal(t, "b", infos[0].Name)

			assert.Error(t, w.Delete(ctx, "a"))
		})
	}
}

func TestSQLiteCleanup(t *testing.T) {
	w, err := NewSQLite(t.TempDir())
	require.NoError(t, err)
	defer w.Close()

	ctx := context.Background()
	_, err = w.Write(ctx, "old", sampleRecords(2))
	require.NoError(t, err)

	removed, err := w.Cleanup(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = w.Cleanup(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestOpenEngine(t *testing.T) {
	w, err := Open(EngineFlatFile, t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &FlatFileWriter{}, w)

	w, err = Open("", t.TempDir())
	require.NoError(t, err)
	assert.IsType(t, &SQLiteWriter{}, w)
	require.NoError(t, w.Close())

	_, err = Open("parquet", t.TempDir())
	assert.Error(t, err)
}
