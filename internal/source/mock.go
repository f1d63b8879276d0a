package source

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"time"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// mockAdapter generates deterministic synthetic records for development
// and integration tests. Records are tagged with the "mock" source so the
// authenticity dimension flags them downstream; the adapter deliberately
// skips per-record quality screening.
type mockAdapter struct {
	name string
	seed uint64
}

// NewMock builds the synthetic adapter. The same seed and inputs always
// produce the same records.
func NewMock(seed uint64) Adapter {
	return &mockAdapter{name: "mock", seed: seed}
}

func (m *mockAdapter) Name() string { return m.name }

func (m *mockAdapter) Ingest(ctx context.Context, companyIDs []string, start, end time.Time) ([]model.Record, error) {
	var out []model.Record
	day := start.UTC().Truncate(24 * time.Hour)
	last := end.UTC().Truncate(24 * time.Hour)

	for !day.After(last) {
		for _, companyID := range companyIDs {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out = append(out, m.generate(companyID, day))
		}
		day = day.Add(24 * time.Hour)
	}
	return out, nil
}

func (m *mockAdapter) generate(companyID string, day time.Time) model.Record {
	rng := rand.New(rand.NewPCG(m.seed, companySeed(companyID, day)))

	env := 30 + rng.Float64()*60
	soc := 30 + rng.Float64()*60
	gov := 30 + rng.Float64()*60
	carbon := rng.Float64() * 400
	board := 10 + rng.Float64()*50

	return model.Record{
		CompanyID:          companyID,
		Timestamp:          day,
		DataSource:         m.name,
		EnvironmentalScore: env,
		SocialScore:        soc,
		GovernanceScore:    gov,
		CombinedScore:      (env + soc + gov) / 3,
		CarbonIntensity:    &carbon,
		BoardDiversity:     &board,
		Sector:             "synthetic",
		DataQualityScore:   0.75 + rng.Float64()*0.2,
		ConfidenceScore:    0.7 + rng.Float64()*0.25,
	}
}

func companySeed(companyID string, day time.Time) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(companyID))
	_, _ = h.Write([]byte(day.Format("2006-01-02")))
	return h.Sum64()
}
