package dataset

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Assembler builds named datasets and train/validation/test splits. If the
// primary engine fails on write, the assembler falls back to the secondary
// engine for the rest of its lifetime.
type Assembler struct {
	primary  Writer
	fallback Writer
	degraded bool
}

// NewAssembler creates an assembler. The fallback writer may be nil, in
// which case primary failures are returned to the caller.
func NewAssembler(primary, fallback Writer) *Assembler {
	return &Assembler{primary: primary, fallback: fallback}
}

// Degraded reports whether the assembler has switched to its fallback
// engine.
func (a *Assembler) Degraded() bool { return a.degraded }

// writer returns the engine currently in use.
func (a *Assembler) writer() Writer {
	if a.degraded && a.fallback != nil {
		return a.fallback
	}
	return a.primary
}

// Create persists records as a named dataset and returns its info plus
// summary statistics.
func (a *Assembler) Create(ctx context.Context, name string, records []model.Record) (Info, Stats, error) {
	info, err := a.writer().Write(ctx, name, records)
	if err != nil && !a.degraded && a.fallback != nil {
		zap.L().Warn("dataset: primary engine failed, switching to fallback",
			zap.String("name", name),
			zap.Error(err),
		)
		a.degraded = true
		info, err = a.fallback.Write(ctx, name, records)
	}
	if err != nil {
		return Info{}, Stats{}, eris.Wrapf(err, "dataset: create %q", name)
	}
	return info, Compute(records), nil
}

// SplitRatios configures CreateSplits. Train takes whatever validation and
// test leave behind.
type SplitRatios struct {
	Validation float64
	Test       float64
}

// DefaultSplitRatios returns the standard 70/15/15 split.
func DefaultSplitRatios() SplitRatios {
	return SplitRatios{Validation: 0.15, Test: 0.15}
}

// Validate checks that the ratios leave room for a training split.
func (r SplitRatios) Validate() error {
	if r.Validation < 0 || r.Test < 0 {
		return eris.New("dataset: split ratios must be non-negative")
	}
	if r.Validation+r.Test >= 1 {
		return eris.Errorf("dataset: validation+test ratios must leave room for training, got %.2f",
			r.Validation+r.Test)
	}
	return nil
}

// Splits holds the three persisted split datasets.
type Splits struct {
	Train      Info `json:"train"`
	Validation Info `json:"validation"`
	Test       Info `json:"test"`
}

// CreateSplits shuffles records with the given seed and persists them as
// three datasets named <base>_train, <base>_validation, and <base>_test.
// The same seed and input always produce the same assignment.
func (a *Assembler) CreateSplits(ctx context.Context, base string, records []model.Record, ratios SplitRatios, seed uint64) (Splits, error) {
	if err := ratios.Validate(); err != nil {
		return Splits{}, err
	}
	if len(records) == 0 {
		return Splits{}, eris.New("dataset: no records to split")
	}

	shuffled := make([]model.Record, len(records))
	copy(shuffled, records)
	rng := rand.New(rand.NewPCG(seed, 0))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	n := len(shuffled)
	nVal := int(math.Round(float64(n) * ratios.Validation))
	nTest := int(math.Round(float64(n) * ratios.Test))
	nTrain := n - nVal - nTest

	var splits Splits
	var err error
	if splits.Train, _, err = a.Create(ctx, base+"_train", shuffled[:nTrain]); err != nil {
		return Splits{}, err
	}
	if splits.Validation, _, err = a.Create(ctx, base+"_validation", shuffled[nTrain:nTrain+nVal]); err != nil {
		return Splits{}, err
	}
	if splits.Test, _, err = a.Create(ctx, base+"_test", shuffled[nTrain+nVal:]); err != nil {
		return Splits{}, err
	}

	zap.L().Info("dataset: splits created",
		zap.String("base", base),
		zap.Int("train", nTrain),
		zap.Int("validation", nVal),
		zap.Int("test", nTest),
	)
	return splits, nil
}

// Read loads a dataset from the current engine.
func (a *Assembler) Read(ctx context.Context, name string) ([]model.Record, error) {
	return a.writer().Read(ctx, name)
}

// List enumerates datasets on the current engine.
func (a *Assembler) List(ctx context.Context) ([]Info, error) {
	return a.writer().List(ctx)
}

// Delete removes a dataset from the current engine.
func (a *Assembler) Delete(ctx context.Context, name string) error {
	return a.writer().Delete(ctx, name)
}

// Cleanup removes datasets created before the cutoff from the current
// engine.
func (a *Assembler) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	return a.writer().Cleanup(ctx, olderThan)
}
