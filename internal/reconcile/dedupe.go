package reconcile

import (
	"sort"

	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Dedupe keeps one record per (company, day), preferring the highest
// data quality score; ties keep the first record seen in input order. The
// operation is idempotent and its output is sorted by company then day.
func Dedupe(records []model.Record) []model.Record {
	if len(records) == 0 {
		return nil
	}

	best := make(map[model.DayKey]model.Record, len(records))
	for _, rec := range records {
		key := rec.Key()
		cur, seen := best[key]
		if !seen || rec.DataQualityScore > cur.DataQualityScore {
			best[key] = rec
		}
	}

	out := make([]model.Record, 0, len(best))
	for _, rec := range best {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		ki, kj := out[i].Key(), out[j].Key()
		if ki.CompanyID != kj.CompanyID {
			return ki.CompanyID < kj.CompanyID
		}
		return ki.Day < kj.Day
	})

	if dropped := len(records) - len(out); dropped > 0 {
		zap.L().Debug("dedupe: removed duplicate records",
			zap.Int("input", len(records)),
			zap.Int("output", len(out)),
			zap.Int("dropped", dropped),
		)
	}
	return out
}
