package reconcile

import (
	"context"
	"math"

	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/pkg/oracle"
)

const weightsPrompt = `Analyze these ESG data sources for the same company and date and
determine reconciliation weights. Consider each source's data quality score,
confidence score, and the agreement between its scores and the others.
Respond with JSON only, shaped as:
{"weights": {"<source>": <0..1>, ...}, "confidence": <0..1>, "anomalies": ["..."]}`

// resolveByOracle asks the oracle to weight the conflicting sources and
// synthesizes a weighted-mean record from the answer. Any oracle or parse
// failure is returned to the caller, which falls back to the confidence
// strategy.
func (e *Engine) resolveByOracle(ctx context.Context, group []candidate) (model.Record, []string, error) {
	if e.oracle == nil {
		return model.Record{}, nil, eris.New("reconcile: no oracle configured")
	}

	resp, err := e.oracle.Generate(ctx, oracleContext(group), weightsPrompt)
	if err != nil {
		return model.Record{}, nil, eris.Wrap(err, "reconcile: oracle generate")
	}

	parsed, err := oracle.ParseWeights(resp)
	if err != nil {
		return model.Record{}, nil, eris.Wrap(err, "reconcile: parse weights")
	}

	rec, err := synthesize(group, parsed.Weights)
	if err != nil {
		return model.Record{}, nil, err
	}
	return rec, parsed.Anomalies, nil
}

// oracleContext serializes the conflict group for the oracle. Only fields
// that inform weighting are included.
func oracleContext(group []candidate) map[string]any {
	sources := make(map[string]any, len(group))
	for _, c := range group {
		entry := map[string]any{
			"environmental_score": c.record.EnvironmentalScore,
			"social_score":        c.record.SocialScore,
			"governance_score":    c.record.GovernanceScore,
			"combined_score":      c.record.CombinedScore,
			"data_quality_score":  c.record.DataQualityScore,
			"confidence_score":    c.record.ConfidenceScore,
		}
		for name, v := range c.record.Metrics() {
			entry[name] = v
		}
		sources[c.source] = entry
	}
	return map[string]any{
		"company_id": group[0].record.CompanyID,
		"date":       group[0].record.Timestamp.UTC().Format("2006-01-02"),
		"sources":    sources,
	}
}

// synthesize builds a weighted-mean record across the group. Every numeric
// field is averaged with the oracle's per-source weights; optional metrics
// are averaged over the sources that carry them. Identity fields come from
// the first candidate in source order.
func synthesize(group []candidate, weights map[string]float64) (model.Record, error) {
	// Keep only weights for sources actually present, and require at
	// least one positive weight to divide by.
	var total float64
	usable := make(map[string]float64, len(group))
	for _, c := range group {
		if w, ok := weights[c.source]; ok && w > 0 {
			usable[c.source] = w
			total += w
		}
	}
	if total == 0 {
		return model.Record{}, eris.New("reconcile: oracle weights cover no present source")
	}

	ref := group[0].record
	out := model.Record{
		CompanyID:  ref.CompanyID,
		Timestamp:  ref.Timestamp,
		DataSource: model.SourceReconciled,
		Sector:     ref.Sector,
		Region:     ref.Region,
		Revenue:    ref.Revenue,
		MarketCap:  ref.MarketCap,
	}

	out.EnvironmentalScore = weightedMean(group, usable, func(r model.Record) float64 { return r.EnvironmentalScore })
	out.SocialScore = weightedMean(group, usable, func(r model.Record) float64 { return r.SocialScore })
	out.GovernanceScore = weightedMean(group, usable, func(r model.Record) float64 { return r.GovernanceScore })
	out.CombinedScore = weightedMean(group, usable, func(r model.Record) float64 { return r.CombinedScore })

	out.CarbonIntensity = weightedMeanOpt(group, usable, func(r model.Record) *float64 { return r.CarbonIntensity })
	out.WaterIntensity = weightedMeanOpt(group, usable, func(r model.Record) *float64 { return r.WaterIntensity })
	out.WasteIntensity = weightedMeanOpt(group, usable, func(r model.Record) *float64 { return r.WasteIntensity })
	out.EnergyEfficiency = weightedMeanOpt(group, usable, func(r model.Record) *float64 { return r.EnergyEfficiency })
	out.EmployeeSatisfaction = weightedMeanOpt(group, usable, func(r model.Record) *float64 { return r.EmployeeSatisfaction })
	out.BoardDiversity = weightedMeanOpt(group, usable, func(r model.Record) *float64 { return r.BoardDiversity })

	// Quality reflects the mean over the full oracle answer, including
	// weights for absent sources; low or misdirected weights show up as
	// lower quality. Confidence sums only the weights actually applied.
	var full float64
	for _, w := range weights {
		full += w
	}
	out.DataQualityScore = math.Min(1, full/float64(len(weights)))
	out.ConfidenceScore = math.Min(1, total)
	return out, nil
}

// weightedMean averages a required field across weighted candidates. NaN
// marks a missing pillar and is skipped.
func weightedMean(group []candidate, weights map[string]float64, get func(model.Record) float64) float64 {
	var sum, total float64
	for _, c := range group {
		w, ok := weights[c.source]
		if !ok {
			continue
		}
		v := get(c.record)
		if math.IsNaN(v) {
			continue
		}
		sum += v * w
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// weightedMeanOpt averages an optional metric over the weighted candidates
// that carry it, or nil when none do.
func weightedMeanOpt(group []candidate, weights map[string]float64, get func(model.Record) *float64) *float64 {
	var sum, total float64
	for _, c := range group {
		w, ok := weights[c.source]
		if !ok {
			continue
		}
		v := get(c.record)
		if v == nil {
			continue
		}
		sum += *v * w
		total += w
	}
	if total == 0 {
		return nil
	}
	mean := sum / total
	return &mean
}
