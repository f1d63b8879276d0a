package reconcile

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/pkg/oracle"
)

// Strategy selects how conflicting groups are resolved.
type Strategy string

const (
	// StrategyConfidence keeps the candidate with the highest blended
	// quality/confidence score. Also the fallback for StrategyAI.
	StrategyConfidence Strategy = "confidence"

	// StrategyPriority returns the first record found in the configured
	// source preference order.
	StrategyPriority Strategy = "priority"

	// StrategyAI asks the oracle for per-source weights and synthesizes a
	// weighted record.
	StrategyAI Strategy = "ai"
)

// ParseStrategy converts a config string into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyConfidence, StrategyPriority, StrategyAI:
		return Strategy(s), nil
	case "":
		return StrategyConfidence, nil
	default:
		return "", eris.Errorf("reconcile: unknown strategy %q (valid: confidence, priority, ai)", s)
	}
}

// DefaultPriority is the source preference order used by StrategyPriority
// when none is configured.
var DefaultPriority = []string{"refinitiv", "bloomberg", "msci", "sustainalytics", "sec_edgar"}

// Engine reconciles multi-source record batches.
type Engine struct {
	oracle      oracle.Client
	reliability *ReliabilityTracker
	priority    []string
}

// NewEngine creates an Engine. The oracle client may be nil, in which case
// StrategyAI always falls back to confidence-based resolution.
func NewEngine(client oracle.Client, reliability *ReliabilityTracker, priority []string) *Engine {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	if reliability == nil {
		reliability = NewReliabilityTracker()
	}
	return &Engine{
		oracle:      client,
		reliability: reliability,
		priority:    priority,
	}
}

// Reliability exposes the engine's tracker for persistence and reporting.
func (e *Engine) Reliability() *ReliabilityTracker {
	return e.reliability
}

// candidate is one source's record within a conflict group.
type candidate struct {
	source string
	record model.Record
}

// Reconcile groups all input records by (company, day) and resolves each
// group with the selected strategy. A single group's failure is logged and
// excluded; it never aborts the batch. After resolution the per-source
// reliability EMAs are updated from this batch's weights.
func (e *Engine) Reconcile(ctx context.Context, bySource map[string][]model.Record, strategy Strategy) (*model.ReconciliationResult, error) {
	groups := groupBySourceAndDay(bySource)

	result := &model.ReconciliationResult{
		SourceWeights: make(map[string]float64),
	}

	for _, key := range sortedKeys(groups) {
		group := groups[key]
		if len(group) == 1 {
			// One source contributed: pass through unchanged.
			result.Records = append(result.Records, group[0].record)
			continue
		}

		resolved, anomalies, err := e.resolveGroup(ctx, group, strategy, result)
		if err != nil {
			zap.L().Warn("reconcile: group resolution failed, excluding",
				zap.String("company_id", key.CompanyID),
				zap.String("day", key.Day),
				zap.Error(err),
			)
			continue
		}
		result.Records = append(result.Records, resolved)
		result.ConflictsResolved += len(group) - 1
		result.Anomalies = append(result.Anomalies, anomalies...)
	}

	// Aggregate confidence over the output.
	if len(result.Records) > 0 {
		var sum float64
		for _, rec := range result.Records {
			sum += rec.ConfidenceScore
		}
		result.ConfidenceScore = sum / float64(len(result.Records))
	}

	// Quality-derived source weights, blended with the reliability EMA,
	// then folded back into the EMA for the next cycle.
	for source, records := range bySource {
		result.SourceWeights[source] = e.sourceWeight(source, records)
	}
	for source, weight := range result.SourceWeights {
		e.reliability.Update(source, weight)
	}

	return result, nil
}

func (e *Engine) resolveGroup(ctx context.Context, group []candidate, strategy Strategy, result *model.ReconciliationResult) (model.Record, []string, error) {
	switch strategy {
	case StrategyPriority:
		return e.resolveByPriority(group), nil, nil
	case StrategyAI:
		rec, anomalies, err := e.resolveByOracle(ctx, group)
		if err != nil {
			// Oracle failures are degraded-mode, not fatal.
			zap.L().Warn("reconcile: oracle failed, falling back to confidence strategy",
				zap.Error(err),
			)
			result.Degraded = true
			return resolveByConfidence(group), nil, nil
		}
		return rec, anomalies, nil
	default:
		return resolveByConfidence(group), nil, nil
	}
}

// resolveByConfidence keeps the candidate maximizing
// 0.6*data_quality + 0.4*confidence.
func resolveByConfidence(group []candidate) model.Record {
	best := group[0]
	bestScore := -1.0
	for _, c := range group {
		score := 0.6*c.record.DataQualityScore + 0.4*c.record.ConfidenceScore
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	return best.record
}

// resolveByPriority returns the first candidate matching the preference
// list, falling back to the first available source.
func (e *Engine) resolveByPriority(group []candidate) model.Record {
	bySource := make(map[string]model.Record, len(group))
	for _, c := range group {
		if _, seen := bySource[c.source]; !seen {
			bySource[c.source] = c.record
		}
	}
	for _, source := range e.priority {
		if rec, ok := bySource[source]; ok {
			return rec
		}
	}
	return group[0].record
}

func (e *Engine) sourceWeight(source string, records []model.Record) float64 {
	if len(records) == 0 {
		return 0
	}
	var quality, confidence float64
	for _, rec := range records {
		quality += rec.DataQualityScore
		confidence += rec.ConfidenceScore
	}
	n := float64(len(records))
	weight := 0.4*(quality/n) + 0.4*(confidence/n) + 0.2*e.reliability.Get(source)
	if weight > 1 {
		weight = 1
	}
	return weight
}

// groupBySourceAndDay flattens the per-source input into conflict groups
// keyed by (company, day). Candidates within a group are ordered by source
// name for determinism.
func groupBySourceAndDay(bySource map[string][]model.Record) map[model.DayKey][]candidate {
	groups := make(map[model.DayKey][]candidate)
	for _, source := range sortedSources(bySource) {
		for _, rec := range bySource[source] {
			key := rec.Key()
			groups[key] = append(groups[key], candidate{source: source, record: rec})
		}
	}
	return groups
}

func sortedSources(bySource map[string][]model.Record) []string {
	sources := make([]string, 0, len(bySource))
	for s := range bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}

func sortedKeys(groups map[model.DayKey][]candidate) []model.DayKey {
	keys := make([]model.DayKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CompanyID != keys[j].CompanyID {
			return keys[i].CompanyID < keys[j].CompanyID
		}
		return keys[i].Day < keys[j].Day
	})
	return keys
}
