// Package pipeline orchestrates one ingestion cycle: concurrent source
// ingestion, reconciliation, deduplication, quality control, and dataset
// assembly. A cycle always produces a report; only configuration errors
// and total ingestion failure abort without a dataset.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lensiq/esg-pipeline/internal/dataset"
	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/internal/reconcile"
	"github.com/lensiq/esg-pipeline/internal/source"
	"github.com/lensiq/esg-pipeline/internal/store"
	"github.com/lensiq/esg-pipeline/internal/validate"
)

// Options configures one pipeline instance.
type Options struct {
	// CompanyIDs is the universe of companies each cycle covers.
	CompanyIDs []string

	// LookbackDays bounds each cycle's ingestion window. Default 1.
	LookbackDays int

	// Strategy selects the reconciliation strategy.
	Strategy reconcile.Strategy

	// DatasetPrefix names the split datasets; the cycle date is appended.
	DatasetPrefix string

	SplitRatios dataset.SplitRatios
	SplitSeed   uint64

	// CycleTimeout bounds the ingestion stage. Default 10m.
	CycleTimeout time.Duration

	// MaxConcurrentSources bounds the ingestion fan-out. Default 4.
	MaxConcurrentSources int

	// SkipReconciliation passes merged raw records straight to
	// deduplication even when multiple sources contribute.
	SkipReconciliation bool

	// SkipQualityControl omits the batch quality report.
	SkipQualityControl bool
}

func (o Options) withDefaults() Options {
	if o.LookbackDays <= 0 {
		o.LookbackDays = 1
	}
	if o.DatasetPrefix == "" {
		o.DatasetPrefix = "esg"
	}
	if o.SplitRatios == (dataset.SplitRatios{}) {
		o.SplitRatios = dataset.DefaultSplitRatios()
	}
	if o.CycleTimeout <= 0 {
		o.CycleTimeout = 10 * time.Minute
	}
	if o.MaxConcurrentSources <= 0 {
		o.MaxConcurrentSources = 4
	}
	return o
}

// Pipeline wires the stages together. The store is optional; without it
// cycle history and reliability scores are not persisted.
type Pipeline struct {
	sources   *source.Registry
	engine    *reconcile.Engine
	validator *validate.Validator
	assembler *dataset.Assembler
	store     store.Store
	rules     *validate.RuleGenerator
	opts      Options
	now       func() time.Time
}

// New creates a Pipeline with all dependencies.
func New(
	sources *source.Registry,
	engine *reconcile.Engine,
	validator *validate.Validator,
	assembler *dataset.Assembler,
	st store.Store,
	opts Options,
) *Pipeline {
	return &Pipeline{
		sources:   sources,
		engine:    engine,
		validator: validator,
		assembler: assembler,
		store:     st,
		opts:      opts.withDefaults(),
		now:       time.Now,
	}
}

// WithNow overrides the clock. Used by tests.
func (p *Pipeline) WithNow(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// WithRules attaches an adaptive quality-rule generator. Rules are
// regenerated at the start of every cycle and applied to the validator's
// validity ranges; generation failures fall back to the built-in defaults
// inside the generator.
func (p *Pipeline) WithRules(g *validate.RuleGenerator) *Pipeline {
	p.rules = g
	return p
}

// Validate scores a batch of records outside of a cycle. Callers embedding
// the pipeline get the same quality report a cycle would produce.
func (p *Pipeline) Validate(records []model.Record, sourceName string) model.QualityReport {
	return p.validator.Validate(records, sourceName)
}

// RunCycle executes one full cycle. The returned report is non-nil even
// when err is set.
func (p *Pipeline) RunCycle(ctx context.Context) (*model.CycleReport, error) {
	report := &model.CycleReport{
		ID:        uuid.New().String(),
		State:     model.CycleIngesting,
		StartedAt: p.now().UTC(),
	}
	log := zap.L().With(zap.String("cycle_id", report.ID))
	log.Info("pipeline: cycle started")

	err := p.run(ctx, report, log)
	if err != nil {
		report.State = model.CycleFailed
		report.Cause = err.Error()
	} else {
		report.State = model.CycleDone
	}
	report.FinishedAt = p.now().UTC()

	p.saveCycle(ctx, report, log)

	log.Info("pipeline: cycle finished",
		zap.String("state", string(report.State)),
		zap.Int("total_records", report.TotalRecords),
		zap.Bool("degraded", report.Degraded),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, report *model.CycleReport, log *zap.Logger) error {
	if p.sources == nil || p.sources.Len() == 0 {
		report.FailedStage = "ingesting"
		return eris.Wrap(ErrConfiguration, "no sources enabled")
	}
	if len(p.opts.CompanyIDs) == 0 {
		report.FailedStage = "ingesting"
		return eris.Wrap(ErrConfiguration, "no companies configured")
	}
	if err := p.opts.SplitRatios.Validate(); err != nil {
		report.FailedStage = "assembling"
		return eris.Wrap(ErrConfiguration, err.Error())
	}

	p.loadReliability(ctx, log)
	p.applyAdaptiveRules(ctx, log)

	bySource := p.ingest(ctx, report, log)
	total := 0
	for _, recs := range bySource {
		total += len(recs)
	}
	if total == 0 {
		report.FailedStage = "ingesting"
		return ErrAllSourcesFailed
	}

	records := p.reconcileStage(ctx, report, log, bySource, total)
	records = p.dedupeStage(report, records)
	p.qualityStage(report, log, records)

	if err := p.assembleStage(ctx, report, log, records); err != nil {
		report.FailedStage = "assembling"
		return err
	}

	report.TotalRecords = len(records)
	return nil
}

// ingest fans out across all registered adapters. Each source's failure is
// recorded in the report and does not affect the others.
func (p *Pipeline) ingest(ctx context.Context, report *model.CycleReport, log *zap.Logger) map[string][]model.Record {
	started := p.now()
	end := p.now().UTC()
	start := end.AddDate(0, 0, -p.opts.LookbackDays)

	ingestCtx, cancel := context.WithTimeout(ctx, p.opts.CycleTimeout)
	defer cancel()

	var mu sync.Mutex
	bySource := make(map[string][]model.Record)

	g, gctx := errgroup.WithContext(ingestCtx)
	g.SetLimit(p.opts.MaxConcurrentSources)

	for _, adapter := range p.sources.All() {
		g.Go(func() error {
			records, err := adapter.Ingest(gctx, p.opts.CompanyIDs, start, end)
			outcome := model.SourceOutcome{Source: adapter.Name(), Records: len(records)}
			if err != nil {
				outcome.Error = err.Error()
				log.Warn("pipeline: source ingestion failed",
					zap.String("source", adapter.Name()),
					zap.Error(err),
				)
			}

			mu.Lock()
			defer mu.Unlock()
			if len(records) > 0 {
				bySource[adapter.Name()] = records
			}
			report.Sources = append(report.Sources, outcome)
			if err != nil {
				report.Degraded = true
			}
			// Errors are recorded, never propagated: one source must not
			// cancel the others.
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, recs := range bySource {
		total += len(recs)
	}
	status := model.StageComplete
	if total == 0 {
		status = model.StageFailed
	}
	p.track(report, "ingesting", started, status, 0, total, nil, map[string]any{
		"sources": len(report.Sources),
		"window":  start.Format("2006-01-02") + ".." + end.Format("2006-01-02"),
	})
	return bySource
}

// reconcileStage resolves multi-source conflicts. With a single
// contributing source the stage is skipped and records pass straight
// through. A wholesale reconciliation failure degrades to the merged raw
// records instead of aborting the cycle.
func (p *Pipeline) reconcileStage(ctx context.Context, report *model.CycleReport, log *zap.Logger, bySource map[string][]model.Record, total int) []model.Record {
	started := p.now()
	report.State = model.CycleReconciling

	if p.opts.SkipReconciliation || len(bySource) == 1 {
		reason := "single source"
		if p.opts.SkipReconciliation {
			reason = "disabled"
		}
		var records []model.Record
		for _, recs := range bySource {
			records = append(records, recs...)
		}
		p.track(report, "reconciling", started, model.StageSkipped, total, len(records), nil,
			map[string]any{"reason": reason})
		return records
	}

	result, err := p.engine.Reconcile(ctx, bySource, p.opts.Strategy)
	if err != nil {
		log.Warn("pipeline: reconciliation failed, using raw merged records", zap.Error(err))
		report.Degraded = true
		var records []model.Record
		for _, recs := range bySource {
			records = append(records, recs...)
		}
		p.track(report, "reconciling", started, model.StageFailed, total, len(records), err, nil)
		return records
	}

	if result.Degraded {
		report.Degraded = true
	}
	p.persistReliability(ctx, log)
	p.track(report, "reconciling", started, model.StageComplete, total, len(result.Records), nil,
		map[string]any{
			"conflicts_resolved": result.ConflictsResolved,
			"confidence":         result.ConfidenceScore,
			"source_weights":     result.SourceWeights,
			"anomalies":          result.Anomalies,
		})
	return result.Records
}

func (p *Pipeline) dedupeStage(report *model.CycleReport, records []model.Record) []model.Record {
	started := p.now()
	out := reconcile.Dedupe(records)
	p.track(report, "deduplicating", started, model.StageComplete, len(records), len(out), nil, nil)
	return out
}

// qualityStage scores the final batch. A failing report degrades the cycle
// but never drops it: the dataset ships with its quality report attached.
func (p *Pipeline) qualityStage(report *model.CycleReport, log *zap.Logger, records []model.Record) {
	started := p.now()
	report.State = model.CycleQualityControl

	if p.opts.SkipQualityControl {
		p.track(report, "quality_control", started, model.StageSkipped, len(records), len(records), nil,
			map[string]any{"reason": "disabled"})
		return
	}

	quality := p.validator.Validate(records, "pipeline")
	report.Quality = &quality
	if !p.validator.Acceptable(quality) {
		log.Warn("pipeline: batch quality below thresholds",
			zap.Float64("overall", quality.OverallScore),
			zap.Int("critical", quality.CriticalCount()),
		)
		report.Degraded = true
	}
	p.track(report, "quality_control", started, model.StageComplete, len(records), len(records), nil,
		map[string]any{
			"overall_score": quality.OverallScore,
			"critical":      quality.CriticalCount(),
		})
}

func (p *Pipeline) assembleStage(ctx context.Context, report *model.CycleReport, log *zap.Logger, records []model.Record) error {
	started := p.now()
	report.State = model.CycleAssembling

	base := p.opts.DatasetPrefix + "_" + p.now().UTC().Format("20060102")
	splits, err := p.assembler.CreateSplits(ctx, base, records, p.opts.SplitRatios, p.opts.SplitSeed)
	if err != nil {
		p.track(report, "assembling", started, model.StageFailed, len(records), 0, err, nil)
		return eris.Wrap(err, "pipeline: assemble datasets")
	}
	if p.assembler.Degraded() {
		report.Degraded = true
	}

	report.DatasetPaths = map[string]string{
		"train":      splits.Train.Path,
		"validation": splits.Validation.Path,
		"test":       splits.Test.Path,
	}
	p.track(report, "assembling", started, model.StageComplete, len(records), splitTotal(splits), nil,
		map[string]any{"base": base})
	log.Info("pipeline: datasets assembled",
		zap.String("base", base),
		zap.Int("train", splits.Train.Records),
		zap.Int("validation", splits.Validation.Records),
		zap.Int("test", splits.Test.Records),
	)
	return nil
}

func splitTotal(s dataset.Splits) int {
	return s.Train.Records + s.Validation.Records + s.Test.Records
}

// track appends a stage result with timing to the report.
func (p *Pipeline) track(report *model.CycleReport, name string, started time.Time, status model.StageStatus, in, out int, stageErr error, metadata map[string]any) {
	result := model.StageResult{
		Name:       name,
		Status:     status,
		DurationMS: p.now().Sub(started).Milliseconds(),
		RecordsIn:  in,
		RecordsOut: out,
		Metadata:   metadata,
	}
	if stageErr != nil {
		result.Error = stageErr.Error()
	}
	report.Stages = append(report.Stages, result)
}

// applyAdaptiveRules refreshes the validator's validity ranges from the
// rule generator before any record is screened. Must run before the
// ingestion fan-out: the validator is shared across adapter goroutines.
func (p *Pipeline) applyAdaptiveRules(ctx context.Context, log *zap.Logger) {
	if p.rules == nil {
		return
	}
	rules := p.rules.Generate(ctx, map[string]any{
		"companies":     len(p.opts.CompanyIDs),
		"sources":       p.sources.Names(),
		"strategy":      string(p.opts.Strategy),
		"lookback_days": p.opts.LookbackDays,
	})
	p.validator.ApplyRules(rules)
	log.Debug("pipeline: quality rules applied", zap.Int("rules", len(rules)))
}

// loadReliability seeds the reconciliation engine's tracker from the store.
func (p *Pipeline) loadReliability(ctx context.Context, log *zap.Logger) {
	if p.store == nil || p.engine == nil {
		return
	}
	scores, err := p.store.GetReliability(ctx)
	if err != nil {
		log.Warn("pipeline: failed to load source reliability", zap.Error(err))
		return
	}
	p.engine.Reliability().Load(scores)
}

// persistReliability saves the tracker snapshot after reconciliation.
func (p *Pipeline) persistReliability(ctx context.Context, log *zap.Logger) {
	if p.store == nil || p.engine == nil {
		return
	}
	if err := p.store.SetReliability(ctx, p.engine.Reliability().Snapshot()); err != nil {
		log.Warn("pipeline: failed to persist source reliability", zap.Error(err))
	}
}

func (p *Pipeline) saveCycle(ctx context.Context, report *model.CycleReport, log *zap.Logger) {
	if p.store == nil {
		return
	}
	if err := p.store.SaveCycle(ctx, report); err != nil {
		log.Warn("pipeline: failed to persist cycle report", zap.Error(err))
	}
}
