package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/config"
	"github.com/lensiq/esg-pipeline/internal/dataset"
	"github.com/lensiq/esg-pipeline/internal/pipeline"
	"github.com/lensiq/esg-pipeline/internal/ratelimit"
	"github.com/lensiq/esg-pipeline/internal/reconcile"
	"github.com/lensiq/esg-pipeline/internal/source"
	"github.com/lensiq/esg-pipeline/internal/store"
	"github.com/lensiq/esg-pipeline/internal/validate"
	"github.com/lensiq/esg-pipeline/pkg/oracle"
)

// initStore opens the configured cycle-history store.
func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite", "":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}

// initOracle builds the reconciliation oracle, or nil when no key is set.
func initOracle() oracle.Client {
	if cfg.Oracle.Key == "" {
		return nil
	}
	return oracle.New(oracle.Options{
		APIKey:    cfg.Oracle.Key,
		Model:     cfg.Oracle.Model,
		MaxTokens: cfg.Oracle.MaxTokens,
		Timeout:   time.Duration(cfg.Oracle.Timeout) * time.Second,
	})
}

// initValidator builds the quality validator from configured thresholds.
func initValidator() *validate.Validator {
	t := validate.DefaultThresholds()
	if cfg.Quality.Overall > 0 {
		t.Overall = cfg.Quality.Overall
	}
	if cfg.Quality.Completeness > 0 {
		t.Completeness = cfg.Quality.Completeness
	}
	if cfg.Quality.Validity > 0 {
		t.Validity = cfg.Quality.Validity
	}
	if cfg.Quality.Authenticity > 0 {
		t.Authenticity = cfg.Quality.Authenticity
	}
	return validate.New(t)
}

// initSources builds the adapter registry from the configured sources.
func initSources(limits *ratelimit.Registry, validator *validate.Validator) (*source.Registry, error) {
	var adapters []source.Adapter
	for name, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		adapter, err := buildAdapter(name, src, limits, validator)
		if err != nil {
			return nil, err
		}
		adapters = append(adapters, adapter)
	}
	return source.NewRegistry(adapters...)
}

func buildAdapter(name string, src config.SourceConfig, limits *ratelimit.Registry, validator *validate.Validator) (source.Adapter, error) {
	if name == "mock" {
		return source.NewMock(src.Seed), nil
	}
	if src.FTPURL != "" {
		return source.NewBulk(source.BulkOptions{
			Name:   name,
			URL:    src.FTPURL,
			Latin1: src.Latin1,
		}, limits, validator), nil
	}

	deps := source.ProviderDeps{
		Client: source.NewClient(source.ClientOptions{
			BaseURL: src.BaseURL,
			APIKey:  src.Key,
		}),
		Limits:    limits,
		Validator: validator,
	}
	switch name {
	case "refinitiv":
		return source.NewRefinitiv(deps), nil
	case "bloomberg":
		return source.NewBloomberg(deps), nil
	case "msci":
		return source.NewMSCI(deps), nil
	default:
		return nil, eris.Errorf("unknown source %q", name)
	}
}

// initAssembler opens the primary dataset engine with a flat-file fallback.
func initAssembler() (*dataset.Assembler, error) {
	primary, err := dataset.Open(cfg.Dataset.Engine, cfg.Dataset.Dir)
	if err != nil {
		return nil, eris.Wrap(err, "open dataset engine")
	}
	fallback, err := dataset.NewFlatFile(cfg.Dataset.FallbackDir)
	if err != nil {
		zap.L().Warn("fallback dataset engine unavailable", zap.Error(err))
		return dataset.NewAssembler(primary, nil), nil
	}
	return dataset.NewAssembler(primary, fallback), nil
}

// initPipeline wires the full cycle orchestrator.
func initPipeline(st store.Store) (*pipeline.Pipeline, error) {
	validator := initValidator()
	limits := ratelimit.NewRegistry(cfg.RateLimits())

	sources, err := initSources(limits, validator)
	if err != nil {
		return nil, err
	}

	strategy, err := reconcile.ParseStrategy(cfg.Pipeline.Strategy)
	if err != nil {
		return nil, err
	}

	oracleClient := initOracle()
	engine := reconcile.NewEngine(oracleClient, nil, cfg.Pipeline.Priority)
	assembler, err := initAssembler()
	if err != nil {
		return nil, err
	}

	p := pipeline.New(sources, engine, validator, assembler, st, pipeline.Options{
		CompanyIDs:           cfg.Pipeline.CompanyIDs,
		LookbackDays:         cfg.Pipeline.LookbackDays,
		Strategy:             strategy,
		DatasetPrefix:        cfg.Pipeline.DatasetPrefix,
		SplitRatios:          dataset.SplitRatios{Validation: cfg.Dataset.ValidationRatio, Test: cfg.Dataset.TestRatio},
		SplitSeed:            cfg.Dataset.SplitSeed,
		CycleTimeout:         cfg.Pipeline.CycleTimeout(),
		MaxConcurrentSources: cfg.Pipeline.MaxConcurrentSources,
		SkipReconciliation:   cfg.Pipeline.SkipReconciliation,
		SkipQualityControl:   cfg.Pipeline.SkipQualityControl,
	})
	return p.WithRules(validate.NewRuleGenerator(oracleClient)), nil
}
