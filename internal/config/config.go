// Package config loads application configuration from file and
// environment and wires the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig             `yaml:"store" mapstructure:"store"`
	Oracle   OracleConfig            `yaml:"oracle" mapstructure:"oracle"`
	Dataset  DatasetConfig           `yaml:"dataset" mapstructure:"dataset"`
	Pipeline PipelineConfig          `yaml:"pipeline" mapstructure:"pipeline"`
	Quality  QualityConfig           `yaml:"quality" mapstructure:"quality"`
	Sources  map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
	Log      LogConfig               `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the cycle-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OracleConfig holds the reconciliation oracle settings.
type OracleConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DatasetConfig configures dataset storage and assembly.
type DatasetConfig struct {
	Engine          string  `yaml:"engine" mapstructure:"engine"` // sqlite or flatfile
	Dir             string  `yaml:"dir" mapstructure:"dir"`
	FallbackDir     string  `yaml:"fallback_dir" mapstructure:"fallback_dir"`
	ValidationRatio float64 `yaml:"validation_ratio" mapstructure:"validation_ratio"`
	TestRatio       float64 `yaml:"test_ratio" mapstructure:"test_ratio"`
	SplitSeed       uint64  `yaml:"split_seed" mapstructure:"split_seed"`
	RetentionDays   int     `yaml:"retention_days" mapstructure:"retention_days"`
}

// PipelineConfig configures the cycle orchestrator.
type PipelineConfig struct {
	CompanyIDs           []string `yaml:"company_ids" mapstructure:"company_ids"`
	LookbackDays         int      `yaml:"lookback_days" mapstructure:"lookback_days"`
	Strategy             string   `yaml:"strategy" mapstructure:"strategy"` // confidence, priority, ai
	Priority             []string `yaml:"priority" mapstructure:"priority"`
	DatasetPrefix        string   `yaml:"dataset_prefix" mapstructure:"dataset_prefix"`
	CycleTimeoutSecs     int      `yaml:"cycle_timeout_secs" mapstructure:"cycle_timeout_secs"`
	MaxConcurrentSources int      `yaml:"max_concurrent_sources" mapstructure:"max_concurrent_sources"`
	SkipReconciliation   bool     `yaml:"skip_reconciliation" mapstructure:"skip_reconciliation"`
	SkipQualityControl   bool     `yaml:"skip_quality_control" mapstructure:"skip_quality_control"`
}

// CycleTimeout returns the configured timeout as a duration.
func (c PipelineConfig) CycleTimeout() time.Duration {
	return time.Duration(c.CycleTimeoutSecs) * time.Second
}

// QualityConfig holds the batch-level acceptance thresholds.
type QualityConfig struct {
	Overall      float64 `yaml:"overall" mapstructure:"overall"`
	Completeness float64 `yaml:"completeness" mapstructure:"completeness"`
	Validity     float64 `yaml:"validity" mapstructure:"validity"`
	Authenticity float64 `yaml:"authenticity" mapstructure:"authenticity"`
}

// SourceConfig configures one provider adapter.
type SourceConfig struct {
	Enabled   bool   `yaml:"enabled" mapstructure:"enabled"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Key       string `yaml:"key" mapstructure:"key"`
	PerMinute int    `yaml:"per_minute" mapstructure:"per_minute"`

	// Bulk-file sources.
	FTPURL string `yaml:"ftp_url" mapstructure:"ftp_url"`
	Latin1 bool   `yaml:"latin1" mapstructure:"latin1"`

	// Mock source.
	Seed uint64 `yaml:"seed" mapstructure:"seed"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ESG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "esg-pipeline.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("oracle.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("oracle.max_tokens", 1024)
	v.SetDefault("oracle.timeout_secs", 60)
	v.SetDefault("dataset.engine", "sqlite")
	v.SetDefault("dataset.dir", "datasets")
	v.SetDefault("dataset.fallback_dir", "datasets-fallback")
	v.SetDefault("dataset.validation_ratio", 0.15)
	v.SetDefault("dataset.test_ratio", 0.15)
	v.SetDefault("dataset.retention_days", 30)
	v.SetDefault("pipeline.lookback_days", 1)
	v.SetDefault("pipeline.strategy", "confidence")
	v.SetDefault("pipeline.dataset_prefix", "esg")
	v.SetDefault("pipeline.cycle_timeout_secs", 600)
	v.SetDefault("pipeline.max_concurrent_sources", 4)
	v.SetDefault("quality.overall", 0.80)
	v.SetDefault("quality.completeness", 0.95)
	v.SetDefault("quality.validity", 0.90)
	v.SetDefault("quality.authenticity", 0.90)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// RateLimits extracts the per-source rate limits for enabled sources.
func (c *Config) RateLimits() map[string]int {
	out := make(map[string]int)
	for name, src := range c.Sources {
		if src.Enabled && src.PerMinute > 0 {
			out[name] = src.PerMinute
		}
	}
	return out
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
