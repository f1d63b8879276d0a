package source

import (
	"context"
	"errors"
	"math"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/internal/ratelimit"
	"github.com/lensiq/esg-pipeline/internal/validate"
)

// rateLimitDelay is how long a provider adapter waits before re-checking a
// denied rate limit token. A company still denied after the wait is skipped
// for this cycle rather than blocking the batch.
const rateLimitDelay = 2 * time.Second

// mapperFunc converts one provider payload into a canonical record. The
// returned record may carry NaN pillar scores for fields the payload did
// not include.
type mapperFunc func(companyID string, payload map[string]any) (model.Record, error)

// providerAdapter is the shared ingestion loop for JSON API providers.
// Provider-specific behavior is confined to the endpoint path and the
// payload mapper.
type providerAdapter struct {
	name      string
	path      string
	client    *Client
	limits    *ratelimit.Registry
	validator *validate.Validator
	mapper    mapperFunc
	sleep     func(context.Context, time.Duration)
}

func newProviderAdapter(name, path string, client *Client, limits *ratelimit.Registry, validator *validate.Validator, mapper mapperFunc) *providerAdapter {
	return &providerAdapter{
		name:      name,
		path:      path,
		client:    client,
		limits:    limits,
		validator: validator,
		mapper:    mapper,
		sleep:     sleepCtx,
	}
}

func (a *providerAdapter) Name() string { return a.name }

// Ingest fetches one payload per company. Rate-limit denials and
// per-company errors skip the company; an auth rejection aborts the whole
// source with ErrSourceDisabled.
func (a *providerAdapter) Ingest(ctx context.Context, companyIDs []string, start, end time.Time) ([]model.Record, error) {
	var out []model.Record
	for _, companyID := range companyIDs {
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if !a.acquire(ctx) {
			zap.L().Warn("source: rate limit exceeded, skipping company",
				zap.String("source", a.name),
				zap.String("company_id", companyID),
			)
			continue
		}

		params := url.Values{}
		params.Set("company_id", companyID)
		params.Set("start", start.UTC().Format("2006-01-02"))
		params.Set("end", end.UTC().Format("2006-01-02"))

		payload, err := a.client.GetJSON(ctx, a.path, params)
		if err != nil {
			if errors.Is(err, ErrSourceDisabled) {
				return out, err
			}
			zap.L().Warn("source: fetch failed, skipping company",
				zap.String("source", a.name),
				zap.String("company_id", companyID),
				zap.Error(err),
			)
			continue
		}

		rec, err := a.mapper(companyID, payload)
		if err != nil {
			zap.L().Warn("source: unusable payload, skipping company",
				zap.String("source", a.name),
				zap.String("company_id", companyID),
				zap.Error(err),
			)
			continue
		}
		rec.DataSource = a.name

		if kept, ok := screen(a.validator, rec, a.name); ok {
			out = append(out, kept)
		}
	}
	return out, nil
}

// acquire takes a rate limit token, waiting once before giving up.
func (a *providerAdapter) acquire(ctx context.Context) bool {
	if a.limits == nil {
		return true
	}
	if a.limits.Allow(a.name) {
		return true
	}
	a.sleep(ctx, rateLimitDelay)
	return a.limits.Allow(a.name)
}

// screen scores a mapped record and drops it below the record quality
// threshold. Kept records have their quality set from the score and any
// missing-pillar markers zeroed.
func screen(v *validate.Validator, rec model.Record, sourceName string) (model.Record, bool) {
	report := v.Score(rec)
	if report.OverallScore < validate.RecordThreshold {
		zap.L().Warn("source: record below quality threshold, dropping",
			zap.String("source", sourceName),
			zap.String("company_id", rec.CompanyID),
			zap.Float64("score", report.OverallScore),
			zap.Float64("threshold", validate.RecordThreshold),
		)
		return model.Record{}, false
	}
	if rec.DataQualityScore == 0 {
		rec.DataQualityScore = report.OverallScore
	}
	rec.Sanitize()
	return rec, true
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// payload helpers. Provider responses are duck-typed JSON; these keep the
// mappers terse.

func nested(payload map[string]any, key string) (map[string]any, bool) {
	m, ok := payload[key].(map[string]any)
	return m, ok
}

func num(m map[string]any, key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}

// numOr returns the value for key, or NaN when absent. NaN is the
// in-memory marker for a pillar the provider did not report.
func numOr(m map[string]any, key string) float64 {
	if v, ok := num(m, key); ok {
		return v
	}
	return math.NaN()
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

// confidence reads the named key, defaulting to 1.0 when the provider
// omits it. Canonical records carry full confidence unless the payload
// says otherwise.
func confidence(m map[string]any, key string) float64 {
	if v, ok := num(m, key); ok {
		return v
	}
	return 1.0
}

// optNum returns a pointer to the value for key, or nil when absent.
func optNum(m map[string]any, key string) *float64 {
	if v, ok := num(m, key); ok {
		return &v
	}
	return nil
}

// recordTimestamp parses the payload timestamp, defaulting to now.
func recordTimestamp(payload map[string]any, now func() time.Time) time.Time {
	for _, key := range []string{"timestamp", "as_of", "date"} {
		s := str(payload, key)
		if s == "" {
			continue
		}
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC()
			}
		}
	}
	return now().UTC()
}

// applyMetrics copies any recognized optional metrics from the payload's
// "metrics" object onto the record.
func applyMetrics(rec *model.Record, payload map[string]any) {
	metrics, ok := nested(payload, "metrics")
	if !ok {
		return
	}
	rec.CarbonIntensity = optNum(metrics, "carbon_intensity")
	rec.WaterIntensity = optNum(metrics, "water_intensity")
	rec.WasteIntensity = optNum(metrics, "waste_intensity")
	rec.EnergyEfficiency = optNum(metrics, "energy_efficiency")
	rec.EmployeeSatisfaction = optNum(metrics, "employee_satisfaction")
	rec.BoardDiversity = optNum(metrics, "board_diversity")
}
