package dataset

import (
	"math"
	"sort"
	"time"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// FieldStats summarizes one numeric field across a dataset.
type FieldStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"std_dev"`
}

// Stats summarizes a dataset for reporting and drift checks.
type Stats struct {
	Records   int                   `json:"records"`
	Companies int                   `json:"companies"`
	Sources   []string              `json:"sources"`
	Earliest  time.Time             `json:"earliest"`
	Latest    time.Time             `json:"latest"`
	Fields    map[string]FieldStats `json:"fields"`
}

// Compute builds summary statistics over records.
func Compute(records []model.Record) Stats {
	stats := Stats{
		Records: len(records),
		Fields:  make(map[string]FieldStats),
	}
	if len(records) == 0 {
		return stats
	}

	companies := make(map[string]bool)
	sources := make(map[string]bool)
	fields := make(map[string][]float64)

	for _, rec := range records {
		companies[rec.CompanyID] = true
		sources[rec.DataSource] = true

		ts := rec.Timestamp.UTC()
		if stats.Earliest.IsZero() || ts.Before(stats.Earliest) {
			stats.Earliest = ts
		}
		if ts.After(stats.Latest) {
			stats.Latest = ts
		}

		fields["environmental_score"] = append(fields["environmental_score"], rec.EnvironmentalScore)
		fields["social_score"] = append(fields["social_score"], rec.SocialScore)
		fields["governance_score"] = append(fields["governance_score"], rec.GovernanceScore)
		fields["combined_score"] = append(fields["combined_score"], rec.CombinedScore)
		fields["data_quality_score"] = append(fields["data_quality_score"], rec.DataQualityScore)
		fields["confidence_score"] = append(fields["confidence_score"], rec.ConfidenceScore)
		for name, v := range rec.Metrics() {
			fields[name] = append(fields[name], v)
		}
	}

	stats.Companies = len(companies)
	for s := range sources {
		stats.Sources = append(stats.Sources, s)
	}
	sort.Strings(stats.Sources)

	for name, values := range fields {
		stats.Fields[name] = fieldStats(values)
	}
	return stats
}

func fieldStats(values []float64) FieldStats {
	fs := FieldStats{
		Count: len(values),
		Min:   math.Inf(1),
		Max:   math.Inf(-1),
	}
	var sum float64
	for _, v := range values {
		sum += v
		fs.Min = math.Min(fs.Min, v)
		fs.Max = math.Max(fs.Max, v)
	}
	fs.Mean = sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - fs.Mean
		sq += d * d
	}
	fs.StdDev = math.Sqrt(sq / float64(len(values)))
	return fs
}
