package source

import (
	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// NewBloomberg builds the Bloomberg ESG adapter. Payloads use single-letter
// pillar keys under "scores" and report quality as "quality".
func NewBloomberg(deps ProviderDeps) Adapter {
	now := deps.now()
	mapper := func(companyID string, payload map[string]any) (model.Record, error) {
		scores, ok := nested(payload, "scores")
		if !ok {
			return model.Record{}, eris.New("bloomberg: payload missing scores")
		}
		rec := model.Record{
			CompanyID:          companyID,
			Timestamp:          recordTimestamp(payload, now),
			EnvironmentalScore: numOr(scores, "E"),
			SocialScore:        numOr(scores, "S"),
			GovernanceScore:    numOr(scores, "G"),
			CombinedScore:      numOr(scores, "ESG"),
			Sector:             str(payload, "sector"),
			Region:             str(payload, "region"),
		}
		q := confidence(payload, "quality")
		rec.DataQualityScore = q
		rec.ConfidenceScore = q
		applyMetrics(&rec, payload)
		return rec, nil
	}
	return newProviderAdapter("bloomberg", "esg-scores", deps.Client, deps.Limits, deps.Validator, mapper)
}
