package source

import (
	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// NewMSCI builds the MSCI ESG adapter. Payloads nest pillar scores under
// "ratings" with an "overall_score" combined value and a top-level
// "confidence_level".
func NewMSCI(deps ProviderDeps) Adapter {
	now := deps.now()
	mapper := func(companyID string, payload map[string]any) (model.Record, error) {
		ratings, ok := nested(payload, "ratings")
		if !ok {
			return model.Record{}, eris.New("msci: payload missing ratings")
		}
		rec := model.Record{
			CompanyID:          companyID,
			Timestamp:          recordTimestamp(payload, now),
			EnvironmentalScore: numOr(ratings, "environmental_score"),
			SocialScore:        numOr(ratings, "social_score"),
			GovernanceScore:    numOr(ratings, "governance_score"),
			CombinedScore:      numOr(ratings, "overall_score"),
			Sector:             str(payload, "sector"),
			Region:             str(payload, "region"),
			ConfidenceScore:    confidence(payload, "confidence_level"),
		}
		applyMetrics(&rec, payload)
		return rec, nil
	}
	return newProviderAdapter("msci", "ratings", deps.Client, deps.Limits, deps.Validator, mapper)
}
