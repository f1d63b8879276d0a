package source

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/internal/ratelimit"
	"github.com/lensiq/esg-pipeline/internal/validate"
)

// ProviderDeps bundles the shared dependencies every API adapter needs.
type ProviderDeps struct {
	Client    *Client
	Limits    *ratelimit.Registry
	Validator *validate.Validator
	Now       func() time.Time
}

func (d ProviderDeps) now() func() time.Time {
	if d.Now != nil {
		return d.Now
	}
	return time.Now
}

// NewRefinitiv builds the Refinitiv ESG adapter. Payloads nest pillar
// scores under "esg_scores" and carry a top-level "confidence".
func NewRefinitiv(deps ProviderDeps) Adapter {
	now := deps.now()
	mapper := func(companyID string, payload map[string]any) (model.Record, error) {
		scores, ok := nested(payload, "esg_scores")
		if !ok {
			return model.Record{}, eris.New("refinitiv: payload missing esg_scores")
		}
		rec := model.Record{
			CompanyID:          companyID,
			Timestamp:          recordTimestamp(payload, now),
			EnvironmentalScore: numOr(scores, "environmental"),
			SocialScore:        numOr(scores, "social"),
			GovernanceScore:    numOr(scores, "governance"),
			CombinedScore:      numOr(scores, "combined"),
			Sector:             str(payload, "sector"),
			Region:             str(payload, "region"),
			ConfidenceScore:    confidence(payload, "confidence"),
		}
		applyMetrics(&rec, payload)
		return rec, nil
	}
	return newProviderAdapter("refinitiv", "esg", deps.Client, deps.Limits, deps.Validator, mapper)
}
