package validate

import (
	"context"

	"go.uber.org/zap"

	"github.com/lensiq/esg-pipeline/internal/model"
	"github.com/lensiq/esg-pipeline/pkg/oracle"
)

// Rule is one adaptive range-validation rule.
type Rule struct {
	Field      string  `json:"field"`
	Min        float64 `json:"min_value"`
	Max        float64 `json:"max_value"`
	Required   bool    `json:"required"`
	Confidence float64 `json:"confidence"`
}

// RuleGenerator asks the oracle for context-aware quality rules, falling
// back to the built-in defaults when the oracle is unavailable or returns
// something unusable.
type RuleGenerator struct {
	oracle oracle.Client
}

// NewRuleGenerator creates a RuleGenerator. A nil oracle client always
// yields the defaults.
func NewRuleGenerator(client oracle.Client) *RuleGenerator {
	return &RuleGenerator{oracle: client}
}

const rulesPrompt = `Generate data quality rules for ESG records in this context.
Return a JSON object with a "validation_rules" array; each entry has
"field", "min_value", "max_value", "required" and "confidence" keys.`

// Generate produces quality rules for the given data context.
func (g *RuleGenerator) Generate(ctx context.Context, dataContext map[string]any) []Rule {
	if g.oracle == nil {
		return DefaultRules()
	}

	resp, err := g.oracle.Generate(ctx, dataContext, rulesPrompt)
	if err != nil {
		zap.L().Warn("adaptive rules: oracle failed, using defaults", zap.Error(err))
		return DefaultRules()
	}

	rules := parseRules(resp)
	if len(rules) == 0 {
		zap.L().Warn("adaptive rules: unusable oracle response, using defaults")
		return DefaultRules()
	}
	return rules
}

func parseRules(resp map[string]any) []Rule {
	raw, ok := resp["validation_rules"].([]any)
	if !ok {
		return nil
	}

	var rules []Rule
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		field, _ := m["field"].(string)
		if field == "" {
			continue
		}
		rule := Rule{Field: field, Required: true, Confidence: 0.8}
		if v, ok := m["min_value"].(float64); ok {
			rule.Min = v
		}
		if v, ok := m["max_value"].(float64); ok {
			rule.Max = v
		}
		if v, ok := m["required"].(bool); ok {
			rule.Required = v
		}
		if v, ok := m["confidence"].(float64); ok {
			rule.Confidence = v
		}
		if rule.Max <= rule.Min {
			continue
		}
		rules = append(rules, rule)
	}
	return rules
}

// DefaultRules returns the static pillar-score range rules.
func DefaultRules() []Rule {
	rules := []Rule{
		{Field: "environmental_score", Min: model.ScoreMin, Max: model.ScoreMax, Required: true, Confidence: 0.9},
		{Field: "social_score", Min: model.ScoreMin, Max: model.ScoreMax, Required: true, Confidence: 0.9},
		{Field: "governance_score", Min: model.ScoreMin, Max: model.ScoreMax, Required: true, Confidence: 0.9},
		{Field: "combined_score", Min: model.ScoreMin, Max: model.ScoreMax, Required: true, Confidence: 0.9},
	}
	for name, r := range model.MetricRanges {
		rules = append(rules, Rule{Field: name, Min: r.Min, Max: r.Max, Required: false, Confidence: 0.9})
	}
	return rules
}
