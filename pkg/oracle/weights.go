package oracle

import (
	"github.com/rotisserie/eris"
)

// WeightResponse is the parsed form of an oracle reconciliation answer.
// Responses are duck-typed JSON; parsing them into an explicit type here
// lets callers reject unusable answers instead of trusting arbitrary keys.
type WeightResponse struct {
	// Weights maps source name to a weight in [0, 1].
	Weights map[string]float64

	// Confidence is the oracle's own confidence in the weighting, when
	// provided.
	Confidence *float64

	// Anomalies lists source-level anomalies the oracle flagged.
	Anomalies []string
}

// ParseWeights extracts a WeightResponse from a raw oracle response. A
// missing or empty "weights" key is an error: callers fall back to
// confidence-based reconciliation.
func ParseWeights(resp map[string]any) (*WeightResponse, error) {
	if resp == nil {
		return nil, eris.New("oracle: nil response")
	}

	raw, ok := resp["weights"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, eris.New("oracle: response missing weights")
	}

	out := &WeightResponse{Weights: make(map[string]float64, len(raw))}
	for source, v := range raw {
		w, ok := toFloat(v)
		if !ok {
			return nil, eris.Errorf("oracle: non-numeric weight for source %q", source)
		}
		out.Weights[source] = clamp01(w)
	}

	if c, ok := toFloat(resp["confidence"]); ok {
		c = clamp01(c)
		out.Confidence = &c
	}

	if anoms, ok := resp["anomalies"].([]any); ok {
		for _, a := range anoms {
			if s, ok := a.(string); ok {
				out.Anomalies = append(out.Anomalies, s)
			}
		}
	}

	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
