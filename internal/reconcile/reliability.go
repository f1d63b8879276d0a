// Package reconcile collapses same-company-same-day records from multiple
// providers into one canonical record using a selectable strategy, and
// deduplicates the survivors.
package reconcile

import "sync"

// ReliabilitySeed is the starting reliability for a provider that has
// never been through a reconciliation cycle.
const ReliabilitySeed = 0.8

// ReliabilityTracker keeps a per-provider exponential moving average of
// reconciliation weights. It lives for the process lifetime; the engine
// updates it after every cycle and the confidence-weighting step reads it.
// Safe for concurrent use.
type ReliabilityTracker struct {
	mu     sync.Mutex
	scores map[string]float64
}

// NewReliabilityTracker creates an empty tracker. Every provider starts
// at ReliabilitySeed.
func NewReliabilityTracker() *ReliabilityTracker {
	return &ReliabilityTracker{scores: make(map[string]float64)}
}

// Get returns the current reliability for a provider.
func (t *ReliabilityTracker) Get(source string) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if s, ok := t.scores[source]; ok {
		return s
	}
	return ReliabilitySeed
}

// Update folds the latest cycle weight into the provider's EMA:
// reliability = 0.8*old + 0.2*weight.
func (t *ReliabilityTracker) Update(source string, weight float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	old, ok := t.scores[source]
	if !ok {
		old = ReliabilitySeed
	}
	t.scores[source] = 0.8*old + 0.2*weight
}

// Snapshot returns a copy of all tracked reliabilities, for persistence.
func (t *ReliabilityTracker) Snapshot() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]float64, len(t.scores))
	for k, v := range t.scores {
		out[k] = v
	}
	return out
}

// Load restores previously persisted reliabilities. Existing entries for
// the same provider are overwritten.
func (t *ReliabilityTracker) Load(scores map[string]float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, v := range scores {
		t.scores[k] = v
	}
}
