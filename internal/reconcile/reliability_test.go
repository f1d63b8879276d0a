package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReliabilitySeed(t *testing.T) {
	tr := NewReliabilityTracker()
	assert.InDelta(t, ReliabilitySeed, tr.Get("refinitiv"), 1e-9)
}

func TestReliabilityEMA(t *testing.T) {
	tr := NewReliabilityTracker()
	tr.Update("refinitiv", 1.0)
	// 0.8*0.8 + 0.2*1.0 = 0.84
	assert.InDelta(t, 0.84, tr.Get("refinitiv"), 1e-9)

	tr.Update("refinitiv", 0.5)
	// 0.8*0.84 + 0.2*0.5 = 0.772
	assert.InDelta(t, 0.772, tr.Get("refinitiv"), 1e-9)
}

func TestReliabilitySnapshotLoad(t *testing.T) {
	tr := NewReliabilityTracker()
	tr.Update("msci", 0.9)

	snap := tr.Snapshot()
	restored := NewReliabilityTracker()
	restored.Load(snap)

	assert.InDelta(t, tr.Get("msci"), restored.Get("msci"), 1e-9)
}
