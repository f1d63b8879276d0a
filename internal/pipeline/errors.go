package pipeline

import "github.com/rotisserie/eris"

// Fatal errors abort the cycle. Everything else is recovered: the failing
// source, group, or stage is skipped or degraded and the cycle continues.
var (
	// ErrConfiguration marks an unrunnable setup, such as zero enabled
	// sources or invalid split ratios.
	ErrConfiguration = eris.New("pipeline: configuration error")

	// ErrAllSourcesFailed means ingestion produced no records from any
	// source, leaving nothing to reconcile or assemble.
	ErrAllSourcesFailed = eris.New("pipeline: all sources failed")
)
