package model

import "time"

// CycleState tracks the orchestrator's progress through one cycle.
type CycleState string

const (
	CycleIdle           CycleState = "idle"
	CycleIngesting      CycleState = "ingesting"
	CycleReconciling    CycleState = "reconciling"
	CycleQualityControl CycleState = "quality_control"
	CycleAssembling     CycleState = "assembling"
	CycleDone           CycleState = "done"
	CycleFailed         CycleState = "failed"
)

// StageStatus is the terminal status of one pipeline stage.
type StageStatus string

const (
	StageComplete StageStatus = "complete"
	StageSkipped  StageStatus = "skipped"
	StageFailed   StageStatus = "failed"
)

// StageResult records one stage's outcome within a cycle report.
type StageResult struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	DurationMS int64          `json:"duration_ms"`
	RecordsIn  int            `json:"records_in"`
	RecordsOut int            `json:"records_out"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SourceOutcome records one adapter's ingestion result.
type SourceOutcome struct {
	Source  string `json:"source"`
	Records int    `json:"records"`
	Error   string `json:"error,omitempty"`
}

// CycleReport is the always-returned summary of one pipeline cycle. Even on
// partial failure the report carries per-stage counts and timings; only
// configuration errors and total ingestion failure abort without a usable
// dataset.
type CycleReport struct {
	ID          string          `json:"id"`
	State       CycleState      `json:"state"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
	Stages      []StageResult   `json:"stages"`
	Sources     []SourceOutcome `json:"sources"`
	Degraded    bool            `json:"degraded"`
	FailedStage string          `json:"failed_stage,omitempty"`
	Cause       string          `json:"cause,omitempty"`

	TotalRecords int               `json:"total_records"`
	Quality      *QualityReport    `json:"quality,omitempty"`
	DatasetPaths map[string]string `json:"dataset_paths,omitempty"` // split -> path
}

// ReconciliationResult is the output of resolving one batch of
// multi-source records.
type ReconciliationResult struct {
	Records           []Record           `json:"records"`
	ConflictsResolved int                `json:"conflicts_resolved"`
	ConfidenceScore   float64            `json:"confidence_score"`
	SourceWeights     map[string]float64 `json:"source_weights"`
	Anomalies         []string           `json:"anomalies,omitempty"`
	Degraded          bool               `json:"degraded"`
}
