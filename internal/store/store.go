// Package store persists cycle history and source reliability scores
// across pipeline runs. SQLite backs single-node deployments; Postgres
// backs shared ones.
package store

import (
	"context"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Store defines the persistence interface for the ingestion pipeline.
type Store interface {
	// Cycles
	SaveCycle(ctx context.Context, report *model.CycleReport) error
	GetCycle(ctx context.Context, id string) (*model.CycleReport, error)
	ListCycles(ctx context.Context, limit int) ([]model.CycleReport, error)

	// Source reliability EMAs, loaded at startup and saved after each
	// cycle so the reconciliation engine remembers source behavior.
	GetReliability(ctx context.Context) (map[string]float64, error)
	SetReliability(ctx context.Context, scores map[string]float64) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
