// Package dataset persists reconciled records as named ML datasets and
// assembles train/validation/test splits. A SQLite-backed engine is the
// primary store; a partitioned flat-file engine serves as the fallback
// when SQLite is unavailable or misconfigured.
package dataset

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Info describes one stored dataset.
type Info struct {
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Records   int       `json:"records"`
	CreatedAt time.Time `json:"created_at"`
}

// Writer is a dataset storage engine.
type Writer interface {
	// Write persists records under name, replacing any previous dataset
	// with the same name.
	Write(ctx context.Context, name string, records []model.Record) (Info, error)

	// Read loads a dataset's records in stored order.
	Read(ctx context.Context, name string) ([]model.Record, error)

	// List returns all stored datasets, newest first.
	List(ctx context.Context) ([]Info, error)

	// Delete removes the named dataset.
	Delete(ctx context.Context, name string) error

	// Cleanup removes datasets created before the cutoff and returns how
	// many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	Close() error
}

// Engines supported by Open.
const (
	EngineSQLite   = "sqlite"
	EngineFlatFile = "flatfile"
)

// Open constructs a Writer for the named engine rooted at dir.
func Open(engine, dir string) (Writer, error) {
	switch engine {
	case EngineSQLite, "":
		return NewSQLite(dir)
	case EngineFlatFile:
		return NewFlatFile(dir)
	default:
		return nil, eris.Errorf("dataset: unknown engine %q (valid: sqlite, flatfile)", engine)
	}
}
