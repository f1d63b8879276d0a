package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// SQLiteWriter stores datasets in a single SQLite database. Records are
// kept as one row per record with the full record serialized alongside the
// queryable columns.
type SQLiteWriter struct {
	db   *sql.DB
	path string
}

// NewSQLite opens (creating if needed) the dataset database under dir.
func NewSQLite(dir string) (*SQLiteWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "dataset: create dir")
	}
	path := filepath.Join(dir, "datasets.db")

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: open sqlite")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "dataset: exec %s", pragma)
		}
	}

	w := &SQLiteWriter{db: db, path: path}
	if err := w.migrate(); err != nil {
		db.Close() //nolint:errcheck
		return nil, err
	}
	return w, nil
}

const datasetMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	name       TEXT PRIMARY KEY,
	records    INTEGER NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset_records (
	dataset     TEXT NOT NULL REFERENCES datasets(name) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	company_id  TEXT NOT NULL,
	observed_at DATETIME NOT NULL,
	data_source TEXT NOT NULL,
	payload     TEXT NOT NULL,
	PRIMARY KEY (dataset, position)
);

CREATE INDEX IF NOT EXISTS idx_dataset_records_company
	ON dataset_records(dataset, company_id);
`

func (w *SQLiteWriter) migrate() error {
	_, err := w.db.Exec(datasetMigration)
	return eris.Wrap(err, "dataset: migrate")
}

func (w *SQLiteWriter) Write(ctx context.Context, name string, records []model.Record) (Info, error) {
	if name == "" {
		return Info{}, eris.New("dataset: empty dataset name")
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return Info{}, eris.Wrap(err, "dataset: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_records WHERE dataset = ?`, name); err != nil {
		return Info{}, eris.Wrap(err, "dataset: clear records")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name); err != nil {
		return Info{}, eris.Wrap(err, "dataset: clear dataset")
	}

	createdAt := time.Now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO datasets (name, records, created_at) VALUES (?, ?, ?)`,
		name, len(records), createdAt,
	); err != nil {
		return Info{}, eris.Wrap(err, "dataset: insert dataset")
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO dataset_records (dataset, position, company_id, observed_at, data_source, payload)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return Info{}, eris.Wrap(err, "dataset: prepare insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return Info{}, eris.Wrap(err, "dataset: marshal record")
		}
		if _, err := stmt.ExecContext(ctx,
			name, i, rec.CompanyID, rec.Timestamp.UTC(), rec.DataSource, string(payload),
		); err != nil {
			return Info{}, eris.Wrap(err, "dataset: insert record")
		}
	}

	if err := tx.Commit(); err != nil {
		return Info{}, eris.Wrap(err, "dataset: commit")
	}

	return Info{Name: name, Path: w.path, Records: len(records), CreatedAt: createdAt}, nil
}

func (w *SQLiteWriter) Read(ctx context.Context, name string) ([]model.Record, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT payload FROM dataset_records WHERE dataset = ? ORDER BY position`, name)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: query records")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "dataset: scan record")
		}
		var rec model.Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, eris.Wrap(err, "dataset: unmarshal record")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "dataset: iterate records")
	}
	if out == nil {
		return nil, eris.Errorf("dataset: %q not found", name)
	}
	return out, nil
}

func (w *SQLiteWriter) List(ctx context.Context) ([]Info, error) {
	rows, err := w.db.QueryContext(ctx,
		`SELECT name, records, created_at FROM datasets ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "dataset: list")
	}
	defer rows.Close() //nolint:errcheck

	var out []Info
	for rows.Next() {
		info := Info{Path: w.path}
		if err := rows.Scan(&info.Name, &info.Records, &info.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "dataset: scan dataset")
		}
		out = append(out, info)
	}
	return out, eris.Wrap(rows.Err(), "dataset: iterate datasets")
}

func (w *SQLiteWriter) Delete(ctx context.Context, name string) error {
	if _, err := w.db.ExecContext(ctx, `DELETE FROM dataset_records WHERE dataset = ?`, name); err != nil {
		return eris.Wrap(err, "dataset: delete records")
	}
	res, err := w.db.ExecContext(ctx, `DELETE FROM datasets WHERE name = ?`, name)
	if err != nil {
		return eris.Wrap(err, "dataset: delete dataset")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return eris.Errorf("dataset: %q not found", name)
	}
	return nil
}

func (w *SQLiteWriter) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	if _, err := w.db.ExecContext(ctx, `
		DELETE FROM dataset_records WHERE dataset IN
			(SELECT name FROM datasets WHERE created_at < ?)`, olderThan.UTC(),
	); err != nil {
		return 0, eris.Wrap(err, "dataset: cleanup records")
	}
	res, err := w.db.ExecContext(ctx,
		`DELETE FROM datasets WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, eris.Wrap(err, "dataset: cleanup datasets")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "dataset: cleanup rows affected")
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
