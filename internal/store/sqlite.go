package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cycles (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	report      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS source_reliability (
	source     TEXT PRIMARY KEY,
	score      REAL NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveCycle(ctx context.Context, report *model.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal cycle report")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cycles (id, state, started_at, finished_at, report)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state,
			finished_at = excluded.finished_at,
			report = excluded.report`,
		report.ID, string(report.State), report.StartedAt.UTC(), report.FinishedAt.UTC(), string(payload),
	)
	return eris.Wrap(err, "sqlite: save cycle")
}

func (s *SQLiteStore) GetCycle(ctx context.Context, id string) (*model.CycleReport, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT report FROM cycles WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Errorf("sqlite: cycle %q not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cycle")
	}

	var report model.CycleReport
	if err := json.Unmarshal([]byte(payload), &report); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal cycle report")
	}
	return &report, nil
}

func (s *SQLiteStore) ListCycles(ctx context.Context, limit int) ([]model.CycleReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT report FROM cycles ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list cycles")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CycleReport
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cycle")
		}
		var report model.CycleReport
		if err := json.Unmarshal([]byte(payload), &report); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal cycle report")
		}
		out = append(out, report)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate cycles")
}

func (s *SQLiteStore) GetReliability(ctx context.Context) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source, score FROM source_reliability`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get reliability")
	}
	defer rows.Close() //nolint:errcheck

	out := make(map[string]float64)
	for rows.Next() {
		var source string
		var score float64
		if err := rows.Scan(&source, &score); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reliability")
		}
		out[source] = score
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate reliability")
}

func (s *SQLiteStore) SetReliability(ctx context.Context, scores map[string]float64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for source, score := range scores {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO source_reliability (source, score, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(source) DO UPDATE SET
				score = excluded.score,
				updated_at = excluded.updated_at`,
			source, score, now,
		); err != nil {
			return eris.Wrap(err, "sqlite: set reliability")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit reliability")
}
