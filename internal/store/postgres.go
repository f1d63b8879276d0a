package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/lensiq/esg-pipeline/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests.
func NewPostgresWithPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cycles (
	id          TEXT PRIMARY KEY,
	state       TEXT NOT NULL,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	report      JSONB NOT NULL
);

CREATE TABLE IF NOT EXISTS source_reliability (
	source     TEXT PRIMARY KEY,
	score      DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_cycles_started_at ON cycles(started_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) SaveCycle(ctx context.Context, report *model.CycleReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal cycle report")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO cycles (id, state, started_at, finished_at, report)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			finished_at = EXCLUDED.finished_at,
			report = EXCLUDED.report`,
		report.ID, string(report.State), report.StartedAt.UTC(), report.FinishedAt.UTC(), payload,
	)
	return eris.Wrap(err, "postgres: save cycle")
}

func (s *PostgresStore) GetCycle(ctx context.Context, id string) (*model.CycleReport, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM cycles WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: cycle %q not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get cycle")
	}

	var report model.CycleReport
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal cycle report")
	}
	return &report, nil
}

func (s *PostgresStore) ListCycles(ctx context.Context, limit int) ([]model.CycleReport, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT report FROM cycles ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list cycles")
	}
	defer rows.Close()

	var out []model.CycleReport
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cycle")
		}
		var report model.CycleReport
		if err := json.Unmarshal(payload, &report); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal cycle report")
		}
		out = append(out, report)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate cycles")
}

func (s *PostgresStore) GetReliability(ctx context.Context) (map[string]float64, error) {
	rows, err := s.pool.Query(ctx, `SELECT source, score FROM source_reliability`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get reliability")
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var source string
		var score float64
		if err := rows.Scan(&source, &score); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reliability")
		}
		out[source] = score
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate reliability")
}

func (s *PostgresStore) SetReliability(ctx context.Context, scores map[string]float64) error {
	now := time.Now().UTC()
	for source, score := range scores {
		if _, err := s.pool.Exec(ctx, `
			INSERT INTO source_reliability (source, score, updated_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (source) DO UPDATE SET
				score = EXCLUDED.score,
				updated_at = EXCLUDED.updated_at`,
			source, score, now,
		); err != nil {
			return eris.Wrap(err, "postgres: set reliability")
		}
	}
	return nil
}
