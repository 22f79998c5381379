package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/payout-recon/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
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

	maxConns, minConns := int32(4), int32(1)
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS payout_overrides (
	client_code  TEXT NOT NULL,
	order_number TEXT NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	set_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (client_code, order_number)
);

CREATE TABLE IF NOT EXISTS payout_exclusions (
	client_code  TEXT NOT NULL,
	order_number TEXT NOT NULL,
	PRIMARY KEY (client_code, order_number)
);

CREATE TABLE IF NOT EXISTS payout_runs (
	id         TEXT PRIMARY KEY,
	account    TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	lines      INTEGER NOT NULL,
	payable    INTEGER NOT NULL,
	pending    INTEGER NOT NULL,
	review     INTEGER NOT NULL,
	total_due  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_payout_runs_started_at ON payout_runs(started_at DESC);
`

var (
	overrideColumns  = []string{"client_code", "order_number", "status", "reason", "set_at"}
	exclusionColumns = []string{"client_code", "order_number"}
)

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// replace truncates table and copies rows in, inside one transaction.
func (s *PostgresStore) replace(ctx context.Context, table string, columns []string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "DELETE FROM "+pgx.Identifier{table}.Sanitize()); err != nil {
		return eris.Wrapf(err, "postgres: clear %s", table)
	}
	if len(rows) > 0 {
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows)); err != nil {
			return eris.Wrapf(err, "postgres: copy into %s", table)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func (s *PostgresStore) SaveOverrides(ctx context.Context, overrides []model.Override) error {
	return s.replace(ctx, "payout_overrides", overrideColumns, overrideRows(overrides))
}

func (s *PostgresStore) LoadOverrides(ctx context.Context) ([]model.Override, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT client_code, order_number, status, reason, set_at FROM payout_overrides ORDER BY client_code, order_number`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load overrides")
	}
	defer rows.Close()

	var out []model.Override
	for rows.Next() {
		var ov model.Override
		var status string
		if err := rows.Scan(&ov.Key.Client, &ov.Key.Order, &status, &ov.Reason, &ov.SetAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan override")
		}
		ov.Status = model.PaymentStatus(status)
		out = append(out, ov)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate overrides")
}

func (s *PostgresStore) SaveExclusions(ctx context.Context, keys []model.Key) error {
	return s.replace(ctx, "payout_exclusions", exclusionColumns, keyRows(keys))
}

func (s *PostgresStore) LoadExclusions(ctx context.Context) ([]model.Key, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT client_code, order_number FROM payout_exclusions ORDER BY client_code, order_number`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: load exclusions")
	}
	defer rows.Close()

	var out []model.Key
	for rows.Next() {
		var k model.Key
		if err := rows.Scan(&k.Client, &k.Order); err != nil {
			return nil, eris.Wrap(err, "postgres: scan exclusion")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate exclusions")
}

func (s *PostgresStore) RecordRun(ctx context.Context, run model.RunSummary) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO payout_runs (id, account, started_at, lines, payable, pending, review, total_due) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		run.ID, run.Account, run.StartedAt.UTC(), run.Lines, run.Payable, run.Pending, run.Review, run.TotalDue.String(),
	)
	return eris.Wrapf(err, "postgres: insert run %s", run.ID)
}

func (s *PostgresStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account, started_at, lines, payable, pending, review, total_due FROM payout_runs ORDER BY started_at DESC LIMIT $1`,
		runLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var out []model.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate runs")
}
