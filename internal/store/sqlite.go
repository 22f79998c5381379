package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/payout-recon/internal/model"
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
CREATE TABLE IF NOT EXISTS overrides (
	client_code  TEXT NOT NULL,
	order_number TEXT NOT NULL,
	status       TEXT NOT NULL,
	reason       TEXT NOT NULL DEFAULT '',
	set_at       DATETIME NOT NULL,
	PRIMARY KEY (client_code, order_number)
);

CREATE TABLE IF NOT EXISTS exclusions (
	client_code  TEXT NOT NULL,
	order_number TEXT NOT NULL,
	PRIMARY KEY (client_code, order_number)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	account    TEXT NOT NULL DEFAULT '',
	started_at DATETIME NOT NULL,
	lines      INTEGER NOT NULL,
	payable    INTEGER NOT NULL,
	pending    INTEGER NOT NULL,
	review     INTEGER NOT NULL,
	total_due  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// replace runs clear and every insert in one transaction.
func (s *SQLiteStore) replace(ctx context.Context, clear, insert string, rows [][]any) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, clear); err != nil {
		return eris.Wrap(err, "sqlite: clear")
	}
	if len(rows) > 0 {
		stmt, err := tx.PrepareContext(ctx, insert)
		if err != nil {
			return eris.Wrap(err, "sqlite: prepare insert")
		}
		defer stmt.Close() //nolint:errcheck
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r...); err != nil {
				return eris.Wrap(err, "sqlite: insert")
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) SaveOverrides(ctx context.Context, overrides []model.Override) error {
	return s.replace(ctx,
		`DELETE FROM overrides`,
		`INSERT INTO overrides (client_code, order_number, status, reason, set_at) VALUES (?, ?, ?, ?, ?)`,
		overrideRows(overrides),
	)
}

func (s *SQLiteStore) LoadOverrides(ctx context.Context) ([]model.Override, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_code, order_number, status, reason, set_at FROM overrides ORDER BY client_code, order_number`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load overrides")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Override
	for rows.Next() {
		var ov model.Override
		var status string
		if err := rows.Scan(&ov.Key.Client, &ov.Key.Order, &status, &ov.Reason, &ov.SetAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan override")
		}
		ov.Status = model.PaymentStatus(status)
		out = append(out, ov)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate overrides")
}

func (s *SQLiteStore) SaveExclusions(ctx context.Context, keys []model.Key) error {
	return s.replace(ctx,
		`DELETE FROM exclusions`,
		`INSERT INTO exclusions (client_code, order_number) VALUES (?, ?)`,
		keyRows(keys),
	)
}

func (s *SQLiteStore) LoadExclusions(ctx context.Context) ([]model.Key, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT client_code, order_number FROM exclusions ORDER BY client_code, order_number`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: load exclusions")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Key
	for rows.Next() {
		var k model.Key
		if err := rows.Scan(&k.Client, &k.Order); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan exclusion")
		}
		out = append(out, k)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate exclusions")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run model.RunSummary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, account, started_at, lines, payable, pending, review, total_due) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Account, run.StartedAt.UTC(), run.Lines, run.Payable, run.Pending, run.Review, run.TotalDue.String(),
	)
	return eris.Wrapf(err, "sqlite: insert run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account, started_at, lines, payable, pending, review, total_due FROM runs ORDER BY started_at DESC LIMIT ?`,
		runLimit(limit),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.RunSummary
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate runs")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (model.RunSummary, error) {
	var r model.RunSummary
	var total string
	var started time.Time
	if err := row.Scan(&r.ID, &r.Account, &started, &r.Lines, &r.Payable, &r.Pending, &r.Review, &total); err != nil {
		return r, eris.Wrap(err, "store: scan run")
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return r, eris.Wrapf(err, "store: parse total for run %s", r.ID)
	}
	r.StartedAt = started.UTC()
	r.TotalDue = d
	return r, nil
}

func overrideRows(ovs []model.Override) [][]any {
	rows := make([][]any, 0, len(ovs))
	for _, ov := range ovs {
		rows = append(rows, []any{ov.Key.Client, ov.Key.Order, string(ov.Status), ov.Reason, ov.SetAt.UTC()})
	}
	return rows
}

func keyRows(keys []model.Key) [][]any {
	rows := make([][]any, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []any{k.Client, k.Order})
	}
	return rows
}
