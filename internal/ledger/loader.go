package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/payout-recon/internal/metrics"
	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/recon"
	"github.com/sells-group/payout-recon/internal/resilience"
)

// ErrLedgerUnavailable means at least one ledger could not be read; no
// snapshot is produced.
var ErrLedgerUnavailable = eris.New("ledger: unavailable")

// IsUnavailable reports whether err came from a failed load.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrLedgerUnavailable)
}

// Loader reads every configured ledger into a Snapshot.
type Loader struct {
	reader      Reader
	retry       resilience.RetryConfig
	concurrency int
}

// NewLoader creates a Loader. A nil reader reads local files.
func NewLoader(reader Reader, retry resilience.RetryConfig) *Loader {
	if reader == nil {
		reader = FileReader{}
	}
	return &Loader{reader: reader, retry: retry, concurrency: 4}
}

// Load reads all ledgers concurrently. Any failure cancels the rest and
// returns an error wrapping ErrLedgerUnavailable.
func (l *Loader) Load(ctx context.Context, schemas []Schema) (*recon.Snapshot, error) {
	ledgers := make([]*recon.Ledger, len(schemas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, s := range schemas {
		g.Go(func() error {
			led, err := l.loadOne(gctx, s)
			if err != nil {
				metrics.RunsFailed.WithLabelValues("ledger").Inc()
				return eris.Wrapf(ErrLedgerUnavailable, "ledger: load %s: %v", s.Source, err)
			}
			ledgers[i] = led
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return recon.NewSnapshot(ledgers...), nil
}

func (l *Loader) loadOne(ctx context.Context, s Schema) (*recon.Ledger, error) {
	start := time.Now()
	cfg := l.retry
	cfg.OnRetry = resilience.LogRetries("ledger", string(s.Source))

	rows, err := resilience.DoVal(ctx, cfg, func(ctx context.Context) ([][]string, error) {
		return l.reader.ReadLedger(ctx, s)
	})
	if err != nil {
		return nil, err
	}
	entries, err := Parse(s, rows)
	if err != nil {
		return nil, err
	}
	led := recon.NewLedger(s.Source, s.Priority, entries)

	elapsed := time.Since(start)
	metrics.LedgerLoadDuration.WithLabelValues(string(s.Source)).Observe(float64(elapsed.Milliseconds()))
	metrics.LedgerEntries.WithLabelValues(string(s.Source)).Set(float64(led.Len()))
	zap.L().Info("ledger: loaded",
		zap.String("source", string(s.Source)),
		zap.String("path", s.Path),
		zap.Int("rows", len(rows)),
		zap.Int("entries", led.Len()),
		zap.Duration("elapsed", elapsed),
	)
	return led, nil
}

// Parse turns raw rows into ledger entries. Rows without a client or order
// are skipped. Row numbers are 1-based spreadsheet rows.
func Parse(s Schema, rows [][]string) ([]model.AuditLedgerEntry, error) {
	idx := func(col string) int {
		i, _ := ColumnIndex(col)
		return i
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	client, order := idx(s.Columns.Client), idx(s.Columns.Order)
	status, alt := idx(s.Columns.Status), idx(s.Columns.StatusAlt)
	role, closer := idx(s.Columns.Role), idx(s.Columns.Closer)

	first := s.StartRow
	if first < 1 {
		first = 1
	}
	out := make([]model.AuditLedgerEntry, 0, len(rows))
	for i, row := range rows {
		e := model.AuditLedgerEntry{
			SourceID:    s.Source,
			ClientCode:  cell(row, client),
			OrderNumber: cell(row, order),
			RawRole:     cell(row, role),
			Closer:      cell(row, closer),
			Row:         first + i,
		}
		if e.ClientCode == "" || e.OrderNumber == "" {
			continue
		}
		if s.Presence() {
			e.RawStatus = s.PresenceStatus
		} else {
			e.RawStatus = cell(row, status)
			if e.RawStatus == "" {
				e.RawStatus = cell(row, alt)
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	v := strings.TrimSpace(row[i])
	if strings.EqualFold(v, "nan") || strings.EqualFold(v, "none") {
		return ""
	}
	return v
}
