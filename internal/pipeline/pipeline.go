// Package pipeline runs one reconciliation: resolve, classify, deduplicate,
// apply overrides and compute payouts.
package pipeline

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/commission"
	"github.com/sells-group/payout-recon/internal/metrics"
	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/recon"
)

// Overrides is the slice of the override store a run needs.
type Overrides interface {
	recon.Exclusions
	Get(model.Key) (model.Override, bool)
}

// Window bounds the evaluation period on ClosedAt, both ends inclusive.
type Window struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls in the window. Records without a close
// timestamp never do.
func (w Window) Contains(t *time.Time) bool {
	if t == nil {
		return false
	}
	return !t.Before(w.From) && !t.After(w.To)
}

// Batch is the input snapshot of one run.
type Batch struct {
	Account  string
	Records  []model.OperationalRecord
	Snapshot *recon.Snapshot
	Window   *Window
}

// Stats summarizes a run.
type Stats struct {
	Input       int                    `json:"input"`
	OutOfWindow int                    `json:"out_of_window"`
	Duplicates  int                    `json:"duplicates"`
	Excluded    int                    `json:"excluded"`
	Lines       int                    `json:"lines"`
	Payable     int                    `json:"payable"`
	Pending     int                    `json:"pending"`
	Rejected    int                    `json:"rejected"`
	Overridden  int                    `json:"overridden"`
	TotalDue    decimal.Decimal        `json:"total_due"`
	LedgerOnly  map[model.SourceID]int `json:"ledger_only,omitempty"`
}

// Result is the engine's output.
type Result struct {
	RunID     string             `json:"run_id"`
	Account   string             `json:"account"`
	StartedAt time.Time          `json:"started_at"`
	Lines     []model.PayoutLine `json:"lines"`
	Review    []model.ReviewItem `json:"review"`
	Stats     Stats              `json:"stats"`
}

// Summary converts the result into its persisted form.
func (r *Result) Summary() model.RunSummary {
	return model.RunSummary{
		ID:        r.RunID,
		Account:   r.Account,
		StartedAt: r.StartedAt,
		Lines:     r.Stats.Lines,
		Payable:   r.Stats.Payable,
		Pending:   r.Stats.Pending,
		Review:    len(r.Review),
		TotalDue:  r.Stats.TotalDue,
	}
}

// Pipeline holds the static configuration shared by runs.
type Pipeline struct {
	calc      *commission.Calculator
	policy    recon.PriorityPolicy
	overrides Overrides
	newID     func() string
	now       func() time.Time
}

// New creates a Pipeline. overrides may be nil.
func New(calc *commission.Calculator, policy recon.PriorityPolicy, overrides Overrides) *Pipeline {
	return &Pipeline{
		calc:      calc,
		policy:    policy,
		overrides: overrides,
		newID:     func() string { return uuid.New().String() },
		now:       time.Now,
	}
}

// WithClock fixes run IDs and timestamps for testing.
func (p *Pipeline) WithClock(id string, now time.Time) *Pipeline {
	p.newID = func() string { return id }
	p.now = func() time.Time { return now }
	return p
}

type item struct {
	rec      model.OperationalRecord
	key      model.Key
	decision model.PaymentDecision
	dup      bool
}

// Run reconciles one batch. It does no I/O; the only failure is a batch
// without a ledger snapshot, which aborts before any line is produced.
func (p *Pipeline) Run(b Batch) (*Result, error) {
	if b.Snapshot == nil {
		metrics.RunsFailed.WithLabelValues("snapshot").Inc()
		return nil, eris.New("pipeline: batch has no ledger snapshot")
	}
	if p.calc == nil {
		return nil, eris.New("pipeline: no commission calculator")
	}

	res := &Result{
		RunID:     p.newID(),
		Account:   b.Account,
		StartedAt: p.now().UTC(),
	}
	log := zap.L().With(zap.String("run_id", res.RunID), zap.String("account", b.Account))
	res.Stats.Input = len(b.Records)

	records := b.Records
	if b.Window != nil {
		records = make([]model.OperationalRecord, 0, len(b.Records))
		for _, r := range b.Records {
			if b.Window.Contains(r.ClosedAt) {
				records = append(records, r)
			}
		}
		res.Stats.OutOfWindow = len(b.Records) - len(records)
	}

	// Resolve and classify.
	resolver := recon.NewResolver(b.Snapshot, p.policy)
	auto := make([]model.PaymentDecision, len(records))
	for i, r := range records {
		auto[i] = recon.Classify(resolver.Resolve(r).Winner)
	}

	// Deduplicate and drop confirmed exclusions.
	var ex recon.Exclusions
	if p.overrides != nil {
		ex = p.overrides
	}
	dd := recon.Deduplicate(records, ex)
	res.Stats.Duplicates = dd.Dropped
	res.Stats.Excluded = dd.Excluded
	res.Review = append(res.Review, dd.Review...)

	// Manual overrides win over the automatic pass.
	items := make([]item, 0, len(dd.Survivors))
	for _, s := range dd.Survivors {
		it := item{rec: records[s.Index], key: s.Key, decision: auto[s.Index], dup: s.DuplicateFlag}
		if p.overrides != nil {
			if ov, ok := p.overrides.Get(s.Key); ok {
				it.decision = recon.Decide(it.decision, &ov)
				res.Stats.Overridden++
			}
		}
		items = append(items, it)
	}

	// Volume is counted on the deduplicated, post-exclusion working set.
	volume := make(map[string]int)
	for _, it := range items {
		if it.decision.Payable {
			volume[recon.NormalizeName(it.rec.CloserName)]++
		}
	}

	res.Stats.TotalDue = decimal.Zero
	for _, it := range items {
		vol := volume[recon.NormalizeName(it.rec.CloserName)]
		rate := p.calc.Rate(it.rec, vol)
		line := model.PayoutLine{
			Record:        it.rec,
			Key:           it.key,
			Decision:      it.decision,
			Mode:          rate.Mode,
			RateKey:       rate.Key,
			UnitValue:     rate.UnitValue,
			AmountDue:     commission.AmountDue(rate.UnitValue, it.decision.Payable),
			DuplicateFlag: it.dup,
		}
		if rate.Mode == model.ModeTiered {
			line.Volume = vol
		}
		res.Lines = append(res.Lines, line)

		switch {
		case line.Decision.Payable:
			res.Stats.Payable++
		case line.Decision.Status == model.StatusPending:
			res.Stats.Pending++
			res.Review = append(res.Review, model.ReviewItem{
				Key:    it.key,
				Reason: model.ReviewPending,
				Closer: it.rec.CloserName,
			})
		default:
			res.Stats.Rejected++
		}
		res.Stats.TotalDue = res.Stats.TotalDue.Add(line.AmountDue)
	}

	sort.SliceStable(res.Lines, func(i, j int) bool {
		a, b := res.Lines[i], res.Lines[j]
		if a.Record.Account != b.Record.Account {
			return a.Record.Account < b.Record.Account
		}
		if a.Key.Client != b.Key.Client {
			return a.Key.Client < b.Key.Client
		}
		return a.Key.Order < b.Key.Order
	})
	res.Stats.Lines = len(res.Lines)
	res.Stats.LedgerOnly = ledgerOnly(b.Snapshot, records)

	recordMetrics(res)
	log.Info("pipeline: run complete",
		zap.Int("input", res.Stats.Input),
		zap.Int("lines", res.Stats.Lines),
		zap.Int("payable", res.Stats.Payable),
		zap.Int("pending", res.Stats.Pending),
		zap.Int("duplicates", res.Stats.Duplicates),
		zap.Int("excluded", res.Stats.Excluded),
		zap.Int("review", len(res.Review)),
		zap.String("total_due", res.Stats.TotalDue.StringFixed(2)),
	)
	return res, nil
}

// ledgerOnly counts, per source, keys audited in a ledger that no record in
// the batch refers to.
func ledgerOnly(snap *recon.Snapshot, records []model.OperationalRecord) map[model.SourceID]int {
	inBatch := make(map[model.Key]bool, len(records))
	for _, r := range records {
		inBatch[recon.RecordKey(r)] = true
	}
	out := make(map[model.SourceID]int)
	for _, l := range snap.Ledgers() {
		for _, k := range l.Keys() {
			if !inBatch[k] {
				out[l.Source]++
			}
		}
	}
	return out
}

func recordMetrics(res *Result) {
	metrics.RunsCompleted.Inc()
	metrics.RecordsProcessed.Add(float64(res.Stats.Input))
	metrics.DuplicatesDropped.Add(float64(res.Stats.Duplicates))
	for _, l := range res.Lines {
		metrics.PayoutLines.WithLabelValues(string(l.Decision.Status), string(l.Decision.Source)).Inc()
	}
	for _, r := range res.Review {
		metrics.ReviewItems.WithLabelValues(string(r.Reason)).Inc()
	}
}
