package recon

import (
	"sort"
	"strings"

	"github.com/sells-group/payout-recon/internal/model"
)

// Ledger is one audit source indexed by canonical key.
type Ledger struct {
	Source   model.SourceID
	Priority int

	index map[model.Key][]model.AuditLedgerEntry
	keys  []model.Key
	size  int
}

// NewLedger indexes entries under their canonical key and stamps each with
// the ledger's priority. Entries with an empty key are dropped since they can
// never match.
func NewLedger(source model.SourceID, priority int, entries []model.AuditLedgerEntry) *Ledger {
	l := &Ledger{
		Source:   source,
		Priority: priority,
		index:    make(map[model.Key][]model.AuditLedgerEntry, len(entries)),
	}
	for _, e := range entries {
		k := EntryKey(e)
		if k.Empty() {
			continue
		}
		e.SourceID = source
		e.OriginPriority = priority
		if _, seen := l.index[k]; !seen {
			l.keys = append(l.keys, k)
		}
		l.index[k] = append(l.index[k], e)
		l.size++
	}
	return l
}

// Lookup returns every entry stored under k, in ledger row order.
func (l *Ledger) Lookup(k model.Key) []model.AuditLedgerEntry {
	if k.Empty() {
		return nil
	}
	return l.index[k]
}

// Len is the number of indexed entries.
func (l *Ledger) Len() int { return l.size }

// Keys returns the distinct keys in first-seen order.
func (l *Ledger) Keys() []model.Key { return l.keys }

// Snapshot is the immutable set of ledgers for one run, ordered by ascending
// priority with ties kept in declaration order.
type Snapshot struct {
	ledgers []*Ledger
}

// NewSnapshot orders ledgers by priority.
func NewSnapshot(ledgers ...*Ledger) *Snapshot {
	sorted := make([]*Ledger, len(ledgers))
	copy(sorted, ledgers)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return &Snapshot{ledgers: sorted}
}

// Ledgers returns the ledgers in priority order.
func (s *Snapshot) Ledgers() []*Ledger { return s.ledgers }

// Ledger returns the ledger for source, if present.
func (s *Snapshot) Ledger(source model.SourceID) (*Ledger, bool) {
	for _, l := range s.ledgers {
		if l.Source == source {
			return l, true
		}
	}
	return nil, false
}

// NamedOperatorRule moves Source to the front of the priority order for any
// record whose closer name contains Closer. With Exclusive set, no other
// source is consulted for that closer, so ResolvedMatch.Matched then holds
// only Source's entries and is partial provenance.
type NamedOperatorRule struct {
	Closer    string         `yaml:"closer" json:"closer"`
	Source    model.SourceID `yaml:"source" json:"source"`
	Exclusive bool           `yaml:"exclusive" json:"exclusive"`
}

// Matches reports whether the rule applies to closer.
func (r NamedOperatorRule) Matches(closer string) bool {
	needle := NormalizeName(r.Closer)
	return needle != "" && strings.Contains(NormalizeName(closer), needle)
}

// PriorityPolicy holds the per-record exceptions to the default order.
type PriorityPolicy struct {
	NamedOperators []NamedOperatorRule `yaml:"named_operators" json:"named_operators"`
}

// Resolver matches operational records against a snapshot.
type Resolver struct {
	snap   *Snapshot
	policy PriorityPolicy
}

// NewResolver creates a Resolver over snap.
func NewResolver(snap *Snapshot, policy PriorityPolicy) *Resolver {
	return &Resolver{snap: snap, policy: policy}
}

// order returns the ledgers to consult for rec. The first matching named
// operator rule wins.
func (r *Resolver) order(rec model.OperationalRecord) []*Ledger {
	for _, rule := range r.policy.NamedOperators {
		if !rule.Matches(rec.CloserName) {
			continue
		}
		alt, ok := r.snap.Ledger(rule.Source)
		if !ok {
			break
		}
		if rule.Exclusive {
			return []*Ledger{alt}
		}
		out := make([]*Ledger, 0, len(r.snap.ledgers))
		out = append(out, alt)
		for _, l := range r.snap.ledgers {
			if l != alt {
				out = append(out, l)
			}
		}
		return out
	}
	return r.snap.ledgers
}

// Resolve collects every entry matching rec's key in priority order. The
// winner is the first match, or nil when nothing matched. Sources skipped by
// an exclusive named-operator rule contribute nothing to Matched.
func (r *Resolver) Resolve(rec model.OperationalRecord) model.ResolvedMatch {
	m := model.ResolvedMatch{Record: rec}
	k := RecordKey(rec)
	if k.Empty() {
		return m
	}
	for _, l := range r.order(rec) {
		m.Matched = append(m.Matched, l.Lookup(k)...)
	}
	if len(m.Matched) > 0 {
		w := m.Matched[0]
		m.Winner = &w
	}
	return m
}
