// Package recon reconciles closed work orders and sales against audit ledgers
// and turns the result into payout lines.
package recon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/payout-recon/internal/model"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// NormalizePart canonicalizes one half of the composite key. Identifiers stay
// strings: leading zeros and alphanumeric suffixes are significant.
func NormalizePart(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// NormalizeKey builds the canonical key for a (client, order) pair.
func NormalizeKey(client, order string) model.Key {
	return model.Key{Client: NormalizePart(client), Order: NormalizePart(order)}
}

// RecordKey returns the canonical key of an operational record.
func RecordKey(r model.OperationalRecord) model.Key {
	return NormalizeKey(r.ClientCode, r.OrderNumber)
}

// EntryKey returns the canonical key of a ledger entry.
func EntryKey(e model.AuditLedgerEntry) model.Key {
	return NormalizeKey(e.ClientCode, e.OrderNumber)
}

// NormalizeName uppercases, strips accents and collapses whitespace. It is
// used for closer names and status vocabulary, never for keys.
func NormalizeName(s string) string {
	n := strings.ToUpper(strings.TrimSpace(s))
	if folded, _, err := transform.String(foldAccents(), n); err == nil {
		n = folded
	}
	return multiSpace.ReplaceAllString(n, " ")
}

func foldAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
