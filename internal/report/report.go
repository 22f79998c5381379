// Package report writes payout runs as CSV, XLSX or JSON and totals them per
// closer.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/pipeline"
	"github.com/sells-group/payout-recon/internal/recon"
)

// Formats lists the supported export formats.
var Formats = []string{"csv", "xlsx", "json"}

var lineColumns = []string{
	"account",
	"client_code",
	"order_number",
	"closer",
	"closed_at",
	"role",
	"region",
	"status",
	"payable",
	"decision_source",
	"reason",
	"raw_status",
	"winning_source",
	"mode",
	"rate_key",
	"volume",
	"unit_value",
	"amount_due",
	"duplicate_flag",
}

var reviewColumns = []string{"client_code", "order_number", "reason", "closer", "excluded"}

var summaryColumns = []string{"closer", "lines", "payable", "total_due"}

func lineRow(l model.PayoutLine) []string {
	closed := ""
	if l.Record.ClosedAt != nil {
		closed = l.Record.ClosedAt.Format(time.DateTime)
	}
	return []string{
		l.Record.Account,
		l.Key.Client,
		l.Key.Order,
		l.Record.CloserName,
		closed,
		l.Record.RoleHint,
		l.Record.Region,
		string(l.Decision.Status),
		strconv.FormatBool(l.Decision.Payable),
		string(l.Decision.Source),
		l.Decision.Reason,
		l.Decision.RawStatus,
		string(l.Decision.WinningSource),
		string(l.Mode),
		l.RateKey,
		strconv.Itoa(l.Volume),
		l.UnitValue.StringFixed(2),
		l.AmountDue.StringFixed(2),
		strconv.FormatBool(l.DuplicateFlag),
	}
}

func reviewRow(r model.ReviewItem) []string {
	return []string{r.Key.Client, r.Key.Order, string(r.Reason), r.Closer, strconv.FormatBool(r.Excluded)}
}

func summaryRow(c CloserTotal) []string {
	return []string{c.Closer, strconv.Itoa(c.Lines), strconv.Itoa(c.Payable), c.TotalDue.StringFixed(2)}
}

// CloserTotal is one closer's share of a run.
type CloserTotal struct {
	Closer   string          `json:"closer"`
	Lines    int             `json:"lines"`
	Payable  int             `json:"payable"`
	TotalDue decimal.Decimal `json:"total_due"`
}

// Summarize totals a run per closer, highest amount first.
func Summarize(res *pipeline.Result) []CloserTotal {
	byName := make(map[string]*CloserTotal)
	var order []string
	for _, l := range res.Lines {
		name := recon.NormalizeName(l.Record.CloserName)
		ct, ok := byName[name]
		if !ok {
			ct = &CloserTotal{Closer: name, TotalDue: decimal.Zero}
			byName[name] = ct
			order = append(order, name)
		}
		ct.Lines++
		if l.Decision.Payable {
			ct.Payable++
		}
		ct.TotalDue = ct.TotalDue.Add(l.AmountDue)
	}
	out := make([]CloserTotal, 0, len(order))
	for _, n := range order {
		out = append(out, *byName[n])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].TotalDue.Cmp(out[j].TotalDue); c != 0 {
			return c > 0
		}
		return out[i].Closer < out[j].Closer
	})
	return out
}

// WriteJSON writes the whole result with the per-closer summary.
func WriteJSON(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	payload := struct {
		*pipeline.Result
		Closers []CloserTotal `json:"closers"`
	}{res, Summarize(res)}
	if err := enc.Encode(payload); err != nil {
		return eris.Wrap(err, "report: encode json")
	}
	return nil
}

// WriteTable prints the per-closer summary as aligned text.
func WriteTable(w io.Writer, totals []CloserTotal) error {
	if _, err := fmt.Fprintf(w, "%-40s %6s %8s %12s\n", "Closer", "Lines", "Payable", "Total due"); err != nil {
		return eris.Wrap(err, "report: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 69)); err != nil {
		return eris.Wrap(err, "report: write table separator")
	}
	for _, c := range totals {
		name := c.Closer
		if len(name) > 40 {
			name = name[:37] + "..."
		}
		if _, err := fmt.Fprintf(w, "%-40s %6d %8d %12s\n", name, c.Lines, c.Payable, c.TotalDue.StringFixed(2)); err != nil {
			return eris.Wrap(err, "report: write table row")
		}
	}
	return nil
}

// Export writes res to path in format. CSV output also writes
// <name>_review.csv next to path.
func Export(path, format string, res *pipeline.Result) error {
	switch format {
	case "xlsx":
		return WriteXLSX(path, res)
	case "csv", "json":
	default:
		return eris.Errorf("report: unsupported format %q", format)
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", path)
	}
	defer f.Close() //nolint:errcheck

	if format == "json" {
		return WriteJSON(f, res)
	}
	if err := WriteCSV(f, res); err != nil {
		return err
	}

	rp := reviewPath(path)
	rf, err := os.Create(rp)
	if err != nil {
		return eris.Wrapf(err, "report: create %s", rp)
	}
	defer rf.Close() //nolint:errcheck
	return WriteReviewCSV(rf, res)
}

func reviewPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_review" + ext
}
