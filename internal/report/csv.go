package report

import (
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/payout-recon/internal/pipeline"
)

func writeCSV(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return eris.Wrap(err, "report: write CSV header")
	}
	for _, r := range rows {
		if err := cw.Write(r); err != nil {
			return eris.Wrap(err, "report: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush CSV")
}

// WriteCSV writes one row per payout line.
func WriteCSV(w io.Writer, res *pipeline.Result) error {
	rows := make([][]string, 0, len(res.Lines))
	for _, l := range res.Lines {
		rows = append(rows, lineRow(l))
	}
	return writeCSV(w, lineColumns, rows)
}

// WriteReviewCSV writes the manual-review list.
func WriteReviewCSV(w io.Writer, res *pipeline.Result) error {
	rows := make([][]string, 0, len(res.Review))
	for _, r := range res.Review {
		rows = append(rows, reviewRow(r))
	}
	return writeCSV(w, reviewColumns, rows)
}
