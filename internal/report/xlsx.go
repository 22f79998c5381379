package report

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/payout-recon/internal/pipeline"
)

// Sheet names in exported workbooks.
const (
	SheetPayouts = "Payouts"
	SheetReview  = "Review"
	SheetSummary = "Summary"
)

// WriteXLSX writes a workbook with payout, review and summary sheets.
func WriteXLSX(path string, res *pipeline.Result) error {
	f := xlsx.NewFile()

	lines := make([][]string, 0, len(res.Lines))
	for _, l := range res.Lines {
		lines = append(lines, lineRow(l))
	}
	review := make([][]string, 0, len(res.Review))
	for _, r := range res.Review {
		review = append(review, reviewRow(r))
	}
	var summary [][]string
	for _, c := range Summarize(res) {
		summary = append(summary, summaryRow(c))
	}

	for _, s := range []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{SheetPayouts, lineColumns, lines},
		{SheetReview, reviewColumns, review},
		{SheetSummary, summaryColumns, summary},
	} {
		if err := addSheet(f, s.name, s.header, s.rows); err != nil {
			return err
		}
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "report: save %s", path)
	}
	return nil
}

func addSheet(f *xlsx.File, name string, header []string, rows [][]string) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add sheet %s", name)
	}
	writeRow(sheet, header)
	for _, r := range rows {
		writeRow(sheet, r)
	}
	return nil
}

func writeRow(sheet *xlsx.Sheet, cells []string) {
	row := sheet.AddRow()
	for _, v := range cells {
		row.AddCell().SetString(v)
	}
}
