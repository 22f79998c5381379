package ledger

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Reader returns the data rows of one ledger, starting at the schema's
// StartRow.
type Reader interface {
	ReadLedger(ctx context.Context, s Schema) ([][]string, error)
}

// FileReader reads ledgers from local XLSX or CSV files.
type FileReader struct{}

// ReadLedger dispatches on the file extension.
func (FileReader) ReadLedger(ctx context.Context, s Schema) ([][]string, error) {
	skip := s.StartRow - 1
	if skip < 0 {
		skip = 0
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".xlsx", ".xlsm":
		return readXLSX(ctx, s.Path, s.Sheet, skip)
	case ".csv":
		return readCSV(ctx, s.Path, skip)
	default:
		return nil, eris.Errorf("ledger: unsupported file type %q", s.Path)
	}
}

func readXLSX(ctx context.Context, path, sheetName string, skip int) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open xlsx")
	}
	sheet, err := pickSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	rows := make([][]string, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		if i < skip {
			continue
		}
		if i%1024 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ledger: read xlsx")
		}
		cells := make([]string, len(row.Cells))
		for j, c := range row.Cells {
			cells[j] = c.String()
		}
		rows = append(rows, cells)
	}
	return rows, nil
}

func pickSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		s, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("ledger: sheet %q not found", name)
		}
		return s, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("ledger: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func readCSV(ctx context.Context, path string, skip int) ([][]string, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: open csv")
	}
	defer fh.Close() //nolint:errcheck

	r := csv.NewReader(fh)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for i := 0; ; i++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ledger: read csv")
		}
		rec, err := r.Read()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return nil, eris.Wrap(err, "ledger: read csv row")
		}
		if i < skip {
			continue
		}
		rows = append(rows, rec)
	}
}

func dirOf(path string) string { return filepath.Dir(path) }

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
