// Package ledger loads audit ledgers from spreadsheets into a reconciliation
// snapshot.
package ledger

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/recon"
)

// Columns maps ledger fields to spreadsheet column letters ("H", "AE").
// Status may be empty for presence ledgers.
type Columns struct {
	Client    string `yaml:"client"`
	Order     string `yaml:"order"`
	Status    string `yaml:"status"`
	StatusAlt string `yaml:"status_alt"`
	Role      string `yaml:"role"`
	Closer    string `yaml:"closer"`
}

// Schema declares where one ledger lives and how to read it.
type Schema struct {
	Source   model.SourceID `yaml:"source"`
	Priority int            `yaml:"priority"`
	Path     string         `yaml:"path"`
	Sheet    string         `yaml:"sheet"`
	// StartRow is the 1-based spreadsheet row of the first data row.
	StartRow int     `yaml:"start_row"`
	Columns  Columns `yaml:"columns"`
	// PresenceStatus is the raw status assigned to every listed key when the
	// ledger has no status column.
	PresenceStatus string `yaml:"presence_status"`
}

// Presence reports whether the ledger approves by listing keys.
func (s Schema) Presence() bool {
	return s.Columns.Status == ""
}

// File is the content of ledgers.yaml.
type File struct {
	Ledgers []Schema            `yaml:"ledgers"`
	Policy  recon.PriorityPolicy `yaml:"policy"`
}

// ColumnIndex converts a column letter to a 0-based index. Empty returns -1.
func ColumnIndex(col string) (int, error) {
	col = strings.ToUpper(strings.TrimSpace(col))
	if col == "" {
		return -1, nil
	}
	idx := 0
	for _, r := range col {
		if r < 'A' || r > 'Z' {
			return 0, eris.Errorf("ledger: invalid column %q", col)
		}
		idx = idx*26 + int(r-'A'+1)
	}
	return idx - 1, nil
}

// Validate checks a single schema.
func (s Schema) Validate() error {
	if s.Source == "" {
		return eris.New("ledger: schema without source")
	}
	if s.Path == "" {
		return eris.Errorf("ledger: %s: path is required", s.Source)
	}
	if s.Columns.Client == "" || s.Columns.Order == "" {
		return eris.Errorf("ledger: %s: client and order columns are required", s.Source)
	}
	for _, c := range []string{s.Columns.Client, s.Columns.Order, s.Columns.Status, s.Columns.StatusAlt, s.Columns.Role, s.Columns.Closer} {
		if _, err := ColumnIndex(c); err != nil {
			return eris.Wrapf(err, "ledger: %s", s.Source)
		}
	}
	if s.Presence() && s.PresenceStatus == "" {
		return eris.Errorf("ledger: %s: presence ledgers need presence_status", s.Source)
	}
	if s.Presence() && s.Columns.StatusAlt != "" {
		return eris.Errorf("ledger: %s: status_alt without status", s.Source)
	}
	return nil
}

// Validate checks every schema and the policy against them.
func (f *File) Validate() error {
	if len(f.Ledgers) == 0 {
		return eris.New("ledger: no ledgers configured")
	}
	seen := make(map[model.SourceID]bool, len(f.Ledgers))
	for _, s := range f.Ledgers {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Source] {
			return eris.Errorf("ledger: duplicate source %s", s.Source)
		}
		seen[s.Source] = true
	}
	for _, r := range f.Policy.NamedOperators {
		if !seen[r.Source] {
			return eris.Errorf("ledger: named operator %q refers to unknown source %s", r.Closer, r.Source)
		}
	}
	return nil
}

// LoadFile reads and validates ledgers.yaml. Relative ledger paths resolve
// against the file's directory.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "ledger: read config")
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "ledger: parse config")
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	dir := dirOf(path)
	for i := range f.Ledgers {
		f.Ledgers[i].Path = resolvePath(dir, f.Ledgers[i].Path)
	}
	return &f, nil
}
