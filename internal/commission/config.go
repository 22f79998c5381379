package commission

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/payout-recon/internal/model"
)

//go:embed default_rates.yaml
var defaultRatesYAML []byte

// Config is the on-disk shape of the payout rate table.
type Config struct {
	DefaultMode  model.PayoutMode         `yaml:"default_mode"`
	Roles        map[string]RoleRule      `yaml:"roles"`
	FlatByCloser []CloserRate             `yaml:"flat_by_closer"`
	FlatByRegion map[string]float64       `yaml:"flat_by_region"`
	Tiers        map[string][]RangeConfig `yaml:"tiers"`

	RegionAliases []RegionAlias `yaml:"region_aliases"`
}

// RoleRule selects the payout mode for a role hint. Value is used by the
// flat mode only.
type RoleRule struct {
	Mode  model.PayoutMode `yaml:"mode"`
	Value float64          `yaml:"value"`
}

// CloserRate is a negotiated flat rate for closers whose name contains Match.
type CloserRate struct {
	Match string  `yaml:"match"`
	Value float64 `yaml:"value"`
}

// RangeConfig is one tier bracket. A missing max is unbounded.
type RangeConfig struct {
	Min   int     `yaml:"min"`
	Max   *int    `yaml:"max,omitempty"`
	Value float64 `yaml:"value"`
}

// DefaultConfig returns the rate table embedded in the binary.
func DefaultConfig() (*Config, error) {
	return parseConfig(defaultRatesYAML)
}

// LoadConfig reads a rate table from path. An empty path yields the
// embedded default.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "commission: read rates %s", path)
	}
	return parseConfig(data)
}

func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, eris.Wrap(err, "commission: parse rates")
	}
	if cfg.DefaultMode == "" {
		cfg.DefaultMode = model.ModeTiered
	}
	return &cfg, nil
}
