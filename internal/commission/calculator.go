// Package commission computes the unit value owed for a payout line.
package commission

import (
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/recon"
)

var nonAlnum = regexp.MustCompile(`[^A-Z0-9]+`)

// Sanitize turns free text into a rate-table token: accents folded,
// uppercase, runs of other characters collapsed to a single underscore.
func Sanitize(s string) string {
	return strings.Trim(nonAlnum.ReplaceAllString(recon.NormalizeName(s), "_"), "_")
}

// Role groups used as the leading part of tier keys.
const (
	GroupComercialInterno   = "COMERCIAL_INTERNO"
	GroupComercialExterno   = "COMERCIAL_EXTERNO"
	GroupRecepcao           = "RECEPCAO"
	GroupProducaoInstalacao = "PRODUCAO_INSTALACAO"
	GroupProducaoSuporte    = "PRODUCAO_SUPORTE"
)

// RoleGroup maps a role hint onto the group used in tier keys.
func RoleGroup(role string) string {
	r := Sanitize(role)
	has := func(subs ...string) bool {
		for _, s := range subs {
			if strings.Contains(r, s) {
				return true
			}
		}
		return false
	}

	switch {
	case has("COMERCIAL", "COMMERCIAL") && has("INTERN"):
		return GroupComercialInterno
	case has("COMERCIAL", "COMMERCIAL") && has("EXTERN"):
		return GroupComercialExterno
	case has("RECEP"):
		return GroupRecepcao
	case has("INSTALA", "INSTALL"):
		return GroupProducaoInstalacao
	case has("SUPORTE", "SUPPORT"):
		return GroupProducaoSuporte
	}
	return r
}

func knownGroup(g string) bool {
	switch g {
	case GroupComercialInterno, GroupComercialExterno, GroupRecepcao, GroupProducaoInstalacao, GroupProducaoSuporte:
		return true
	}
	return false
}

// TierKey derives the role/region key, e.g. COMERCIAL_INTERNO_AM_MANAUS.
// region is used as given; see Calculator.TierKeyFor for alias resolution.
func TierKey(role, region string) string {
	g, reg := RoleGroup(role), Sanitize(region)
	if reg == "" {
		return g
	}
	return g + "_" + reg
}

// CanonicalKey rewrites the role part of a tier key through RoleGroup, so
// COMMERCIAL_INTERNO_AM_MANAUS and COMERCIAL_INTERNO_AM_MANAUS name the same
// table. The shortest leading run of tokens naming a known group is taken as
// the role. Keys without one are only sanitized.
func CanonicalKey(key string) string {
	k := Sanitize(key)
	parts := strings.Split(k, "_")
	for i := 1; i <= len(parts); i++ {
		g := RoleGroup(strings.Join(parts[:i], "_"))
		if !knownGroup(g) {
			continue
		}
		if rest := strings.Join(parts[i:], "_"); rest != "" {
			return g + "_" + rest
		}
		return g
	}
	return k
}

// RegionAlias maps a record's location onto the region token of tier keys.
// Empty fields match anything; Groups limits the alias to those role groups.
type RegionAlias struct {
	Groups  []string `yaml:"groups,omitempty"`
	Account string   `yaml:"account,omitempty"`
	State   string   `yaml:"state,omitempty"`
	City    string   `yaml:"city,omitempty"`
	Region  string   `yaml:"region"`
}

type regionAlias struct {
	groups  map[string]bool
	account string
	state   string
	city    string
	region  string
}

func (a regionAlias) matches(group, account, state, city string) bool {
	if len(a.groups) > 0 && !a.groups[group] {
		return false
	}
	return (a.account == "" || a.account == account) &&
		(a.state == "" || a.state == state) &&
		(a.city == "" || a.city == city)
}

// location splits a record's position into sanitized state and city. Region
// is "STATE CITY" as the ticketing API reports it.
func location(rec model.OperationalRecord) (state, city string) {
	region := Sanitize(rec.Region)
	state = Sanitize(rec.State)
	if state == "" {
		state, _, _ = strings.Cut(region, "_")
	}
	city = Sanitize(rec.City)
	if city != "" {
		return state, city
	}
	if rest, ok := strings.CutPrefix(region, state+"_"); ok {
		return state, rest
	}
	if region != state {
		return state, region
	}
	return state, ""
}

// Rate is the outcome of a rate lookup for one record.
type Rate struct {
	Mode      model.PayoutMode
	Key       string
	UnitValue decimal.Decimal
}

type closerRate struct {
	match string
	value decimal.Decimal
}

type roleRule struct {
	mode  model.PayoutMode
	value decimal.Decimal
}

// Calculator looks up unit values. It is immutable after New.
type Calculator struct {
	defaultMode model.PayoutMode
	roles       map[string]roleRule
	closers     []closerRate
	regions     map[string]decimal.Decimal
	aliases     []regionAlias
	tiers       map[string]model.CommissionTier
}

// New validates cfg and builds a Calculator.
func New(cfg Config) (*Calculator, error) {
	c := &Calculator{
		defaultMode: cfg.DefaultMode,
		roles:       make(map[string]roleRule, len(cfg.Roles)),
		regions:     make(map[string]decimal.Decimal, len(cfg.FlatByRegion)),
		tiers:       make(map[string]model.CommissionTier, len(cfg.Tiers)),
	}
	if c.defaultMode == "" {
		c.defaultMode = model.ModeTiered
	}
	if !validMode(c.defaultMode) {
		return nil, eris.Errorf("commission: unknown default mode %q", c.defaultMode)
	}

	for role, rule := range cfg.Roles {
		if !validMode(rule.Mode) {
			return nil, eris.Errorf("commission: role %q: unknown mode %q", role, rule.Mode)
		}
		c.roles[Sanitize(role)] = roleRule{mode: rule.Mode, value: decimal.NewFromFloat(rule.Value)}
	}
	for _, cr := range cfg.FlatByCloser {
		m := recon.NormalizeName(cr.Match)
		if m == "" {
			return nil, eris.New("commission: flat_by_closer entry with empty match")
		}
		c.closers = append(c.closers, closerRate{match: m, value: decimal.NewFromFloat(cr.Value)})
	}
	for region, v := range cfg.FlatByRegion {
		c.regions[Sanitize(region)] = decimal.NewFromFloat(v)
	}
	for i, ra := range cfg.RegionAliases {
		region := Sanitize(ra.Region)
		if region == "" {
			return nil, eris.Errorf("commission: region alias %d has no region", i)
		}
		a := regionAlias{
			account: Sanitize(ra.Account),
			state:   Sanitize(ra.State),
			city:    Sanitize(ra.City),
			region:  region,
		}
		for _, g := range ra.Groups {
			if a.groups == nil {
				a.groups = make(map[string]bool, len(ra.Groups))
			}
			a.groups[RoleGroup(g)] = true
		}
		c.aliases = append(c.aliases, a)
	}
	for key, ranges := range cfg.Tiers {
		tier, err := buildTier(key, ranges)
		if err != nil {
			return nil, err
		}
		if _, dup := c.tiers[tier.RoleRegionKey]; dup {
			return nil, eris.Errorf("commission: tier %s declared twice as %s", key, tier.RoleRegionKey)
		}
		c.tiers[tier.RoleRegionKey] = tier
	}
	return c, nil
}

func validMode(m model.PayoutMode) bool {
	switch m {
	case model.ModeFlatByCloser, model.ModeFlatByRegion, model.ModeFlat, model.ModeTiered:
		return true
	}
	return false
}

// buildTier enforces the table invariants: at least one range, contiguous,
// non-overlapping, non-decreasing unit values, and only the last range
// unbounded.
func buildTier(key string, ranges []RangeConfig) (model.CommissionTier, error) {
	tier := model.CommissionTier{RoleRegionKey: CanonicalKey(key)}
	if len(ranges) == 0 {
		return tier, eris.Errorf("commission: tier %s has no ranges", key)
	}
	for i, rc := range ranges {
		last := i == len(ranges)-1
		if rc.Min < 0 {
			return tier, eris.Errorf("commission: tier %s range %d: negative min", key, i)
		}
		if rc.Max == nil && !last {
			return tier, eris.Errorf("commission: tier %s range %d: only the last range may be unbounded", key, i)
		}
		if rc.Max != nil && last {
			return tier, eris.Errorf("commission: tier %s: last range must be unbounded", key)
		}
		if rc.Max != nil && *rc.Max < rc.Min {
			return tier, eris.Errorf("commission: tier %s range %d: max %d below min %d", key, i, *rc.Max, rc.Min)
		}
		if i > 0 {
			prev := ranges[i-1]
			if rc.Min != *prev.Max+1 {
				return tier, eris.Errorf("commission: tier %s range %d: min %d does not follow max %d", key, i, rc.Min, *prev.Max)
			}
			if rc.Value < prev.Value {
				return tier, eris.Errorf("commission: tier %s range %d: unit value decreases", key, i)
			}
		}
		var upper *int
		if rc.Max != nil {
			v := *rc.Max
			upper = &v
		}
		tier.Ranges = append(tier.Ranges, model.TierRange{
			Min:       rc.Min,
			Max:       upper,
			UnitValue: decimal.NewFromFloat(rc.Value),
		})
	}
	return tier, nil
}

// Mode returns the payout mode for a role hint.
func (c *Calculator) Mode(role string) model.PayoutMode {
	if r, ok := c.roles[Sanitize(role)]; ok {
		return r.mode
	}
	return c.defaultMode
}

// FlatByCloser returns the negotiated rate for closer, matching the table's
// entries as case-insensitive substrings in declaration order.
func (c *Calculator) FlatByCloser(closer string) (decimal.Decimal, bool) {
	name := recon.NormalizeName(closer)
	for _, cr := range c.closers {
		if strings.Contains(name, cr.match) {
			return cr.value, true
		}
	}
	return decimal.Zero, false
}

// FlatByRegion returns the per-state rate.
func (c *Calculator) FlatByRegion(state string) (decimal.Decimal, bool) {
	v, ok := c.regions[Sanitize(state)]
	return v, ok
}

// Lookup returns the unit value of the first range of key's tier containing
// count. Unknown keys and counts below the first range yield zero.
func (c *Calculator) Lookup(key string, count int) decimal.Decimal {
	tier, ok := c.tiers[CanonicalKey(key)]
	if !ok {
		return decimal.Zero
	}
	for _, r := range tier.Ranges {
		if r.Contains(count) {
			return r.UnitValue
		}
	}
	return decimal.Zero
}

// Tier returns the tier table for key.
func (c *Calculator) Tier(key string) (model.CommissionTier, bool) {
	t, ok := c.tiers[CanonicalKey(key)]
	return t, ok
}

// Tiers returns every tier table sorted by key.
func (c *Calculator) Tiers() []model.CommissionTier {
	out := make([]model.CommissionTier, 0, len(c.tiers))
	for _, t := range c.tiers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoleRegionKey < out[j].RoleRegionKey })
	return out
}

// Rate computes the unit value for rec. volume is the closer's payable count
// for the window and only matters in tiered mode. Payability is not
// considered here; see AmountDue.
func (c *Calculator) Rate(rec model.OperationalRecord, volume int) Rate {
	mode := c.Mode(rec.RoleHint)
	switch mode {
	case model.ModeFlatByCloser:
		v, _ := c.FlatByCloser(rec.CloserName)
		return Rate{Mode: mode, Key: recon.NormalizeName(rec.CloserName), UnitValue: v}
	case model.ModeFlatByRegion:
		state := rec.State
		if state == "" {
			state = rec.Region
		}
		v, _ := c.FlatByRegion(state)
		return Rate{Mode: mode, Key: Sanitize(state), UnitValue: v}
	case model.ModeFlat:
		return Rate{Mode: mode, Key: Sanitize(rec.RoleHint), UnitValue: c.roles[Sanitize(rec.RoleHint)].value}
	default:
		key := c.TierKeyFor(rec)
		return Rate{Mode: model.ModeTiered, Key: key, UnitValue: c.Lookup(key, volume)}
	}
}

// Region returns the region token of rec's tier key for role group group.
// The first matching alias wins; without one the sanitized Region is used.
func (c *Calculator) Region(group string, rec model.OperationalRecord) string {
	state, city := location(rec)
	account := Sanitize(rec.Account)
	for _, a := range c.aliases {
		if a.matches(group, account, state, city) {
			return a.region
		}
	}
	return Sanitize(rec.Region)
}

// TierKeyFor derives rec's tier key with region aliases applied.
func (c *Calculator) TierKeyFor(rec model.OperationalRecord) string {
	g := RoleGroup(rec.RoleHint)
	reg := c.Region(g, rec)
	if reg == "" {
		return g
	}
	return g + "_" + reg
}

// AmountDue gates a unit value on payability.
func AmountDue(unit decimal.Decimal, payable bool) decimal.Decimal {
	if !payable {
		return decimal.Zero
	}
	return unit
}
