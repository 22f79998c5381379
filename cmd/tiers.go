package main

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/sells-group/payout-recon/internal/commission"
	"github.com/sells-group/payout-recon/internal/model"
)

var (
	tiersRates   string
	tiersKey     string
	tiersAccount string
)

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Inspect the commission rate table",
}

var tiersShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print payout modes and tier tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		rc, calc, err := loadRates()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if tiersKey != "" {
			tier, ok := calc.Tier(commission.Sanitize(tiersKey))
			if !ok {
				return eris.Errorf("no tier table for %q", tiersKey)
			}
			formatTiers(out, []model.CommissionTier{tier})
			return nil
		}
		formatModes(out, rc)
		_, _ = fmt.Fprintln(out)
		formatTiers(out, calc.Tiers())
		return nil
	},
}

var tiersValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check that the rate table parses and every tier is well formed",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, calc, err := loadRates()
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d tier tables\n", len(calc.Tiers()))
		return nil
	},
}

var tiersLookupCmd = &cobra.Command{
	Use:   "lookup ROLE REGION COUNT",
	Short: "Show the tiered unit value for a role, region and monthly volume",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		count, err := strconv.Atoi(args[2])
		if err != nil {
			return eris.Wrapf(err, "parse count %q", args[2])
		}
		_, calc, err := loadRates()
		if err != nil {
			return err
		}
		key, unit := lookupTier(calc, tiersAccount, args[0], args[1], count)
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %d -> %s\n", key, count, unit.StringFixed(2))
		return nil
	},
}

// lookupTier resolves role and region the way a fetched record would be,
// region aliases included.
func lookupTier(calc *commission.Calculator, account, role, region string, count int) (string, decimal.Decimal) {
	key := calc.TierKeyFor(model.OperationalRecord{Account: account, RoleHint: role, Region: region})
	return key, calc.Lookup(key, count)
}

func loadRates() (*commission.Config, *commission.Calculator, error) {
	path := tiersRates
	if path == "" {
		path = cfg.Commission.Rates
	}
	rc, err := commission.LoadConfig(path)
	if err != nil {
		return nil, nil, err
	}
	calc, err := commission.New(*rc)
	if err != nil {
		return nil, nil, err
	}
	return rc, calc, nil
}

// formatModes writes the role modes and flat rates.
func formatModes(out io.Writer, rc *commission.Config) {
	_, _ = fmt.Fprintf(out, "Default mode: %s\n\n", rc.DefaultMode)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROLE\tMODE\tVALUE")
	roles := make([]string, 0, len(rc.Roles))
	for r := range rc.Roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	for _, r := range roles {
		rule := rc.Roles[r]
		value := ""
		if rule.Mode == model.ModeFlat {
			value = strconv.FormatFloat(rule.Value, 'f', 2, 64)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", r, rule.Mode, value)
	}
	_ = w.Flush()

	if len(rc.FlatByCloser) > 0 {
		_, _ = fmt.Fprintln(out, "\nFlat by closer:")
		for _, c := range rc.FlatByCloser {
			_, _ = fmt.Fprintf(out, "  %-30s %8.2f\n", c.Match, c.Value)
		}
	}
	if len(rc.FlatByRegion) > 0 {
		_, _ = fmt.Fprintln(out, "\nFlat by region:")
		states := make([]string, 0, len(rc.FlatByRegion))
		for s := range rc.FlatByRegion {
			states = append(states, s)
		}
		sort.Strings(states)
		for _, s := range states {
			_, _ = fmt.Fprintf(out, "  %-30s %8.2f\n", s, rc.FlatByRegion[s])
		}
	}
	if len(rc.RegionAliases) > 0 {
		_, _ = fmt.Fprintln(out, "\nRegion aliases:")
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "  GROUPS\tACCOUNT\tSTATE\tCITY\tREGION")
		for _, a := range rc.RegionAliases {
			_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%s\n",
				orAny(strings.Join(a.Groups, ",")), orAny(a.Account), orAny(a.State), orAny(a.City), a.Region)
		}
		_ = w.Flush()
	}
}

func orAny(s string) string {
	if s == "" {
		return "*"
	}
	return s
}

// formatTiers writes one block per tier table.
func formatTiers(out io.Writer, tiers []model.CommissionTier) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tMIN\tMAX\tUNIT")
	_, _ = fmt.Fprintln(w, "---\t---\t---\t----")
	for _, t := range tiers {
		for i, r := range t.Ranges {
			key := ""
			if i == 0 {
				key = t.RoleRegionKey
			}
			hi := "-"
			if r.Max != nil {
				hi = strconv.Itoa(*r.Max)
			}
			_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", key, r.Min, hi, r.UnitValue.StringFixed(2))
		}
	}
	_ = w.Flush()
}

func init() {
	tiersCmd.PersistentFlags().StringVar(&tiersRates, "rates", "", "commission rate table (default commission.rates or embedded)")
	tiersLookupCmd.Flags().StringVar(&tiersAccount, "account", "", "provider account, for accounts with their own tiers (e.g. mania)")
	tiersShowCmd.Flags().StringVar(&tiersKey, "key", "", "show one tier table, e.g. COMERCIAL_INTERNO_AM_MANAUS")

	tiersCmd.AddCommand(tiersShowCmd)
	tiersCmd.AddCommand(tiersValidateCmd)
	tiersCmd.AddCommand(tiersLookupCmd)
	rootCmd.AddCommand(tiersCmd)
}
