package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/metrics"
	"github.com/sells-group/payout-recon/internal/model"
	"github.com/sells-group/payout-recon/internal/override"
)

var overrideReason string

var overrideCmd = &cobra.Command{
	Use:   "override",
	Short: "Manage auditor overrides and confirmed exclusions",
	Long:  "Overrides and exclusions are kept in the configured store and applied by every later reconcile run.",
}

var overrideSetCmd = &cobra.Command{
	Use:   "set CLIENT ORDER STATUS",
	Short: "Record a manual payment decision",
	Long:  "STATUS is one of PENDING, APPROVED, APPROVED_WITH_NOTE, REJECTED, PARTIALLY_REJECTED. Rejections require --reason.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := model.Key{Client: args[0], Order: args[1]}
		status := model.PaymentStatus(strings.ToUpper(strings.TrimSpace(args[2])))
		return withSession(cmd.Context(), true, func(s *override.Store) error {
			if err := s.Set(key, status, overrideReason); err != nil {
				if override.IsValidation(err) {
					metrics.OverridesRejected.Inc()
				}
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "override %s -> %s\n", key, status)
			return nil
		})
	},
}

var overrideDeleteCmd = &cobra.Command{
	Use:   "delete CLIENT ORDER",
	Short: "Remove a manual payment decision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), true, func(s *override.Store) error {
			s.Delete(model.Key{Client: args[0], Order: args[1]})
			return nil
		})
	},
}

var overrideExcludeCmd = &cobra.Command{
	Use:   "exclude CLIENT ORDER",
	Short: "Confirm that a flagged order is dropped from payout",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), true, func(s *override.Store) error {
			return s.Exclude(model.Key{Client: args[0], Order: args[1]})
		})
	},
}

var overrideIncludeCmd = &cobra.Command{
	Use:   "include CLIENT ORDER",
	Short: "Reverse a confirmed exclusion",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), true, func(s *override.Store) error {
			s.Include(model.Key{Client: args[0], Order: args[1]})
			return nil
		})
	},
}

var overrideListCmd = &cobra.Command{
	Use:   "list",
	Short: "List overrides and exclusions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), false, func(s *override.Store) error {
			formatOverrides(cmd.OutOrStdout(), s.All(), s.Excluded())
			return nil
		})
	},
}

var overrideExportCmd = &cobra.Command{
	Use:   "export FILE",
	Short: "Write overrides and exclusions to a JSON file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), false, func(s *override.Store) error {
			if err := s.Export(cmd.Context(), override.NewFileRepository(args[0])); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d overrides, %d exclusions to %s\n",
				len(s.All()), len(s.Excluded()), args[0])
			return nil
		})
	},
}

var overrideImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge overrides and exclusions from a JSON file into the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd.Context(), true, func(s *override.Store) error {
			return s.Import(cmd.Context(), override.NewFileRepository(args[0]))
		})
	},
}

// withSession loads the persisted session, applies fn and, when save is set,
// writes the session back.
func withSession(ctx context.Context, save bool, fn func(*override.Store) error) error {
	st, err := initStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	s := override.New()
	if err := s.Import(ctx, st); err != nil {
		return err
	}
	if err := fn(s); err != nil {
		return err
	}
	if !save {
		return nil
	}
	if err := s.Export(ctx, st); err != nil {
		return err
	}
	zap.L().Info("overrides saved",
		zap.Int("overrides", len(s.All())),
		zap.Int("exclusions", len(s.Excluded())),
	)
	return nil
}

// formatOverrides writes overrides then exclusions as aligned tables.
func formatOverrides(out io.Writer, ovs []model.Override, excluded []model.Key) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CLIENT\tORDER\tSTATUS\tREASON\tSET")
	_, _ = fmt.Fprintln(w, "------\t-----\t------\t------\t---")
	for _, ov := range ovs {
		reason := ov.Reason
		if len(reason) > 40 {
			reason = reason[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			ov.Key.Client, ov.Key.Order, ov.Status, reason, ov.SetAt.Format("2006-01-02 15:04"))
	}
	_ = w.Flush()

	if len(excluded) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\nExcluded (%d):\n", len(excluded))
	for _, k := range excluded {
		_, _ = fmt.Fprintf(out, "  %s\n", k)
	}
}

func init() {
	overrideSetCmd.Flags().StringVar(&overrideReason, "reason", "", "reason for the decision (required for rejections)")

	overrideCmd.AddCommand(overrideSetCmd)
	overrideCmd.AddCommand(overrideDeleteCmd)
	overrideCmd.AddCommand(overrideExcludeCmd)
	overrideCmd.AddCommand(overrideIncludeCmd)
	overrideCmd.AddCommand(overrideListCmd)
	overrideCmd.AddCommand(overrideExportCmd)
	overrideCmd.AddCommand(overrideImportCmd)
	rootCmd.AddCommand(overrideCmd)
}
