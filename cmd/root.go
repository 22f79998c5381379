package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/payout-recon/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "payout-recon",
	Short: "Reconcile closed work orders against audit ledgers and compute commissions",
	Long:  "Matches ticketing records to audit ledgers by client and order, classifies payment status, applies auditor overrides, and exports payout reports.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
