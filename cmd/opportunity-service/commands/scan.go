package commands

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/trogers1052/earnings-opportunity-service/internal/opportunity"
)

var (
	scanMode     string
	scanWindow   int
	scanMinScore int
	scanHolder   string
	scanExpire   bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one opportunity scan and print the result",
	Long: `Modes:
  recent    detect, score and store opportunities from earnings in the last
            --window days
  upcoming  list earnings reports due in the next --window days`,
	RunE: runScan,
}

func init() {
	scanCmd.Flags().StringVar(&scanMode, "mode", opportunity.ModeRecent, "scan mode (recent|upcoming)")
	scanCmd.Flags().IntVar(&scanWindow, "window", 0, "window in days (default SCANNER_LOOKBACK_DAYS)")
	scanCmd.Flags().IntVar(&scanMinScore, "min-score", 0, "minimum score to store (default SCANNER_MIN_SCORE)")
	scanCmd.Flags().StringVar(&scanHolder, "holder", "", "holder id (default SCANNER_HOLDER_ID)")
	scanCmd.Flags().BoolVar(&scanExpire, "expire", false, "expire stale pending opportunities first")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if scanExpire {
		if _, err := a.scanner.ExpireStale(ctx); err != nil {
			return err
		}
	}

	result, err := a.scanner.Scan(ctx, opportunity.ScanRequest{
		HolderID:   scanHolder,
		Mode:       scanMode,
		WindowDays: scanWindow,
		MinScore:   scanMinScore,
	})
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), result)
}
