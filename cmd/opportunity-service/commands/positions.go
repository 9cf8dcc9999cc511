package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

var (
	positionsSnapshot   bool
	positionsRealized   bool
	positionsInstrument string
	positionsAccount    string
	positionsAll        bool
)

var positionsCmd = &cobra.Command{
	Use:   "positions [holder]",
	Short: "Value a holder's positions from their transactions",
	Long: `Replays the holder's transactions through FIFO lot matching and prints
the open positions with portfolio totals.

  --snapshot  also store the positions in position_snapshots
  --realized  print the realized lots instead
  --all       run for every holder with transactions`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPositions,
}

func init() {
	positionsCmd.Flags().BoolVar(&positionsSnapshot, "snapshot", false, "store positions in position_snapshots")
	positionsCmd.Flags().BoolVar(&positionsRealized, "realized", false, "print realized lots")
	positionsCmd.Flags().StringVar(&positionsInstrument, "instrument", "", "realized lots for one instrument")
	positionsCmd.Flags().StringVar(&positionsAccount, "account", "", "realized lots for one account class")
	positionsCmd.Flags().BoolVar(&positionsAll, "all", false, "every holder with transactions")
}

func runPositions(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return err
	}
	defer a.Close()

	holders := []string{cfg.Scanner.HolderID}
	switch {
	case positionsAll:
		holders, err = a.db.ListHolders(ctx)
		if err != nil {
			return err
		}
	case len(args) == 1:
		holders = args[:1]
	}

	if positionsRealized {
		if positionsAccount != "" && !models.ValidAccountClass(positionsAccount) {
			return fmt.Errorf("invalid account class: %s", positionsAccount)
		}
		filter := models.TransactionFilter{InstrumentID: positionsInstrument, AccountClass: positionsAccount}
		realized := make(map[string][]models.RealizedLot, len(holders))
		for _, h := range holders {
			lots, err := a.aggregator.RealizedLots(ctx, h, filter)
			if err != nil {
				return err
			}
			realized[h] = lots
		}
		return printJSON(cmd.OutOrStdout(), realized)
	}

	summaries := make([]*models.PortfolioSummary, 0, len(holders))
	for _, h := range holders {
		summary, err := a.aggregator.AggregatePositions(ctx, h)
		if err != nil {
			return err
		}
		if positionsSnapshot {
			if err := a.db.ReplacePositionSnapshots(ctx, h, summary.Positions); err != nil {
				return err
			}
			log.Info().Str("holder_id", h).Int("positions", len(summary.Positions)).Msg("Stored position snapshot")
		}
		summaries = append(summaries, summary)
	}
	return printJSON(cmd.OutOrStdout(), summaries)
}
