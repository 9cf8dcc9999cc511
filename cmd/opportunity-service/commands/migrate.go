package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/trogers1052/earnings-opportunity-service/internal/database"
)

var seedUniverse bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Long: `Applies the migrations in DB_MIGRATIONS_PATH. With --seed-universe the
configured SCANNER_UNIVERSE is inserted into the scan_universe table.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().BoolVar(&seedUniverse, "seed-universe", false, "seed scan_universe from SCANNER_UNIVERSE")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(cfg.Database.MigrationsPath); err != nil {
		return err
	}
	version, dirty, err := db.MigrationVersion(cfg.Database.MigrationsPath)
	if err != nil {
		return err
	}
	log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Migrations applied")

	if seedUniverse {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		added, err := db.SeedUniverse(ctx, cfg.Scanner.Universe)
		if err != nil {
			return err
		}
		log.Info().Int("added", added).Int("configured", len(cfg.Scanner.Universe)).Msg("Seeded scan universe")
	}
	return nil
}
