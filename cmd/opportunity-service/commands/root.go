// Package commands implements the opportunity-service command line.
package commands

import (
	"encoding/json"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/trogers1052/earnings-opportunity-service/internal/config"
	"github.com/trogers1052/earnings-opportunity-service/internal/logging"
)

var (
	// Global flags
	envFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "opportunity-service",
	Short: "Earnings-drop opportunity scanner and FIFO position service",
	Long: `Scans a ticker universe for stocks that beat EPS estimates but sold off
after the report, scores them, and values holders' positions from their
transaction history.

Examples:
  opportunity-service serve
  opportunity-service scan --mode upcoming --window 7
  opportunity-service positions default --snapshot
  opportunity-service migrate --seed-universe`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional .env file to load")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	rootCmd.AddCommand(serveCmd, scanCmd, positionsCmd, migrateCmd)
}

// loadConfig loads configuration and builds the root logger
func loadConfig() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, logging.New(cfg.Log), nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
