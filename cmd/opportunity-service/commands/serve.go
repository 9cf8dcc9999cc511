package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/trogers1052/earnings-opportunity-service/internal/api"
	"github.com/trogers1052/earnings-opportunity-service/internal/kafka"
	"github.com/trogers1052/earnings-opportunity-service/internal/scheduler"
)

var noScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduled jobs and transaction consumer",
	Long: `Runs until SIGINT or SIGTERM:
- HTTP API on SERVER_HOST:SERVER_PORT
- scheduled scan (SCANNER_SCHEDULE), opportunity expiry and price history
  pruning (SCANNER_EXPIRY_SCHEDULE), read in SCANNER_TIMEZONE
- Kafka consumer for TRANSACTION_RECORDED events when KAFKA_ENABLED`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "do not run scheduled jobs")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		log.Error().Err(err).Msg("Failed to start")
		return err
	}
	defer a.Close()

	if err := a.db.Migrate(cfg.Database.MigrationsPath); err != nil {
		log.Error().Err(err).Msg("Failed to run migrations")
		return err
	}

	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TransactionsTopic, cfg.Kafka.GroupID,
			a.db, log, kafka.WithStatusPublisher(a.producer))
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("Kafka consumer stopped")
			}
		}()
	}

	if !noScheduler {
		loc, err := cfg.Scanner.Location()
		if err != nil {
			return err
		}
		sched := scheduler.New(log, scheduler.WithLocation(loc))
		jobs := []scheduler.Job{
			scheduler.NewScanJob(a.scanner, cfg.Scanner.Schedule, log),
			scheduler.NewExpiryJob(a.scanner, cfg.Scanner.ExpirySchedule),
			scheduler.NewPruneJob(a.db, cfg.Scanner.ExpirySchedule, cfg.Scanner.RetentionDays, log),
		}
		for _, job := range jobs {
			if err := sched.AddJob(job); err != nil {
				return err
			}
		}
		sched.Start()
		defer sched.Stop()
	}

	handler := api.NewHandler(a.aggregator, a.scanner, a.db, a.db, log)
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.SetupRoutes(handler),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
