package commands

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/earnings-opportunity-service/internal/config"
	"github.com/trogers1052/earnings-opportunity-service/internal/database"
	"github.com/trogers1052/earnings-opportunity-service/internal/kafka"
	"github.com/trogers1052/earnings-opportunity-service/internal/marketdata"
	"github.com/trogers1052/earnings-opportunity-service/internal/opportunity"
	"github.com/trogers1052/earnings-opportunity-service/internal/portfolio"
)

// app wires the service components from configuration
type app struct {
	cfg        *config.Config
	log        zerolog.Logger
	db         *database.DB
	rdb        *redis.Client
	producer   *kafka.Producer
	gateway    *marketdata.CachedGateway
	scanner    *opportunity.Scanner
	aggregator *portfolio.Aggregator
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, withProducer bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.db = db
	log.Info().Str("host", cfg.Database.Host).Str("db", cfg.Database.DBName).Msg("Connected to database")

	rdb, err := marketdata.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		// The cache is optional; run without it
		log.Warn().Err(err).Msg("Redis unavailable, market data cache disabled")
	}
	a.rdb = rdb

	client := marketdata.NewClient(cfg.MarketData.APIKey,
		marketdata.WithBaseURL(cfg.MarketData.BaseURL),
		marketdata.WithTimeout(cfg.MarketData.Timeout),
		marketdata.WithRateLimit(cfg.MarketData.RateLimit),
		marketdata.WithLogger(log),
	)
	a.gateway = marketdata.NewCachedGateway(client, rdb, cfg.Redis.Prefix, cfg.Redis.TTL, log)

	var scannerOpts []opportunity.ScannerOption
	if withProducer && cfg.Kafka.Enabled {
		a.producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.OpportunityTopic)
		scannerOpts = append(scannerOpts, opportunity.WithPublisher(a.producer))
	}

	detector := opportunity.NewDetector(a.gateway, log,
		opportunity.WithMinDropPct(cfg.Scanner.MinDropPct),
		opportunity.WithBarRecorder(db),
	)

	var universe opportunity.UniverseSource = opportunity.StaticUniverse(cfg.Scanner.Universe)
	if cfg.Scanner.UniverseSource == config.UniverseSourceDB {
		universe = db
	}

	a.scanner = opportunity.NewScanner(opportunity.ScannerConfig{
		HolderID:      cfg.Scanner.HolderID,
		IndexSymbol:   cfg.Scanner.IndexSymbol,
		LookbackDays:  cfg.Scanner.LookbackDays,
		MinScore:      cfg.Scanner.MinScore,
		Concurrency:   cfg.Scanner.Concurrency,
		TickerTimeout: cfg.Scanner.TickerTimeout,
	}, a.gateway, detector, universe, db, log, scannerOpts...)

	prices := portfolio.FallbackPrices{
		portfolio.QuotePrices{Quotes: a.gateway},
		db,
	}
	a.aggregator = portfolio.NewAggregator(db, prices, log,
		portfolio.WithStrictOversell(cfg.Portfolio.StrictOversell))

	return a, nil
}

func (a *app) Close() {
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close Kafka producer")
		}
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}
