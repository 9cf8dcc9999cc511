package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/trogers1052/earnings-opportunity-service/internal/config"
	"github.com/trogers1052/earnings-opportunity-service/internal/models"
)

// QuoteTTL is short so cached prices stay close to real time
const QuoteTTL = time.Minute

// Source is the market data surface that can be cached
type Source interface {
	GetEarningsEvent(ctx context.Context, ticker string) (*models.EarningsEvent, error)
	GetDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error)
	GetQuoteSnapshot(ctx context.Context, ticker string) (*models.QuoteSnapshot, error)
	GetIndexHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error)
	GetUpcomingEarnings(ctx context.Context, tickers []string, from, to time.Time) ([]models.EarningsEvent, error)
}

// NewRedisClient connects to Redis. It returns nil when caching is disabled.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return rdb, nil
}

// CachedGateway is a read-through JSON cache in front of a Source. A nil
// redis client turns every call into a pass-through.
type CachedGateway struct {
	next   Source
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewCachedGateway wraps next with a cache
func NewCachedGateway(next Source, rdb *redis.Client, prefix string, ttl time.Duration, log zerolog.Logger) *CachedGateway {
	if prefix == "" {
		prefix = "earnings"
	}
	return &CachedGateway{
		next:   next,
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		log:    log.With().Str("component", "marketdata_cache").Logger(),
	}
}

// Enabled returns whether the cache is backed by Redis
func (g *CachedGateway) Enabled() bool {
	return g.rdb != nil
}

func (g *CachedGateway) key(parts ...string) string {
	return fmt.Sprintf("%s:cache:%s", g.prefix, strings.Join(parts, ":"))
}

func (g *CachedGateway) get(ctx context.Context, key string, dest interface{}) bool {
	if g.rdb == nil {
		return false
	}
	data, err := g.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.log.Warn().Err(err).Str("key", key).Msg("Cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("Cache unmarshal failed")
		return false
	}
	return true
}

func (g *CachedGateway) set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if g.rdb == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("Cache marshal failed")
		return
	}
	if err := g.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		g.log.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// GetEarningsEvent caches the latest event per ticker and day, including
// the absence of one
func (g *CachedGateway) GetEarningsEvent(ctx context.Context, ticker string) (*models.EarningsEvent, error) {
	key := g.key("earnings", strings.ToUpper(ticker), time.Now().UTC().Format(dateLayout))
	var cached *models.EarningsEvent
	if g.get(ctx, key, &cached) {
		return cached, nil
	}

	event, err := g.next.GetEarningsEvent(ctx, ticker)
	if err != nil {
		return nil, err
	}
	g.set(ctx, key, event, g.ttl)
	return event, nil
}

// GetDailyHistory caches bars per ticker and range
func (g *CachedGateway) GetDailyHistory(ctx context.Context, ticker string, start, end time.Time) ([]models.PriceBar, error) {
	return g.history(ctx, "eod", ticker, start, end, g.next.GetDailyHistory)
}

// GetIndexHistory caches index bars per symbol and range
func (g *CachedGateway) GetIndexHistory(ctx context.Context, symbol string, start, end time.Time) ([]models.PriceBar, error) {
	return g.history(ctx, "index", symbol, start, end, g.next.GetIndexHistory)
}

func (g *CachedGateway) history(ctx context.Context, kind, symbol string, start, end time.Time,
	fetch func(context.Context, string, time.Time, time.Time) ([]models.PriceBar, error)) ([]models.PriceBar, error) {
	key := g.key(kind, strings.ToUpper(symbol), start.Format(dateLayout), end.Format(dateLayout))
	var cached []models.PriceBar
	if g.get(ctx, key, &cached) {
		return cached, nil
	}

	bars, err := fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, err
	}
	g.set(ctx, key, bars, g.ttl)
	return bars, nil
}

// GetQuoteSnapshot caches quotes briefly
func (g *CachedGateway) GetQuoteSnapshot(ctx context.Context, ticker string) (*models.QuoteSnapshot, error) {
	key := g.key("quote", strings.ToUpper(ticker))
	var cached models.QuoteSnapshot
	if g.get(ctx, key, &cached) {
		return &cached, nil
	}

	quote, err := g.next.GetQuoteSnapshot(ctx, ticker)
	if err != nil {
		return nil, err
	}
	ttl := QuoteTTL
	if g.ttl > 0 && g.ttl < ttl {
		ttl = g.ttl
	}
	g.set(ctx, key, quote, ttl)
	return quote, nil
}

// GetUpcomingEarnings is not cached; the ticker list varies per call
func (g *CachedGateway) GetUpcomingEarnings(ctx context.Context, tickers []string, from, to time.Time) ([]models.EarningsEvent, error) {
	return g.next.GetUpcomingEarnings(ctx, tickers, from, to)
}
