package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Kafka      KafkaConfig
	Redis      RedisConfig
	MarketData MarketDataConfig
	Scanner    ScannerConfig
	Portfolio  PortfolioConfig
	Log        LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	DBName         string
	SSLMode        string
	MigrationsPath string
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled           bool
	Brokers           []string
	OpportunityTopic  string
	TransactionsTopic string
	GroupID           string
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// MarketDataConfig holds the market data provider configuration
type MarketDataConfig struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	RateLimit int
}

// Universe sources
const (
	UniverseSourceConfig = "config"
	UniverseSourceDB     = "db"
)

// ScannerConfig holds the opportunity scanner configuration
type ScannerConfig struct {
	Universe       []string
	UniverseSource string
	IndexSymbol    string
	HolderID       string
	LookbackDays   int
	MinDropPct     float64
	MinScore       int
	Concurrency    int
	TickerTimeout  time.Duration
	Schedule       string
	ExpirySchedule string
	Timezone       string
	RetentionDays  int
}

// PortfolioConfig holds position aggregation configuration
type PortfolioConfig struct {
	StrictOversell bool
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// DefaultUniverse is the ticker list scanned when SCANNER_UNIVERSE is unset.
var DefaultUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "META", "NVDA", "TSLA", "AMD", "INTC", "CRM",
	"ORCL", "ADBE", "NFLX", "AVGO", "QCOM", "TXN", "MU", "AMAT", "LRCX", "KLAC",
	"NOW", "SNOW", "PLTR", "SHOP", "UBER", "ABNB", "PYPL", "SQ", "COIN", "PANW",
	"CRWD", "ZS", "DDOG", "NET", "MDB", "TEAM", "WDAY", "INTU", "IBM", "CSCO",
	"DIS", "CMCSA", "T", "VZ", "TMUS", "CHTR", "EA", "TTWO", "RBLX", "SPOT",
	"JNJ", "UNH", "PFE", "MRK", "ABBV", "LLY", "TMO", "ABT", "DHR", "BMY",
	"AMGN", "GILD", "ISRG", "VRTX", "REGN", "MRNA", "CVS", "HUM", "CI", "ELV",
	"JPM", "BAC", "WFC", "GS", "MS", "C", "SCHW", "BLK", "AXP", "V",
	"MA", "COF", "USB", "PNC", "TFC", "WMT", "COST", "HD", "LOW", "TGT",
	"NKE", "SBUX", "MCD", "CMG", "LULU", "PG", "KO", "PEP", "EL", "DG",
	"DLTR", "BBY", "ETSY", "EBAY", "BKNG", "MAR", "XOM", "CVX", "CAT", "BA",
}

// Load reads configuration from environment variables, after loading an
// optional .env file.
func Load(envFile string) (*Config, error) {
	loadEnvFile(envFile)

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			DBName:         getEnv("DB_NAME", "opportunities"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS_PATH", "db/migrations"),
		},
		Kafka: KafkaConfig{
			Enabled:           getEnvAsBool("KAFKA_ENABLED", true),
			Brokers:           getEnvAsList("KAFKA_BROKERS", []string{"localhost:9092"}),
			OpportunityTopic:  getEnv("KAFKA_OPPORTUNITY_TOPIC", "opportunity-events"),
			TransactionsTopic: getEnv("KAFKA_TRANSACTIONS_TOPIC", "transaction-events"),
			GroupID:           getEnv("KAFKA_GROUP_ID", "earnings-opportunity-service"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Prefix:   getEnv("REDIS_PREFIX", "eos"),
			TTL:      getEnvAsDuration("REDIS_TTL", "15m"),
		},
		MarketData: MarketDataConfig{
			BaseURL:   getEnv("MARKET_DATA_BASE_URL", "https://eodhd.com/api"),
			APIKey:    getEnv("MARKET_DATA_API_KEY", ""),
			Timeout:   getEnvAsDuration("MARKET_DATA_TIMEOUT", "10s"),
			RateLimit: getEnvAsInt("MARKET_DATA_RATE_LIMIT", 10),
		},
		Scanner: ScannerConfig{
			Universe:       getEnvAsList("SCANNER_UNIVERSE", DefaultUniverse),
			UniverseSource: getEnv("SCANNER_UNIVERSE_SOURCE", UniverseSourceConfig),
			IndexSymbol:    getEnv("SCANNER_INDEX_SYMBOL", "GSPC.INDX"),
			HolderID:       getEnv("SCANNER_HOLDER_ID", "default"),
			LookbackDays:   getEnvAsInt("SCANNER_LOOKBACK_DAYS", 5),
			MinDropPct:     getEnvAsFloat("SCANNER_MIN_DROP_PCT", 10.0),
			MinScore:       getEnvAsInt("SCANNER_MIN_SCORE", 0),
			Concurrency:    getEnvAsInt("SCANNER_CONCURRENCY", 8),
			TickerTimeout:  getEnvAsDuration("SCANNER_TICKER_TIMEOUT", "15s"),
			Schedule:       getEnv("SCANNER_SCHEDULE", "0 30 16 * * MON-FRI"),
			ExpirySchedule: getEnv("SCANNER_EXPIRY_SCHEDULE", "0 0 6 * * *"),
			Timezone:       getEnv("SCANNER_TIMEZONE", "America/New_York"),
			RetentionDays:  getEnvAsInt("PRICE_HISTORY_RETENTION_DAYS", 400),
		},
		Portfolio: PortfolioConfig{
			StrictOversell: getEnvAsBool("PORTFOLIO_STRICT_OVERSELL", false),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks that configuration values are usable
func (c *Config) Validate() error {
	if c.Scanner.UniverseSource != UniverseSourceConfig && c.Scanner.UniverseSource != UniverseSourceDB {
		return fmt.Errorf("SCANNER_UNIVERSE_SOURCE must be one of: %s, %s", UniverseSourceConfig, UniverseSourceDB)
	}
	if c.Scanner.UniverseSource == UniverseSourceConfig && len(c.Scanner.Universe) == 0 {
		return fmt.Errorf("SCANNER_UNIVERSE must list at least one ticker")
	}
	if c.Scanner.Concurrency < 1 {
		return fmt.Errorf("SCANNER_CONCURRENCY must be at least 1")
	}
	if c.Scanner.LookbackDays < 0 {
		return fmt.Errorf("SCANNER_LOOKBACK_DAYS must not be negative")
	}
	if c.Scanner.MinScore < 0 || c.Scanner.MinScore > 100 {
		return fmt.Errorf("SCANNER_MIN_SCORE must be between 0 and 100")
	}
	if _, err := c.Scanner.Location(); err != nil {
		return fmt.Errorf("SCANNER_TIMEZONE is not a known time zone: %w", err)
	}
	if c.MarketData.RateLimit < 1 {
		return fmt.Errorf("MARKET_DATA_RATE_LIMIT must be at least 1")
	}
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Location returns the zone the job schedules are read in
func (s *ScannerConfig) Location() (*time.Location, error) {
	return time.LoadLocation(s.Timezone)
}

// Addr returns the HTTP listen address
func (s *ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

func loadEnvFile(path string) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err == nil {
		_ = godotenv.Load(path)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		duration, _ = time.ParseDuration(defaultValue)
	}
	return duration
}

// getEnvAsList splits a comma separated value and drops blank entries
func getEnvAsList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
