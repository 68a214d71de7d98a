package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"ticker_backend/models"
)

// MaxStocks is the largest number of symbols the ticker will track
const MaxStocks = 5

// Store drivers
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// RelayBot identifies a bot allowed to relay messages on behalf of other users.
// Empty fields match anything.
type RelayBot struct {
	Nick  string
	User  string
	VHost string
}

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	IEXToken   string
	IEXBaseURL string
	QuoteRPM   int

	Channels  []string
	Stocks    []models.Stock
	RelayBots []RelayBot

	StoreDriver string
	StoreDSN    string
	MongoURI    string
	MongoDB     string

	PhasePause       time.Duration
	SymbolPause      time.Duration
	PredictionMaxAge time.Duration
}

// ConfigError is returned when the configuration cannot be used to start the service
type ConfigError struct {
	Key    string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
}

// LoadConfig loads environment variables (and .env if present), configures the
// global logger from ENVIRONMENT and LOG_LEVEL, then validates the rest
func LoadConfig() (*Config, error) {
	envErr := godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		IEXToken:    os.Getenv("IEX_API_TOKEN"),
		IEXBaseURL:  getEnv("IEX_BASE_URL", "https://cloud.iexapis.com/stable"),
		StoreDriver: getEnv("STORE_DRIVER", StoreSQLite),
		StoreDSN:    getEnv("STORE_DSN", "data/ticker.db"),
		MongoURI:    os.Getenv("MONGODB_URI"),
		MongoDB:     getEnv("MONGODB_DATABASE", "ticker"),
	}

	InitLogger(cfg.Environment, cfg.LogLevel)
	if envErr != nil {
		log.Debug().Msg("No .env file found, using environment variables")
	}

	var err error
	if cfg.QuoteRPM, err = getEnvInt("QUOTE_RPM", 5); err != nil {
		return nil, err
	}
	if cfg.PhasePause, err = getEnvDuration("TICKER_PHASE_PAUSE", time.Minute); err != nil {
		return nil, err
	}
	if cfg.SymbolPause, err = getEnvDuration("TICKER_SYMBOL_PAUSE", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.PredictionMaxAge, err = getEnvDuration("PREDICTION_MAX_AGE", 0); err != nil {
		return nil, err
	}

	cfg.Channels = splitList(os.Getenv("TICKER_CHANNELS"))
	if cfg.Stocks, err = ParseStocks(os.Getenv("TICKER_STOCKS")); err != nil {
		return nil, err
	}
	if cfg.RelayBots, err = ParseRelayBots(os.Getenv("TICKER_RELAY_BOTS")); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings. Missing channels or stocks only disable the ticker.
func (c *Config) Validate() error {
	if len(c.Channels) == 0 {
		log.Warn().Msg("No channels for ticker defined in config -- ticker will be disabled")
	}
	if len(c.Stocks) == 0 {
		log.Warn().Msg("No stocks for ticker defined in config -- ticker will be disabled")
	}

	if c.IEXToken == "" {
		return &ConfigError{Key: "IEX_API_TOKEN", Reason: "missing required api token"}
	}
	if len(c.Stocks) > MaxStocks {
		return &ConfigError{
			Key:    "TICKER_STOCKS",
			Reason: fmt.Sprintf("no more than %d stocks may be configured, got %d", MaxStocks, len(c.Stocks)),
		}
	}
	if c.QuoteRPM <= 0 {
		return &ConfigError{Key: "QUOTE_RPM", Reason: "must be positive"}
	}

	switch c.StoreDriver {
	case StoreSQLite, StorePostgres:
		if c.StoreDSN == "" {
			return &ConfigError{Key: "STORE_DSN", Reason: "required for " + c.StoreDriver}
		}
	case StoreMongo:
		if c.MongoURI == "" {
			return &ConfigError{Key: "MONGODB_URI", Reason: "required for mongo store"}
		}
	default:
		return &ConfigError{Key: "STORE_DRIVER", Reason: fmt.Sprintf("unknown driver %q", c.StoreDriver)}
	}
	return nil
}

// TickerEnabled reports whether there is anything to broadcast and anywhere to send it
func (c *Config) TickerEnabled() bool {
	return len(c.Channels) > 0 && len(c.Stocks) > 0
}

// ParseStocks parses "AAPL:Apple,MSFT:Microsoft" preserving order.
// A symbol may appear only once.
func ParseStocks(raw string) ([]models.Stock, error) {
	var stocks []models.Stock
	seen := make(map[string]bool)

	for _, item := range splitList(raw) {
		symbol, name, found := strings.Cut(item, ":")
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		name = strings.TrimSpace(name)
		if symbol == "" {
			return nil, &ConfigError{Key: "TICKER_STOCKS", Reason: fmt.Sprintf("empty symbol in %q", item)}
		}
		if !found || name == "" {
			name = symbol
		}

		if seen[symbol] {
			return nil, &ConfigError{Key: "TICKER_STOCKS", Reason: fmt.Sprintf("duplicate symbol %s", symbol)}
		}
		seen[symbol] = true
		stocks = append(stocks, models.Stock{Symbol: symbol, Name: name})
	}
	return stocks, nil
}

// ParseRelayBots parses "nick!user@vhost" entries. "*" or an empty part is a wildcard.
func ParseRelayBots(raw string) ([]RelayBot, error) {
	var bots []RelayBot
	for _, item := range splitList(raw) {
		nick, rest, _ := strings.Cut(item, "!")
		user, vhost, _ := strings.Cut(rest, "@")

		bot := RelayBot{Nick: wildcard(nick), User: wildcard(user), VHost: wildcard(vhost)}
		if bot == (RelayBot{}) {
			return nil, &ConfigError{Key: "TICKER_RELAY_BOTS", Reason: fmt.Sprintf("%q matches every user", item)}
		}
		bots = append(bots, bot)
	}
	return bots, nil
}

func wildcard(s string) string {
	s = strings.TrimSpace(s)
	if s == "*" {
		return ""
	}
	return s
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("invalid integer %q", value)}
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return 0, &ConfigError{Key: key, Reason: fmt.Sprintf("invalid duration %q", value)}
	}
	return d, nil
}
