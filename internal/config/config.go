package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Execution ExecutionConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Server    ServerConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
	Log       LogConfig
	Exchanges map[string]ExchangeConfig
}

// ArbitrageConfig defines the opportunity filters and sizing table.
type ArbitrageConfig struct {
	MinProfitPercent float64      `mapstructure:"min_profit_percent"`
	MaxProfitPercent float64      `mapstructure:"max_profit_percent"`
	MinPriceDiff     float64      `mapstructure:"min_price_diff"`
	MinNetProfit     float64      `mapstructure:"min_net_profit"`
	MaxPrice         float64      `mapstructure:"max_price"`
	MaxResults       int          `mapstructure:"max_results"`
	TradeAmountBands []AmountBand `mapstructure:"trade_amount_bands"`
}

// AmountBand maps prices below MaxPrice to a unit amount. A zero MaxPrice
// marks the open-ended last band.
type AmountBand struct {
	MaxPrice float64 `mapstructure:"max_price"`
	Amount   float64 `mapstructure:"amount"`
}

// ExecutionConfig defines the trade executor settings.
type ExecutionConfig struct {
	MinBalance         float64       `mapstructure:"min_balance"`
	MaxBalanceFraction float64       `mapstructure:"max_balance_fraction"`
	SettlementDelay    time.Duration `mapstructure:"settlement_delay"`
	LockTTL            time.Duration `mapstructure:"lock_ttl"`
}

// DatabaseConfig defines the database connection settings. An empty Host
// keeps trade history in memory.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"ssl_mode"`
}

// DSN builds a PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

// RedisConfig defines the redis settings used for cross-process venue locks.
// An empty Addr uses in-process locks.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port         int
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// SchedulerConfig defines the polling cadence.
type SchedulerConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	AutoTrade    bool          `mapstructure:"auto_trade"`
}

// NotifyConfig defines where operational alerts are delivered.
type NotifyConfig struct {
	TelegramToken  string `mapstructure:"telegram_token"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

// LogConfig defines the logger output.
type LogConfig struct {
	Level  string
	Format string
}

// ExchangeConfig defines settings for a specific exchange.
type ExchangeConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	TakerFeePercent float64       `mapstructure:"taker_fee_percent"`
	Timeout         time.Duration `mapstructure:"timeout"`
	APIKey          string        `mapstructure:"api_key"`
	SecretKey       string        `mapstructure:"secret_key"`
	Passphrase      string        `mapstructure:"passphrase"`
}

// FeeRate returns the taker fee as a fraction of notional.
func (e ExchangeConfig) FeeRate() decimal.Decimal {
	return decimal.NewFromFloat(e.TakerFeePercent).Div(decimal.NewFromInt(100))
}

// HasCredentials reports whether all three secrets are present.
func (e ExchangeConfig) HasCredentials() bool {
	return e.APIKey != "" && e.SecretKey != "" && e.Passphrase != ""
}

// SupportedExchanges lists the venues the bot can trade.
var SupportedExchanges = []string{"kucoin", "okx"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("arbitrage.min_profit_percent", 0.5)
	v.SetDefault("arbitrage.max_profit_percent", 50.0)
	v.SetDefault("arbitrage.min_price_diff", 0.0001)
	v.SetDefault("arbitrage.min_net_profit", 0.01)
	v.SetDefault("arbitrage.max_price", 10.0)
	v.SetDefault("arbitrage.max_results", 50)
	v.SetDefault("arbitrage.trade_amount_bands", []map[string]any{
		{"max_price": 0.1, "amount": 100.0},
		{"max_price": 0.5, "amount": 20.0},
		{"max_price": 1.0, "amount": 10.0},
		{"max_price": 2.5, "amount": 4.0},
		{"max_price": 5.0, "amount": 2.0},
		{"max_price": 10.0, "amount": 1.0},
		{"max_price": 0.0, "amount": 0.5},
	})

	v.SetDefault("execution.min_balance", 1.0)
	v.SetDefault("execution.max_balance_fraction", 0.9)
	v.SetDefault("execution.settlement_delay", "2s")
	v.SetDefault("execution.lock_ttl", "60s")

	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "spotarb")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "60s")

	v.SetDefault("scheduler.poll_interval", "5s")
	v.SetDefault("scheduler.auto_trade", false)

	v.SetDefault("notify.telegram_token", "")
	v.SetDefault("notify.telegram_chat_id", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("exchanges.okx.base_url", "https://www.okx.com")
	v.SetDefault("exchanges.kucoin.base_url", "https://api.kucoin.com")
	for _, name := range SupportedExchanges {
		v.SetDefault("exchanges."+name+".taker_fee_percent", 0.1)
		v.SetDefault("exchanges."+name+".timeout", "10s")
		v.SetDefault("exchanges."+name+".api_key", "")
		v.SetDefault("exchanges."+name+".secret_key", "")
		v.SetDefault("exchanges."+name+".passphrase", "")
	}
}

// LoadConfig reads configuration from file or environment variables.
// A missing config file is not an error; defaults and environment apply.
func LoadConfig(path string) (config Config, err error) {
	// .env is optional
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix("SPOTARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, fmt.Errorf("config: read: %w", err)
		}
		err = nil
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, fmt.Errorf("config: unmarshal: %w", err)
	}
	return config, nil
}

// Venues returns the configured exchange names in a stable order.
func (c Config) Venues() []string {
	names := make([]string, 0, len(c.Exchanges))
	for name := range c.Exchanges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FeeRates maps every configured venue to its taker fee rate.
func (c Config) FeeRates() map[string]decimal.Decimal {
	fees := make(map[string]decimal.Decimal, len(c.Exchanges))
	for name, ex := range c.Exchanges {
		fees[name] = ex.FeeRate()
	}
	return fees
}

// Validate checks thresholds, the sizing table and the venue set.
func (c Config) Validate() error {
	a := c.Arbitrage
	if a.MinProfitPercent <= 0 {
		return fmt.Errorf("config: min_profit_percent must be positive")
	}
	if a.MaxProfitPercent <= a.MinProfitPercent {
		return fmt.Errorf("config: max_profit_percent must exceed min_profit_percent")
	}
	if a.MinPriceDiff < 0 || a.MinNetProfit < 0 {
		return fmt.Errorf("config: min_price_diff and min_net_profit must not be negative")
	}
	if a.MaxResults <= 0 {
		return fmt.Errorf("config: max_results must be positive")
	}
	if err := ValidateBands(a.TradeAmountBands); err != nil {
		return err
	}

	e := c.Execution
	if e.MinBalance <= 0 {
		return fmt.Errorf("config: execution.min_balance must be positive")
	}
	if e.MaxBalanceFraction <= 0 || e.MaxBalanceFraction > 1 {
		return fmt.Errorf("config: execution.max_balance_fraction must be in (0, 1]")
	}
	if e.SettlementDelay < 0 {
		return fmt.Errorf("config: execution.settlement_delay must not be negative")
	}

	if len(c.Exchanges) != 2 {
		return fmt.Errorf("config: exactly two exchanges required, got %d", len(c.Exchanges))
	}
	for name, ex := range c.Exchanges {
		if !supported(name) {
			return fmt.Errorf("config: unknown exchange %q", name)
		}
		if ex.TakerFeePercent < 0 {
			return fmt.Errorf("config: exchange %s: taker_fee_percent must not be negative", name)
		}
		if ex.Timeout <= 0 || ex.Timeout > time.Minute {
			return fmt.Errorf("config: exchange %s: timeout must be in (0, 1m]", name)
		}
	}

	if c.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("config: scheduler.poll_interval must be positive")
	}
	return nil
}

// ValidateBands checks that the sizing table is ordered by price and never
// buys more units at a higher price.
func ValidateBands(bands []AmountBand) error {
	if len(bands) == 0 {
		return fmt.Errorf("config: trade_amount_bands must not be empty")
	}
	for i, b := range bands {
		if b.Amount <= 0 {
			return fmt.Errorf("config: trade_amount_bands[%d]: amount must be positive", i)
		}
		last := i == len(bands)-1
		if b.MaxPrice <= 0 && !last {
			return fmt.Errorf("config: trade_amount_bands[%d]: only the last band may be open-ended", i)
		}
		if i == 0 {
			continue
		}
		prev := bands[i-1]
		if b.MaxPrice > 0 && b.MaxPrice <= prev.MaxPrice {
			return fmt.Errorf("config: trade_amount_bands[%d]: max_price must increase", i)
		}
		if b.Amount > prev.Amount {
			return fmt.Errorf("config: trade_amount_bands[%d]: amount must not increase with price", i)
		}
	}
	return nil
}

func supported(name string) bool {
	for _, s := range SupportedExchanges {
		if s == name {
			return true
		}
	}
	return false
}
