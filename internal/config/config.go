package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"hotpool/internal/logging"
)

// ErrMissingTelegramCredentials is returned when delivery is requested without a usable bot token or chat id.
var ErrMissingTelegramCredentials = errors.New("telegram bot token and chat id must be configured")

// Placeholder values shipped in the sample .env.
const (
	placeholderBotToken = "your_bot_token_here"
	placeholderChatID   = "your_chat_group_id_here"
)

// Config materialises application configuration.
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	Logging     logging.Config    `mapstructure:"logging"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Meteora     MeteoraConfig     `mapstructure:"meteora"`
	DexScreener DexScreenerConfig `mapstructure:"dexscreener"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Alerting    AlertingConfig    `mapstructure:"alerting"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig selects the optional alert audit store. An empty DSN disables it.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	Retention       time.Duration `mapstructure:"retention"`
}

// SchedulerConfig governs polling cadence.
type SchedulerConfig struct {
	Interval time.Duration `mapstructure:"interval"`

	// IntervalMinutes mirrors CHECK_INTERVAL_MINUTES and wins over Interval when set.
	IntervalMinutes float64       `mapstructure:"interval_minutes"`
	RunImmediately  bool          `mapstructure:"run_immediately"`
	AlignToBucket   bool          `mapstructure:"align_to_bucket"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
	StartupDelay    time.Duration `mapstructure:"startup_delay"`
}

// MeteoraConfig points at the DLMM pool listing.
type MeteoraConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// DexScreenerConfig points at the token market data API.
type DexScreenerConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ChainID        string        `mapstructure:"chain_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	UserAgent      string        `mapstructure:"user_agent"`
}

// RulesConfig holds the tunable evaluation thresholds.
type RulesConfig struct {
	MinTVLUSD          float64 `mapstructure:"min_tvl_usd"`
	FeeTVLThresholdPct float64 `mapstructure:"fee_tvl_threshold_pct"`

	// FeeThresholdUSD is accepted and reported but no rule reads it.
	FeeThresholdUSD float64 `mapstructure:"fee_threshold_usd"`
	LedgerCapacity  int     `mapstructure:"ledger_capacity"`
}

// AlertingConfig defines delivery behaviour.
type AlertingConfig struct {
	Enabled      bool           `mapstructure:"enabled"`
	SendInterval time.Duration  `mapstructure:"send_interval"`
	Telegram     TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig describes the Telegram bot.
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BotToken       string        `mapstructure:"bot_token"`
	ChatID         string        `mapstructure:"chat_id"`
	APIBase        string        `mapstructure:"api_base"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Commands       bool          `mapstructure:"commands"`
	PollTimeout    time.Duration `mapstructure:"poll_timeout"`
}

// MetricsConfig enables the Prometheus listener when ListenAddr is set.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// legacyEnv maps config keys to the variable names the original bot read from .env.
var legacyEnv = map[string]string{
	"alerting.telegram.bot_token": "TELEGRAM_BOT_TOKEN",
	"alerting.telegram.chat_id":   "TELEGRAM_CHAT_ID",
	"scheduler.interval_minutes":  "CHECK_INTERVAL_MINUTES",
	"rules.fee_tvl_threshold_pct": "FEE_TVL_THRESHOLD_PERCENT",
	"rules.fee_threshold_usd":     "FEE_THRESHOLD_USD",
	"rules.min_tvl_usd":           "MIN_TVL_THRESHOLD_USD",
}

// Load builds configuration from .env, file, environment, and defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("HOTPOOL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "HOTPOOL_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", legacy, err)
		}
	}

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyLegacy()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "hotpool")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.retention", "720h")

	v.SetDefault("scheduler.interval", "1m")
	v.SetDefault("scheduler.interval_minutes", 0)
	v.SetDefault("scheduler.run_immediately", true)
	v.SetDefault("scheduler.align_to_bucket", false)
	v.SetDefault("scheduler.advisory_lock_key", int64(0x686f7470))
	v.SetDefault("scheduler.startup_delay", "0s")

	v.SetDefault("meteora.base_url", "https://dlmm-api.meteora.ag")
	v.SetDefault("meteora.request_timeout", "60s")
	v.SetDefault("meteora.user_agent", "hotpool/1.0")

	v.SetDefault("dexscreener.base_url", "https://api.dexscreener.com")
	v.SetDefault("dexscreener.chain_id", "solana")
	v.SetDefault("dexscreener.request_timeout", "10s")
	v.SetDefault("dexscreener.user_agent", "hotpool/1.0")

	v.SetDefault("rules.min_tvl_usd", 5000.0)
	v.SetDefault("rules.fee_tvl_threshold_pct", 5.0)
	v.SetDefault("rules.fee_threshold_usd", 2000.0)
	v.SetDefault("rules.ledger_capacity", 10000)

	v.SetDefault("alerting.enabled", true)
	v.SetDefault("alerting.send_interval", "4s")
	v.SetDefault("alerting.telegram.enabled", true)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.request_timeout", "10s")
	v.SetDefault("alerting.telegram.commands", true)
	v.SetDefault("alerting.telegram.poll_timeout", "30s")

	v.SetDefault("metrics.listen_addr", "")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func (c *Config) applyLegacy() {
	if c.Scheduler.IntervalMinutes > 0 {
		c.Scheduler.Interval = time.Duration(c.Scheduler.IntervalMinutes * float64(time.Minute))
	}
	c.Alerting.Telegram.BotToken = strings.TrimSpace(c.Alerting.Telegram.BotToken)
	c.Alerting.Telegram.ChatID = strings.TrimSpace(c.Alerting.Telegram.ChatID)
}

// Validate performs basic sanity checks on the configuration values.
// Telegram credentials are checked separately by RequireTelegram.
func (c *Config) Validate() error {
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("scheduler.interval must be greater than zero")
	}
	if c.Rules.MinTVLUSD < 0 {
		return fmt.Errorf("rules.min_tvl_usd cannot be negative")
	}
	if c.Rules.FeeTVLThresholdPct <= 0 {
		return fmt.Errorf("rules.fee_tvl_threshold_pct must be greater than zero")
	}
	if c.Rules.FeeThresholdUSD < 0 {
		return fmt.Errorf("rules.fee_threshold_usd cannot be negative")
	}
	if c.Rules.LedgerCapacity <= 0 {
		return fmt.Errorf("rules.ledger_capacity must be greater than zero")
	}
	if c.Alerting.SendInterval < 0 {
		return fmt.Errorf("alerting.send_interval cannot be negative")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention cannot be negative")
	}
	if c.Meteora.BaseURL == "" {
		return fmt.Errorf("meteora.base_url is required")
	}
	if c.DexScreener.BaseURL == "" {
		return fmt.Errorf("dexscreener.base_url is required")
	}
	return nil
}

// RequireTelegram reports ErrMissingTelegramCredentials when the bot token or
// chat id is absent or still the sample placeholder.
func (c *Config) RequireTelegram() error {
	tg := c.Alerting.Telegram
	if tg.BotToken == "" || tg.BotToken == placeholderBotToken {
		return fmt.Errorf("%w: set TELEGRAM_BOT_TOKEN", ErrMissingTelegramCredentials)
	}
	if tg.ChatID == "" || tg.ChatID == placeholderChatID {
		return fmt.Errorf("%w: set TELEGRAM_CHAT_ID", ErrMissingTelegramCredentials)
	}
	return nil
}

// DeliveryEnabled reports whether alerts should go to Telegram.
func (c *Config) DeliveryEnabled() bool {
	return c.Alerting.Enabled && c.Alerting.Telegram.Enabled
}
