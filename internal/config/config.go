package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration for the arbitrage engine.
type Config struct {
	App     AppConfig               `mapstructure:"app"`
	Venues  map[string]VenueConfig  `mapstructure:"venues"`
	Trading TradingConfig           `mapstructure:"trading"`
	Risk    RiskConfig              `mapstructure:"risk"`
	Fiat    FiatConfig              `mapstructure:"fiat"`
	Store   StoreConfig             `mapstructure:"store"`
	Redis   RedisConfig             `mapstructure:"redis"`
	Alerts  AlertsConfig            `mapstructure:"alerts"`
	Metrics MetricsConfig           `mapstructure:"metrics"`
	Vault   VaultConfig             `mapstructure:"vault"`
}

// AppConfig contains process-level settings.
type AppConfig struct {
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`
	DryRun      bool   `mapstructure:"dry_run"`
}

// VenueConfig holds per-venue (EX-K / EX-U) settings and credentials.
type VenueConfig struct {
	APIKey    string `mapstructure:"api_key"`
	SecretKey string `mapstructure:"secret_key"`
	Testnet   bool   `mapstructure:"testnet"`
}

// TradingConfig controls the coin universe and monitor cadence.
type TradingConfig struct {
	MonitorCoins           []string `mapstructure:"monitor_coins"`
	SafetyMarginPct        float64  `mapstructure:"safety_margin_pct"`
	MinTradeAmountKrw      float64  `mapstructure:"min_trade_amount_krw"`
	MaxTradeAmountKrw      float64  `mapstructure:"max_trade_amount_krw"`
	PriceUpdateIntervalSec int     `mapstructure:"price_update_interval_sec"`
	TransferTimeoutMinutes int     `mapstructure:"transfer_timeout_minutes"`
	UniverseRefreshMinutes int     `mapstructure:"universe_refresh_minutes"`
}

// RiskConfig mirrors the RiskLimits data model.
type RiskConfig struct {
	MaxSingleTradeKrw float64 `mapstructure:"max_single_trade_krw"`
	MaxDailyVolumeKrw float64 `mapstructure:"max_daily_volume_krw"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
	MaxSlippagePct    float64 `mapstructure:"max_slippage_pct"`
	EmergencyLossPct  float64 `mapstructure:"emergency_loss_pct"`
	MinVenueBalanceKrw float64 `mapstructure:"min_venue_balance_krw"`
	MaxExposurePct    float64 `mapstructure:"max_exposure_pct"`
}

// FiatConfig controls the USD->KRW rate provider.
type FiatConfig struct {
	CacheDurationSec int `mapstructure:"cache_duration_sec"`
	StalenessCeilingSec int `mapstructure:"staleness_ceiling_sec"`
}

// StoreConfig controls trade/step persistence.
type StoreConfig struct {
	DatabaseURL string `mapstructure:"database_url"`
	DryRunPath  string `mapstructure:"dry_run_path"`
}

// RedisConfig is optional; when Host is empty, fiatrate falls back to in-memory caching.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AlertsConfig controls the operator alert sink.
type AlertsConfig struct {
	TelegramBotToken string  `mapstructure:"telegram_bot_token"`
	TelegramChatIDs  []int64 `mapstructure:"telegram_chat_ids"`
}

// MetricsConfig controls the Prometheus exporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// VaultConfig controls optional HashiCorp Vault-backed secret loading.
type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// Load loads configuration from file and environment variables (ARB_ prefix).
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("ARB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("app.dry_run", true)

	v.SetDefault("trading.safety_margin_pct", 0.1)
	v.SetDefault("trading.min_trade_amount_krw", 100000.0)
	v.SetDefault("trading.max_trade_amount_krw", 5000000.0)
	v.SetDefault("trading.price_update_interval_sec", 1)
	v.SetDefault("trading.transfer_timeout_minutes", 30)
	v.SetDefault("trading.universe_refresh_minutes", 30)

	v.SetDefault("risk.max_single_trade_krw", 1000000.0)
	v.SetDefault("risk.max_daily_volume_krw", 20000000.0)
	v.SetDefault("risk.max_concurrent", 3)
	v.SetDefault("risk.max_slippage_pct", 0.5)
	v.SetDefault("risk.emergency_loss_pct", 3.0)
	v.SetDefault("risk.min_venue_balance_krw", 500000.0)
	v.SetDefault("risk.max_exposure_pct", 50.0)

	v.SetDefault("fiat.cache_duration_sec", 300)
	v.SetDefault("fiat.staleness_ceiling_sec", 3600)

	v.SetDefault("store.dry_run_path", "./arbengine-paper-state.json")

	v.SetDefault("redis.port", 6379)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9300)

	v.SetDefault("vault.enabled", false)
	v.SetDefault("vault.address", "http://localhost:8200")
}
