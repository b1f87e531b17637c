package config

import (
	"errors"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Polymarket Polymarket `mapstructure:"polymarket"`
	Trading    Trading    `mapstructure:"trading"`
	Risk       Risk       `mapstructure:"risk"`
	Copy       Copy       `mapstructure:"copy"`
	State      State      `mapstructure:"state"`
	Logger     Logger     `mapstructure:"logger"`
	Server     Server     `mapstructure:"server"`
	Database   Database   `mapstructure:"database"`
}

// Polymarket holds the configuration for the Polymarket APIs.
type Polymarket struct {
	GammaURL       string  `mapstructure:"gamma_url"`
	ClobURL        string  `mapstructure:"clob_url"`
	DataURL        string  `mapstructure:"data_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	ApiSecret      string  `mapstructure:"apiSecret"`
	Passphrase     string  `mapstructure:"passphrase"`
	Funder         string  `mapstructure:"funder"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Trading holds the configuration for the trading loop and strategies.
type Trading struct {
	Strategy             string  `mapstructure:"strategy"`
	DryRun               bool    `mapstructure:"dry_run"`
	PollInterval         int     `mapstructure:"poll_interval"`
	VirtualBalance       float64 `mapstructure:"virtual_balance"`
	BuyThreshold         float64 `mapstructure:"buy_threshold"`
	SellThreshold        float64 `mapstructure:"sell_threshold"`
	MomentumThreshold    float64 `mapstructure:"momentum_threshold"`
	TargetProfit         float64 `mapstructure:"target_profit"`
	MaxPositionPerMarket float64 `mapstructure:"max_position_per_market"`
}

// Risk holds the limits the executor enforces before any order is placed.
type Risk struct {
	MaxPositionSize  float64 `mapstructure:"max_position_size"`
	MaxTotalExposure float64 `mapstructure:"max_total_exposure"`
	MaxSlippage      float64 `mapstructure:"max_slippage"`
	MinTradeSize     float64 `mapstructure:"min_trade_size"`
}

// Copy holds the configuration for the copy-trading strategy. CopyAmount and
// CopyRatio are mutually exclusive; when both are set, the ratio wins.
type Copy struct {
	TargetUser  string  `mapstructure:"target_user"`
	CopyAmount  float64 `mapstructure:"copy_amount"`
	CopyRatio   float64 `mapstructure:"copy_ratio"`
	TimeWindow  int     `mapstructure:"time_window"`
	MaxCopySize float64 `mapstructure:"max_copy_size"`
}

// State holds the paths of the persisted state files. The design assumes at
// most one bot instance per configured path.
type State struct {
	PositionsFile string `mapstructure:"positions_file"`
	CopyStateFile string `mapstructure:"copy_state_file"`
	HistoryFile   string `mapstructure:"history_file"`
}

// Server holds the configuration for the status API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the trade record database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file, environment variables and any
// already-parsed command-line flags. Precedence, highest first: flags,
// environment, config file, defaults. A missing config file is not an error;
// the defaults describe a working dry-run setup.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err = viper.BindPFlags(pflag.CommandLine); err != nil {
		return
	}

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("polymarket.gamma_url", "https://gamma-api.polymarket.com")
	viper.SetDefault("polymarket.clob_url", "https://clob.polymarket.com")
	viper.SetDefault("polymarket.data_url", "https://data-api.polymarket.com")
	viper.SetDefault("polymarket.rate_limit", 10)      // requests per second
	viper.SetDefault("polymarket.rate_limit_burst", 5) // burst size

	viper.SetDefault("trading.strategy", "copy")
	viper.SetDefault("trading.dry_run", true)
	viper.SetDefault("trading.poll_interval", 60)
	viper.SetDefault("trading.virtual_balance", 1000.0)
	viper.SetDefault("trading.buy_threshold", 0.3)
	viper.SetDefault("trading.sell_threshold", 0.5)
	viper.SetDefault("trading.momentum_threshold", 0.1)
	viper.SetDefault("trading.target_profit", 0.15)
	viper.SetDefault("trading.max_position_per_market", 50.0)

	viper.SetDefault("risk.max_position_size", 100.0)
	viper.SetDefault("risk.max_total_exposure", 1000.0)
	viper.SetDefault("risk.max_slippage", 0.02)
	viper.SetDefault("risk.min_trade_size", 1.0)

	viper.SetDefault("copy.copy_amount", 10.0)
	viper.SetDefault("copy.time_window", 300)
	viper.SetDefault("copy.max_copy_size", 100.0)

	viper.SetDefault("state.positions_file", "virtual_positions.json")
	viper.SetDefault("state.copy_state_file", "copy_trading_state.json")
	viper.SetDefault("state.history_file", "trade_history.csv")
}
