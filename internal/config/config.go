package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/krobus00/market-feed-service/internal/constant"
	"github.com/spf13/viper"
)

var (
	ServiceName    = "market-feed-service"
	ServiceVersion = ""
)

var (
	Env *EnvConfig
)

const (
	spotStreamURL    = "wss://stream.binance.com:9443/stream"
	futuresStreamURL = "wss://fstream.binance.com/stream"
)

type EnvConfig struct {
	Env                     string              `mapstructure:"env"`
	Log                     LogConfig           `mapstructure:"log"`
	GracefulShutdownTimeout time.Duration       `mapstructure:"graceful_shutdown_timeout"`
	Port                    map[string]string   `mapstructure:"port"`
	Feed                    FeedConfig          `mapstructure:"feed"`
	Output                  OutputConfig        `mapstructure:"output"`
	NatsJetstream           NatsJetstreamConfig `mapstructure:"nats_jetstream"`
	Redis                   RedisConfig         `mapstructure:"redis"`
}

type LogConfig struct {
	ShowCaller bool   `mapstructure:"show_caller"`
	LogLevel   string `mapstructure:"log_level"`
}

type FeedConfig struct {
	MarketType       string          `mapstructure:"market_type"` // spot or futures
	WSURL            string          `mapstructure:"ws_url"`
	Symbol           string          `mapstructure:"symbol"`
	Interval         string          `mapstructure:"interval"`
	SubscribeTimeout time.Duration   `mapstructure:"subscribe_timeout"`
	IdleTimeout      time.Duration   `mapstructure:"idle_timeout"`
	PingInterval     time.Duration   `mapstructure:"ping_interval"`
	Reconnect        ReconnectConfig `mapstructure:"reconnect"`
}

type ReconnectConfig struct {
	MinDelay   time.Duration `mapstructure:"min_delay"`
	MaxDelay   time.Duration `mapstructure:"max_delay"`
	Factor     float64       `mapstructure:"factor"`
	ResetAfter time.Duration `mapstructure:"reset_after"`
}

type OutputConfig struct {
	File   FileOutputConfig   `mapstructure:"file"`
	Redis  RedisOutputConfig  `mapstructure:"redis"`
	Stream StreamOutputConfig `mapstructure:"stream"`
}

type FileOutputConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Format  string `mapstructure:"format"` // json or csv
}

type RedisOutputConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type StreamOutputConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type NatsJetstreamConfig struct {
	URL             string        `mapstructure:"url"`
	MaxRetries      int           `mapstructure:"max_retries"`
	ReconnectFactor float64       `mapstructure:"reconnect_factor"`
	MinJitter       time.Duration `mapstructure:"min_jitter"`
	MaxJitter       time.Duration `mapstructure:"max_jitter"`
}

type RedisConfig struct {
	CacheDSN string `mapstructure:"cache_dsn"`
}

func LoadConfig(configPath string) error {
	viper.Reset()

	configPath = strings.TrimSpace(configPath)
	if configPath == "" {
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
		viper.AddConfigPath(".")
	} else {
		ext := strings.ToLower(filepath.Ext(configPath))
		if ext == ".yml" || ext == ".yaml" {
			viper.SetConfigFile(configPath)
		} else {
			viper.SetConfigName(filepath.Base(configPath))
			viper.SetConfigType("yml")
			configDir := filepath.Dir(configPath)
			if configDir == "." || configDir == "" {
				viper.AddConfigPath(".")
			} else {
				viper.AddConfigPath(configDir)
			}
		}
	}

	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	// short env names used by container deployments
	_ = viper.BindEnv("feed.symbol", "FEED_SYMBOL", "SYMBOL")
	_ = viper.BindEnv("feed.interval", "FEED_INTERVAL", "INTERVAL")
	_ = viper.BindEnv("feed.market_type", "FEED_MARKET_TYPE", "MARKET_TYPE")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	err = viper.Unmarshal(&Env)
	if err != nil {
		return fmt.Errorf("failed to unmarshal config file: %w", err)
	}

	Env.applyDefaults()

	return Env.Validate()
}

func (c *EnvConfig) applyDefaults() {
	if c.GracefulShutdownTimeout <= 0 {
		c.GracefulShutdownTimeout = 10 * time.Second
	}

	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "info"
	}

	c.Feed.MarketType = strings.ToLower(strings.TrimSpace(c.Feed.MarketType))
	if c.Feed.MarketType == "" {
		c.Feed.MarketType = constant.MarketTypeSpot
	}

	if c.Feed.WSURL == "" {
		if c.Feed.MarketType == constant.MarketTypeFutures {
			c.Feed.WSURL = futuresStreamURL
		} else {
			c.Feed.WSURL = spotStreamURL
		}
	}
	if c.Feed.SubscribeTimeout <= 0 {
		c.Feed.SubscribeTimeout = 10 * time.Second
	}
	if c.Feed.IdleTimeout <= 0 {
		c.Feed.IdleTimeout = 2 * time.Minute
	}
	if c.Feed.PingInterval <= 0 {
		c.Feed.PingInterval = 20 * time.Second
	}

	if c.Feed.Reconnect.MinDelay <= 0 {
		c.Feed.Reconnect.MinDelay = 1 * time.Second
	}
	if c.Feed.Reconnect.MaxDelay <= 0 {
		c.Feed.Reconnect.MaxDelay = 15 * time.Second
	}
	if c.Feed.Reconnect.MaxDelay < c.Feed.Reconnect.MinDelay {
		c.Feed.Reconnect.MaxDelay = c.Feed.Reconnect.MinDelay
	}
	if c.Feed.Reconnect.Factor < 1 {
		c.Feed.Reconnect.Factor = 2.0
	}
	if c.Feed.Reconnect.ResetAfter <= 0 {
		c.Feed.Reconnect.ResetAfter = 30 * time.Second
	}

	if c.Output.File.Format == "" {
		c.Output.File.Format = constant.OutputFormatJSON
	}
	if c.Output.File.Path == "" {
		c.Output.File.Path = "ohlcv_data." + c.Output.File.Format
	}

	c.Feed.Symbol = strings.ToLower(strings.TrimSpace(c.Feed.Symbol))
	c.Feed.Interval = strings.TrimSpace(c.Feed.Interval)
	c.Output.File.Format = strings.ToLower(strings.TrimSpace(c.Output.File.Format))
}

// Validate rejects configurations the connector must not start with.
func (c *EnvConfig) Validate() error {
	if c.Feed.Symbol == "" {
		return fmt.Errorf("feed.symbol is required")
	}

	if c.Feed.MarketType != constant.MarketTypeSpot && c.Feed.MarketType != constant.MarketTypeFutures {
		return fmt.Errorf("unsupported feed.market_type %q, supported: spot, futures", c.Feed.MarketType)
	}

	if !slices.Contains(constant.SupportedIntervals, c.Feed.Interval) {
		return fmt.Errorf("unsupported feed.interval %q, supported: %s", c.Feed.Interval, strings.Join(constant.SupportedIntervals, ", "))
	}

	if format := c.Output.File.Format; format != constant.OutputFormatJSON && format != constant.OutputFormatCSV {
		return fmt.Errorf("unsupported output.file.format %q, supported: json, csv", format)
	}

	if c.Output.Redis.Enabled && strings.TrimSpace(c.Redis.CacheDSN) == "" {
		return fmt.Errorf("redis.cache_dsn is required when output.redis is enabled")
	}

	if c.Output.Stream.Enabled && strings.TrimSpace(c.NatsJetstream.URL) == "" {
		return fmt.Errorf("nats_jetstream.url is required when output.stream is enabled")
	}

	return nil
}

// StreamName is the feed-side subscription identifier, e.g. btcusdt@kline_1m.
func (c FeedConfig) StreamName() string {
	return fmt.Sprintf("%s@kline_%s", c.Symbol, c.Interval)
}
