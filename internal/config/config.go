package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"remora/internal/core"
)

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Schedule  ScheduleConfig            `mapstructure:"schedule"`
	Feed      FeedConfig                `mapstructure:"feed"`
	Storage   StorageConfig             `mapstructure:"storage"`
	Exchange  ExchangeConfig            `mapstructure:"exchange"`
	Execution ExecutionConfig           `mapstructure:"execution"`
	LLM       LLMConfig                 `mapstructure:"llm"`
	Notifiers map[string]NotifierConfig `mapstructure:"notifiers"`
	Metrics   MetricsConfig             `mapstructure:"metrics"`
}

// ServerConfig holds the metrics/health HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// ScheduleConfig drives the periodic analysis loop.
type ScheduleConfig struct {
	IntervalHours int           `mapstructure:"interval_hours"`
	Symbols       []string      `mapstructure:"symbols"`
	SymbolDelay   time.Duration `mapstructure:"symbol_delay"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// FeedConfig points at the indicator feed service.
type FeedConfig struct {
	BaseURL  string `mapstructure:"base_url"`
	Interval string `mapstructure:"interval"` // kline interval in minutes, "240" = 4h
}

type StorageConfig struct {
	Strategies StrategyStoreConfig `mapstructure:"strategies"`
	Snapshots  SnapshotStoreConfig `mapstructure:"snapshots"`
	Cold       ColdStorageConfig   `mapstructure:"cold"`
}

// StrategyStoreConfig selects the strategy persistence backend.
type StrategyStoreConfig struct {
	Driver string `mapstructure:"driver"` // "postgres" or "memory"
	DSN    string `mapstructure:"dsn"`
}

// SnapshotStoreConfig selects the indicator history backend.
type SnapshotStoreConfig struct {
	Driver        string `mapstructure:"driver"` // "sqlite" or "memory"
	Path          string `mapstructure:"path"`   // For sqlite
	RetentionDays int    `mapstructure:"retention_days"`
}

type ColdStorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path"` // For localfs
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// ExchangeConfig holds Bybit credentials and environment selection.
type ExchangeConfig struct {
	APIKey     string `mapstructure:"api_key"`
	APISecret  string `mapstructure:"api_secret"`
	Testnet    bool   `mapstructure:"testnet"`
	RecvWindow int64  `mapstructure:"recv_window"` // milliseconds
	Category   string `mapstructure:"category"`
}

// ExecutionConfig holds order placement settings.
type ExecutionConfig struct {
	DefaultOrderUSDT float64 `mapstructure:"default_order_usdt"`
	TimeInForce      string  `mapstructure:"time_in_force"`
	QuoteAsset       string  `mapstructure:"quote_asset"`
}

type NotifierConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Telegram notifier fields
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
	// WhatsApp (CallMeBot) notifier fields
	Phone  string `mapstructure:"phone"`
	APIKey string `mapstructure:"api_key"`
	// Webhook notifier fields
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
	// Email notifier fields
	Host     string   `mapstructure:"host"`
	Port     int      `mapstructure:"port"`
	Username string   `mapstructure:"username"`
	Password string   `mapstructure:"password"`
	From     string   `mapstructure:"from"`
	To       []string `mapstructure:"to"`
}

type LLMConfig struct {
	Provider string       `mapstructure:"provider"`
	Claude   ClaudeConfig `mapstructure:"claude"`
	OpenAI   OpenAIConfig `mapstructure:"openai"`
	Ollama   OllamaConfig `mapstructure:"ollama"`
}

type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OpenAIConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
}

type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file
func Load(path string) (*Config, error) {
	// Ignore error so the app still starts when .env is missing.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Schedule: ScheduleConfig{
			IntervalHours: 4,
			Symbols:       []string{"BTCUSDT", "ETHUSDT", "BNBUSDT"},
			SymbolDelay:   30 * time.Second,
			SweepInterval: 5 * time.Minute,
		},
		Feed: FeedConfig{
			Interval: "240",
		},
		Storage: StorageConfig{
			Strategies: StrategyStoreConfig{
				Driver: "memory",
			},
			Snapshots: SnapshotStoreConfig{
				Driver:        "sqlite",
				Path:          "data/snapshots.db",
				RetentionDays: 30,
			},
			Cold: ColdStorageConfig{
				Type: "localfs",
				Path: "data/archive",
			},
		},
		Exchange: ExchangeConfig{
			Testnet:    true,
			RecvWindow: 5000,
			Category:   "linear",
		},
		Execution: ExecutionConfig{
			DefaultOrderUSDT: 50,
			TimeInForce:      "GTC",
			QuoteAsset:       "USDT",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Schedule validation
	if c.Schedule.IntervalHours < 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("interval_hours must be at least 1, got %d", c.Schedule.IntervalHours))
	}
	if len(c.Schedule.Symbols) == 0 {
		return core.WrapError(core.ErrConfigMissing,
			fmt.Errorf("schedule needs at least one symbol"))
	}
	if c.Schedule.SymbolDelay < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("symbol_delay cannot be negative, got %s", c.Schedule.SymbolDelay))
	}

	// Storage validation
	switch c.Storage.Strategies.Driver {
	case "memory":
	case "postgres":
		if c.Storage.Strategies.DSN == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("strategies dsn required when driver is postgres"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown strategies driver %q", c.Storage.Strategies.Driver))
	}
	switch c.Storage.Snapshots.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.Snapshots.Path == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("snapshots path required when driver is sqlite"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown snapshots driver %q", c.Storage.Snapshots.Driver))
	}
	if c.Storage.Snapshots.RetentionDays < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("retention_days cannot be negative, got %d", c.Storage.Snapshots.RetentionDays))
	}
	switch c.Storage.Cold.Type {
	case "", "localfs":
	case "s3":
		if c.Storage.Cold.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("s3 bucket required when cold storage is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("unknown cold storage type %q", c.Storage.Cold.Type))
	}

	// Exchange validation
	if c.Exchange.RecvWindow < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("recv_window cannot be negative, got %d", c.Exchange.RecvWindow))
	}

	// Execution validation
	if c.Execution.DefaultOrderUSDT < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("default_order_usdt cannot be negative, got %f", c.Execution.DefaultOrderUSDT))
	}

	// LLM validation - if provider set, check config exists
	if c.LLM.Provider != "" {
		switch c.LLM.Provider {
		case "claude":
			if c.LLM.Claude.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("claude api_key required when provider is claude"))
			}
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("openai api_key required when provider is openai"))
			}
		case "ollama":
			if c.LLM.Ollama.Endpoint == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("ollama endpoint required when provider is ollama"))
			}
		}
	}

	return nil
}
