package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	MarketConfig   MarketConfig   `json:"market"`
	BrokerConfig   BrokerConfig   `json:"broker"`
	DatabaseConfig DatabaseConfig `json:"database"`
	RedisConfig    RedisConfig    `json:"redis"`
	ServerConfig   ServerConfig   `json:"server"`
	MonitorConfig  MonitorConfig  `json:"monitor"`
	LoggingConfig  LoggingConfig  `json:"logging"`
	EngineConfig   EngineConfig   `json:"engine"`
}

// MarketConfig holds market-data provider settings
type MarketConfig struct {
	BaseURL        string        `json:"base_url"`
	MockMode       bool          `json:"mock_mode"` // Use simulated candles when the data feed is unavailable
	RequestsPerSec int           `json:"requests_per_sec"`
	Timeout        time.Duration `json:"timeout"`
	MaxRetryTime   time.Duration `json:"max_retry_time"`
}

// BrokerConfig holds broker execution facade settings
type BrokerConfig struct {
	BaseURL      string        `json:"base_url"`
	APIKey       string        `json:"api_key"`
	MockMode     bool          `json:"mock_mode"` // Dry-run against the in-memory broker
	Timeout      time.Duration `json:"timeout"`
	MaxRetryTime time.Duration `json:"max_retry_time"`
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds Redis configuration for price caching
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	ProductionMode bool     `json:"production_mode"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// MonitorConfig holds background loop settings
type MonitorConfig struct {
	AnalysisInterval time.Duration `json:"analysis_interval"`
	TickInterval     time.Duration `json:"tick_interval"`
	WorkerCount      int           `json:"worker_count"`
	CandleLimit      int           `json:"candle_limit"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `json:"level"`  // trace, debug, info, warn, error
	Pretty bool   `json:"pretty"` // console output instead of JSON
}

// EngineConfig holds analysis engine settings
type EngineConfig struct {
	Instruments []string `json:"instruments"` // Instruments auto-tracked at startup
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// No config file, start from defaults plus environment
		cfg = &Config{}
	}

	applyEnvOverrides(cfg)

	if cfg.DatabaseConfig.Host == "" {
		return nil, fmt.Errorf("database host is required (DB_HOST or config.json)")
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Environment values take precedence over config.json.
func applyEnvOverrides(cfg *Config) {
	// Market data
	cfg.MarketConfig.BaseURL = getEnvOrDefault("MARKET_BASE_URL", cfg.MarketConfig.BaseURL)
	if cfg.MarketConfig.BaseURL == "" {
		cfg.MarketConfig.BaseURL = "https://api.binance.com"
	}
	cfg.MarketConfig.MockMode = getEnvOrDefault("MARKET_MOCK_MODE", boolStr(cfg.MarketConfig.MockMode)) == "true"
	if cfg.MarketConfig.RequestsPerSec == 0 {
		cfg.MarketConfig.RequestsPerSec = 10
	}
	cfg.MarketConfig.Timeout = getEnvDurationOrDefault("MARKET_TIMEOUT", defaultDur(cfg.MarketConfig.Timeout, 10*time.Second))
	cfg.MarketConfig.MaxRetryTime = getEnvDurationOrDefault("MARKET_MAX_RETRY_TIME", defaultDur(cfg.MarketConfig.MaxRetryTime, 30*time.Second))

	// Broker
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", cfg.BrokerConfig.BaseURL)
	cfg.BrokerConfig.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.BrokerConfig.APIKey)
	cfg.BrokerConfig.MockMode = getEnvOrDefault("BROKER_MOCK_MODE", boolStr(cfg.BrokerConfig.MockMode)) == "true"
	cfg.BrokerConfig.Timeout = getEnvDurationOrDefault("BROKER_TIMEOUT", defaultDur(cfg.BrokerConfig.Timeout, 10*time.Second))
	cfg.BrokerConfig.MaxRetryTime = getEnvDurationOrDefault("BROKER_MAX_RETRY_TIME", defaultDur(cfg.BrokerConfig.MaxRetryTime, 30*time.Second))

	// Database
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", cfg.DatabaseConfig.Host)
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", cfg.DatabaseConfig.User)
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", cfg.DatabaseConfig.Database)
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", boolStr(cfg.RedisConfig.Enabled)) == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Server
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", defaultStr(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", defaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.ProductionMode = getEnvOrDefault("PRODUCTION_MODE", boolStr(cfg.ServerConfig.ProductionMode)) == "true"
	if origins := os.Getenv("SERVER_ALLOWED_ORIGINS"); origins != "" {
		cfg.ServerConfig.AllowedOrigins = strings.Split(origins, ",")
	}

	// Monitor
	cfg.MonitorConfig.AnalysisInterval = getEnvDurationOrDefault("MONITOR_ANALYSIS_INTERVAL", defaultDur(cfg.MonitorConfig.AnalysisInterval, 5*time.Minute))
	cfg.MonitorConfig.TickInterval = getEnvDurationOrDefault("MONITOR_TICK_INTERVAL", defaultDur(cfg.MonitorConfig.TickInterval, 15*time.Second))
	cfg.MonitorConfig.WorkerCount = getEnvIntOrDefault("MONITOR_WORKER_COUNT", defaultInt(cfg.MonitorConfig.WorkerCount, 4))
	cfg.MonitorConfig.CandleLimit = getEnvIntOrDefault("MONITOR_CANDLE_LIMIT", defaultInt(cfg.MonitorConfig.CandleLimit, 100))

	// Logging
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", defaultStr(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", boolStr(cfg.LoggingConfig.Pretty)) == "true"

	// Engine
	if instruments := os.Getenv("ENGINE_INSTRUMENTS"); instruments != "" {
		cfg.EngineConfig.Instruments = strings.Split(instruments, ",")
	}
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultDur(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
