// Package config provides configuration management for the payment scanner.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Supported ledger store drivers
const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongodb"
	DriverSQLite   = "sqlite"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Broker   BrokerConfig
	Cache    CacheConfig
	Scanner  ScannerConfig
	TRC20    TronConfig
	BEP20    EVMConfig
	Logging  LoggingConfig
	Metrics  MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string
	Host            string
	ShutdownTimeout time.Duration
	RateLimitRPS    int
	AllowedOrigin   string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver     string
	Postgres   PostgresConfig
	Mongo      MongoConfig
	SQLite     SQLiteConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration. URL wins over the individual parts.
type PostgresConfig struct {
	URL            string
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// MongoConfig holds MongoDB configuration
type MongoConfig struct {
	URI      string
	Database string
}

// SQLiteConfig holds SQLite configuration
type SQLiteConfig struct {
	Path string
}

// ClickHouseConfig holds ClickHouse configuration. An empty Host disables the scan log.
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration. An empty Host disables caching and the tick lock.
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// BrokerConfig holds AMQP configuration. An empty URL disables event publishing.
type BrokerConfig struct {
	URL      string
	Exchange string
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	TTL time.Duration
}

// ScannerConfig holds scan scheduler configuration
type ScannerConfig struct {
	Interval        time.Duration
	LockTTL         time.Duration
	BreakerFailures int
	BreakerCooldown time.Duration
	ExplorerRPS     float64
	HTTPTimeout     time.Duration
}

// TronConfig holds the TRC20 adapter configuration
type TronConfig struct {
	Address   string
	APIURL    string
	APIKey    string
	PageLimit int
	Decimals  int
}

// EVMConfig holds the BEP20 adapter configuration
type EVMConfig struct {
	Address         string
	APIURL          string
	APIKey          string
	ChainID         int
	ContractAddress string
	PageSize        int
	Decimals        int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// MetricsConfig holds Prometheus configuration
type MetricsConfig struct {
	Enabled bool
	Port    string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional, the environment may be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:            getEnv("SERVER_PORT", getEnv("PORT", "5000")),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
			RateLimitRPS:    getEnvAsInt("API_RATE_LIMIT_RPS", 20),
			AllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", "*"),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DB_DRIVER", DriverPostgres),
			Postgres: PostgresConfig{
				URL:            getEnv("DATABASE_URL", ""),
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "payment_scanner"),
				User:           getEnv("POSTGRES_USER", "scanner"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			Mongo: MongoConfig{
				URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
				Database: getEnv("MONGO_DATABASE", "payment_scanner"),
			},
			SQLite: SQLiteConfig{
				Path: getEnv("SQLITE_PATH", "payment_scanner.db"),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", ""),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "payment_scanner"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", ""),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Broker: BrokerConfig{
			URL:      getEnv("AMQP_URL", ""),
			Exchange: getEnv("AMQP_EXCHANGE", "payments"),
		},
		Cache: CacheConfig{
			TTL: getEnvAsDuration("CACHE_TTL", 20*time.Second),
		},
		Scanner: ScannerConfig{
			Interval:        getEnvAsDuration("SCAN_INTERVAL", 20*time.Second),
			LockTTL:         getEnvAsDuration("SCAN_LOCK_TTL", 60*time.Second),
			BreakerFailures: getEnvAsInt("SCAN_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("SCAN_BREAKER_COOLDOWN", 2*time.Minute),
			ExplorerRPS:     getEnvAsFloat("EXPLORER_RPS", 3),
			HTTPTimeout:     getEnvAsDuration("EXPLORER_HTTP_TIMEOUT", 30*time.Second),
		},
		TRC20: TronConfig{
			Address:   getEnv("TRC20_ADDRESS", ""),
			APIURL:    getEnv("TRON_API_URL", "https://api.trongrid.io"),
			APIKey:    getEnv("TRON_API_KEY", ""),
			PageLimit: getEnvAsInt("TRON_PAGE_LIMIT", 20),
			Decimals:  getEnvAsInt("TRC20_DECIMALS", 6),
		},
		BEP20: EVMConfig{
			Address:         getEnv("BEP20_ADDRESS", ""),
			APIURL:          getEnv("BSCSCAN_API_URL", "https://api.etherscan.io/v2/api"),
			APIKey:          getEnv("BSCSCAN_API_KEY", getEnv("BSCSCAN_KEY", "")),
			ChainID:         getEnvAsInt("BSC_CHAIN_ID", 56),
			ContractAddress: getEnv("BEP20_CONTRACT_ADDRESS", "0x55d398326f99059fF775485246999027B3197955"),
			PageSize:        getEnvAsInt("BEP20_PAGE_SIZE", 100),
			Decimals:        getEnvAsInt("BEP20_DECIMALS", 18),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvAsBool("METRICS_ENABLED", true),
			Port:    getEnv("METRICS_PORT", "9090"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks values that would otherwise fail late at runtime
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverMongo, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q (want %s, %s or %s)",
			c.Database.Driver, DriverPostgres, DriverMongo, DriverSQLite)
	}
	if c.Scanner.Interval <= 0 {
		return fmt.Errorf("SCAN_INTERVAL must be positive, got %v", c.Scanner.Interval)
	}
	if c.Scanner.ExplorerRPS <= 0 {
		return fmt.Errorf("EXPLORER_RPS must be positive, got %v", c.Scanner.ExplorerRPS)
	}
	if c.TRC20.Decimals < 0 || c.BEP20.Decimals < 0 {
		return fmt.Errorf("token decimals must not be negative")
	}
	if c.TRC20.PageLimit <= 0 || c.BEP20.PageSize <= 0 {
		return fmt.Errorf("explorer page sizes must be positive")
	}
	return nil
}

// PostgresURL returns the connection URL for Postgres, built from parts when
// DATABASE_URL is not set
func (p PostgresConfig) PostgresURL() string {
	if p.URL != "" {
		return p.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Database,
	)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
