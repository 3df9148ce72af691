package config

import (
	"os"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SCAN_INTERVAL", "30s")
	t.Setenv("TRC20_ADDRESS", "TWCtpUaW6dzmgi9B2quh3VoxVUmThNLcxR")
	t.Setenv("BSCSCAN_KEY", "legacy-key")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Database.Driver = %v, want %v", cfg.Database.Driver, DriverSQLite)
	}
	if cfg.Scanner.Interval != 30*time.Second {
		t.Errorf("Scanner.Interval = %v, want %v", cfg.Scanner.Interval, 30*time.Second)
	}
	if cfg.TRC20.Address != "TWCtpUaW6dzmgi9B2quh3VoxVUmThNLcxR" {
		t.Errorf("TRC20.Address = %v", cfg.TRC20.Address)
	}
	if cfg.BEP20.APIKey != "legacy-key" {
		t.Errorf("BEP20.APIKey = %v, want fallback to BSCSCAN_KEY", cfg.BEP20.APIKey)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	for _, key := range []string{"SERVER_PORT", "PORT", "DB_DRIVER", "SCAN_INTERVAL", "TRC20_DECIMALS", "BEP20_DECIMALS"} {
		t.Setenv(key, "")
	}

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "5000" {
		t.Errorf("Server.Port = %v, want 5000", cfg.Server.Port)
	}
	if cfg.Scanner.Interval != 20*time.Second {
		t.Errorf("Scanner.Interval = %v, want 20s", cfg.Scanner.Interval)
	}
	if cfg.TRC20.Decimals != 6 || cfg.BEP20.Decimals != 18 {
		t.Errorf("decimals = %d/%d, want 6/18", cfg.TRC20.Decimals, cfg.BEP20.Decimals)
	}
	if cfg.BEP20.ChainID != 56 {
		t.Errorf("BEP20.ChainID = %d, want 56", cfg.BEP20.ChainID)
	}
	if cfg.Database.Redis.Host != "" || cfg.Broker.URL != "" || cfg.Database.ClickHouse.Host != "" {
		t.Error("optional backends should be disabled by default")
	}
}

func TestLoadConfig_PortFallback(t *testing.T) {
	t.Setenv("SERVER_PORT", "")
	t.Setenv("PORT", "7000")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Server.Port != "7000" {
		t.Errorf("Server.Port = %v, want 7000", cfg.Server.Port)
	}
}

func TestLoadConfig_RejectsUnknownDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "cassandra")

	if _, err := LoadConfig(); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestPostgresURL(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: "5433", Database: "ledger", User: "u", Password: "p"}
	if got, want := p.PostgresURL(), "postgres://u:p@db:5433/ledger?sslmode=disable"; got != want {
		t.Errorf("PostgresURL() = %v, want %v", got, want)
	}

	p.URL = "postgres://override"
	if got := p.PostgresURL(); got != "postgres://override" {
		t.Errorf("PostgresURL() = %v, want DATABASE_URL", got)
	}
}

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "returns environment variable when set",
			key:          "TEST_KEY",
			defaultValue: "default",
			envValue:     "custom",
			want:         "custom",
		},
		{
			name:         "returns default when environment variable not set",
			key:          "NONEXISTENT_KEY",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				if err := os.Setenv(tt.key, tt.envValue); err != nil {
					t.Fatalf("Failed to set env var: %v", err)
				}
				defer func() {
					_ = os.Unsetenv(tt.key)
				}()
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsNumbers(t *testing.T) {
	t.Setenv("TEST_INT", "200")
	t.Setenv("TEST_INT_INVALID", "invalid")
	t.Setenv("TEST_FLOAT", "2.5")
	t.Setenv("TEST_BOOL", "false")
	t.Setenv("TEST_DURATION", "30s")

	if got := getEnvAsInt("TEST_INT", 100); got != 200 {
		t.Errorf("getEnvAsInt() = %v, want 200", got)
	}
	if got := getEnvAsInt("TEST_INT_INVALID", 100); got != 100 {
		t.Errorf("getEnvAsInt() = %v, want default", got)
	}
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
	if got := getEnvAsBool("TEST_BOOL", true); got {
		t.Errorf("getEnvAsBool() = %v, want false", got)
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 30*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want 30s", got)
	}
	if got := getEnvAsDuration("TEST_DURATION_NOTSET", 10*time.Second); got != 10*time.Second {
		t.Errorf("getEnvAsDuration() = %v, want default", got)
	}
}
