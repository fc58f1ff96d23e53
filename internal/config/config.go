// Package config loads process-wide configuration from the environment. It
// is loaded once at startup and passed explicitly into the services that
// need it; nothing reads configuration ambiently.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds every tunable of the bounty engine.
type Config struct {
	HTTPAddr    string
	DatabaseURL string

	Logging LoggingConfig

	// AdminAddress may cancel any bounty; ExecutorAddresses may disburse
	// escrow.
	AdminAddress      string
	ExecutorAddresses []string

	FeeCollectorAddress   string
	SwapFeePercent        decimal.Decimal
	AutomationFeePercent  decimal.Decimal
	PerformanceFeePercent decimal.Decimal
	EscrowLevel           decimal.Decimal

	MaxDestinations          int
	DustThreshold            int64
	DefaultSlippageTolerance decimal.Decimal

	SchedulerPollInterval time.Duration
	SchedulerRateLimit    float64
}

// LoggingConfig mirrors pkg/logger's configuration.
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// Load reads configuration from the environment, honouring a local .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPAddr:    envOr("BOUNTIES_HTTP_ADDR", ":8080"),
		DatabaseURL: os.Getenv("BOUNTIES_DATABASE_URL"),
		Logging: LoggingConfig{
			Level:  envOr("BOUNTIES_LOG_LEVEL", "info"),
			Format: envOr("BOUNTIES_LOG_FORMAT", "json"),
			Output: envOr("BOUNTIES_LOG_OUTPUT", "stdout"),
		},
		AdminAddress:        os.Getenv("BOUNTIES_ADMIN_ADDRESS"),
		FeeCollectorAddress: envOr("BOUNTIES_FEE_COLLECTOR", "fee-collector"),
	}

	if raw := strings.TrimSpace(os.Getenv("BOUNTIES_EXECUTOR_ADDRESSES")); raw != "" {
		for _, addr := range strings.Split(raw, ",") {
			if addr = strings.TrimSpace(addr); addr != "" {
				cfg.ExecutorAddresses = append(cfg.ExecutorAddresses, addr)
			}
		}
	}

	var err error
	if cfg.SwapFeePercent, err = decimalEnv("BOUNTIES_SWAP_FEE_PERCENT", "0.0015"); err != nil {
		return nil, err
	}
	if cfg.AutomationFeePercent, err = decimalEnv("BOUNTIES_AUTOMATION_FEE_PERCENT", "0.0075"); err != nil {
		return nil, err
	}
	if cfg.PerformanceFeePercent, err = decimalEnv("BOUNTIES_PERFORMANCE_FEE_PERCENT", "0.2"); err != nil {
		return nil, err
	}
	if cfg.EscrowLevel, err = decimalEnv("BOUNTIES_ESCROW_LEVEL", "0.05"); err != nil {
		return nil, err
	}
	if cfg.DefaultSlippageTolerance, err = decimalEnv("BOUNTIES_DEFAULT_SLIPPAGE", "0.01"); err != nil {
		return nil, err
	}
	if cfg.MaxDestinations, err = intEnv("BOUNTIES_MAX_DESTINATIONS", 10); err != nil {
		return nil, err
	}
	if cfg.DustThreshold, err = int64Env("BOUNTIES_DUST_THRESHOLD", 50000); err != nil {
		return nil, err
	}
	if cfg.SchedulerPollInterval, err = durationEnv("BOUNTIES_POLL_INTERVAL", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.SchedulerRateLimit, err = floatEnv("BOUNTIES_EXECUTION_RATE_LIMIT", 10); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used by tests and local development.
func Default() *Config {
	cfg, _ := Load()
	return cfg
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func decimalEnv(key, fallback string) (decimal.Decimal, error) {
	raw := envOr(key, fallback)
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: invalid decimal %q: %w", key, raw, err)
	}
	return d, nil
}

func intEnv(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return v, nil
}

func int64Env(key string, fallback int64) (int64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, raw, err)
	}
	return v, nil
}

func floatEnv(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid number %q: %w", key, raw, err)
	}
	return v, nil
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, raw, err)
	}
	return v, nil
}
