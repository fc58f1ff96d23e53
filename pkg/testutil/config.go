package testutil

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/PrismoFinance/bounties/internal/config"
)

// Config returns a fixed configuration for tests, independent of the
// environment.
func Config() *config.Config {
	return &config.Config{
		HTTPAddr:                 ":0",
		AdminAddress:             "prismo1admin",
		ExecutorAddresses:        []string{"prismo1executor"},
		FeeCollectorAddress:      "prismo1feecollector",
		SwapFeePercent:           decimal.NewFromFloat(0.0015),
		AutomationFeePercent:     decimal.NewFromFloat(0.0075),
		PerformanceFeePercent:    decimal.NewFromFloat(0.2),
		EscrowLevel:              decimal.NewFromFloat(0.05),
		MaxDestinations:          10,
		DustThreshold:            50000,
		DefaultSlippageTolerance: decimal.NewFromFloat(0.01),
		SchedulerPollInterval:    time.Second,
		SchedulerRateLimit:       100,
	}
}
