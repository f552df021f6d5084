package scheduler

import (
	"strings"
	"time"

	"github.com/smallbiznis/tenantbill/internal/config"
)

// Config controls sweep schedules and batch sizes.
type Config struct {
	RenewalSchedule    string
	ExpirationSchedule string
	BatchSize          int
	LockTTL            time.Duration
	JobTimeout         time.Duration
	// EnabledJobs limits RunOnce to the named sweeps. Empty runs all of them.
	EnabledJobs []string
}

func DefaultConfig() Config {
	sweeps := config.DefaultBillingConfig().Sweeps
	return Config{
		RenewalSchedule:    sweeps.RenewalSchedule,
		ExpirationSchedule: sweeps.ExpirationSchedule,
		BatchSize:          sweeps.BatchSize,
		LockTTL:            sweeps.LockTTL,
		JobTimeout:         10 * time.Minute,
	}
}

// ProvideConfig reads the sweep section of the billing config. Later reloads
// are picked up per run through the holder.
func ProvideConfig(holder *config.BillingConfigHolder) Config {
	if holder == nil {
		return DefaultConfig()
	}
	return fromSweeps(holder.Get().Sweeps, Config{})
}

func fromSweeps(sweeps config.SweepConfig, base Config) Config {
	base.RenewalSchedule = sweeps.RenewalSchedule
	base.ExpirationSchedule = sweeps.ExpirationSchedule
	base.BatchSize = sweeps.BatchSize
	base.LockTTL = sweeps.LockTTL
	return base.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if strings.TrimSpace(c.RenewalSchedule) == "" {
		c.RenewalSchedule = defaults.RenewalSchedule
	}
	if strings.TrimSpace(c.ExpirationSchedule) == "" {
		c.ExpirationSchedule = defaults.ExpirationSchedule
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.LockTTL <= 0 {
		c.LockTTL = defaults.LockTTL
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
