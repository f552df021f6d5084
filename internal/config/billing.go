package config

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// BillingConfig is the hot-reloadable part of the configuration.
type BillingConfig struct {
	Sweeps SweepConfig `mapstructure:"sweeps"`
	Plans  []PlanSeed  `mapstructure:"plans"`
}

type SweepConfig struct {
	RenewalSchedule    string        `mapstructure:"renewalSchedule"`
	ExpirationSchedule string        `mapstructure:"expirationSchedule"`
	BatchSize          int           `mapstructure:"batchSize"`
	LockTTL            time.Duration `mapstructure:"lockTTL"`
}

// PlanSeed describes a catalog plan that is upserted by code at startup.
type PlanSeed struct {
	Name         string   `mapstructure:"name"`
	Code         string   `mapstructure:"code"`
	Price        string   `mapstructure:"price"`
	BillingCycle string   `mapstructure:"billingCycle"`
	Features     []string `mapstructure:"features"`
	MaxTeams     int      `mapstructure:"maxTeams"`
	MaxUsers     int      `mapstructure:"maxUsers"`
	Inactive     bool     `mapstructure:"inactive"`
}

var defaultBillingConfigPaths = []string{
	"/var/lib/tenantbill/config", // volume-mounted config
	"/etc/tenantbill",
	".",
}

func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		Sweeps: SweepConfig{
			RenewalSchedule:    "0 2 * * *",
			ExpirationSchedule: "30 2 * * *",
			BatchSize:          100,
			LockTTL:            30 * time.Minute,
		},
	}
}

type BillingConfigHolder struct {
	current atomic.Value // holds BillingConfig
}

// NewStaticBillingConfigHolder wraps a fixed configuration without file watching.
func NewStaticBillingConfigHolder(cfg BillingConfig) *BillingConfigHolder {
	holder := &BillingConfigHolder{}
	holder.current.Store(withBillingDefaults(cfg))
	return holder
}

func NewBillingConfigHolder(log *zap.Logger) (*BillingConfigHolder, error) {
	return newBillingConfigHolder(log, defaultBillingConfigPaths...)
}

func newBillingConfigHolder(log *zap.Logger, paths ...string) (*BillingConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("billing.config")

	v := viper.New()
	v.SetConfigName("billing")
	v.SetConfigType("yml")
	for _, path := range paths {
		v.AddConfigPath(path)
	}
	v.SetEnvPrefix("TENANTBILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &BillingConfigHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		log.Info("billing config not found, using defaults")
		holder.current.Store(DefaultBillingConfig())
		return holder, nil
	}

	cfg, err := decodeBillingConfig(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(cfg)

	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodeBillingConfig(v)
		if err != nil {
			log.Warn("billing config reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("billing config reloaded", zap.String("file", e.Name))
	})
	v.WatchConfig()

	return holder, nil
}

func (h *BillingConfigHolder) Get() BillingConfig {
	return h.current.Load().(BillingConfig)
}

func decodeBillingConfig(v *viper.Viper) (BillingConfig, error) {
	var cfg BillingConfig
	if err := v.UnmarshalKey("billing", &cfg); err != nil {
		return BillingConfig{}, err
	}
	cfg = withBillingDefaults(cfg)
	if err := validateBillingConfig(cfg); err != nil {
		return BillingConfig{}, err
	}
	return cfg, nil
}

func withBillingDefaults(cfg BillingConfig) BillingConfig {
	defaults := DefaultBillingConfig()
	if strings.TrimSpace(cfg.Sweeps.RenewalSchedule) == "" {
		cfg.Sweeps.RenewalSchedule = defaults.Sweeps.RenewalSchedule
	}
	if strings.TrimSpace(cfg.Sweeps.ExpirationSchedule) == "" {
		cfg.Sweeps.ExpirationSchedule = defaults.Sweeps.ExpirationSchedule
	}
	if cfg.Sweeps.BatchSize <= 0 {
		cfg.Sweeps.BatchSize = defaults.Sweeps.BatchSize
	}
	if cfg.Sweeps.LockTTL <= 0 {
		cfg.Sweeps.LockTTL = defaults.Sweeps.LockTTL
	}
	return cfg
}

func validateBillingConfig(cfg BillingConfig) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(cfg.Sweeps.RenewalSchedule); err != nil {
		return fmt.Errorf("billing.sweeps.renewalSchedule: %w", err)
	}
	if _, err := parser.Parse(cfg.Sweeps.ExpirationSchedule); err != nil {
		return fmt.Errorf("billing.sweeps.expirationSchedule: %w", err)
	}
	seen := make(map[string]struct{}, len(cfg.Plans))
	for i, plan := range cfg.Plans {
		if strings.TrimSpace(plan.Name) == "" {
			return fmt.Errorf("billing.plans[%d].name cannot be empty", i)
		}
		key := strings.ToLower(strings.TrimSpace(plan.Code))
		if key == "" {
			key = strings.ToLower(strings.TrimSpace(plan.Name))
		}
		if _, ok := seen[key]; ok {
			return fmt.Errorf("billing.plans[%d] duplicates %q", i, key)
		}
		seen[key] = struct{}{}
	}
	return nil
}
