// Package config provides runtime configuration for benchmark runs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Arrival shapes supported by the workload driver.
const (
	ArrivalSteady = "steady"
	ArrivalWaves  = "waves"
)

// Backend strategy names selectable via configuration.
const (
	BackendTransactional = "transactional"
	BackendCompensating  = "compensating"
	BackendQuorum        = "quorum"
)

// Config holds every knob of a benchmark run.
type Config struct {
	Scenario string `mapstructure:"scenario"`
	Backend  string `mapstructure:"backend"`

	Concurrency   int           `mapstructure:"concurrency"`
	Duration      time.Duration `mapstructure:"duration"`
	OrdersPerUser int           `mapstructure:"orders_per_user"`
	Arrival       string        `mapstructure:"arrival"`
	Waves         int           `mapstructure:"waves"`

	HotSKUs      int   `mapstructure:"hot_skus"`
	InitialStock int64 `mapstructure:"initial_stock"`
	Customers    int   `mapstructure:"customers"`

	FailProb      float64       `mapstructure:"fail_prob"`
	LateFailProb  float64       `mapstructure:"late_fail_prob"`
	LateFailDelay time.Duration `mapstructure:"late_fail_delay"`
	CompFailProb  float64       `mapstructure:"comp_fail_prob"`

	RetryMax    int           `mapstructure:"retry_max"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	Seed        int64         `mapstructure:"seed"`

	ProjectionInterval time.Duration `mapstructure:"projection_interval"`
	ProjectionMaxLag   time.Duration `mapstructure:"projection_max_lag"`

	OutDir          string        `mapstructure:"out_dir"`
	ResultsDB       string        `mapstructure:"results_db"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	LogLevel        string        `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scenario", "rollback")
	v.SetDefault("backend", BackendTransactional)
	v.SetDefault("concurrency", 100)
	v.SetDefault("duration", 30*time.Second)
	v.SetDefault("orders_per_user", 0)
	v.SetDefault("arrival", ArrivalSteady)
	v.SetDefault("waves", 5)
	v.SetDefault("hot_skus", 50)
	v.SetDefault("initial_stock", 50)
	v.SetDefault("customers", 1000)
	v.SetDefault("fail_prob", 0.0)
	v.SetDefault("late_fail_prob", 0.2)
	v.SetDefault("late_fail_delay", 10*time.Millisecond)
	v.SetDefault("comp_fail_prob", 0.0)
	v.SetDefault("retry_max", 5)
	v.SetDefault("lock_timeout", 2*time.Second)
	v.SetDefault("seed", 42)
	v.SetDefault("projection_interval", 50*time.Millisecond)
	v.SetDefault("projection_max_lag", 10*time.Millisecond)
	v.SetDefault("out_dir", "results/raw_data")
	v.SetDefault("results_db", "")
	v.SetDefault("shutdown_timeout", 15*time.Second)
	v.SetDefault("log_level", "info")
}

// Load collects configuration from defaults, an optional YAML file pointed to
// by CHECKOUT_CONFIG_FILE, and CHECKOUT_* environment overrides.
func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("checkout")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config_file"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the driver cannot start with. Only these
// are fatal; everything else is a recorded outcome, never a startup failure.
func (c Config) Validate() error {
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be > 0, got %d", c.Concurrency)
	}
	if c.Duration <= 0 && c.OrdersPerUser <= 0 {
		return fmt.Errorf("either duration or orders_per_user must be set")
	}
	switch c.Backend {
	case BackendTransactional, BackendCompensating, BackendQuorum:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.Arrival {
	case ArrivalSteady, ArrivalWaves:
	default:
		return fmt.Errorf("unknown arrival shape %q", c.Arrival)
	}
	if c.Arrival == ArrivalWaves && c.Waves <= 0 {
		return fmt.Errorf("waves must be > 0 in wave mode, got %d", c.Waves)
	}
	if c.HotSKUs <= 0 {
		return fmt.Errorf("hot_skus must be > 0, got %d", c.HotSKUs)
	}
	if c.InitialStock < 0 {
		return fmt.Errorf("initial_stock must be >= 0, got %d", c.InitialStock)
	}
	if c.Customers <= 0 {
		return fmt.Errorf("customers must be > 0, got %d", c.Customers)
	}
	for _, p := range []struct {
		name string
		val  float64
	}{
		{"fail_prob", c.FailProb},
		{"late_fail_prob", c.LateFailProb},
		{"comp_fail_prob", c.CompFailProb},
	} {
		if p.val < 0 || p.val > 1 {
			return fmt.Errorf("%s must be within [0,1], got %v", p.name, p.val)
		}
	}
	if c.RetryMax < 0 {
		return fmt.Errorf("retry_max must be >= 0, got %d", c.RetryMax)
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("lock_timeout must be > 0, got %v", c.LockTimeout)
	}
	return nil
}

// SKUs returns the hot SKU set, SKU-000 .. SKU-(n-1), matching the naming the
// downstream analysis expects.
func (c Config) SKUs() []string {
	out := make([]string, c.HotSKUs)
	for i := range out {
		out[i] = fmt.Sprintf("SKU-%03d", i)
	}
	return out
}
