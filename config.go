package accel

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gobroadcast/accel/backend"
)

// Config configures a Device.
type Config struct {
	// Backend selects a registered backend by name ("vulkan", "null").
	// Empty selects the best available backend by registry priority.
	Backend string `yaml:"backend"`

	// PollInterval is the fence poll period of the download path, in
	// nanoseconds when given in YAML.
	PollInterval time.Duration `yaml:"poll_interval"`

	// BucketCapacity bounds idle resources per pool bucket. A release
	// into a full bucket frees the resource instead of caching it.
	BucketCapacity int `yaml:"bucket_capacity"`

	// Workers is the worker count for frame converters built alongside
	// the device (v210.NewConverter). Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the configuration used for zero-value fields.
func DefaultConfig() Config {
	return Config{
		PollInterval:   2 * time.Millisecond,
		BucketCapacity: 64,
	}
}

// withDefaults fills zero-value fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval == 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BucketCapacity == 0 {
		c.BucketCapacity = def.BucketCapacity
	}
	return c
}

// validate rejects configurations that cannot work.
func (c Config) validate() error {
	if c.PollInterval < 0 {
		return fmt.Errorf("accel: negative poll_interval %v", c.PollInterval)
	}
	if c.BucketCapacity < 0 {
		return fmt.Errorf("accel: negative bucket_capacity %d", c.BucketCapacity)
	}
	if c.Workers < 0 {
		return fmt.Errorf("accel: negative workers %d", c.Workers)
	}
	if c.Backend != "" && !backend.IsRegistered(c.Backend) {
		return fmt.Errorf("accel: unknown backend %q", c.Backend)
	}
	return nil
}

// LoadConfig reads a YAML device configuration from path, applying defaults
// to unset fields and validating the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("accel: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("accel: parse config: %w", err)
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
