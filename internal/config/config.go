package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"trainguard/internal/expmanager"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Strategy         string  `yaml:"strategy"`
	Devices          int     `yaml:"devices"`
	Accelerator      string  `yaml:"accelerator"`
	MaxSteps         int     `yaml:"max_steps"`
	ValCheckInterval float64 `yaml:"val_check_interval"`
	BatchSize        int     `yaml:"batch_size"`
	DatasetLen       int     `yaml:"dataset_len"`
	InFeatures       int     `yaml:"in_features"`
	OutFeatures      int     `yaml:"out_features"`
	LearningRate     float64 `yaml:"learning_rate"`
	Seed             int64   `yaml:"seed"`
	LogEvery         int     `yaml:"log_every"`
	LogLevel         string  `yaml:"log_level"`

	ExpManager expmanager.Config `yaml:"exp_manager"`
}

// Overrides captures CLI supplied values.
type Overrides struct {
	Accelerator string
	MaxSteps    int
	BatchSize   int
	Seed        int64
	LogEvery    int
	LogDir      string
}

// Load reads and validates a Config from YAML.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyOverrides updates cfg using any non-zero override.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Accelerator != "" {
		c.Accelerator = o.Accelerator
	}
	if o.MaxSteps > 0 {
		c.MaxSteps = o.MaxSteps
	}
	if o.BatchSize > 0 {
		c.BatchSize = o.BatchSize
	}
	if o.Seed != 0 {
		c.Seed = o.Seed
	}
	if o.LogEvery > 0 {
		c.LogEvery = o.LogEvery
	}
	if o.LogDir != "" {
		c.ExpManager.ExplicitLogDir = o.LogDir
	}
}

// Validate verifies the config is runnable, filling defaults for optional
// fields.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be > 0 (got %d)", c.MaxSteps)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize)
	}
	if c.ValCheckInterval < 0 || c.ValCheckInterval > 1 {
		return fmt.Errorf("val_check_interval must be in [0,1] (got %f)", c.ValCheckInterval)
	}
	if c.DatasetLen <= 0 {
		c.DatasetLen = 128
	}
	if c.InFeatures <= 0 {
		c.InFeatures = 2
	}
	if c.OutFeatures <= 0 {
		c.OutFeatures = 1
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.1
	}
	if c.LogEvery <= 0 {
		c.LogEvery = 50
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func parse(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
