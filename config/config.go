package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling from strings.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "5s" or "1m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return fmt.Errorf("duration value node is nil")
	}
	var raw string
	if err := value.Decode(&raw); err != nil {
		return fmt.Errorf("decode duration: %w", err)
	}
	if raw == "" {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = dur
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return d.Duration.String(), nil
}

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates runtime logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures runtime telemetry exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	Listen   string `yaml:"listen,omitempty"`
}

// ContainerConfig tunes the state container of the demo host.
type ContainerConfig struct {
	Name             string   `yaml:"name,omitempty"`
	SideEffectBuffer int      `yaml:"side_effect_buffer,omitempty"`
	StopTimeout      Duration `yaml:"stop_timeout,omitempty"`
	IntentWorkers    int      `yaml:"intent_workers,omitempty"`
}

// PromotionConfig is a discount rule evaluated against the cart.
type PromotionConfig struct {
	ID         string `yaml:"id"`
	Expression string `yaml:"expression"`
}

// StepConfig is one action of the scripted demo scenario.
type StepConfig struct {
	Action   string   `yaml:"action"`
	SKU      string   `yaml:"sku,omitempty"`
	Price    string   `yaml:"price,omitempty"`
	Quantity int      `yaml:"quantity,omitempty"`
	Duration Duration `yaml:"duration,omitempty"`
}

// CheckoutConfig configures the checkout demo host.
type CheckoutConfig struct {
	Currency          string            `yaml:"currency,omitempty"`
	ProcessingDelay   Duration          `yaml:"processing_delay,omitempty"`
	HeartbeatInterval Duration          `yaml:"heartbeat_interval,omitempty"`
	Promotions        []PromotionConfig `yaml:"promotions,omitempty"`
	Scenario          []StepConfig      `yaml:"scenario,omitempty"`
	ExitAfterScenario bool              `yaml:"exit_after_scenario,omitempty"`
}

// Config is the root configuration structure for the demo.
type Config struct {
	Name      string          `yaml:"name,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Container ContainerConfig `yaml:"container"`
	Checkout  CheckoutConfig  `yaml:"checkout"`
	HotReload bool            `yaml:"hot_reload,omitempty"`
	Source    string          `yaml:"-"`
}

// Load reads, validates and decodes the configuration file from disk.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	raw, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", abs, err)
	}
	cfg, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", abs, err)
	}
	cfg.Source = abs
	return cfg, nil
}

// Parse validates raw YAML against the schema and decodes it.
func Parse(raw []byte) (*Config, error) {
	if err := Validate(raw); err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// ContainerName returns the configured container name, falling back to the
// top-level name and finally to "checkout".
func (c *Config) ContainerName() string {
	if c == nil {
		return "checkout"
	}
	if name := strings.TrimSpace(c.Container.Name); name != "" {
		return name
	}
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return "checkout"
}
