// Package config loads the YAML configuration for the flow rollup engine.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// IndexStrategy controls how document-sink index/table names roll over time.
type IndexStrategy string

const (
	Daily   IndexStrategy = "DAILY"
	Hourly  IndexStrategy = "HOURLY"
	Monthly IndexStrategy = "MONTHLY"
)

// BranchesConfig toggles which grouping dimensions the pipeline computes.
// Each branch owns its own trigger engine and runs independently of the
// others; disabling one only stops its summaries from being emitted. A
// config with no branches set at all (the zero value, e.g. an omitted
// "branches:" block) defaults to all four enabled rather than all disabled;
// to run with a proper subset, set at least one field explicitly true.
type BranchesConfig struct {
	Total            bool `yaml:"total"`
	TopApps          bool `yaml:"top_apps"`
	TopHosts         bool `yaml:"top_hosts"`
	TopConversations bool `yaml:"top_conversations"`
}

// BusConfig describes the ordered, replayable message bus the engine reads
// flow records from and, optionally, re-publishes summaries to. Field names
// follow the source system's Kafka-flavored vocabulary even though this
// engine realizes the bus with NATS JetStream (see DESIGN.md).
type BusConfig struct {
	BootstrapServers string `yaml:"bootstrap_servers"`
	FlowSourceTopic  string `yaml:"flow_source_topic"`
	FlowDestTopic    string `yaml:"flow_dest_topic,omitempty"`
	GroupID          string `yaml:"group_id"`
	AutoCommit       bool   `yaml:"auto_commit"`
}

// SinkConfig describes the document store summaries are upserted into.
type SinkConfig struct {
	Driver        string        `yaml:"driver"` // "clickhouse" or "sqlite"
	URL           string        `yaml:"url"`
	User          string        `yaml:"user,omitempty"`
	Password      string        `yaml:"password,omitempty"`
	FlowIndex     string        `yaml:"flow_index"`
	IndexStrategy IndexStrategy `yaml:"index_strategy"`
}

// RedisConfig describes the offset-commit store.
type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// WindowingConfig holds the fixed-window and watermark tuning knobs.
type WindowingConfig struct {
	FixedWindowSizeMs      int64 `yaml:"fixed_window_size_ms"`
	MaxFlowDurationMs      int64 `yaml:"max_flow_duration_ms"`
	DefaultMaxInputDelayMs int64 `yaml:"default_max_input_delay_ms"`
	LateProcessingDelayMs  int64 `yaml:"late_processing_delay_ms"`
	AllowedLatenessMs      int64 `yaml:"allowed_lateness_ms"`
}

// Config is the top-level configuration struct for the flow rollup engine.
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	Sink      SinkConfig      `yaml:"sink"`
	Redis     RedisConfig     `yaml:"redis"`
	Windowing WindowingConfig `yaml:"windowing"`
	Branches  BranchesConfig  `yaml:"branches"`
	TopK      int             `yaml:"top_k"`

	MetricsAddr string `yaml:"metrics_addr"`
}

func (c *Config) applyDefaults() {
	if c.Windowing.FixedWindowSizeMs == 0 {
		c.Windowing.FixedWindowSizeMs = 60_000
	}
	if c.Windowing.MaxFlowDurationMs == 0 {
		c.Windowing.MaxFlowDurationMs = 900_000
	}
	if c.Windowing.DefaultMaxInputDelayMs == 0 {
		c.Windowing.DefaultMaxInputDelayMs = 300_000
	}
	if c.Windowing.LateProcessingDelayMs == 0 {
		c.Windowing.LateProcessingDelayMs = 60_000
	}
	if c.Windowing.AllowedLatenessMs == 0 {
		c.Windowing.AllowedLatenessMs = 14_400_000
	}
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9095"
	}
	if !c.Branches.Total && !c.Branches.TopApps && !c.Branches.TopHosts && !c.Branches.TopConversations {
		c.Branches = BranchesConfig{Total: true, TopApps: true, TopHosts: true, TopConversations: true}
	}
}

func (c *Config) validate() error {
	if c.Bus.BootstrapServers == "" {
		return fmt.Errorf("bus.bootstrap_servers is required")
	}
	if c.Bus.FlowSourceTopic == "" {
		return fmt.Errorf("bus.flow_source_topic is required")
	}
	if c.Sink.FlowIndex == "" {
		return fmt.Errorf("sink.flow_index is required")
	}
	switch c.Sink.IndexStrategy {
	case Daily, Hourly, Monthly:
	default:
		return fmt.Errorf("sink.index_strategy must be one of DAILY, HOURLY, MONTHLY, got %q", c.Sink.IndexStrategy)
	}
	if c.Windowing.FixedWindowSizeMs <= 0 {
		return fmt.Errorf("windowing.fixed_window_size_ms must be positive")
	}
	return nil
}

// LoadConfig reads the configuration from a YAML file, applies defaults for
// unset fields, and validates the required fields.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// LateProcessingDelay returns the configured late-pane coalescing delay as a
// time.Duration.
func (c *Config) LateProcessingDelay() time.Duration {
	return time.Duration(c.Windowing.LateProcessingDelayMs) * time.Millisecond
}
