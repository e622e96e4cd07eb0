// Package config loads and validates the host configuration file.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/justyntemme/gorack/pkg/engine"
)

// Config holds everything the host needs to come up: engine identity,
// audio parameters, transport defaults and the control surfaces.
type Config struct {
	Name        string  `yaml:"name"`
	ProcessMode string  `yaml:"process_mode"`
	SampleRate  float64 `yaml:"sample_rate"`
	BufferSize  uint32  `yaml:"buffer_size"`
	Tempo       float64 `yaml:"tempo"`
	BeatsPerBar float64 `yaml:"beats_per_bar"`
	Link        bool    `yaml:"link"`
	OSCPort     int     `yaml:"osc_port"`
	LogLevel    string  `yaml:"log_level"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Name:        "gorack",
		ProcessMode: "rack",
		SampleRate:  48000,
		BufferSize:  512,
		Tempo:       120,
		BeatsPerBar: 4,
		Link:        false,
		OSCPort:     0,
		LogLevel:    "info",
	}
}

// Load reads path and merges it over the defaults, so a partial file only
// overrides what it mentions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges the engine cannot recover from at runtime.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name must not be empty")
	}
	if _, err := c.EngineProcessMode(); err != nil {
		return err
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample_rate must be positive, got %v", c.SampleRate)
	}
	if c.BufferSize == 0 {
		return fmt.Errorf("buffer_size must be positive")
	}
	if c.Tempo <= 0 {
		return fmt.Errorf("tempo must be positive, got %v", c.Tempo)
	}
	if c.BeatsPerBar < 1 {
		return fmt.Errorf("beats_per_bar must be at least 1, got %v", c.BeatsPerBar)
	}
	if c.OSCPort < 0 || c.OSCPort > 65535 {
		return fmt.Errorf("osc_port out of range: %d", c.OSCPort)
	}
	return nil
}

// EngineProcessMode maps the config string onto the engine's mode.
func (c *Config) EngineProcessMode() (engine.ProcessMode, error) {
	switch c.ProcessMode {
	case "rack":
		return engine.ProcessModeRack, nil
	case "patchbay":
		return engine.ProcessModePatchbay, nil
	case "bridge":
		return engine.ProcessModeBridge, nil
	case "multi":
		return engine.ProcessModeMulti, nil
	default:
		return 0, fmt.Errorf("unknown process_mode %q", c.ProcessMode)
	}
}
