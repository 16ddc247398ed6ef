// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the promptfusion CLI configuration from
// ~/.promptfusion/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/optimizer"
	"github.com/AleutianAI/promptfusion/services/promptopt/telemetry"
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// Config is the on-disk CLI configuration.
type Config struct {
	Logging   LoggingConfig    `yaml:"logging"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Store     StoreConfig      `yaml:"store"`
	Engine    EngineConfig     `yaml:"engine"`
	Providers ProvidersConfig  `yaml:"providers"`
	Optimizer OptimizerConfig  `yaml:"optimizer"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=auto text json"`
	Dir    string `yaml:"dir,omitempty"`
}

type StoreConfig struct {
	Path       string        `yaml:"path" validate:"required"`
	GCInterval time.Duration `yaml:"gc_interval" validate:"gte=0"`
}

type EngineConfig struct {
	NodeTimeout   time.Duration `yaml:"node_timeout" validate:"gt=0"`
	MaxWavefronts int           `yaml:"max_wavefronts" validate:"gt=0"`
}

// ProvidersConfig selects the models used when a topology does not name
// its own. A nil Teacher means the student also teaches.
type ProvidersConfig struct {
	Student llm.Provider  `yaml:"student"`
	Teacher *llm.Provider `yaml:"teacher,omitempty"`
}

type OptimizerConfig struct {
	Distillation optimizer.DistillationConfig `yaml:"distillation"`

	// Seed fixes sampling for reproducible runs. Zero seeds from the clock.
	Seed uint64 `yaml:"seed,omitempty"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "auto"},
		Telemetry: telemetry.Config{
			ServiceName:    "promptfusion",
			ServiceVersion: "0.1.0",
			Environment:    "development",
			TraceExporter:  telemetry.ExporterNone,
			MetricExporter: telemetry.ExporterNone,
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
		},
		Store: StoreConfig{Path: "~/.promptfusion/models", GCInterval: 10 * time.Minute},
		Engine: EngineConfig{
			NodeTimeout:   2 * time.Minute,
			MaxWavefronts: 1000,
		},
		Providers: ProvidersConfig{
			Student: llm.Provider{
				ID:         llm.ProviderOllama,
				ModelID:    "llama3",
				APIBase:    "http://localhost:11434",
				MaxRetries: 2,
			},
		},
		Optimizer: OptimizerConfig{Distillation: optimizer.DefaultDistillationConfig()},
	}
}

// DefaultPath is ~/.promptfusion/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".promptfusion", "config.yaml"), nil
}

// Load reads path, or DefaultPath when path is empty. The default file is
// created on first run; an explicit path must exist. Unset keys keep their
// defaults.
func Load(path string) (Config, error) {
	explicit := path != ""
	if !explicit {
		var err error
		if path, err = DefaultPath(); err != nil {
			return Config{}, err
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !explicit {
		if err := writeDefault(path); err != nil {
			return Config{}, err
		}
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read the config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	cfg.Store.Path = ExpandHome(cfg.Store.Path)
	cfg.Logging.Dir = ExpandHome(cfg.Logging.Dir)
	return cfg, nil
}

// Validate checks struct tags on the whole tree.
func (c Config) Validate() error {
	return configValidate.Struct(c)
}

func writeDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
