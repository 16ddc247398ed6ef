// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/promptfusion/services/llm"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoad_CreatesDefault(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load("")
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(home, ".promptfusion", "config.yaml"))
	require.NoError(t, err, "default config file should be written")
	assert.Equal(t, filepath.Join(home, ".promptfusion", "models"), cfg.Store.Path)
	assert.Equal(t, 2*time.Minute, cfg.Engine.NodeTimeout)

	again, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, cfg, again, "written defaults read back unchanged")
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
engine:
  node_timeout: 30s
providers:
  student:
    provider_id: openAi
    model_id: gpt-4o-mini
    api_key_env: MY_KEY
  teacher:
    provider_id: openAi
    model_id: gpt-4o
    requests_per_second: 2
optimizer:
  seed: 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Engine.NodeTimeout)
	assert.Equal(t, 1000, cfg.Engine.MaxWavefronts)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, llm.ProviderOpenAI, cfg.Providers.Student.ID)
	assert.Equal(t, "MY_KEY", cfg.Providers.Student.APIKeyEnv)
	require.NotNil(t, cfg.Providers.Teacher)
	assert.Equal(t, 2.0, cfg.Providers.Teacher.RequestsPerSecond)
	assert.Equal(t, uint64(42), cfg.Optimizer.Seed)
	assert.Equal(t, DefaultConfig().Optimizer.Distillation, cfg.Optimizer.Distillation)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", "engine: [\n"},
		{"bad level", "logging:\n  level: loud\n"},
		{"bad provider", "providers:\n  student:\n    provider_id: anthropic\n"},
		{"bad teacher", "providers:\n  teacher:\n    provider_id: \"\"\n"},
		{"zero timeout", "engine:\n  node_timeout: 0s\n"},
		{"bad fraction", "optimizer:\n  distillation:\n    train_fraction: 1.5\n"},
		{"bad exporter", "telemetry:\n  trace_exporter: zipkin\n"},
		{"empty store", "store:\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ExplicitMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	assert.Equal(t, filepath.Join(home, "x"), ExpandHome("~/x"))
	assert.Equal(t, "/abs", ExpandHome("/abs"))
	assert.Equal(t, "", ExpandHome(""))
}
