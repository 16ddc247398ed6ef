// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"fmt"
	"log/slog"
)

// Provider ids as written by the graph editor.
const (
	ProviderOpenAI = "openAi"
	ProviderOllama = "ollama"
)

// Provider describes which backend serves a Model.
type Provider struct {
	ID           string `json:"providerId" yaml:"provider_id" validate:"required,oneof=openAi ollama"`
	ModelID      string `json:"modelId" yaml:"model_id"`
	APIKey       string `json:"-" yaml:"-"`
	APIKeyEnv    string `json:"-" yaml:"api_key_env,omitempty"`
	Organization string `json:"organization,omitempty" yaml:"organization,omitempty"`
	APIBase      string `json:"apiBase,omitempty" yaml:"api_base,omitempty"`

	// RequestsPerSecond of zero disables client-side rate limiting.
	RequestsPerSecond float64 `json:"-" yaml:"requests_per_second,omitempty" validate:"gte=0"`
	// MaxRetries is the number of extra attempts after the first failure.
	MaxRetries int `json:"-" yaml:"max_retries,omitempty" validate:"gte=0"`
}

// NewFromProvider builds the Model for p, wrapped with retries and rate limiting.
func NewFromProvider(p Provider, logger *slog.Logger) (Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		base Model
		err  error
	)
	switch p.ID {
	case ProviderOpenAI:
		env := p.APIKeyEnv
		if env == "" {
			env = "OPENAI_API_KEY"
		}
		base, err = NewOpenAIClient(OpenAIConfig{
			APIKey:       ResolveSecret(p.APIKey, env, "openai_api_key"),
			BaseURL:      p.APIBase,
			Organization: p.Organization,
			Model:        p.ModelID,
		})
	case ProviderOllama:
		base, err = NewOllamaClient(OllamaConfig{BaseURL: p.APIBase, Model: p.ModelID})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, p.ID)
	}
	if err != nil {
		return nil, err
	}
	return Wrap(base, p, logger), nil
}

// Wrap applies the retry and rate limit policy of p to m.
func Wrap(m Model, p Provider, logger *slog.Logger) Model {
	if p.MaxRetries > 0 {
		m = NewRetrying(m, RetryConfig{MaxTries: uint(p.MaxRetries) + 1, Logger: logger})
	}
	if p.RequestsPerSecond > 0 {
		m = NewRateLimited(m, p.RequestsPerSecond, 1)
	}
	return m
}
