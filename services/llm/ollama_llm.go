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
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultOllamaBaseURL = "http://localhost:11434"

// OllamaConfig configures a local Ollama backend.
type OllamaConfig struct {
	BaseURL string
	Model   string
}

// OllamaClient talks to Ollama through langchaingo.
//
// Ollama has no native n parameter, so BatchGenerate issues n sequential
// requests.
type OllamaClient struct {
	llm   llms.Model
	model string
}

func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("OLLAMA_MODEL")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama: model not set")
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")

	backend, err := ollama.New(ollama.WithModel(cfg.Model), ollama.WithServerURL(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("creating ollama client: %w", err)
	}
	slog.Info("Initializing Ollama client", "base_url", cfg.BaseURL, "model", cfg.Model)
	return NewOllamaClientWithModel(backend, cfg.Model), nil
}

// NewOllamaClientWithModel wraps an existing langchaingo model.
func NewOllamaClientWithModel(backend llms.Model, model string) *OllamaClient {
	return &OllamaClient{llm: backend, model: model}
}

// Generate requests JSON output. The schema is already embedded in the
// system prompt, so only JSON mode is enforced here.
func (o *OllamaClient) Generate(ctx context.Context, messages []Message, schema *jsonschema.Definition) (string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model))

	if len(messages) == 0 {
		return "", ErrEmptyMessages
	}

	var opts []llms.CallOption
	if schema != nil {
		opts = append(opts, llms.WithJSONMode())
	}
	out, err := o.complete(ctx, messages, opts...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ollama generate failed")
		return "", err
	}
	return out, nil
}

func (o *OllamaClient) BatchGenerate(ctx context.Context, messages []Message, temperature float32, n int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "OllamaClient.BatchGenerate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model), attribute.Int("llm.n", n))

	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	if n < 1 {
		return nil, ErrInvalidN
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		text, err := o.complete(ctx, messages, llms.WithTemperature(float64(temperature)))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "ollama batch generate failed")
			return nil, fmt.Errorf("response %d of %d: %w", i+1, n, err)
		}
		out = append(out, text)
	}
	return out, nil
}

func (o *OllamaClient) complete(ctx context.Context, messages []Message, opts ...llms.CallOption) (string, error) {
	resp, err := o.llm.GenerateContent(ctx, toLangChainMessages(messages), opts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Content, nil
}

func toLangChainMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, len(messages))
	for i, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out[i] = llms.TextParts(role, m.Content)
	}
	return out
}
