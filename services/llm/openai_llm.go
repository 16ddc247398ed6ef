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
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("promptfusion.llm")

const (
	DefaultOpenAIModel = "gpt-4o-mini"

	// outputSchemaName is the response_format schema name sent to the API.
	outputSchemaName = "OutputSchema"
)

// OpenAIConfig configures an OpenAI-compatible chat completion backend.
type OpenAIConfig struct {
	APIKey       *Secret
	BaseURL      string
	Organization string
	Model        string
	Timeout      time.Duration
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client for the chat completions API.
//
// The key is kept in a memguard enclave and only revealed while a request
// is being sent. BaseURL may point at any OpenAI-compatible server; a bare
// host gets the /v1 suffix appended.
func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if cfg.APIKey == nil {
		cfg.APIKey = ResolveSecret("", "OPENAI_API_KEY", "openai_api_key")
	}
	if cfg.APIKey == nil {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
		slog.Warn("OpenAI model not set, using default", "model", cfg.Model)
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}

	conf := openai.DefaultConfig("")
	if cfg.BaseURL != "" {
		conf.BaseURL = normalizeBaseURL(cfg.BaseURL)
	}
	conf.OrgID = cfg.Organization
	conf.HTTPClient = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &bearerTransport{secret: cfg.APIKey, base: http.DefaultTransport},
	}

	slog.Info("Initializing OpenAI client", "model", cfg.Model, "base_url", conf.BaseURL)
	return &OpenAIClient{
		client: openai.NewClientWithConfig(conf),
		model:  cfg.Model,
	}, nil
}

func normalizeBaseURL(raw string) string {
	raw = strings.TrimSuffix(raw, "/")
	if !strings.HasSuffix(raw, "/v1") {
		raw += "/v1"
	}
	return raw
}

// Generate asks for a single completion constrained by a strict JSON schema.
func (o *OpenAIClient) Generate(ctx context.Context, messages []Message, schema *jsonschema.Definition) (string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Generate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model), attribute.Int("llm.messages", len(messages)))

	if len(messages) == 0 {
		return "", ErrEmptyMessages
	}

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(messages),
	}
	if schema != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   outputSchemaName,
				Schema: schema,
				Strict: true,
			},
		}
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		span.SetStatus(codes.Error, ErrNoChoices.Error())
		return "", ErrNoChoices
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// BatchGenerate samples n completions in one request.
func (o *OpenAIClient) BatchGenerate(ctx context.Context, messages []Message, temperature float32, n int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.BatchGenerate")
	defer span.End()
	span.SetAttributes(attribute.String("llm.model", o.model), attribute.Int("llm.n", n))

	if len(messages) == 0 {
		return nil, ErrEmptyMessages
	}
	if n < 1 {
		return nil, ErrInvalidN
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Messages:    toOpenAIMessages(messages),
		Temperature: temperature,
		N:           n,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "chat completion failed")
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}

	out := make([]string, 0, len(resp.Choices))
	for _, c := range resp.Choices {
		out = append(out, c.Message.Content)
	}
	return out, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, len(messages))
	for i, m := range messages {
		role := openai.ChatMessageRoleUser
		switch m.Role {
		case RoleSystem:
			role = openai.ChatMessageRoleSystem
		case RoleAssistant:
			role = openai.ChatMessageRoleAssistant
		}
		out[i] = openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}
	return out
}
