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
	"errors"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of a chat conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System returns a system message.
func System(content string) Message { return Message{Role: RoleSystem, Content: content} }

// User returns a user message.
func User(content string) Message { return Message{Role: RoleUser, Content: content} }

// Assistant returns an assistant message.
func Assistant(content string) Message { return Message{Role: RoleAssistant, Content: content} }

// Model is the language-model capability consumed by graph nodes and optimizers.
//
// Generate must return JSON text conforming to schema when schema is non-nil.
// BatchGenerate returns n free-form completions sampled at the given temperature.
type Model interface {
	Generate(ctx context.Context, messages []Message, schema *jsonschema.Definition) (string, error)
	BatchGenerate(ctx context.Context, messages []Message, temperature float32, n int) ([]string, error)
}

var (
	// ErrNoChoices is returned when a backend answers without any completion.
	ErrNoChoices = errors.New("model returned no choices")

	// ErrEmptyMessages is returned when a call carries no messages.
	ErrEmptyMessages = errors.New("messages must not be empty")

	// ErrUnsupportedProvider is returned by NewFromProvider for unknown provider ids.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrMissingAPIKey is returned when a provider that needs a key has none.
	ErrMissingAPIKey = errors.New("api key not configured")

	// ErrInvalidN is returned when BatchGenerate is asked for fewer than one response.
	ErrInvalidN = errors.New("n must be at least 1")
)
