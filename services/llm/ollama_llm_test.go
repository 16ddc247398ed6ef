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
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// fakeLangChain is an llms.Model that records what it was sent.
type fakeLangChain struct {
	answers  []string
	err      error
	messages [][]llms.MessageContent
	options  []llms.CallOptions
}

func (f *fakeLangChain) GenerateContent(_ context.Context, messages []llms.MessageContent, opts ...llms.CallOption) (*llms.ContentResponse, error) {
	f.messages = append(f.messages, messages)
	var o llms.CallOptions
	for _, opt := range opts {
		opt(&o)
	}
	f.options = append(f.options, o)
	if f.err != nil {
		return nil, f.err
	}
	answer := "{}"
	if len(f.answers) > 0 {
		answer, f.answers = f.answers[0], f.answers[1:]
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: answer}}}, nil
}

func (f *fakeLangChain) Call(ctx context.Context, prompt string, opts ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, opts...)
}

func TestOllamaClient_GenerateMapsRolesAndJSONMode(t *testing.T) {
	fake := &fakeLangChain{answers: []string{`{"y":"1"}`}}
	client := NewOllamaClientWithModel(fake, "llama3")

	out, err := client.Generate(context.Background(),
		[]Message{System("s"), User("u"), Assistant("a"), User("u2")},
		&jsonschema.Definition{Type: jsonschema.Object})
	require.NoError(t, err)
	assert.Equal(t, `{"y":"1"}`, out)

	require.Len(t, fake.messages, 1)
	roles := make([]llms.ChatMessageType, 0, 4)
	for _, m := range fake.messages[0] {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []llms.ChatMessageType{
		llms.ChatMessageTypeSystem, llms.ChatMessageTypeHuman, llms.ChatMessageTypeAI, llms.ChatMessageTypeHuman,
	}, roles)
	assert.True(t, fake.options[0].JSONMode)
}

func TestOllamaClient_BatchGenerateLoops(t *testing.T) {
	fake := &fakeLangChain{answers: []string{"one", "two"}}
	client := NewOllamaClientWithModel(fake, "llama3")

	out, err := client.BatchGenerate(context.Background(), []Message{User("p")}, 0.7, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, out)
	require.Len(t, fake.options, 2)
	assert.InDelta(t, 0.7, fake.options[1].Temperature, 1e-6)
}

func TestOllamaClient_PropagatesErrors(t *testing.T) {
	boom := errors.New("ollama down")
	client := NewOllamaClientWithModel(&fakeLangChain{err: boom}, "llama3")

	_, err := client.Generate(context.Background(), []Message{User("p")}, nil)
	assert.ErrorIs(t, err, boom)

	_, err = client.BatchGenerate(context.Background(), []Message{User("p")}, 0, 1)
	assert.ErrorIs(t, err, boom)
}
