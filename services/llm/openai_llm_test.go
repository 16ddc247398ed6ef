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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Auth string
	Path string
	Body map[string]any
}

func newChatServer(t *testing.T, choices ...string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		mu.Lock()
		requests = append(requests, recordedRequest{Auth: r.Header.Get("Authorization"), Path: r.URL.Path, Body: body})
		mu.Unlock()

		out := make([]map[string]any, len(choices))
		for i, c := range choices {
			out[i] = map[string]any{
				"index":         i,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": c},
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"model":   "gpt-test",
			"choices": out,
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestOpenAIClient_GenerateSendsStrictSchema(t *testing.T) {
	srv, requests := newChatServer(t, `{"y":"5"}`)

	client, err := NewOpenAIClient(OpenAIConfig{
		APIKey:  NewSecret("sk-test"),
		BaseURL: srv.URL,
		Model:   "gpt-test",
	})
	require.NoError(t, err)

	schema := &jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{"y": {Type: jsonschema.String}},
		Required:   []string{"y"},
	}
	out, err := client.Generate(context.Background(), []Message{System("sys"), User(`{"x":"5"}`)}, schema)
	require.NoError(t, err)
	assert.Equal(t, `{"y":"5"}`, out)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "Bearer sk-test", req.Auth)
	assert.Equal(t, "/v1/chat/completions", req.Path)
	assert.Equal(t, "gpt-test", req.Body["model"])

	format, ok := req.Body["response_format"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "json_schema", format["type"])
	js := format["json_schema"].(map[string]any)
	assert.Equal(t, "OutputSchema", js["name"])
	assert.Equal(t, true, js["strict"])

	msgs := req.Body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestOpenAIClient_BatchGenerateReturnsAllChoices(t *testing.T) {
	srv, requests := newChatServer(t, "first", "second", "third")

	client, err := NewOpenAIClient(OpenAIConfig{APIKey: NewSecret("sk-test"), BaseURL: srv.URL + "/v1/"})
	require.NoError(t, err)

	out, err := client.BatchGenerate(context.Background(), []Message{User("propose")}, 0.7, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, out)

	require.Len(t, *requests, 1)
	body := (*requests)[0].Body
	assert.EqualValues(t, 3, body["n"])
	assert.InDelta(t, 0.7, body["temperature"], 1e-6)
	assert.Equal(t, DefaultOpenAIModel, body["model"])
}

func TestOpenAIClient_Validation(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: NewSecret("sk-test"), BaseURL: "http://127.0.0.1:1"})
	require.NoError(t, err)

	_, err = client.Generate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrEmptyMessages)

	_, err = client.BatchGenerate(context.Background(), []Message{User("x")}, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidN)
}

func TestNewOpenAIClient_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNormalizeBaseURL(t *testing.T) {
	assert.Equal(t, "http://host/v1", normalizeBaseURL("http://host"))
	assert.Equal(t, "http://host/v1", normalizeBaseURL("http://host/"))
	assert.Equal(t, "http://host/v1", normalizeBaseURL("http://host/v1"))
}

func TestSecret(t *testing.T) {
	assert.Nil(t, NewSecret("   "))

	s := NewSecret(" key ")
	require.NotNil(t, s)
	assert.Equal(t, "<redacted>", s.String())

	var got string
	require.NoError(t, s.Reveal(func(v string) error {
		got = v
		return nil
	}))
	assert.Equal(t, "key", got)

	var unset *Secret
	assert.ErrorIs(t, unset.Reveal(func(string) error { return nil }), ErrMissingAPIKey)
}

func TestResolveSecret_FromEnv(t *testing.T) {
	t.Setenv("PF_TEST_KEY", "from-env")
	s := ResolveSecret("", "PF_TEST_KEY", "")
	require.NotNil(t, s)
	require.NoError(t, s.Reveal(func(v string) error {
		assert.Equal(t, "from-env", v)
		return nil
	}))
}
