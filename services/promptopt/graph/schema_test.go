// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldType(t *testing.T) {
	tests := []struct {
		raw     string
		want    FieldType
		wantErr bool
	}{
		{raw: "str", want: TypeString},
		{raw: "", want: TypeString},
		{raw: "String", want: TypeString},
		{raw: "int", want: TypeInt},
		{raw: "integer", want: TypeInt},
		{raw: "number", want: TypeFloat},
		{raw: "float", want: TypeFloat},
		{raw: " bool ", want: TypeBool},
		{raw: "list", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseFieldType(tt.raw)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidField)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestField_Validate(t *testing.T) {
	assert.NoError(t, StringField("q").Validate())
	assert.ErrorIs(t, StringField("  ").Validate(), ErrInvalidField)
	assert.ErrorIs(t, NewField("n", "decimal").Validate(), ErrInvalidField)
	assert.ErrorIs(t, NewField("n", TypeInt).WithAllowedValues("1").Validate(), ErrInvalidField)
}

func TestValidateFields_Duplicate(t *testing.T) {
	err := validateFields([]Field{StringField("a"), StringField("a")})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestSchema_Definition(t *testing.T) {
	s := NewSchema([]Field{
		StringField("label").WithAllowedValues("a", "b"),
		NewField("counts", TypeInt).AsVariadic(),
		NewField("ok", TypeBool),
	})

	want := &jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"label":  {Type: jsonschema.String, Enum: []string{"a", "b"}},
			"counts": {Type: jsonschema.Array, Items: &jsonschema.Definition{Type: jsonschema.Integer}},
			"ok":     {Type: jsonschema.Boolean},
		},
		Required:             []string{"label", "counts", "ok"},
		AdditionalProperties: false,
	}
	if diff := cmp.Diff(want, s.Definition()); diff != "" {
		t.Errorf("Definition() mismatch (-want +got):\n%s", diff)
	}
	assert.Contains(t, s.String(), `"additionalProperties":false`)
}

func TestSchema_Validate(t *testing.T) {
	s := NewSchema([]Field{
		StringField("text"),
		NewField("n", TypeInt),
		StringField("tags").AsVariadic(),
		StringField("mood").WithAllowedValues("happy", "sad"),
	})

	t.Run("valid values are normalized", func(t *testing.T) {
		got, err := s.Validate(map[string]any{
			"text":  "hi",
			"n":     3,
			"tags":  []string{"a", "b"},
			"mood":  "happy",
			"extra": true,
		})
		require.NoError(t, err)
		want := map[string]any{
			"text": "hi",
			"n":    float64(3),
			"tags": []any{"a", "b"},
			"mood": "happy",
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("Validate() mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("accumulator counts as list", func(t *testing.T) {
		_, err := s.Validate(map[string]any{
			"text": "hi", "n": 1, "tags": NewVariadic("x"), "mood": "sad",
		})
		require.NoError(t, err)
	})

	failures := []struct {
		name   string
		values map[string]any
		field  string
	}{
		{"missing", map[string]any{"n": 1, "tags": []string{}, "mood": "sad"}, "text"},
		{"wrong type", map[string]any{"text": 1, "n": 1, "tags": []string{}, "mood": "sad"}, "text"},
		{"fractional int", map[string]any{"text": "a", "n": 2.5, "tags": []string{}, "mood": "sad"}, "n"},
		{"scalar for list", map[string]any{"text": "a", "n": 1, "tags": "x", "mood": "sad"}, "tags"},
		{"outside enum", map[string]any{"text": "a", "n": 1, "tags": []string{}, "mood": "bored"}, "mood"},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Validate(tt.values)
			require.ErrorIs(t, err, ErrValidation)

			var fe *FieldError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.field, fe.Field)
		})
	}
}

func TestSchema_Decode(t *testing.T) {
	s := NewSchema([]Field{StringField("answer"), NewField("score", TypeFloat)})

	got, err := s.Decode(`{"answer":"yes","score":0.5}`)
	require.NoError(t, err)
	assert.Equal(t, "yes", got["answer"])
	assert.Equal(t, 0.5, got["score"])

	for _, response := range []string{
		`not json`,
		`{"answer":"yes"}`,
		`{"answer":1,"score":0.5}`,
		`{"answer":"yes","score":0.5,"note":"extra"}`,
		`[]`,
	} {
		_, err := s.Decode(response)
		assert.ErrorIs(t, err, ErrModelContract, response)
	}
}

func TestSchema_Encode(t *testing.T) {
	s := NewSchema([]Field{StringField("b"), NewField("a", TypeInt), StringField("c")})

	got, err := s.Encode(map[string]any{"a": 1, "b": "<x> & y"})
	require.NoError(t, err)
	assert.Equal(t, `{"b":"<x> & y","a":1}`, got)
}
