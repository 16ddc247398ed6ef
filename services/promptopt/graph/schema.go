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
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/sashabaranov/go-openai/jsonschema"
)

// Schema is the JSON contract of a node's inputs or outputs.
//
// Every declared field is required and no additional properties are
// allowed, which is what strict structured-output endpoints expect.
type Schema struct {
	fields []Field
	props  map[string]jsonschema.Definition
	def    jsonschema.Definition
	text   string
}

// NewSchema builds the schema for fields. Fields are assumed validated.
func NewSchema(fields []Field) *Schema {
	s := &Schema{
		fields: slices.Clone(fields),
		props:  make(map[string]jsonschema.Definition, len(fields)),
	}
	for _, f := range fields {
		s.props[f.Name] = fieldDefinition(f)
	}
	s.def = jsonschema.Definition{
		Type:                 jsonschema.Object,
		Properties:           s.props,
		Required:             fieldNames(fields),
		AdditionalProperties: false,
	}
	raw, err := json.Marshal(&s.def)
	if err != nil {
		raw = []byte("{}")
	}
	s.text = string(raw)
	return s
}

func fieldDefinition(f Field) jsonschema.Definition {
	var base jsonschema.Definition
	switch f.Type {
	case TypeInt:
		base.Type = jsonschema.Integer
	case TypeFloat:
		base.Type = jsonschema.Number
	case TypeBool:
		base.Type = jsonschema.Boolean
	default:
		base.Type = jsonschema.String
		base.Enum = slices.Clone(f.AllowedValues)
	}
	if !f.Variadic {
		return base
	}
	return jsonschema.Definition{Type: jsonschema.Array, Items: &base}
}

// Definition returns a copy of the schema for model calls.
func (s *Schema) Definition() *jsonschema.Definition {
	def := s.def
	return &def
}

// Fields returns the declared fields in order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.fields)
}

// String returns the JSON encoding of the schema.
func (s *Schema) String() string {
	return s.text
}

// Validate checks values against the schema and returns the declared
// fields as plain decoded JSON values. Undeclared keys are dropped.
func (s *Schema) Validate(values map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding inputs: %v", ErrValidation, err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding inputs: %v", ErrValidation, err)
	}

	out := make(map[string]any, len(s.fields))
	for _, f := range s.fields {
		v, ok := decoded[f.Name]
		if !ok || v == nil {
			return nil, &FieldError{Field: f.Name, Reason: "missing required value"}
		}
		if !jsonschema.Validate(s.props[f.Name], v) {
			return nil, &FieldError{Field: f.Name, Reason: "expected " + describeType(f)}
		}
		out[f.Name] = v
	}
	return out, nil
}

// Decode parses a model response and checks it against the schema. Keys
// the schema does not declare are a contract violation.
func (s *Schema) Decode(response string) (map[string]any, error) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(response), &decoded); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrModelContract, err)
	}
	for k := range decoded {
		if _, ok := s.props[k]; !ok {
			return nil, fmt.Errorf("%w: unexpected field %q", ErrModelContract, k)
		}
	}
	for _, f := range s.fields {
		v, ok := decoded[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: missing field %q", ErrModelContract, f.Name)
		}
		if !jsonschema.Validate(s.props[f.Name], v) {
			return nil, fmt.Errorf("%w: field %q: expected %s", ErrModelContract, f.Name, describeType(f))
		}
	}
	return decoded, nil
}

// Encode renders values as compact JSON with keys in declaration order.
func (s *Schema) Encode(values map[string]any) (string, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	first := true
	for _, f := range s.fields {
		v, ok := values[f.Name]
		if !ok {
			continue
		}
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err := writeJSON(&buf, f.Name); err != nil {
			return "", err
		}
		buf.WriteByte(':')
		if err := writeJSON(&buf, v); err != nil {
			return "", err
		}
	}
	buf.WriteByte('}')
	return buf.String(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encoder terminates every value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func describeType(f Field) string {
	t := string(f.Type)
	if len(f.AllowedValues) > 0 {
		t = fmt.Sprintf("one of %v", f.AllowedValues)
	}
	if f.Variadic {
		return "list of " + t
	}
	return t
}
