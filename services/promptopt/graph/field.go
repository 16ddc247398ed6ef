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
	"fmt"
	"slices"
	"strings"
)

// FieldType is the scalar type tag of a field.
type FieldType string

const (
	TypeString FieldType = "str"
	TypeInt    FieldType = "int"
	TypeFloat  FieldType = "float"
	TypeBool   FieldType = "bool"
)

// ParseFieldType normalizes a type tag. Editor aliases such as "string" and
// "number" are accepted. An empty tag means string.
func ParseFieldType(raw string) (FieldType, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "str", "string", "text":
		return TypeString, nil
	case "int", "integer":
		return TypeInt, nil
	case "float", "number", "double":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	default:
		return "", fmt.Errorf("%w: unsupported type %q", ErrInvalidField, raw)
	}
}

// Field declares one named value of a node's input or output contract.
//
// A variadic field holds a list of values of its type. AllowedValues, when
// set, restricts a string field to an enumeration.
type Field struct {
	Name          string    `json:"name"`
	Type          FieldType `json:"type"`
	Variadic      bool      `json:"is_variadic"`
	AllowedValues []string  `json:"allowed_values,omitempty"`
}

// NewField returns a scalar field.
func NewField(name string, t FieldType) Field {
	return Field{Name: name, Type: t}
}

// StringField is shorthand for NewField(name, TypeString).
func StringField(name string) Field {
	return NewField(name, TypeString)
}

// AsVariadic returns a copy of f that accumulates a list.
func (f Field) AsVariadic() Field {
	f.Variadic = true
	return f
}

// WithAllowedValues returns a copy of f restricted to values.
func (f Field) WithAllowedValues(values ...string) Field {
	f.AllowedValues = slices.Clone(values)
	return f
}

// Validate checks the declaration itself.
func (f Field) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidField)
	}
	if _, err := ParseFieldType(string(f.Type)); err != nil {
		return err
	}
	if len(f.AllowedValues) > 0 && f.Type != TypeString && f.Type != "" {
		return fmt.Errorf("%w: %q: allowed values require a string field", ErrInvalidField, f.Name)
	}
	return nil
}

func (f Field) normalized() Field {
	t, err := ParseFieldType(string(f.Type))
	if err == nil {
		f.Type = t
	}
	f.AllowedValues = slices.Clone(f.AllowedValues)
	return f
}

func fieldNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

func validateFields(fields []Field) error {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if err := f.Validate(); err != nil {
			return err
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("%w: duplicate field %q", ErrInvalidField, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

func normalizeFields(fields []Field) []Field {
	out := make([]Field, len(fields))
	for i, f := range fields {
		out[i] = f.normalized()
	}
	return out
}
