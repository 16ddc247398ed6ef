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
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

const (
	// DefaultGateInstruction is used when the profile carries no instruction.
	DefaultGateInstruction = "Classify the input into one of the output classes."

	// ClassificationField is the single field of a gate's output schema.
	ClassificationField = "classification"
)

// Gate classifies its single input and routes it to the winning label.
//
// The original input value, not a model-produced one, is written to every
// destination of the winning label. Only that label's sockets fire.
type Gate struct {
	meta
	inputPorts
	outputPorts
	field     Field
	classes   []string
	inSchema  *Schema
	outSchema *Schema
}

// NewGate declares a classifier over field with the given class labels.
func NewGate(field Field, classes []string) (*Gate, error) {
	if err := field.Validate(); err != nil {
		return nil, fmt.Errorf("gate field: %w", err)
	}
	if len(classes) == 0 {
		return nil, fmt.Errorf("%w: gate needs at least one class", ErrInvalidField)
	}
	seen := make(map[string]struct{}, len(classes))
	for _, c := range classes {
		if c == "" {
			return nil, fmt.Errorf("%w: empty class label", ErrInvalidField)
		}
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("%w: duplicate class label %q", ErrInvalidField, c)
		}
		seen[c] = struct{}{}
	}

	field = field.normalized()
	classes = slices.Clone(classes)
	return &Gate{
		inputPorts:  newInputPorts([]Field{field}),
		outputPorts: newOutputPorts(classes),
		field:       field,
		classes:     classes,
		inSchema:    NewSchema([]Field{field}),
		outSchema:   NewSchema([]Field{StringField(ClassificationField).WithAllowedValues(classes...)}),
	}, nil
}

func (g *Gate) Kind() Kind { return KindGate }

// IsLazy reports whether the classified field is variadic.
func (g *Gate) IsLazy() bool { return g.field.Variadic }

// Field returns the classified field.
func (g *Gate) Field() Field { return g.field }

// Classes returns the configured labels in order.
func (g *Gate) Classes() []string { return slices.Clone(g.classes) }

func (g *Gate) OutputSchema() *Schema { return g.outSchema }

// Generate asks the model for a label and forwards the input unchanged.
func (g *Gate) Generate(ctx context.Context, call Call) (NodeOutput, error) {
	inputs, err := g.inSchema.Validate(call.Inputs)
	if err != nil {
		return NodeOutput{}, err
	}

	response, err := complete(ctx, call, g.inSchema, g.outSchema, DefaultGateInstruction, inputs)
	if err != nil {
		return NodeOutput{}, err
	}

	label, err := g.decodeLabel(response)
	if err != nil {
		return NodeOutput{}, err
	}

	out := newNodeOutput()
	out.emit(g.conns[label], call.Inputs[g.field.Name])
	return out, nil
}

func (g *Gate) decodeLabel(response string) (string, error) {
	var decoded map[string]any
	if err := json.Unmarshal([]byte(response), &decoded); err != nil {
		return "", fmt.Errorf("%w: invalid JSON: %v", ErrModelContract, err)
	}
	for k := range decoded {
		if k != ClassificationField {
			return "", fmt.Errorf("%w: unexpected field %q", ErrModelContract, k)
		}
	}
	label, ok := decoded[ClassificationField].(string)
	if !ok {
		return "", fmt.Errorf("%w: missing string field %q", ErrModelContract, ClassificationField)
	}
	if !slices.Contains(g.classes, label) {
		return "", fmt.Errorf("%w: %w: %q", ErrModelContract, ErrInvalidClass, label)
	}
	return label, nil
}

func (g *Gate) kwargs() NodeKwargs {
	f := g.field
	return NodeKwargs{ClassificationField: &f, OutputClasses: g.Classes(), Hint: g.hint}
}
