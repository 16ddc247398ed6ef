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
	"fmt"
	"slices"
)

// DefaultProcessorInstruction is used when the profile carries no instruction.
const DefaultProcessorInstruction = "Generate an output following the output schema format."

// Processor is a general model-backed transform.
//
// It is lazy when any input is variadic, so fan-in joins collect every
// upstream contribution before it fires.
type Processor struct {
	meta
	inputPorts
	outputPorts
	outputs   []Field
	inSchema  *Schema
	outSchema *Schema
}

// NewProcessor declares a transform from inputs to outputs.
func NewProcessor(inputs, outputs []Field) (*Processor, error) {
	if err := validateFields(inputs); err != nil {
		return nil, fmt.Errorf("processor inputs: %w", err)
	}
	if err := validateFields(outputs); err != nil {
		return nil, fmt.Errorf("processor outputs: %w", err)
	}
	inputs, outputs = normalizeFields(inputs), normalizeFields(outputs)
	return &Processor{
		inputPorts:  newInputPorts(inputs),
		outputPorts: newOutputPorts(fieldNames(outputs)),
		outputs:     outputs,
		inSchema:    NewSchema(inputs),
		outSchema:   NewSchema(outputs),
	}, nil
}

func (p *Processor) Kind() Kind            { return KindProcessor }
func (p *Processor) IsLazy() bool          { return p.anyVariadic() }
func (p *Processor) Inputs() []Field       { return slices.Clone(p.fields) }
func (p *Processor) Outputs() []Field      { return slices.Clone(p.outputs) }
func (p *Processor) InputSchema() *Schema  { return p.inSchema }
func (p *Processor) OutputSchema() *Schema { return p.outSchema }

// Generate validates inputs, asks the model and routes every output field.
func (p *Processor) Generate(ctx context.Context, call Call) (NodeOutput, error) {
	inputs, err := p.inSchema.Validate(call.Inputs)
	if err != nil {
		return NodeOutput{}, err
	}

	response, err := complete(ctx, call, p.inSchema, p.outSchema, DefaultProcessorInstruction, inputs)
	if err != nil {
		return NodeOutput{}, err
	}
	result, err := p.outSchema.Decode(response)
	if err != nil {
		return NodeOutput{}, err
	}

	out := newNodeOutput()
	for _, f := range p.outputs {
		out.emit(p.conns[f.Name], result[f.Name])
	}
	return out, nil
}

func (p *Processor) kwargs() NodeKwargs {
	return NodeKwargs{Inputs: p.Inputs(), Outputs: p.Outputs(), Hint: p.hint}
}
