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

// InputNode is the entry point of a graph. It has no sockets and passes the
// caller's validated inputs to its connections without calling the model.
type InputNode struct {
	meta
	outputPorts
	fields []Field
	schema *Schema
}

// NewInputNode declares the graph inputs.
func NewInputNode(fields ...Field) (*InputNode, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	fields = normalizeFields(fields)
	return &InputNode{
		outputPorts: newOutputPorts(fieldNames(fields)),
		fields:      fields,
		schema:      NewSchema(fields),
	}, nil
}

func (n *InputNode) Kind() Kind               { return KindInput }
func (n *InputNode) InputNames() []string     { return nil }
func (n *InputNode) ListensTo() []Socket      { return nil }
func (n *InputNode) Reads() []StateDescriptor { return nil }
func (n *InputNode) IsLazy() bool             { return false }
func (n *InputNode) Fields() []Field          { return slices.Clone(n.fields) }
func (n *InputNode) Schema() *Schema          { return n.schema }

// SocketFor always fails: nothing can be wired into an input node.
func (n *InputNode) SocketFor(field string) (Socket, StateDescriptor, error) {
	return Socket{}, StateDescriptor{}, fmt.Errorf("%w: input node has no input sockets", ErrNoInputSockets)
}

// Generate validates the caller's inputs and fans them out.
func (n *InputNode) Generate(_ context.Context, call Call) (NodeOutput, error) {
	validated, err := n.schema.Validate(call.Inputs)
	if err != nil {
		return NodeOutput{}, fmt.Errorf("input node: %w", err)
	}

	out := newNodeOutput()
	for _, f := range n.fields {
		out.emit(n.conns[f.Name], validated[f.Name])
	}
	return out, nil
}

func (n *InputNode) kwargs() NodeKwargs {
	return NodeKwargs{Passthrough: n.Fields(), Hint: n.hint}
}

// OutputNode marks termination. Its reads become the result of Run.
type OutputNode struct {
	meta
	inputPorts
	schema *Schema
}

// NewOutputNode declares the graph outputs.
func NewOutputNode(fields ...Field) (*OutputNode, error) {
	if err := validateFields(fields); err != nil {
		return nil, err
	}
	fields = normalizeFields(fields)
	return &OutputNode{
		inputPorts: newInputPorts(fields),
		schema:     NewSchema(fields),
	}, nil
}

func (n *OutputNode) Kind() Kind            { return KindOutput }
func (n *OutputNode) OutputNames() []string { return nil }
func (n *OutputNode) IsLazy() bool          { return n.anyVariadic() }
func (n *OutputNode) Fields() []Field       { return slices.Clone(n.fields) }
func (n *OutputNode) Schema() *Schema       { return n.schema }

// Generate is a no-op.
func (n *OutputNode) Generate(context.Context, Call) (NodeOutput, error) {
	return newNodeOutput(), nil
}

func (n *OutputNode) connect(string, Socket, StateDescriptor) error {
	return ErrNoOutputConnections
}

func (n *OutputNode) kwargs() NodeKwargs {
	return NodeKwargs{Passthrough: n.Fields(), Hint: n.hint}
}
