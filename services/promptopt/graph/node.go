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

	"github.com/google/uuid"

	"github.com/AleutianAI/promptfusion/services/llm"
)

// Kind identifies a node variant. The values double as serialized type names.
type Kind string

const (
	KindInput     Kind = "InputNode"
	KindOutput    Kind = "OutputNode"
	KindProcessor Kind = "Processor"
	KindGate      Kind = "Gate"
)

// Socket is a trigger handle owned by exactly one node input field.
type Socket struct {
	ID string
}

// StateDescriptor keys a socket's current value in run state.
type StateDescriptor struct {
	SlotID   string
	Type     FieldType
	Variadic bool
}

// binding is one destination of an output field.
type binding struct {
	socket Socket
	desc   StateDescriptor
}

// OutputConnection lists every destination an output field feeds.
type OutputConnection struct {
	bindings []binding
}

func (c *OutputConnection) add(socket Socket, desc StateDescriptor) {
	c.bindings = append(c.bindings, binding{socket: socket, desc: desc})
}

// Len returns the number of destinations.
func (c *OutputConnection) Len() int {
	return len(c.bindings)
}

// NodeOutput is the atomic result of one node firing.
type NodeOutput struct {
	Writes   map[StateDescriptor]any
	Triggers []Socket
}

func newNodeOutput() NodeOutput {
	return NodeOutput{Writes: make(map[StateDescriptor]any)}
}

// emit records value for every destination of conn.
//
// Variadic destinations receive their own accumulator. When several output
// fields share a variadic destination their values accumulate; a scalar
// destination keeps the last value written.
func (o *NodeOutput) emit(conn *OutputConnection, value any) {
	for _, b := range conn.bindings {
		if b.desc.Variadic {
			incoming := WrapVariadic(value)
			if prev, ok := o.Writes[b.desc].(*Variadic); ok {
				prev.Extend(incoming)
			} else {
				o.Writes[b.desc] = incoming
			}
		} else if acc, ok := value.(*Variadic); ok {
			o.Writes[b.desc] = acc.Clone()
		} else {
			o.Writes[b.desc] = value
		}
		o.Triggers = append(o.Triggers, b.socket)
	}
}

// Example is one recorded or installed few-shot pair of JSON strings.
type Example struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Call carries everything a node needs to fire once.
type Call struct {
	// Handle is the graph-assigned node name.
	Handle string

	// Inputs maps input field names to current state values.
	Inputs map[string]any

	Model llm.Model

	// Profile is the node's optimization state for this call.
	Profile NodeProfile

	// Trace records (input, response) pairs when non-nil.
	Trace *Trace
}

// Node is one vertex of a dataflow graph.
//
// The variant set is closed: *InputNode, *OutputNode, *Processor and *Gate.
// Nodes hold topology only; instructions and examples live in the graph's
// Profile.
type Node interface {
	// Kind returns the variant tag.
	Kind() Kind

	// InputNames returns declared input field names in order.
	InputNames() []string

	// OutputNames returns output field names (class labels for a Gate).
	OutputNames() []string

	// ListensTo returns the node's input sockets, aligned with InputNames.
	ListensTo() []Socket

	// Reads returns the state descriptors of the input sockets.
	Reads() []StateDescriptor

	// IsLazy reports whether the node waits behind all non-lazy work.
	IsLazy() bool

	// SocketFor resolves the socket bound to an input field.
	SocketFor(field string) (Socket, StateDescriptor, error)

	// Generate fires the node once.
	Generate(ctx context.Context, call Call) (NodeOutput, error)

	// Hint returns free-form documentation shown in the graph description.
	Hint() string

	connect(outputField string, socket Socket, desc StateDescriptor) error
	kwargs() NodeKwargs
}

// inputPorts is shared by every variant that consumes values.
type inputPorts struct {
	fields  []Field
	sockets []Socket
	reads   []StateDescriptor
	index   map[string]int
}

func newInputPorts(fields []Field) inputPorts {
	p := inputPorts{
		fields:  fields,
		sockets: make([]Socket, len(fields)),
		reads:   make([]StateDescriptor, len(fields)),
		index:   make(map[string]int, len(fields)),
	}
	for i, f := range fields {
		p.sockets[i] = Socket{ID: f.Name + "-" + uuid.NewString()}
		p.reads[i] = StateDescriptor{SlotID: p.sockets[i].ID, Type: f.Type, Variadic: f.Variadic}
		p.index[f.Name] = i
	}
	return p
}

func (p *inputPorts) InputNames() []string     { return fieldNames(p.fields) }
func (p *inputPorts) ListensTo() []Socket      { return append([]Socket(nil), p.sockets...) }
func (p *inputPorts) Reads() []StateDescriptor { return append([]StateDescriptor(nil), p.reads...) }

func (p *inputPorts) SocketFor(field string) (Socket, StateDescriptor, error) {
	i, ok := p.index[field]
	if !ok {
		return Socket{}, StateDescriptor{}, fmt.Errorf("%w: no input field named %q", ErrUnknownField, field)
	}
	return p.sockets[i], p.reads[i], nil
}

func (p *inputPorts) anyVariadic() bool {
	for _, f := range p.fields {
		if f.Variadic {
			return true
		}
	}
	return false
}

// outputPorts maps output names to their connections in declaration order.
type outputPorts struct {
	names []string
	conns map[string]*OutputConnection
}

func newOutputPorts(names []string) outputPorts {
	p := outputPorts{names: append([]string(nil), names...), conns: make(map[string]*OutputConnection, len(names))}
	for _, n := range names {
		p.conns[n] = &OutputConnection{}
	}
	return p
}

func (p *outputPorts) OutputNames() []string { return append([]string(nil), p.names...) }

func (p *outputPorts) connect(outputField string, socket Socket, desc StateDescriptor) error {
	conn, ok := p.conns[outputField]
	if !ok {
		return fmt.Errorf("%w: no output field named %q", ErrUnknownField, outputField)
	}
	conn.add(socket, desc)
	return nil
}

// Connection returns the connection of an output field.
func (p *outputPorts) Connection(outputField string) (*OutputConnection, bool) {
	c, ok := p.conns[outputField]
	return c, ok
}

// meta carries the editor hint.
type meta struct {
	hint string
}

func (m *meta) Hint() string { return m.hint }

// SetHint replaces the node's description hint.
func (m *meta) SetHint(hint string) { m.hint = hint }
