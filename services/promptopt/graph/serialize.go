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
	"encoding/json"
	"fmt"
)

// NodeKwargs is the per-node payload of a serialized graph.
//
// Input and output nodes use Passthrough. Processors use Inputs and
// Outputs. Gates use ClassificationField and OutputClasses. Examples and
// Instruction carry the node's profile.
type NodeKwargs struct {
	Passthrough         []Field   `json:"passthrough,omitempty"`
	Inputs              []Field   `json:"inputs,omitempty"`
	Outputs             []Field   `json:"outputs,omitempty"`
	ClassificationField *Field    `json:"classification_field,omitempty"`
	OutputClasses       []string  `json:"output_classes,omitempty"`
	Examples            []Example `json:"examples,omitempty"`
	Instruction         string    `json:"instruction,omitempty"`
	Hint                string    `json:"hint,omitempty"`
}

// NodeSpec is one serialized node.
type NodeSpec struct {
	Name   string     `json:"name"`
	Type   Kind       `json:"type"`
	Kwargs NodeKwargs `json:"kwargs"`
}

// EdgeSpec is one serialized edge.
type EdgeSpec struct {
	LHSNodeID    string `json:"lhs_node_id"`
	LHSFieldName string `json:"lhs_field_name"`
	RHSNodeID    string `json:"rhs_node_id"`
	RHSFieldName string `json:"rhs_field_name"`
}

// Spec is the serialized form of a graph and its profile.
type Spec struct {
	Nodes []NodeSpec `json:"nodes"`
	Edges []EdgeSpec `json:"edges"`
}

// ToSpec exports topology and profile. Nodes and edges keep their order.
func (g *Graph) ToSpec() Spec {
	spec := Spec{
		Nodes: make([]NodeSpec, 0, len(g.names)),
		Edges: make([]EdgeSpec, 0, len(g.edges)),
	}
	for _, name := range g.names {
		node := g.nodes[name]
		kw := node.kwargs()
		if node.Kind() == KindProcessor || node.Kind() == KindGate {
			p := g.profile.Get(name)
			kw.Instruction = p.Instruction
			if len(p.Examples) > 0 {
				kw.Examples = p.Examples
			}
		}
		spec.Nodes = append(spec.Nodes, NodeSpec{Name: name, Type: node.Kind(), Kwargs: kw})
	}
	for _, e := range g.edges {
		spec.Edges = append(spec.Edges, EdgeSpec{
			LHSNodeID:    e.SourceNode,
			LHSFieldName: e.SourceField,
			RHSNodeID:    e.TargetNode,
			RHSFieldName: e.TargetField,
		})
	}
	return spec
}

// FromSpec rebuilds a graph, its connections and its profile.
func FromSpec(spec Spec, opts ...Option) (*Graph, error) {
	g := New(opts...)
	for _, ns := range spec.Nodes {
		node, err := nodeFromKwargs(ns.Type, ns.Kwargs)
		if err != nil {
			return nil, fmt.Errorf("node %q: %w", ns.Name, err)
		}
		if ns.Kwargs.Hint != "" {
			setHint(node, ns.Kwargs.Hint)
		}
		if _, err := g.AddNode(node, ns.Name); err != nil {
			return nil, fmt.Errorf("node %q: %w", ns.Name, err)
		}
		if ns.Kwargs.Instruction != "" {
			g.profile.SetInstruction(ns.Name, ns.Kwargs.Instruction)
		}
		if len(ns.Kwargs.Examples) > 0 {
			g.profile.SetExamples(ns.Name, ns.Kwargs.Examples)
		}
	}
	for _, es := range spec.Edges {
		if err := g.ConnectByName(es.LHSNodeID, es.LHSFieldName, es.RHSNodeID, es.RHSFieldName); err != nil {
			return nil, fmt.Errorf("edge %s.%s -> %s.%s: %w", es.LHSNodeID, es.LHSFieldName, es.RHSNodeID, es.RHSFieldName, err)
		}
	}
	return g, nil
}

func nodeFromKwargs(kind Kind, kw NodeKwargs) (Node, error) {
	switch kind {
	case KindInput:
		if kw.Passthrough == nil {
			return nil, fmt.Errorf("%w: passthrough is required", ErrInvalidField)
		}
		return NewInputNode(kw.Passthrough...)
	case KindOutput:
		if kw.Passthrough == nil {
			return nil, fmt.Errorf("%w: passthrough is required", ErrInvalidField)
		}
		return NewOutputNode(kw.Passthrough...)
	case KindProcessor:
		return NewProcessor(kw.Inputs, kw.Outputs)
	case KindGate:
		if kw.ClassificationField == nil {
			return nil, fmt.Errorf("%w: classification_field is required", ErrInvalidField)
		}
		return NewGate(*kw.ClassificationField, kw.OutputClasses)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownNodeType, kind)
	}
}

func setHint(n Node, hint string) {
	if h, ok := n.(interface{ SetHint(string) }); ok {
		h.SetHint(hint)
	}
}

// MarshalJSON encodes the graph as its Spec.
func (g *Graph) MarshalJSON() ([]byte, error) {
	return json.Marshal(g.ToSpec())
}

// Decode parses a JSON Spec and rebuilds the graph.
func Decode(data []byte, opts ...Option) (*Graph, error) {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("decoding graph spec: %w", err)
	}
	return FromSpec(spec, opts...)
}
