// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package topology

import (
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// hclRoot is the top level of a topology file:
//
//	node "processor" "summarize" {
//	  instruction = "Summarize the text."
//	  input "text" {}
//	  output "summary" { type = "str" }
//	}
//	edge {
//	  from = input.text
//	  to   = summarize.text
//	}
type hclRoot struct {
	Nodes []hclNode `hcl:"node,block"`
	Edges []hclEdge `hcl:"edge,block"`
}

type hclNode struct {
	Type        string     `hcl:"type,label"`
	Name        string     `hcl:"name,label"`
	Hint        string     `hcl:"hint,optional"`
	Instruction string     `hcl:"instruction,optional"`
	Fields      []hclField `hcl:"field,block"`
	Inputs      []hclField `hcl:"input,block"`
	Outputs     []hclField `hcl:"output,block"`
	Classify    *hclField  `hcl:"classify,block"`
	Classes     []string   `hcl:"classes,optional"`
}

type hclField struct {
	Name          string   `hcl:"name,label"`
	Type          string   `hcl:"type,optional"`
	Variadic      bool     `hcl:"variadic,optional"`
	AllowedValues []string `hcl:"allowed_values,optional"`
}

type hclEdge struct {
	From hcl.Expression `hcl:"from"`
	To   hcl.Expression `hcl:"to"`
}

// LoadHCL reads a topology file and builds its graph.
func LoadHCL(path string, vars map[string]cty.Value, opts ...graph.Option) (*graph.Graph, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read topology %s: %w", path, err)
	}
	return ParseHCL(src, path, vars, opts...)
}

// ParseHCL builds a graph from HCL source.
//
// Description:
//
//	Attribute expressions are evaluated with vars exposed as var.<name>.
//	Edge endpoints are static references of the form node.field and are
//	not evaluated.
//
// Inputs:
//
//	src - The HCL source.
//	filename - Used in diagnostics.
//	vars - Values for var.* references. May be nil.
//	opts - Applied to the constructed graph.
//
// Outputs:
//
//	*graph.Graph - The constructed graph.
//	error - Wraps ErrInvalidHCL for parse and decode failures, or the graph error.
func ParseHCL(src []byte, filename string, vars map[string]cty.Value, opts ...graph.Option) (*graph.Graph, error) {
	spec, err := hclSpec(src, filename, vars)
	if err != nil {
		return nil, err
	}
	return graph.FromSpec(spec, opts...)
}

func hclSpec(src []byte, filename string, vars map[string]cty.Value) (graph.Spec, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return graph.Spec{}, fmt.Errorf("%w: failed to parse %s: %w", ErrInvalidHCL, filename, diags)
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{"var": cty.EmptyObjectVal},
	}
	if len(vars) > 0 {
		evalCtx.Variables["var"] = cty.ObjectVal(vars)
	}

	var root hclRoot
	if diags := gohcl.DecodeBody(hclFile.Body, evalCtx, &root); diags.HasErrors() {
		return graph.Spec{}, fmt.Errorf("%w: failed to decode %s: %w", ErrInvalidHCL, filename, diags)
	}

	var spec graph.Spec
	for _, n := range root.Nodes {
		ns, err := hclNodeSpec(n)
		if err != nil {
			return graph.Spec{}, err
		}
		spec.Nodes = append(spec.Nodes, ns)
	}
	for _, e := range root.Edges {
		lhsNode, lhsField, err := endpoint(e.From)
		if err != nil {
			return graph.Spec{}, err
		}
		rhsNode, rhsField, err := endpoint(e.To)
		if err != nil {
			return graph.Spec{}, err
		}
		spec.Edges = append(spec.Edges, graph.EdgeSpec{
			LHSNodeID:    lhsNode,
			LHSFieldName: lhsField,
			RHSNodeID:    rhsNode,
			RHSFieldName: rhsField,
		})
	}
	return spec, nil
}

func hclNodeSpec(n hclNode) (graph.NodeSpec, error) {
	ns := graph.NodeSpec{
		Name: n.Name,
		Kwargs: graph.NodeKwargs{
			Hint:        n.Hint,
			Instruction: n.Instruction,
		},
	}
	switch strings.ToLower(n.Type) {
	case "input":
		ns.Type = graph.KindInput
		ns.Kwargs.Passthrough = hclFields(n.Fields)
	case "output":
		ns.Type = graph.KindOutput
		ns.Kwargs.Passthrough = hclFields(n.Fields)
	case "processor":
		ns.Type = graph.KindProcessor
		ns.Kwargs.Inputs = hclFields(n.Inputs)
		ns.Kwargs.Outputs = hclFields(n.Outputs)
	case "gate":
		ns.Type = graph.KindGate
		if n.Classify == nil {
			return graph.NodeSpec{}, fmt.Errorf("%w: node %q has no classify block", ErrGateField, n.Name)
		}
		f := hclFields([]hclField{*n.Classify})[0]
		ns.Kwargs.ClassificationField = &f
		ns.Kwargs.OutputClasses = n.Classes
	default:
		return graph.NodeSpec{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, n.Type)
	}
	return ns, nil
}

func hclFields(in []hclField) []graph.Field {
	out := make([]graph.Field, 0, len(in))
	for _, f := range in {
		out = append(out, graph.Field{
			Name:          f.Name,
			Type:          graph.FieldType(f.Type),
			Variadic:      f.Variadic,
			AllowedValues: f.AllowedValues,
		})
	}
	return out
}

// endpoint resolves a node.field reference.
func endpoint(expr hcl.Expression) (string, string, error) {
	traversal, diags := hcl.AbsTraversalForExpr(expr)
	if diags.HasErrors() {
		return "", "", fmt.Errorf("%w: edge endpoint: %w", ErrInvalidHCL, diags)
	}
	if len(traversal) != 2 {
		return "", "", fmt.Errorf("%w: edge endpoint at %s must be node.field", ErrInvalidHCL, expr.Range())
	}
	attr, ok := traversal[1].(hcl.TraverseAttr)
	if !ok {
		return "", "", fmt.Errorf("%w: edge endpoint at %s must be node.field", ErrInvalidHCL, expr.Range())
	}
	return traversal.RootName(), attr.Name, nil
}
