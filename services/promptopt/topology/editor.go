// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package topology builds graphs from external descriptions: the visual
// editor's JSON document and an HCL file format.
package topology

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
	"github.com/AleutianAI/promptfusion/services/promptopt/optimizer"
)

// Field variants used by the editor.
const (
	VariantInput     = "input"
	VariantOutput    = "output"
	VariantCondition = "condition"
)

var editorValidate = validator.New()

// EditorDocument is the training request produced by the graph editor.
type EditorDocument struct {
	Data     EditorGraph      `json:"data" validate:"required"`
	Settings EditorSettings   `json:"settings"`
	Dataset  map[string][]any `json:"dataset,omitempty"`
}

// EditorGraph holds the drawn nodes and edges.
type EditorGraph struct {
	Nodes []EditorNode `json:"nodes" validate:"required,min=1,dive"`
	Edges []EditorEdge `json:"edges" validate:"dive"`
}

type EditorNode struct {
	ID   string         `json:"id" validate:"required"`
	Data EditorNodeData `json:"data"`
}

type EditorNodeData struct {
	Fields []EditorField `json:"fields" validate:"dive"`
	Type   string        `json:"type" validate:"required"`
	Hint   string        `json:"hint,omitempty"`
}

// EditorField is one port. Value is the field name; ID is what edges refer to.
type EditorField struct {
	ID       string `json:"id" validate:"required"`
	Value    string `json:"value"`
	Variant  string `json:"variant" validate:"omitempty,oneof=input output condition"`
	Type     string `json:"type,omitempty"`
	Variadic bool   `json:"variadic,omitempty"`
}

type EditorEdge struct {
	ID          string `json:"id"`
	SourceNode  string `json:"sourceNode" validate:"required"`
	SourceField string `json:"sourceField" validate:"required"`
	TargetNode  string `json:"targetNode" validate:"required"`
	TargetField string `json:"targetField" validate:"required"`
}

// EditorSettings carries the training configuration chosen in the editor.
type EditorSettings struct {
	TaskDescription string         `json:"taskDescription"`
	Teacher         EditorProvider `json:"teacher"`
	Student         EditorProvider `json:"student"`
	EvaluationMode  string         `json:"evaluationMode"`
	CriteriaList    []string       `json:"criteriaList"`

	// Inputs and Outputs name the dataset columns of each sample side.
	Inputs  []string `json:"inputs,omitempty"`
	Outputs []string `json:"outputs,omitempty"`
}

type EditorProvider struct {
	ProviderID       string                 `json:"providerId"`
	ModelID          string                 `json:"modelId"`
	ProviderSettings EditorProviderSettings `json:"providerSettings"`
}

type EditorProviderSettings struct {
	APIKey       string `json:"apiKey"`
	Organization string `json:"organization,omitempty"`
	APIBase      string `json:"apiBase,omitempty"`
}

// Provider converts the editor selection into an llm.Provider. Provider ids
// are matched without regard to case.
func (p EditorProvider) Provider() llm.Provider {
	id := p.ProviderID
	for _, known := range []string{llm.ProviderOpenAI, llm.ProviderOllama} {
		if strings.EqualFold(id, known) {
			id = known
		}
	}
	return llm.Provider{
		ID:           id,
		ModelID:      p.ModelID,
		APIKey:       p.ProviderSettings.APIKey,
		Organization: p.ProviderSettings.Organization,
		APIBase:      p.ProviderSettings.APIBase,
	}
}

// ParseEditorDocument decodes and validates an editor document.
func ParseEditorDocument(data []byte) (*EditorDocument, error) {
	var doc EditorDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if err := editorValidate.Struct(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// Samples converts the document dataset into samples for g. Column names
// come from the settings, falling back to the field names of the graph's
// input and output nodes.
func (d *EditorDocument) Samples(g *graph.Graph) ([]optimizer.Sample, error) {
	if len(d.Dataset) == 0 {
		return nil, nil
	}
	inputs, outputs := d.Settings.Inputs, d.Settings.Outputs
	if len(inputs) == 0 && g.Input() != nil {
		inputs = names(g.Input().Fields())
	}
	if len(outputs) == 0 && g.Output() != nil {
		outputs = names(g.Output().Fields())
	}
	return optimizer.SamplesFromColumns(d.Dataset, inputs, outputs)
}

func names(fields []graph.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Name
	}
	return out
}

// ToSpec translates the drawn graph into a graph.Spec.
//
// Description:
//
//	Input and output nodes take every field. Processors split fields by
//	variant. A gate takes its single output-variant field as the
//	classified field and its condition-variant values as classes. Edge
//	field ids are resolved to field names.
func (d *EditorDocument) ToSpec() (graph.Spec, error) {
	var spec graph.Spec
	fieldNames := make(map[string]map[string]string, len(d.Data.Nodes))

	for _, n := range d.Data.Nodes {
		names := make(map[string]string, len(n.Data.Fields))
		for _, f := range n.Data.Fields {
			names[f.ID] = f.Value
		}
		fieldNames[n.ID] = names

		ns, err := editorNodeSpec(n)
		if err != nil {
			return graph.Spec{}, err
		}
		spec.Nodes = append(spec.Nodes, ns)
	}

	for _, e := range d.Data.Edges {
		src, ok := fieldNames[e.SourceNode][e.SourceField]
		if !ok {
			return graph.Spec{}, fmt.Errorf("%w: %s.%s", ErrUnresolvedField, e.SourceNode, e.SourceField)
		}
		dst, ok := fieldNames[e.TargetNode][e.TargetField]
		if !ok {
			return graph.Spec{}, fmt.Errorf("%w: %s.%s", ErrUnresolvedField, e.TargetNode, e.TargetField)
		}
		spec.Edges = append(spec.Edges, graph.EdgeSpec{
			LHSNodeID:    e.SourceNode,
			LHSFieldName: src,
			RHSNodeID:    e.TargetNode,
			RHSFieldName: dst,
		})
	}
	return spec, nil
}

func editorNodeSpec(n EditorNode) (graph.NodeSpec, error) {
	ns := graph.NodeSpec{Name: n.ID, Kwargs: graph.NodeKwargs{Hint: n.Data.Hint}}
	fields := n.Data.Fields

	switch strings.ToLower(n.Data.Type) {
	case "input":
		ns.Type = graph.KindInput
		ns.Kwargs.Passthrough = convertFields(fields, nil)
	case "output":
		ns.Type = graph.KindOutput
		ns.Kwargs.Passthrough = convertFields(fields, nil)
	case "processor":
		ns.Type = graph.KindProcessor
		ns.Kwargs.Inputs = convertFields(fields, variant(VariantInput))
		ns.Kwargs.Outputs = convertFields(fields, variant(VariantOutput))
	case "gate":
		ns.Type = graph.KindGate
		classified := convertFields(fields, variant(VariantOutput))
		if len(classified) != 1 {
			return graph.NodeSpec{}, fmt.Errorf("%w: node %q has %d", ErrGateField, n.ID, len(classified))
		}
		ns.Kwargs.ClassificationField = &classified[0]
		for _, f := range fields {
			if f.Variant == VariantCondition {
				ns.Kwargs.OutputClasses = append(ns.Kwargs.OutputClasses, f.Value)
			}
		}
	default:
		return graph.NodeSpec{}, fmt.Errorf("%w: %q", ErrUnknownNodeType, n.Data.Type)
	}
	return ns, nil
}

func variant(v string) func(EditorField) bool {
	return func(f EditorField) bool { return f.Variant == v }
}

func convertFields(fields []EditorField, keep func(EditorField) bool) []graph.Field {
	out := make([]graph.Field, 0, len(fields))
	for _, f := range fields {
		if keep != nil && !keep(f) {
			continue
		}
		out = append(out, graph.Field{Name: f.Value, Type: graph.FieldType(f.Type), Variadic: f.Variadic})
	}
	return out
}

// FromEditor builds the graph described by doc.
func FromEditor(doc *EditorDocument, opts ...graph.Option) (*graph.Graph, error) {
	spec, err := doc.ToSpec()
	if err != nil {
		return nil, err
	}
	return graph.FromSpec(spec, opts...)
}
