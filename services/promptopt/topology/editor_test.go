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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
	"github.com/AleutianAI/promptfusion/services/promptopt/optimizer"
)

const classifierDocument = `{
  "data": {
    "nodes": [
      {"id": "in", "data": {"type": "Input", "fields": [
        {"id": "f-in", "value": "text", "variant": "output", "type": "string"}
      ]}},
      {"id": "judge", "data": {"type": "gate", "hint": "Sentiment.", "fields": [
        {"id": "f-judge", "value": "text", "variant": "output"},
        {"id": "f-pos", "value": "pos", "variant": "condition"},
        {"id": "f-neg", "value": "neg", "variant": "condition"}
      ]}},
      {"id": "writer", "data": {"type": "processor", "fields": [
        {"id": "f-w-in", "value": "text", "variant": "input"},
        {"id": "f-w-out", "value": "reply", "variant": "output"}
      ]}},
      {"id": "out", "data": {"type": "output", "fields": [
        {"id": "f-out", "value": "reply", "variant": "input"}
      ]}}
    ],
    "edges": [
      {"id": "e1", "sourceNode": "in", "sourceField": "f-in", "targetNode": "judge", "targetField": "f-judge"},
      {"id": "e2", "sourceNode": "judge", "sourceField": "f-pos", "targetNode": "writer", "targetField": "f-w-in"},
      {"id": "e3", "sourceNode": "judge", "sourceField": "f-neg", "targetNode": "writer", "targetField": "f-w-in"},
      {"id": "e4", "sourceNode": "writer", "sourceField": "f-w-out", "targetNode": "out", "targetField": "f-out"}
    ]
  },
  "settings": {
    "taskDescription": "Reply to reviews.",
    "teacher": {"providerId": "openai", "modelId": "gpt-4o", "providerSettings": {"apiKey": "sk-teacher", "organization": "org-1"}},
    "student": {"providerId": "ollama", "modelId": "llama3", "providerSettings": {"apiKey": "", "apiBase": "http://localhost:11434"}},
    "evaluationMode": "exact",
    "criteriaList": ["polite"]
  },
  "dataset": {
    "text": ["great", "awful"],
    "reply": ["thanks", "sorry"]
  }
}`

func TestParseEditorDocument(t *testing.T) {
	doc, err := ParseEditorDocument([]byte(classifierDocument))
	require.NoError(t, err)

	assert.Len(t, doc.Data.Nodes, 4)
	assert.Len(t, doc.Data.Edges, 4)
	assert.Equal(t, "Reply to reviews.", doc.Settings.TaskDescription)
	assert.Equal(t, []string{"polite"}, doc.Settings.CriteriaList)

	want := llm.Provider{ID: llm.ProviderOpenAI, ModelID: "gpt-4o", APIKey: "sk-teacher", Organization: "org-1"}
	assert.Equal(t, want, doc.Settings.Teacher.Provider())
	assert.Equal(t, "http://localhost:11434", doc.Settings.Student.Provider().APIBase)
}

func TestParseEditorDocument_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not json", doc: `{`},
		{name: "no nodes", doc: `{"data": {"nodes": [], "edges": []}}`},
		{name: "node without type", doc: `{"data": {"nodes": [{"id": "a", "data": {"fields": []}}]}}`},
		{name: "field without id", doc: `{"data": {"nodes": [{"id": "a", "data": {"type": "input", "fields": [{"value": "x"}]}}]}}`},
		{name: "bad variant", doc: `{"data": {"nodes": [{"id": "a", "data": {"type": "input", "fields": [{"id": "f", "value": "x", "variant": "sideways"}]}}]}}`},
		{name: "edge without target", doc: `{"data": {"nodes": [{"id": "a", "data": {"type": "input"}}], "edges": [{"sourceNode": "a", "sourceField": "f"}]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEditorDocument([]byte(tt.doc))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestEditorDocument_ToSpec(t *testing.T) {
	doc, err := ParseEditorDocument([]byte(classifierDocument))
	require.NoError(t, err)

	spec, err := doc.ToSpec()
	require.NoError(t, err)

	classified := graph.Field{Name: "text"}
	want := graph.Spec{
		Nodes: []graph.NodeSpec{
			{Name: "in", Type: graph.KindInput, Kwargs: graph.NodeKwargs{
				Passthrough: []graph.Field{{Name: "text", Type: "string"}},
			}},
			{Name: "judge", Type: graph.KindGate, Kwargs: graph.NodeKwargs{
				ClassificationField: &classified,
				OutputClasses:       []string{"pos", "neg"},
				Hint:                "Sentiment.",
			}},
			{Name: "writer", Type: graph.KindProcessor, Kwargs: graph.NodeKwargs{
				Inputs:  []graph.Field{{Name: "text"}},
				Outputs: []graph.Field{{Name: "reply"}},
			}},
			{Name: "out", Type: graph.KindOutput, Kwargs: graph.NodeKwargs{
				Passthrough: []graph.Field{{Name: "reply"}},
			}},
		},
		Edges: []graph.EdgeSpec{
			{LHSNodeID: "in", LHSFieldName: "text", RHSNodeID: "judge", RHSFieldName: "text"},
			{LHSNodeID: "judge", LHSFieldName: "pos", RHSNodeID: "writer", RHSFieldName: "text"},
			{LHSNodeID: "judge", LHSFieldName: "neg", RHSNodeID: "writer", RHSFieldName: "text"},
			{LHSNodeID: "writer", LHSFieldName: "reply", RHSNodeID: "out", RHSFieldName: "reply"},
		},
	}
	if diff := cmp.Diff(want, spec); diff != "" {
		t.Errorf("spec mismatch (-want +got):\n%s", diff)
	}
}

func TestFromEditor(t *testing.T) {
	doc, err := ParseEditorDocument([]byte(classifierDocument))
	require.NoError(t, err)

	g, err := FromEditor(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"in", "judge", "writer", "out"}, g.Names())
	assert.Equal(t, []graph.Field{graph.StringField("text")}, g.Input().Fields())

	description, err := g.Describe()
	require.NoError(t, err)
	assert.Contains(t, description, "ID: judge\nType: Gate\nInputs: ['text']\nOutputs: ['pos', 'neg']\nHint: Sentiment.")
}

func TestEditorDocument_Samples(t *testing.T) {
	doc, err := ParseEditorDocument([]byte(classifierDocument))
	require.NoError(t, err)
	g, err := FromEditor(doc)
	require.NoError(t, err)

	samples, err := doc.Samples(g)
	require.NoError(t, err)
	want := []optimizer.Sample{
		{Input: map[string]any{"text": "great"}, Output: map[string]any{"reply": "thanks"}},
		{Input: map[string]any{"text": "awful"}, Output: map[string]any{"reply": "sorry"}},
	}
	assert.Equal(t, want, samples)

	doc.Settings.Outputs = []string{"missing"}
	_, err = doc.Samples(g)
	assert.ErrorIs(t, err, optimizer.ErrDataset)

	doc.Dataset = nil
	samples, err = doc.Samples(g)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestEditorDocument_ToSpecErrors(t *testing.T) {
	base := func() *EditorDocument {
		doc, err := ParseEditorDocument([]byte(classifierDocument))
		require.NoError(t, err)
		return doc
	}

	t.Run("unknown type", func(t *testing.T) {
		doc := base()
		doc.Data.Nodes[2].Data.Type = "router"
		_, err := doc.ToSpec()
		assert.ErrorIs(t, err, ErrUnknownNodeType)
	})

	t.Run("gate with two output fields", func(t *testing.T) {
		doc := base()
		doc.Data.Nodes[1].Data.Fields = append(doc.Data.Nodes[1].Data.Fields,
			EditorField{ID: "f-extra", Value: "extra", Variant: VariantOutput})
		_, err := doc.ToSpec()
		assert.ErrorIs(t, err, ErrGateField)
	})

	t.Run("unresolved source field", func(t *testing.T) {
		doc := base()
		doc.Data.Edges[0].SourceField = "f-nope"
		_, err := doc.ToSpec()
		assert.ErrorIs(t, err, ErrUnresolvedField)
	})

	t.Run("unresolved target node", func(t *testing.T) {
		doc := base()
		doc.Data.Edges[3].TargetNode = "ghost"
		_, err := doc.ToSpec()
		assert.ErrorIs(t, err, ErrUnresolvedField)
	})

	t.Run("graph rejects", func(t *testing.T) {
		doc := base()
		doc.Data.Nodes[0].Data.Fields[0].Type = "tensor"
		_, err := FromEditor(doc)
		assert.ErrorIs(t, err, graph.ErrInvalidField)
	})
}
