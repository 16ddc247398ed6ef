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
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

func praiseVars() map[string]cty.Value {
	return map[string]cty.Value{
		"praise_instruction": cty.StringVal("Thank the reviewer."),
	}
}

func TestLoadHCL_Classifier(t *testing.T) {
	g, err := LoadHCL(filepath.Join("testdata", "classifier.hcl"), praiseVars())
	require.NoError(t, err)

	assert.Equal(t, []string{"reviews", "sentiment", "praise", "complain", "reply"}, g.Names())
	assert.Equal(t, []string{"sentiment", "praise", "complain"}, g.Trainable())

	node, ok := g.Node("sentiment")
	require.True(t, ok)
	gate, ok := node.(*graph.Gate)
	require.True(t, ok)
	assert.Equal(t, []string{"pos", "neg"}, gate.Classes())
	assert.Equal(t, "Sentiment of the review.", gate.Hint())

	assert.Equal(t, "Thank the reviewer.", g.Profile().Instruction("praise"))
	assert.Empty(t, g.Profile().Instruction("complain"))

	want := []graph.Edge{
		{SourceNode: "reviews", SourceField: "text", TargetNode: "sentiment", TargetField: "text"},
		{SourceNode: "sentiment", SourceField: "pos", TargetNode: "praise", TargetField: "text"},
		{SourceNode: "sentiment", SourceField: "neg", TargetNode: "complain", TargetField: "text"},
		{SourceNode: "praise", SourceField: "result", TargetNode: "reply", TargetField: "result"},
		{SourceNode: "complain", SourceField: "result", TargetNode: "reply", TargetField: "result"},
	}
	if diff := cmp.Diff(want, g.Edges()); diff != "" {
		t.Errorf("edges mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadHCL_Runs(t *testing.T) {
	g, err := LoadHCL(filepath.Join("testdata", "classifier.hcl"), praiseVars())
	require.NoError(t, err)

	model := llm.NewMockClient().WithResponseFunc(func(c llm.Call) (string, error) {
		if c.Schema != nil && slices.Equal(c.Schema.Required, []string{graph.ClassificationField}) {
			return `{"classification":"pos"}`, nil
		}
		var in map[string]any
		if err := json.Unmarshal([]byte(c.LastUserContent()), &in); err != nil {
			return "", err
		}
		raw, err := json.Marshal(map[string]any{"result": "thanks: " + in["text"].(string)})
		return string(raw), err
	})

	out, err := g.Run(context.Background(), map[string]any{"text": "great"}, model, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"result": "thanks: great"}, out)

	var sawInstruction bool
	for _, c := range model.GetCalls() {
		if len(c.Messages) > 0 && strings.Contains(c.Messages[0].Content, "Thank the reviewer.") {
			sawInstruction = true
		}
	}
	assert.True(t, sawInstruction, "praise instruction should reach the model")
}

func TestParseHCL_FieldAttributes(t *testing.T) {
	src := `
node "input" "source" {
  field "items" {
    type     = "int"
    variadic = true
  }
  field "tone" {
    allowed_values = ["calm", "angry"]
  }
}
node "output" "sink" {
  field "items" {
    type     = "integer"
    variadic = true
  }
}
edge {
  from = source.items
  to   = sink.items
}
`
	g, err := ParseHCL([]byte(src), "inline.hcl", nil)
	require.NoError(t, err)

	want := []graph.Field{
		{Name: "items", Type: graph.TypeInt, Variadic: true},
		{Name: "tone", Type: graph.TypeString, AllowedValues: []string{"calm", "angry"}},
	}
	if diff := cmp.Diff(want, g.Input().Fields()); diff != "" {
		t.Errorf("input fields mismatch (-want +got):\n%s", diff)
	}
}

func TestParseHCL_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		vars    map[string]cty.Value
		wantErr error
	}{
		{
			name:    "syntax",
			src:     `node "input" {`,
			wantErr: ErrInvalidHCL,
		},
		{
			name:    "unknown block",
			src:     `widget "x" {}`,
			wantErr: ErrInvalidHCL,
		},
		{
			name:    "unknown node type",
			src:     `node "router" "r" {}`,
			wantErr: ErrUnknownNodeType,
		},
		{
			name:    "gate without classify",
			src:     `node "gate" "g" { classes = ["a"] }`,
			wantErr: ErrGateField,
		},
		{
			name:    "undefined variable",
			src:     `node "processor" "p" { instruction = var.missing }`,
			wantErr: ErrInvalidHCL,
		},
		{
			name: "endpoint is not a reference",
			src: `
node "input" "a" { field "x" {} }
node "output" "b" { field "x" {} }
edge {
  from = "a.x"
  to   = b.x
}`,
			wantErr: ErrInvalidHCL,
		},
		{
			name: "endpoint too deep",
			src: `
node "input" "a" { field "x" {} }
node "output" "b" { field "x" {} }
edge {
  from = a.x.y
  to   = b.x
}`,
			wantErr: ErrInvalidHCL,
		},
		{
			name: "unknown node in edge",
			src: `
node "input" "a" { field "x" {} }
node "output" "b" { field "x" {} }
edge {
  from = a.x
  to   = c.x
}`,
			wantErr: graph.ErrNodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHCL([]byte(tt.src), "test.hcl", tt.vars)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestLoadHCL_MissingFile(t *testing.T) {
	_, err := LoadHCL(filepath.Join(t.TempDir(), "absent.hcl"), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
