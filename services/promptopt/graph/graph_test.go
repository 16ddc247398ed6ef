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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test helpers
// =============================================================================

func mustInput(t *testing.T, fields ...Field) *InputNode {
	t.Helper()
	n, err := NewInputNode(fields...)
	require.NoError(t, err)
	return n
}

func mustOutput(t *testing.T, fields ...Field) *OutputNode {
	t.Helper()
	n, err := NewOutputNode(fields...)
	require.NoError(t, err)
	return n
}

func mustProcessor(t *testing.T, inputs, outputs []Field) *Processor {
	t.Helper()
	n, err := NewProcessor(inputs, outputs)
	require.NoError(t, err)
	return n
}

func mustGate(t *testing.T, field Field, classes ...string) *Gate {
	t.Helper()
	n, err := NewGate(field, classes)
	require.NoError(t, err)
	return n
}

func mustAdd(t *testing.T, g *Graph, n Node, name string) {
	t.Helper()
	_, err := g.AddNode(n, name)
	require.NoError(t, err)
}

func mustConnect(t *testing.T, g *Graph, lhs Node, lhsField string, rhs Node, rhsField string) {
	t.Helper()
	require.NoError(t, g.Connect(lhs, lhsField, rhs, rhsField))
}

func fields(names ...string) []Field {
	out := make([]Field, len(names))
	for i, n := range names {
		out[i] = StringField(n)
	}
	return out
}

// echoGraph builds input(x) -> proc(x -> y) -> output(y).
func echoGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	g := New(opts...)
	in := mustInput(t, StringField("x"))
	proc := mustProcessor(t, fields("x"), fields("y"))
	out := mustOutput(t, StringField("y"))
	mustAdd(t, g, in, "input")
	mustAdd(t, g, proc, "proc")
	mustAdd(t, g, out, "output")
	mustConnect(t, g, in, "x", proc, "x")
	mustConnect(t, g, proc, "y", out, "y")
	return g
}

// =============================================================================
// Construction Tests
// =============================================================================

func TestAddNode_GeneratedNames(t *testing.T) {
	g := New()
	name, err := g.AddNode(mustInput(t, StringField("x")), "")
	require.NoError(t, err)
	assert.Equal(t, "inputnode_0", name)

	name, err = g.AddNode(mustProcessor(t, fields("x"), fields("y")), "")
	require.NoError(t, err)
	assert.Equal(t, "processor_1", name)

	// An explicit name that matches the next generated one forces a suffix.
	_, err = g.AddNode(mustProcessor(t, fields("x"), fields("y")), "processor_3")
	require.NoError(t, err)
	name, err = g.AddNode(mustProcessor(t, fields("x"), fields("y")), "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(name, "processor_3"), name)
	assert.NotEqual(t, "processor_3", name)

	assert.Equal(t, 4, g.NodeCount())
	assert.Len(t, g.Trainable(), 3)
}

func TestAddNode_Errors(t *testing.T) {
	g := New()
	in := mustInput(t, StringField("x"))
	mustAdd(t, g, in, "input")

	_, err := g.AddNode(nil, "")
	assert.ErrorIs(t, err, ErrNilNode)

	_, err = g.AddNode(in, "again")
	assert.ErrorIs(t, err, ErrDuplicateNode)

	_, err = g.AddNode(mustInput(t, StringField("y")), "")
	assert.ErrorIs(t, err, ErrDuplicateInput)

	mustAdd(t, g, mustOutput(t, StringField("y")), "output")
	_, err = g.AddNode(mustOutput(t, StringField("z")), "")
	assert.ErrorIs(t, err, ErrDuplicateOutput)

	_, err = g.AddNode(mustProcessor(t, fields("x"), fields("y")), "input")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestConnect_Errors(t *testing.T) {
	g := New()
	in := mustInput(t, StringField("x"))
	proc := mustProcessor(t, fields("x"), fields("y"))
	out := mustOutput(t, StringField("y"))
	stranger := mustProcessor(t, fields("x"), fields("y"))
	mustAdd(t, g, in, "input")
	mustAdd(t, g, proc, "proc")
	mustAdd(t, g, out, "output")

	assert.ErrorIs(t, g.Connect(in, "x", stranger, "x"), ErrNotMember)
	assert.ErrorIs(t, g.Connect(stranger, "y", out, "y"), ErrNotMember)
	assert.ErrorIs(t, g.Connect(proc, "y", in, "x"), ErrNoInputSockets)
	assert.ErrorIs(t, g.Connect(out, "y", proc, "x"), ErrNoOutputConnections)
	assert.ErrorIs(t, g.Connect(in, "missing", proc, "x"), ErrUnknownField)
	assert.ErrorIs(t, g.Connect(in, "x", proc, "missing"), ErrUnknownField)
	assert.ErrorIs(t, g.ConnectByName("nope", "x", "proc", "x"), ErrNodeNotFound)
	assert.Empty(t, g.Edges())
}

func TestNewGate_Errors(t *testing.T) {
	_, err := NewGate(StringField("x"), nil)
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = NewGate(StringField("x"), []string{"a", "a"})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = NewGate(StringField(""), []string{"a"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestLaziness(t *testing.T) {
	assert.False(t, mustProcessor(t, fields("a"), fields("b")).IsLazy())
	assert.True(t, mustProcessor(t, []Field{StringField("a").AsVariadic()}, fields("b")).IsLazy())
	assert.True(t, mustOutput(t, StringField("a").AsVariadic()).IsLazy())
	assert.False(t, mustGate(t, StringField("a"), "x").IsLazy())
	assert.True(t, mustGate(t, StringField("a").AsVariadic(), "x").IsLazy())
}

// =============================================================================
// Describe Tests
// =============================================================================

func TestDescribe(t *testing.T) {
	g := echoGraph(t)
	proc, _ := g.Node("proc")
	proc.(*Processor).SetHint("Repeats the input.")

	got, err := g.Describe()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(got, "=====\nNodes:\n\nID: input\nType: InputNode\nInputs: []\nOutputs: ['x']\n\n"), got)
	assert.Contains(t, got, "ID: proc\nType: Processor\nInputs: ['x']\nOutputs: ['y']\nHint: Repeats the input.\n")
	assert.True(t, strings.HasSuffix(got, "======\nEdges:\n\ninput.x -> proc.x\nproc.y -> output.y\n======\n"), got)
}

func TestDescribe_NoInput(t *testing.T) {
	_, err := New().Describe()
	assert.ErrorIs(t, err, ErrNoInputNode)
}

// =============================================================================
// Serialization Tests
// =============================================================================

func classifierGraph(t *testing.T) *Graph {
	t.Helper()
	g := New()
	in := mustInput(t, StringField("text"))
	gate := mustGate(t, StringField("text"), "pos", "neg")
	praise := mustProcessor(t, fields("text"), fields("praise"))
	complain := mustProcessor(t, fields("text"), fields("complaint"))
	out := mustOutput(t, StringField("result"))
	gate.SetHint("Sentiment.")

	mustAdd(t, g, in, "input")
	mustAdd(t, g, gate, "gate")
	mustAdd(t, g, praise, "praise")
	mustAdd(t, g, complain, "complain")
	mustAdd(t, g, out, "output")
	mustConnect(t, g, in, "text", gate, "text")
	mustConnect(t, g, gate, "pos", praise, "text")
	mustConnect(t, g, gate, "neg", complain, "text")
	mustConnect(t, g, praise, "praise", out, "result")
	mustConnect(t, g, complain, "complaint", out, "result")
	return g
}

func TestSpec_RoundTrip(t *testing.T) {
	g := classifierGraph(t)
	g.Profile().SetInstruction("gate", "Decide the sentiment.")
	g.Profile().SetExamples("praise", []Example{{Input: `{"text":"good"}`, Output: `{"praise":"yay"}`}})

	raw, err := json.Marshal(g)
	require.NoError(t, err)

	restored, err := Decode(raw)
	require.NoError(t, err)

	if diff := cmp.Diff(g.ToSpec(), restored.ToSpec()); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "Decide the sentiment.", restored.Profile().Instruction("gate"))
	assert.Equal(t, g.Edges(), restored.Edges())

	gate, ok := restored.Node("gate")
	require.True(t, ok)
	assert.Equal(t, "Sentiment.", gate.Hint())
}

func TestSpec_WireFormat(t *testing.T) {
	raw, err := json.Marshal(echoGraph(t))
	require.NoError(t, err)

	s := string(raw)
	assert.Contains(t, s, `{"name":"input","type":"InputNode","kwargs":{"passthrough":[{"name":"x","type":"str","is_variadic":false}]}}`)
	assert.Contains(t, s, `{"lhs_node_id":"proc","lhs_field_name":"y","rhs_node_id":"output","rhs_field_name":"y"}`)
}

func TestFromSpec_Errors(t *testing.T) {
	tests := []struct {
		name string
		spec Spec
		want error
	}{
		{
			name: "unknown type",
			spec: Spec{Nodes: []NodeSpec{{Name: "a", Type: "Loop"}}},
			want: ErrUnknownNodeType,
		},
		{
			name: "gate without field",
			spec: Spec{Nodes: []NodeSpec{{Name: "g", Type: KindGate, Kwargs: NodeKwargs{OutputClasses: []string{"a"}}}}},
			want: ErrInvalidField,
		},
		{
			name: "input without passthrough",
			spec: Spec{Nodes: []NodeSpec{{Name: "in", Type: KindInput}}},
			want: ErrInvalidField,
		},
		{
			name: "edge to unknown node",
			spec: Spec{
				Nodes: []NodeSpec{{Name: "in", Type: KindInput, Kwargs: NodeKwargs{Passthrough: fields("x")}}},
				Edges: []EdgeSpec{{LHSNodeID: "in", LHSFieldName: "x", RHSNodeID: "ghost", RHSFieldName: "x"}},
			},
			want: ErrNodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromSpec(tt.spec)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Decode([]byte("{"))
	assert.Error(t, err)
}

// =============================================================================
// Profile and Trace Tests
// =============================================================================

func TestProfile(t *testing.T) {
	p := NewProfile()
	p.SetInstruction("b", "do b")
	examples := []Example{{Input: "1", Output: "2"}}
	p.SetExamples("a", examples)
	examples[0].Input = "mutated"

	assert.Equal(t, []string{"a", "b"}, p.Handles())
	assert.Equal(t, "1", p.Examples("a")[0].Input)
	assert.Equal(t, NodeProfile{Instruction: "do b"}, p.Get("b"))

	p.Reset()
	assert.Empty(t, p.Handles())
	assert.Equal(t, "", p.Instruction("b"))
}

func TestTrace(t *testing.T) {
	tr := NewTrace()
	tr.AddExample("b", "in1", "out1")
	tr.AddExample("a", "in2", "out2")
	tr.AddExample("b", "in3", "out3")

	assert.Equal(t, []string{"b", "a"}, tr.Handles())
	assert.Equal(t, 3, tr.Len())
	assert.Equal(t, []Example{{"in1", "out1"}, {"in3", "out3"}}, tr.Examples("b"))
	assert.Equal(t, "Trace:\n\tb:\n\t\tin1 -> out1\n\t\tin3 -> out3\n\ta:\n\t\tin2 -> out2", tr.String())
}
