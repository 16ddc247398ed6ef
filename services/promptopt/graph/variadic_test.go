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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapVariadic(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want []any
	}{
		{"scalar", "x", []any{"x"}},
		{"any slice", []any{"a", 1}, []any{"a", 1}},
		{"typed slice", []string{"a", "b"}, []any{"a", "b"}},
		{"nil", nil, []any{nil}},
		{"accumulator", NewVariadic(1, 2), []any{1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WrapVariadic(tt.in).Values())
		})
	}
}

func TestVariadic_CloneIsIndependent(t *testing.T) {
	v := NewVariadic("a")
	c := v.Clone()
	c.Append("b")
	v.Extend(NewVariadic("c"))

	assert.Equal(t, []any{"a", "c"}, v.Values())
	assert.Equal(t, []any{"a", "b"}, c.Values())
	assert.Equal(t, 0, (*Variadic)(nil).Len())
}

func TestVariadic_JSON(t *testing.T) {
	raw, err := json.Marshal(map[string]any{"v": NewVariadic("a", 1), "empty": &Variadic{}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":["a",1],"empty":[]}`, string(raw))

	var v Variadic
	require.NoError(t, json.Unmarshal([]byte(`["x",true]`), &v))
	assert.Equal(t, []any{"x", true}, v.Values())
}

func TestGraphState_VariadicWrites(t *testing.T) {
	s := newGraphState()
	list := StateDescriptor{SlotID: "list", Type: TypeString, Variadic: true}
	scalar := StateDescriptor{SlotID: "scalar", Type: TypeString}

	s.write(list, "a")
	s.write(list, []any{"b", "c"})
	s.write(scalar, "first")
	s.write(scalar, "second")

	assert.Equal(t, []any{"a", "b", "c"}, s.values[list].(*Variadic).Values())
	assert.Equal(t, "second", s.values[scalar])
}

func TestNodeOutput_EmitPerDestination(t *testing.T) {
	conn := &OutputConnection{}
	list := StateDescriptor{SlotID: "list", Variadic: true}
	scalar := StateDescriptor{SlotID: "scalar"}
	conn.add(Socket{ID: "l"}, list)
	conn.add(Socket{ID: "s"}, scalar)

	out := newNodeOutput()
	out.emit(conn, "v")

	assert.Equal(t, []any{"v"}, out.Writes[list].(*Variadic).Values())
	assert.Equal(t, "v", out.Writes[scalar])
	assert.Equal(t, []Socket{{ID: "l"}, {ID: "s"}}, out.Triggers)
	assert.Equal(t, 2, conn.Len())
}
