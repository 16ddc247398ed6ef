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
	"reflect"
	"slices"
)

// Variadic is an append-only accumulator stored in variadic state slots.
//
// Values written to a variadic slot extend the stored accumulator instead
// of replacing it, so contributions from several wavefronts are kept in
// write order. It encodes to JSON as an array.
//
// Thread Safety:
//
//	Not safe for concurrent mutation. Accumulators live in per-run state
//	which is only mutated by the scheduler goroutine.
type Variadic struct {
	items []any
}

// NewVariadic returns an accumulator holding items.
func NewVariadic(items ...any) *Variadic {
	return &Variadic{items: slices.Clone(items)}
}

// WrapVariadic converts v into a fresh accumulator.
//
// An accumulator is copied, a slice contributes its elements and any other
// value becomes a single element.
func WrapVariadic(v any) *Variadic {
	switch t := v.(type) {
	case *Variadic:
		return t.Clone()
	case []any:
		return NewVariadic(t...)
	case nil:
		return NewVariadic(nil)
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		items := make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
		return &Variadic{items: items}
	}
	return NewVariadic(v)
}

// Extend appends the items of other.
func (v *Variadic) Extend(other *Variadic) {
	if other == nil {
		return
	}
	v.items = append(v.items, other.items...)
}

// Append adds one item.
func (v *Variadic) Append(item any) {
	v.items = append(v.items, item)
}

// Len returns the number of items.
func (v *Variadic) Len() int {
	if v == nil {
		return 0
	}
	return len(v.items)
}

// Values returns a copy of the items.
func (v *Variadic) Values() []any {
	if v == nil {
		return nil
	}
	return slices.Clone(v.items)
}

// Clone returns an independent copy.
func (v *Variadic) Clone() *Variadic {
	return &Variadic{items: v.Values()}
}

// MarshalJSON encodes the accumulator as a JSON array.
func (v *Variadic) MarshalJSON() ([]byte, error) {
	if v == nil || v.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.items)
}

// UnmarshalJSON decodes a JSON array.
func (v *Variadic) UnmarshalJSON(data []byte) error {
	var items []any
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	v.items = items
	return nil
}
