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
	"slices"
	"strings"
	"sync"
)

// Trace accumulates (input, response) pairs per node across runs.
//
// Thread Safety:
//
//	Trace is safe for concurrent use. A run stages each wavefront's pairs
//	and merges them once every node of the wavefront has returned, so a
//	cancelled run records nothing from calls it abandoned.
type Trace struct {
	mu       sync.Mutex
	order    []string
	examples map[string][]Example
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{examples: make(map[string][]Example)}
}

// AddExample appends a pair under handle.
func (t *Trace) AddExample(handle, input, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.examples[handle]; !ok {
		t.order = append(t.order, handle)
	}
	t.examples[handle] = append(t.examples[handle], Example{Input: input, Output: output})
}

// merge appends every pair of src, keeping src's handle order.
func (t *Trace) merge(src *Trace) {
	src.mu.Lock()
	defer src.mu.Unlock()
	for _, h := range src.order {
		for _, ex := range src.examples[h] {
			t.AddExample(h, ex.Input, ex.Output)
		}
	}
}

// Examples returns a copy of the pairs recorded under handle.
func (t *Trace) Examples(handle string) []Example {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.examples[handle])
}

// Handles returns recorded handles in first-use order.
func (t *Trace) Handles() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.order)
}

// Len returns the total number of recorded pairs.
func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, ex := range t.examples {
		n += len(ex)
	}
	return n
}

func (t *Trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var b strings.Builder
	b.WriteString("Trace:")
	for _, h := range t.order {
		b.WriteString("\n\t" + h + ":")
		for _, ex := range t.examples[h] {
			b.WriteString("\n\t\t" + ex.Input + " -> " + ex.Output)
		}
	}
	return b.String()
}
