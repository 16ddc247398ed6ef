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
	"sort"
	"sync"
)

// NodeProfile is the learned behavior of one node.
type NodeProfile struct {
	// Instruction overrides the variant default when non-empty.
	Instruction string

	// Examples are replayed as few-shot turns before the live input.
	Examples []Example
}

func (p NodeProfile) clone() NodeProfile {
	return NodeProfile{Instruction: p.Instruction, Examples: slices.Clone(p.Examples)}
}

// Profile stores optimization state keyed by node handle.
//
// Description:
//
//	Optimizers write instructions and examples here; Run reads a snapshot
//	per node firing. Topology and learned behavior stay independent, so
//	the same profile can be exported, replaced or reset without rebuilding
//	the graph.
//
// Thread Safety:
//
//	Profile is safe for concurrent use.
type Profile struct {
	mu      sync.RWMutex
	entries map[string]NodeProfile
}

// NewProfile returns an empty profile.
func NewProfile() *Profile {
	return &Profile{entries: make(map[string]NodeProfile)}
}

// Get returns a copy of the profile of handle.
func (p *Profile) Get(handle string) NodeProfile {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[handle].clone()
}

// SetInstruction overwrites the instruction of handle.
func (p *Profile) SetInstruction(handle, instruction string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[handle]
	e.Instruction = instruction
	p.entries[handle] = e
}

// SetExamples replaces the examples of handle.
func (p *Profile) SetExamples(handle string, examples []Example) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := p.entries[handle]
	e.Examples = slices.Clone(examples)
	p.entries[handle] = e
}

// Instruction returns the stored instruction of handle, or "".
func (p *Profile) Instruction(handle string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entries[handle].Instruction
}

// Examples returns a copy of the stored examples of handle.
func (p *Profile) Examples(handle string) []Example {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.entries[handle].Examples)
}

// Handles returns the handles with stored state, sorted.
func (p *Profile) Handles() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.entries))
	for h := range p.entries {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

// Reset clears all stored state.
func (p *Profile) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = make(map[string]NodeProfile)
}
