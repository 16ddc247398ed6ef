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

// graphState is the execution state of one Run.
//
// Thread Safety:
//
//	Not safe for concurrent use. It is owned by the scheduler goroutine of
//	a single Run and only mutated between wavefronts.
type graphState struct {
	values       map[StateDescriptor]any
	socketCounts map[Socket]int
	active       []string
	lazy         []string
	queued       map[string]struct{}
}

func newGraphState() *graphState {
	return &graphState{
		values:       make(map[StateDescriptor]any),
		socketCounts: make(map[Socket]int),
		queued:       make(map[string]struct{}),
	}
}

// write merges one value. A variadic slot that already holds an
// accumulator is extended; anything else is overwritten.
func (s *graphState) write(desc StateDescriptor, value any) {
	if desc.Variadic {
		incoming := WrapVariadic(value)
		if stored, ok := s.values[desc].(*Variadic); ok {
			stored.Extend(incoming)
			return
		}
		s.values[desc] = incoming
		return
	}
	s.values[desc] = value
}

func (s *graphState) apply(out NodeOutput) {
	for desc, v := range out.Writes {
		s.write(desc, v)
	}
	for _, sock := range out.Triggers {
		s.socketCounts[sock]++
	}
}

func (s *graphState) count(sock Socket) int {
	return s.socketCounts[sock]
}

// consume resets the trigger counts of the sockets a node listens to.
func (s *graphState) consume(sockets []Socket) {
	for _, sock := range sockets {
		s.socketCounts[sock] = 0
	}
}

// ready reports whether every listened socket fired since its last consumption.
func (s *graphState) ready(sockets []Socket) bool {
	for _, sock := range sockets {
		if s.count(sock) <= 0 {
			return false
		}
	}
	return true
}

func (s *graphState) enqueue(name string, lazy bool) {
	if _, ok := s.queued[name]; ok {
		return
	}
	s.queued[name] = struct{}{}
	if lazy {
		s.lazy = append(s.lazy, name)
	} else {
		s.active = append(s.active, name)
	}
}

// next selects the wavefront: active work first, then lazy work.
func (s *graphState) next() (wavefront []string, lazy bool) {
	switch {
	case len(s.active) > 0:
		return s.active, false
	case len(s.lazy) > 0:
		return s.lazy, true
	default:
		return nil, false
	}
}

func (s *graphState) clearQueues() {
	s.active = nil
	s.lazy = nil
	clear(s.queued)
}

// inputsFor snapshots the values a node reads, keyed by input field name.
// Accumulators are copied so node code cannot mutate run state.
func (s *graphState) inputsFor(n Node) map[string]any {
	names := n.InputNames()
	reads := n.Reads()
	out := make(map[string]any, len(names))
	for i, name := range names {
		v, ok := s.values[reads[i]]
		if !ok {
			continue
		}
		if acc, isAcc := v.(*Variadic); isAcc {
			v = acc.Clone()
		}
		out[name] = v
	}
	return out
}

// result is like inputsFor but flattens accumulators to plain slices.
func (s *graphState) result(n Node) map[string]any {
	out := s.inputsFor(n)
	for k, v := range out {
		if acc, ok := v.(*Variadic); ok {
			out[k] = acc.Values()
		}
	}
	return out
}
