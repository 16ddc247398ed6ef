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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"
)

const (
	// DefaultNodeTimeout bounds a single node generation.
	DefaultNodeTimeout = 2 * time.Minute

	// DefaultMaxWavefronts bounds the wavefronts of one Run.
	DefaultMaxWavefronts = 1000
)

// Edge records one connection by node name.
type Edge struct {
	SourceNode  string
	SourceField string
	TargetNode  string
	TargetField string
}

func (e Edge) String() string {
	return e.SourceNode + "." + e.SourceField + " -> " + e.TargetNode + "." + e.TargetField
}

// Option configures a Graph.
type Option func(*Graph)

// WithLogger sets the run logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Graph) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithNodeTimeout bounds each node generation. Zero disables the bound.
func WithNodeTimeout(d time.Duration) Option {
	return func(g *Graph) { g.nodeTimeout = d }
}

// WithMaxWavefronts bounds the wavefronts of one Run. Zero disables the bound.
func WithMaxWavefronts(n int) Option {
	return func(g *Graph) { g.maxWavefronts = n }
}

// WithProfile shares an existing profile.
func WithProfile(p *Profile) Option {
	return func(g *Graph) {
		if p != nil {
			g.profile = p
		}
	}
}

// Graph is a dataflow network of nodes.
//
// Description:
//
//	Nodes are added with AddNode and wired with Connect. Once built the
//	topology is immutable and Run may be called concurrently. Learned
//	instructions and examples live in the graph's Profile.
//
// Thread Safety:
//
//	AddNode and Connect must not race with each other or with Run.
//	Run is safe for concurrent use once construction is complete.
type Graph struct {
	names   []string
	nodes   map[string]Node
	handles map[Node]string
	input   *InputNode
	output  *OutputNode
	edges   []Edge
	profile *Profile

	logger        *slog.Logger
	nodeTimeout   time.Duration
	maxWavefronts int

	// Metrics (initialized lazily)
	metricsOnce  sync.Once
	nodeLatency  metric.Float64Histogram
	nodeFailures metric.Int64Counter
	wavefronts   metric.Int64Counter
	runLatency   metric.Float64Histogram
	activeNodes  metric.Int64UpDownCounter
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		nodes:         make(map[string]Node),
		handles:       make(map[Node]string),
		profile:       NewProfile(),
		logger:        slog.Default(),
		nodeTimeout:   DefaultNodeTimeout,
		maxWavefronts: DefaultMaxWavefronts,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode registers node under name and returns the assigned name.
//
// Description:
//
//	An empty name is generated from the node kind and the node count; a
//	generated name that collides gets a random suffix. Explicit names must
//	be unique. The first InputNode and OutputNode become the graph
//	endpoints; adding a second one fails.
//
// Inputs:
//
//	node - The node to register. Must not be nil or already present.
//	name - Optional handle for the node.
//
// Outputs:
//
//	string - The assigned handle.
//	error - Non-nil if the node cannot be registered.
func (g *Graph) AddNode(node Node, name string) (string, error) {
	if node == nil {
		return "", ErrNilNode
	}
	if _, ok := g.handles[node]; ok {
		return "", ErrDuplicateNode
	}

	switch n := node.(type) {
	case *InputNode:
		if g.input != nil {
			return "", ErrDuplicateInput
		}
	case *OutputNode:
		if g.output != nil {
			return "", ErrDuplicateOutput
		}
	case *Processor, *Gate:
	default:
		return "", fmt.Errorf("%w: %T", ErrUnknownNodeType, n)
	}

	if name == "" {
		name = strings.ToLower(string(node.Kind())) + "_" + fmt.Sprint(len(g.nodes))
		for g.has(name) {
			name += uuid.NewString()[:4]
		}
	} else if g.has(name) {
		return "", fmt.Errorf("%w: %q", ErrDuplicateName, name)
	}

	switch n := node.(type) {
	case *InputNode:
		g.input = n
	case *OutputNode:
		g.output = n
	}
	g.names = append(g.names, name)
	g.nodes[name] = node
	g.handles[node] = name
	return name, nil
}

func (g *Graph) has(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Connect wires lhs.lhsField into rhs.rhsField.
//
// Both nodes must be members and rhs must have input sockets. The runtime
// binding is stored on lhs; an Edge is recorded for introspection.
func (g *Graph) Connect(lhs Node, lhsField string, rhs Node, rhsField string) error {
	if lhs == nil || rhs == nil {
		return ErrNilNode
	}
	lhsName, ok := g.handles[lhs]
	if !ok {
		return fmt.Errorf("%w: source of %s -> %s", ErrNotMember, lhsField, rhsField)
	}
	rhsName, ok := g.handles[rhs]
	if !ok {
		return fmt.Errorf("%w: target of %s.%s -> %s", ErrNotMember, lhsName, lhsField, rhsField)
	}
	if len(rhs.ListensTo()) == 0 {
		return fmt.Errorf("%w: %q", ErrNoInputSockets, rhsName)
	}

	socket, desc, err := rhs.SocketFor(rhsField)
	if err != nil {
		return fmt.Errorf("node %q: %w", rhsName, err)
	}
	if err := lhs.connect(lhsField, socket, desc); err != nil {
		return fmt.Errorf("node %q: %w", lhsName, err)
	}

	g.edges = append(g.edges, Edge{SourceNode: lhsName, SourceField: lhsField, TargetNode: rhsName, TargetField: rhsField})
	return nil
}

// ConnectByName resolves node names and calls Connect.
func (g *Graph) ConnectByName(lhs, lhsField, rhs, rhsField string) error {
	src, ok := g.nodes[lhs]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, lhs)
	}
	dst, ok := g.nodes[rhs]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, rhs)
	}
	return g.Connect(src, lhsField, dst, rhsField)
}

// Node returns the node registered under name.
func (g *Graph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// NameOf returns the handle of node.
func (g *Graph) NameOf(node Node) (string, bool) {
	name, ok := g.handles[node]
	return name, ok
}

// Names returns node handles in insertion order.
func (g *Graph) Names() []string {
	return append([]string(nil), g.names...)
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int {
	return len(g.names)
}

// Edges returns the recorded edges in connection order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Input returns the designated input node, or nil.
func (g *Graph) Input() *InputNode { return g.input }

// Output returns the designated output node, or nil.
func (g *Graph) Output() *OutputNode { return g.output }

// Profile returns the optimization profile applied at generation time.
func (g *Graph) Profile() *Profile { return g.profile }

// Trainable returns the handles of model-backed nodes in insertion order.
func (g *Graph) Trainable() []string {
	var out []string
	for _, name := range g.names {
		switch g.nodes[name].(type) {
		case *Processor, *Gate:
			out = append(out, name)
		}
	}
	return out
}
