// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph provides dataflow graphs of language-model calls.
//
// A graph is built from four node variants:
//   - InputNode: entry point, passes the caller's values through
//   - Processor: asks the model to map an input schema to an output schema
//   - Gate: asks the model for a class label and routes its input unchanged
//   - OutputNode: termination, its inputs become the run result
//
// Nodes fire in wavefronts. A node is ready once every socket it listens to
// has fired since it last ran. Ready non-lazy nodes always run before lazy
// ones; nodes with variadic inputs are lazy, which lets fan-in joins wait
// for all upstream contributions.
//
// Learned instructions and few-shot examples are kept in a Profile keyed
// by node name, separate from topology.
//
// # Thread Safety
//
// Graph construction (AddNode, Connect) is not synchronized. Once built,
// Run may be called concurrently; Profile and Trace are safe for
// concurrent use.
//
// # Example
//
//	in, _ := graph.NewInputNode(graph.StringField("question"))
//	answer, _ := graph.NewProcessor(
//	    []graph.Field{graph.StringField("question")},
//	    []graph.Field{graph.StringField("answer")},
//	)
//	out, _ := graph.NewOutputNode(graph.StringField("answer"))
//
//	g := graph.New(graph.WithLogger(logger))
//	g.AddNode(in, "input")
//	g.AddNode(answer, "answer")
//	g.AddNode(out, "output")
//	g.Connect(in, "question", answer, "question")
//	g.Connect(answer, "answer", out, "answer")
//
//	result, err := g.Run(ctx, map[string]any{"question": "2+2?"}, model, nil)
package graph
