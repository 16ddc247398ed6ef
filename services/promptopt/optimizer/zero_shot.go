// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package optimizer

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// ZeroShot writes one proposed instruction into every model-backed node.
// It needs no samples.
type ZeroShot struct {
	graph           *graph.Graph
	model           llm.Model
	taskDescription string
	opts            options
}

// NewZeroShot returns a zero-shot optimizer for g.
func NewZeroShot(g *graph.Graph, model llm.Model, taskDescription string, opts ...Option) (*ZeroShot, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if model == nil {
		return nil, ErrNilModel
	}
	return &ZeroShot{graph: g, model: model, taskDescription: taskDescription, opts: newOptions(opts)}, nil
}

// Optimize overwrites each Processor and Gate instruction with a non-blank
// proposal. Samples are ignored.
func (z *ZeroShot) Optimize(ctx context.Context, _ []Sample) (err error) {
	defer func() { recordRun(StrategyZeroShot, err) }()

	proposals, err := ProposeInstructions(ctx, z.graph, z.model, 1, z.taskDescription)
	if err != nil {
		return err
	}
	installed := 0
	for _, handle := range z.graph.Trainable() {
		// A blank proposal keeps the current instruction.
		if proposals[handle][0] == "" {
			z.opts.logger.Warn("empty instruction proposal skipped", slog.String("node", handle))
			continue
		}
		z.graph.Profile().SetInstruction(handle, proposals[handle][0])
		instructionsInstalled.WithLabelValues(StrategyZeroShot).Inc()
		installed++
	}

	z.opts.logger.Info("zero-shot instructions installed",
		slog.Int("nodes", installed),
	)
	return nil
}
