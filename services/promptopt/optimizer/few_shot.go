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
	"fmt"
	"log/slog"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// RandomFewShot installs recorded node behavior as few-shot examples.
//
// Description:
//
//	Samples up to maxTraining rows without replacement, runs the graph once
//	per row against one shared Trace, then installs at most maxPerNode of
//	each node's recordings, in recorded order. The first failing run
//	aborts the sweep and leaves the profile untouched.
type RandomFewShot struct {
	graph       *graph.Graph
	model       llm.Model
	maxTraining int
	maxPerNode  int
	opts        options
}

// NewRandomFewShot returns a few-shot optimizer for g.
func NewRandomFewShot(g *graph.Graph, model llm.Model, maxTraining, maxPerNode int, opts ...Option) (*RandomFewShot, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if model == nil {
		return nil, ErrNilModel
	}
	if maxTraining <= 0 || maxPerNode <= 0 {
		return nil, fmt.Errorf("%w: max training (%d) and max per node (%d) must be positive",
			ErrInvalidConfig, maxTraining, maxPerNode)
	}
	return &RandomFewShot{
		graph:       g,
		model:       model,
		maxTraining: maxTraining,
		maxPerNode:  maxPerNode,
		opts:        newOptions(opts),
	}, nil
}

// Optimize runs the sweep and installs examples.
func (o *RandomFewShot) Optimize(ctx context.Context, samples []Sample) (err error) {
	defer func() { recordRun(StrategyFewShot, err) }()

	tr, err := bootstrap(ctx, o.graph, o.model, sampleWithoutReplacement(o.opts.rng, samples, o.maxTraining), StrategyFewShot)
	if err != nil {
		return err
	}

	installed := installExamples(o.graph, tr, o.maxPerNode)
	examplesInstalled.WithLabelValues(StrategyFewShot).Add(float64(installed))

	o.opts.logger.Info("few-shot examples installed",
		slog.Int("samples", len(samples)),
		slog.Int("recorded", tr.Len()),
		slog.Int("installed", installed),
	)
	return nil
}

// bootstrap runs every sample through g with model and records the trace.
func bootstrap(ctx context.Context, g *graph.Graph, model llm.Model, samples []Sample, strategy string) (*graph.Trace, error) {
	tr := graph.NewTrace()
	for i, s := range samples {
		sampleRuns.WithLabelValues(strategy).Inc()
		if _, err := g.Run(ctx, s.Input, model, tr); err != nil {
			return nil, fmt.Errorf("training sample %d: %w", i, err)
		}
	}
	return tr, nil
}
