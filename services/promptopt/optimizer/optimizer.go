// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package optimizer tunes the instructions and few-shot examples of a
// graph's model-backed nodes.
//
// Optimizers never change topology. They write into the graph's Profile,
// and later runs of the same graph observe the result.
package optimizer

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// Strategy names reported by Optimize.
const (
	StrategyZeroShot     = "zero_shot"
	StrategyFewShot      = "random_few_shot"
	StrategyDistillation = "distillation"
)

// Sample is one dataset row.
type Sample struct {
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
}

// Optimizer mutates a graph's profile from a set of samples.
type Optimizer interface {
	Optimize(ctx context.Context, samples []Sample) error
}

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// optimizerRuns counts optimizer invocations.
	// Labels: strategy, status (success, error)
	optimizerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptfusion",
		Subsystem: "optimizer",
		Name:      "runs_total",
		Help:      "Total optimizer invocations",
	}, []string{"strategy", "status"})

	// sampleRuns counts graph runs issued while optimizing.
	// Labels: strategy
	sampleRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptfusion",
		Subsystem: "optimizer",
		Name:      "sample_runs_total",
		Help:      "Total graph runs executed during optimization",
	}, []string{"strategy"})

	// examplesInstalled counts few-shot examples written to profiles.
	// Labels: strategy
	examplesInstalled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptfusion",
		Subsystem: "optimizer",
		Name:      "examples_installed_total",
		Help:      "Total few-shot examples installed into node profiles",
	}, []string{"strategy"})

	// instructionsInstalled counts instructions written to profiles.
	// Labels: strategy
	instructionsInstalled = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "promptfusion",
		Subsystem: "optimizer",
		Name:      "instructions_installed_total",
		Help:      "Total instructions installed into node profiles",
	}, []string{"strategy"})
)

func recordRun(strategy string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	optimizerRuns.WithLabelValues(strategy, status).Inc()
}

// =============================================================================
// Options
// =============================================================================

type options struct {
	logger *slog.Logger
	rng    *rand.Rand
}

// Option configures an optimizer.
type Option func(*options)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRand sets the random source used for sampling and splitting.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) {
		if rng != nil {
			o.rng = rng
		}
	}
}

func newOptions(opts []Option) options {
	seed := uint64(time.Now().UnixNano())
	o := options{
		logger: slog.Default(),
		rng:    rand.New(rand.NewPCG(seed, seed>>1)),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// installExamples copies at most perNode recorded pairs into the profile of
// every trainable node that has recordings. It returns the number installed.
func installExamples(g *graph.Graph, tr *graph.Trace, perNode int) int {
	installed := 0
	for _, handle := range g.Trainable() {
		recorded := tr.Examples(handle)
		if len(recorded) == 0 {
			continue
		}
		if len(recorded) > perNode {
			recorded = recorded[:perNode]
		}
		g.Profile().SetExamples(handle, recorded)
		installed += len(recorded)
	}
	return installed
}

// sampleWithoutReplacement returns up to n samples in random order. The
// input slice is not modified.
func sampleWithoutReplacement(rng *rand.Rand, samples []Sample, n int) []Sample {
	if n >= len(samples) {
		return append([]Sample(nil), samples...)
	}
	out := make([]Sample, n)
	for i, j := range rng.Perm(len(samples))[:n] {
		out[i] = samples[j]
	}
	return out
}
