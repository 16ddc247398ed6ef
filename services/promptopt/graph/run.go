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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/promptfusion/services/llm"
)

var (
	tracer = otel.Tracer("promptfusion.graph")
	meter  = otel.Meter("promptfusion.graph")
)

// initMetrics lazily initializes metrics.
// Logs errors if metric creation fails but continues execution (graceful degradation).
func (g *Graph) initMetrics() {
	g.metricsOnce.Do(func() {
		var initErrors []string

		var err error
		g.nodeLatency, err = meter.Float64Histogram("graph_node_generation_seconds",
			metric.WithDescription("Time spent generating each node"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_latency: "+err.Error())
		}

		g.nodeFailures, err = meter.Int64Counter("graph_node_failures_total",
			metric.WithDescription("Number of failed node generations"),
		)
		if err != nil {
			initErrors = append(initErrors, "node_failures: "+err.Error())
		}

		g.wavefronts, err = meter.Int64Counter("graph_wavefronts_total",
			metric.WithDescription("Number of wavefronts dispatched"),
		)
		if err != nil {
			initErrors = append(initErrors, "wavefronts: "+err.Error())
		}

		g.activeNodes, err = meter.Int64UpDownCounter("graph_active_nodes",
			metric.WithDescription("Number of currently generating nodes"),
		)
		if err != nil {
			initErrors = append(initErrors, "active_nodes: "+err.Error())
		}

		g.runLatency, err = meter.Float64Histogram("graph_run_duration_seconds",
			metric.WithDescription("Total graph run time"),
			metric.WithUnit("s"),
		)
		if err != nil {
			initErrors = append(initErrors, "run_latency: "+err.Error())
		}

		if len(initErrors) > 0 {
			g.logger.Error("failed to initialize some graph metrics (observability degraded)",
				slog.Int("failed_count", len(initErrors)),
				slog.Any("errors", initErrors),
			)
		}
	})
}

// Run executes the graph once for inputs.
//
// Description:
//
//	Fires the input node, then repeatedly collects every node whose
//	listened sockets have all fired since their last consumption. Ready
//	non-lazy nodes always run before lazy ones. Each wavefront is
//	generated concurrently and joined before any state is changed; its
//	outputs are then applied in queue order. The run ends after the
//	wavefront containing the output node.
//
// Inputs:
//
//	ctx - Context for cancellation. Must not be nil.
//	inputs - Values for the input node fields.
//	model - The model used by every Processor and Gate.
//	trace - Optional recorder shared across runs. May be nil.
//
// Outputs:
//
//	map[string]any - Output node values keyed by field name. Variadic
//	  fields are returned as []any.
//	error - Non-nil on validation, model contract or topology failure.
//
// Thread Safety:
//
//	Safe for concurrent use. Each call owns its execution state.
func (g *Graph) Run(ctx context.Context, inputs map[string]any, model llm.Model, tr *Trace) (map[string]any, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if g.input == nil {
		return nil, ErrNoInputNode
	}
	if g.output == nil {
		return nil, ErrNoOutputNode
	}
	if model == nil {
		return nil, ErrNilModel
	}

	g.initMetrics()

	runID := uuid.NewString()[:12]
	ctx, span := tracer.Start(ctx, "graph.Run",
		trace.WithAttributes(
			attribute.String("graph.run_id", runID),
			attribute.Int("graph.node_count", g.NodeCount()),
		),
	)
	defer span.End()

	start := time.Now()
	logger := g.logger.With(slog.String("run_id", runID))
	logger.Debug("graph run started", slog.Int("nodes", g.NodeCount()))

	result, wavefronts, err := g.run(ctx, logger, inputs, model, tr)

	duration := time.Since(start)
	if g.runLatency != nil {
		g.runLatency.Record(ctx, duration.Seconds())
	}
	span.SetAttributes(attribute.Int("graph.wavefronts", wavefronts))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("graph run failed",
			slog.Int("wavefronts", wavefronts),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	logger.Info("graph run completed",
		slog.Int("wavefronts", wavefronts),
		slog.Duration("duration", duration),
	)
	return result, nil
}

func (g *Graph) run(ctx context.Context, logger *slog.Logger, inputs map[string]any, model llm.Model, tr *Trace) (map[string]any, int, error) {
	state := newGraphState()
	inputName := g.handles[g.input]

	out, err := g.fire(ctx, logger, inputName, g.input, inputs, model, tr)
	if err != nil {
		return nil, 0, err
	}
	state.apply(out)

	for wavefront := 1; ; wavefront++ {
		if g.maxWavefronts > 0 && wavefront > g.maxWavefronts {
			return nil, wavefront - 1, fmt.Errorf("%w: %d", ErrWavefrontLimit, g.maxWavefronts)
		}
		if err := ctx.Err(); err != nil {
			return nil, wavefront - 1, err
		}

		g.fill(state)
		names, lazy := state.next()
		if len(names) == 0 {
			return nil, wavefront - 1, ErrNoProgress
		}

		if g.wavefronts != nil {
			g.wavefronts.Add(ctx, 1, metric.WithAttributes(attribute.Bool("lazy", lazy)))
		}
		logger.Debug("dispatching wavefront",
			slog.Int("wavefront", wavefront),
			slog.Bool("lazy", lazy),
			slog.Any("nodes", names),
		)

		outputs, err := g.dispatch(ctx, logger, state, names, model, tr)
		if err != nil {
			return nil, wavefront, err
		}

		done := false
		for i, name := range names {
			node := g.nodes[name]
			state.consume(node.ListensTo())
			state.apply(outputs[i])
			if node == Node(g.output) {
				done = true
			}
		}
		if done {
			return state.result(g.output), wavefront, nil
		}
		state.clearQueues()
	}
}

// fill enqueues every non-input node whose listened sockets all fired.
func (g *Graph) fill(state *graphState) {
	for _, name := range g.names {
		node := g.nodes[name]
		if node == Node(g.input) {
			continue
		}
		if state.ready(node.ListensTo()) {
			state.enqueue(name, node.IsLazy())
		}
	}
}

// dispatch generates every node of a wavefront concurrently.
//
// The barrier returns early when ctx is done so a stuck model call cannot
// wedge the run. Abandoned goroutines finish on their own and write only to
// their staging trace, which is then dropped.
func (g *Graph) dispatch(ctx context.Context, logger *slog.Logger, state *graphState, names []string, model llm.Model, tr *Trace) ([]NodeOutput, error) {
	inputs := make([]map[string]any, len(names))
	for i, name := range names {
		inputs[i] = state.inputsFor(g.nodes[name])
	}

	var staged []*Trace
	if tr != nil {
		staged = make([]*Trace, len(names))
		for i := range staged {
			staged[i] = NewTrace()
		}
	}

	results := make([]NodeOutput, len(names))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, name := range names {
		eg.Go(func() error {
			var nodeTrace *Trace
			if staged != nil {
				nodeTrace = staged[i]
			}
			out, err := g.fire(egCtx, logger, name, g.nodes[name], inputs[i], model, nodeTrace)
			if err != nil {
				return err
			}
			results[i] = out
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- eg.Wait() }()

	select {
	case err := <-done:
		for _, st := range staged {
			tr.merge(st)
		}
		if err != nil {
			return nil, err
		}
		return results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fire runs one node generation with a timeout, a span and metrics.
func (g *Graph) fire(ctx context.Context, logger *slog.Logger, name string, node Node, inputs map[string]any, model llm.Model, tr *Trace) (NodeOutput, error) {
	ctx, span := tracer.Start(ctx, "graph.Node",
		trace.WithAttributes(
			attribute.String("graph.node", name),
			attribute.String("graph.node_kind", string(node.Kind())),
		),
	)
	defer span.End()

	if g.activeNodes != nil {
		g.activeNodes.Add(ctx, 1)
		defer g.activeNodes.Add(ctx, -1)
	}

	nodeCtx := ctx
	if g.nodeTimeout > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, g.nodeTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := node.Generate(nodeCtx, Call{
		Handle:  name,
		Inputs:  inputs,
		Model:   model,
		Profile: g.profile.Get(name),
		Trace:   tr,
	})
	duration := time.Since(start)

	if g.nodeLatency != nil {
		g.nodeLatency.Record(ctx, duration.Seconds(),
			metric.WithAttributes(attribute.String("node", name)),
		)
	}

	if err != nil {
		if errors.Is(nodeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("%w after %s: %w", ErrNodeTimeout, g.nodeTimeout, err)
		}
		if g.nodeFailures != nil {
			g.nodeFailures.Add(ctx, 1,
				metric.WithAttributes(attribute.String("node", name)),
			)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("node failed",
			slog.String("node", name),
			slog.Duration("duration", duration),
			slog.String("error", err.Error()),
		)
		return NodeOutput{}, NewNodeError(name, err)
	}

	span.SetStatus(codes.Ok, "")
	logger.Debug("node completed",
		slog.String("node", name),
		slog.Duration("duration", duration),
		slog.Int("writes", len(out.Writes)),
	)
	return out, nil
}
