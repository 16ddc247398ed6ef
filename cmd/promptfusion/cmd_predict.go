// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
	"github.com/AleutianAI/promptfusion/services/promptopt/optimizer"
	"github.com/AleutianAI/promptfusion/services/promptopt/store"
	"github.com/AleutianAI/promptfusion/services/promptopt/telemetry"
)

func newPredictCmd(a *app) *cobra.Command {
	var (
		dataPath    string
		concurrency int
	)
	cmd := &cobra.Command{
		Use:   "predict [model-id]",
		Short: "Run a trained model over every row of a dataset",
		Long: `Runs the stored graph once per row of --data, a JSON object of input
columns, and prints the outputs as a JSON object of columns in row order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be positive, got %d", concurrency)
			}
			return a.runPredict(cmd.Context(), args[0], dataPath, concurrency)
		},
	}
	cmd.Flags().StringVar(&dataPath, "data", "", "JSON file of input columns (required)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "rows run at the same time")
	_ = cmd.MarkFlagRequired("data")
	return cmd
}

func (a *app) runPredict(ctx context.Context, id, dataPath string, concurrency int) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "promptfusion.predict")
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, a.logger.Slog())

	var artifact store.Artifact
	err := a.withStore(func(s *store.Store) error {
		var err error
		artifact, err = s.Get(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	g, err := artifact.Build(a.graphOptions(logger)...)
	if err != nil {
		return err
	}
	if g.Input() == nil || g.Output() == nil {
		return errors.New("model has no input or output node")
	}

	columns, err := loadColumns(dataPath)
	if err != nil {
		return err
	}
	rows, err := optimizer.SamplesFromColumns(columns, fieldNames(g.Input().Fields()), nil)
	if err != nil {
		return err
	}

	model, err := a.newModel(a.artifactProvider(artifact.Student), logger)
	if err != nil {
		return err
	}
	span.SetAttributes(attribute.String("promptfusion.model_id", id), attribute.Int("promptfusion.rows", len(rows)))

	results := make([]map[string]any, len(rows))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)
	for i, row := range rows {
		eg.Go(func() error {
			out, err := g.Run(egCtx, row.Input, model, nil)
			if err != nil {
				return fmt.Errorf("row %d: %w", i, err)
			}
			results[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	logger.Info("prediction finished", slog.String("model_id", id), slog.Int("rows", len(rows)))

	outputs := make(map[string][]any)
	for _, name := range fieldNames(g.Output().Fields()) {
		col := make([]any, len(results))
		for i, r := range results {
			col[i] = r[name]
		}
		outputs[name] = col
	}
	return a.printJSON(outputs)
}

// artifactProvider resolves a stored model reference against the
// configured providers, which hold the connection settings.
func (a *app) artifactProvider(ref store.ModelRef) llm.Provider {
	candidates := []llm.Provider{a.cfg.Providers.Student}
	if a.cfg.Providers.Teacher != nil {
		candidates = append(candidates, *a.cfg.Providers.Teacher)
	}
	for _, p := range candidates {
		if p.ID == ref.ProviderID {
			p.ModelID = ref.ModelID
			return p
		}
	}
	return llm.Provider{ID: ref.ProviderID, ModelID: ref.ModelID}
}

func newRunCmd(a *app) *cobra.Command {
	var (
		inputs    []string
		inputJSON string
		vars      []string
		showTrace bool
	)
	cmd := &cobra.Command{
		Use:   "run [topology]",
		Short: "Run an untrained topology once with the student model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			values := make(map[string]any)
			if inputJSON != "" {
				if err := json.Unmarshal([]byte(inputJSON), &values); err != nil {
					return fmt.Errorf("parse --input-json: %w", err)
				}
			}
			pairs, err := parseAssignments(inputs)
			if err != nil {
				return err
			}
			for k, v := range pairs {
				values[k] = v
			}
			hclVars, err := parseAssignments(vars)
			if err != nil {
				return err
			}
			return a.runOnce(cmd.Context(), args[0], hclVars, values, showTrace)
		},
	}
	cmd.Flags().StringArrayVar(&inputs, "input", nil, "string input as field=value (repeatable)")
	cmd.Flags().StringVar(&inputJSON, "input-json", "", "inputs as a JSON object")
	cmd.Flags().StringArrayVar(&vars, "var", nil, "HCL variable as name=value (repeatable)")
	cmd.Flags().BoolVar(&showTrace, "trace", false, "also print the prompt/response pairs of each node")
	return cmd
}

func (a *app) runOnce(ctx context.Context, path string, vars map[string]string, inputs map[string]any, showTrace bool) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "promptfusion.run")
	defer span.End()
	logger := telemetry.LoggerWithTrace(ctx, a.logger.Slog())

	g, doc, err := loadTopology(path, vars, a.graphOptions(logger)...)
	if err != nil {
		return err
	}
	provider := a.cfg.Providers.Student
	if doc != nil {
		provider = overrideProvider(provider, doc.Settings.Student.Provider())
	}
	model, err := a.newModel(provider, logger)
	if err != nil {
		return err
	}

	var tr *graph.Trace
	if showTrace {
		tr = graph.NewTrace()
	}
	out, err := g.Run(ctx, inputs, model, tr)
	if err != nil {
		return err
	}
	if err := a.printJSON(out); err != nil {
		return err
	}
	if tr != nil {
		a.printer.Box("Trace", tr.String())
	}
	return nil
}

func (a *app) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	a.printer.Raw(string(data))
	return nil
}
