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
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/optimizer"
	"github.com/AleutianAI/promptfusion/services/promptopt/store"
	"github.com/AleutianAI/promptfusion/services/promptopt/telemetry"
)

const tracerName = "github.com/AleutianAI/promptfusion/cmd/promptfusion"

type trainFlags struct {
	dataset     string
	task        string
	vars        []string
	metricsAddr string
	seed        uint64
}

func newTrainCmd(a *app) *cobra.Command {
	var f trainFlags
	cmd := &cobra.Command{
		Use:   "train [topology]",
		Short: "Optimize a topology against a dataset and store the trained model",
		Long: `Loads a topology (editor JSON, graph spec JSON, or .hcl), picks an
optimization strategy from the dataset size, and saves the trained graph.

With no dataset the teacher proposes instructions. Small datasets get
random few-shot examples. Large datasets are distilled from the teacher.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runTrain(cmd.Context(), args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.dataset, "dataset", "", "JSON file of columns; overrides the editor dataset")
	cmd.Flags().StringVar(&f.task, "task", "", "task description; overrides the editor setting")
	cmd.Flags().StringArrayVar(&f.vars, "var", nil, "HCL variable as name=value (repeatable)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while training")
	cmd.Flags().Uint64Var(&f.seed, "seed", 0, "random seed (default from config, else the clock)")
	return cmd
}

func (a *app) runTrain(ctx context.Context, path string, f trainFlags) (err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "promptfusion.train")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	logger := telemetry.LoggerWithTrace(ctx, a.logger.Slog())

	if f.metricsAddr != "" {
		addr, stop, err := telemetry.ServeMetrics(ctx, f.metricsAddr, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := stop(); err != nil {
				logger.Warn("stopping metrics server failed", slog.String("error", err.Error()))
			}
		}()
		a.printer.KeyValues("metrics", "http://"+addr+"/metrics")
	}

	vars, err := parseAssignments(f.vars)
	if err != nil {
		return err
	}
	g, doc, err := loadTopology(path, vars, a.graphOptions(logger)...)
	if err != nil {
		return err
	}

	var samples []optimizer.Sample
	switch {
	case f.dataset != "":
		columns, err := loadColumns(f.dataset)
		if err != nil {
			return err
		}
		if g.Input() == nil || g.Output() == nil {
			return errors.New("a dataset requires input and output nodes")
		}
		samples, err = optimizer.SamplesFromColumns(columns, fieldNames(g.Input().Fields()), fieldNames(g.Output().Fields()))
		if err != nil {
			return err
		}
	case doc != nil:
		if samples, err = doc.Samples(g); err != nil {
			return err
		}
	}

	studentProvider := a.cfg.Providers.Student
	var teacherProvider *llm.Provider
	if a.cfg.Providers.Teacher != nil {
		p := *a.cfg.Providers.Teacher
		teacherProvider = &p
	}
	req := optimizer.Request{
		Graph:        g,
		Dataset:      samples,
		Distillation: &a.cfg.Optimizer.Distillation,
	}
	if doc != nil {
		studentProvider = overrideProvider(studentProvider, doc.Settings.Student.Provider())
		if doc.Settings.Teacher.ProviderID != "" {
			base := studentProvider
			if teacherProvider != nil {
				base = *teacherProvider
			}
			p := overrideProvider(base, doc.Settings.Teacher.Provider())
			teacherProvider = &p
		}
		req.TaskDescription = doc.Settings.TaskDescription
		req.EvaluationMode = doc.Settings.EvaluationMode
		req.Criteria = doc.Settings.CriteriaList
	}
	if f.task != "" {
		req.TaskDescription = f.task
	}

	if req.Student, err = a.newModel(studentProvider, logger); err != nil {
		return fmt.Errorf("student model: %w", err)
	}
	teacherRef := store.ModelRef{ProviderID: studentProvider.ID, ModelID: studentProvider.ModelID}
	if teacherProvider != nil {
		if req.Teacher, err = a.newModel(*teacherProvider, logger); err != nil {
			return fmt.Errorf("teacher model: %w", err)
		}
		teacherRef = store.ModelRef{ProviderID: teacherProvider.ID, ModelID: teacherProvider.ModelID}
	}

	seed := f.seed
	if seed == 0 {
		seed = a.cfg.Optimizer.Seed
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	span.SetAttributes(
		attribute.Int("promptfusion.samples", len(samples)),
		attribute.Int("promptfusion.nodes", g.NodeCount()),
	)
	logger.Info("training started",
		slog.String("topology", path),
		slog.Int("samples", len(samples)),
		slog.String("seed", strconv.FormatUint(seed, 10)),
	)

	started := time.Now()
	strategy, err := optimizer.Optimize(ctx, req,
		optimizer.WithLogger(logger),
		optimizer.WithRand(rand.New(rand.NewPCG(seed, seed>>1))),
	)
	if err != nil {
		return fmt.Errorf("%s optimization failed: %w", strategy, err)
	}
	span.SetAttributes(attribute.String("promptfusion.strategy", strategy))

	return a.withStore(func(s *store.Store) error {
		id, err := s.Save(ctx, store.Artifact{
			TaskDescription: req.TaskDescription,
			Student:         store.ModelRef{ProviderID: studentProvider.ID, ModelID: studentProvider.ModelID},
			Teacher:         teacherRef,
			Strategy:        strategy,
			Samples:         len(samples),
			Graph:           g.ToSpec(),
		})
		if err != nil {
			return err
		}
		logger.Info("training finished",
			slog.String("model_id", id),
			slog.String("strategy", strategy),
			slog.Duration("elapsed", time.Since(started)),
		)
		a.printer.Success("model trained")
		a.printer.KeyValues(
			"model_id", id,
			"strategy", strategy,
			"samples", strconv.Itoa(len(samples)),
		)
		return nil
	})
}
