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

const (
	// SmallDatasetThreshold is the dataset size at which distillation
	// replaces random few-shot.
	SmallDatasetThreshold = 64

	// FewShotMaxTraining and FewShotMaxPerNode configure the small-dataset strategy.
	FewShotMaxTraining = 64
	FewShotMaxPerNode  = 8
)

// Request describes one training job.
type Request struct {
	Student         llm.Model
	Teacher         llm.Model
	Graph           *graph.Graph
	Dataset         []Sample
	TaskDescription string

	// EvaluationMode and Criteria are carried from the editor settings for
	// strategies that grade outputs. The built-in strategies use exact match.
	EvaluationMode string
	Criteria       []string

	// Distillation overrides DefaultDistillationConfig when non-nil.
	Distillation *DistillationConfig
}

// Optimize selects a strategy by dataset size and runs it.
//
// Description:
//
//	An empty dataset gets zero-shot instruction proposal from the teacher
//	(the student when no teacher is set). Fewer than SmallDatasetThreshold
//	samples get RandomFewShot with the student. Larger datasets get
//	Distillation.
//
// Outputs:
//
//	string - The strategy name.
//	error - Non-nil if the strategy fails.
func Optimize(ctx context.Context, req Request, opts ...Option) (string, error) {
	if req.Graph == nil {
		return "", ErrNilGraph
	}
	if req.Student == nil {
		return "", ErrNilModel
	}
	teacher := req.Teacher
	if teacher == nil {
		teacher = req.Student
	}
	logger := newOptions(opts).logger

	var (
		strategy string
		opt      Optimizer
		err      error
	)
	switch n := len(req.Dataset); {
	case n == 0:
		strategy = StrategyZeroShot
		opt, err = NewZeroShot(req.Graph, teacher, req.TaskDescription, opts...)
	case n < SmallDatasetThreshold:
		strategy = StrategyFewShot
		opt, err = NewRandomFewShot(req.Graph, req.Student, FewShotMaxTraining, FewShotMaxPerNode, opts...)
	default:
		strategy = StrategyDistillation
		cfg := DefaultDistillationConfig()
		if req.Distillation != nil {
			cfg = *req.Distillation
		}
		opt, err = NewDistillation(req.Graph, req.Student, teacher, cfg, req.TaskDescription, opts...)
	}
	if err != nil {
		return strategy, err
	}

	logger.Info("optimizing graph",
		slog.String("strategy", strategy),
		slog.Int("samples", len(req.Dataset)),
		slog.String("evaluation_mode", req.EvaluationMode),
	)
	return strategy, opt.Optimize(ctx, req.Dataset)
}
