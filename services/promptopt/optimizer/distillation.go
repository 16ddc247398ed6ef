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

// DistillationConfig holds the large-dataset settings.
type DistillationConfig struct {
	TrainFraction       float64 `yaml:"train_fraction" validate:"gt=0,lte=1"`
	MaxTrainingExamples int     `yaml:"max_training_examples" validate:"gt=0"`
	MaxExamplesPerNode  int     `yaml:"max_examples_per_node" validate:"gt=0"`
	MaxValidationBatch  int     `yaml:"max_validation_batch" validate:"gt=0"`
	NInstructions       int     `yaml:"n_instructions" validate:"gt=0"`
}

// DefaultDistillationConfig returns the settings used by Optimize.
func DefaultDistillationConfig() DistillationConfig {
	return DistillationConfig{
		TrainFraction:       DefaultTrainFraction,
		MaxTrainingExamples: 256,
		MaxExamplesPerNode:  8,
		MaxValidationBatch:  64,
		NInstructions:       10,
	}
}

func (c DistillationConfig) validate() error {
	if c.TrainFraction <= 0 || c.TrainFraction > 1 {
		return fmt.Errorf("%w: train fraction %v", ErrInvalidConfig, c.TrainFraction)
	}
	if c.MaxTrainingExamples <= 0 || c.MaxExamplesPerNode <= 0 || c.MaxValidationBatch <= 0 || c.NInstructions <= 0 {
		return fmt.Errorf("%w: distillation limits must be positive", ErrInvalidConfig)
	}
	return nil
}

// Split is the input handed to a DistillationStrategy.
type Split struct {
	Train      []Sample
	Validation []Sample
}

// DistillationStrategy is the pluggable teacher/student policy.
type DistillationStrategy func(ctx context.Context, d *Distillation, split Split) error

// Distillation is the large-dataset optimizer. It splits the samples and
// delegates to its strategy, TeacherBootstrap unless replaced.
type Distillation struct {
	graph           *graph.Graph
	student         llm.Model
	teacher         llm.Model
	taskDescription string
	cfg             DistillationConfig
	strategy        DistillationStrategy
	opts            options

	score float64
}

// NewDistillation returns a distillation optimizer for g.
func NewDistillation(g *graph.Graph, student, teacher llm.Model, cfg DistillationConfig, taskDescription string, opts ...Option) (*Distillation, error) {
	if g == nil {
		return nil, ErrNilGraph
	}
	if student == nil || teacher == nil {
		return nil, ErrNilModel
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Distillation{
		graph:           g,
		student:         student,
		teacher:         teacher,
		taskDescription: taskDescription,
		cfg:             cfg,
		strategy:        TeacherBootstrap,
		opts:            newOptions(opts),
	}, nil
}

// WithStrategy replaces the strategy.
func (d *Distillation) WithStrategy(s DistillationStrategy) *Distillation {
	if s != nil {
		d.strategy = s
	}
	return d
}

func (d *Distillation) Graph() *graph.Graph        { return d.graph }
func (d *Distillation) Student() llm.Model         { return d.student }
func (d *Distillation) Teacher() llm.Model         { return d.teacher }
func (d *Distillation) Config() DistillationConfig { return d.cfg }

// Score returns the validation accuracy recorded by the last strategy run.
func (d *Distillation) Score() float64 { return d.score }

// SetScore records a validation accuracy.
func (d *Distillation) SetScore(s float64) { d.score = s }

// Optimize splits samples and runs the strategy.
func (d *Distillation) Optimize(ctx context.Context, samples []Sample) (err error) {
	defer func() { recordRun(StrategyDistillation, err) }()

	train, validation, err := SplitDataset(samples, d.cfg.TrainFraction, d.opts.rng)
	if err != nil {
		return err
	}
	return d.strategy(ctx, d, Split{Train: train, Validation: validation})
}

// TeacherBootstrap is the default distillation strategy.
//
// Description:
//
//	The teacher proposes NInstructions candidates per node and replays up
//	to MaxTrainingExamples training samples; its recordings become the
//	few-shot examples. Candidate sets are then scored with the student on
//	up to MaxValidationBatch validation samples and the best set is kept.
//	Ties keep the earlier candidate.
func TeacherBootstrap(ctx context.Context, d *Distillation, split Split) error {
	g, cfg, logger := d.graph, d.cfg, d.opts.logger

	proposals, err := ProposeInstructions(ctx, g, d.teacher, cfg.NInstructions, d.taskDescription)
	if err != nil {
		return err
	}

	training := sampleWithoutReplacement(d.opts.rng, split.Train, cfg.MaxTrainingExamples)
	tr, err := bootstrap(ctx, g, d.teacher, training, StrategyDistillation)
	if err != nil {
		return err
	}
	installed := installExamples(g, tr, cfg.MaxExamplesPerNode)
	examplesInstalled.WithLabelValues(StrategyDistillation).Add(float64(installed))

	validation := split.Validation
	if len(validation) > cfg.MaxValidationBatch {
		validation = validation[:cfg.MaxValidationBatch]
	}

	candidates := 0
	for _, c := range proposals {
		candidates = max(candidates, len(c))
	}

	best, bestScore := 0, -1.0
	for i := 0; i < candidates; i++ {
		applyCandidate(g, proposals, i)
		if len(validation) == 0 {
			break
		}
		sampleRuns.WithLabelValues(StrategyDistillation).Add(float64(len(validation)))
		score, err := Evaluate(ctx, g, d.student, validation)
		if err != nil {
			return err
		}
		logger.Debug("scored instruction candidate",
			slog.Int("candidate", i),
			slog.Float64("score", score),
		)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	applyCandidate(g, proposals, best)
	instructionsInstalled.WithLabelValues(StrategyDistillation).Add(float64(len(proposals)))
	d.SetScore(max(bestScore, 0))

	logger.Info("distillation complete",
		slog.Int("train", len(split.Train)),
		slog.Int("validation", len(validation)),
		slog.Int("examples_installed", installed),
		slog.Int("best_candidate", best),
		slog.Float64("score", d.score),
	)
	return nil
}

// applyCandidate installs candidate i of every node, or its last one when
// the node returned fewer.
func applyCandidate(g *graph.Graph, proposals map[string][]string, i int) {
	for handle, candidates := range proposals {
		if c := candidates[min(i, len(candidates)-1)]; c != "" {
			g.Profile().SetInstruction(handle, c)
		}
	}
}
