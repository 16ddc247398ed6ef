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
	"math/rand/v2"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// DefaultTrainFraction is the share of samples kept for training.
const DefaultTrainFraction = 0.75

// SplitDataset shuffles a copy of samples and splits it at
// floor(len*fraction). The input slice is not modified.
func SplitDataset(samples []Sample, fraction float64, rng *rand.Rand) (train, validation []Sample, err error) {
	if fraction < 0 || fraction > 1 {
		return nil, nil, fmt.Errorf("%w: train fraction %v outside [0, 1]", ErrInvalidConfig, fraction)
	}
	shuffled := append([]Sample(nil), samples...)
	if rng != nil {
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	} else {
		rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	}
	cut := int(float64(len(shuffled)) * fraction)
	return shuffled[:cut], shuffled[cut:], nil
}

// SamplesFromColumns converts column-oriented data into samples.
//
// Every named column must exist and all named columns must have the same
// length. Columns not listed in inputs or outputs are ignored.
func SamplesFromColumns(columns map[string][]any, inputs, outputs []string) ([]Sample, error) {
	rows := -1
	for _, name := range append(append([]string(nil), inputs...), outputs...) {
		col, ok := columns[name]
		if !ok {
			return nil, fmt.Errorf("%w: missing column %q", ErrDataset, name)
		}
		if rows >= 0 && len(col) != rows {
			return nil, fmt.Errorf("%w: column %q has %d rows, expected %d", ErrDataset, name, len(col), rows)
		}
		rows = len(col)
	}
	if rows <= 0 {
		return nil, nil
	}

	samples := make([]Sample, rows)
	for i := range samples {
		samples[i] = Sample{Input: make(map[string]any, len(inputs)), Output: make(map[string]any, len(outputs))}
		for _, name := range inputs {
			samples[i].Input[name] = columns[name][i]
		}
		for _, name := range outputs {
			samples[i].Output[name] = columns[name][i]
		}
	}
	return samples, nil
}

// Evaluate returns the share of samples whose expected outputs all match
// the graph result. Values are compared by their printed form. A failed
// run counts as a miss unless ctx is done.
func Evaluate(ctx context.Context, g *graph.Graph, model llm.Model, samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	hits := 0
	for _, s := range samples {
		result, err := g.Run(ctx, s.Input, model, nil)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			continue
		}
		if matches(result, s.Output) {
			hits++
		}
	}
	return float64(hits) / float64(len(samples)), nil
}

func matches(result, expected map[string]any) bool {
	for k, want := range expected {
		got, ok := result[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}
