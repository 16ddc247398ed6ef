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
	"strings"

	"github.com/tmc/langchaingo/prompts"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
)

// ProposalTemperature is the sampling temperature for instruction proposals.
const ProposalTemperature = 0.7

var instructionProposal = prompts.PromptTemplate{
	Template: `
You are an expert in prompt engineering. Your task is to generate an instruction for a single component of a compound AI system. The system is represented as a graph of nodes, where each node has its own function:
- Input node: receives the input data, acts as an entry point to the system.
- Processor node: processes the data, produces the output based on the schema.
- Gate node: acts as a classifier. Its result is used for directing the flow of data. The gate is unable to change the data, it can only classify it.
- Output node: produces the final output of the system, acts as an exit point.
{task_description}
Graph:
{graph}

You are generating the instruction for node {node_id}. The instruction should be clear, concise, and problem-specific.
The instruction produced by you will be injected into a larger instruction that already contains the information about the input and output schemas and generic function of the node, but unaware of any other nodes or the overall system. Instead of repeating this information, try to focus on the following:
1. Explain how the node should process the data, what are the steps it should take to produce the output from the first attempt.
2. Explain the overall purpose of the node in the system, what is its role and how it fits into the overall compound AI system.

Take the following into account:
1. The nodes are not aware of the other nodes, the purpose of the system or generic functions of the other nodes.
2. The nodes are only able to produce the output based on the schema and do not have access to any tools.
3. The communication between nodes is orchestrated by the external system, so the nodes cannot control the flow of data or the order of execution. Do not instruct the node to explicitly communicate with other nodes or to control the flow of data.

Your answer should contain the instruction only, without any additional text or explanation.

Instruction:
`,
	InputVariables: []string{"task_description", "graph", "node_id"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// ProposeInstructions asks model for n candidate instructions per
// model-backed node.
//
// Description:
//
//	Renders the graph once, then for every Processor and Gate issues one
//	BatchGenerate call at ProposalTemperature. Candidates are trimmed.
//
// Inputs:
//
//	ctx - Context for cancellation.
//	g - The graph whose nodes need instructions.
//	model - The proposing model.
//	n - Candidates per node. Must be positive.
//	taskDescription - Optional description of the overall task.
//
// Outputs:
//
//	map[string][]string - Candidates keyed by node name.
//	error - Non-nil if rendering or any model call fails.
func ProposeInstructions(ctx context.Context, g *graph.Graph, model llm.Model, n int, taskDescription string) (map[string][]string, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: n must be positive, got %d", ErrInvalidConfig, n)
	}
	description, err := g.Describe()
	if err != nil {
		return nil, fmt.Errorf("describing graph: %w", err)
	}

	task := ""
	if taskDescription != "" {
		task = "\nTask description:\n`" + taskDescription + "`\n"
	}

	proposals := make(map[string][]string)
	for _, handle := range g.Trainable() {
		prompt, err := instructionProposal.Format(map[string]any{
			"task_description": task,
			"graph":            description,
			"node_id":          handle,
		})
		if err != nil {
			return nil, fmt.Errorf("rendering proposal for %q: %w", handle, err)
		}

		candidates, err := model.BatchGenerate(ctx, []llm.Message{llm.User(prompt)}, ProposalTemperature, n)
		if err != nil {
			return nil, fmt.Errorf("proposing instruction for %q: %w", handle, err)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: node %q", ErrNoProposal, handle)
		}
		for i := range candidates {
			candidates[i] = strings.TrimSpace(candidates[i])
		}
		proposals[handle] = candidates
	}
	return proposals, nil
}
