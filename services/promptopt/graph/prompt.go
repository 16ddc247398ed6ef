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
	"fmt"

	"github.com/tmc/langchaingo/prompts"

	"github.com/AleutianAI/promptfusion/services/llm"
)

var nodeSystemPrompt = prompts.PromptTemplate{
	Template: `You are provided with an input schema, an output schema and an instruction. Answer with a JSON matching the output schema.

Input schema:
{input_schema}

Output schema:
{output_schema}

Instruction:
{instruction}
`,
	InputVariables: []string{"input_schema", "output_schema", "instruction"},
	TemplateFormat: prompts.TemplateFormatFString,
}

// systemPrompt renders the node system message.
func systemPrompt(in, out *Schema, instruction string) (string, error) {
	text, err := nodeSystemPrompt.Format(map[string]any{
		"input_schema":  in.String(),
		"output_schema": out.String(),
		"instruction":   instruction,
	})
	if err != nil {
		return "", fmt.Errorf("rendering system prompt: %w", err)
	}
	return text, nil
}

// conversation builds [system] + example pairs + [user inputs].
func conversation(system string, examples []Example, inputsJSON string) []llm.Message {
	msgs := make([]llm.Message, 0, 2+2*len(examples))
	msgs = append(msgs, llm.System(system))
	for _, ex := range examples {
		msgs = append(msgs, llm.User(ex.Input), llm.Assistant(ex.Output))
	}
	return append(msgs, llm.User(inputsJSON))
}

// complete runs the shared model round trip of Processor and Gate.
//
// It renders the prompt, calls the model with the output schema and
// records the pair in the trace. Decoding is left to the caller.
func complete(ctx context.Context, call Call, in, out *Schema, defaultInstruction string, inputs map[string]any) (string, error) {
	if call.Model == nil {
		return "", ErrNilModel
	}

	instruction := call.Profile.Instruction
	if instruction == "" {
		instruction = defaultInstruction
	}
	system, err := systemPrompt(in, out, instruction)
	if err != nil {
		return "", err
	}
	inputsJSON, err := in.Encode(inputs)
	if err != nil {
		return "", fmt.Errorf("%w: encoding inputs: %v", ErrValidation, err)
	}

	response, err := call.Model.Generate(ctx, conversation(system, call.Profile.Examples, inputsJSON), out.Definition())
	if err != nil {
		return "", fmt.Errorf("model generate: %w", err)
	}

	if call.Trace != nil {
		call.Trace.AddExample(call.Handle, inputsJSON, response)
	}
	return response, nil
}
