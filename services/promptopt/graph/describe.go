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
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

var (
	graphDescription = prompts.PromptTemplate{
		Template:       "=====\nNodes:\n\n{nodes}\n======\nEdges:\n\n{edges}\n======\n",
		InputVariables: []string{"nodes", "edges"},
		TemplateFormat: prompts.TemplateFormatFString,
	}

	nodeDescription = prompts.PromptTemplate{
		Template:       "ID: {id}\nType: {type}\nInputs: {inputs}\nOutputs: {outputs}\n{hint}\n",
		InputVariables: []string{"id", "type", "inputs", "outputs", "hint"},
		TemplateFormat: prompts.TemplateFormatFString,
	}
)

// Describe renders the topology as plain text for a language model.
//
// Nodes appear in insertion order with their input and output names; edges
// appear in connection order as "src.field -> dst.field".
func (g *Graph) Describe() (string, error) {
	if g.input == nil {
		return "", ErrNoInputNode
	}

	nodes := make([]string, 0, len(g.names))
	for _, name := range g.names {
		node := g.nodes[name]
		hint := ""
		if h := node.Hint(); h != "" {
			hint = "Hint: " + h
		}
		text, err := nodeDescription.Format(map[string]any{
			"id":      name,
			"type":    string(node.Kind()),
			"inputs":  listText(node.InputNames()),
			"outputs": listText(node.OutputNames()),
			"hint":    hint,
		})
		if err != nil {
			return "", fmt.Errorf("describing node %q: %w", name, err)
		}
		nodes = append(nodes, text)
	}

	edges := make([]string, 0, len(g.edges))
	for _, e := range g.edges {
		edges = append(edges, e.String())
	}

	text, err := graphDescription.Format(map[string]any{
		"nodes": strings.Join(nodes, "\n"),
		"edges": strings.Join(edges, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("describing graph: %w", err)
	}
	return text, nil
}

// listText renders names as a bracketed, quoted list: ['a', 'b'].
func listText(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
