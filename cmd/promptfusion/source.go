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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/zclconf/go-cty/cty"

	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
	"github.com/AleutianAI/promptfusion/services/promptopt/topology"
)

// loadTopology reads a graph from an .hcl file, an editor document, or a
// serialized graph spec. The editor document is returned when one was read.
func loadTopology(path string, vars map[string]string, opts ...graph.Option) (*graph.Graph, *topology.EditorDocument, error) {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		values := make(map[string]cty.Value, len(vars))
		for k, v := range vars {
			values[k] = cty.StringVal(v)
		}
		g, err := topology.LoadHCL(path, values, opts...)
		return g, nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read topology: %w", err)
	}
	doc, docErr := topology.ParseEditorDocument(data)
	if docErr == nil {
		g, err := topology.FromEditor(doc, opts...)
		return g, doc, err
	}
	g, specErr := graph.Decode(data, opts...)
	if specErr == nil && g.NodeCount() == 0 {
		specErr = errors.New("graph spec has no nodes")
	}
	if specErr != nil {
		return nil, nil, fmt.Errorf("%s is neither an editor document nor a graph spec: %w", path, errors.Join(docErr, specErr))
	}
	return g, nil, nil
}

// loadColumns reads a JSON object of equally long columns.
func loadColumns(path string) (map[string][]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var columns map[string][]any
	if err := json.Unmarshal(data, &columns); err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", path, err)
	}
	return columns, nil
}

// parseAssignments turns key=value flags into a map.
func parseAssignments(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		out[k] = v
	}
	return out, nil
}

func fieldNames(fields []graph.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// overrideProvider lays a provider chosen in a topology over the configured
// one. Connection settings are only inherited when both name the same
// backend.
func overrideProvider(base, over llm.Provider) llm.Provider {
	if over.ID == "" {
		return base
	}
	if over.ID != base.ID {
		base = llm.Provider{ID: over.ID, RequestsPerSecond: base.RequestsPerSecond, MaxRetries: base.MaxRetries}
	}
	if over.ModelID != "" {
		base.ModelID = over.ModelID
	}
	if over.APIKey != "" {
		base.APIKey = over.APIKey
	}
	if over.Organization != "" {
		base.Organization = over.Organization
	}
	if over.APIBase != "" {
		base.APIBase = over.APIBase
	}
	return base
}
