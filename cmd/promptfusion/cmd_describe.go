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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
	"github.com/AleutianAI/promptfusion/services/promptopt/store"
)

func newDescribeCmd(a *app) *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "describe [topology or model-id]",
		Short: "Print the node listing the optimizers show to the teacher",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hclVars, err := parseAssignments(vars)
			if err != nil {
				return err
			}
			g, err := a.resolveGraph(cmd, args[0], hclVars)
			if err != nil {
				return err
			}
			text, err := g.Describe()
			if err != nil {
				return err
			}
			a.printer.Box("Graph", text)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "HCL variable as name=value (repeatable)")
	return cmd
}

// resolveGraph loads target as a topology file when it exists and as a
// stored model id otherwise.
func (a *app) resolveGraph(cmd *cobra.Command, target string, vars map[string]string) (*graph.Graph, error) {
	opts := a.graphOptions(a.logger.Slog())
	if _, err := os.Stat(target); err == nil {
		g, _, err := loadTopology(target, vars, opts...)
		return g, err
	}
	var artifact store.Artifact
	err := a.withStore(func(s *store.Store) error {
		var err error
		artifact, err = s.Get(cmd.Context(), target)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%q is neither a file nor a stored model", target)
	}
	if err != nil {
		return nil, err
	}
	return artifact.Build(opts...)
}

func newValidateCmd(a *app) *cobra.Command {
	var vars []string
	cmd := &cobra.Command{
		Use:   "validate [topology]",
		Short: "Check that a topology builds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hclVars, err := parseAssignments(vars)
			if err != nil {
				return err
			}
			g, _, err := loadTopology(args[0], hclVars, a.graphOptions(a.logger.Slog())...)
			if err != nil {
				return err
			}
			if g.Input() == nil || g.Output() == nil {
				a.printer.Warning("topology has no input or output node and cannot be run")
			}
			a.printer.Success("topology is valid")
			a.printer.KeyValues(
				"nodes", strconv.Itoa(g.NodeCount()),
				"edges", strconv.Itoa(len(g.Edges())),
				"trainable", strings.Join(g.Trainable(), ","),
			)
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&vars, "var", nil, "HCL variable as name=value (repeatable)")
	return cmd
}

func newModelsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage trained models",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List trained models, newest first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withStore(func(s *store.Store) error {
					artifacts, err := s.List(cmd.Context())
					if err != nil {
						return err
					}
					if len(artifacts) == 0 {
						a.printer.Warning("no trained models")
						return nil
					}
					a.printer.Title("Trained models")
					for _, m := range artifacts {
						a.printer.Raw(fmt.Sprintf("%s\t%s\t%s\t%s/%s",
							m.ID, m.CreatedAt.Format(time.RFC3339), m.Strategy, m.Student.ProviderID, m.Student.ModelID))
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "show [model-id]",
			Short: "Print a trained model as JSON",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(func(s *store.Store) error {
					artifact, err := s.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return a.printJSON(artifact)
				})
			},
		},
		&cobra.Command{
			Use:   "delete [model-id]",
			Short: "Delete a trained model",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withStore(func(s *store.Store) error {
					if err := s.Delete(cmd.Context(), args[0]); err != nil {
						return err
					}
					a.printer.Success("deleted " + args[0])
					return nil
				})
			},
		},
	)
	return cmd
}
