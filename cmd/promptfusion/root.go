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
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/promptfusion/cmd/promptfusion/config"
	"github.com/AleutianAI/promptfusion/pkg/logging"
	"github.com/AleutianAI/promptfusion/pkg/ux"
	"github.com/AleutianAI/promptfusion/services/llm"
	"github.com/AleutianAI/promptfusion/services/promptopt/graph"
	"github.com/AleutianAI/promptfusion/services/promptopt/store"
	"github.com/AleutianAI/promptfusion/services/promptopt/telemetry"
)

// app is the state shared by every subcommand. It is filled in by the
// root command's PersistentPreRunE.
type app struct {
	configPath string
	logLevel   string
	output     string

	cfg      config.Config
	logger   *logging.Logger
	printer  *ux.Printer
	shutdown func(context.Context) error

	// newModel and openStore are replaced in tests.
	newModel  func(p llm.Provider, logger *slog.Logger) (llm.Model, error)
	openStore func(cfg config.StoreConfig, logger *slog.Logger) (*store.Store, error)
}

func newApp() *app {
	return &app{
		newModel:  llm.NewFromProvider,
		openStore: openStore,
	}
}

func openStore(cfg config.StoreConfig, logger *slog.Logger) (*store.Store, error) {
	sc := store.DefaultConfig(cfg.Path)
	sc.GCInterval = cfg.GCInterval
	sc.Logger = logger
	return store.Open(sc)
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "promptfusion",
		Short: "Train and run graphs of prompted LLM nodes",
		Long: `promptfusion builds dataflow graphs of LLM-backed nodes, learns their
instructions and few-shot examples from a dataset, and stores the trained
graphs for later prediction.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.setup,
		PersistentPostRunE: a.teardown,
	}

	rootCmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ~/.promptfusion/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&a.output, "output", "", "output style: styled or plain (default detected)")

	rootCmd.AddCommand(
		newTrainCmd(a),
		newPredictCmd(a),
		newRunCmd(a),
		newDescribeCmd(a),
		newValidateCmd(a),
		newModelsCmd(a),
	)
	return rootCmd
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Logging.Level = a.logLevel
	}
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "promptfusion",
		Format:  logging.Format(cfg.Logging.Format),
		Output:  cmd.ErrOrStderr(),
	})

	mode := ux.DetectMode(cmd.OutOrStdout())
	switch a.output {
	case "":
	case string(ux.ModePlain), string(ux.ModeStyled):
		mode = ux.Mode(a.output)
	default:
		return fmt.Errorf("unknown output style %q", a.output)
	}
	a.printer = ux.NewPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr(), mode)

	a.shutdown, err = telemetry.Init(cmd.Context(), cfg.Telemetry)
	if err != nil {
		return err
	}
	a.logger.Debug("configuration loaded",
		slog.String("store", cfg.Store.Path),
		slog.String("student", cfg.Providers.Student.ID+"/"+cfg.Providers.Student.ModelID),
	)
	return nil
}

func (a *app) teardown(*cobra.Command, []string) error {
	var err error
	if a.shutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = a.shutdown(ctx)
	}
	if a.logger != nil {
		if closeErr := a.logger.Close(); err == nil {
			err = closeErr
		}
	}
	return err
}

// graphOptions applies the engine section of the config.
func (a *app) graphOptions(logger *slog.Logger) []graph.Option {
	return []graph.Option{
		graph.WithLogger(logger),
		graph.WithNodeTimeout(a.cfg.Engine.NodeTimeout),
		graph.WithMaxWavefronts(a.cfg.Engine.MaxWavefronts),
	}
}

func (a *app) withStore(fn func(*store.Store) error) error {
	s, err := a.openStore(a.cfg.Store, a.logger.Slog())
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			a.logger.Warn("closing model store failed", slog.String("error", err.Error()))
		}
	}()
	return fn(s)
}
