// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ErrMetricsDisabled is returned by ServeMetrics when Init did not enable
// the Prometheus exporter.
var ErrMetricsDisabled = errors.New("prometheus exporter not enabled")

// ServeMetrics serves /metrics on addr until ctx is done.
//
// Outputs:
//
//	string - The bound address, useful when addr ends in ":0".
//	func() error - Blocks until the server has stopped and returns its error.
//	error - Non-nil if the listener cannot be opened.
func ServeMetrics(ctx context.Context, addr string, logger *slog.Logger) (string, func() error, error) {
	handler := MetricsHandler()
	if handler == nil {
		return "", nil, ErrMetricsDisabled
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	done := make(chan error, 1)
	go func() {
		err := srv.Serve(ln)
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		done <- err
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
		}
	}()

	bound := ln.Addr().String()
	logger.Info("serving metrics", slog.String("addr", bound))
	return bound, func() error { return <-done }, nil
}

// LoggerWithTrace returns logger annotated with the trace_id and span_id of
// the span in ctx, or logger unchanged when ctx carries no valid span.
func LoggerWithTrace(ctx context.Context, logger *slog.Logger) *slog.Logger {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return logger
	}
	return logger.With(
		slog.String("trace_id", sc.TraceID().String()),
		slog.String("span_id", sc.SpanID().String()),
	)
}
